// Package config loads runtime settings from the environment.
//
// Values are read from IMAGE_DECODE_* variables. A .env file in the working
// directory, if present, is loaded first; variables already set in the
// environment take precedence over it.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"

	"github.com/ironsheep/image-decode/internal/imaging"
)

// Environment variable names.
const (
	EnvLogLevel  = "IMAGE_DECODE_LOG_LEVEL"
	EnvLogFile   = "IMAGE_DECODE_LOG_FILE"
	EnvCacheSize = "IMAGE_DECODE_CACHE_SIZE"
	EnvMaxAlloc  = "IMAGE_DECODE_MAX_ALLOC"
	EnvFormat    = "IMAGE_DECODE_PIXEL_FORMAT"
)

// Config holds the process settings.
type Config struct {
	// LogLevel is one of debug, info, warn, error. Default "info".
	LogLevel string

	// LogFile, if set, receives JSON logs with rotation.
	LogFile string

	// CacheSize is the decoded image cache capacity in bytes. Zero means
	// one eighth of the heap budget.
	CacheSize int64

	// MaxAlloc is the largest single pixel allocation a decode may make.
	MaxAlloc int64

	// PixelFormat is the default format for requests that don't name one.
	PixelFormat imaging.PixelFormat
}

// Load reads .env (if any) and the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv reads the environment only.
func FromEnv() (*Config, error) {
	cfg := &Config{
		LogLevel:    strings.ToLower(getEnvOrDefault(EnvLogLevel, "info")),
		LogFile:     os.Getenv(EnvLogFile),
		MaxAlloc:    imaging.DefaultMaxAlloc,
		PixelFormat: imaging.DefaultPixelFormat,
	}

	var err error
	if cfg.CacheSize, err = parseBytesEnv(EnvCacheSize, 0); err != nil {
		return nil, err
	}
	if cfg.MaxAlloc, err = parseBytesEnv(EnvMaxAlloc, imaging.DefaultMaxAlloc); err != nil {
		return nil, err
	}
	if v := os.Getenv(EnvFormat); v != "" {
		if cfg.PixelFormat, err = imaging.ParsePixelFormat(v); err != nil {
			return nil, fmt.Errorf("%s: %w", EnvFormat, err)
		}
	}

	return cfg, nil
}

// Development reports whether debug logging is on.
func (c *Config) Development() bool {
	return c.LogLevel == "debug"
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseBytesEnv parses a size such as "64MB" or "1 GiB".
func parseBytesEnv(key string, defaultValue int64) (int64, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue, nil
	}
	n, err := humanize.ParseBytes(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if n > 1<<62 {
		return 0, fmt.Errorf("%s: size %s too large", key, value)
	}
	return int64(n), nil
}
