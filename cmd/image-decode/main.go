package main

import (
	"encoding/base64"
	"flag"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"go.uber.org/zap"

	"github.com/ironsheep/image-decode/internal/cache"
	"github.com/ironsheep/image-decode/internal/config"
	"github.com/ironsheep/image-decode/internal/imaging"
	"github.com/ironsheep/image-decode/internal/logging"
	"github.com/ironsheep/image-decode/internal/server"
	"github.com/ironsheep/image-decode/internal/task"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "--version", "-v", "version":
			fmt.Printf("image-decode %s\n", Version)
			fmt.Printf("  Build time: %s\n", BuildTime)
			fmt.Printf("  Git commit: %s\n", GitCommit)
			return
		case "--help", "-h", "help":
			printHelp()
			return
		case "decode":
			os.Exit(runDecode(os.Args[2:]))
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(2)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging error: %v\n", err)
		os.Exit(2)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("image-decode starting",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("commit", GitCommit),
		zap.String("pixel_format", cfg.PixelFormat.String()),
		zap.String("max_alloc", humanize.IBytes(uint64(cfg.MaxAlloc))),
	)

	decoder := newDecoder(cfg, logger)
	logger.Info("decoded image cache ready",
		zap.String("capacity", humanize.IBytes(uint64(decoder.Cache().Capacity()))))

	srv := server.New(decoder, cfg.PixelFormat, logger)
	if err := srv.Run(); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

func newDecoder(cfg *config.Config, logger *zap.Logger) *task.Decoder {
	pipeline := imaging.NewPipeline(
		imaging.WithAllocator(imaging.BudgetAllocator{Limit: cfg.MaxAlloc}),
		imaging.WithLogger(logger),
	)
	lru := cache.New(cfg.CacheSize, cache.WithEvictFunc(func(key string, buf *imaging.RasterBuffer) {
		logger.Debug("evicted decoded image",
			zap.String("key", key),
			zap.String("size", humanize.IBytes(uint64(buf.ByteCount()))))
	}))
	return task.New(pipeline, lru, logger)
}

func printHelp() {
	fmt.Println("image-decode - bounded-memory image decoding over MCP")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  image-decode                  Run the MCP server on stdin/stdout")
	fmt.Println("  image-decode decode [flags] FILE")
	fmt.Println("                                Decode one file and print the result")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --version, -v    Print version information")
	fmt.Println("  --help, -h       Print this help message")
	fmt.Println()
	fmt.Println("Environment variables:")
	fmt.Printf("  %s=debug       Log level (debug, info, warn, error)\n", config.EnvLogLevel)
	fmt.Printf("  %s=PATH         Also write rotated JSON logs to PATH\n", config.EnvLogFile)
	fmt.Printf("  %s=64MiB       Decoded image cache capacity\n", config.EnvCacheSize)
	fmt.Printf("  %s=256MiB       Largest single pixel allocation\n", config.EnvMaxAlloc)
	fmt.Printf("  %s=RGB_565   Default output pixel format\n", config.EnvFormat)
	fmt.Println()
	fmt.Println("A .env file in the working directory is read at startup.")
}

// runDecode implements the decode subcommand and returns the exit code.
func runDecode(args []string) int {
	fs := flag.NewFlagSet("decode", flag.ContinueOnError)
	maxWidth := fs.Int("width", 0, "maximum width in pixels (0 = unbounded)")
	maxHeight := fs.Int("height", 0, "maximum height in pixels (0 = unbounded)")
	fit := fs.String("fit", "center_inside", "fit policy: none, fit_xy, center_inside, center_crop")
	format := fs.String("format", "", "pixel format: RGB_565, ARGB_8888, ALPHA_8")
	crop := fs.Bool("crop", false, "trim center_crop output to the requested bounds")
	out := fs.String("out", "", "write the decoded image as PNG to this path")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: image-decode decode [flags] FILE")
		fs.PrintDefaults()
		return 2
	}

	fail := color.New(color.FgRed, color.Bold)

	cfg, err := config.Load()
	if err != nil {
		fail.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return 2
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		fail.Fprintf(os.Stderr, "logging error: %v\n", err)
		return 2
	}
	defer func() { _ = logger.Sync() }()

	policy, err := imaging.ParseFitPolicy(*fit)
	if err != nil {
		fail.Fprintln(os.Stderr, err)
		return 2
	}
	pixelFormat := cfg.PixelFormat
	if *format != "" {
		if pixelFormat, err = imaging.ParsePixelFormat(*format); err != nil {
			fail.Fprintln(os.Stderr, err)
			return 2
		}
	}
	constraint := imaging.SizeConstraint{MaxWidth: *maxWidth, MaxHeight: *maxHeight}
	if err := constraint.Validate(); err != nil {
		fail.Fprintln(os.Stderr, err)
		return 2
	}

	decoder := newDecoder(cfg, logger)
	resp, err := decoder.Submit(task.Request{
		Source:     imaging.NewFileSource(fs.Arg(0)),
		Constraint: constraint,
		Policy:     policy,
		Format:     pixelFormat,
	})
	if err != nil {
		fail.Fprintf(os.Stderr, "decode failed [%s]: %v\n", imaging.KindOf(err), err)
		return 1
	}

	buf := resp.Buffer
	if *crop && policy == imaging.FitCenterCrop {
		if buf, err = imaging.CropCenter(buf, constraint, nil); err != nil {
			fail.Fprintf(os.Stderr, "crop failed: %v\n", err)
			return 1
		}
	}

	label := color.New(color.FgCyan).SprintFunc()
	value := color.New(color.FgWhite, color.Bold).SprintFunc()
	fmt.Printf("%s %s\n", label("source:      "), value(resp.ID))
	fmt.Printf("%s %s\n", label("natural:     "), value(resp.Natural.String()))
	fmt.Printf("%s %s\n", label("decoded:     "), value(buf.Size().String()))
	fmt.Printf("%s %s\n", label("sample:      "), value(fmt.Sprintf("1/%d", resp.SampleFactor)))
	fmt.Printf("%s %s\n", label("rescaled:    "), value(fmt.Sprintf("%t", resp.Rescaled)))
	fmt.Printf("%s %s\n", label("format:      "), value(buf.Format.String()))
	fmt.Printf("%s %s\n", label("memory:      "), value(humanize.IBytes(uint64(buf.ByteCount()))))
	fmt.Printf("%s %s\n", label("placeholder: "), color.New(color.Bold).Sprint(buf.AverageColor()))

	if *out != "" {
		enc, err := imaging.EncodePNG(buf)
		if err != nil {
			fail.Fprintf(os.Stderr, "encode failed: %v\n", err)
			return 1
		}
		data, err := base64.StdEncoding.DecodeString(enc.ImageBase64)
		if err != nil {
			fail.Fprintf(os.Stderr, "encode failed: %v\n", err)
			return 1
		}
		if err := os.WriteFile(*out, data, 0o644); err != nil {
			fail.Fprintf(os.Stderr, "write failed: %v\n", err)
			return 1
		}
		color.Green("wrote %s (%s)", *out, humanize.Bytes(uint64(len(data))))
	}
	return 0
}
