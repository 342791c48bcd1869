package imaging

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a DecodeError.
type ErrorKind int

const (
	// SourceNotFound means the file or resource is missing or not a regular file.
	SourceNotFound ErrorKind = iota + 1

	// MalformedData means the bytes are not a decodable image.
	MalformedData

	// DecodeOutOfMemory means an allocation during decode or rescale failed.
	DecodeOutOfMemory

	// UnsupportedFormat means the requested pixel format cannot be produced.
	UnsupportedFormat
)

func (k ErrorKind) String() string {
	switch k {
	case SourceNotFound:
		return "SOURCE_NOT_FOUND"
	case MalformedData:
		return "MALFORMED_DATA"
	case DecodeOutOfMemory:
		return "DECODE_OUT_OF_MEMORY"
	case UnsupportedFormat:
		return "UNSUPPORTED_FORMAT"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// DecodeError is the error type returned by sources and the pipeline.
// None of its kinds are retried here.
type DecodeError struct {
	Kind ErrorKind

	// Source is the identifier of the image being decoded, if known.
	Source string

	// Bytes is the allocation size that failed, for DecodeOutOfMemory.
	Bytes int64

	// Err is the underlying cause, if any.
	Err error
}

func (e *DecodeError) Error() string {
	msg := e.Kind.String()
	if e.Source != "" {
		msg += " (" + e.Source + ")"
	}
	if e.Kind == DecodeOutOfMemory && e.Bytes > 0 {
		msg += fmt.Sprintf(": %d byte allocation", e.Bytes)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Is matches any DecodeError of the same kind, so the sentinel values below
// can be used with errors.Is.
func (e *DecodeError) Is(target error) bool {
	t, ok := target.(*DecodeError)
	return ok && t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrSourceNotFound    = &DecodeError{Kind: SourceNotFound}
	ErrMalformedData     = &DecodeError{Kind: MalformedData}
	ErrDecodeOutOfMemory = &DecodeError{Kind: DecodeOutOfMemory}
	ErrUnsupportedFormat = &DecodeError{Kind: UnsupportedFormat}
)

// ErrNoPixels is the cause attached when a decoder produced no image and no error.
var ErrNoPixels = errors.New("decoder produced no pixels")

// KindOf returns the kind of the first DecodeError in err's chain, or 0.
func KindOf(err error) ErrorKind {
	var de *DecodeError
	if errors.As(err, &de) {
		return de.Kind
	}
	return 0
}

func notFound(source string, err error) *DecodeError {
	return &DecodeError{Kind: SourceNotFound, Source: source, Err: err}
}

func malformed(source string, err error) *DecodeError {
	return &DecodeError{Kind: MalformedData, Source: source, Err: err}
}

func outOfMemory(source string, n int64, err error) *DecodeError {
	return &DecodeError{Kind: DecodeOutOfMemory, Source: source, Bytes: n, Err: err}
}
