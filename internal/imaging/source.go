package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
)

// Source is where compressed image bytes come from. The set of variants is
// closed: BytesSource, FileSource and ResourceSource.
//
// A Source only hands bytes and bounds to the decoder; it does not cache or
// fetch anything.
type Source interface {
	// ID returns the identifier used in errors and as the default cache key.
	ID() string

	// ProbeBounds parses the header and returns the natural bounds
	// without allocating pixel storage.
	ProbeBounds() (Bounds, error)

	// DecodeAt decodes at 1/sampleFactor of the natural size, which must be
	// a power of two, into a buffer of the given format.
	DecodeAt(sampleFactor int, format PixelFormat, alloc Allocator) (*RasterBuffer, error)

	open() (io.ReadCloser, error)
}

// BytesSource is an in-memory compressed image.
type BytesSource struct {
	Key  string
	Data []byte
}

// NewBytesSource wraps data under the identifier id.
func NewBytesSource(id string, data []byte) *BytesSource {
	return &BytesSource{Key: id, Data: data}
}

func (s *BytesSource) ID() string { return s.Key }

func (s *BytesSource) ProbeBounds() (Bounds, error) { return probeSource(s) }

func (s *BytesSource) DecodeAt(sampleFactor int, format PixelFormat, alloc Allocator) (*RasterBuffer, error) {
	return decodeSource(s, sampleFactor, format, alloc)
}

func (s *BytesSource) open() (io.ReadCloser, error) {
	if len(s.Data) == 0 {
		return nil, malformed(s.Key, errors.New("empty image data"))
	}
	return io.NopCloser(bytes.NewReader(s.Data)), nil
}

// FileSource is an image file on the local filesystem.
type FileSource struct {
	Path string
}

// NewFileSource returns a source for path. A leading "file://" is stripped.
func NewFileSource(path string) *FileSource {
	return &FileSource{Path: strings.TrimPrefix(path, "file://")}
}

func (s *FileSource) ID() string { return s.Path }

func (s *FileSource) ProbeBounds() (Bounds, error) { return probeSource(s) }

func (s *FileSource) DecodeAt(sampleFactor int, format PixelFormat, alloc Allocator) (*RasterBuffer, error) {
	return decodeSource(s, sampleFactor, format, alloc)
}

func (s *FileSource) open() (io.ReadCloser, error) {
	if s.Path == "" {
		return nil, notFound(s.Path, errors.New("empty path"))
	}
	info, err := os.Stat(s.Path)
	if err != nil {
		return nil, notFound(s.Path, err)
	}
	if !info.Mode().IsRegular() {
		return nil, notFound(s.Path, fmt.Errorf("not a regular file: %s", s.Path))
	}
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, notFound(s.Path, err)
	}
	return f, nil
}

// ResourceSource is an image bundled in a filesystem such as an embed.FS.
type ResourceSource struct {
	FS   fs.FS
	Name string
}

// NewResourceSource returns a source for name inside fsys.
func NewResourceSource(fsys fs.FS, name string) *ResourceSource {
	return &ResourceSource{FS: fsys, Name: name}
}

func (s *ResourceSource) ID() string { return "res://" + s.Name }

func (s *ResourceSource) ProbeBounds() (Bounds, error) { return probeSource(s) }

func (s *ResourceSource) DecodeAt(sampleFactor int, format PixelFormat, alloc Allocator) (*RasterBuffer, error) {
	return decodeSource(s, sampleFactor, format, alloc)
}

func (s *ResourceSource) open() (io.ReadCloser, error) {
	if s.FS == nil {
		return nil, notFound(s.ID(), errors.New("no resource filesystem"))
	}
	info, err := fs.Stat(s.FS, s.Name)
	if err != nil {
		return nil, notFound(s.ID(), err)
	}
	if !info.Mode().IsRegular() {
		return nil, notFound(s.ID(), fmt.Errorf("not a regular file: %s", s.Name))
	}
	f, err := s.FS.Open(s.Name)
	if err != nil {
		return nil, notFound(s.ID(), err)
	}
	return f, nil
}

func probeSource(s Source) (Bounds, error) {
	rc, err := s.open()
	if err != nil {
		return Bounds{}, err
	}
	defer rc.Close()

	b, _, err := probeReader(rc)
	if err != nil {
		return Bounds{}, malformed(s.ID(), err)
	}
	return b, nil
}

func decodeSource(s Source, factor int, format PixelFormat, alloc Allocator) (*RasterBuffer, error) {
	if factor < 1 || factor&(factor-1) != 0 {
		return nil, fmt.Errorf("invalid sample factor %d: must be a power of two", factor)
	}
	if !format.Supported() {
		return nil, &DecodeError{Kind: UnsupportedFormat, Source: s.ID(), Err: fmt.Errorf("pixel format %s", format)}
	}
	if alloc == nil {
		alloc = BudgetAllocator{}
	}

	data, err := readSource(s)
	if err != nil {
		return nil, err
	}
	return decodeBytes(s.ID(), data, factor, format, alloc)
}

func readSource(s Source) ([]byte, error) {
	switch src := s.(type) {
	case *BytesSource:
		if len(src.Data) == 0 {
			return nil, malformed(src.Key, errors.New("empty image data"))
		}
		return src.Data, nil
	default:
		rc, err := s.open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, malformed(s.ID(), fmt.Errorf("failed to read image: %w", err))
		}
		return data, nil
	}
}
