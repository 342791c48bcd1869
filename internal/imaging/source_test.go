package imaging

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"
)

// solidImage returns a width x height RGBA image filled with c.
func solidImage(width, height int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

// encodePNG returns img as PNG bytes.
func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode image: %v", err)
	}
	return buf.Bytes()
}

// createTestImage writes a solid PNG to a temp dir and returns its path.
func createTestImage(t *testing.T, width, height int, c color.Color) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.png")
	if err := os.WriteFile(path, encodePNG(t, solidImage(width, height, c)), 0o644); err != nil {
		t.Fatalf("failed to write image: %v", err)
	}
	return path
}

func TestBytesSource(t *testing.T) {
	data := encodePNG(t, solidImage(30, 20, color.White))
	src := NewBytesSource("mem:1", data)

	if src.ID() != "mem:1" {
		t.Errorf("ID: got %s, want mem:1", src.ID())
	}
	b, err := src.ProbeBounds()
	if err != nil {
		t.Fatalf("ProbeBounds failed: %v", err)
	}
	if b != (Bounds{30, 20}) {
		t.Errorf("ProbeBounds: got %v, want 30x20", b)
	}

	buf, err := src.DecodeAt(2, ARGB8888, nil)
	if err != nil {
		t.Fatalf("DecodeAt failed: %v", err)
	}
	if buf.Size() != (Bounds{15, 10}) {
		t.Errorf("DecodeAt(2): got %v, want 15x10", buf.Size())
	}
}

func TestBytesSource_Empty(t *testing.T) {
	src := NewBytesSource("empty", nil)

	if _, err := src.ProbeBounds(); !errors.Is(err, ErrMalformedData) {
		t.Errorf("ProbeBounds: got %v, want MALFORMED_DATA", err)
	}
	if _, err := src.DecodeAt(1, RGB565, nil); !errors.Is(err, ErrMalformedData) {
		t.Errorf("DecodeAt: got %v, want MALFORMED_DATA", err)
	}
}

func TestFileSource(t *testing.T) {
	path := createTestImage(t, 64, 48, color.Black)

	tests := []struct {
		name string
		in   string
	}{
		{"plain path", path},
		{"file url", "file://" + path},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := NewFileSource(tt.in)
			if src.ID() != path {
				t.Errorf("ID: got %s, want %s", src.ID(), path)
			}
			b, err := src.ProbeBounds()
			if err != nil {
				t.Fatalf("ProbeBounds failed: %v", err)
			}
			if b != (Bounds{64, 48}) {
				t.Errorf("ProbeBounds: got %v, want 64x48", b)
			}
		})
	}
}

func TestFileSource_NotFound(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name string
		path string
	}{
		{"missing file", filepath.Join(dir, "missing.png")},
		{"directory", dir},
		{"empty path", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := NewFileSource(tt.path)
			if _, err := src.ProbeBounds(); KindOf(err) != SourceNotFound {
				t.Errorf("ProbeBounds: got %v, want SOURCE_NOT_FOUND", err)
			}
			if _, err := src.DecodeAt(1, RGB565, nil); KindOf(err) != SourceNotFound {
				t.Errorf("DecodeAt: got %v, want SOURCE_NOT_FOUND", err)
			}
		})
	}
}

func TestFileSource_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.png")
	if err := os.WriteFile(path, []byte("not an image at all"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := NewFileSource(path).ProbeBounds()
	if KindOf(err) != MalformedData {
		t.Fatalf("got %v, want MALFORMED_DATA", err)
	}
	var de *DecodeError
	if !errors.As(err, &de) || de.Source != path {
		t.Errorf("error should name the source, got %v", err)
	}
}

func TestResourceSource(t *testing.T) {
	fsys := fstest.MapFS{
		"icons/logo.png": {Data: encodePNG(t, solidImage(16, 8, color.White))},
	}

	src := NewResourceSource(fsys, "icons/logo.png")
	if src.ID() != "res://icons/logo.png" {
		t.Errorf("ID: got %s", src.ID())
	}
	b, err := src.ProbeBounds()
	if err != nil {
		t.Fatalf("ProbeBounds failed: %v", err)
	}
	if b != (Bounds{16, 8}) {
		t.Errorf("ProbeBounds: got %v, want 16x8", b)
	}
	buf, err := src.DecodeAt(1, Alpha8, nil)
	if err != nil {
		t.Fatalf("DecodeAt failed: %v", err)
	}
	if buf.ByteCount() != 16*8 {
		t.Errorf("ByteCount: got %d, want %d", buf.ByteCount(), 16*8)
	}

	missing := NewResourceSource(fsys, "icons/none.png")
	if _, err := missing.ProbeBounds(); KindOf(err) != SourceNotFound {
		t.Errorf("missing resource: got %v, want SOURCE_NOT_FOUND", err)
	}
	dir := NewResourceSource(fsys, "icons")
	if _, err := dir.ProbeBounds(); KindOf(err) != SourceNotFound {
		t.Errorf("directory resource: got %v, want SOURCE_NOT_FOUND", err)
	}
	if _, err := NewResourceSource(nil, "x.png").ProbeBounds(); KindOf(err) != SourceNotFound {
		t.Errorf("nil filesystem: got %v, want SOURCE_NOT_FOUND", err)
	}
}

func TestDecodeAt_InvalidFactor(t *testing.T) {
	src := NewBytesSource("f", encodePNG(t, solidImage(8, 8, color.White)))

	for _, factor := range []int{0, -2, 3, 6} {
		if _, err := src.DecodeAt(factor, RGB565, nil); err == nil {
			t.Errorf("DecodeAt(%d) should fail", factor)
		}
	}
}

func TestDecodeAt_CeilingSize(t *testing.T) {
	src := NewBytesSource("odd", encodePNG(t, solidImage(33, 17, color.White)))

	tests := []struct {
		factor int
		want   Bounds
	}{
		{1, Bounds{33, 17}},
		{2, Bounds{17, 9}},
		{4, Bounds{9, 5}},
		{16, Bounds{3, 2}},
		{64, Bounds{1, 1}},
	}

	for _, tt := range tests {
		buf, err := src.DecodeAt(tt.factor, RGB565, nil)
		if err != nil {
			t.Fatalf("DecodeAt(%d) failed: %v", tt.factor, err)
		}
		if buf.Size() != tt.want {
			t.Errorf("DecodeAt(%d): got %v, want %v", tt.factor, buf.Size(), tt.want)
		}
	}
}
