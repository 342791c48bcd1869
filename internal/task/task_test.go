package task

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"path/filepath"
	"testing"
	"time"

	"github.com/ironsheep/image-decode/internal/cache"
	"github.com/ironsheep/image-decode/internal/imaging"
)

func pngSource(t *testing.T, id string, width, height int) *imaging.BytesSource {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), 100, 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode image: %v", err)
	}
	return imaging.NewBytesSource(id, buf.Bytes())
}

func jpegSource(t *testing.T, id string, width, height int) *imaging.BytesSource {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("failed to encode image: %v", err)
	}
	return imaging.NewBytesSource(id, buf.Bytes())
}

func newTestDecoder(c *cache.LRU) *Decoder {
	p := imaging.NewPipeline(imaging.WithThrottle(imaging.NewThrottle()))
	return New(p, c, nil)
}

func TestDecoder_Submit(t *testing.T) {
	d := newTestDecoder(cache.New(1 << 20))
	req := Request{
		Source:     pngSource(t, "https://example.com/a.png", 200, 100),
		Constraint: imaging.SizeConstraint{MaxWidth: 50, MaxHeight: 50},
		Policy:     imaging.FitCenterInside,
		Format:     imaging.RGB565,
	}

	resp, err := d.Submit(req)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if resp.FromCache {
		t.Error("first submit should decode")
	}
	if resp.ID != "https://example.com/a.png" {
		t.Errorf("ID: got %s", resp.ID)
	}
	if resp.RequestID == "" {
		t.Error("RequestID should be set")
	}
	if resp.Buffer.Size() != (imaging.Bounds{Width: 50, Height: 25}) {
		t.Errorf("size: got %v, want 50x25", resp.Buffer.Size())
	}
	if resp.Natural != (imaging.Bounds{Width: 200, Height: 100}) || resp.SampleFactor != 4 {
		t.Errorf("details: natural %v factor %d", resp.Natural, resp.SampleFactor)
	}

	again, err := d.Submit(req)
	if err != nil {
		t.Fatalf("second Submit failed: %v", err)
	}
	if !again.FromCache {
		t.Error("second submit should be a cache hit")
	}
	if again.Buffer != resp.Buffer {
		t.Error("cache hit should return the stored buffer")
	}
	if again.RequestID == resp.RequestID {
		t.Error("each submit should get its own request id")
	}
}

func TestDecoder_Submit_KeyIncludesParameters(t *testing.T) {
	c := cache.New(1 << 20)
	d := newTestDecoder(c)
	src := pngSource(t, "shared", 64, 64)

	for _, req := range []Request{
		{Source: src, Constraint: imaging.SizeConstraint{MaxWidth: 32}, Format: imaging.RGB565},
		{Source: src, Constraint: imaging.SizeConstraint{MaxWidth: 16}, Format: imaging.RGB565},
		{Source: src, Constraint: imaging.SizeConstraint{MaxWidth: 16}, Format: imaging.ARGB8888},
		{Source: src, Constraint: imaging.SizeConstraint{MaxWidth: 16}, Policy: imaging.FitXY, Format: imaging.ARGB8888},
	} {
		resp, err := d.Submit(req)
		if err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
		if resp.FromCache {
			t.Errorf("%s should not hit another request's entry", req.CacheKey())
		}
	}
	if c.Len() != 4 {
		t.Errorf("cache entries: got %d, want 4", c.Len())
	}
}

func TestDecoder_Submit_NoCache(t *testing.T) {
	d := newTestDecoder(nil)
	req := Request{Source: pngSource(t, "x", 10, 10), Format: imaging.ARGB8888}

	for i := 0; i < 2; i++ {
		resp, err := d.Submit(req)
		if err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
		if resp.FromCache {
			t.Error("decoder without cache should always decode")
		}
	}
	if d.Cache() != nil {
		t.Error("Cache() should be nil")
	}
}

func TestDecoder_Submit_MetaPassThrough(t *testing.T) {
	d := newTestDecoder(cache.New(1 << 20))
	meta := &CacheMeta{
		ETag:       `"abc"`,
		ServerDate: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		TTL:        time.Date(2024, 5, 2, 12, 0, 0, 0, time.UTC),
		Headers:    map[string]string{"Cache-Control": "max-age=86400"},
	}
	req := Request{Source: pngSource(t, "meta", 10, 10), Meta: meta}

	for i := 0; i < 2; i++ {
		resp, err := d.Submit(req)
		if err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
		if resp.Meta != meta {
			t.Errorf("submit %d: metadata should be passed through unchanged", i)
		}
	}
}

func TestDecoder_Submit_Errors(t *testing.T) {
	d := newTestDecoder(cache.New(1 << 20))

	tests := []struct {
		name string
		req  Request
		want error
	}{
		{"no source", Request{}, ErrNoSource},
		{"missing file", Request{Source: imaging.NewFileSource(filepath.Join(t.TempDir(), "gone.png"))}, imaging.ErrSourceNotFound},
		{"malformed", Request{Source: imaging.NewBytesSource("bad", []byte("nope"))}, imaging.ErrMalformedData},
		{"unsupported", Request{Source: pngSource(t, "f16", 4, 4), Format: imaging.RGBAF16}, imaging.ErrUnsupportedFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := d.Submit(tt.req)
			if !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
			if resp != nil {
				t.Error("failed submit should not return a response")
			}
		})
	}

	if n := d.Cache().Len(); n != 0 {
		t.Errorf("failures should not be cached, got %d entries", n)
	}
}

func TestDecoder_Submit_OutOfMemory(t *testing.T) {
	throttle := imaging.NewThrottle()
	p := imaging.NewPipeline(
		imaging.WithThrottle(throttle),
		imaging.WithAllocator(imaging.BudgetAllocator{Limit: 2000}),
	)
	d := New(p, cache.New(1<<20), nil)
	src := jpegSource(t, "big.jpg", 160, 160)

	_, err := d.Submit(Request{Source: src, Format: imaging.ARGB8888})
	if imaging.KindOf(err) != imaging.DecodeOutOfMemory {
		t.Fatalf("got %v, want DECODE_OUT_OF_MEMORY", err)
	}
	if !throttle.Idle() {
		t.Error("throttle should be free after an out-of-memory failure")
	}

	// A smaller request decodes at 1/8 scale and fits the budget.
	resp, err := d.Submit(Request{
		Source:     src,
		Constraint: imaging.SizeConstraint{MaxWidth: 16, MaxHeight: 16},
		Format:     imaging.ARGB8888,
	})
	if err != nil {
		t.Fatalf("retry with smaller bounds failed: %v", err)
	}
	if resp.Buffer.Size() != (imaging.Bounds{Width: 16, Height: 16}) {
		t.Errorf("size: got %v, want 16x16", resp.Buffer.Size())
	}
	if resp.Buffer.ByteCount() > 2000 {
		t.Errorf("buffer of %d bytes exceeds budget", resp.Buffer.ByteCount())
	}
}

func TestRequest_CacheKey(t *testing.T) {
	r := Request{
		ID:         "https://example.com/x.jpg",
		Constraint: imaging.SizeConstraint{MaxWidth: 320, MaxHeight: 240},
		Policy:     imaging.FitCenterCrop,
		Format:     imaging.ARGB8888,
	}
	if got, want := r.CacheKey(), "#W320#H240#S3#F1https://example.com/x.jpg"; got != want {
		t.Errorf("CacheKey: got %s, want %s", got, want)
	}

	r.ID = ""
	r.Source = imaging.NewFileSource("/tmp/y.png")
	if got, want := r.CacheKey(), "#W320#H240#S3#F1/tmp/y.png"; got != want {
		t.Errorf("CacheKey from source: got %s, want %s", got, want)
	}
}

func TestRequest_Forward(t *testing.T) {
	var got []int
	r := Request{Progress: func(percent int, transferred, total, elapsed int64, retries int) {
		got = append(got, percent)
		if total != 1000 || retries != 2 {
			t.Errorf("fields not forwarded: total %d retries %d", total, retries)
		}
	}}

	for _, p := range []int{-5, 0, 42, 100, 130} {
		r.Forward(p, 10, 1000, 5, 2)
	}

	want := []int{0, 0, 42, 100, 100}
	if len(got) != len(want) {
		t.Fatalf("got %d events, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d: got %d, want %d", i, got[i], want[i])
		}
	}

	var silent Request
	silent.Forward(50, 1, 2, 3, 0) // nil sink must not panic
}
