package imaging

import (
	"image"
	"image/color"
	"image/draw"
	"testing"
)

func TestParsePixelFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    PixelFormat
		wantErr bool
	}{
		{"", RGB565, false},
		{"RGB_565", RGB565, false},
		{"rgb565", RGB565, false},
		{"ARGB_8888", ARGB8888, false},
		{"argb-8888", ARGB8888, false},
		{"ALPHA_8", Alpha8, false},
		{"RGBA_F16", RGBAF16, false},
		{"CMYK", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePixelFormat(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParsePixelFormat(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParsePixelFormat(%q) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}

func TestPixelFormat_BytesPerPixel(t *testing.T) {
	tests := []struct {
		format    PixelFormat
		bpp       int
		supported bool
	}{
		{RGB565, 2, true},
		{ARGB8888, 4, true},
		{Alpha8, 1, true},
		{RGBAF16, 0, false},
		{PixelFormat(42), 0, false},
	}

	for _, tt := range tests {
		if got := tt.format.BytesPerPixel(); got != tt.bpp {
			t.Errorf("%s.BytesPerPixel() = %d, want %d", tt.format, got, tt.bpp)
		}
		if got := tt.format.Supported(); got != tt.supported {
			t.Errorf("%s.Supported() = %v, want %v", tt.format, got, tt.supported)
		}
	}
}

func TestPackImage_RGB565(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 1))
	img.Set(0, 0, color.RGBA{255, 0, 0, 255})
	img.Set(1, 0, color.RGBA{0, 255, 255, 255})

	buf, err := packImage(img, RGB565, BudgetAllocator{})
	if err != nil {
		t.Fatalf("packImage failed: %v", err)
	}
	if buf.Stride != 4 || len(buf.Pix) != 4 {
		t.Fatalf("layout: stride %d, %d bytes", buf.Stride, len(buf.Pix))
	}
	// Little endian 0xF800 then 0x07FF.
	want := []byte{0x00, 0xF8, 0xFF, 0x07}
	for i := range want {
		if buf.Pix[i] != want[i] {
			t.Errorf("Pix[%d] = %#02x, want %#02x", i, buf.Pix[i], want[i])
		}
	}

	if c := buf.At(0, 0).(color.RGBA); c != (color.RGBA{255, 0, 0, 255}) {
		t.Errorf("At(0, 0) = %v, want opaque red", c)
	}
	if c := buf.At(1, 0).(color.RGBA); c != (color.RGBA{0, 255, 255, 255}) {
		t.Errorf("At(1, 0) = %v, want opaque cyan", c)
	}
}

func TestPackImage_ARGB8888Premultiplied(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	img.Set(0, 0, color.NRGBA{255, 0, 0, 128})

	buf, err := packImage(img, ARGB8888, BudgetAllocator{})
	if err != nil {
		t.Fatalf("packImage failed: %v", err)
	}
	if buf.Pix[3] != 128 {
		t.Errorf("alpha: got %d, want 128", buf.Pix[3])
	}
	if buf.Pix[0] < 127 || buf.Pix[0] > 128 {
		t.Errorf("red should be premultiplied to ~128, got %d", buf.Pix[0])
	}
}

func TestPackImage_Alpha8(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 3, 1))
	img.Set(0, 0, color.NRGBA{0, 0, 0, 0})
	img.Set(1, 0, color.NRGBA{10, 20, 30, 77})
	img.Set(2, 0, color.NRGBA{255, 255, 255, 255})

	buf, err := packImage(img, Alpha8, BudgetAllocator{})
	if err != nil {
		t.Fatalf("packImage failed: %v", err)
	}
	want := []byte{0, 77, 255}
	for i := range want {
		if buf.Pix[i] != want[i] {
			t.Errorf("Pix[%d] = %d, want %d", i, buf.Pix[i], want[i])
		}
	}
	if _, ok := buf.At(1, 0).(color.Alpha); !ok {
		t.Errorf("At should return color.Alpha, got %T", buf.At(1, 0))
	}
}

func TestPackImage_OffsetBounds(t *testing.T) {
	base := solidImage(20, 20, color.White)
	draw.Draw(base, image.Rect(10, 10, 20, 20), image.NewUniform(color.Black), image.Point{}, draw.Src)
	sub := base.SubImage(image.Rect(10, 10, 20, 20))

	for _, format := range []PixelFormat{RGB565, ARGB8888} {
		buf, err := packImage(sub, format, BudgetAllocator{})
		if err != nil {
			t.Fatalf("packImage(%s) failed: %v", format, err)
		}
		if buf.Size() != (Bounds{10, 10}) {
			t.Errorf("%s: size %v, want 10x10", format, buf.Size())
		}
		if r, _, _, _ := buf.At(0, 0).RGBA(); r != 0 {
			t.Errorf("%s: origin should be black, got r=%d", format, r)
		}
	}
}

func TestPackImage_Unsupported(t *testing.T) {
	_, err := packImage(solidImage(2, 2, color.White), RGBAF16, BudgetAllocator{})
	if KindOf(err) != UnsupportedFormat {
		t.Errorf("got %v, want UNSUPPORTED_FORMAT", err)
	}
}

func TestRasterBuffer_Release(t *testing.T) {
	buf, err := packImage(solidImage(4, 4, color.White), ARGB8888, BudgetAllocator{})
	if err != nil {
		t.Fatal(err)
	}
	if buf.Released() || buf.ByteCount() != 64 {
		t.Fatalf("fresh buffer: released %v, %d bytes", buf.Released(), buf.ByteCount())
	}

	buf.Release()
	if !buf.Released() || buf.ByteCount() != 0 {
		t.Errorf("after Release: released %v, %d bytes", buf.Released(), buf.ByteCount())
	}
	if c := buf.At(0, 0); c != (color.RGBA{}) {
		t.Errorf("released buffer At = %v, want zero", c)
	}

	var nilBuf *RasterBuffer
	if !nilBuf.Released() || nilBuf.ByteCount() != 0 {
		t.Error("nil buffer should report released and empty")
	}
}

func TestRasterBuffer_AverageColor(t *testing.T) {
	tests := []struct {
		name   string
		img    image.Image
		format PixelFormat
		want   string
	}{
		{"red", solidImage(8, 8, color.RGBA{255, 0, 0, 255}), ARGB8888, "#ff0000"},
		{"white 565", solidImage(8, 8, color.White), RGB565, "#ffffff"},
		{"transparent", image.NewRGBA(image.Rect(0, 0, 4, 4)), ARGB8888, "#000000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf, err := packImage(tt.img, tt.format, BudgetAllocator{})
			if err != nil {
				t.Fatal(err)
			}
			if got := buf.AverageColor(); got != tt.want {
				t.Errorf("AverageColor() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestRasterBuffer_AverageColorLinear(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 1))
	img.Set(0, 0, color.Black)
	img.Set(1, 0, color.White)

	buf, err := packImage(img, ARGB8888, BudgetAllocator{})
	if err != nil {
		t.Fatal(err)
	}
	// Half intensity in linear light is brighter than #808080 in sRGB.
	if got := buf.AverageColor(); got <= "#808080" {
		t.Errorf("AverageColor() = %s, want brighter than #808080", got)
	}
}
