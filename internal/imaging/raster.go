package imaging

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"strings"

	"github.com/anthonynsimon/bild/clone"
	"github.com/lucasb-eyer/go-colorful"
)

// PixelFormat is the in-memory layout of a RasterBuffer. It is chosen by the
// caller and passed through to the decoder unchanged.
type PixelFormat int

const (
	// RGB565 packs opaque colour into 16 bits per pixel, little endian.
	RGB565 PixelFormat = iota

	// ARGB8888 stores premultiplied R, G, B, A bytes per pixel.
	ARGB8888

	// Alpha8 stores only the alpha channel, one byte per pixel.
	Alpha8

	// RGBAF16 is recognised but cannot be produced by any decoder here.
	RGBAF16
)

// DefaultPixelFormat is used when a request does not name one.
const DefaultPixelFormat = RGB565

var pixelFormatNames = map[PixelFormat]string{
	RGB565:   "RGB_565",
	ARGB8888: "ARGB_8888",
	Alpha8:   "ALPHA_8",
	RGBAF16:  "RGBA_F16",
}

func (f PixelFormat) String() string {
	if name, ok := pixelFormatNames[f]; ok {
		return name
	}
	return fmt.Sprintf("PixelFormat(%d)", int(f))
}

// ParsePixelFormat parses names like "ARGB_8888" or "rgb565". An empty
// string yields DefaultPixelFormat.
func ParsePixelFormat(s string) (PixelFormat, error) {
	norm := strings.ToUpper(strings.NewReplacer("_", "", "-", "", " ", "").Replace(s))
	if norm == "" {
		return DefaultPixelFormat, nil
	}
	for f, name := range pixelFormatNames {
		if strings.ReplaceAll(name, "_", "") == norm {
			return f, nil
		}
	}
	return 0, fmt.Errorf("unknown pixel format: %q", s)
}

// BytesPerPixel returns the storage size of one pixel, or 0 if the format
// cannot be decoded to.
func (f PixelFormat) BytesPerPixel() int {
	switch f {
	case RGB565:
		return 2
	case ARGB8888:
		return 4
	case Alpha8:
		return 1
	default:
		return 0
	}
}

// Supported reports whether decoders can produce this format.
func (f PixelFormat) Supported() bool {
	return f.BytesPerPixel() > 0
}

// RasterBuffer is a decoded image that owns its pixel storage.
//
// It implements image.Image so it can be encoded or resampled directly.
// Buffers handed out by the cache are shared and must not be modified.
type RasterBuffer struct {
	Pix    []byte
	Stride int
	Width  int
	Height int
	Format PixelFormat
}

// newRaster allocates a w x h buffer through alloc.
func newRaster(w, h int, format PixelFormat, alloc Allocator) (*RasterBuffer, error) {
	bpp := format.BytesPerPixel()
	n := rasterBytes(w, h, bpp)
	pix, err := alloc.Alloc(n)
	if err != nil {
		return nil, outOfMemory("", n, err)
	}
	return &RasterBuffer{
		Pix:    pix,
		Stride: w * bpp,
		Width:  w,
		Height: h,
		Format: format,
	}, nil
}

// ByteCount is the memory footprint of the pixel storage.
func (b *RasterBuffer) ByteCount() int {
	if b == nil {
		return 0
	}
	return len(b.Pix)
}

// Release drops the pixel storage. The buffer must not be used afterwards.
func (b *RasterBuffer) Release() {
	if b != nil {
		b.Pix = nil
	}
}

// Released reports whether Release has been called.
func (b *RasterBuffer) Released() bool {
	return b == nil || b.Pix == nil
}

// Size returns the buffer dimensions.
func (b *RasterBuffer) Size() Bounds {
	return Bounds{Width: b.Width, Height: b.Height}
}

func (b *RasterBuffer) ColorModel() color.Model {
	switch b.Format {
	case Alpha8:
		return color.AlphaModel
	default:
		return color.RGBAModel
	}
}

func (b *RasterBuffer) Bounds() image.Rectangle {
	return image.Rect(0, 0, b.Width, b.Height)
}

func (b *RasterBuffer) At(x, y int) color.Color {
	if x < 0 || y < 0 || x >= b.Width || y >= b.Height || b.Pix == nil {
		return color.RGBA{}
	}
	switch b.Format {
	case ARGB8888:
		i := y*b.Stride + x*4
		return color.RGBA{R: b.Pix[i], G: b.Pix[i+1], B: b.Pix[i+2], A: b.Pix[i+3]}
	case RGB565:
		i := y*b.Stride + x*2
		v := uint16(b.Pix[i]) | uint16(b.Pix[i+1])<<8
		r := uint8(v >> 11 & 0x1f)
		g := uint8(v >> 5 & 0x3f)
		bl := uint8(v & 0x1f)
		return color.RGBA{
			R: r<<3 | r>>2,
			G: g<<2 | g>>4,
			B: bl<<3 | bl>>2,
			A: 0xff,
		}
	case Alpha8:
		return color.Alpha{A: b.Pix[y*b.Stride+x]}
	default:
		return color.RGBA{}
	}
}

// rgbaView exposes an ARGB8888 buffer as *image.RGBA without copying, so the
// resampler can take its fast path. Other formats are returned as-is.
func (b *RasterBuffer) rgbaView() image.Image {
	if b.Format != ARGB8888 {
		return b
	}
	return &image.RGBA{Pix: b.Pix, Stride: b.Stride, Rect: b.Bounds()}
}

// AverageColor returns the mean colour of the buffer as "#rrggbb", averaged
// in linear RGB. Fully transparent pixels are ignored. It is used as a
// placeholder colour while the real image is not yet shown.
func (b *RasterBuffer) AverageColor() string {
	var lr, lg, lb float64
	var n int
	for y := 0; y < b.Height; y++ {
		for x := 0; x < b.Width; x++ {
			c, ok := colorful.MakeColor(b.At(x, y))
			if !ok {
				continue
			}
			r, g, bl := c.LinearRgb()
			lr += r
			lg += g
			lb += bl
			n++
		}
	}
	if n == 0 {
		return "#000000"
	}
	f := float64(n)
	return colorful.LinearRgb(lr/f, lg/f, lb/f).Clamped().Hex()
}

// packImage copies img into a new buffer of the given format.
func packImage(img image.Image, format PixelFormat, alloc Allocator) (*RasterBuffer, error) {
	if !format.Supported() {
		return nil, &DecodeError{Kind: UnsupportedFormat, Err: fmt.Errorf("pixel format %s", format)}
	}
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= 0 || h <= 0 {
		return nil, malformed("", ErrNoPixels)
	}

	rb, err := newRaster(w, h, format, alloc)
	if err != nil {
		return nil, err
	}

	if format == ARGB8888 {
		dst := &image.RGBA{Pix: rb.Pix, Stride: rb.Stride, Rect: rb.Bounds()}
		draw.Draw(dst, dst.Rect, img, bounds.Min, draw.Src)
		return rb, nil
	}

	src := asRGBA(img)
	for y := 0; y < h; y++ {
		srow := src.Pix[y*src.Stride : y*src.Stride+w*4]
		drow := rb.Pix[y*rb.Stride : y*rb.Stride+rb.Stride]
		for x := 0; x < w; x++ {
			s := srow[x*4 : x*4+4]
			switch format {
			case RGB565:
				v := uint16(s[0]>>3)<<11 | uint16(s[1]>>2)<<5 | uint16(s[2]>>3)
				drow[x*2] = byte(v)
				drow[x*2+1] = byte(v >> 8)
			case Alpha8:
				drow[x] = s[3]
			}
		}
	}
	return rb, nil
}

// asRGBA returns img as an *image.RGBA whose Pix starts at its top-left
// pixel, converting when needed.
func asRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Rect.Min == (image.Point{}) {
		return rgba
	}
	return clone.AsRGBA(img)
}
