package imaging

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif" // Register GIF format decoder
	_ "image/png" // Register PNG format decoder
	"io"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/jpegn"
	_ "golang.org/x/image/bmp"  // Register BMP format decoder
	_ "golang.org/x/image/tiff" // Register TIFF format decoder
	_ "golang.org/x/image/webp" // Register WebP format decoder
)

// maxJPEGScale is the largest denominator the scaled JPEG IDCT supports.
const maxJPEGScale = 8

// decodeFootprintBPP is the bytes per pixel a container decoder allocates
// before the result is packed into the requested format.
const decodeFootprintBPP = 4

func isJPEG(head []byte) bool {
	return len(head) >= 2 && head[0] == 0xFF && head[1] == 0xD8
}

// probeReader reads only the header of an image and returns its natural
// bounds and container name. No pixel storage is allocated.
func probeReader(r io.Reader) (Bounds, string, error) {
	cfg, name, err := probeConfig(r)
	if err != nil {
		return Bounds{}, "", err
	}
	return Bounds{Width: cfg.Width, Height: cfg.Height}, name, nil
}

func probeConfig(r io.Reader) (image.Config, string, error) {
	br := bufio.NewReader(r)
	head, _ := br.Peek(2)

	var (
		cfg  image.Config
		name string
		err  error
	)
	if isJPEG(head) {
		name = "jpeg"
		cfg, err = jpegn.DecodeConfig(br)
	} else {
		cfg, name, err = image.DecodeConfig(br)
	}
	if err != nil {
		return image.Config{}, "", err
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return image.Config{}, "", fmt.Errorf("invalid image bounds %dx%d", cfg.Width, cfg.Height)
	}
	return cfg, name, nil
}

// decodeBytes decodes data at 1/factor of its natural size and packs the
// result into format.
//
// JPEG is decoded directly at the reduced size with the scaled IDCT, up to
// 1/8. Whatever reduction remains, and every other container, is finished
// with a box filter so the output is ceil(natural/factor) in each axis.
func decodeBytes(id string, data []byte, factor int, format PixelFormat, alloc Allocator) (*RasterBuffer, error) {
	natural, container, err := probeReader(bytes.NewReader(data))
	if err != nil {
		return nil, malformed(id, err)
	}

	scale := 1
	if container == "jpeg" {
		scale = factor
		if scale > maxJPEGScale {
			scale = maxJPEGScale
		}
	}

	decoded := sampledSize(natural, scale)
	footprint := rasterBytes(decoded.Width, decoded.Height, decodeFootprintBPP)
	if err := alloc.Admit(footprint); err != nil {
		return nil, outOfMemory(id, footprint, err)
	}

	var img image.Image
	err = guardAlloc(func() error {
		var derr error
		img, derr = decodeContainer(data, container, scale)
		return derr
	})
	if err != nil {
		if isAllocFailure(err) || errors.Is(err, jpegn.ErrOutOfMemory) {
			return nil, outOfMemory(id, footprint, err)
		}
		return nil, malformed(id, err)
	}
	if img == nil {
		return nil, malformed(id, ErrNoPixels)
	}

	target := sampledSize(natural, factor)
	if b := img.Bounds(); b.Dx() > target.Width || b.Dy() > target.Height {
		img = imaging.Resize(img, target.Width, target.Height, imaging.Box)
	}

	var rb *RasterBuffer
	err = guardAlloc(func() error {
		var perr error
		rb, perr = packImage(img, format, alloc)
		return perr
	})
	if err != nil {
		return nil, withSource(err, id, rasterBytes(target.Width, target.Height, format.BytesPerPixel()))
	}
	return rb, nil
}

func decodeContainer(data []byte, container string, scale int) (image.Image, error) {
	if container == "jpeg" {
		return jpegn.Decode(bytes.NewReader(data), &jpegn.Options{
			ScaleDenom:     scale,
			ToRGBA:         true,
			UpsampleMethod: jpegn.CatmullRom,
		})
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	return img, err
}

// withSource fills in the source of a DecodeError, converting recovered
// allocation panics into DecodeOutOfMemory.
func withSource(err error, id string, n int64) error {
	var de *DecodeError
	if errors.As(err, &de) {
		if de.Source == "" {
			de.Source = id
		}
		return de
	}
	if isAllocFailure(err) {
		return outOfMemory(id, n, err)
	}
	return malformed(id, err)
}
