package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image/png"

	"github.com/disintegration/imaging"
)

// EncodedImage is a raster encoded as base64 PNG.
type EncodedImage struct {
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	ImageBase64 string `json:"image_base64"`
	MimeType    string `json:"mime_type"`
}

// EncodePNG encodes buf as a base64 PNG.
func EncodePNG(buf *RasterBuffer) (*EncodedImage, error) {
	if buf.Released() {
		return nil, fmt.Errorf("cannot encode a released buffer")
	}

	var out bytes.Buffer
	if err := png.Encode(&out, buf.rgbaView()); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}

	return &EncodedImage{
		Width:       buf.Width,
		Height:      buf.Height,
		ImageBase64: base64.StdEncoding.EncodeToString(out.Bytes()),
		MimeType:    "image/png",
	}, nil
}

// CropCenter trims buf to the bounds of c around its center. It is the
// post-decode step for FitCenterCrop, which may overflow one bound.
//
// Unbounded axes and axes already within their bound are left alone. When
// nothing needs trimming buf itself is returned; otherwise buf is left
// untouched and a new buffer is returned.
func CropCenter(buf *RasterBuffer, c SizeConstraint, alloc Allocator) (*RasterBuffer, error) {
	if buf.Released() {
		return nil, fmt.Errorf("cannot crop a released buffer")
	}

	w, h := buf.Width, buf.Height
	if c.MaxWidth > 0 && c.MaxWidth < w {
		w = c.MaxWidth
	}
	if c.MaxHeight > 0 && c.MaxHeight < h {
		h = c.MaxHeight
	}
	if w == buf.Width && h == buf.Height {
		return buf, nil
	}
	if alloc == nil {
		alloc = BudgetAllocator{}
	}

	cropped := imaging.CropCenter(buf.rgbaView(), w, h)
	return packImage(cropped, buf.Format, alloc)
}
