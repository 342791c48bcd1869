package imaging

import (
	"image/color"
	"os"
)

// ImageInfo contains metadata read from an image header.
//
// It is produced without decoding any pixels, so it is cheap to call for
// images of any size.
type ImageInfo struct {
	// Source is the identifier of the probed source.
	Source string `json:"source"`

	// Width is the natural image width in pixels.
	Width int `json:"width"`

	// Height is the natural image height in pixels.
	Height int `json:"height"`

	// Format is the detected container: "jpeg", "png", "gif", "bmp",
	// "tiff" or "webp". Detection is based on file contents.
	Format string `json:"format"`

	// ColorDepth indicates the bit depth per channel: "8-bit" or "16-bit".
	ColorDepth string `json:"color_depth"`

	// HasAlpha indicates whether the color model carries transparency.
	HasAlpha bool `json:"has_alpha"`

	// FileSizeBytes is the size of the file on disk, or of the in-memory
	// data. It is 0 for resources.
	FileSizeBytes int64 `json:"file_size_bytes"`
}

// Inspect probes src and returns its header metadata.
//
// Errors are the same as for Source.ProbeBounds: SourceNotFound for missing
// files or resources and MalformedData for unrecognised bytes.
func Inspect(src Source) (*ImageInfo, error) {
	rc, err := src.open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	cfg, format, err := probeConfig(rc)
	if err != nil {
		return nil, malformed(src.ID(), err)
	}

	info := &ImageInfo{
		Source:     src.ID(),
		Width:      cfg.Width,
		Height:     cfg.Height,
		Format:     format,
		ColorDepth: "8-bit",
	}

	switch cfg.ColorModel {
	case color.RGBAModel, color.NRGBAModel, color.AlphaModel:
		info.HasAlpha = true
	case color.RGBA64Model, color.NRGBA64Model, color.Alpha16Model:
		info.HasAlpha = true
		info.ColorDepth = "16-bit"
	case color.Gray16Model:
		info.ColorDepth = "16-bit"
	default:
		if p, ok := cfg.ColorModel.(color.Palette); ok {
			info.HasAlpha = paletteHasAlpha(p)
		}
	}

	switch s := src.(type) {
	case *BytesSource:
		info.FileSizeBytes = int64(len(s.Data))
	case *FileSource:
		if stat, err := os.Stat(s.Path); err == nil {
			info.FileSizeBytes = stat.Size()
		}
	}

	return info, nil
}

func paletteHasAlpha(p color.Palette) bool {
	for _, c := range p {
		if _, _, _, a := c.RGBA(); a != 0xffff {
			return true
		}
	}
	return false
}
