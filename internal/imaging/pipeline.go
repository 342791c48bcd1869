package imaging

import (
	"errors"
	"fmt"

	"github.com/disintegration/imaging"
	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

// Pipeline decodes sources to a requested size with a bounded memory peak.
//
// It probes the natural bounds, resolves the target size, decodes at the
// largest power-of-two sample factor that stays at or above that size, and
// only then resamples down to the exact target. The decode and the rescale
// run under the throttle.
type Pipeline struct {
	throttle *Throttle
	alloc    Allocator
	logger   *zap.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithThrottle replaces DefaultThrottle. Intended for tests.
func WithThrottle(t *Throttle) Option {
	return func(p *Pipeline) { p.throttle = t }
}

// WithAllocator sets the allocator for pixel storage.
func WithAllocator(a Allocator) Option {
	return func(p *Pipeline) { p.alloc = a }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// NewPipeline returns a Pipeline using DefaultThrottle and a BudgetAllocator
// with the default limit.
func NewPipeline(opts ...Option) *Pipeline {
	p := &Pipeline{
		throttle: DefaultThrottle,
		alloc:    BudgetAllocator{},
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Throttle returns the throttle this pipeline serializes on.
func (p *Pipeline) Throttle() *Throttle { return p.throttle }

// Decoded describes a successful decode.
type Decoded struct {
	Buffer *RasterBuffer

	// Natural is the probed size of the source. For unconstrained decodes it
	// equals the buffer size.
	Natural Bounds

	// Target is the resolved size the buffer was fitted to.
	Target Bounds

	// SampleFactor is the power-of-two divisor used for the decode.
	SampleFactor int

	// Rescaled is true when the sampled decode overshot and was resampled.
	Rescaled bool
}

// Decode returns src decoded to fit c under policy, in the given format.
func (p *Pipeline) Decode(src Source, c SizeConstraint, policy FitPolicy, format PixelFormat) (*RasterBuffer, error) {
	d, err := p.DecodeDetailed(src, c, policy, format)
	if err != nil {
		return nil, err
	}
	return d.Buffer, nil
}

// DecodeDetailed is Decode, also reporting the sizes and sample factor used.
func (p *Pipeline) DecodeDetailed(src Source, c SizeConstraint, policy FitPolicy, format PixelFormat) (*Decoded, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if !format.Supported() {
		return nil, &DecodeError{Kind: UnsupportedFormat, Source: src.ID(), Err: fmt.Errorf("pixel format %s", format)}
	}

	d := &Decoded{SampleFactor: 1}
	constrained := !c.Unconstrained()
	if constrained {
		natural, err := src.ProbeBounds()
		if err != nil {
			return nil, err
		}
		d.Natural = natural
		d.Target = ResolveSize(c, natural, policy)
		// Truncation can reach zero for extreme aspect ratios.
		if d.Target.Width < 1 {
			d.Target.Width = 1
		}
		if d.Target.Height < 1 {
			d.Target.Height = 1
		}
		d.SampleFactor = SelectSampleFactor(natural.Width, natural.Height, d.Target.Width, d.Target.Height)
	}

	err := p.throttle.Do(func() error {
		buf, err := src.DecodeAt(d.SampleFactor, format, p.alloc)
		if err != nil {
			return err
		}
		if buf == nil {
			return malformed(src.ID(), ErrNoPixels)
		}

		if !constrained {
			d.Natural = buf.Size()
			d.Target = buf.Size()
			d.Buffer = buf
			return nil
		}

		if buf.Width <= d.Target.Width && buf.Height <= d.Target.Height {
			d.Buffer = buf
			return nil
		}

		scaled, err := p.rescale(buf, d.Target, format)
		buf.Release()
		if err != nil {
			return withSource(err, src.ID(), rasterBytes(d.Target.Width, d.Target.Height, format.BytesPerPixel()))
		}
		d.Buffer = scaled
		d.Rescaled = true
		return nil
	})
	if err != nil {
		var de *DecodeError
		if errors.As(err, &de) && de.Kind == DecodeOutOfMemory {
			p.logger.Error("caught out-of-memory during decode",
				zap.String("source", src.ID()),
				zap.Int64("bytes", de.Bytes),
				zap.String("size", humanize.IBytes(uint64(max(de.Bytes, 0)))),
				zap.Error(de.Err),
			)
		}
		return nil, err
	}

	p.logger.Debug("decoded image",
		zap.String("source", src.ID()),
		zap.Stringer("natural", d.Natural),
		zap.Stringer("target", d.Target),
		zap.Int("sample_factor", d.SampleFactor),
		zap.Bool("rescaled", d.Rescaled),
		zap.Stringer("format", format),
		zap.String("size", humanize.IBytes(uint64(d.Buffer.ByteCount()))),
	)
	return d, nil
}

// rescale resamples buf to exactly size with a Lanczos filter.
func (p *Pipeline) rescale(buf *RasterBuffer, size Bounds, format PixelFormat) (*RasterBuffer, error) {
	var out *RasterBuffer
	err := guardAlloc(func() error {
		scratch := rasterBytes(size.Width, size.Height, decodeFootprintBPP)
		if err := p.alloc.Admit(scratch); err != nil {
			return outOfMemory("", scratch, err)
		}
		resized := imaging.Resize(buf.rgbaView(), size.Width, size.Height, imaging.Lanczos)
		var err error
		out, err = packImage(resized, format, p.alloc)
		return err
	})
	return out, err
}
