package imaging

import (
	"fmt"
	"strings"
)

// FitPolicy controls how a source aspect ratio is mapped into requested bounds.
type FitPolicy int

const (
	// FitNone fits the image within the bounds, like FitCenterInside.
	FitNone FitPolicy = iota

	// FitXY stretches to the requested bounds and ignores the aspect ratio.
	FitXY

	// FitCenterInside scales so that neither dimension exceeds its bound.
	FitCenterInside

	// FitCenterCrop scales so that both bounds are covered. The result may
	// overflow one bound; cropping it back is up to the caller.
	FitCenterCrop
)

var fitPolicyNames = map[FitPolicy]string{
	FitNone:         "none",
	FitXY:           "fit_xy",
	FitCenterInside: "center_inside",
	FitCenterCrop:   "center_crop",
}

func (p FitPolicy) String() string {
	if name, ok := fitPolicyNames[p]; ok {
		return name
	}
	return fmt.Sprintf("FitPolicy(%d)", int(p))
}

// ParseFitPolicy parses a policy name such as "center_crop" or "CENTER-INSIDE".
// An empty string yields FitCenterInside.
func ParseFitPolicy(s string) (FitPolicy, error) {
	name := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	if name == "" {
		return FitCenterInside, nil
	}
	for p, n := range fitPolicyNames {
		if n == name {
			return p, nil
		}
	}
	return FitNone, fmt.Errorf("unknown fit policy: %q", s)
}

// SizeConstraint holds the maximum requested dimensions. Zero in a field
// leaves that dimension unconstrained.
type SizeConstraint struct {
	MaxWidth  int `json:"max_width"`
	MaxHeight int `json:"max_height"`
}

// Unconstrained reports whether neither dimension is bounded.
func (c SizeConstraint) Unconstrained() bool {
	return c.MaxWidth == 0 && c.MaxHeight == 0
}

// Validate rejects negative bounds.
func (c SizeConstraint) Validate() error {
	if c.MaxWidth < 0 || c.MaxHeight < 0 {
		return fmt.Errorf("invalid size constraint %dx%d: bounds must be >= 0", c.MaxWidth, c.MaxHeight)
	}
	return nil
}

// Bounds is a pixel size. Natural bounds come from a bounds-only probe.
type Bounds struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (b Bounds) String() string {
	return fmt.Sprintf("%dx%d", b.Width, b.Height)
}

// ResolveDimension computes the target size of one axis.
//
// It is called once per axis with primary and secondary swapped, because each
// axis's target depends on the other axis's actual size. The result is
// truncated toward zero.
//
// Rules, in order:
//  1. Both bounds zero: the actual size is returned unchanged.
//  2. FitXY: maxPrimary if set, otherwise actualPrimary.
//  3. Only secondary bounded: primary is scaled by maxSecondary/actualSecondary.
//  4. Only primary bounded: maxPrimary.
//  5. Both bounded: maxPrimary, grown (FitCenterCrop) or shrunk (otherwise)
//     so the secondary axis covers or fits maxSecondary.
func ResolveDimension(maxPrimary, maxSecondary, actualPrimary, actualSecondary int, policy FitPolicy) int {
	if maxPrimary == 0 && maxSecondary == 0 {
		return actualPrimary
	}

	if policy == FitXY {
		if maxPrimary == 0 {
			return actualPrimary
		}
		return maxPrimary
	}

	if maxPrimary == 0 {
		ratio := float64(maxSecondary) / float64(actualSecondary)
		return int(float64(actualPrimary) * ratio)
	}

	if maxSecondary == 0 {
		return maxPrimary
	}

	ratio := float64(actualSecondary) / float64(actualPrimary)
	resized := maxPrimary

	if policy == FitCenterCrop {
		if float64(resized)*ratio < float64(maxSecondary) {
			resized = int(float64(maxSecondary) / ratio)
		}
		return resized
	}

	if float64(resized)*ratio > float64(maxSecondary) {
		resized = int(float64(maxSecondary) / ratio)
	}
	return resized
}

// ResolveSize resolves both axes of natural against c.
func ResolveSize(c SizeConstraint, natural Bounds, policy FitPolicy) Bounds {
	return Bounds{
		Width:  ResolveDimension(c.MaxWidth, c.MaxHeight, natural.Width, natural.Height, policy),
		Height: ResolveDimension(c.MaxHeight, c.MaxWidth, natural.Height, natural.Width, policy),
	}
}

// SelectSampleFactor returns the largest power of two n such that decoding
// at 1/n keeps the image at or above the desired size in both axes.
//
// Desired sizes must be positive; for anything else the factor is 1.
func SelectSampleFactor(actualWidth, actualHeight, desiredWidth, desiredHeight int) int {
	if desiredWidth <= 0 || desiredHeight <= 0 {
		return 1
	}
	wr := float64(actualWidth) / float64(desiredWidth)
	hr := float64(actualHeight) / float64(desiredHeight)
	ratio := wr
	if hr < ratio {
		ratio = hr
	}

	n := 1
	for float64(n*2) <= ratio {
		n *= 2
	}
	return n
}

// sampledSize is the size of a decode at 1/factor, rounded up per axis.
func sampledSize(natural Bounds, factor int) Bounds {
	return Bounds{
		Width:  ceilDiv(natural.Width, factor),
		Height: ceilDiv(natural.Height, factor),
	}
}

func ceilDiv(a, b int) int {
	if b <= 1 {
		return a
	}
	return (a + b - 1) / b
}
