// Package vision implements the pixel-comparison strategies that turn a
// (baseline, current) frame pair into a scene-change percentage.
//
// All algorithms operate on same-dimension RGBA buffers. Invoking one
// without a baseline, or with mismatched dimensions, is a contract violation
// at the call site and fails loudly rather than being absorbed.
package vision

import (
	"errors"
	"fmt"
	"image"
)

var (
	// ErrNoBaseline is returned when an algorithm is invoked before a
	// baseline frame has been captured.
	ErrNoBaseline = errors.New("baseline frame not set")

	// ErrNoCurrentFrame is returned when an algorithm is invoked before a
	// current frame has been sampled.
	ErrNoCurrentFrame = errors.New("current frame not set")

	// ErrDimensionMismatch is returned when baseline and current frames
	// do not share dimensions. Matching dimensions are the caller's
	// responsibility.
	ErrDimensionMismatch = errors.New("baseline and current frame dimensions differ")
)

// Default binary threshold cutoffs, expressed on the 0..255 grayscale range.
const (
	// DefaultDiffThreshold is the frame-differencing cutoff.
	DefaultDiffThreshold = 30

	// DefaultBackgroundThreshold is the higher background-subtraction
	// cutoff applied before morphological cleanup.
	DefaultBackgroundThreshold = 50
)

// CheckPair validates the baseline/current contract shared by every
// algorithm.
func CheckPair(baseline, current *image.RGBA) error {
	if baseline == nil {
		return ErrNoBaseline
	}
	if current == nil {
		return ErrNoCurrentFrame
	}
	if baseline.Bounds().Dx() != current.Bounds().Dx() || baseline.Bounds().Dy() != current.Bounds().Dy() {
		return fmt.Errorf("%w: baseline %dx%d, current %dx%d", ErrDimensionMismatch,
			baseline.Bounds().Dx(), baseline.Bounds().Dy(),
			current.Bounds().Dx(), current.Bounds().Dy())
	}
	return nil
}

// luma converts one RGB triple to its grayscale intensity using the usual
// Rec. 601 weights.
func luma(r, g, b uint8) uint8 {
	return uint8((299*uint32(r) + 587*uint32(g) + 114*uint32(b) + 500) / 1000)
}

// Grayscale converts an RGBA frame to an 8-bit grayscale buffer.
func Grayscale(img *image.RGBA) *image.Gray {
	b := img.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		src := img.Pix[y*img.Stride:]
		dst := out.Pix[y*out.Stride:]
		for x := 0; x < b.Dx(); x++ {
			i := x * 4
			dst[x] = luma(src[i], src[i+1], src[i+2])
		}
	}
	return out
}

// absDiffGray computes the per-channel absolute difference of two frames and
// collapses it to grayscale, mirroring a color absdiff followed by a
// grayscale conversion.
func absDiffGray(a, b *image.RGBA) *image.Gray {
	w, h := a.Bounds().Dx(), a.Bounds().Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		pa := a.Pix[y*a.Stride:]
		pb := b.Pix[y*b.Stride:]
		dst := out.Pix[y*out.Stride:]
		for x := 0; x < w; x++ {
			i := x * 4
			dr := absDiff8(pa[i], pb[i])
			dg := absDiff8(pa[i+1], pb[i+1])
			db := absDiff8(pa[i+2], pb[i+2])
			dst[x] = luma(dr, dg, db)
		}
	}
	return out
}

func absDiff8(a, b uint8) uint8 {
	if a > b {
		return a - b
	}
	return b - a
}

// Threshold produces a binary mask: pixels strictly above cutoff become 255,
// all others 0.
func Threshold(g *image.Gray, cutoff uint8) *image.Gray {
	out := image.NewGray(g.Bounds())
	for i, v := range g.Pix {
		if v > cutoff {
			out.Pix[i] = 255
		}
	}
	return out
}

// percentNonZero reports the share of non-zero pixels in a mask, in percent.
func percentNonZero(g *image.Gray) float64 {
	total := g.Bounds().Dx() * g.Bounds().Dy()
	if total == 0 {
		return 0
	}
	count := 0
	for _, v := range g.Pix {
		if v != 0 {
			count++
		}
	}
	return float64(count) / float64(total) * 100
}
