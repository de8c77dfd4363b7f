package camera

import (
	"context"
	"image"
	"image/color"
	"image/draw"
	"sync"
)

// SynthSource generates frames of a dark room with a bright block that
// advances one step per grab. It stands in for a real camera in dev mode
// and in tests, producing deterministic scene change.
type SynthSource struct {
	mu     sync.Mutex
	width  int
	height int
	step   int
	closed bool
}

// NewSynthSource creates a synthetic source with the given frame dimensions.
func NewSynthSource(width, height int) *SynthSource {
	return &SynthSource{width: width, height: height}
}

// Grab renders the next synthetic frame.
func (s *SynthSource) Grab(ctx context.Context) (*image.RGBA, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, context.Canceled
	}

	img := image.NewRGBA(image.Rect(0, 0, s.width, s.height))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.RGBA{16, 16, 16, 255}}, image.Point{}, draw.Src)

	// Block sweeps left to right, wrapping at the frame edge.
	blockW, blockH := s.width/4, s.height/2
	x := (s.step * 8) % (s.width - blockW)
	y := s.height / 4
	draw.Draw(img, image.Rect(x, y, x+blockW, y+blockH),
		&image.Uniform{C: color.RGBA{230, 230, 230, 255}}, image.Point{}, draw.Src)

	s.step++
	return img, nil
}

// Close stops the source.
func (s *SynthSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// StillSource returns the same frame on every grab. Useful for tests that
// need a stable baseline.
type StillSource struct {
	Frame *image.RGBA
	Err   error
}

// Grab returns the fixed frame or the configured error.
func (s *StillSource) Grab(ctx context.Context) (*image.RGBA, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	return s.Frame, nil
}

// Close is a no-op.
func (s *StillSource) Close() error { return nil }
