// Package camera abstracts the periodic image producer. The core only ever
// consumes a "current frame" and an operator-captured "baseline frame"; the
// camera driver itself is an external collaborator.
package camera

import (
	"context"
	"fmt"
	"image"
	"image/draw"
	"io"
	"net/http"

	_ "image/jpeg"
	_ "image/png"
)

// Source produces frames on demand. Implementations must return frames of a
// fixed dimension for the lifetime of the source; the difference algorithms
// treat a dimension change as a caller bug.
type Source interface {
	// Grab returns the next frame. An error means no image was available
	// for this sample; callers skip the tick and keep the previous frame.
	Grab(ctx context.Context) (*image.RGBA, error)

	// Close releases the underlying device or connection.
	Close() error
}

// toRGBA normalizes any decoded image to an origin-bounded RGBA buffer.
func toRGBA(img image.Image) *image.RGBA {
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	return out
}

// HTTPSource polls an IP camera's snapshot endpoint for JPEG or PNG stills.
type HTTPSource struct {
	url    string
	client *http.Client
}

// NewHTTPSource creates a Source that fetches url on every Grab.
func NewHTTPSource(url string, client *http.Client) *HTTPSource {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPSource{url: url, client: client}
}

// Grab fetches and decodes one snapshot.
func (s *HTTPSource) Grab(ctx context.Context) (*image.RGBA, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build snapshot request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("snapshot request failed: %w", err)
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("snapshot endpoint returned %s", resp.Status)
	}
	img, _, err := image.Decode(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return toRGBA(img), nil
}

// Close is a no-op; the HTTP client owns no device handle.
func (s *HTTPSource) Close() error { return nil }
