// File: internal/vision/capture.go
package vision

import (
	"context"
	"fmt"
	"image"

	"github.com/kbinani/screenshot"
)

// Grabber produces a frame of the screen.
type Grabber interface {
	Grab(ctx context.Context) (image.Image, error)
}

// DisplayGrabber captures the primary display, or a fixed region of it.
type DisplayGrabber struct {
	// Region is [x, y, width, height]; empty means the whole primary display.
	Region []int
}

// Grab captures one frame.
func (g DisplayGrabber) Grab(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if screenshot.NumActiveDisplays() < 1 {
		return nil, fmt.Errorf("no active displays found")
	}

	bounds := screenshot.GetDisplayBounds(0)
	if len(g.Region) == 4 {
		r := image.Rect(g.Region[0], g.Region[1], g.Region[0]+g.Region[2], g.Region[1]+g.Region[3])
		bounds = r.Add(bounds.Min).Intersect(bounds)
		if bounds.Empty() {
			return nil, fmt.Errorf("capture region %v lies outside the primary display", g.Region)
		}
	}

	img, err := screenshot.CaptureRect(bounds)
	if err != nil {
		return nil, fmt.Errorf("failed to capture screen: %w", err)
	}
	return img, nil
}
