package humanoid

import (
	"context"
	"fmt"
	"image"
)

// Scroll moves to (x, y) and turns the wheel one notch at a time with short
// human pauses between notches.
func (c *Controller) Scroll(ctx context.Context, x, y int, direction ScrollDirection, clicks int) error {
	if direction != ScrollUp && direction != ScrollDown {
		return fmt.Errorf("humanoid: invalid scroll direction %q", direction)
	}
	if clicks < 1 {
		return nil
	}

	c.inputMu.Lock()
	defer c.inputMu.Unlock()

	if err := c.moveLocked(ctx, image.Point{X: x, Y: y}); err != nil {
		return err
	}
	for i := 0; i < clicks; i++ {
		if err := c.device.Wheel(ctx, direction, 1); err != nil {
			return fmt.Errorf("humanoid: wheel failed: %w", err)
		}
		if err := c.CognitivePause(ctx, 40, 15); err != nil {
			return err
		}
	}
	return nil
}
