package humanoid

import (
	"context"
	"fmt"
	"image"
	"time"
)

// Click moves to (x, y) and clicks the button the given number of times.
// Every click spends one token from the click budget. A call the budget cannot
// cover in full fails with ErrRateLimited before any input is issued.
func (c *Controller) Click(ctx context.Context, x, y int, button MouseButton, clicks int) error {
	if clicks < 1 {
		clicks = 1
	}
	if button == "" {
		button = ButtonLeft
	}
	if c.limiter != nil && !c.limiter.AllowN(time.Now(), clicks) {
		return ErrRateLimited
	}

	c.inputMu.Lock()
	defer c.inputMu.Unlock()

	if err := c.moveLocked(ctx, image.Point{X: x, Y: y}); err != nil {
		return err
	}

	// Terminal latency before the press.
	if err := c.CognitivePause(ctx, 60, 20); err != nil {
		return err
	}

	for i := 0; i < clicks; i++ {
		if err := c.pressRelease(ctx, button); err != nil {
			return err
		}
		if i < clicks-1 {
			// Inter-click gap stays well inside the desktop double-click window.
			if err := c.CognitivePause(ctx, 70, 15); err != nil {
				return err
			}
		}
	}
	return nil
}

// pressRelease performs one press-hold-release cycle. The release is always
// attempted once the press succeeded so a cancelled context never leaves a
// button held down.
func (c *Controller) pressRelease(ctx context.Context, button MouseButton) error {
	if err := c.device.MouseButton(ctx, button, true); err != nil {
		return fmt.Errorf("humanoid: mouse down failed: %w", err)
	}
	holdErr := c.CognitivePause(ctx, 85, 20)
	if err := c.device.MouseButton(context.WithoutCancel(ctx), button, false); err != nil {
		return fmt.Errorf("humanoid: mouse up failed: %w", err)
	}
	return holdErr
}
