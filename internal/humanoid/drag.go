// -- internal/humanoid/drag.go --
package humanoid

import (
	"context"
	"fmt"
	"image"
	"time"

	"go.uber.org/zap"
)

const (
	dragGrabPause    = 100 * time.Millisecond
	dragReleasePause = 70 * time.Millisecond
)

// DragAndDrop presses the left button at start, follows a humanised path to
// end and releases there.
func (c *Controller) DragAndDrop(ctx context.Context, start, end image.Point) error {
	c.inputMu.Lock()
	defer c.inputMu.Unlock()

	if err := c.moveLocked(ctx, start); err != nil {
		c.logger.Error("DragAndDrop failed: could not reach starting position",
			zap.Stringer("start", start), zap.Error(err))
		return fmt.Errorf("could not reach starting position: %w", err)
	}
	if err := c.CognitivePause(ctx, 80, 30); err != nil {
		return err
	}

	if err := c.device.MouseButton(ctx, ButtonLeft, true); err != nil {
		return fmt.Errorf("humanoid: mouse down failed: %w", err)
	}

	// Once grabbed, the button is released whatever happens to the path.
	moveErr := c.sleep(ctx, dragGrabPause)
	if moveErr == nil {
		moveErr = c.moveLocked(ctx, end)
	}
	if moveErr == nil {
		moveErr = c.sleep(ctx, dragReleasePause)
	}

	if err := c.device.MouseButton(context.WithoutCancel(ctx), ButtonLeft, false); err != nil {
		return fmt.Errorf("humanoid: mouse up failed: %w", err)
	}
	return moveErr
}
