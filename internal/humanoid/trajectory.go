package humanoid

import (
	"context"
	"fmt"
	"image"
	"math"
	"time"

	"go.uber.org/zap"
)

const (
	// Assumed target width (W) in pixels for the index of difficulty.
	fittsTargetWidth = 30.0
	// Pointer samples per second along a path.
	sampleRate      = 100.0
	maxMoveDuration = 1500 * time.Millisecond
)

// computeEaseInOutCubic provides a smooth acceleration and deceleration profile for movement.
func computeEaseInOutCubic(t float64) float64 {
	if t < 0.5 {
		return 4 * t * t * t
	}
	return 1 - math.Pow(-2*t+2, 3)/2
}

// calculateFittsLaw determines a movement duration from Fitts's law,
// MT = A + B*log2(1 + D/W), randomised by +/-15% and scaled by MovementSpeed.
func (c *Controller) calculateFittsLaw(distance float64) time.Duration {
	if distance < 1 {
		return 0
	}
	id := math.Log2(1.0 + distance/fittsTargetWidth)
	mt := c.cfg.FittsA + c.cfg.FittsB*id
	mt += mt * (c.uniform()*0.3 - 0.15)
	mt /= c.cfg.MovementSpeed

	d := time.Duration(mt * float64(time.Millisecond))
	if d > maxMoveDuration {
		d = maxMoveDuration
	}
	return d
}

// generateIdealPath creates a cubic Bezier from start to end whose control
// points bow sideways by a random fraction of the distance. The last point is
// always exactly end.
func (c *Controller) generateIdealPath(start, end Vector2D, numSteps int) []Vector2D {
	mainVec := end.Sub(start)
	dist := mainVec.Mag()
	if dist < 1.0 || numSteps <= 1 {
		return []Vector2D{end}
	}

	normal := mainVec.Perp()
	bow1 := (c.uniform()*2 - 1) * dist * 0.15
	bow2 := (c.uniform()*2 - 1) * dist * 0.1

	p0, p3 := start, end
	p1 := start.Add(mainVec.Mul(1.0 / 3.0)).Add(normal.Mul(bow1))
	p2 := start.Add(mainVec.Mul(2.0 / 3.0)).Add(normal.Mul(bow2))

	path := make([]Vector2D, numSteps)
	for i := 0; i < numSteps; i++ {
		t := float64(i) / float64(numSteps-1)
		omt := 1.0 - t
		omt2 := omt * omt
		omt3 := omt2 * omt
		t2 := t * t
		t3 := t2 * t
		path[i] = p0.Mul(omt3).Add(p1.Mul(3 * omt2 * t)).Add(p2.Mul(3 * omt * t2)).Add(p3.Mul(t3))
	}
	path[numSteps-1] = end
	return path
}

// moveLocked walks the pointer to target along a humanised path. The caller
// holds inputMu. Noise is applied to intermediate samples only, so the
// pointer always lands on target.
func (c *Controller) moveLocked(ctx context.Context, target image.Point) error {
	current, err := c.device.Position(ctx)
	if err != nil {
		// Without a known start there is no path to shape; jump directly.
		c.logger.Debug("Pointer position unavailable, moving directly", zap.Error(err))
		return c.device.MouseMove(ctx, target.X, target.Y)
	}

	start, end := vec(current), vec(target)
	duration := c.calculateFittsLaw(start.Dist(end))
	numSteps := int(duration.Seconds() * sampleRate)
	if numSteps < 2 {
		return c.device.MouseMove(ctx, target.X, target.Y)
	}

	path := c.generateIdealPath(start, end, numSteps)
	stepDur := duration / time.Duration(numSteps)
	last := current

	for i := 0; i < numSteps; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		// Easing remaps sample time onto path position.
		t := float64(i) / float64(numSteps-1)
		idx := int(computeEaseInOutCubic(t) * float64(numSteps-1))
		if idx >= numSteps {
			idx = numSteps - 1
		}
		p := path[idx]
		if i < numSteps-1 && c.cfg.JitterPx > 0 {
			p = p.Add(Vector2D{X: c.normal() * c.cfg.JitterPx, Y: c.normal() * c.cfg.JitterPx})
		}

		pt := p.Point()
		if i == numSteps-1 {
			pt = target
		}
		if pt != last {
			if err := c.device.MouseMove(ctx, pt.X, pt.Y); err != nil {
				return fmt.Errorf("humanoid: mouse move failed: %w", err)
			}
			last = pt
		}
		if err := c.sleep(ctx, stepDur); err != nil {
			return err
		}
	}
	return nil
}

// MoveTo moves the pointer to (x, y) along a human-like path.
func (c *Controller) MoveTo(ctx context.Context, x, y int) error {
	c.inputMu.Lock()
	defer c.inputMu.Unlock()
	return c.moveLocked(ctx, image.Point{X: x, Y: y})
}
