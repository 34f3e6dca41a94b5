// -- internal/humanoid/keyboard.go --
package humanoid

import (
	"context"
	"fmt"
	"time"
	"unicode"
)

// commonNgrams are typed as a practised burst, faster than the mean interval.
var commonNgrams = map[string]bool{
	"th": true, "he": true, "in": true, "er": true, "an": true, "re": true,
	"es": true, "on": true, "st": true, "nt": true,
	"the": true, "and": true, "ing": true, "ion": true, "tio": true,
}

// Type enters text into the focused window one rune at a time. The text is
// typed verbatim; only the rhythm is humanised.
func (c *Controller) Type(ctx context.Context, text string) error {
	c.inputMu.Lock()
	defer c.inputMu.Unlock()

	runes := []rune(text)
	for i, r := range runes {
		if i > 0 {
			if err := c.sleep(ctx, c.keyDelay(runes, i)); err != nil {
				return err
			}
		}
		if err := c.device.TypeRune(ctx, r); err != nil {
			return fmt.Errorf("humanoid: failed to type %q: %w", r, err)
		}
	}
	return nil
}

// keyDelay computes the pause before runes[i].
func (c *Controller) keyDelay(runes []rune, i int) time.Duration {
	mean := float64(c.cfg.TypingInterval)
	if mean <= 0 {
		return 0
	}

	factor := 1.0
	if i >= 1 && commonNgrams[string(runes[i-1:i+1])] {
		factor = 0.6
	}
	if i >= 2 && commonNgrams[string(runes[i-2:i+1])] {
		factor = 0.5
	}
	// Word boundaries and shifted characters take longer.
	if unicode.IsSpace(runes[i]) || unicode.IsPunct(runes[i]) {
		factor *= 1.4
	}
	if unicode.IsUpper(runes[i]) {
		factor *= 1.25
	}

	d := mean * factor * (1 + c.normal()*0.25)
	if d < mean*0.2 {
		d = mean * 0.2
	}
	return time.Duration(d)
}

// Press sends a key or key chord, for example Press(ctx, "ctrl", "c").
// Names are normalised with NormalizeKey.
func (c *Controller) Press(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return fmt.Errorf("humanoid: no keys to press")
	}
	normalized := make([]string, len(keys))
	for i, k := range keys {
		normalized[i] = NormalizeKey(k)
		if normalized[i] == "" {
			return fmt.Errorf("humanoid: empty key name in chord")
		}
	}

	c.inputMu.Lock()
	defer c.inputMu.Unlock()

	if err := c.device.KeyChord(ctx, normalized...); err != nil {
		return fmt.Errorf("humanoid: key chord %v failed: %w", normalized, err)
	}
	return nil
}
