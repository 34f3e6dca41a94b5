// internal/humanoid/types.go
package humanoid

import (
	"errors"
	"fmt"
	"strings"
)

// MouseButton defines the mouse button.
type MouseButton string

const (
	ButtonLeft   MouseButton = "left"
	ButtonRight  MouseButton = "right"
	ButtonMiddle MouseButton = "middle"
)

// ParseMouseButton maps a loose button name onto a MouseButton. Empty means left.
func ParseMouseButton(s string) (MouseButton, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "left", "primary":
		return ButtonLeft, nil
	case "right", "secondary":
		return ButtonRight, nil
	case "middle":
		return ButtonMiddle, nil
	default:
		return "", fmt.Errorf("unknown mouse button %q", s)
	}
}

// ScrollDirection is the wheel direction.
type ScrollDirection string

const (
	ScrollUp   ScrollDirection = "up"
	ScrollDown ScrollDirection = "down"
)

// Key names understood by Device.KeyChord. They follow the X keysym spelling
// that xdotool accepts; other devices translate them.
const (
	KeySuper     = "super"
	KeyAlt       = "alt"
	KeyCtrl      = "ctrl"
	KeyShift     = "shift"
	KeyEnter     = "Return"
	KeyTab       = "Tab"
	KeyEscape    = "Escape"
	KeyBackspace = "BackSpace"
	KeyDown      = "Down"
	KeyUp        = "Up"
	KeyF4        = "F4"
)

// ErrRateLimited is returned when a click would exceed the configured click budget.
var ErrRateLimited = errors.New("click rate limit exceeded")

// keyAliases normalises the key names a model tends to produce.
var keyAliases = map[string]string{
	"enter":     KeyEnter,
	"return":    KeyEnter,
	"tab":       KeyTab,
	"esc":       KeyEscape,
	"escape":    KeyEscape,
	"backspace": KeyBackspace,
	"delete":    "Delete",
	"del":       "Delete",
	"space":     "space",
	"up":        KeyUp,
	"down":      KeyDown,
	"left":      "Left",
	"right":     "Right",
	"home":      "Home",
	"end":       "End",
	"pageup":    "Prior",
	"pagedown":  "Next",
	"control":   KeyCtrl,
	"ctrl":      KeyCtrl,
	"cmd":       KeySuper,
	"command":   KeySuper,
	"win":       KeySuper,
	"windows":   KeySuper,
	"super":     KeySuper,
	"meta":      KeySuper,
	"alt":       KeyAlt,
	"option":    KeyAlt,
	"shift":     KeyShift,
}

// NormalizeKey returns the canonical name for a key.
func NormalizeKey(k string) string {
	trimmed := strings.TrimSpace(k)
	if alias, ok := keyAliases[strings.ToLower(trimmed)]; ok {
		return alias
	}
	// Function keys: f1..f12.
	if len(trimmed) >= 2 && (trimmed[0] == 'f' || trimmed[0] == 'F') && trimmed[1] >= '1' && trimmed[1] <= '9' {
		return "F" + trimmed[1:]
	}
	return trimmed
}
