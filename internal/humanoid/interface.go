// Filename: internal/humanoid/interface.go
package humanoid

import (
	"context"
	"image"
)

// Device is the OS-level input surface the Controller drives. Implementations
// issue one primitive per call; all timing and path shaping lives above them.
type Device interface {
	// MouseMove places the pointer at absolute screen coordinates.
	MouseMove(ctx context.Context, x, y int) error
	// MouseButton presses (down=true) or releases a button at the current position.
	MouseButton(ctx context.Context, button MouseButton, down bool) error
	// Wheel scrolls by the given number of notches at the current position.
	Wheel(ctx context.Context, direction ScrollDirection, clicks int) error
	// KeyChord presses the keys together and releases them in reverse order.
	KeyChord(ctx context.Context, keys ...string) error
	// TypeRune types a single character into the focused window.
	TypeRune(ctx context.Context, r rune) error
	Position(ctx context.Context) (image.Point, error)
	ScreenSize(ctx context.Context) (image.Point, error)
}
