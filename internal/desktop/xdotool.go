// File: internal/desktop/xdotool.go
package desktop

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"image"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/cherry/internal/humanoid"
)

// XdotoolDevice drives the X11 pointer and keyboard through the xdotool CLI.
type XdotoolDevice struct {
	path   string
	runner CommandRunner
	logger *zap.Logger
}

var _ humanoid.Device = (*XdotoolDevice)(nil)

// NewXdotoolDevice returns a device that invokes the binary at path.
func NewXdotoolDevice(path string, runner CommandRunner, logger *zap.Logger) *XdotoolDevice {
	if path == "" {
		path = "xdotool"
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	return &XdotoolDevice{path: path, runner: runner, logger: logger.Named("xdotool")}
}

func (d *XdotoolDevice) run(ctx context.Context, args ...string) ([]byte, error) {
	d.logger.Debug("xdotool", zap.Strings("args", args))
	return d.runner.Run(ctx, d.path, args...)
}

func (d *XdotoolDevice) MouseMove(ctx context.Context, x, y int) error {
	_, err := d.run(ctx, "mousemove", strconv.Itoa(x), strconv.Itoa(y))
	return err
}

func (d *XdotoolDevice) MouseButton(ctx context.Context, button humanoid.MouseButton, down bool) error {
	code, err := buttonCode(button)
	if err != nil {
		return err
	}
	verb := "mouseup"
	if down {
		verb = "mousedown"
	}
	_, err = d.run(ctx, verb, code)
	return err
}

// Wheel uses the X11 scroll buttons 4 (up) and 5 (down).
func (d *XdotoolDevice) Wheel(ctx context.Context, direction humanoid.ScrollDirection, clicks int) error {
	if clicks < 1 {
		return nil
	}
	code := "5"
	if direction == humanoid.ScrollUp {
		code = "4"
	}
	_, err := d.run(ctx, "click", "--repeat", strconv.Itoa(clicks), code)
	return err
}

func (d *XdotoolDevice) KeyChord(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return fmt.Errorf("empty key chord")
	}
	_, err := d.run(ctx, "key", "--clearmodifiers", strings.Join(keys, "+"))
	return err
}

func (d *XdotoolDevice) TypeRune(ctx context.Context, r rune) error {
	_, err := d.run(ctx, "type", "--delay", "0", "--", string(r))
	return err
}

// Position parses `getmouselocation --shell`, which prints X=.. and Y=.. lines.
func (d *XdotoolDevice) Position(ctx context.Context) (image.Point, error) {
	out, err := d.run(ctx, "getmouselocation", "--shell")
	if err != nil {
		return image.Point{}, err
	}

	var p image.Point
	var seenX, seenY bool
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		key, val, ok := strings.Cut(strings.TrimSpace(sc.Text()), "=")
		if !ok {
			continue
		}
		n, convErr := strconv.Atoi(val)
		if convErr != nil {
			continue
		}
		switch key {
		case "X":
			p.X, seenX = n, true
		case "Y":
			p.Y, seenY = n, true
		}
	}
	if !seenX || !seenY {
		return image.Point{}, fmt.Errorf("unexpected getmouselocation output: %q", strings.TrimSpace(string(out)))
	}
	return p, nil
}

// ScreenSize parses `getdisplaygeometry`, which prints "W H".
func (d *XdotoolDevice) ScreenSize(ctx context.Context) (image.Point, error) {
	out, err := d.run(ctx, "getdisplaygeometry")
	if err != nil {
		return image.Point{}, err
	}
	fields := strings.Fields(string(out))
	if len(fields) != 2 {
		return image.Point{}, fmt.Errorf("unexpected getdisplaygeometry output: %q", strings.TrimSpace(string(out)))
	}
	w, errW := strconv.Atoi(fields[0])
	h, errH := strconv.Atoi(fields[1])
	if errW != nil || errH != nil {
		return image.Point{}, fmt.Errorf("unexpected getdisplaygeometry output: %q", strings.TrimSpace(string(out)))
	}
	return image.Point{X: w, Y: h}, nil
}

func buttonCode(b humanoid.MouseButton) (string, error) {
	switch b {
	case humanoid.ButtonLeft, "":
		return "1", nil
	case humanoid.ButtonMiddle:
		return "2", nil
	case humanoid.ButtonRight:
		return "3", nil
	default:
		return "", fmt.Errorf("unsupported mouse button %q", b)
	}
}
