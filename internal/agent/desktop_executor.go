package agent

import (
	"context"
	"fmt"
	"image"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/cherry/internal/humanoid"
)

// InputController is the humanised keyboard and mouse surface.
// *humanoid.Controller implements it.
type InputController interface {
	Click(ctx context.Context, x, y int, button humanoid.MouseButton, clicks int) error
	Scroll(ctx context.Context, x, y int, direction humanoid.ScrollDirection, clicks int) error
	DragAndDrop(ctx context.Context, start, end image.Point) error
	Type(ctx context.Context, text string) error
	Press(ctx context.Context, keys ...string) error
	CognitivePause(ctx context.Context, meanMs, stdDevMs float64) error
}

var _ InputController = (*humanoid.Controller)(nil)

const defaultScrollClicks = 3

// maxClicksPerAction caps click_mouse's clicks (a triple click at most).
const maxClicksPerAction = 3

// DesktopExecutor handles device input and window management actions.
type DesktopExecutor struct {
	logger *zap.Logger
	input  InputController
}

// NewDesktopExecutor creates the executor. A nil input disables it.
func NewDesktopExecutor(logger *zap.Logger, input InputController) *DesktopExecutor {
	return &DesktopExecutor{logger: logger.Named("desktop_executor"), input: input}
}

func (e *DesktopExecutor) Execute(ctx context.Context, action Action) (string, error) {
	if e.input == nil {
		return "", newExecutionError(ErrCodeFeatureDisabled, action.Name, fmt.Errorf("desktop control is disabled"))
	}

	switch p := action.Params.(type) {
	case OpenApplicationParams:
		return e.openApplication(ctx, action.Name, p)

	case TypeTextParams:
		if p.Text == "" {
			return "", invalidParams(action.Name, "type_text requires 'text'")
		}
		if err := e.input.Type(ctx, p.Text); err != nil {
			return "", fmt.Errorf("Failed to type text: %w", err)
		}
		return fmt.Sprintf("Typed: %s...", Truncate(p.Text, 50)), nil

	case PressKeyParams:
		key := strings.TrimSpace(p.Key)
		if key == "" {
			return "", invalidParams(action.Name, "press_key requires 'key'")
		}
		keys := []string{key}
		if mod := strings.TrimSpace(p.Modifier); mod != "" {
			keys = append(splitChord(mod), key)
		}
		if err := e.input.Press(ctx, keys...); err != nil {
			return "", fmt.Errorf("Failed to press key: %w", err)
		}
		if p.Modifier != "" {
			return fmt.Sprintf("Pressed %s+%s", p.Modifier, p.Key), nil
		}
		return "Pressed " + p.Key, nil

	case ClickMouseParams:
		button, err := humanoid.ParseMouseButton(p.Button)
		if err != nil {
			return "", invalidParams(action.Name, "%v", err)
		}
		clicks := min(max(p.Clicks, 1), maxClicksPerAction)
		if err := e.input.Click(ctx, p.X, p.Y, button, clicks); err != nil {
			return "", fmt.Errorf("Failed to click mouse: %w", err)
		}
		return fmt.Sprintf("Clicked at (%d, %d)", p.X, p.Y), nil

	case ScrollParams:
		dir := humanoid.ScrollDirection(strings.ToLower(strings.TrimSpace(p.Direction)))
		if dir == "" {
			dir = humanoid.ScrollUp
		}
		if dir != humanoid.ScrollUp && dir != humanoid.ScrollDown {
			return "", invalidParams(action.Name, "scroll direction must be 'up' or 'down', got %q", p.Direction)
		}
		clicks := p.Clicks
		if clicks <= 0 {
			clicks = defaultScrollClicks
		}
		if err := e.input.Scroll(ctx, p.X, p.Y, dir, clicks); err != nil {
			return "", fmt.Errorf("Failed to scroll: %w", err)
		}
		return fmt.Sprintf("Scrolled %s %d clicks at (%d, %d)", dir, clicks, p.X, p.Y), nil

	case DragMouseParams:
		start, end := image.Pt(p.StartX, p.StartY), image.Pt(p.EndX, p.EndY)
		if err := e.input.DragAndDrop(ctx, start, end); err != nil {
			return "", fmt.Errorf("Failed to drag mouse: %w", err)
		}
		return fmt.Sprintf("Dragged from (%d, %d) to (%d, %d)", p.StartX, p.StartY, p.EndX, p.EndY), nil

	case MinimizeWindowParams:
		return e.chord(ctx, "Minimized active window", humanoid.KeySuper, humanoid.KeyDown)
	case MaximizeWindowParams:
		return e.chord(ctx, "Maximized active window", humanoid.KeySuper, humanoid.KeyUp)
	case CloseWindowParams:
		return e.chord(ctx, "Closed active window", humanoid.KeyAlt, humanoid.KeyF4)
	case SwitchApplicationParams:
		switch strings.ToLower(strings.TrimSpace(p.Direction)) {
		case "", "next":
			return e.chord(ctx, "Switched to next application", humanoid.KeyAlt, humanoid.KeyTab)
		case "previous", "prev", "back":
			return e.chord(ctx, "Switched to previous application", humanoid.KeyAlt, humanoid.KeyShift, humanoid.KeyTab)
		default:
			return "", invalidParams(action.Name, "direction must be 'next' or 'previous', got %q", p.Direction)
		}

	default:
		return "", unexpectedParams(action)
	}
}

// openApplication launches an app through the desktop's start menu search.
func (e *DesktopExecutor) openApplication(ctx context.Context, name ActionName, p OpenApplicationParams) (string, error) {
	app := strings.TrimSpace(p.AppName)
	if app == "" {
		return "", invalidParams(name, "open_application requires 'app_name'")
	}

	steps := []func() error{
		func() error { return e.input.Press(ctx, humanoid.KeySuper) },
		func() error { return e.input.CognitivePause(ctx, 600, 120) },
		func() error { return e.input.Type(ctx, app) },
		func() error { return e.input.CognitivePause(ctx, 800, 150) },
		func() error { return e.input.Press(ctx, humanoid.KeyEnter) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return "", fmt.Errorf("Failed to open %s: %w", app, err)
		}
	}
	e.logger.Debug("Application launch requested", zap.String("app", app))
	return "Opened " + app, nil
}

func (e *DesktopExecutor) chord(ctx context.Context, result string, keys ...string) (string, error) {
	if err := e.input.Press(ctx, keys...); err != nil {
		return "", fmt.Errorf("Failed to press %s: %w", strings.Join(keys, "+"), err)
	}
	return result, nil
}

// splitChord turns "ctrl+shift" into ["ctrl", "shift"].
func splitChord(mod string) []string {
	parts := strings.FieldsFunc(mod, func(r rune) bool { return r == '+' || r == ' ' })
	if len(parts) == 0 {
		return []string{mod}
	}
	return parts
}
