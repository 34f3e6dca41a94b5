// internal/agent/executors.go
package agent

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/cherry/internal/desktop"
	"github.com/xkilldash9x/cherry/internal/humanoid"
)

// ActionExecutor runs one family of actions and returns a short result line.
type ActionExecutor interface {
	Execute(ctx context.Context, action Action) (string, error)
}

// Settle delays applied after a successful action so the screen can catch up.
var defaultSettleDelays = map[ActionName]time.Duration{
	ActionOpenApplication:   3 * time.Second,
	ActionOpenWebsite:       4 * time.Second,
	ActionTypeText:          500 * time.Millisecond,
	ActionPressKey:          500 * time.Millisecond,
	ActionClickMouse:        time.Second,
	ActionScroll:            time.Second,
	ActionDragMouse:         1500 * time.Millisecond,
	ActionMinimizeWindow:    500 * time.Millisecond,
	ActionMaximizeWindow:    500 * time.Millisecond,
	ActionCloseWindow:       500 * time.Millisecond,
	ActionSwitchApplication: 500 * time.Millisecond,
}

// ExecutorDeps are the collaborators the executors drive. Any of them may be
// nil; the affected actions then fail with ErrCodeFeatureDisabled (or
// ErrCodeToolUnavailable for tools).
type ExecutorDeps struct {
	Input       InputController
	Opener      desktop.URLOpener
	Searcher    Searcher
	Tools       ToolProvider
	Observer    Observer
	MaxResults  int
	SettleDelay map[ActionName]time.Duration
}

// -- Executor Registry --

// ExecutorRegistry dispatches actions to executors. Every error it returns is
// an *ExecutionError.
type ExecutorRegistry struct {
	logger    *zap.Logger
	narrator  *Narrator
	executors map[ActionName]ActionExecutor
	settle    map[ActionName]time.Duration
	sleep     func(ctx context.Context, d time.Duration) error
}

// NewExecutorRegistry creates the registry and its executors.
func NewExecutorRegistry(logger *zap.Logger, narrator *Narrator, deps ExecutorDeps) *ExecutorRegistry {
	r := &ExecutorRegistry{
		logger:    logger.Named("executor_registry"),
		narrator:  narrator,
		executors: make(map[ActionName]ActionExecutor),
		settle:    defaultSettleDelays,
		sleep:     humanoid.SleepContext,
	}
	if deps.SettleDelay != nil {
		r.settle = deps.SettleDelay
	}

	// Executors read the registry's sleep at call time so tests can replace it.
	sleep := func(ctx context.Context, d time.Duration) error { return r.sleep(ctx, d) }

	r.register(NewDesktopExecutor(logger, deps.Input),
		ActionOpenApplication, ActionTypeText, ActionPressKey, ActionClickMouse, ActionScroll, ActionDragMouse,
		ActionMinimizeWindow, ActionMaximizeWindow, ActionCloseWindow, ActionSwitchApplication)
	r.register(NewWebExecutor(logger, deps.Opener, deps.Searcher, deps.MaxResults),
		ActionOpenWebsite, ActionSearchWeb)
	r.register(&ScreenExecutor{observer: deps.Observer},
		ActionTakeScreenshot)
	r.register(&ToolExecutor{tools: deps.Tools, logger: logger.Named("tool_executor")},
		ActionMCPExecute)
	r.register(&ControlExecutor{narrator: narrator, sleep: sleep},
		ActionWait, ActionSpeak)

	return r
}

func (r *ExecutorRegistry) register(exec ActionExecutor, names ...ActionName) {
	for _, n := range names {
		r.executors[n] = exec
	}
}

// Execute narrates, runs and settles one action. Panics in an executor are
// recovered into ErrCodeExecutorPanic.
func (r *ExecutorRegistry) Execute(ctx context.Context, action Action) (result string, err error) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("Panic recovered during action execution",
				zap.String("action", string(action.Name)),
				zap.Any("panic_value", p),
				zap.Stack("stack"))
			result = ""
			err = newExecutionError(ErrCodeExecutorPanic, action.Name, fmt.Errorf("panic: %v", p))
		}
	}()

	if action.Name == ActionFinish {
		return "", newExecutionError(ErrCodeExecutionFailure, action.Name,
			errors.New("finish should be handled by the orchestrator, not dispatched"))
	}

	executor, ok := r.executors[action.Name]
	if !ok || action.IsUnknown() {
		return "", newExecutionError(ErrCodeUnknownAction, action.Name, fmt.Errorf("Unknown function: %s", action.Name))
	}

	if action.Name != ActionSpeak {
		r.narrator.Speak(ctx, "Executing "+strings.ReplaceAll(string(action.Name), "_", " "))
	}

	result, err = executor.Execute(ctx, action)
	if err != nil {
		execErr := classify(action.Name, err)
		r.logger.Warn("Action execution failed",
			zap.String("action", string(action.Name)),
			zap.String("error_code", string(execErr.Code)),
			zap.Error(err))
		return "", execErr
	}

	if d := r.settle[action.Name]; d > 0 {
		if err := r.sleep(ctx, d); err != nil {
			return "", newExecutionError(ErrCodeTimeoutError, action.Name, fmt.Errorf("interrupted while settling: %w", err))
		}
	}
	return result, nil
}

// classify maps an executor error onto an ExecutionError.
func classify(name ActionName, err error) *ExecutionError {
	var execErr *ExecutionError
	if errors.As(err, &execErr) {
		return execErr
	}
	switch {
	case errors.Is(err, humanoid.ErrRateLimited):
		return newExecutionError(ErrCodeRateLimited, name, err)
	case errors.Is(err, context.DeadlineExceeded):
		return newExecutionError(ErrCodeTimeoutError, name, err)
	default:
		return newExecutionError(ErrCodeExecutionFailure, name, err)
	}
}

func invalidParams(name ActionName, format string, args ...any) *ExecutionError {
	return newExecutionError(ErrCodeInvalidParameters, name, fmt.Errorf(format, args...))
}

func unexpectedParams(action Action) *ExecutionError {
	return newExecutionError(ErrCodeUnknownAction, action.Name,
		fmt.Errorf("executor cannot handle %s with %T", action.Name, action.Params))
}

// -- Control Executor --

const (
	minWait = 0.1
	maxWait = 30.0
)

// ControlExecutor handles wait and speak.
type ControlExecutor struct {
	narrator *Narrator
	sleep    func(ctx context.Context, d time.Duration) error
}

func (e *ControlExecutor) Execute(ctx context.Context, action Action) (string, error) {
	switch p := action.Params.(type) {
	case WaitParams:
		seconds := ClampWait(p.Seconds)
		if err := e.sleep(ctx, time.Duration(seconds*float64(time.Second))); err != nil {
			return "", fmt.Errorf("Failed to wait: %w", err)
		}
		return fmt.Sprintf("Waited %s seconds", FormatSeconds(time.Duration(seconds*float64(time.Second)))), nil
	case SpeakParams:
		if strings.TrimSpace(p.Text) == "" {
			return "", invalidParams(action.Name, "speak requires 'text'")
		}
		e.narrator.Speak(ctx, p.Text)
		return "Completed", nil
	default:
		return "", unexpectedParams(action)
	}
}

// ClampWait bounds a requested wait to [0.1, 30] seconds.
func ClampWait(seconds float64) float64 {
	if seconds < minWait || math.IsNaN(seconds) {
		return minWait
	}
	if seconds > maxWait {
		return maxWait
	}
	return seconds
}

// -- Screen Executor --

// ScreenExecutor handles take_screenshot.
type ScreenExecutor struct {
	observer Observer
}

func (e *ScreenExecutor) Execute(ctx context.Context, action Action) (string, error) {
	if _, ok := action.Params.(TakeScreenshotParams); !ok {
		return "", unexpectedParams(action)
	}
	if e.observer == nil {
		return "", newExecutionError(ErrCodeFeatureDisabled, action.Name, errors.New("screen capture is disabled"))
	}
	path, err := e.observer.Screenshot(ctx)
	if err != nil {
		return "", fmt.Errorf("Failed to take screenshot: %w", err)
	}
	if path == "" {
		return "Screenshot taken but path not available", nil
	}
	return "Screenshot saved to " + path, nil
}

// -- Tool Executor --

// ToolExecutor handles mcp_execute.
type ToolExecutor struct {
	tools  ToolProvider
	logger *zap.Logger
}

func (e *ToolExecutor) Execute(ctx context.Context, action Action) (string, error) {
	p, ok := action.Params.(MCPExecuteParams)
	if !ok {
		return "", unexpectedParams(action)
	}
	if strings.TrimSpace(p.Tool) == "" {
		return "", invalidParams(action.Name, "mcp_execute requires 'tool'")
	}
	if e.tools == nil || !e.tools.IsConnected() {
		return "", newExecutionError(ErrCodeToolUnavailable, action.Name,
			fmt.Errorf("Failed to execute MCP tool '%s': MCP client not connected", p.Tool))
	}

	out, err := e.tools.CallTool(ctx, p.Tool, p.Arguments)
	if err != nil {
		return "", fmt.Errorf("Failed to execute MCP tool '%s': %w", p.Tool, err)
	}
	e.logger.Debug("MCP tool executed", zap.String("tool", p.Tool), zap.Int("result_len", len(out)))
	return fmt.Sprintf("MCP tool '%s' executed successfully: %s", p.Tool, Truncate(out, 200)), nil
}
