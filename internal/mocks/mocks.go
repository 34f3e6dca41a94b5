// File: internal/mocks/mocks.go
package mocks

import (
	"context"
	"image"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/cherry/api/schemas"
	"github.com/xkilldash9x/cherry/internal/humanoid"
	"github.com/xkilldash9x/cherry/internal/search"
	"github.com/xkilldash9x/cherry/internal/vision"
)

// -- LLM Client Mock --

// MockLLMClient mocks the schemas.LLMClient interface.
type MockLLMClient struct {
	mock.Mock
}

// Generate provides a mock function for LLM calls.
func (m *MockLLMClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *MockLLMClient) Close() error {
	return m.Called().Error(0)
}

// -- Task Store Mock --

// MockTaskStore mocks the schemas.TaskStore interface.
type MockTaskStore struct {
	mock.Mock
}

func (m *MockTaskStore) SaveTask(ctx context.Context, record schemas.TaskRecord) error {
	return m.Called(ctx, record).Error(0)
}

func (m *MockTaskStore) RecentTasks(ctx context.Context, limit int) ([]schemas.TaskRecord, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]schemas.TaskRecord), args.Error(1)
}

func (m *MockTaskStore) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

// -- Perception Mocks --

// MockObserver mocks the screen observer used by the decision engine.
type MockObserver struct {
	mock.Mock
}

func (m *MockObserver) Capture(ctx context.Context) vision.ScreenContext {
	args := m.Called(ctx)
	return args.Get(0).(vision.ScreenContext)
}

func (m *MockObserver) Screenshot(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

// MockSearcher mocks web search.
type MockSearcher struct {
	mock.Mock
}

func (m *MockSearcher) Search(ctx context.Context, query string, limit int) ([]search.Result, error) {
	args := m.Called(ctx, query, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]search.Result), args.Error(1)
}

// -- Tool Provider Mock --

// MockToolProvider mocks an MCP tool manager.
type MockToolProvider struct {
	mock.Mock
}

func (m *MockToolProvider) IsConnected() bool {
	return m.Called().Bool(0)
}

func (m *MockToolProvider) ToolNames() []string {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]string)
}

func (m *MockToolProvider) CallTool(ctx context.Context, name string, arguments map[string]any) (string, error) {
	args := m.Called(ctx, name, arguments)
	return args.String(0), args.Error(1)
}

// -- Desktop Mocks --

// MockInputController mocks the humanised input controller.
type MockInputController struct {
	mock.Mock
}

func (m *MockInputController) Click(ctx context.Context, x, y int, button humanoid.MouseButton, clicks int) error {
	return m.Called(ctx, x, y, button, clicks).Error(0)
}

func (m *MockInputController) Scroll(ctx context.Context, x, y int, direction humanoid.ScrollDirection, clicks int) error {
	return m.Called(ctx, x, y, direction, clicks).Error(0)
}

func (m *MockInputController) DragAndDrop(ctx context.Context, start, end image.Point) error {
	return m.Called(ctx, start, end).Error(0)
}

func (m *MockInputController) Type(ctx context.Context, text string) error {
	return m.Called(ctx, text).Error(0)
}

// Press records the key chord as a single []string argument.
func (m *MockInputController) Press(ctx context.Context, keys ...string) error {
	return m.Called(ctx, keys).Error(0)
}

func (m *MockInputController) CognitivePause(ctx context.Context, meanMs, stdDevMs float64) error {
	return m.Called(ctx, meanMs, stdDevMs).Error(0)
}

// MockURLOpener mocks the system URL handler.
type MockURLOpener struct {
	mock.Mock
}

func (m *MockURLOpener) Open(ctx context.Context, rawURL string) error {
	return m.Called(ctx, rawURL).Error(0)
}
