package agent

import (
	"context"

	"github.com/xkilldash9x/cherry/internal/search"
	"github.com/xkilldash9x/cherry/internal/vision"
)

// Mind is the decision engine: given the session, it picks the next action.
// Decide never fails; problems are folded into the returned Decision.
type Mind interface {
	Decide(ctx context.Context, session *Session) Decision
}

// Observer is the screen perception surface.
type Observer interface {
	Capture(ctx context.Context) vision.ScreenContext
	Screenshot(ctx context.Context) (string, error)
}

// ToolProvider exposes external tools (MCP servers).
type ToolProvider interface {
	IsConnected() bool
	ToolNames() []string
	CallTool(ctx context.Context, name string, args map[string]any) (string, error)
}

// Searcher runs web searches.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]search.Result, error)
}
