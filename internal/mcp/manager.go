// File: internal/mcp/manager.go
package mcp

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"

	"github.com/xkilldash9x/cherry/internal/config"
)

// ErrNotConnected is returned by CallTool when no server is connected.
var ErrNotConnected = errors.New("MCP client not connected")

// toolClient is the subset of *Client the manager needs.
type toolClient interface {
	Name() string
	Initialize(ctx context.Context) error
	ListTools(ctx context.Context) ([]ToolDefinition, error)
	CallTool(ctx context.Context, name string, args map[string]any) (string, error)
	Close() error
}

// newTransport is swapped in tests.
var newTransport = func(server config.MCPServerConfig, logger *zap.Logger) Transport {
	return NewStdioTransport(server, logger)
}

type registeredTool struct {
	client toolClient
	def    ToolDefinition
}

// ToolSummary describes one tool exposed to the agent.
type ToolSummary struct {
	Name        string
	Description string
}

// Manager aggregates the tools of every connected MCP server under names of
// the form "server:tool".
type Manager struct {
	cfg    config.MCPConfig
	logger *zap.Logger

	mu      sync.RWMutex
	clients []toolClient
	tools   map[string]registeredTool
}

// NewManager creates an unconnected manager.
func NewManager(cfg config.MCPConfig, logger *zap.Logger) *Manager {
	return &Manager{
		cfg:    cfg,
		logger: logger.Named("mcp"),
		tools:  make(map[string]registeredTool),
	}
}

// Connect starts every configured server. A server that fails to start or
// handshake is logged and skipped; an error is returned only when servers
// were configured and none connected.
func (m *Manager) Connect(ctx context.Context) error {
	if !m.cfg.Enabled || len(m.cfg.Servers) == 0 {
		m.logger.Info("No MCP servers configured")
		return nil
	}

	var errs []error
	for _, server := range m.cfg.Servers {
		client := NewClient(server.Name, newTransport(server, m.logger), m.logger)
		if err := m.AddClient(ctx, client); err != nil {
			m.logger.Warn("Failed to connect MCP server", zap.String("server", server.Name), zap.Error(err))
			_ = client.Close()
			errs = append(errs, fmt.Errorf("%s: %w", server.Name, err))
		}
	}

	if !m.IsConnected() {
		return fmt.Errorf("no MCP servers connected: %w", errors.Join(errs...))
	}
	return nil
}

// AddClient initializes the client, lists its tools and registers them.
func (m *Manager) AddClient(ctx context.Context, client toolClient) error {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	if err := client.Initialize(ctx); err != nil {
		return err
	}
	defs, err := client.ListTools(ctx)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.clients = append(m.clients, client)
	for _, def := range defs {
		m.tools[client.Name()+":"+def.Name] = registeredTool{client: client, def: def}
	}
	m.logger.Info("MCP server connected", zap.String("server", client.Name()), zap.Int("tools", len(defs)))
	return nil
}

// IsConnected reports whether at least one server is connected.
func (m *Manager) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients) > 0
}

// ToolNames returns the qualified tool names in sorted order.
func (m *Manager) ToolNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.tools))
	for name := range m.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Tools returns name and description of every tool, sorted by name.
func (m *Manager) Tools() []ToolSummary {
	names := m.ToolNames()
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ToolSummary, 0, len(names))
	for _, name := range names {
		out = append(out, ToolSummary{Name: name, Description: m.tools[name].def.Description})
	}
	return out
}

// CallTool resolves name (exact match first, then the first qualified name
// containing it), validates args against the tool's input schema and calls it.
func (m *Manager) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	if !m.IsConnected() {
		return "", ErrNotConnected
	}

	qualified, tool, err := m.resolve(name)
	if err != nil {
		return "", err
	}
	if err := validateArgs(tool.def, args); err != nil {
		return "", err
	}

	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	m.logger.Debug("Calling MCP tool", zap.String("tool", qualified))
	return tool.client.CallTool(ctx, tool.def.Name, args)
}

func (m *Manager) resolve(name string) (string, registeredTool, error) {
	m.mu.RLock()
	tool, ok := m.tools[name]
	m.mu.RUnlock()
	if ok {
		return name, tool, nil
	}

	names := m.ToolNames()
	var matches []string
	for _, n := range names {
		if strings.Contains(n, name) {
			matches = append(matches, n)
		}
	}
	if len(matches) == 0 {
		return "", registeredTool{}, fmt.Errorf("Tool '%s' not found. Available tools: [%s]", name, strings.Join(names, ", "))
	}
	if len(matches) > 1 {
		m.logger.Warn("Ambiguous MCP tool name, using first match",
			zap.String("requested", name), zap.Strings("matches", matches))
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	return matches[0], m.tools[matches[0]], nil
}

func validateArgs(def ToolDefinition, args map[string]any) error {
	if len(def.InputSchema) == 0 {
		return nil
	}
	if args == nil {
		args = map[string]any{}
	}

	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(def.InputSchema), gojsonschema.NewGoLoader(args))
	if err != nil {
		return fmt.Errorf("schema validation failed for %s: %w", def.Name, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("invalid arguments for %s: %s", def.Name, strings.Join(msgs, "; "))
	}
	return nil
}

func (m *Manager) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.cfg.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, m.cfg.Timeout)
}

// Close shuts down every server.
func (m *Manager) Close() error {
	m.mu.Lock()
	clients := m.clients
	m.clients = nil
	m.tools = make(map[string]registeredTool)
	m.mu.Unlock()

	var errs []error
	for _, c := range clients {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", c.Name(), err))
		}
	}
	return errors.Join(errs...)
}

