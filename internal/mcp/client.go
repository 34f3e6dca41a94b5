package mcp

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"
)

const (
	protocolVersion = "2024-11-05"
	clientName      = "cherry"
	clientVersion   = "1.0"
)

// ToolDefinition is an MCP tool as returned by tools/list.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

// ContentBlock is a single content item in a tools/call response.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type callToolResult struct {
	Content []ContentBlock `json:"content"`
	IsError bool           `json:"isError,omitempty"`
}

type toolsListResult struct {
	Tools []ToolDefinition `json:"tools"`
}

type serverInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type initializeResult struct {
	ProtocolVersion string     `json:"protocolVersion"`
	ServerInfo      serverInfo `json:"serverInfo"`
}

// Client speaks the MCP protocol (initialize, tools/list, tools/call) to a
// single server over a Transport.
type Client struct {
	name      string
	transport Transport
	logger    *zap.Logger
	nextID    atomic.Int64

	mu    sync.RWMutex
	tools []ToolDefinition
}

// NewClient creates a client for the named server.
func NewClient(name string, transport Transport, logger *zap.Logger) *Client {
	return &Client{
		name:      name,
		transport: transport,
		logger:    logger.With(zap.String("mcp_server", name)),
	}
}

// Name returns the configured server name.
func (c *Client) Name() string { return c.name }

// Initialize performs the handshake: the initialize request followed by the
// notifications/initialized notification.
func (c *Client) Initialize(ctx context.Context) error {
	params := map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities":    map[string]any{},
		"clientInfo": map[string]any{
			"name":    clientName,
			"version": clientVersion,
		},
	}

	resp, err := c.send(ctx, "initialize", params)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}

	var result initializeResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return fmt.Errorf("unmarshal initialize result: %w", err)
	}

	c.logger.Info("MCP server initialized",
		zap.String("server_name", result.ServerInfo.Name),
		zap.String("server_version", result.ServerInfo.Version),
		zap.String("protocol_version", result.ProtocolVersion),
	)

	if err := c.transport.Notify(ctx, NewNotification("notifications/initialized", nil)); err != nil {
		return fmt.Errorf("send initialized notification: %w", err)
	}
	return nil
}

// ListTools calls tools/list. The first successful result is cached.
func (c *Client) ListTools(ctx context.Context) ([]ToolDefinition, error) {
	c.mu.RLock()
	if c.tools != nil {
		defer c.mu.RUnlock()
		return c.tools, nil
	}
	c.mu.RUnlock()

	resp, err := c.send(ctx, "tools/list", nil)
	if err != nil {
		return nil, fmt.Errorf("tools/list: %w", err)
	}

	var result toolsListResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, fmt.Errorf("unmarshal tools/list result: %w", err)
	}
	if result.Tools == nil {
		result.Tools = []ToolDefinition{}
	}

	c.mu.Lock()
	c.tools = result.Tools
	c.mu.Unlock()

	c.logger.Info("Discovered MCP tools", zap.Int("count", len(result.Tools)))
	return result.Tools, nil
}

// CallTool invokes a tool and flattens its content blocks into one string.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	if args == nil {
		args = map[string]any{}
	}
	resp, err := c.send(ctx, "tools/call", map[string]any{
		"name":      name,
		"arguments": args,
	})
	if err != nil {
		return "", fmt.Errorf("tools/call %s: %w", name, err)
	}

	var result callToolResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return "", fmt.Errorf("unmarshal tools/call result: %w", err)
	}

	text := extractText(result.Content)
	if result.IsError {
		return "", fmt.Errorf("MCP tool %s returned error: %s", name, text)
	}
	return text, nil
}

// Close shuts down the transport.
func (c *Client) Close() error {
	c.logger.Debug("Closing MCP client")
	return c.transport.Close()
}

func (c *Client) send(ctx context.Context, method string, params any) (*Response, error) {
	req := NewRequest(c.nextID.Add(1), method, params)

	resp, err := c.transport.Send(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, resp.Error
	}
	return resp, nil
}

// extractText joins text blocks; other block types become inline markers.
func extractText(blocks []ContentBlock) string {
	parts := make([]string, 0, len(blocks))
	for _, b := range blocks {
		if b.Type == "text" {
			parts = append(parts, b.Text)
			continue
		}
		parts = append(parts, "["+b.Type+"]")
	}
	return strings.Join(parts, "\n")
}
