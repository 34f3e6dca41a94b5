package mcp

import "context"

// Transport carries JSON-RPC messages to one MCP server.
type Transport interface {
	// Send writes the request and waits for the response with the same ID.
	Send(ctx context.Context, req *Request) (*Response, error)
	Notify(ctx context.Context, notif *Notification) error
	// Close terminates the server connection (for stdio, the subprocess).
	Close() error
}
