package mcp

import (
	"context"
	"errors"
)

// Sentinel errors returned by transports. Callers distinguish a
// transport that was never started from one whose connection is gone.
var (
	// ErrNotConnected is returned by Send/Notify before Start succeeds.
	ErrNotConnected = errors.New("not connected")

	// ErrClosed is returned once the transport has been closed or the
	// underlying connection has been lost. The transport is not
	// reusable after this; build a new one to reconnect.
	ErrClosed = errors.New("transport closed")
)

// Transport is the interface for MCP server communication.
// Implementations handle the details of sending JSON-RPC requests and
// receiving responses over a specific transport (stdio or HTTP).
type Transport interface {
	// Start establishes the connection. For stdio transports this
	// spawns the subprocess and wires its pipes. Send and Notify fail
	// with ErrNotConnected until Start succeeds.
	Start(ctx context.Context) error

	// Send sends a JSON-RPC request and returns the response.
	// The transport handles framing, encoding, and correlation.
	Send(ctx context.Context, req *Request) (*Response, error)

	// Notify sends a JSON-RPC notification (no response expected).
	Notify(ctx context.Context, notif *Notification) error

	// Close shuts down the transport and releases resources.
	// For stdio transports this terminates the subprocess.
	Close() error
}
