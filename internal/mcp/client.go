package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kestrelworks/toolmux/internal/buildinfo"
)

// protocolVersion is the MCP protocol version we advertise during initialization.
const protocolVersion = "2024-11-05"

// clientName identifies this host in the initialize handshake.
const clientName = "toolmux"

// defaultTimeout bounds the handshake and each call when the config
// does not say otherwise.
const defaultTimeout = 30 * time.Second

// State is a client's position in its lifecycle.
//
// Unstarted → Connecting → Connected and Disconnected are the healthy
// path. Failed is terminal but usable: the client answers catalog and
// call queries from a fixed fallback set so one broken server
// configuration never takes down its callers.
type State int32

// Client lifecycle states.
const (
	StateUnstarted State = iota
	StateConnecting
	StateConnected
	StateFailed
	StateDisconnected
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateUnstarted:
		return "unstarted"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	case StateDisconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// ToolDefinition is an MCP tool as returned by tools/list.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

// ResourceDescriptor is an MCP resource as returned by resources/list.
type ResourceDescriptor struct {
	URI         string `json:"uri"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	MIMEType    string `json:"mimeType,omitempty"`
}

// ContentBlock is a single content item in a tools/call response.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// callToolResult is the result payload of a tools/call response.
type callToolResult struct {
	Content []ContentBlock `json:"content"`
	IsError bool           `json:"isError,omitempty"`
}

// toolsListResult is the result payload of a tools/list response.
type toolsListResult struct {
	Tools []ToolDefinition `json:"tools"`
}

// resourcesListResult is the result payload of a resources/list response.
type resourcesListResult struct {
	Resources []ResourceDescriptor `json:"resources"`
}

// resourceContent is a single item in a resources/read response.
type resourceContent struct {
	URI      string `json:"uri,omitempty"`
	MIMEType string `json:"mimeType,omitempty"`
	Text     string `json:"text,omitempty"`
}

// readResourceResult is the result payload of a resources/read response.
type readResourceResult struct {
	Contents []resourceContent `json:"contents"`
}

// serverInfo is returned in the initialize response.
type serverInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// serverCapabilities describes what an MCP server supports.
type serverCapabilities struct {
	Tools     *struct{} `json:"tools,omitempty"`
	Resources *struct{} `json:"resources,omitempty"`
}

// initializeResult is the full initialize response result.
type initializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	ServerInfo      serverInfo         `json:"serverInfo"`
	Capabilities    serverCapabilities `json:"capabilities"`
}

// ClientConfig configures a Client for one tool server.
type ClientConfig struct {
	// Name is the configured server name, used in log context and in
	// the error strings handed back to callers.
	Name string

	// Transport carries the JSON-RPC traffic (stdio or HTTP).
	Transport Transport

	// Logger is the structured logger. nil means slog.Default().
	Logger *slog.Logger

	// Timeout bounds the connect handshake and each individual call.
	// Zero means defaultTimeout.
	Timeout time.Duration
}

// Client manages the session with a single tool server: handshake,
// capability discovery, and call routing. All call-shaped methods
// return plain strings rather than errors; the consumers are agent
// loops that must always receive some textual result.
type Client struct {
	name      string
	transport Transport
	logger    *slog.Logger
	timeout   time.Duration
	nextID    atomic.Int64

	mu         sync.RWMutex
	state      State
	serverName string
	serverVer  string
	tools      []ToolDefinition
	resources  []ResourceDescriptor
}

// NewClient creates a client in the Unstarted state. Nothing touches
// the transport until Connect.
func NewClient(cfg ClientConfig) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		name:      cfg.Name,
		transport: cfg.Transport,
		logger:    logger.With("mcp_server", cfg.Name),
		timeout:   timeout,
		state:     StateUnstarted,
	}
}

// Name returns the configured server name.
func (c *Client) Name() string {
	return c.name
}

// State returns the client's current lifecycle state.
func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// ServerInfo returns the name and version the server reported during
// the handshake. Empty until Connect succeeds.
func (c *Client) ServerInfo() (name, version string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.serverName, c.serverVer
}

// Connect starts the transport, performs the MCP handshake, and
// discovers the server's tools and resources. It reports success as a
// bool and never returns an error: when any step fails the client
// installs the fallback catalog, moves to Failed, and stays usable in
// degraded form.
func (c *Client) Connect(ctx context.Context) bool {
	c.setState(StateConnecting)

	if err := c.connect(ctx); err != nil {
		c.logger.Warn("connection failed, installing fallback tools", "error", err)

		// Reap whatever half-started process is left behind.
		if cerr := c.transport.Close(); cerr != nil {
			c.logger.Debug("transport close after failed connect", "error", cerr)
		}

		c.mu.Lock()
		c.state = StateFailed
		c.tools = fallbackTools()
		c.resources = nil
		c.mu.Unlock()
		return false
	}

	c.setState(StateConnected)

	c.mu.RLock()
	c.logger.Info("connected to MCP server",
		"server_name", c.serverName,
		"server_version", c.serverVer,
		"tools", len(c.tools),
		"resources", len(c.resources),
	)
	c.mu.RUnlock()
	return true
}

// connect runs the full handshake and discovery sequence under one
// timeout.
func (c *Client) connect(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.transport.Start(ctx); err != nil {
		return fmt.Errorf("start transport: %w", err)
	}

	if err := c.initialize(ctx); err != nil {
		return err
	}

	tools, err := c.fetchTools(ctx)
	if err != nil {
		return err
	}

	// resources/list is optional; a server without it simply has none.
	resources, err := c.fetchResources(ctx)
	if err != nil {
		c.logger.Debug("resources/list not available", "error", err)
		resources = nil
	}

	c.mu.Lock()
	c.tools = tools
	c.resources = resources
	c.mu.Unlock()

	return nil
}

// initialize performs the MCP handshake: an initialize request
// followed by the notifications/initialized notification.
func (c *Client) initialize(ctx context.Context) error {
	params := map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities": map[string]any{
			"tools":     map[string]any{},
			"resources": map[string]any{},
		},
		"clientInfo": map[string]any{
			"name":    clientName,
			"version": buildinfo.Version,
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

	c.mu.Lock()
	c.serverName = result.ServerInfo.Name
	c.serverVer = result.ServerInfo.Version
	c.mu.Unlock()

	c.logger.Debug("MCP server initialized",
		"server_name", result.ServerInfo.Name,
		"server_version", result.ServerInfo.Version,
		"protocol_version", result.ProtocolVersion,
	)

	if err := c.transport.Notify(ctx, NewNotification("notifications/initialized", nil)); err != nil {
		return fmt.Errorf("send initialized notification: %w", err)
	}

	return nil
}

// fetchTools calls tools/list.
func (c *Client) fetchTools(ctx context.Context) ([]ToolDefinition, error) {
	resp, err := c.send(ctx, "tools/list", nil)
	if err != nil {
		return nil, fmt.Errorf("tools/list: %w", err)
	}

	var result toolsListResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, fmt.Errorf("unmarshal tools/list result: %w", err)
	}

	return result.Tools, nil
}

// fetchResources calls resources/list.
func (c *Client) fetchResources(ctx context.Context) ([]ResourceDescriptor, error) {
	resp, err := c.send(ctx, "resources/list", nil)
	if err != nil {
		return nil, fmt.Errorf("resources/list: %w", err)
	}

	var result resourcesListResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, fmt.Errorf("unmarshal resources/list result: %w", err)
	}

	return result.Resources, nil
}

// Tools returns the discovered tool catalog in discovery order. For a
// Failed client this is the fallback catalog.
func (c *Client) Tools() []ToolDefinition {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]ToolDefinition(nil), c.tools...)
}

// Resources returns the discovered resource catalog in discovery order.
func (c *Client) Resources() []ResourceDescriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]ResourceDescriptor(nil), c.resources...)
}

// HasTool reports whether name is in the current catalog.
func (c *Client) HasTool(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, t := range c.tools {
		if t.Name == name {
			return true
		}
	}
	return false
}

// hasResource reports whether uri is in the current catalog.
func (c *Client) hasResource(uri string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, r := range c.resources {
		if r.URI == uri {
			return true
		}
	}
	return false
}

// CallTool invokes a tool by name. The result is always a string:
// protocol results are flattened to the first content item's text, and
// every failure mode becomes a descriptive message instead of an
// error. A Failed client answers with mock results from the fallback
// catalog; a lost wire flips the client to Disconnected so later calls
// are rejected up front.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) string {
	if !c.HasTool(name) {
		return fmt.Sprintf("Tool '%s' not found in server '%s'", name, c.name)
	}

	switch c.State() {
	case StateConnected:
		// Live call below.
	case StateFailed:
		return mockToolResult(name, args)
	default:
		return fmt.Sprintf("Error calling tool '%s': server '%s' is not connected", name, c.name)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	text, err := c.callTool(ctx, name, args)
	if err != nil {
		if errors.Is(err, ErrClosed) || errors.Is(err, ErrNotConnected) {
			c.setState(StateDisconnected)
		}
		c.logger.Error("tool call failed", "tool", name, "error", err)
		return fmt.Sprintf("Error calling tool '%s': %v", name, err)
	}

	return text
}

// callTool issues the tools/call request and flattens the result.
func (c *Client) callTool(ctx context.Context, name string, args map[string]any) (string, error) {
	if args == nil {
		args = map[string]any{}
	}

	resp, err := c.send(ctx, "tools/call", map[string]any{
		"name":      name,
		"arguments": args,
	})
	if err != nil {
		return "", err
	}

	var result callToolResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return "", fmt.Errorf("unmarshal tools/call result: %w", err)
	}

	text := toolResultText(result)
	if result.IsError {
		return "", errors.New(text)
	}

	return text, nil
}

// toolResultText flattens a tools/call result to the string handed to
// callers: the first content item's text, or a fixed no-response
// marker when the server returned nothing usable.
func toolResultText(result callToolResult) string {
	if len(result.Content) == 0 || result.Content[0].Text == "" {
		return "No response from tool"
	}
	return result.Content[0].Text
}

// ReadResource reads a resource by URI. It returns ok=false when the
// URI is not in the discovered catalog, the client is not connected,
// or the read fails.
func (c *Client) ReadResource(ctx context.Context, uri string) (content string, ok bool) {
	if !c.hasResource(uri) {
		c.logger.Warn("resource not found in server", "uri", uri)
		return "", false
	}

	if c.State() != StateConnected {
		return "", false
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.send(ctx, "resources/read", map[string]any{"uri": uri})
	if err != nil {
		if errors.Is(err, ErrClosed) || errors.Is(err, ErrNotConnected) {
			c.setState(StateDisconnected)
		}
		c.logger.Error("resource read failed", "uri", uri, "error", err)
		return "", false
	}

	var result readResourceResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		c.logger.Error("unmarshal resources/read result", "uri", uri, "error", err)
		return "", false
	}

	if len(result.Contents) == 0 {
		return "", false
	}

	return result.Contents[0].Text, true
}

// Ping checks whether the server is responsive. Used by the health
// watcher.
func (c *Client) Ping(ctx context.Context) error {
	if c.State() != StateConnected {
		return fmt.Errorf("ping %s: %w", c.name, ErrNotConnected)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	_, err := c.send(ctx, "ping", nil)
	return err
}

// Disconnect terminates the session. The state flips to Disconnected
// before the process is reaped so routing stops immediately; catalogs
// are cleared atomically with the flip. Disconnect is idempotent.
func (c *Client) Disconnect() {
	c.mu.Lock()
	if c.state == StateDisconnected {
		c.mu.Unlock()
		return
	}
	c.state = StateDisconnected
	c.tools = nil
	c.resources = nil
	c.mu.Unlock()

	if err := c.transport.Close(); err != nil {
		c.logger.Warn("transport close", "error", err)
	}

	c.logger.Info("disconnected from MCP server")
}

// send issues a JSON-RPC request and checks for protocol-level errors.
func (c *Client) send(ctx context.Context, method string, params any) (*Response, error) {
	id := c.nextID.Add(1)
	req := NewRequest(id, method, params)

	resp, err := c.transport.Send(ctx, req)
	if err != nil {
		return nil, err
	}

	if resp.Error != nil {
		return nil, resp.Error
	}

	return resp, nil
}
