// Package registry owns the named collection of tool-server clients.
// It mediates all lifecycle operations (start, stop, reload) and call
// routing, and maintains the aggregated tool/resource namespace under
// qualified "server:tool" names.
//
// A Manager is explicitly constructed and passed to whatever owns the
// HTTP layer; there is no package-level singleton.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"reflect"
	"strings"
	"sync"

	"github.com/kestrelworks/toolmux/internal/config"
	"github.com/kestrelworks/toolmux/internal/mcp"
)

// ServerTool is one aggregated catalog entry: a discovered tool tagged
// with its owning server and qualified name.
type ServerTool struct {
	Server      string         `json:"server"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
	FullName    string         `json:"full_name"`
}

// ServerResource is one aggregated resource entry.
type ServerResource struct {
	Server   string `json:"server"`
	URI      string `json:"uri"`
	Name     string `json:"name"`
	MIMEType string `json:"mime_type,omitempty"`
	FullName string `json:"full_name"`
}

// ServerStatus reports one configured server for operational
// visibility, whether or not it is running.
type ServerStatus struct {
	Enabled        bool   `json:"enabled"`
	Running        bool   `json:"running"`
	Description    string `json:"description"`
	ToolsCount     int    `json:"tools_count"`
	ResourcesCount int    `json:"resources_count"`
	Command        string `json:"command"`
}

// QualifiedName joins a server and tool name into the globally unique
// external identity of an aggregated tool.
func QualifiedName(server, tool string) string {
	return server + ":" + tool
}

// SplitQualifiedName splits "server:tool" back into its parts. ok is
// false when the name has no separator.
func SplitQualifiedName(name string) (server, tool string, ok bool) {
	server, tool, ok = strings.Cut(name, ":")
	if !ok || server == "" || tool == "" {
		return "", "", false
	}
	return server, tool, true
}

// Manager owns the running clients. Start and stop for the same server
// name are serialized by a per-name lock so two concurrent starts can
// never yield two processes for one logical server; different names
// proceed concurrently.
type Manager struct {
	logger     *slog.Logger
	configPath string

	// transportFor builds the wire for one server. Swapped in tests.
	transportFor func(name string, sc config.ServerConfig) mcp.Transport

	mu      sync.RWMutex
	cfg     *config.Config
	clients map[string]*mcp.Client
	order   []string // registration order, drives catalog aggregation

	lockMu    sync.Mutex
	nameLocks map[string]*sync.Mutex
}

// NewManager creates a manager over the given configuration. The
// configPath is re-read by ReloadConfig; it may be empty when reload
// is not needed (tests).
func NewManager(cfg *config.Config, configPath string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	m := &Manager{
		logger:     logger,
		configPath: configPath,
		cfg:        cfg,
		clients:    make(map[string]*mcp.Client),
		nameLocks:  make(map[string]*sync.Mutex),
	}
	m.transportFor = m.defaultTransport
	return m
}

// defaultTransport builds the real wire for a server config.
func (m *Manager) defaultTransport(name string, sc config.ServerConfig) mcp.Transport {
	if sc.Transport == "http" {
		return mcp.NewHTTPTransport(mcp.HTTPConfig{
			URL:     sc.URL,
			Headers: sc.Headers,
			Logger:  m.logger,
		})
	}
	return mcp.NewStdioTransport(mcp.StdioConfig{
		Command: sc.Command,
		Args:    sc.Args,
		Env:     sc.Env,
		Logger:  m.logger,
	})
}

// nameLock returns the per-name start/stop lock, creating it on first
// use. Only configured names reach this point, so the map stays small.
func (m *Manager) nameLock(name string) *sync.Mutex {
	m.lockMu.Lock()
	defer m.lockMu.Unlock()

	l, ok := m.nameLocks[name]
	if !ok {
		l = &sync.Mutex{}
		m.nameLocks[name] = l
	}
	return l
}

// StartServer starts the named server and connects to it. It reports
// plain success: false for an unknown or disabled name and for a
// failed connect, true when the server is running (including when it
// already was). A failed connect leaves no registry entry behind.
func (m *Manager) StartServer(ctx context.Context, name string) bool {
	m.mu.RLock()
	sc, ok := m.cfg.Servers.Get(name)
	timeout := m.cfg.Global.Timeout()
	m.mu.RUnlock()

	if !ok {
		m.logger.Error("server config not found", "server", name)
		return false
	}
	if !sc.Enabled {
		m.logger.Info("server is disabled", "server", name)
		return false
	}

	lock := m.nameLock(name)
	lock.Lock()
	defer lock.Unlock()

	m.mu.RLock()
	_, running := m.clients[name]
	m.mu.RUnlock()
	if running {
		m.logger.Warn("server is already running", "server", name)
		return true
	}

	client := mcp.NewClient(mcp.ClientConfig{
		Name:      name,
		Transport: m.transportFor(name, sc),
		Logger:    m.logger,
		Timeout:   timeout,
	})

	if !client.Connect(ctx) {
		m.logger.Error("failed to start MCP server", "server", name)
		return false
	}

	m.mu.Lock()
	m.clients[name] = client
	m.order = append(m.order, name)
	m.mu.Unlock()

	m.logger.Info("started MCP server", "server", name)
	return true
}

// StopServer disconnects and removes the named server. Stopping a
// server that is not running is a successful no-op. The entry is
// removed before the disconnect begins, so catalog queries never see a
// stopped server's tools.
func (m *Manager) StopServer(name string) bool {
	lock := m.nameLock(name)
	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	client, ok := m.clients[name]
	if !ok {
		m.mu.Unlock()
		m.logger.Warn("server is not running", "server", name)
		return true
	}
	delete(m.clients, name)
	for i, n := range m.order {
		if n == name {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	m.mu.Unlock()

	client.Disconnect()
	m.logger.Info("stopped MCP server", "server", name)
	return true
}

// StartEnabled starts every enabled server in configuration order and
// returns a per-name success map (disabled servers report false). The
// shared workspace directory is created first. Partial failure is
// normal; one broken server never blocks the rest.
func (m *Manager) StartEnabled(ctx context.Context) map[string]bool {
	m.mu.RLock()
	servers := m.cfg.Servers
	global := m.cfg.Global
	m.mu.RUnlock()

	if dir := global.WorkspaceDirectory; dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			m.logger.Error("create workspace directory", "dir", dir, "error", err)
		}
	}

	results := make(map[string]bool, servers.Len())
	for _, name := range servers.Names() {
		sc, _ := servers.Get(name)
		if !sc.Enabled {
			results[name] = false
			continue
		}

		if global.MaxServers > 0 && m.RunningCount() >= global.MaxServers {
			m.logger.Warn("max servers reached, not starting",
				"server", name,
				"max_servers", global.MaxServers,
			)
			results[name] = false
			continue
		}

		results[name] = m.StartServer(ctx, name)
	}

	started := 0
	for _, ok := range results {
		if ok {
			started++
		}
	}
	m.logger.Info("started MCP servers", "count", started)
	return results
}

// StopAll stops every running server in registration order.
func (m *Manager) StopAll() {
	for _, name := range m.RunningNames() {
		m.StopServer(name)
	}
}

// RunningNames returns the names of running servers in registration
// order.
func (m *Manager) RunningNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.order...)
}

// RunningCount returns how many servers are currently running.
func (m *Manager) RunningCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

// Client returns the running client for name.
func (m *Manager) Client(name string) (*mcp.Client, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.clients[name]
	return c, ok
}

// PingServer probes a running server for liveness. A server that is
// not running counts as a failed probe.
func (m *Manager) PingServer(ctx context.Context, name string) error {
	client, ok := m.Client(name)
	if !ok {
		return fmt.Errorf("server %s is not running", name)
	}
	return client.Ping(ctx)
}

// ConfiguredNames returns all configured server names in declaration
// order, running or not.
func (m *Manager) ConfiguredNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg.Servers.Names()
}

// Global returns the current global settings.
func (m *Manager) Global() config.GlobalSettings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg.Global
}

// AllTools returns the union of every running server's catalog, each
// entry tagged with its server and qualified name. Order is stable:
// server registration order, then discovery order within a server.
func (m *Manager) AllTools() []ServerTool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var all []ServerTool
	for _, name := range m.order {
		client := m.clients[name]
		for _, t := range client.Tools() {
			all = append(all, ServerTool{
				Server:      name,
				Name:        t.Name,
				Description: t.Description,
				InputSchema: t.InputSchema,
				FullName:    QualifiedName(name, t.Name),
			})
		}
	}
	return all
}

// AllResources returns the union of every running server's resources.
func (m *Manager) AllResources() []ServerResource {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var all []ServerResource
	for _, name := range m.order {
		client := m.clients[name]
		for _, r := range client.Resources() {
			all = append(all, ServerResource{
				Server:   name,
				URI:      r.URI,
				Name:     r.Name,
				MIMEType: r.MIMEType,
				FullName: QualifiedName(name, r.Name),
			})
		}
	}
	return all
}

// CallTool routes a call to the named server and returns its string
// result. A server that is not running yields a descriptive error
// string, never an error value.
func (m *Manager) CallTool(ctx context.Context, server, tool string, args map[string]any) string {
	m.mu.RLock()
	client, ok := m.clients[server]
	m.mu.RUnlock()

	if !ok {
		return fmt.Sprintf("Server %s not found or not running", server)
	}

	return client.CallTool(ctx, tool, args)
}

// ReadResource reads a resource from the named server. ok is false
// when the server is not running or the read fails.
func (m *Manager) ReadResource(ctx context.Context, server, uri string) (string, bool) {
	m.mu.RLock()
	client, ok := m.clients[server]
	m.mu.RUnlock()

	if !ok {
		return "", false
	}

	return client.ReadResource(ctx, uri)
}

// Status reports every configured server, running or not. Counts are
// zero for servers that are not running.
func (m *Manager) Status() map[string]ServerStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status := make(map[string]ServerStatus, m.cfg.Servers.Len())
	for _, name := range m.cfg.Servers.Names() {
		sc, _ := m.cfg.Servers.Get(name)

		s := ServerStatus{
			Enabled:     sc.Enabled,
			Description: sc.Description,
			Command:     sc.CommandLine(),
		}

		if client, ok := m.clients[name]; ok {
			s.Running = true
			s.ToolsCount = len(client.Tools())
			s.ResourcesCount = len(client.Resources())
		}

		status[name] = s
	}
	return status
}

// ReloadConfig re-reads the configuration file and logs the diff.
// Running servers are untouched; changes take effect on the next
// explicit start.
func (m *Manager) ReloadConfig() error {
	if m.configPath == "" {
		return fmt.Errorf("no config path to reload")
	}

	newCfg, err := config.Load(m.configPath)
	if err != nil {
		m.logger.Error("reload config", "error", err)
		return err
	}

	m.mu.Lock()
	oldCfg := m.cfg
	m.cfg = newCfg
	m.mu.Unlock()

	m.logConfigDiff(oldCfg, newCfg)
	return nil
}

// logConfigDiff reports added, removed, and changed server configs.
func (m *Manager) logConfigDiff(oldCfg, newCfg *config.Config) {
	seen := make(map[string]bool)

	for _, name := range oldCfg.Servers.Names() {
		seen[name] = true
		oldSC, _ := oldCfg.Servers.Get(name)

		newSC, ok := newCfg.Servers.Get(name)
		if !ok {
			m.logger.Info("server config removed", "server", name)
			continue
		}
		if !reflect.DeepEqual(oldSC, newSC) {
			m.logger.Info("server config changed", "server", name)
		}
	}

	for _, name := range newCfg.Servers.Names() {
		if !seen[name] {
			m.logger.Info("new server config added", "server", name)
		}
	}
}
