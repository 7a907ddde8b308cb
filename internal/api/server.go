// Package api implements the operational HTTP API: the tool catalog
// and execution endpoints consumed by agents, and the server admin
// endpoints (start, stop, status, config reload) behind the same
// listener. All handlers speak JSON.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/kestrelworks/toolmux/internal/buildinfo"
	"github.com/kestrelworks/toolmux/internal/registry"
	"github.com/kestrelworks/toolmux/internal/tools"
	"github.com/kestrelworks/toolmux/internal/watch"
)

// writeJSON encodes v as JSON to w, logging any errors at debug level.
// Errors here typically mean the client disconnected mid-response,
// which is not actionable but worth tracking for debugging.
func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

// Registry is the server-registry surface the admin endpoints drive.
// *registry.Manager satisfies it.
type Registry interface {
	Status() map[string]registry.ServerStatus
	StartServer(ctx context.Context, name string) bool
	StopServer(name string) bool
	ReloadConfig() error
	AllResources() []registry.ServerResource
}

// Watcher reports server health for the health endpoint.
// *watch.Manager satisfies it.
type Watcher interface {
	Healthy() bool
	Status() map[string]watch.ServerHealth
}

// Server is the HTTP API server.
type Server struct {
	addr    string
	token   string
	adapter *tools.Adapter
	servers Registry
	watcher Watcher
	logger  *slog.Logger
	server  *http.Server
}

// NewServer creates a new API server. token, when non-empty, is
// required as a bearer token on every /api/mcp request.
func NewServer(addr, token string, adapter *tools.Adapter, servers Registry, watcher Watcher, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		addr:    addr,
		token:   token,
		adapter: adapter,
		servers: servers,
		watcher: watcher,
		logger:  logger,
	}
}

// Handler builds the route tree.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.withLogging)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/", s.handleRoot)
	r.Get("/version", s.handleVersion)
	r.Get("/health", s.handleHealth)

	r.Route("/api/mcp", func(r chi.Router) {
		r.Use(s.auth)
		r.Get("/tools", s.handleListTools)
		r.Get("/tools/{name}", s.handleToolDetails)
		r.Post("/tools/execute", s.handleExecuteTool)
		r.Post("/tools/register", s.handleRegisterTool)
		r.Get("/resources", s.handleListResources)
		r.Get("/servers/status", s.handleServersStatus)
		r.Post("/servers/{name}/start", s.handleStartServer)
		r.Post("/servers/{name}/stop", s.handleStopServer)
		r.Post("/servers/reload-config", s.handleReloadConfig)
	})

	return r
}

// Start begins serving HTTP requests. It blocks until the listener
// fails or Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	s.logger.Info("starting API server", "address", s.addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"duration", time.Since(start),
		)
	})
}

// auth requires the configured bearer token on the wrapped routes.
// An empty token disables the check.
func (s *Server) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token == "" {
			next.ServeHTTP(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer "+s.token {
			s.errorResponse(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) errorResponse(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	writeJSON(w, map[string]string{"error": message}, s.logger)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{
		"name":    "toolmux",
		"version": buildinfo.Version,
		"status":  "ok",
	}, s.logger)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, buildinfo.Info(), s.logger)
}

// HealthResponse is the health endpoint payload. Servers carries the
// watcher's per-server view and is empty when nothing is running.
type HealthResponse struct {
	Status  string                        `json:"status"`
	Servers map[string]watch.ServerHealth `json:"servers"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	if !s.watcher.Healthy() {
		status = "degraded"
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, HealthResponse{
		Status:  status,
		Servers: s.watcher.Status(),
	}, s.logger)
}

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, s.adapter.List(), s.logger)
}

func (s *Server) handleToolDetails(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	tool, ok := s.adapter.Local().Get(name)
	if !ok {
		s.errorResponse(w, http.StatusNotFound, "Tool not found")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, tool, s.logger)
}

// ToolExecutionRequest asks for one tool invocation by catalog name:
// "server:tool", a bare remote tool name, or "legacy_<name>".
type ToolExecutionRequest struct {
	ToolName   string         `json:"tool_name"`
	Parameters map[string]any `json:"parameters"`
}

// ToolExecutionResponse carries the tool's text result. Execution
// failures inside a running server arrive here as error strings, not
// as HTTP errors.
type ToolExecutionResponse struct {
	Result   string `json:"result"`
	ToolName string `json:"tool_name"`
}

func (s *Server) handleExecuteTool(w http.ResponseWriter, r *http.Request) {
	var req ToolExecutionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ToolName == "" {
		s.errorResponse(w, http.StatusBadRequest, "tool_name is required")
		return
	}

	invocationID := uuid.New().String()
	start := time.Now()

	result, err := s.adapter.Execute(r.Context(), req.ToolName, req.Parameters)
	if err != nil {
		var notFound *tools.ErrToolNotFound
		if errors.As(err, &notFound) {
			detail := "MCP tool not found"
			if strings.HasPrefix(req.ToolName, "legacy_") {
				detail = "Legacy tool not found"
			}
			s.errorResponse(w, http.StatusNotFound, detail)
			return
		}
		s.errorResponse(w, http.StatusInternalServerError, fmt.Sprintf("Error executing tool: %v", err))
		return
	}

	s.logger.Info("tool invocation",
		"invocation_id", invocationID,
		"tool", req.ToolName,
		"duration", time.Since(start),
	)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Invocation-Id", invocationID)
	writeJSON(w, ToolExecutionResponse{
		Result:   result,
		ToolName: req.ToolName,
	}, s.logger)
}

// RegisterToolRequest describes a custom local tool. Registered tools
// have no handler, so executing one reports that execution is not
// implemented.
type RegisterToolRequest struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

func (s *Server) handleRegisterTool(w http.ResponseWriter, r *http.Request) {
	var req RegisterToolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		s.errorResponse(w, http.StatusBadRequest, "tool name is required")
		return
	}

	s.adapter.Local().Register(&tools.Tool{
		Name:        req.Name,
		Description: req.Description,
		Parameters:  req.Parameters,
	})
	s.logger.Info("registered custom tool", "tool", req.Name)

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{
		"message": fmt.Sprintf("Tool '%s' registered successfully", req.Name),
	}, s.logger)
}

func (s *Server) handleListResources(w http.ResponseWriter, r *http.Request) {
	resources := s.servers.AllResources()
	if resources == nil {
		resources = []registry.ServerResource{}
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, resources, s.logger)
}

// StatusSummary aggregates the per-server status map.
type StatusSummary struct {
	TotalServers   int `json:"total_servers"`
	RunningServers int `json:"running_servers"`
	EnabledServers int `json:"enabled_servers"`
	TotalTools     int `json:"total_tools"`
	TotalResources int `json:"total_resources"`
}

// ServersStatusResponse is the servers/status payload.
type ServersStatusResponse struct {
	Summary StatusSummary                     `json:"summary"`
	Servers map[string]registry.ServerStatus `json:"servers"`
}

func (s *Server) handleServersStatus(w http.ResponseWriter, r *http.Request) {
	status := s.servers.Status()

	summary := StatusSummary{TotalServers: len(status)}
	for _, st := range status {
		if st.Running {
			summary.RunningServers++
		}
		if st.Enabled {
			summary.EnabledServers++
		}
		summary.TotalTools += st.ToolsCount
		summary.TotalResources += st.ResourcesCount
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, ServersStatusResponse{
		Summary: summary,
		Servers: status,
	}, s.logger)
}

func (s *Server) handleStartServer(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if !s.servers.StartServer(r.Context(), name) {
		s.errorResponse(w, http.StatusInternalServerError, fmt.Sprintf("Failed to start server '%s'", name))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{
		"message": fmt.Sprintf("Server '%s' started successfully", name),
	}, s.logger)
}

func (s *Server) handleStopServer(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if !s.servers.StopServer(name) {
		s.errorResponse(w, http.StatusInternalServerError, fmt.Sprintf("Failed to stop server '%s'", name))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{
		"message": fmt.Sprintf("Server '%s' stopped successfully", name),
	}, s.logger)
}

func (s *Server) handleReloadConfig(w http.ResponseWriter, r *http.Request) {
	if err := s.servers.ReloadConfig(); err != nil {
		s.errorResponse(w, http.StatusInternalServerError, fmt.Sprintf("Error reloading configuration: %v", err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{
		"message": "MCP configuration reloaded successfully",
	}, s.logger)
}
