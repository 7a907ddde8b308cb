package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kestrelworks/toolmux/internal/registry"
)

// legacyPrefix namespaces local tools in the flat catalog so they can
// never shadow a remote qualified name.
const legacyPrefix = "legacy_"

// ErrToolNotFound is returned when an execute call targets a name that
// exists neither in the aggregated remote catalog nor in the local
// registry. This is an addressing mistake, not a transient failure;
// callers should not retry.
type ErrToolNotFound struct {
	Name string
}

// Error implements the error interface.
func (e *ErrToolNotFound) Error() string {
	return fmt.Sprintf("tool %q not found", e.Name)
}

// Catalog is the slice of the server registry the adapter consumes:
// the aggregated tool listing and call routing. *registry.Manager
// satisfies it.
type Catalog interface {
	AllTools() []registry.ServerTool
	CallTool(ctx context.Context, server, tool string, args map[string]any) string
}

// Invoker executes one tool from a plain text input and always
// produces a string result.
type Invoker interface {
	Invoke(ctx context.Context, input string) string
}

// AgentTool is one entry in the flattened catalog handed to an agent
// loop: descriptive metadata plus a string-in/string-out invoker.
type AgentTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
	Server      string         `json:"server"`
	Invoker     Invoker        `json:"-"`
}

// Adapter merges the registry's aggregated catalog with the local
// tools into one flat list of invocable units. Remote tools keep their
// qualified names; local tools get the legacy_ prefix. A remote
// qualified name and a local name never collide because of the prefix,
// and both stay independently addressable.
type Adapter struct {
	catalog Catalog
	local   *LocalRegistry
	logger  *slog.Logger
}

// NewAdapter creates an adapter over the given catalog and local
// tool set.
func NewAdapter(catalog Catalog, local *LocalRegistry, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		catalog: catalog,
		local:   local,
		logger:  logger,
	}
}

// Local returns the adapter's local tool registry.
func (a *Adapter) Local() *LocalRegistry {
	return a.local
}

// List returns the current flat catalog: every remote tool from every
// running server, then every local tool. The list is rebuilt on each
// call since the remote catalog changes as servers start and stop.
func (a *Adapter) List() []AgentTool {
	var out []AgentTool

	for _, t := range a.catalog.AllTools() {
		out = append(out, AgentTool{
			Name:        t.FullName,
			Description: t.Description,
			Parameters:  t.InputSchema,
			Server:      t.Server,
			Invoker: remoteInvoker{
				catalog:  a.catalog,
				server:   t.Server,
				tool:     t.Name,
				fullName: t.FullName,
			},
		})
	}

	for _, t := range a.local.All() {
		out = append(out, AgentTool{
			Name:        legacyPrefix + t.Name,
			Description: t.Description,
			Parameters:  t.Parameters,
			Server:      "legacy",
			Invoker:     localInvoker{local: a.local, name: t.Name},
		})
	}

	return out
}

// Execute routes a call by its externally visible name: legacy_ names
// go to the local registry, server:tool names go straight to the
// registry, and bare names are resolved by searching the aggregated
// catalog. The result is always a string; ErrToolNotFound is the only
// error and means the name matched nothing.
func (a *Adapter) Execute(ctx context.Context, name string, args map[string]any) (string, error) {
	if strings.HasPrefix(name, legacyPrefix) {
		bare := strings.TrimPrefix(name, legacyPrefix)
		if _, ok := a.local.Get(bare); !ok {
			return "", &ErrToolNotFound{Name: name}
		}
		a.logger.Debug("executing local tool", "tool", bare)
		return a.local.Execute(ctx, bare, args), nil
	}

	if server, tool, ok := registry.SplitQualifiedName(name); ok {
		a.logger.Debug("executing remote tool", "server", server, "tool", tool)
		return a.catalog.CallTool(ctx, server, tool, args), nil
	}

	// Bare name: take the first aggregated tool that matches.
	for _, t := range a.catalog.AllTools() {
		if t.Name == name {
			a.logger.Debug("executing remote tool", "server", t.Server, "tool", t.Name)
			return a.catalog.CallTool(ctx, t.Server, t.Name, args), nil
		}
	}

	return "", &ErrToolNotFound{Name: name}
}

// ParseInput converts agent-supplied input text into a tool argument
// object. JSON-shaped input ('{'-prefixed after trimming) is parsed as
// the argument map; anything else is wrapped as {"input": text}.
func ParseInput(input string) (map[string]any, error) {
	if strings.HasPrefix(strings.TrimSpace(input), "{") {
		var args map[string]any
		if err := json.Unmarshal([]byte(input), &args); err != nil {
			return nil, fmt.Errorf("parse tool input: %w", err)
		}
		return args, nil
	}
	return map[string]any{"input": input}, nil
}

// remoteInvoker routes invocations of one discovered tool to its
// owning server through the registry.
type remoteInvoker struct {
	catalog  Catalog
	server   string
	tool     string
	fullName string
}

func (inv remoteInvoker) Invoke(ctx context.Context, input string) string {
	args, err := ParseInput(input)
	if err != nil {
		return fmt.Sprintf("Error executing %s: %v", inv.fullName, err)
	}
	return inv.catalog.CallTool(ctx, inv.server, inv.tool, args)
}

// localInvoker executes one local tool synchronously in memory.
type localInvoker struct {
	local *LocalRegistry
	name  string
}

func (inv localInvoker) Invoke(ctx context.Context, input string) string {
	args, err := ParseInput(input)
	if err != nil {
		return fmt.Sprintf("Error executing %s: %v", inv.name, err)
	}
	return inv.local.Execute(ctx, inv.name, args)
}
