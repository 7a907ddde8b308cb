// Toolmux spawns and supervises MCP tool-server processes and
// multiplexes their catalogs behind one HTTP API.
//
// Usage:
//
//	toolmux serve                Start servers and serve the API
//	toolmux init [path]          Write a starter configuration file
//	toolmux status               Show server status from a running daemon
//	toolmux tools                List the aggregated tool catalog
//	toolmux resources            List discovered resources
//	toolmux call <tool> [json]   Invoke a tool by catalog name
//	toolmux version              Print version and build information
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/kestrelworks/toolmux/internal/buildinfo"
	"github.com/kestrelworks/toolmux/internal/config"
	"github.com/spf13/cobra"
)

var (
	flagConfig string
	flagAddr   string
	flagToken  string
)

var rootCmd = &cobra.Command{
	Use:   "toolmux",
	Short: "Manage MCP tool servers and multiplex their catalogs",
	Long: `toolmux spawns and supervises the MCP tool-server processes declared in
mcp_servers.yaml, aggregates their tools and resources into one catalog,
and serves catalog, execution, and admin endpoints over HTTP.

Server failures never take the daemon down: a server that cannot start
falls back to a static catalog, and a server that stops responding is
confirmed dead with backoff retries and dropped from the catalog.`,
	Example: `  toolmux init                     # Write a starter mcp_servers.yaml
  toolmux serve                    # Start enabled servers and serve the API
  toolmux status                   # Ask a running daemon for server status
  toolmux call filesystem:read_file '{"path": "/tmp/notes.txt"}'`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to mcp_servers.yaml (default: search standard locations)")
	rootCmd.PersistentFlags().StringVar(&flagAddr, "addr", "", "Daemon listen address (default: TOOLMUX_LISTEN_ADDR or 127.0.0.1:8900)")
	rootCmd.PersistentFlags().StringVar(&flagToken, "token", "", "Admin bearer token (default: TOOLMUX_ADMIN_TOKEN)")

	rootCmd.Version = buildinfo.Version
	rootCmd.CompletionOptions.HiddenDefaultCmd = true
}

// resolveSettings layers command-line flags over environment settings.
// Flags win.
func resolveSettings() (config.Settings, error) {
	s, err := config.FromEnv()
	if err != nil {
		return s, err
	}
	if flagConfig != "" {
		s.ConfigPath = flagConfig
	}
	if flagAddr != "" {
		s.ListenAddr = flagAddr
	}
	if flagToken != "" {
		s.AdminToken = flagToken
	}
	return s, nil
}

// truncate shortens s to at most n characters for table display.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}
