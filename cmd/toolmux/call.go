package main

import (
	"encoding/json"
	"fmt"

	"github.com/kestrelworks/toolmux/internal/api"
	"github.com/spf13/cobra"
)

var callCmd = &cobra.Command{
	Use:   "call <tool> [parameters-json]",
	Short: "Invoke a tool by catalog name",
	Long: `call invokes one tool on a running daemon and prints its text result.

The tool name is any catalog name: "server:tool" for a remote tool,
a bare remote tool name, or "legacy_<name>" for a local tool. The
optional second argument is the parameters as a JSON object.`,
	Example: `  toolmux call filesystem:read_file '{"path": "/tmp/notes.txt"}'
  toolmux call legacy_format_citation '{"source_info": "Doe 2024", "style": "APA"}'`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runCall,
}

func init() {
	rootCmd.AddCommand(callCmd)
}

func runCall(cmd *cobra.Command, args []string) error {
	params := map[string]any{}
	if len(args) == 2 {
		if err := json.Unmarshal([]byte(args[1]), &params); err != nil {
			return fmt.Errorf("parameters must be a JSON object: %w", err)
		}
	}

	client, err := newAdminClient()
	if err != nil {
		return err
	}

	req := api.ToolExecutionRequest{ToolName: args[0], Parameters: params}
	var resp api.ToolExecutionResponse
	if err := client.postJSON(cmd.Context(), "/api/mcp/tools/execute", req, &resp); err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), resp.Result)
	return nil
}
