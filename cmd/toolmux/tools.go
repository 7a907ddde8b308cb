package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/kestrelworks/toolmux/internal/tools"
	"github.com/spf13/cobra"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the aggregated tool catalog",
	Long: `tools lists every callable tool known to a running daemon: remote tools
as server:tool, local tools under the legacy_ prefix.`,
	Args: cobra.NoArgs,
	RunE: runTools,
}

func init() {
	rootCmd.AddCommand(toolsCmd)
}

func runTools(cmd *cobra.Command, args []string) error {
	client, err := newAdminClient()
	if err != nil {
		return err
	}

	var list []tools.AgentTool
	if err := client.getJSON(cmd.Context(), "/api/mcp/tools", &list); err != nil {
		return err
	}

	return printToolTable(cmd.OutOrStdout(), list)
}

func printToolTable(w io.Writer, list []tools.AgentTool) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSERVER\tDESCRIPTION")
	for _, t := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", t.Name, t.Server, truncate(t.Description, 60))
	}
	return tw.Flush()
}
