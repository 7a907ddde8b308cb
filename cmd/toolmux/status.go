package main

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/kestrelworks/toolmux/internal/api"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show tool-server status from a running daemon",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	client, err := newAdminClient()
	if err != nil {
		return err
	}

	var status api.ServersStatusResponse
	if err := client.getJSON(cmd.Context(), "/api/mcp/servers/status", &status); err != nil {
		return err
	}

	return printServerTable(cmd.OutOrStdout(), status)
}

// printServerTable renders the status response as a summary line and an
// aligned table, one row per configured server.
func printServerTable(w io.Writer, status api.ServersStatusResponse) error {
	s := status.Summary
	fmt.Fprintf(w, "Servers: %d total, %d running, %d enabled\n", s.TotalServers, s.RunningServers, s.EnabledServers)
	fmt.Fprintf(w, "Tools: %d   Resources: %d\n\n", s.TotalTools, s.TotalResources)

	names := make([]string, 0, len(status.Servers))
	for name := range status.Servers {
		names = append(names, name)
	}
	sort.Strings(names)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSTATUS\tENABLED\tTOOLS\tRESOURCES\tCOMMAND")
	for _, name := range names {
		st := status.Servers[name]
		state := "stopped"
		if st.Running {
			state = "running"
		}
		enabled := "no"
		if st.Enabled {
			enabled = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n", name, state, enabled, st.ToolsCount, st.ResourcesCount, st.Command)
	}
	return tw.Flush()
}
