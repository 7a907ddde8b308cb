package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/kestrelworks/toolmux/internal/registry"
	"github.com/spf13/cobra"
)

var resourcesCmd = &cobra.Command{
	Use:   "resources",
	Short: "List resources discovered on running servers",
	Args:  cobra.NoArgs,
	RunE:  runResources,
}

func init() {
	rootCmd.AddCommand(resourcesCmd)
}

func runResources(cmd *cobra.Command, args []string) error {
	client, err := newAdminClient()
	if err != nil {
		return err
	}

	var list []registry.ServerResource
	if err := client.getJSON(cmd.Context(), "/api/mcp/resources", &list); err != nil {
		return err
	}

	return printResourceTable(cmd.OutOrStdout(), list)
}

func printResourceTable(w io.Writer, list []registry.ServerResource) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tURI\tMIME")
	for _, r := range list {
		mime := r.MIMEType
		if mime == "" {
			mime = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", r.FullName, r.URI, mime)
	}
	return tw.Flush()
}
