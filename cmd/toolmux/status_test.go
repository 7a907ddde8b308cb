package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/kestrelworks/toolmux/internal/api"
	"github.com/kestrelworks/toolmux/internal/registry"
)

func TestPrintServerTable(t *testing.T) {
	status := api.ServersStatusResponse{
		Summary: api.StatusSummary{
			TotalServers:   2,
			RunningServers: 1,
			EnabledServers: 2,
			TotalTools:     3,
			TotalResources: 1,
		},
		Servers: map[string]registry.ServerStatus{
			"time": {
				Enabled:     true,
				Running:     false,
				Description: "Time and date operations",
				Command:     "uvx mcp-server-time",
			},
			"filesystem": {
				Enabled:        true,
				Running:        true,
				Description:    "File system operations",
				ToolsCount:     3,
				ResourcesCount: 1,
				Command:        "uvx mcp-server-filesystem",
			},
		},
	}

	var buf bytes.Buffer
	if err := printServerTable(&buf, status); err != nil {
		t.Fatalf("printServerTable() error = %v", err)
	}
	out := buf.String()

	if !strings.Contains(out, "Servers: 2 total, 1 running, 2 enabled") {
		t.Errorf("output missing summary line:\n%s", out)
	}
	if !strings.Contains(out, "Tools: 3   Resources: 1") {
		t.Errorf("output missing tool/resource counts:\n%s", out)
	}
	for _, want := range []string{"NAME", "STATUS", "running", "stopped", "uvx mcp-server-time"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	// Rows are sorted by server name.
	if strings.Index(out, "filesystem") > strings.Index(out, "time") {
		t.Errorf("servers not sorted by name:\n%s", out)
	}
}

func TestPrintServerTable_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := printServerTable(&buf, api.ServersStatusResponse{}); err != nil {
		t.Fatalf("printServerTable() error = %v", err)
	}
	if !strings.Contains(buf.String(), "Servers: 0 total, 0 running, 0 enabled") {
		t.Errorf("output missing zero summary:\n%s", buf.String())
	}
}
