package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kestrelworks/toolmux/internal/api"
)

func TestRunCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/mcp/tools/execute" {
			t.Errorf("path = %s, want /api/mcp/tools/execute", r.URL.Path)
		}
		var req api.ToolExecutionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.ToolName != "filesystem:read_file" {
			t.Errorf("tool_name = %q, want filesystem:read_file", req.ToolName)
		}
		if req.Parameters["path"] != "notes.txt" {
			t.Errorf("parameters = %v, want path=notes.txt", req.Parameters)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(api.ToolExecutionResponse{
			Result:   "file contents",
			ToolName: req.ToolName,
		})
	}))
	defer srv.Close()

	t.Setenv("TOOLMUX_LISTEN_ADDR", strings.TrimPrefix(srv.URL, "http://"))
	oldAddr, oldToken := flagAddr, flagToken
	defer func() { flagAddr, flagToken = oldAddr, oldToken }()
	flagAddr, flagToken = "", ""

	var buf bytes.Buffer
	err := runCall(newTestCommand(&buf), []string{"filesystem:read_file", `{"path":"notes.txt"}`})
	if err != nil {
		t.Fatalf("runCall() error = %v", err)
	}

	if got := buf.String(); got != "file contents\n" {
		t.Errorf("output = %q, want the bare result text", got)
	}
}

func TestRunCall_DefaultsToEmptyParameters(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req api.ToolExecutionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Parameters == nil || len(req.Parameters) != 0 {
			t.Errorf("parameters = %v, want empty object", req.Parameters)
		}
		json.NewEncoder(w).Encode(api.ToolExecutionResponse{Result: "ok", ToolName: req.ToolName})
	}))
	defer srv.Close()

	t.Setenv("TOOLMUX_LISTEN_ADDR", strings.TrimPrefix(srv.URL, "http://"))
	oldAddr, oldToken := flagAddr, flagToken
	defer func() { flagAddr, flagToken = oldAddr, oldToken }()
	flagAddr, flagToken = "", ""

	var buf bytes.Buffer
	if err := runCall(newTestCommand(&buf), []string{"legacy_research_assistance"}); err != nil {
		t.Fatalf("runCall() error = %v", err)
	}
}

func TestRunCall_RejectsBadParameterJSON(t *testing.T) {
	var buf bytes.Buffer
	err := runCall(newTestCommand(&buf), []string{"filesystem:read_file", "{not json"})
	if err == nil {
		t.Fatal("expected error for malformed parameter JSON, got nil")
	}
	if !strings.Contains(err.Error(), "parameters must be a JSON object") {
		t.Errorf("error = %q, want parameter parse failure", err)
	}
}
