package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/kestrelworks/toolmux/internal/registry"
)

// fakeCatalog is a canned registry view for adapter tests.
type fakeCatalog struct {
	tools    []registry.ServerTool
	lastCall string
	lastArgs map[string]any
	result   string
}

func (f *fakeCatalog) AllTools() []registry.ServerTool {
	return f.tools
}

func (f *fakeCatalog) CallTool(_ context.Context, server, tool string, args map[string]any) string {
	f.lastCall = server + "/" + tool
	f.lastArgs = args
	if f.result != "" {
		return f.result
	}
	return fmt.Sprintf("called %s/%s", server, tool)
}

func remoteTool(server, name string) registry.ServerTool {
	return registry.ServerTool{
		Server:      server,
		Name:        name,
		Description: name + " tool",
		InputSchema: map[string]any{"type": "object"},
		FullName:    registry.QualifiedName(server, name),
	}
}

func TestAdapterList_MergesRemoteAndLocal(t *testing.T) {
	cat := &fakeCatalog{tools: []registry.ServerTool{
		remoteTool("filesystem", "read_file"),
		remoteTool("web", "search"),
	}}
	a := NewAdapter(cat, NewLocalRegistry(), nil)

	list := a.List()

	wantNames := []string{
		"filesystem:read_file",
		"web:search",
		"legacy_analyze_document",
		"legacy_research_assistance",
		"legacy_format_citation",
	}
	if len(list) != len(wantNames) {
		t.Fatalf("List() has %d entries, want %d", len(list), len(wantNames))
	}
	for i, want := range wantNames {
		if list[i].Name != want {
			t.Errorf("List()[%d].Name = %q, want %q", i, list[i].Name, want)
		}
	}

	if list[0].Server != "filesystem" {
		t.Errorf("List()[0].Server = %q, want filesystem", list[0].Server)
	}
	if list[2].Server != "legacy" {
		t.Errorf("List()[2].Server = %q, want legacy", list[2].Server)
	}
	for i, at := range list {
		if at.Invoker == nil {
			t.Errorf("List()[%d].Invoker is nil", i)
		}
	}
}

func TestAdapterList_NoServers(t *testing.T) {
	a := NewAdapter(&fakeCatalog{}, NewLocalRegistry(), nil)

	list := a.List()
	if len(list) != 3 {
		t.Fatalf("List() has %d entries, want 3 local tools", len(list))
	}
	for _, at := range list {
		if !strings.HasPrefix(at.Name, "legacy_") {
			t.Errorf("entry %q missing legacy_ prefix", at.Name)
		}
	}
}

func TestAdapterExecute_LegacyRoute(t *testing.T) {
	a := NewAdapter(&fakeCatalog{}, NewLocalRegistry(), nil)

	got, err := a.Execute(context.Background(), "legacy_format_citation", map[string]any{
		"source_info": map[string]any{},
		"style":       "APA",
	})
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if got != "Smith, J. (2023). Title of work. Publisher." {
		t.Errorf("Execute() = %q", got)
	}
}

func TestAdapterExecute_LegacyUnknown(t *testing.T) {
	a := NewAdapter(&fakeCatalog{}, NewLocalRegistry(), nil)

	_, err := a.Execute(context.Background(), "legacy_nonexistent", nil)

	var notFound *ErrToolNotFound
	if !errors.As(err, &notFound) {
		t.Fatalf("Execute() error = %v, want ErrToolNotFound", err)
	}
	if notFound.Name != "legacy_nonexistent" {
		t.Errorf("ErrToolNotFound.Name = %q, want legacy_nonexistent", notFound.Name)
	}
}

func TestAdapterExecute_QualifiedRoute(t *testing.T) {
	cat := &fakeCatalog{result: "file contents"}
	a := NewAdapter(cat, NewLocalRegistry(), nil)

	got, err := a.Execute(context.Background(), "filesystem:read_file", map[string]any{"path": "/x"})
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if got != "file contents" {
		t.Errorf("Execute() = %q, want %q", got, "file contents")
	}
	if cat.lastCall != "filesystem/read_file" {
		t.Errorf("routed to %q, want filesystem/read_file", cat.lastCall)
	}
	if cat.lastArgs["path"] != "/x" {
		t.Errorf("args = %v, want path=/x", cat.lastArgs)
	}
}

// A not-running server comes back as a result string from the
// registry, not as an error: the caller still gets a 200-shaped reply.
func TestAdapterExecute_NotRunningResultString(t *testing.T) {
	cat := &fakeCatalog{result: "Server filesystem not found or not running"}
	a := NewAdapter(cat, NewLocalRegistry(), nil)

	got, err := a.Execute(context.Background(), "filesystem:read_file", nil)
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if got != "Server filesystem not found or not running" {
		t.Errorf("Execute() = %q", got)
	}
}

func TestAdapterExecute_BareNameSearch(t *testing.T) {
	cat := &fakeCatalog{tools: []registry.ServerTool{
		remoteTool("filesystem", "read_file"),
		remoteTool("web", "search"),
	}}
	a := NewAdapter(cat, NewLocalRegistry(), nil)

	if _, err := a.Execute(context.Background(), "search", nil); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if cat.lastCall != "web/search" {
		t.Errorf("routed to %q, want web/search", cat.lastCall)
	}

	_, err := a.Execute(context.Background(), "nonexistent", nil)
	var notFound *ErrToolNotFound
	if !errors.As(err, &notFound) {
		t.Errorf("Execute(unknown bare name) error = %v, want ErrToolNotFound", err)
	}
}

func TestRemoteInvoker(t *testing.T) {
	cat := &fakeCatalog{tools: []registry.ServerTool{remoteTool("filesystem", "read_file")}}
	a := NewAdapter(cat, NewLocalRegistry(), nil)
	inv := a.List()[0].Invoker

	t.Run("json input", func(t *testing.T) {
		inv.Invoke(context.Background(), `{"path": "/etc/hosts"}`)
		if cat.lastArgs["path"] != "/etc/hosts" {
			t.Errorf("args = %v, want path=/etc/hosts", cat.lastArgs)
		}
	})

	t.Run("plain string input wrapped", func(t *testing.T) {
		inv.Invoke(context.Background(), "just text")
		if cat.lastArgs["input"] != "just text" {
			t.Errorf("args = %v, want input=just text", cat.lastArgs)
		}
	})

	t.Run("malformed json", func(t *testing.T) {
		got := inv.Invoke(context.Background(), `{"path": `)
		if !strings.HasPrefix(got, "Error executing filesystem:read_file: ") {
			t.Errorf("Invoke() = %q, want error string", got)
		}
	})
}

func TestLocalInvoker(t *testing.T) {
	a := NewAdapter(&fakeCatalog{}, NewLocalRegistry(), nil)

	var inv Invoker
	for _, at := range a.List() {
		if at.Name == "legacy_format_citation" {
			inv = at.Invoker
		}
	}
	if inv == nil {
		t.Fatal("legacy_format_citation not in List()")
	}

	got := inv.Invoke(context.Background(), `{"style": "MLA", "source_info": {}}`)
	if got != "Smith, John. Title of Work. Publisher, 2023." {
		t.Errorf("Invoke() = %q", got)
	}
}

func TestParseInput(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    map[string]any
		wantErr bool
	}{
		{
			name:  "json object",
			input: `{"path": "/x", "count": 3}`,
			want:  map[string]any{"path": "/x", "count": float64(3)},
		},
		{
			name:  "leading whitespace",
			input: `   {"a": "b"}`,
			want:  map[string]any{"a": "b"},
		},
		{
			name:  "plain string",
			input: "read the readme",
			want:  map[string]any{"input": "read the readme"},
		},
		{
			name:  "empty string",
			input: "",
			want:  map[string]any{"input": ""},
		},
		{
			name:    "malformed json",
			input:   `{"a": `,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseInput(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatal("ParseInput() succeeded, want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseInput() error: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("ParseInput() = %v, want %v", got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("ParseInput()[%q] = %v, want %v", k, got[k], v)
				}
			}
		})
	}
}
