package mcp

import (
	"encoding/json"
	"fmt"
	"time"
)

// fallbackTools is the fixed catalog installed when a server cannot be
// spawned or fails its handshake. It keeps the API shape intact under
// degradation: callers still see a non-empty tool list and calls still
// return strings, just mock ones.
func fallbackTools() []ToolDefinition {
	return []ToolDefinition{
		{
			Name:        "filesystem_read",
			Description: "Read content from a file",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path": map[string]any{"type": "string", "description": "Path to the file"},
				},
				"required": []any{"path"},
			},
		},
		{
			Name:        "filesystem_write",
			Description: "Write content to a file",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path":    map[string]any{"type": "string", "description": "Path to the file"},
					"content": map[string]any{"type": "string", "description": "Content to write"},
				},
				"required": []any{"path", "content"},
			},
		},
		{
			Name:        "web_search",
			Description: "Search the web for information",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query":       map[string]any{"type": "string", "description": "Search query"},
					"max_results": map[string]any{"type": "integer", "description": "Max results", "default": 5},
				},
				"required": []any{"query"},
			},
		},
		{
			Name:        "time_now",
			Description: "Get current date and time",
			InputSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
				"required":   []any{},
			},
		},
	}
}

// mockToolResult executes a fallback tool in memory.
func mockToolResult(name string, args map[string]any) string {
	switch name {
	case "filesystem_read":
		return fmt.Sprintf("Mock: Reading file '%s'", stringArg(args, "path"))
	case "filesystem_write":
		content := stringArg(args, "content")
		return fmt.Sprintf("Mock: Writing %d characters to '%s'", len(content), stringArg(args, "path"))
	case "web_search":
		return fmt.Sprintf("Mock: Searching for '%s' (max %d results)",
			stringArg(args, "query"), intArg(args, "max_results", 5))
	case "time_now":
		return "Current time: " + time.Now().Format(time.RFC3339)
	default:
		data, _ := json.Marshal(args)
		return fmt.Sprintf("Mock result for tool '%s' with arguments: %s", name, data)
	}
}

// stringArg extracts a string argument, empty when absent or mistyped.
func stringArg(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

// intArg extracts an integer argument. JSON numbers arrive as float64.
func intArg(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return def
	}
}
