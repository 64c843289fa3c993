// Package tools implements the MCP tool handlers for the task hierarchy.
//
// Each tool is a struct holding its dependencies, built by a constructor:
// - Definition() returns the mcp.Tool schema
// - Handle() processes a CallToolRequest and renders a markdown result
//
// Domain failures (a structural rule, a permission check, a migration in
// progress) come back as tool error results so the agent can react.
// Only infrastructure failures are returned as Go errors.
package tools

import (
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/strata/internal/errors"
	"github.com/HendryAvila/strata/internal/hierarchy"
)

// boolArg extracts a boolean argument from a tool request.
func boolArg(req mcp.CallToolRequest, key string, defaultVal bool) bool {
	v, ok := req.GetArguments()[key].(bool)
	if !ok {
		return defaultVal
	}
	return v
}

// listArg reads a comma-separated string argument into trimmed ids.
func listArg(req mcp.CallToolRequest, key string) []string {
	raw := req.GetString(key, "")
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// errorResult renders a coded error for the agent. Uncoded errors are
// reported as-is.
func errorResult(action string, err error) *mcp.CallToolResult {
	se, ok := errors.As(err)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("%s failed: %v", action, err))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s failed [%s]: %s", action, se.Code, se.Message)
	if se.Cause != nil {
		fmt.Fprintf(&b, ": %v", se.Cause)
	}
	if len(se.Subjects) > 0 {
		fmt.Fprintf(&b, "\n\n**Involved:** %s", strings.Join(quoted(se.Subjects), ", "))
	}
	if se.Retryable() {
		b.WriteString("\n\nThis is temporary. Retry after the migration finishes.")
	}
	for _, s := range se.Suggestions {
		fmt.Fprintf(&b, "\n- %s", s)
	}
	return mcp.NewToolResultError(b.String())
}

func quoted(ids []string) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = "`" + id + "`"
	}
	return out
}

// statusMarker maps a task or phase status to the marker used in tables.
func statusMarker(status string) string {
	switch status {
	case string(hierarchy.StatusCompleted), string(hierarchy.PhaseComplete):
		return "✅"
	case string(hierarchy.StatusInProgress):
		return "🔄"
	case string(hierarchy.StatusBlocked):
		return "⛔"
	case string(hierarchy.StatusCancelled):
		return "✖"
	default:
		return "⬜"
	}
}

// progressBar renders pct (0-100) as a 20-cell bar.
func progressBar(pct float64) string {
	filled := int(pct / 5)
	if filled > 20 {
		filled = 20
	}
	if filled < 0 {
		filled = 0
	}
	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", 20-filled) + "]"
}
