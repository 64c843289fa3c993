package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/strata/internal/hierarchy"
)

// TreeStore reads the hierarchy.
type TreeStore interface {
	ListPhases() ([]hierarchy.Phase, error)
	ListTasks() ([]hierarchy.Task, error)
}

// TaskTreeTool handles the view_task_tree MCP tool.
type TaskTreeTool struct {
	store TreeStore
}

// NewTaskTreeTool creates a TaskTreeTool.
func NewTaskTreeTool(store TreeStore) *TaskTreeTool {
	return &TaskTreeTool{store: store}
}

// Definition returns the MCP tool definition for view_task_tree.
func (t *TaskTreeTool) Definition() mcp.Tool {
	return mcp.NewTool("view_task_tree",
		mcp.WithDescription(
			"Render the hierarchy as an indented tree: phases, workstreams, tasks and subtasks. "+
				"Tasks not yet migrated are listed separately.",
		),
		mcp.WithString("root_id",
			mcp.Description("Phase or task id to start from. If omitted, shows every phase."),
		),
		mcp.WithNumber("max_depth",
			mcp.Description("Levels below the root to show (default: unlimited)"),
		),
	)
}

// Handle processes the view_task_tree tool call.
func (t *TaskTreeTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	phases, err := t.store.ListPhases()
	if err != nil {
		return nil, fmt.Errorf("listing phases: %w", err)
	}
	tasks, err := t.store.ListTasks()
	if err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}
	idx := hierarchy.NewIndex(phases, tasks)

	maxDepth := -1
	if v, ok := req.GetArguments()["max_depth"].(float64); ok && v >= 0 {
		maxDepth = int(v)
	}

	var b strings.Builder
	b.WriteString("# Task Tree\n\n```\n")
	rootID := req.GetString("root_id", "")
	switch {
	case rootID == "":
		if len(phases) == 0 {
			b.WriteString("(no phases)\n")
		}
		for _, p := range phases {
			writeNode(&b, idx, p.ID, 0, maxDepth)
		}
	default:
		_, isPhase := idx.Phase(rootID)
		_, isTask := idx.Task(rootID)
		if !isPhase && !isTask {
			return mcp.NewToolResultError(fmt.Sprintf("No phase or task with id %q", rootID)), nil
		}
		writeNode(&b, idx, rootID, 0, maxDepth)
	}
	b.WriteString("```\n")

	if rootID == "" {
		unplaced, err := idx.Unplaced()
		if err == nil && len(unplaced) > 0 {
			fmt.Fprintf(&b, "\n**Not migrated (%d):** %s\n", len(unplaced), strings.Join(quoted(unplaced), ", "))
		}
	}
	return mcp.NewToolResultText(b.String()), nil
}

func writeNode(b *strings.Builder, idx *hierarchy.Index, id string, depth, maxDepth int) {
	indent := strings.Repeat("  ", depth)
	if p, ok := idx.Phase(id); ok {
		fmt.Fprintf(b, "%s%s %s [%s] (%s)\n", indent, statusMarker(string(p.Status)), p.Title, p.Status, p.ID)
	} else {
		task, _ := idx.Task(id)
		fmt.Fprintf(b, "%s%s %s [%s] (%s)\n", indent, statusMarker(string(task.Status)), task.Title, task.Status, task.ID)
	}
	if maxDepth >= 0 && depth >= maxDepth {
		return
	}
	for _, c := range idx.Children(id) {
		writeNode(b, idx, c, depth+1, maxDepth)
	}
}
