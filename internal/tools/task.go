package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/strata/internal/hierarchy"
	"github.com/HendryAvila/strata/internal/placement"
)

// ─── CreateTaskTool ─────────────────────────────────────────────────────────

// CreateTaskTool handles the create_task MCP tool.
type CreateTaskTool struct {
	validator *placement.Validator
}

// NewCreateTaskTool creates a CreateTaskTool.
func NewCreateTaskTool(validator *placement.Validator) *CreateTaskTool {
	return &CreateTaskTool{validator: validator}
}

// Definition returns the MCP tool definition for create_task.
func (t *CreateTaskTool) Definition() mcp.Tool {
	return mcp.NewTool("create_task",
		mcp.WithDescription(
			"Create a task inside the hierarchy. The administrator may omit parent_id: "+
				"the task is classified and placed in a matching workstream of the current "+
				"(or given) phase, creating the workstream if needed. Other agents create "+
				"subtasks only; without parent_id the task goes under their active task.",
		),
		mcp.WithString("title",
			mcp.Required(),
			mcp.Description("Task title"),
		),
		mcp.WithString("creator_id",
			mcp.Required(),
			mcp.Description("Agent creating the task"),
		),
		mcp.WithString("description",
			mcp.Description("Task description"),
		),
		mcp.WithString("parent_id",
			mcp.Description("Parent task or workstream id"),
		),
		mcp.WithString("phase_id",
			mcp.Description("Target phase for administrator placement (default: current phase)"),
		),
		mcp.WithString("priority",
			mcp.Description("Task priority"),
			mcp.Enum("low", "medium", "high"),
		),
		mcp.WithString("depends_on",
			mcp.Description("Comma-separated ids of tasks this one depends on"),
		),
	)
}

// Handle processes the create_task tool call.
func (t *CreateTaskTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title := req.GetString("title", "")
	if title == "" {
		return mcp.NewToolResultError("'title' is required"), nil
	}
	creator := req.GetString("creator_id", "")
	if creator == "" {
		return mcp.NewToolResultError("'creator_id' is required"), nil
	}

	task, pl, err := t.validator.Create(ctx, placement.Request{
		Title:       title,
		Description: req.GetString("description", ""),
		CreatorID:   creator,
		ParentID:    req.GetString("parent_id", ""),
		PhaseID:     req.GetString("phase_id", ""),
		Priority:    hierarchy.Priority(req.GetString("priority", "")),
		DependsOn:   listArg(req, "depends_on"),
	})
	if err != nil {
		return errorResult("Create task", err), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Task Created\n\n**ID:** `%s`\n**Title:** %s\n**Parent:** `%s`\n**Phase:** `%s`\n**Role:** %s\n",
		task.ID, task.Title, pl.ParentID, pl.PhaseID, pl.Role)
	if pl.NewWorkstream != nil {
		fmt.Fprintf(&b, "\nOpened workstream `%s` (%s).\n", pl.NewWorkstream.ID, pl.NewWorkstream.Title)
	}
	if c := pl.Classification; c != nil {
		fmt.Fprintf(&b, "\n**Category:** %s (confidence %.2f)", c.Category, c.Confidence)
		if c.Degraded {
			b.WriteString(" - similarity scoring unavailable, keywords only")
		}
		b.WriteString("\n")
	}
	return mcp.NewToolResultText(b.String()), nil
}

// ─── UpdateTaskStatusTool ───────────────────────────────────────────────────

// UpdateTaskStatusTool handles the update_task_status MCP tool.
type UpdateTaskStatusTool struct {
	validator *placement.Validator
}

// NewUpdateTaskStatusTool creates an UpdateTaskStatusTool.
func NewUpdateTaskStatusTool(validator *placement.Validator) *UpdateTaskStatusTool {
	return &UpdateTaskStatusTool{validator: validator}
}

// Definition returns the MCP tool definition for update_task_status.
func (t *UpdateTaskStatusTool) Definition() mcp.Tool {
	return mcp.NewTool("update_task_status",
		mcp.WithDescription(
			"Change a task's status. A task with open children cannot be completed. "+
				"Tasks in a complete phase are frozen.",
		),
		mcp.WithString("task_id",
			mcp.Required(),
			mcp.Description("Task to update"),
		),
		mcp.WithString("status",
			mcp.Required(),
			mcp.Description("New status"),
			mcp.Enum("pending", "in_progress", "completed", "blocked", "cancelled"),
		),
		mcp.WithString("actor",
			mcp.Description("Who makes the change"),
		),
		mcp.WithString("note",
			mcp.Description("Optional note appended to the task log"),
		),
		mcp.WithBoolean("cascade",
			mcp.Description("When cancelling, also cancel every open descendant (default: false)"),
		),
	)
}

// Handle processes the update_task_status tool call.
func (t *UpdateTaskStatusTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("task_id", "")
	if id == "" {
		return mcp.NewToolResultError("'task_id' is required"), nil
	}
	status := req.GetString("status", "")
	if status == "" {
		return mcp.NewToolResultError("'status' is required"), nil
	}

	changed, err := t.validator.SetStatus(placement.StatusChange{
		TaskID:  id,
		Status:  hierarchy.TaskStatus(status),
		Actor:   req.GetString("actor", ""),
		Note:    req.GetString("note", ""),
		Cascade: boolArg(req, "cascade", false),
	})
	if err != nil {
		return errorResult("Update task status", err), nil
	}

	msg := fmt.Sprintf("%s `%s` is now **%s**.", statusMarker(status), id, status)
	if len(changed) > 1 {
		msg += fmt.Sprintf("\n\nAlso cancelled: %s", strings.Join(quoted(changed[1:]), ", "))
	}
	return mcp.NewToolResultText(msg), nil
}

// ─── AssignTaskTool ─────────────────────────────────────────────────────────

// AssignTaskTool handles the assign_task MCP tool.
type AssignTaskTool struct {
	validator *placement.Validator
}

// NewAssignTaskTool creates an AssignTaskTool.
func NewAssignTaskTool(validator *placement.Validator) *AssignTaskTool {
	return &AssignTaskTool{validator: validator}
}

// Definition returns the MCP tool definition for assign_task.
func (t *AssignTaskTool) Definition() mcp.Tool {
	return mcp.NewTool("assign_task",
		mcp.WithDescription(
			"Assign a task to an agent. The task becomes the agent's active task, "+
				"so subtasks the agent creates without a parent land under it.",
		),
		mcp.WithString("task_id",
			mcp.Required(),
			mcp.Description("Task to assign"),
		),
		mcp.WithString("agent_id",
			mcp.Required(),
			mcp.Description("Agent receiving the task"),
		),
	)
}

// Handle processes the assign_task tool call.
func (t *AssignTaskTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID := req.GetString("task_id", "")
	agentID := req.GetString("agent_id", "")
	if taskID == "" || agentID == "" {
		return mcp.NewToolResultError("'task_id' and 'agent_id' are required"), nil
	}
	if err := t.validator.Assign(taskID, agentID); err != nil {
		return errorResult("Assign task", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Assigned `%s` to `%s`.", taskID, agentID)), nil
}
