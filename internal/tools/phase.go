package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/strata/internal/phase"
)

// ─── CreatePhaseTool ────────────────────────────────────────────────────────

// CreatePhaseTool handles the create_phase MCP tool.
type CreatePhaseTool struct {
	machine *phase.Machine
}

// NewCreatePhaseTool creates a CreatePhaseTool.
func NewCreatePhaseTool(machine *phase.Machine) *CreatePhaseTool {
	return &CreatePhaseTool{machine: machine}
}

// Definition returns the MCP tool definition for create_phase.
func (t *CreatePhaseTool) Definition() mcp.Tool {
	var types []string
	for _, d := range phase.Definitions() {
		types = append(types, d.Type)
	}
	return mcp.NewTool("create_phase",
		mcp.WithDescription(
			"Create a development phase from its standard definition. "+
				"Phases are linear: every prerequisite phase must be complete first. "+
				"Available phases: "+strings.Join(types, ", ")+".",
		),
		mcp.WithString("phase",
			mcp.Required(),
			mcp.Description("Phase type (e.g. 'foundation') or id (e.g. 'phase_1_foundation')"),
		),
		mcp.WithString("title",
			mcp.Description("Optional custom title"),
		),
		mcp.WithString("description",
			mcp.Description("Optional custom description"),
		),
	)
}

// Handle processes the create_phase tool call.
func (t *CreatePhaseTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	key := req.GetString("phase", "")
	if key == "" {
		return mcp.NewToolResultError("'phase' is required"), nil
	}

	p, err := t.machine.Create(phase.CreateRequest{
		Phase:             key,
		CustomTitle:       req.GetString("title", ""),
		CustomDescription: req.GetString("description", ""),
	})
	if err != nil {
		return errorResult("Create phase", err), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Phase Created\n\n**ID:** `%s`\n**Title:** %s\n**Status:** %s\n\n%s\n",
		p.ID, p.Title, p.Status, p.Description)
	if len(p.Objectives) > 0 {
		b.WriteString("\n## Objectives\n\n")
		for _, o := range p.Objectives {
			fmt.Fprintf(&b, "- %s\n", o)
		}
	}
	b.WriteString("\nAdd work with `create_task`; the phase starts when its first workstream is attached.")
	return mcp.NewToolResultText(b.String()), nil
}

// ─── PhaseStatusTool ────────────────────────────────────────────────────────

// PhaseStatusTool handles the view_phase_status MCP tool.
type PhaseStatusTool struct {
	machine *phase.Machine
}

// NewPhaseStatusTool creates a PhaseStatusTool.
func NewPhaseStatusTool(machine *phase.Machine) *PhaseStatusTool {
	return &PhaseStatusTool{machine: machine}
}

// Definition returns the MCP tool definition for view_phase_status.
func (t *PhaseStatusTool) Definition() mcp.Tool {
	return mcp.NewTool("view_phase_status",
		mcp.WithDescription(
			"Show completion for one phase or for all phases. Completion is the mean "+
				"of workstream completions, computed recursively; cancelled tasks are excluded. "+
				"Lists the workstreams that block advancement.",
		),
		mcp.WithString("phase_id",
			mcp.Description("Phase to inspect. If omitted, shows every phase."),
		),
	)
}

// Handle processes the view_phase_status tool call.
func (t *PhaseStatusTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	reports, err := t.machine.Status(req.GetString("phase_id", ""))
	if err != nil {
		return errorResult("View phase status", err), nil
	}
	if len(reports) == 0 {
		return mcp.NewToolResultText("# Phase Status\n\nNo phases yet. Run `migrate` for legacy data or `create_phase` to start."), nil
	}

	var b strings.Builder
	b.WriteString("# Phase Status\n")
	for _, r := range reports {
		fmt.Fprintf(&b, "\n## %s %s (`%s`)\n\n", statusMarker(string(r.Status)), r.Title, r.PhaseID)
		fmt.Fprintf(&b, "**Status:** %s\n**Completion:** %s %.1f%%\n", r.Status, progressBar(r.Percent()), r.Percent())
		if len(r.Workstreams) > 0 {
			b.WriteString("\n| Workstream | Status | Done | Completion |\n")
			b.WriteString("|------------|--------|------|------------|\n")
			for _, ws := range r.Workstreams {
				fmt.Fprintf(&b, "| %s %s | %s | %d/%d | %.1f%% |\n",
					statusMarker(string(ws.Status)), ws.Title, ws.Status, ws.Completed, ws.Tasks, ws.Completion*100)
			}
		}
		switch {
		case r.CanAdvance:
			b.WriteString("\nReady to advance with `advance_phase`.\n")
		case len(r.Blocking) > 0:
			fmt.Fprintf(&b, "\n**Blocking:** %s\n", strings.Join(quoted(r.Blocking), ", "))
		}
		if len(r.ActiveAgents) > 0 {
			fmt.Fprintf(&b, "**Active agents:** %s\n", strings.Join(quoted(r.ActiveAgents), ", "))
		}
	}
	return mcp.NewToolResultText(b.String()), nil
}

// ─── AdvancePhaseTool ───────────────────────────────────────────────────────

// AdvancePhaseTool handles the advance_phase MCP tool.
type AdvancePhaseTool struct {
	machine *phase.Machine
}

// NewAdvancePhaseTool creates an AdvancePhaseTool.
func NewAdvancePhaseTool(machine *phase.Machine) *AdvancePhaseTool {
	return &AdvancePhaseTool{machine: machine}
}

// Definition returns the MCP tool definition for advance_phase.
func (t *AdvancePhaseTool) Definition() mcp.Tool {
	return mcp.NewTool("advance_phase",
		mcp.WithDescription(
			"Mark a phase complete. Only possible at 100% completion. "+
				"Completion is irreversible; the next phase can then be created.",
		),
		mcp.WithString("phase_id",
			mcp.Required(),
			mcp.Description("Phase to complete"),
		),
		mcp.WithString("actor",
			mcp.Description("Who is advancing the phase (recorded in workstream notes)"),
		),
		mcp.WithBoolean("deactivate_agents",
			mcp.Description("Terminate agents still working in the phase (default: false)"),
		),
	)
}

// Handle processes the advance_phase tool call.
func (t *AdvancePhaseTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("phase_id", "")
	if id == "" {
		return mcp.NewToolResultError("'phase_id' is required"), nil
	}

	res, err := t.machine.Advance(id, phase.AdvanceOptions{
		Actor:            req.GetString("actor", ""),
		DeactivateAgents: boolArg(req, "deactivate_agents", false),
	})
	if err != nil {
		return errorResult("Advance phase", err), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Phase Complete\n\n✅ `%s` is complete (%d workstreams).\n", id, len(res.Report.Workstreams))
	if len(res.Deactivated) > 0 {
		fmt.Fprintf(&b, "\n**Agents deactivated:** %s\n", strings.Join(quoted(res.Deactivated), ", "))
	}
	switch {
	case res.Next == nil:
		b.WriteString("\nThis was the last phase.")
	case res.NextExists:
		fmt.Fprintf(&b, "\nNext phase `%s` already exists.", res.Next.ID)
	default:
		fmt.Fprintf(&b, "\nNext: create `%s` (%s) with `create_phase`.", res.Next.ID, res.Next.Title)
	}
	return mcp.NewToolResultText(b.String()), nil
}
