package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/strata/internal/migrate"
)

// ─── MigrationCheckTool ─────────────────────────────────────────────────────

// MigrationCheckTool handles the migration_check MCP tool.
type MigrationCheckTool struct {
	orch *migrate.Orchestrator
}

// NewMigrationCheckTool creates a MigrationCheckTool.
func NewMigrationCheckTool(orch *migrate.Orchestrator) *MigrationCheckTool {
	return &MigrationCheckTool{orch: orch}
}

// Definition returns the MCP tool definition for migration_check.
func (t *MigrationCheckTool) Definition() mcp.Tool {
	return mcp.NewTool("migration_check",
		mcp.WithDescription(
			"Report the task store's schema version, pending migrations and how many "+
				"tasks are still outside the phase hierarchy. Read-only.",
		),
	)
}

// Handle processes the migration_check tool call.
func (t *MigrationCheckTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st, err := t.orch.Check()
	if err != nil {
		return nil, fmt.Errorf("checking migration status: %w", err)
	}

	var b strings.Builder
	b.WriteString("# Migration Status\n\n")
	fmt.Fprintf(&b, "**Current version:** %s\n**Target version:** %s\n**Phases:** %d\n**Tasks:** %d (%d outside the hierarchy)\n",
		st.CurrentVersion, st.TargetVersion, st.Phases, st.Tasks, st.Unplaced)
	if st.NeedsMigration {
		b.WriteString("\n## Pending\n\n")
		for _, v := range st.Pending {
			fmt.Fprintf(&b, "- %s: %s\n", v.Version, v.Description)
		}
		b.WriteString("\nRun `migrate` (try `dry_run` first) to build the hierarchy.\n")
	} else {
		b.WriteString("\n✅ Up to date.\n")
	}
	if st.IntegrityError != "" {
		fmt.Fprintf(&b, "\n⚠️ **Integrity problem:** %s\n", st.IntegrityError)
	}
	if st.Migrating || st.LockHolder != nil {
		b.WriteString("\n🔒 A migration is in progress")
		if st.LockHolder != nil {
			fmt.Fprintf(&b, " (%s)", st.LockHolder)
		}
		b.WriteString(".\n")
	}
	if len(st.Ledger) > 0 {
		b.WriteString("\n## Ledger\n\n| Version | Applied | From | Run |\n|---------|---------|------|-----|\n")
		for _, e := range st.Ledger {
			fmt.Fprintf(&b, "| %s | %s | %s | %s |\n", e.Version, e.AppliedAt, e.FromVersion, e.RunID)
		}
	}
	return mcp.NewToolResultText(b.String()), nil
}

// ─── MigrateTool ────────────────────────────────────────────────────────────

// MigrateTool handles the migrate MCP tool.
type MigrateTool struct {
	orch *migrate.Orchestrator
}

// NewMigrateTool creates a MigrateTool.
func NewMigrateTool(orch *migrate.Orchestrator) *MigrateTool {
	return &MigrateTool{orch: orch}
}

// Definition returns the MCP tool definition for migrate.
func (t *MigrateTool) Definition() mcp.Tool {
	return mcp.NewTool("migrate",
		mcp.WithDescription(
			"Convert flat legacy tasks into the phase hierarchy. Backs up the store, groups "+
				"related tasks, classifies them into workstreams and writes everything in one "+
				"transaction. A store already migrated is left alone unless force is set.",
		),
		mcp.WithBoolean("dry_run",
			mcp.Description("Compute and show the plan without writing (default: false)"),
		),
		mcp.WithBoolean("force",
			mcp.Description("Run even if the store is already migrated; only unplaced tasks move (default: false)"),
		),
		mcp.WithBoolean("skip_backup",
			mcp.Description("Do not back up the store first (default: false)"),
		),
	)
}

// Handle processes the migrate tool call.
func (t *MigrateTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := t.orch.Run(ctx, migrate.RunOptions{
		DryRun:     boolArg(req, "dry_run", false),
		Force:      boolArg(req, "force", false),
		SkipBackup: boolArg(req, "skip_backup", false),
	})
	if err != nil {
		return errorResult("Migration", err), nil
	}
	return mcp.NewToolResultText(RenderMigration(res)), nil
}

// RenderMigration formats a run result as markdown.
func RenderMigration(res *migrate.Result) string {
	var b strings.Builder
	switch res.Outcome {
	case migrate.OutcomeNoop:
		fmt.Fprintf(&b, "# Migration\n\nStore is already at version %s. Nothing to do.", res.FromVersion)
		return b.String()
	case migrate.OutcomeDryRun:
		b.WriteString("# Migration Plan (dry run)\n\nNothing was written.\n")
	default:
		fmt.Fprintf(&b, "# Migration Complete\n\n**Run:** `%s`\n**Version:** %s → %s\n", res.RunID, res.FromVersion, res.ToVersion)
		if res.BackupPath != "" {
			fmt.Fprintf(&b, "**Backup:** `%s`\n", res.BackupPath)
		}
	}

	plan := res.Plan
	if plan == nil {
		return b.String()
	}
	fmt.Fprintf(&b, "\n**Tasks:** %d total, %d placed, %d clusters\n", plan.TotalTasks, plan.TaskCount(), len(plan.Clusters))
	if plan.Degraded {
		b.WriteString("\n⚠️ Similarity scoring was unavailable; classification used keywords only.\n")
	}
	for _, p := range plan.Phases {
		verb := "reused"
		if !p.Exists {
			verb = "created"
		}
		fmt.Fprintf(&b, "\n## %s (`%s`, %s, %s)\n\n", p.Title, p.ID, verb, p.Status)
		b.WriteString("| Workstream | Tasks | Attached | Merged from |\n|------------|-------|----------|-------------|\n")
		for _, ws := range p.Workstreams {
			merged := "-"
			if len(ws.MergedFrom) > 0 {
				merged = strings.Join(ws.MergedFrom, ", ")
			}
			fmt.Fprintf(&b, "| %s (`%s`) | %d | %d | %s |\n", ws.Title, ws.ID, len(ws.Members), len(ws.Attach), merged)
		}
	}
	if len(plan.Quarantined) > 0 {
		b.WriteString("\n## Not migrated\n\nThese records are corrupt and were left untouched:\n\n")
		for _, q := range plan.Quarantined {
			fmt.Fprintf(&b, "- `%s`: %s\n", q.TaskID, q.Reason)
		}
	}
	return b.String()
}
