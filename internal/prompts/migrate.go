package prompts

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
)

// MigratePrompt handles the strata-migrate MCP prompt.
// It walks the user through a reviewed migration: check, dry run, confirm, run.
type MigratePrompt struct{}

// NewMigratePrompt creates a MigratePrompt.
func NewMigratePrompt() *MigratePrompt {
	return &MigratePrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *MigratePrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("strata-migrate",
		mcp.WithPromptDescription(
			"Migrate flat legacy tasks into phases and workstreams, "+
				"reviewing the plan before anything is written.",
		),
		mcp.WithArgument("force",
			mcp.ArgumentDescription("'true' to re-run on an already migrated store. Default: false"),
		),
	)
}

// Handle processes the strata-migrate prompt request.
func (p *MigratePrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	force := false
	if args := req.Params.Arguments; args != nil {
		force = args["force"] == "true"
	}

	run := "3. If I confirm, run `migrate`\n"
	if force {
		run = "3. If I confirm, run `migrate` with force=true (only tasks outside the hierarchy move)\n"
	}

	return &mcp.GetPromptResult{
		Description: "Migrate legacy tasks",
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.NewTextContent(
					"I want to move my flat task list into the phase hierarchy.\n\n" +
						"1. Run `migration_check` and tell me how many tasks are outside the hierarchy\n" +
						"2. Run `migrate` with dry_run=true and summarize the plan: phases, workstreams, " +
						"tasks per workstream and any corrupt records that will be left out\n" +
						run +
						"4. Show me the result with `view_task_tree` and point out anything that looks misplaced\n\n" +
						"If the migration reports CONC-001, another migration is running: wait and retry.",
				),
			},
		},
	}, nil
}
