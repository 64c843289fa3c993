// Package prompts implements the MCP prompts for the task hierarchy.
//
// MCP prompts are user-triggered workflows (like slash commands) that
// instruct the AI to run a sequence of tools. Unlike tools (which the AI
// calls), prompts are initiated by the user.
package prompts

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// StatusPrompt handles the strata-status MCP prompt.
// It instructs the AI to read and present the state of every phase.
type StatusPrompt struct{}

// NewStatusPrompt creates a StatusPrompt.
func NewStatusPrompt() *StatusPrompt {
	return &StatusPrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *StatusPrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("strata-status",
		mcp.WithPromptDescription(
			"Check where the project stands: phase completion, blocking workstreams "+
				"and whether any legacy tasks still need migrating.",
		),
		mcp.WithArgument("phase_id",
			mcp.ArgumentDescription("Focus on one phase. Default: all phases"),
		),
	)
}

// Handle processes the strata-status prompt request.
func (p *StatusPrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	scope := "every phase"
	call := "`view_phase_status`"
	if args := req.Params.Arguments; args != nil {
		if id, ok := args["phase_id"]; ok && id != "" {
			scope = fmt.Sprintf("phase `%s`", id)
			call = fmt.Sprintf("`view_phase_status` with phase_id='%s'", id)
		}
	}

	return &mcp.GetPromptResult{
		Description: "Task hierarchy status",
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.NewTextContent(fmt.Sprintf(
					"Please give me the status of %s.\n\n"+
						"1. Run `migration_check`; if tasks are still outside the hierarchy, say so first\n"+
						"2. Run %s\n"+
						"3. Show completion per phase and per workstream in a compact table\n"+
						"4. List the workstreams blocking advancement and the agents still active\n"+
						"5. Tell me the single most useful next step",
					scope, call,
				)),
			},
		},
	}, nil
}
