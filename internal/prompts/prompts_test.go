package prompts

import (
	"context"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
)

func promptText(t *testing.T, res *mcp.GetPromptResult) string {
	t.Helper()
	if res == nil || len(res.Messages) == 0 {
		t.Fatal("prompt returned no messages")
	}
	tc, ok := res.Messages[0].Content.(mcp.TextContent)
	if !ok {
		t.Fatalf("content type = %T, want TextContent", res.Messages[0].Content)
	}
	return tc.Text
}

func TestStatusPrompt(t *testing.T) {
	p := NewStatusPrompt()
	if p.Definition().Name != "strata-status" {
		t.Errorf("name = %q", p.Definition().Name)
	}

	res, err := p.Handle(context.Background(), mcp.GetPromptRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if text := promptText(t, res); !strings.Contains(text, "every phase") {
		t.Errorf("default scope missing: %s", text)
	}

	req := mcp.GetPromptRequest{}
	req.Params.Arguments = map[string]string{"phase_id": "phase_1_foundation"}
	res, err = p.Handle(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if text := promptText(t, res); !strings.Contains(text, "phase_id='phase_1_foundation'") {
		t.Errorf("phase argument not used: %s", text)
	}
}

func TestMigratePrompt(t *testing.T) {
	p := NewMigratePrompt()
	if p.Definition().Name != "strata-migrate" {
		t.Errorf("name = %q", p.Definition().Name)
	}

	res, err := p.Handle(context.Background(), mcp.GetPromptRequest{})
	if err != nil {
		t.Fatal(err)
	}
	text := promptText(t, res)
	if !strings.Contains(text, "dry_run=true") || strings.Contains(text, "force=true") {
		t.Errorf("unexpected default prompt: %s", text)
	}

	req := mcp.GetPromptRequest{}
	req.Params.Arguments = map[string]string{"force": "true"}
	res, err = p.Handle(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(promptText(t, res), "force=true") {
		t.Error("force argument not used")
	}
}
