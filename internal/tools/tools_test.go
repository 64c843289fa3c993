package tools

import (
	"context"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/strata/internal/hierarchy"
	"github.com/HendryAvila/strata/internal/lock"
	"github.com/HendryAvila/strata/internal/log"
	"github.com/HendryAvila/strata/internal/migrate"
	"github.com/HendryAvila/strata/internal/phase"
	"github.com/HendryAvila/strata/internal/placement"
	"github.com/HendryAvila/strata/internal/store"
)

// --- Test helpers ---

type deps struct {
	store     *store.Store
	gate      *lock.Gate
	machine   *phase.Machine
	validator *placement.Validator
	orch      *migrate.Orchestrator
}

func newDeps(t *testing.T) *deps {
	t.Helper()
	dir := t.TempDir()
	s, err := store.New(store.Config{DataDir: dir})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	gate := lock.NewGate()
	logger := log.Discard()
	return &deps{
		store:     s,
		gate:      gate,
		machine:   phase.NewMachine(s, phase.Options{Gate: gate, Logger: logger}),
		validator: placement.NewValidator(s, placement.Options{AdminID: "admin", Gate: gate, Logger: logger}),
		orch: migrate.New(s, migrate.Config{
			BackupDir:           dir + "/backups",
			LockPath:            dir + "/.migration.lock",
			PreserveHierarchies: true,
		}, migrate.Options{Gate: gate, Logger: logger}),
	}
}

func call(t *testing.T, handle func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	result, err := handle(context.Background(), req)
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	return result
}

// isErrorResult checks if a CallToolResult represents an error.
func isErrorResult(result *mcp.CallToolResult) bool {
	return result != nil && result.IsError
}

// getResultText extracts the text content from a CallToolResult.
func getResultText(result *mcp.CallToolResult) string {
	if result == nil || len(result.Content) == 0 {
		return ""
	}
	for _, c := range result.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

// --- Definitions ---

func TestDefinitions(t *testing.T) {
	d := newDeps(t)
	names := map[string]mcp.Tool{
		"create_phase":       NewCreatePhaseTool(d.machine).Definition(),
		"view_phase_status":  NewPhaseStatusTool(d.machine).Definition(),
		"advance_phase":      NewAdvancePhaseTool(d.machine).Definition(),
		"create_task":        NewCreateTaskTool(d.validator).Definition(),
		"update_task_status": NewUpdateTaskStatusTool(d.validator).Definition(),
		"assign_task":        NewAssignTaskTool(d.validator).Definition(),
		"view_task_tree":     NewTaskTreeTool(d.store).Definition(),
		"migration_check":    NewMigrationCheckTool(d.orch).Definition(),
		"migrate":            NewMigrateTool(d.orch).Definition(),
	}
	for want, def := range names {
		if def.Name != want {
			t.Errorf("name = %q, want %q", def.Name, want)
		}
		if def.Description == "" {
			t.Errorf("%s has no description", want)
		}
	}
}

// --- Phases ---

func TestCreatePhaseTool(t *testing.T) {
	d := newDeps(t)
	tool := NewCreatePhaseTool(d.machine)

	result := call(t, tool.Handle, map[string]interface{}{})
	if !isErrorResult(result) {
		t.Error("missing phase should be an error")
	}

	result = call(t, tool.Handle, map[string]interface{}{"phase": "intelligence"})
	if !isErrorResult(result) {
		t.Fatal("phase 2 before phase 1 should be refused")
	}
	text := getResultText(result)
	if !strings.Contains(text, "PREREQ-001") || !strings.Contains(text, phase.FoundationID) {
		t.Errorf("error should name the code and the blocking phase, got: %s", text)
	}

	result = call(t, tool.Handle, map[string]interface{}{"phase": "foundation"})
	if isErrorResult(result) {
		t.Fatalf("expected success, got error: %s", getResultText(result))
	}
	text = getResultText(result)
	if !strings.Contains(text, "Phase Created") || !strings.Contains(text, phase.FoundationID) {
		t.Errorf("unexpected result: %s", text)
	}

	result = call(t, tool.Handle, map[string]interface{}{"phase": "foundation"})
	if !isErrorResult(result) {
		t.Error("creating the same phase twice should fail")
	}
}

func TestPhaseStatusTool(t *testing.T) {
	d := newDeps(t)
	tool := NewPhaseStatusTool(d.machine)

	text := getResultText(call(t, tool.Handle, map[string]interface{}{}))
	if !strings.Contains(text, "No phases yet") {
		t.Errorf("empty store should say so, got: %s", text)
	}

	if _, err := d.machine.Create(phase.CreateRequest{Phase: "foundation"}); err != nil {
		t.Fatal(err)
	}
	text = getResultText(call(t, tool.Handle, map[string]interface{}{"phase_id": phase.FoundationID}))
	if !strings.Contains(text, "Phase 1: Foundation") || !strings.Contains(text, "0.0%") {
		t.Errorf("unexpected status: %s", text)
	}

	result := call(t, tool.Handle, map[string]interface{}{"phase_id": "phase_9_nope"})
	if !isErrorResult(result) {
		t.Error("unknown phase should be an error")
	}
}

// --- Tasks and advancement ---

func TestTaskLifecycleThroughTools(t *testing.T) {
	d := newDeps(t)
	if _, err := d.machine.Create(phase.CreateRequest{Phase: "foundation"}); err != nil {
		t.Fatal(err)
	}

	create := NewCreateTaskTool(d.validator)
	result := call(t, create.Handle, map[string]interface{}{
		"title":      "Write unit test suite",
		"creator_id": "admin",
		"priority":   "high",
	})
	if isErrorResult(result) {
		t.Fatalf("create_task failed: %s", getResultText(result))
	}
	text := getResultText(result)
	if !strings.Contains(text, "root_phase_1_foundation_testing") || !strings.Contains(text, "Opened workstream") {
		t.Errorf("admin task should open the testing workstream, got: %s", text)
	}

	tasks, err := d.store.ListTasks()
	if err != nil {
		t.Fatal(err)
	}
	var taskID string
	for _, task := range tasks {
		if strings.HasPrefix(task.ID, hierarchy.TaskPrefix) {
			taskID = task.ID
		}
	}
	if taskID == "" {
		t.Fatal("created task not found")
	}

	// ordinary agents cannot create root tasks
	result = call(t, create.Handle, map[string]interface{}{"title": "Stray task", "creator_id": "bob"})
	if !isErrorResult(result) || !strings.Contains(getResultText(result), "PERM-001") {
		t.Errorf("expected permission error, got: %s", getResultText(result))
	}

	assign := NewAssignTaskTool(d.validator)
	result = call(t, assign.Handle, map[string]interface{}{"task_id": taskID, "agent_id": "bob"})
	if isErrorResult(result) {
		t.Fatalf("assign_task failed: %s", getResultText(result))
	}

	// now bob's subtask lands under his active task
	result = call(t, create.Handle, map[string]interface{}{"title": "Cover edge cases", "creator_id": "bob"})
	if isErrorResult(result) {
		t.Fatalf("subtask create failed: %s", getResultText(result))
	}
	if !strings.Contains(getResultText(result), taskID) {
		t.Errorf("subtask should be placed under %s: %s", taskID, getResultText(result))
	}

	advance := NewAdvancePhaseTool(d.machine)
	result = call(t, advance.Handle, map[string]interface{}{"phase_id": phase.FoundationID})
	if !isErrorResult(result) || !strings.Contains(getResultText(result), "PREREQ-002") {
		t.Errorf("incomplete phase should not advance: %s", getResultText(result))
	}

	update := NewUpdateTaskStatusTool(d.validator)
	result = call(t, update.Handle, map[string]interface{}{"task_id": taskID, "status": "completed"})
	if !isErrorResult(result) || !strings.Contains(getResultText(result), "STRUCT-007") {
		t.Errorf("parent with open subtask should not complete: %s", getResultText(result))
	}

	result = call(t, update.Handle, map[string]interface{}{"task_id": taskID, "status": "cancelled", "cascade": true})
	if isErrorResult(result) {
		t.Fatalf("cancel failed: %s", getResultText(result))
	}
	if !strings.Contains(getResultText(result), "Also cancelled") {
		t.Errorf("cascade should report the subtask: %s", getResultText(result))
	}
}

func TestAdvancePhaseTool_Success(t *testing.T) {
	d := newDeps(t)
	if _, err := d.machine.Create(phase.CreateRequest{Phase: "foundation"}); err != nil {
		t.Fatal(err)
	}
	ws := hierarchy.WorkstreamID(phase.FoundationID, "general")
	for _, task := range []hierarchy.Task{
		{ID: ws, Title: "General Tasks", ParentID: phase.FoundationID},
		{ID: "t1", Title: "done", ParentID: ws, Status: hierarchy.StatusCompleted},
	} {
		if err := d.store.CreateTask(task); err != nil {
			t.Fatal(err)
		}
	}
	if err := d.store.UpdatePhaseStatus(phase.FoundationID, hierarchy.PhaseInProgress); err != nil {
		t.Fatal(err)
	}

	result := call(t, NewAdvancePhaseTool(d.machine).Handle, map[string]interface{}{"phase_id": phase.FoundationID, "actor": "admin"})
	if isErrorResult(result) {
		t.Fatalf("advance failed: %s", getResultText(result))
	}
	text := getResultText(result)
	if !strings.Contains(text, "Phase Complete") || !strings.Contains(text, "phase_2_") {
		t.Errorf("unexpected result: %s", text)
	}
}

func TestUpdateTaskStatusTool_Validation(t *testing.T) {
	d := newDeps(t)
	tool := NewUpdateTaskStatusTool(d.validator)

	if result := call(t, tool.Handle, map[string]interface{}{"status": "completed"}); !isErrorResult(result) {
		t.Error("missing task_id should be an error")
	}
	result := call(t, tool.Handle, map[string]interface{}{"task_id": "ghost", "status": "completed"})
	if !isErrorResult(result) || !strings.Contains(getResultText(result), "STRUCT-004") {
		t.Errorf("unknown task should be not found: %s", getResultText(result))
	}
}

// --- Tree ---

func TestTaskTreeTool(t *testing.T) {
	d := newDeps(t)
	if err := d.store.CreatePhase(hierarchy.Phase{ID: phase.FoundationID, Title: "Phase 1: Foundation", Ordinal: 1}); err != nil {
		t.Fatal(err)
	}
	for _, task := range []hierarchy.Task{
		{ID: "root_a", Title: "Workstream A", ParentID: phase.FoundationID},
		{ID: "t1", Title: "Leaf one", ParentID: "root_a"},
	} {
		if err := d.store.CreateTask(task); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := d.store.ImportTasks([]hierarchy.Task{{ID: "legacy", Title: "Old"}}); err != nil {
		t.Fatal(err)
	}

	tool := NewTaskTreeTool(d.store)
	text := getResultText(call(t, tool.Handle, map[string]interface{}{}))
	for _, want := range []string{"Phase 1: Foundation", "  ⬜ Workstream A", "    ⬜ Leaf one", "Not migrated (1)", "`legacy`"} {
		if !strings.Contains(text, want) {
			t.Errorf("tree missing %q:\n%s", want, text)
		}
	}

	text = getResultText(call(t, tool.Handle, map[string]interface{}{"root_id": "root_a", "max_depth": float64(0)}))
	if strings.Contains(text, "Leaf one") {
		t.Errorf("max_depth 0 should hide children:\n%s", text)
	}

	if result := call(t, tool.Handle, map[string]interface{}{"root_id": "nope"}); !isErrorResult(result) {
		t.Error("unknown root should be an error")
	}
}

// --- Migration ---

func TestMigrationTools(t *testing.T) {
	d := newDeps(t)
	if _, err := d.store.ImportTasks([]hierarchy.Task{
		{ID: "a", Title: "Build REST API endpoint", Status: hierarchy.StatusCompleted},
		{ID: "b", Title: "Tidy chore", Status: hierarchy.StatusInProgress, ParentID: "a"},
	}); err != nil {
		t.Fatal(err)
	}

	check := NewMigrationCheckTool(d.orch)
	text := getResultText(call(t, check.Handle, map[string]interface{}{}))
	if !strings.Contains(text, "1.0.0") || !strings.Contains(text, "2 outside the hierarchy") {
		t.Errorf("unexpected check: %s", text)
	}

	tool := NewMigrateTool(d.orch)
	text = getResultText(call(t, tool.Handle, map[string]interface{}{"dry_run": true}))
	if !strings.Contains(text, "dry run") || !strings.Contains(text, "root_phase_1_foundation_general") {
		t.Errorf("unexpected plan: %s", text)
	}
	if phases, _ := d.store.ListPhases(); len(phases) != 0 {
		t.Fatal("dry run must not write")
	}

	result := call(t, tool.Handle, map[string]interface{}{})
	if isErrorResult(result) {
		t.Fatalf("migrate failed: %s", getResultText(result))
	}
	if !strings.Contains(getResultText(result), "Migration Complete") {
		t.Errorf("unexpected result: %s", getResultText(result))
	}

	text = getResultText(call(t, tool.Handle, map[string]interface{}{}))
	if !strings.Contains(text, "Nothing to do") {
		t.Errorf("second run should be a no-op: %s", text)
	}

	text = getResultText(call(t, check.Handle, map[string]interface{}{}))
	if !strings.Contains(text, "Up to date") {
		t.Errorf("check after migration: %s", text)
	}
}

func TestMigrateTool_Concurrent(t *testing.T) {
	d := newDeps(t)
	release, err := d.gate.BeginMigration("other")
	if err != nil {
		t.Fatal(err)
	}
	defer release()

	result := call(t, NewMigrateTool(d.orch).Handle, map[string]interface{}{})
	if !isErrorResult(result) {
		t.Fatal("expected error while another migration runs")
	}
	text := getResultText(result)
	if !strings.Contains(text, "CONC-001") || !strings.Contains(text, "Retry") {
		t.Errorf("unexpected error: %s", text)
	}
}
