// Package hierarchy defines the records of the task hierarchy and the
// structural rules that hold between them.
//
// A single Task record type serves every level below a phase. The role of
// a task (workstream, task, subtask) is never stored: it is derived from
// where its parent pointer leads. Phases live in their own id namespace
// ("phase_" prefix) so a parent id alone tells whether the parent is a phase.
//
// Design principles:
// - SRP: types, ids, roles and structural checks in separate files
// - Records are plain values; persistence lives in internal/store
package hierarchy

import (
	"fmt"
	"strings"
)

// --- Phase status enum ---

// PhaseStatus tracks the lifecycle of a phase.
type PhaseStatus string

const (
	PhaseCreated    PhaseStatus = "created"
	PhaseInProgress PhaseStatus = "in_progress"
	PhaseBlocked    PhaseStatus = "blocked"
	PhaseComplete   PhaseStatus = "complete"
)

var validPhaseStatuses = map[PhaseStatus]bool{
	PhaseCreated:    true,
	PhaseInProgress: true,
	PhaseBlocked:    true,
	PhaseComplete:   true,
}

// ValidatePhaseStatus returns an error if the status is not recognized.
func ValidatePhaseStatus(s PhaseStatus) error {
	if !validPhaseStatuses[s] {
		return fmt.Errorf("invalid phase status %q: must be one of: created, in_progress, blocked, complete", s)
	}
	return nil
}

// --- Task status enum ---

// TaskStatus tracks the lifecycle of a task.
type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusInProgress TaskStatus = "in_progress"
	StatusCompleted  TaskStatus = "completed"
	StatusBlocked    TaskStatus = "blocked"
	StatusCancelled  TaskStatus = "cancelled"
)

var validTaskStatuses = map[TaskStatus]bool{
	StatusPending:    true,
	StatusInProgress: true,
	StatusCompleted:  true,
	StatusBlocked:    true,
	StatusCancelled:  true,
}

// ValidateTaskStatus returns an error if the status is not recognized.
func ValidateTaskStatus(s TaskStatus) error {
	if !validTaskStatuses[s] {
		return fmt.Errorf("invalid task status %q: must be one of: pending, in_progress, completed, blocked, cancelled", s)
	}
	return nil
}

// Terminal reports whether no further work is expected on the task.
func (s TaskStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// --- Priority enum ---

// Priority orders tasks for agents.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

var validPriorities = map[Priority]bool{
	PriorityLow:    true,
	PriorityMedium: true,
	PriorityHigh:   true,
}

// ValidatePriority returns an error if the priority is not recognized.
func ValidatePriority(p Priority) error {
	if !validPriorities[p] {
		return fmt.Errorf("invalid priority %q: must be one of: low, medium, high", p)
	}
	return nil
}

// --- Agent status enum ---

// AgentStatus tracks whether an agent may still pick up work.
type AgentStatus string

const (
	AgentActive     AgentStatus = "active"
	AgentTerminated AgentStatus = "terminated"
)

// --- Core data structures ---

// Note is one entry of a task's append-only notes log.
type Note struct {
	Timestamp string `json:"timestamp"`
	Author    string `json:"author"`
	Content   string `json:"content"`
}

// Phase is a top-level container for one stage of linear progression.
type Phase struct {
	ID            string      `json:"id"`
	Title         string      `json:"title"`
	Description   string      `json:"description"`
	Ordinal       int         `json:"ordinal"`
	Prerequisites []string    `json:"prerequisites"`
	Status        PhaseStatus `json:"status"`
	Objectives    []string    `json:"objectives"`
	TheoryFocus   []string    `json:"theory_focus,omitempty"`
	CreatedAt     string      `json:"created_at"`
	UpdatedAt     string      `json:"updated_at"`
}

// Task is a unit of work. Its role is derived from ParentID.
type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      TaskStatus `json:"status"`
	AssignedTo  string     `json:"assigned_to,omitempty"`
	CreatedBy   string     `json:"created_by"`
	Priority    Priority   `json:"priority"`
	CreatedAt   string     `json:"created_at"`
	UpdatedAt   string     `json:"updated_at"`
	ParentID    string     `json:"parent_id,omitempty"`
	ChildIDs    []string   `json:"child_ids"`
	DependsOn   []string   `json:"depends_on"`
	Notes       []Note     `json:"notes"`
}

// Text is the title and description used for classification.
func (t Task) Text() string {
	return strings.TrimSpace(t.Title + "\n" + t.Description)
}

// HasChild reports whether id is listed among the task's children.
func (t Task) HasChild(id string) bool {
	for _, c := range t.ChildIDs {
		if c == id {
			return true
		}
	}
	return false
}

// Agent is a worker that tasks are assigned to.
type Agent struct {
	ID          string      `json:"id"`
	Status      AgentStatus `json:"status"`
	CurrentTask string      `json:"current_task,omitempty"`
	UpdatedAt   string      `json:"updated_at"`
}
