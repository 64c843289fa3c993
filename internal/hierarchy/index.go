package hierarchy

import (
	"sort"

	"github.com/HendryAvila/strata/internal/errors"
)

// Role is the structural position of a record in the hierarchy.
type Role string

const (
	RolePhase      Role = "phase"
	RoleWorkstream Role = "workstream"
	RoleTask       Role = "task"
	RoleSubtask    Role = "subtask"
	// RoleUnplaced is a task with no parent at all: legacy data that has
	// not been migrated yet.
	RoleUnplaced Role = "unplaced"
)

// Index is a read-only view over a set of phases and tasks for structural
// queries. It never mutates its inputs.
type Index struct {
	phases   map[string]Phase
	tasks    map[string]Task
	children map[string][]string
	order    []string
}

// NewIndex builds an index. Children lists are derived from parent
// pointers (not from ChildIDs) and sorted by id.
func NewIndex(phases []Phase, tasks []Task) *Index {
	idx := &Index{
		phases:   make(map[string]Phase, len(phases)),
		tasks:    make(map[string]Task, len(tasks)),
		children: make(map[string][]string),
	}
	for _, p := range phases {
		idx.phases[p.ID] = p
	}
	for _, t := range tasks {
		idx.tasks[t.ID] = t
		idx.order = append(idx.order, t.ID)
		if t.ParentID != "" {
			idx.children[t.ParentID] = append(idx.children[t.ParentID], t.ID)
		}
	}
	sort.Strings(idx.order)
	for k := range idx.children {
		sort.Strings(idx.children[k])
	}
	return idx
}

// Task returns the task with id.
func (idx *Index) Task(id string) (Task, bool) {
	t, ok := idx.tasks[id]
	return t, ok
}

// Phase returns the phase with id.
func (idx *Index) Phase(id string) (Phase, bool) {
	p, ok := idx.phases[id]
	return p, ok
}

// TaskIDs returns every task id in sorted order.
func (idx *Index) TaskIDs() []string {
	return append([]string(nil), idx.order...)
}

// Children returns the ids whose parent is id, sorted.
func (idx *Index) Children(id string) []string {
	return idx.children[id]
}

// Workstreams returns the ids of the tasks directly under phaseID.
func (idx *Index) Workstreams(phaseID string) []string {
	return idx.children[phaseID]
}

// Role derives the structural role of id.
func (idx *Index) Role(id string) Role {
	if _, ok := idx.phases[id]; ok || IsPhaseID(id) {
		return RolePhase
	}
	t, ok := idx.tasks[id]
	if !ok || t.ParentID == "" {
		return RoleUnplaced
	}
	if IsPhaseID(t.ParentID) {
		return RoleWorkstream
	}
	parent, ok := idx.tasks[t.ParentID]
	if ok && IsPhaseID(parent.ParentID) {
		return RoleTask
	}
	return RoleSubtask
}

// PhaseOf follows parent pointers from id up to its phase. It returns ""
// with a nil error for an unplaced task, and a structural error for a
// dangling parent or a cycle.
func (idx *Index) PhaseOf(id string) (string, error) {
	seen := map[string]bool{}
	path := []string{}
	current := id
	for {
		if IsPhaseID(current) {
			if _, ok := idx.phases[current]; !ok {
				if len(path) == 0 {
					return "", errors.NewNotFoundError("phase", current)
				}
				return "", errors.NewDanglingRefError(path[len(path)-1], "parent phase", current)
			}
			return current, nil
		}
		if seen[current] {
			return "", errors.NewCycleError(cyclePath(path, current))
		}
		seen[current] = true
		path = append(path, current)

		t, ok := idx.tasks[current]
		if !ok {
			if len(path) == 1 {
				return "", errors.NewNotFoundError("task", current)
			}
			return "", errors.NewDanglingRefError(path[len(path)-2], "parent", current)
		}
		if t.ParentID == "" {
			return "", nil
		}
		current = t.ParentID
	}
}

// cyclePath trims the walk to the loop starting at repeat.
func cyclePath(path []string, repeat string) []string {
	for i, id := range path {
		if id == repeat {
			out := append([]string(nil), path[i:]...)
			return append(out, repeat)
		}
	}
	return append(path, repeat)
}

// Unplaced returns, sorted, the ids of tasks with no phase ancestor.
// Tasks whose parent chain is broken are reported through the error.
func (idx *Index) Unplaced() ([]string, error) {
	var out []string
	for _, id := range idx.order {
		phase, err := idx.PhaseOf(id)
		if err != nil {
			return nil, err
		}
		if phase == "" {
			out = append(out, id)
		}
	}
	return out, nil
}

// CheckForest verifies that every task reaches a phase through its parent
// chain without cycles or dangling references, and that no dependency
// points at a missing task.
func (idx *Index) CheckForest() error {
	for _, id := range idx.order {
		phase, err := idx.PhaseOf(id)
		if err != nil {
			return err
		}
		if phase == "" {
			return errors.Newf(errors.ErrCodeInvalidState, "task %q has no phase ancestor", id).WithSubjects(id)
		}
		for _, dep := range idx.tasks[id].DependsOn {
			if _, ok := idx.tasks[dep]; !ok {
				return errors.NewDanglingRefError(id, "dependency", dep)
			}
		}
	}
	return nil
}

// Subtree returns id and every descendant in depth-first, id-sorted order.
func (idx *Index) Subtree(id string) []string {
	var out []string
	var walk func(string)
	seen := map[string]bool{}
	walk = func(n string) {
		if seen[n] {
			return
		}
		seen[n] = true
		out = append(out, n)
		for _, c := range idx.children[n] {
			walk(c)
		}
	}
	walk(id)
	return out
}
