package placement

import (
	"github.com/HendryAvila/strata/internal/errors"
	"github.com/HendryAvila/strata/internal/hierarchy"
	"github.com/HendryAvila/strata/internal/store"
)

// StatusChange is a request to move a task to a new status. Cascade
// applies a cancellation to every open descendant.
type StatusChange struct {
	TaskID  string
	Status  hierarchy.TaskStatus
	Actor   string
	Note    string
	Cascade bool
}

// SetStatus changes a task's status. A parent may only complete once all
// of its non-cancelled children are completed. Cancelling a parent leaves
// its children alone unless Cascade is set. Returns the ids changed.
func (v *Validator) SetStatus(change StatusChange) ([]string, error) {
	if err := hierarchy.ValidateTaskStatus(change.Status); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidArgument, err.Error(), err).WithSubjects(change.TaskID)
	}

	phases, err := v.store.ListPhases()
	if err != nil {
		return nil, err
	}
	tasks, err := v.store.ListTasks()
	if err != nil {
		return nil, err
	}
	idx := hierarchy.NewIndex(phases, tasks)
	if _, ok := idx.Task(change.TaskID); !ok {
		return nil, errors.NewNotFoundError("task", change.TaskID)
	}
	phaseID, err := idx.PhaseOf(change.TaskID)
	if err != nil {
		return nil, err
	}

	release, err := v.gate.Enter(phaseID)
	if err != nil {
		return nil, err
	}
	defer release()

	if p, ok := idx.Phase(phaseID); ok && p.Status == hierarchy.PhaseComplete {
		return nil, errors.NewPhaseCompleteError(phaseID)
	}

	targets := []string{change.TaskID}
	switch change.Status {
	case hierarchy.StatusCompleted:
		var open []string
		for _, c := range idx.Children(change.TaskID) {
			t, _ := idx.Task(c)
			if !t.Status.Terminal() {
				open = append(open, c)
			}
		}
		if len(open) > 0 {
			return nil, errors.Newf(errors.ErrCodeChildrenOpen,
				"task %q has %d open child task(s)", change.TaskID, len(open)).
				WithSubjects(open...).
				WithSuggestion("Complete or cancel the children first")
		}
		// A cancelled dependency never completes, so it blocks too.
		task, _ := idx.Task(change.TaskID)
		var pending []string
		for _, d := range task.DependsOn {
			if dep, ok := idx.Task(d); !ok || dep.Status != hierarchy.StatusCompleted {
				pending = append(pending, d)
			}
		}
		if len(pending) > 0 {
			return nil, errors.NewDependenciesOpenError(change.TaskID, pending)
		}
	case hierarchy.StatusCancelled:
		if change.Cascade {
			for _, id := range idx.Subtree(change.TaskID)[1:] {
				if t, _ := idx.Task(id); !t.Status.Terminal() {
					targets = append(targets, id)
				}
			}
		}
	}

	actor := change.Actor
	if actor == "" {
		actor = "system"
	}
	err = v.store.WithTx(func(tx *store.Tx) error {
		for i, id := range targets {
			t, err := tx.Task(id)
			if err != nil {
				return err
			}
			t.Status = change.Status
			t.UpdatedAt = hierarchy.Now()
			switch {
			case i == 0 && change.Note != "":
				t.Notes = append(t.Notes, hierarchy.NewNote(actor, change.Note))
			case i > 0:
				t.Notes = append(t.Notes, hierarchy.NewNote(actor, "Cancelled with parent "+change.TaskID))
			}
			if err := tx.SaveTask(*t); err != nil {
				return err
			}
		}
		if phaseID != "" && change.Status == hierarchy.StatusInProgress {
			if p, err := tx.Phase(phaseID); err == nil && p.Status == hierarchy.PhaseCreated {
				return tx.SetPhaseStatus(phaseID, hierarchy.PhaseInProgress)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	v.logger.Info("task status changed", "task", change.TaskID, "status", string(change.Status), "changed", len(targets))
	return targets, nil
}

// Assign makes agentID the assignee of taskID and the agent's current task.
func (v *Validator) Assign(taskID, agentID string) error {
	if agentID == "" {
		return errors.New(errors.ErrCodeInvalidArgument, "agent id is required")
	}
	phases, err := v.store.ListPhases()
	if err != nil {
		return err
	}
	tasks, err := v.store.ListTasks()
	if err != nil {
		return err
	}
	idx := hierarchy.NewIndex(phases, tasks)
	if _, ok := idx.Task(taskID); !ok {
		return errors.NewNotFoundError("task", taskID)
	}
	phaseID, err := idx.PhaseOf(taskID)
	if err != nil {
		return err
	}

	release, err := v.gate.Enter(phaseID)
	if err != nil {
		return err
	}
	defer release()

	return v.store.WithTx(func(tx *store.Tx) error {
		t, err := tx.Task(taskID)
		if err != nil {
			return err
		}
		t.AssignedTo = agentID
		t.UpdatedAt = hierarchy.Now()
		if err := tx.SaveTask(*t); err != nil {
			return err
		}
		return tx.UpsertAgent(hierarchy.Agent{ID: agentID, Status: hierarchy.AgentActive, CurrentTask: taskID})
	})
}
