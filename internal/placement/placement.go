// Package placement decides where a new task goes in the hierarchy and
// enforces who may put it there.
//
// A privileged creator (the configured admin) may place work anywhere and
// may open a new workstream; a task without a parent is classified
// against the target phase's workstreams. An ordinary agent never creates
// a workstream: a task without a parent defaults to the agent's active
// task, and a task that would become a root is refused.
package placement

import (
	"context"
	"strings"

	"github.com/HendryAvila/strata/internal/classify"
	"github.com/HendryAvila/strata/internal/errors"
	"github.com/HendryAvila/strata/internal/graph"
	"github.com/HendryAvila/strata/internal/hierarchy"
	"github.com/HendryAvila/strata/internal/lock"
	"github.com/HendryAvila/strata/internal/log"
	"github.com/HendryAvila/strata/internal/phase"
	"github.com/HendryAvila/strata/internal/store"
)

// Store is the persistence the validator needs.
type Store interface {
	ListPhases() ([]hierarchy.Phase, error)
	ListTasks() ([]hierarchy.Task, error)
	GetAgent(id string) (*hierarchy.Agent, error)
	WithTx(fn func(tx *store.Tx) error) error
}

// Options configures a Validator.
type Options struct {
	AdminID    string
	Classifier *classify.Classifier
	Gate       *lock.Gate
	Logger     *log.Logger
}

// Validator places and creates tasks.
type Validator struct {
	store      Store
	adminID    string
	classifier *classify.Classifier
	gate       *lock.Gate
	logger     *log.Logger
}

// NewValidator creates a Validator over s.
func NewValidator(s Store, opts Options) *Validator {
	v := &Validator{
		store:      s,
		adminID:    opts.AdminID,
		classifier: opts.Classifier,
		gate:       opts.Gate,
		logger:     log.Or(opts.Logger).WithComponent("placement"),
	}
	if v.adminID == "" {
		v.adminID = "admin"
	}
	if v.classifier == nil {
		v.classifier = classify.Default(classify.Options{Logger: opts.Logger})
	}
	if v.gate == nil {
		v.gate = lock.NewGate()
	}
	return v
}

// Request describes a task to create. ParentID is optional. For a
// privileged creator with no parent, PhaseID picks the target phase
// (default: the current phase).
type Request struct {
	Title       string
	Description string
	CreatorID   string
	ParentID    string
	PhaseID     string
	Priority    hierarchy.Priority
	DependsOn   []string
}

// Placement is where a request will land.
type Placement struct {
	ParentID       string           `json:"parent_id"`
	PhaseID        string           `json:"phase_id"`
	Role           hierarchy.Role   `json:"role"`
	NewWorkstream  *hierarchy.Task  `json:"new_workstream,omitempty"`
	Classification *classify.Result `json:"classification,omitempty"`
}

// Privileged reports whether agentID may create workstreams.
func (v *Validator) Privileged(agentID string) bool {
	return agentID == v.adminID
}

// Place validates req and decides its parent without writing anything.
func (v *Validator) Place(ctx context.Context, req Request) (*Placement, error) {
	if strings.TrimSpace(req.Title) == "" {
		return nil, errors.New(errors.ErrCodeInvalidArgument, "task title is required")
	}
	if req.CreatorID == "" {
		return nil, errors.New(errors.ErrCodeInvalidArgument, "creator id is required")
	}
	if req.Priority != "" {
		if err := hierarchy.ValidatePriority(req.Priority); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidArgument, err.Error(), err)
		}
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

	var pl *Placement
	if v.Privileged(req.CreatorID) {
		pl, err = v.placePrivileged(ctx, idx, phases, req)
	} else {
		pl, err = v.placeOrdinary(idx, req)
	}
	if err != nil {
		return nil, err
	}

	p, _ := idx.Phase(pl.PhaseID)
	if p.Status == hierarchy.PhaseComplete {
		return nil, errors.NewPhaseCompleteError(pl.PhaseID)
	}
	if err := checkDependencies(tasks, req.DependsOn); err != nil {
		return nil, err
	}
	return pl, nil
}

func (v *Validator) placePrivileged(ctx context.Context, idx *hierarchy.Index, phases []hierarchy.Phase, req Request) (*Placement, error) {
	if req.ParentID != "" {
		return placeUnder(idx, req.ParentID)
	}

	target := req.PhaseID
	if target == "" {
		current, ok := phase.Current(phases)
		if !ok {
			return nil, errors.New(errors.ErrCodeInvalidState, "no open phase to place the task in").
				WithSuggestion("Create a phase or run the migration first")
		}
		target = current.ID
	}
	if _, ok := idx.Phase(target); !ok {
		return nil, errors.NewNotFoundError("phase", target)
	}

	res := v.classifier.Classify(ctx, []hierarchy.Task{{ID: "new", Title: req.Title, Description: req.Description}})
	pl := &Placement{PhaseID: target, Role: hierarchy.RoleTask, Classification: &res}

	wsID := hierarchy.WorkstreamID(target, res.Category)
	title := v.classifier.Title(res.Category)
	for _, id := range idx.Workstreams(target) {
		ws, _ := idx.Task(id)
		if ws.Status == hierarchy.StatusCancelled {
			continue
		}
		if id == wsID || ws.Title == title {
			pl.ParentID = id
			return pl, nil
		}
	}

	pl.ParentID = wsID
	pl.NewWorkstream = &hierarchy.Task{
		ID:          wsID,
		Title:       title,
		Description: "Workstream for " + strings.ToLower(title),
		Status:      hierarchy.StatusPending,
		CreatedBy:   req.CreatorID,
		Priority:    hierarchy.PriorityMedium,
		ParentID:    target,
	}
	return pl, nil
}

func (v *Validator) placeOrdinary(idx *hierarchy.Index, req Request) (*Placement, error) {
	parent := req.ParentID
	if parent == "" {
		agent, err := v.store.GetAgent(req.CreatorID)
		if err == nil && agent.Status == hierarchy.AgentActive {
			parent = agent.CurrentTask
		}
		if parent == "" {
			return nil, errors.NewPermissionError(req.CreatorID, "create a root task").
				WithSuggestion("Pass a parent task id, or ask an admin to create the workstream")
		}
	}
	if hierarchy.IsPhaseID(parent) {
		return nil, errors.NewPermissionError(req.CreatorID, "create a workstream")
	}
	return placeUnder(idx, parent)
}

func placeUnder(idx *hierarchy.Index, parentID string) (*Placement, error) {
	phaseID, err := idx.PhaseOf(parentID)
	if err != nil {
		return nil, err
	}
	if phaseID == "" {
		return nil, errors.Newf(errors.ErrCodeInvalidState, "parent %q is not part of the hierarchy yet", parentID).
			WithSubjects(parentID).
			WithSuggestion("Run the migration before adding work under legacy tasks")
	}
	pl := &Placement{ParentID: parentID, PhaseID: phaseID}
	switch idx.Role(parentID) {
	case hierarchy.RolePhase:
		pl.Role = hierarchy.RoleWorkstream
	case hierarchy.RoleWorkstream:
		pl.Role = hierarchy.RoleTask
	default:
		pl.Role = hierarchy.RoleSubtask
	}
	if parent, ok := idx.Task(parentID); ok && parent.Status == hierarchy.StatusCancelled {
		return nil, errors.Newf(errors.ErrCodeInvalidState, "parent %q is cancelled", parentID).WithSubjects(parentID)
	}
	return pl, nil
}

func checkDependencies(tasks []hierarchy.Task, deps []string) error {
	known := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		known[t.ID] = true
	}
	for _, d := range deps {
		if !known[d] {
			return errors.NewDanglingRefError("new task", "dependency", d)
		}
	}
	return nil
}

// Create places req and writes the task, plus its workstream when one is
// opened, in one transaction. The target phase moves from created to
// in_progress with its first child.
func (v *Validator) Create(ctx context.Context, req Request) (*hierarchy.Task, *Placement, error) {
	pl, err := v.Place(ctx, req)
	if err != nil {
		return nil, nil, err
	}

	release, err := v.gate.Enter(pl.PhaseID)
	if err != nil {
		return nil, nil, err
	}
	defer release()

	priority := req.Priority
	if priority == "" {
		priority = hierarchy.PriorityMedium
	}
	task := hierarchy.Task{
		ID:          hierarchy.NewTaskID(),
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
		Status:      hierarchy.StatusPending,
		CreatedBy:   req.CreatorID,
		Priority:    priority,
		ParentID:    pl.ParentID,
		DependsOn:   req.DependsOn,
	}

	err = v.store.WithTx(func(tx *store.Tx) error {
		p, err := tx.Phase(pl.PhaseID)
		if err != nil {
			return err
		}
		if p.Status == hierarchy.PhaseComplete {
			return errors.NewPhaseCompleteError(p.ID)
		}

		all, err := tx.Tasks()
		if err != nil {
			return err
		}
		if cycle := graph.DependencyCycle(append(all, task)); cycle != nil {
			return errors.NewDependencyCycleError(cycle)
		}

		if pl.NewWorkstream != nil {
			// A concurrent create may have opened the same workstream
			// since Place ran.
			existing, err := tx.Task(pl.NewWorkstream.ID)
			switch {
			case err == nil && existing.Status != hierarchy.StatusCancelled:
				pl.NewWorkstream = nil
			case err != nil && !errors.HasCode(err, errors.ErrCodeNotFound):
				return err
			default:
				if err := tx.InsertTask(*pl.NewWorkstream); err != nil {
					return err
				}
			}
		}
		if err := tx.InsertTask(task); err != nil {
			return err
		}
		if err := tx.AttachChild(task.ParentID, task.ID); err != nil {
			return err
		}
		return phase.Start(tx, pl.PhaseID)
	})
	if err != nil {
		return nil, nil, err
	}

	v.logger.Info("task created", "task", task.ID, "parent", task.ParentID, "phase", pl.PhaseID,
		"creator", req.CreatorID, "new_workstream", pl.NewWorkstream != nil)
	return &task, pl, nil
}
