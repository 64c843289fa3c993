// Package phase runs the phase lifecycle: creation behind prerequisites,
// completion tracking and advancement at exactly 100%.
//
// Transitions:
//
//	created ──► in_progress ◄──► blocked
//	                 │               │
//	                 └──► complete ◄─┘
//
// complete is terminal.
package phase

import (
	"fmt"

	"github.com/HendryAvila/strata/internal/errors"
	"github.com/HendryAvila/strata/internal/hierarchy"
	"github.com/HendryAvila/strata/internal/lock"
	"github.com/HendryAvila/strata/internal/log"
	"github.com/HendryAvila/strata/internal/store"
)

var transitions = map[hierarchy.PhaseStatus][]hierarchy.PhaseStatus{
	hierarchy.PhaseCreated:    {hierarchy.PhaseInProgress},
	hierarchy.PhaseInProgress: {hierarchy.PhaseBlocked, hierarchy.PhaseComplete},
	hierarchy.PhaseBlocked:    {hierarchy.PhaseInProgress, hierarchy.PhaseComplete},
}

// CanTransition reports whether from → to is a legal phase transition.
func CanTransition(from, to hierarchy.PhaseStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func transition(p *hierarchy.Phase, to hierarchy.PhaseStatus) error {
	if p.Status == hierarchy.PhaseComplete {
		return errors.NewPhaseCompleteError(p.ID)
	}
	if !CanTransition(p.Status, to) {
		return errors.Newf(errors.ErrCodeInvalidState, "phase %q cannot go from %s to %s", p.ID, p.Status, to).
			WithSubjects(p.ID)
	}
	return nil
}

// Store is the persistence the machine needs.
type Store interface {
	GetPhase(id string) (*hierarchy.Phase, error)
	ListPhases() ([]hierarchy.Phase, error)
	ListTasks() ([]hierarchy.Task, error)
	ListAgents() ([]hierarchy.Agent, error)
	WithTx(fn func(tx *store.Tx) error) error
}

// Options configures a Machine.
type Options struct {
	// RequireAgentHandoff refuses to advance while active agents still
	// work in the phase, unless the caller asks to deactivate them.
	RequireAgentHandoff bool
	Gate                *lock.Gate
	Logger              *log.Logger
}

// Machine applies phase transitions.
type Machine struct {
	store          Store
	gate           *lock.Gate
	logger         *log.Logger
	requireHandoff bool
}

// NewMachine creates a Machine over s.
func NewMachine(s Store, opts Options) *Machine {
	gate := opts.Gate
	if gate == nil {
		gate = lock.NewGate()
	}
	return &Machine{
		store:          s,
		gate:           gate,
		logger:         log.Or(opts.Logger).WithComponent("phase"),
		requireHandoff: opts.RequireAgentHandoff,
	}
}

// CreateRequest names the phase to create and optional overrides.
type CreateRequest struct {
	// Phase is a definition id or type ("foundation", "phase_2_intelligence").
	Phase             string
	CustomTitle       string
	CustomDescription string
}

// Create creates a phase from its definition. Every prerequisite must be
// complete; otherwise the error names the blocking phase ids.
func (m *Machine) Create(req CreateRequest) (*hierarchy.Phase, error) {
	def, ok := Lookup(req.Phase)
	if !ok {
		return nil, errors.Newf(errors.ErrCodeInvalidArgument, "unknown phase %q", req.Phase).
			WithSubjects(req.Phase).
			WithSuggestion("Use one of: foundation, intelligence, coordination, optimization")
	}

	release, err := m.gate.Enter(def.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	phases, err := m.store.ListPhases()
	if err != nil {
		return nil, err
	}
	byID := make(map[string]hierarchy.Phase, len(phases))
	for _, p := range phases {
		byID[p.ID] = p
	}
	if _, exists := byID[def.ID]; exists {
		return nil, errors.Newf(errors.ErrCodeAlreadyExists, "phase %q already exists", def.ID).WithSubjects(def.ID)
	}

	var blocking []string
	for _, pre := range def.Prerequisites {
		if p, ok := byID[pre]; !ok || p.Status != hierarchy.PhaseComplete {
			blocking = append(blocking, pre)
		}
	}
	if len(blocking) > 0 {
		return nil, errors.NewPrerequisiteError(def.ID, blocking)
	}

	p := def.Phase()
	if req.CustomTitle != "" {
		p.Title = req.CustomTitle
	}
	if req.CustomDescription != "" {
		p.Description = p.Description + ". " + req.CustomDescription
	}
	if err := m.store.WithTx(func(tx *store.Tx) error { return tx.InsertPhase(p) }); err != nil {
		return nil, err
	}
	m.logger.Info("phase created", "phase", p.ID)
	return m.store.GetPhase(p.ID)
}

// Status returns the report of phaseID, or of every phase when phaseID is "".
func (m *Machine) Status(phaseID string) ([]Report, error) {
	idx, agents, err := m.snapshot()
	if err != nil {
		return nil, err
	}
	phases, err := m.store.ListPhases()
	if err != nil {
		return nil, err
	}

	var out []Report
	for _, p := range phases {
		if phaseID != "" && p.ID != phaseID {
			continue
		}
		out = append(out, Compute(idx, p.ID, agents))
	}
	if phaseID != "" && len(out) == 0 {
		return nil, errors.NewNotFoundError("phase", phaseID)
	}
	return out, nil
}

// Current returns the earliest phase that is not complete.
func Current(phases []hierarchy.Phase) (hierarchy.Phase, bool) {
	var best *hierarchy.Phase
	for i := range phases {
		p := &phases[i]
		if p.Status == hierarchy.PhaseComplete {
			continue
		}
		if best == nil || p.Ordinal < best.Ordinal {
			best = p
		}
	}
	if best == nil {
		return hierarchy.Phase{}, false
	}
	return *best, true
}

// AdvanceOptions controls Advance.
type AdvanceOptions struct {
	Actor            string
	// DeactivateAgents terminates the phase's active agents as part of
	// the advance.
	DeactivateAgents bool
}

// AdvanceResult describes a completed advance.
type AdvanceResult struct {
	Report      Report      `json:"report"`
	Deactivated []string    `json:"deactivated,omitempty"`
	Next        *Definition `json:"next,omitempty"`
	NextExists  bool        `json:"next_exists"`
}

// Advance marks phaseID complete. It requires 100% completion across all
// live workstreams, and, with agent handoff required, no active agents
// left in the phase unless opts.DeactivateAgents is set. Every workstream
// receives a completion note.
func (m *Machine) Advance(phaseID string, opts AdvanceOptions) (*AdvanceResult, error) {
	release, err := m.gate.Enter(phaseID)
	if err != nil {
		return nil, err
	}
	defer release()

	p, err := m.store.GetPhase(phaseID)
	if err != nil {
		return nil, err
	}
	if err := transition(p, hierarchy.PhaseComplete); err != nil {
		return nil, err
	}

	idx, agents, err := m.snapshot()
	if err != nil {
		return nil, err
	}
	report := Compute(idx, phaseID, agents)
	if !report.CanAdvance {
		msg := fmt.Sprintf("phase %q is %.1f%% complete; 100%% is required", phaseID, report.Percent())
		if len(report.Workstreams) == 0 {
			msg = fmt.Sprintf("phase %q has no workstreams", phaseID)
		}
		return nil, errors.New(errors.ErrCodePhaseIncomplete, msg).
			WithSubjects(report.Blocking...).
			WithSuggestion("Complete the listed workstreams before advancing")
	}
	if m.requireHandoff && len(report.ActiveAgents) > 0 && !opts.DeactivateAgents {
		return nil, errors.Newf(errors.ErrCodeAgentsStillActive,
			"%d agent(s) still active in phase %q", len(report.ActiveAgents), phaseID).
			WithSubjects(report.ActiveAgents...).
			WithSuggestion("Deactivate the agents or advance with agent deactivation enabled")
	}

	actor := opts.Actor
	if actor == "" {
		actor = "admin"
	}
	res := &AdvanceResult{Report: report}
	err = m.store.WithTx(func(tx *store.Tx) error {
		if opts.DeactivateAgents && len(report.ActiveAgents) > 0 {
			if err := tx.DeactivateAgents(report.ActiveAgents...); err != nil {
				return err
			}
			res.Deactivated = report.ActiveAgents
		}
		if err := tx.SetPhaseStatus(phaseID, hierarchy.PhaseComplete); err != nil {
			return err
		}
		note := hierarchy.NewNote(actor, fmt.Sprintf("Phase %s completed at %.1f%%.", phaseID, report.Percent()))
		for _, ws := range report.Workstreams {
			t, err := tx.Task(ws.ID)
			if err != nil {
				return err
			}
			t.Notes = append(t.Notes, note)
			t.UpdatedAt = hierarchy.Now()
			if err := tx.SaveTask(*t); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	res.Report.Status = hierarchy.PhaseComplete
	res.Report.CanAdvance = false
	if next, ok := Next(phaseID); ok {
		res.Next = &next
		if _, err := m.store.GetPhase(next.ID); err == nil {
			res.NextExists = true
		}
	}
	m.logger.Info("phase advanced", "phase", phaseID, "deactivated", len(res.Deactivated))
	return res, nil
}

// Block moves an in-progress phase to blocked.
func (m *Machine) Block(phaseID, reason string) error {
	return m.move(phaseID, hierarchy.PhaseBlocked, reason)
}

// Unblock moves a blocked phase back to in_progress.
func (m *Machine) Unblock(phaseID string) error {
	return m.move(phaseID, hierarchy.PhaseInProgress, "")
}

func (m *Machine) move(phaseID string, to hierarchy.PhaseStatus, reason string) error {
	release, err := m.gate.Enter(phaseID)
	if err != nil {
		return err
	}
	defer release()

	p, err := m.store.GetPhase(phaseID)
	if err != nil {
		return err
	}
	if err := transition(p, to); err != nil {
		return err
	}
	if err := m.store.WithTx(func(tx *store.Tx) error { return tx.SetPhaseStatus(phaseID, to) }); err != nil {
		return err
	}
	m.logger.Info("phase status changed", "phase", phaseID, "from", string(p.Status), "to", string(to), "reason", reason)
	return nil
}

// Start moves a created phase to in_progress inside tx; any other status
// is left alone. It is called when the first child is attached.
func Start(tx *store.Tx, phaseID string) error {
	p, err := tx.Phase(phaseID)
	if err != nil {
		return err
	}
	if p.Status != hierarchy.PhaseCreated {
		return nil
	}
	return tx.SetPhaseStatus(phaseID, hierarchy.PhaseInProgress)
}

func (m *Machine) snapshot() (*hierarchy.Index, []hierarchy.Agent, error) {
	phases, err := m.store.ListPhases()
	if err != nil {
		return nil, nil, err
	}
	tasks, err := m.store.ListTasks()
	if err != nil {
		return nil, nil, err
	}
	agents, err := m.store.ListAgents()
	if err != nil {
		return nil, nil, err
	}
	return hierarchy.NewIndex(phases, tasks), agents, nil
}
