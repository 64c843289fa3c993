package migrate

import (
	"context"
	"sort"

	"github.com/HendryAvila/strata/internal/classify"
	"github.com/HendryAvila/strata/internal/errors"
	"github.com/HendryAvila/strata/internal/graph"
	"github.com/HendryAvila/strata/internal/hierarchy"
	"github.com/HendryAvila/strata/internal/phase"
)

// ClusterPlan records what happens to one cluster. SuggestedPhase is the
// phase the cluster's own progress points at; Phase is where it goes after
// the linear override.
type ClusterPlan struct {
	ClusterID      string   `json:"cluster_id"`
	Members        []string `json:"members"`
	Roots          []string `json:"roots"`
	Completion     float64  `json:"completion"`
	SuggestedPhase string   `json:"suggested_phase"`
	Phase          string   `json:"phase"`
	Category       string   `json:"category"`
	Confidence     float64  `json:"confidence"`
	Degraded       bool     `json:"degraded,omitempty"`
}

// WorkstreamPlan is one workstream to create or reuse. Attach lists the
// tasks that will be reparented under it.
type WorkstreamPlan struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Category   string   `json:"category"`
	Exists     bool     `json:"exists"`
	Members    []string `json:"members"`
	Attach     []string `json:"attach"`
	MergedFrom []string `json:"merged_from,omitempty"`
}

// PhasePlan is one phase to create or reuse.
type PhasePlan struct {
	ID          string                `json:"id"`
	Title       string                `json:"title"`
	Exists      bool                  `json:"exists"`
	Status      hierarchy.PhaseStatus `json:"status"`
	Workstreams []WorkstreamPlan      `json:"workstreams"`
}

// Plan is the in-memory result of steps 2 to 4, computed from a read
// snapshot before anything is written.
type Plan struct {
	ColdStart   bool               `json:"cold_start"`
	TotalTasks  int                `json:"total_tasks"`
	Unplaced    int                `json:"unplaced"`
	Clusters    []ClusterPlan      `json:"clusters"`
	Phases      []PhasePlan        `json:"phases"`
	Quarantined []graph.Quarantine `json:"quarantined,omitempty"`
	Degraded    bool               `json:"degraded,omitempty"`

	before []string
}

// TaskCount is the number of tasks the plan places.
func (p *Plan) TaskCount() int {
	n := 0
	for _, c := range p.Clusters {
		n += len(c.Members)
	}
	return n
}

type planner struct {
	classifier *classify.Classifier
	cfg        Config
}

// build computes the plan. It checks ctx between steps and never writes.
func (pl *planner) build(ctx context.Context, phases []hierarchy.Phase, tasks []hierarchy.Task) (*Plan, error) {
	plan := &Plan{ColdStart: len(phases) == 0, TotalTasks: len(tasks)}
	for _, t := range tasks {
		plan.before = append(plan.before, t.ID)
	}
	sort.Strings(plan.before)

	// analyze
	unplaced, placed, err := graph.Partition(phases, tasks)
	if err != nil {
		return nil, err
	}
	plan.Unplaced = len(unplaced)
	phaseIDs := make(map[string]bool, len(phases))
	for _, p := range phases {
		phaseIDs[p.ID] = true
	}
	analysis, err := graph.Analyze(unplaced, func(id string) bool { return placed[id] || phaseIDs[id] })
	if err != nil {
		return nil, err
	}
	plan.Quarantined = analysis.Quarantined
	if err := canceled(ctx); err != nil {
		return nil, err
	}
	if len(analysis.Clusters) == 0 {
		return plan, nil
	}

	// phase assignment
	target, err := targetPhase(phases)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]hierarchy.Task, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
	}

	// classify
	groups := make([]classify.Group, 0, len(analysis.Clusters))
	for _, c := range analysis.Clusters {
		members := make([]hierarchy.Task, 0, len(c.Members))
		for _, id := range c.Members {
			members = append(members, byID[id])
		}
		res := pl.classifier.Classify(ctx, members)
		plan.Clusters = append(plan.Clusters, ClusterPlan{
			ClusterID:      c.ID,
			Members:        c.Members,
			Roots:          c.Roots,
			Completion:     c.Completion(),
			SuggestedPhase: suggestPhase(c, target.ID),
			Phase:          target.ID,
			Category:       res.Category,
			Confidence:     res.Confidence,
			Degraded:       res.Degraded,
		})
		plan.Degraded = plan.Degraded || res.Degraded
		groups = append(groups, classify.Group{Category: res.Category, Score: res.Scores[res.Category], Members: c.Members})
	}
	if err := canceled(ctx); err != nil {
		return nil, err
	}

	buckets := pl.classifier.Consolidate(groups, pl.cfg.MinTasksPerWorkstream, pl.cfg.MaxWorkstreamsPerPhase)
	if err := classify.VerifyTotality(analysisMembers(analysis), buckets); err != nil {
		return nil, err
	}

	pp := PhasePlan{ID: target.ID, Title: target.Title, Exists: phaseIDs[target.ID], Status: target.Status}
	idx := hierarchy.NewIndex(phases, tasks)
	existing := make(map[string]bool)
	for _, id := range idx.Workstreams(target.ID) {
		existing[id] = true
	}
	roots := make(map[string]bool)
	for _, c := range analysis.Clusters {
		for _, r := range c.Roots {
			roots[r] = true
		}
	}
	allTerminal := true
	for _, b := range buckets {
		ws := WorkstreamPlan{
			ID:         hierarchy.WorkstreamID(target.ID, b.Category),
			Title:      pl.classifier.Title(b.Category),
			Category:   b.Category,
			Members:    b.Members,
			MergedFrom: b.MergedFrom,
		}
		ws.Exists = existing[ws.ID]
		for _, id := range b.Members {
			if !pl.cfg.PreserveHierarchies || roots[id] {
				ws.Attach = append(ws.Attach, id)
			}
			if !byID[id].Status.Terminal() {
				allTerminal = false
			}
		}
		pp.Workstreams = append(pp.Workstreams, ws)
	}
	switch {
	case !pp.Exists && allTerminal:
		pp.Status = hierarchy.PhaseComplete
	case !pp.Exists || pp.Status == hierarchy.PhaseCreated:
		pp.Status = hierarchy.PhaseInProgress
	}
	plan.Phases = []PhasePlan{pp}
	return plan, nil
}

// targetPhase picks the phase every cluster lands in: Foundation on a cold
// start, else the earliest phase that is not complete, else the next
// standard phase after the last complete one.
func targetPhase(phases []hierarchy.Phase) (hierarchy.Phase, error) {
	if len(phases) == 0 {
		d, _ := phase.Lookup(phase.FoundationID)
		return d.Phase(), nil
	}
	if p, ok := phase.Current(phases); ok {
		return p, nil
	}
	last := phases[0]
	for _, p := range phases[1:] {
		if p.Ordinal > last.Ordinal {
			last = p
		}
	}
	if d, ok := phase.Next(last.ID); ok {
		return d.Phase(), nil
	}
	return hierarchy.Phase{}, errors.New(errors.ErrCodeInvalidState, "every phase is complete; no phase can receive migrated tasks").
		WithSuggestion("create a phase before migrating")
}

// suggestPhase is the phase a cluster's progress points at: fully done work
// belongs to the first phase, started work to the current one and untouched
// work to the one after it.
func suggestPhase(c graph.Cluster, current string) string {
	switch {
	case c.Completion() >= 1:
		return phase.FoundationID
	case c.Active() || c.Completion() > 0:
		return current
	}
	if next, ok := phase.Next(current); ok {
		return next.ID
	}
	return current
}

func analysisMembers(a *graph.Analysis) []string {
	var out []string
	for _, c := range a.Clusters {
		out = append(out, c.Members...)
	}
	return out
}

func canceled(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(errors.ErrCodeMigrationCanceled, "migration canceled before materialization", err)
	}
	return nil
}
