package phase

import (
	"sort"

	"github.com/HendryAvila/strata/internal/hierarchy"
)

// WorkstreamReport is the completion of one workstream.
type WorkstreamReport struct {
	ID         string               `json:"id"`
	Title      string               `json:"title"`
	Status     hierarchy.TaskStatus `json:"status"`
	Completion float64              `json:"completion"`
	Tasks      int                  `json:"tasks"`
	Completed  int                  `json:"completed"`
	Open       []string             `json:"open,omitempty"`
}

// Report is the completion of one phase, computed top-down on demand.
type Report struct {
	PhaseID      string                `json:"phase_id"`
	Title        string                `json:"title"`
	Status       hierarchy.PhaseStatus `json:"status"`
	Completion   float64               `json:"completion"`
	Workstreams  []WorkstreamReport    `json:"workstreams"`
	CanAdvance   bool                  `json:"can_advance"`
	Blocking     []string              `json:"blocking,omitempty"`
	ActiveAgents []string              `json:"active_agents,omitempty"`
}

// Percent is Completion as a percentage rounded to one decimal.
func (r Report) Percent() float64 {
	return float64(int(r.Completion*1000+0.5)) / 10
}

// Compute builds the report for phaseID. A leaf counts 1 when completed
// and 0 otherwise; a parent is the mean of its non-cancelled children. A
// phase with no live workstream is at 0 and cannot advance.
func Compute(idx *hierarchy.Index, phaseID string, agents []hierarchy.Agent) Report {
	p, _ := idx.Phase(phaseID)
	r := Report{PhaseID: phaseID, Title: p.Title, Status: p.Status}

	sum, live := 0.0, 0
	for _, wsID := range idx.Workstreams(phaseID) {
		ws, _ := idx.Task(wsID)
		wr := WorkstreamReport{ID: wsID, Title: ws.Title, Status: ws.Status}
		if ws.Status == hierarchy.StatusCancelled {
			r.Workstreams = append(r.Workstreams, wr)
			continue
		}
		wr.Completion = completion(idx, wsID)
		for _, id := range idx.Subtree(wsID)[1:] {
			t, _ := idx.Task(id)
			if t.Status == hierarchy.StatusCancelled {
				continue
			}
			wr.Tasks++
			if t.Status == hierarchy.StatusCompleted {
				wr.Completed++
			} else if len(liveChildren(idx, id)) == 0 {
				wr.Open = append(wr.Open, id)
			}
		}
		if wr.Completion < 1 {
			r.Blocking = append(r.Blocking, wsID)
		}
		sum += wr.Completion
		live++
		r.Workstreams = append(r.Workstreams, wr)
	}

	if live > 0 {
		r.Completion = sum / float64(live)
	}
	r.CanAdvance = live > 0 && len(r.Blocking) == 0 && r.Status != hierarchy.PhaseComplete
	r.ActiveAgents = activeAgents(idx, phaseID, agents)
	return r
}

func completion(idx *hierarchy.Index, id string) float64 {
	children := liveChildren(idx, id)
	if len(children) == 0 {
		t, _ := idx.Task(id)
		if t.Status == hierarchy.StatusCompleted {
			return 1
		}
		return 0
	}
	sum := 0.0
	for _, c := range children {
		sum += completion(idx, c)
	}
	return sum / float64(len(children))
}

func liveChildren(idx *hierarchy.Index, id string) []string {
	var out []string
	for _, c := range idx.Children(id) {
		if t, ok := idx.Task(c); ok && t.Status != hierarchy.StatusCancelled {
			out = append(out, c)
		}
	}
	return out
}

// activeAgents returns the active agents whose current task lies in the phase.
func activeAgents(idx *hierarchy.Index, phaseID string, agents []hierarchy.Agent) []string {
	var out []string
	for _, a := range agents {
		if a.Status != hierarchy.AgentActive || a.CurrentTask == "" {
			continue
		}
		if p, err := idx.PhaseOf(a.CurrentTask); err == nil && p == phaseID {
			out = append(out, a.ID)
		}
	}
	sort.Strings(out)
	return out
}

// DeriveStatus is the status a container takes from its children: all
// completed → completed; any started → in_progress; otherwise pending.
// Cancelled children are ignored.
func DeriveStatus(children []hierarchy.Task) hierarchy.TaskStatus {
	live, completed, started := 0, 0, false
	for _, c := range children {
		switch c.Status {
		case hierarchy.StatusCancelled:
			continue
		case hierarchy.StatusCompleted:
			completed++
			started = true
		case hierarchy.StatusInProgress, hierarchy.StatusBlocked:
			started = true
		}
		live++
	}
	switch {
	case live > 0 && completed == live:
		return hierarchy.StatusCompleted
	case started:
		return hierarchy.StatusInProgress
	default:
		return hierarchy.StatusPending
	}
}
