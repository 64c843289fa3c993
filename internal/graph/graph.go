// Package graph finds the connected groups of tasks that must migrate
// together.
//
// Two tasks are related when one is the other's parent or when one depends
// on the other. Relations are undirected for grouping purposes. Directed
// dependency order is checked separately by DependencyCycle.
package graph

import (
	"fmt"
	"sort"

	"github.com/HendryAvila/strata/internal/errors"
	"github.com/HendryAvila/strata/internal/hierarchy"
)

// Cluster is a connected component of related tasks. Roots are the
// members whose parent lies outside the cluster, ordered by number of
// in-cluster children descending, then by id.
type Cluster struct {
	ID           string                       `json:"id"`
	Members      []string                     `json:"members"`
	Roots        []string                     `json:"roots"`
	StatusCounts map[hierarchy.TaskStatus]int `json:"status_counts"`
}

// Size is the number of member tasks.
func (c Cluster) Size() int { return len(c.Members) }

// Completion is the fraction of non-cancelled members that are completed.
// A cluster with only cancelled members counts as complete.
func (c Cluster) Completion() float64 {
	live := len(c.Members) - c.StatusCounts[hierarchy.StatusCancelled]
	if live <= 0 {
		return 1
	}
	return float64(c.StatusCounts[hierarchy.StatusCompleted]) / float64(live)
}

// Active reports whether any member is being worked on.
func (c Cluster) Active() bool {
	return c.StatusCounts[hierarchy.StatusInProgress] > 0 || c.StatusCounts[hierarchy.StatusBlocked] > 0
}

// Quarantine is a task excluded from clustering because its record is
// corrupt.
type Quarantine struct {
	TaskID string `json:"task_id"`
	Reason string `json:"reason"`
}

// Analysis is the result of Analyze.
type Analysis struct {
	Clusters    []Cluster    `json:"clusters"`
	Quarantined []Quarantine `json:"quarantined,omitempty"`
}

// TaskCount is the number of clustered tasks.
func (a *Analysis) TaskCount() int {
	n := 0
	for _, c := range a.Clusters {
		n += c.Size()
	}
	return n
}

// Partition splits tasks into those without a phase ancestor and the set of
// ids that already reach a phase. Self-parented tasks land in the unplaced
// set so Analyze can quarantine them. A broken parent chain is an error.
func Partition(phases []hierarchy.Phase, tasks []hierarchy.Task) ([]hierarchy.Task, map[string]bool, error) {
	sanitized := make([]hierarchy.Task, len(tasks))
	for i, t := range tasks {
		if t.ParentID == t.ID {
			t.ParentID = ""
		}
		sanitized[i] = t
	}
	idx := hierarchy.NewIndex(phases, sanitized)

	var unplaced []hierarchy.Task
	placed := make(map[string]bool)
	for _, t := range tasks {
		phase, err := idx.PhaseOf(t.ID)
		if err != nil {
			return nil, nil, err
		}
		if phase == "" {
			unplaced = append(unplaced, t)
		} else {
			placed[t.ID] = true
		}
	}
	return unplaced, placed, nil
}

// Analyze groups tasks into clusters. external reports whether an id that
// is not among tasks exists elsewhere (an already placed task or a phase);
// such references contribute no edge. Any other unknown reference is a
// dangling reference error.
//
// Clusters are ordered by size descending, then by smallest member id.
func Analyze(tasks []hierarchy.Task, external func(id string) bool) (*Analysis, error) {
	if external == nil {
		external = func(string) bool { return false }
	}

	byID := make(map[string]hierarchy.Task, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
	}

	a := &Analysis{}
	quarantined := make(map[string]bool)
	for _, id := range sortedKeys(byID) {
		if byID[id].ParentID == id {
			quarantined[id] = true
			a.Quarantined = append(a.Quarantined, Quarantine{TaskID: id, Reason: "task is its own parent"})
		}
	}

	inSet := func(id string) bool {
		_, ok := byID[id]
		return ok && !quarantined[id]
	}

	for _, id := range sortedKeys(byID) {
		t := byID[id]
		if quarantined[id] {
			continue
		}
		if t.ParentID != "" && !quarantined[t.ParentID] && !inSet(t.ParentID) && !external(t.ParentID) {
			return nil, errors.NewDanglingRefError(id, "parent", t.ParentID)
		}
		for _, dep := range t.DependsOn {
			if !quarantined[dep] && !inSet(dep) && !external(dep) {
				return nil, errors.NewDanglingRefError(id, "dependency", dep)
			}
		}
	}

	if cycle := parentCycle(byID, inSet); cycle != nil {
		return nil, errors.NewCycleError(cycle)
	}

	uf := newUnionFind()
	for _, id := range sortedKeys(byID) {
		if quarantined[id] {
			continue
		}
		uf.add(id)
		t := byID[id]
		if inSet(t.ParentID) {
			uf.union(id, t.ParentID)
		}
		for _, dep := range t.DependsOn {
			if inSet(dep) {
				uf.union(id, dep)
			}
		}
	}

	groups := make(map[string][]string)
	for _, id := range uf.order {
		root := uf.find(id)
		groups[root] = append(groups[root], id)
	}

	for _, members := range groups {
		sort.Strings(members)
		a.Clusters = append(a.Clusters, buildCluster(members, byID))
	}
	sort.Slice(a.Clusters, func(i, j int) bool {
		ci, cj := a.Clusters[i], a.Clusters[j]
		if ci.Size() != cj.Size() {
			return ci.Size() > cj.Size()
		}
		return ci.Members[0] < cj.Members[0]
	})
	for i := range a.Clusters {
		a.Clusters[i].ID = fmt.Sprintf("cluster_%03d", i+1)
	}
	return a, nil
}

func buildCluster(members []string, byID map[string]hierarchy.Task) Cluster {
	member := make(map[string]bool, len(members))
	for _, id := range members {
		member[id] = true
	}

	c := Cluster{Members: members, StatusCounts: make(map[hierarchy.TaskStatus]int)}
	childCount := make(map[string]int)
	for _, id := range members {
		t := byID[id]
		c.StatusCounts[t.Status]++
		if member[t.ParentID] && t.ParentID != id {
			childCount[t.ParentID]++
		}
	}
	for _, id := range members {
		p := byID[id].ParentID
		if !member[p] || p == id {
			c.Roots = append(c.Roots, id)
		}
	}
	sort.SliceStable(c.Roots, func(i, j int) bool {
		ri, rj := c.Roots[i], c.Roots[j]
		if childCount[ri] != childCount[rj] {
			return childCount[ri] > childCount[rj]
		}
		return ri < rj
	})
	return c
}

// parentCycle returns the first parent cycle found walking ids in sorted
// order, or nil.
func parentCycle(byID map[string]hierarchy.Task, inSet func(string) bool) []string {
	const (
		unvisited = 0
		onPath    = 1
		done      = 2
	)
	state := make(map[string]int, len(byID))
	for _, start := range sortedKeys(byID) {
		if !inSet(start) || state[start] != unvisited {
			continue
		}
		var path []string
		cur := start
		for inSet(cur) && state[cur] == unvisited {
			state[cur] = onPath
			path = append(path, cur)
			cur = byID[cur].ParentID
		}
		if inSet(cur) && state[cur] == onPath {
			for i, id := range path {
				if id == cur {
					return append(append([]string(nil), path[i:]...), cur)
				}
			}
		}
		for _, id := range path {
			state[id] = done
		}
	}
	return nil
}

func sortedKeys(m map[string]hierarchy.Task) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ─── Union-find ──────────────────────────────────────────────────────────────

type unionFind struct {
	parent map[string]string
	rank   map[string]int
	order  []string
}

func newUnionFind() *unionFind {
	return &unionFind{parent: make(map[string]string), rank: make(map[string]int)}
}

func (u *unionFind) add(id string) {
	if _, ok := u.parent[id]; ok {
		return
	}
	u.parent[id] = id
	u.order = append(u.order, id)
}

func (u *unionFind) find(id string) string {
	for u.parent[id] != id {
		u.parent[id] = u.parent[u.parent[id]]
		id = u.parent[id]
	}
	return id
}

func (u *unionFind) union(a, b string) {
	u.add(a)
	u.add(b)
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	switch {
	case u.rank[ra] < u.rank[rb]:
		u.parent[ra] = rb
	case u.rank[ra] > u.rank[rb]:
		u.parent[rb] = ra
	default:
		u.parent[rb] = ra
		u.rank[ra]++
	}
}
