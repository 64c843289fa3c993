package graph

import (
	"container/heap"
	"sort"

	"github.com/HendryAvila/strata/internal/hierarchy"
)

type intMinHeap []int

func (h intMinHeap) Len() int           { return len(h) }
func (h intMinHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h intMinHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *intMinHeap) Push(x any)        { *h = append(*h, x.(int)) }
func (h *intMinHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// depGraph is the directed dependency graph: an edge runs from a
// dependency to the task that depends on it. Nodes are indexed in id order.
type depGraph struct {
	names    []string
	outgoing [][]int
	indeg    []int
}

func newDepGraph(tasks []hierarchy.Task) *depGraph {
	names := make([]string, 0, len(tasks))
	for _, t := range tasks {
		names = append(names, t.ID)
	}
	sort.Strings(names)
	index := make(map[string]int, len(names))
	for i, n := range names {
		index[n] = i
	}

	g := &depGraph{names: names, outgoing: make([][]int, len(names)), indeg: make([]int, len(names))}
	for _, t := range tasks {
		to := index[t.ID]
		for _, dep := range t.DependsOn {
			from, ok := index[dep]
			if !ok {
				continue
			}
			g.outgoing[from] = append(g.outgoing[from], to)
			g.indeg[to]++
		}
	}
	for i := range g.outgoing {
		sort.Ints(g.outgoing[i])
	}
	return g
}

// TopoOrder returns task ids in dependency order, ties broken by id. It
// returns nil when the dependencies contain a cycle.
func TopoOrder(tasks []hierarchy.Task) []string {
	g := newDepGraph(tasks)
	order := g.topoOrderIndices()
	if len(order) != len(g.names) {
		return nil
	}
	out := make([]string, len(order))
	for i, idx := range order {
		out[i] = g.names[idx]
	}
	return out
}

// DependencyCycle returns one dependency cycle as a closed path
// (first id repeated at the end), or nil when dependencies are acyclic.
// References to unknown ids are ignored. The witness is deterministic.
func DependencyCycle(tasks []hierarchy.Task) []string {
	g := newDepGraph(tasks)
	if len(g.topoOrderIndices()) == len(g.names) {
		return nil
	}
	return g.findCycleDeterministic()
}

func (g *depGraph) topoOrderIndices() []int {
	indeg := make([]int, len(g.indeg))
	copy(indeg, g.indeg)

	ready := &intMinHeap{}
	heap.Init(ready)
	for i := range indeg {
		if indeg[i] == 0 {
			heap.Push(ready, i)
		}
	}

	out := make([]int, 0, len(indeg))
	for ready.Len() > 0 {
		n := heap.Pop(ready).(int)
		out = append(out, n)
		for _, m := range g.outgoing[n] {
			indeg[m]--
			if indeg[m] == 0 {
				heap.Push(ready, m)
			}
		}
	}
	return out
}

func (g *depGraph) findCycleDeterministic() []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)

	color := make([]int, len(g.names))
	parent := make([]int, len(g.names))
	for i := range parent {
		parent[i] = -1
	}

	var cycle []int
	var dfs func(u int) bool
	dfs = func(u int) bool {
		color[u] = gray
		for _, v := range g.outgoing[u] {
			if color[v] == white {
				parent[v] = u
				if dfs(v) {
					return true
				}
				continue
			}
			if color[v] == gray {
				// back edge u -> v: walk parents from u back to v
				cycle = append(cycle, v)
				for cur := u; cur != -1 && cur != v; cur = parent[cur] {
					cycle = append(cycle, cur)
				}
				cycle = append(cycle, v)
				return true
			}
		}
		color[u] = black
		return false
	}

	for i := range g.names {
		if color[i] == white && dfs(i) {
			break
		}
	}
	if len(cycle) == 0 {
		return nil
	}

	out := make([]string, 0, len(cycle))
	for i := len(cycle) - 1; i >= 0; i-- {
		out = append(out, g.names[cycle[i]])
	}
	return out
}
