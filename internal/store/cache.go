package store

import (
	"sync"

	"github.com/HendryAvila/strata/internal/hierarchy"
)

// taskCache holds decoded task rows for repeated single-task reads.
// Writers invalidate the ids they touch; a rolled-back transaction resets
// everything. The generation counter keeps a reader that raced a writer
// from repopulating a stale row.
type taskCache struct {
	mu    sync.Mutex
	gen   uint64
	tasks map[string]hierarchy.Task
}

func newTaskCache() *taskCache {
	return &taskCache{tasks: make(map[string]hierarchy.Task)}
}

func (c *taskCache) get(id string) (hierarchy.Task, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.tasks[id]
	if !ok {
		return hierarchy.Task{}, false
	}
	return cloneTask(t), true
}

func (c *taskCache) generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// put stores t unless a write happened since gen was read.
func (c *taskCache) put(t hierarchy.Task, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return
	}
	c.tasks[t.ID] = cloneTask(t)
}

func (c *taskCache) invalidate(ids ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	for _, id := range ids {
		delete(c.tasks, id)
	}
}

func (c *taskCache) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.tasks = make(map[string]hierarchy.Task)
}

func (c *taskCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tasks)
}

func cloneTask(t hierarchy.Task) hierarchy.Task {
	t.ChildIDs = append([]string(nil), t.ChildIDs...)
	t.DependsOn = append([]string(nil), t.DependsOn...)
	t.Notes = append([]hierarchy.Note(nil), t.Notes...)
	return t
}
