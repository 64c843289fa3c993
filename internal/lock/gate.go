// Package lock serializes mutations of the task hierarchy.
//
// Gate is the in-process half: ordinary mutations take a per-phase lock so
// work in different phases never waits on each other, and a migration
// takes the whole gate exclusively. FileLock is the cross-process half: a
// lock file in the data directory that a second process sees.
package lock

import (
	"sync"

	"github.com/HendryAvila/strata/internal/errors"
)

// Gate coordinates per-phase mutations with exclusive migrations.
type Gate struct {
	mu        sync.Mutex
	idle      *sync.Cond
	migrating bool
	holder    string
	inflight  int
	phases    map[string]*sync.Mutex
}

// NewGate returns an open gate.
func NewGate() *Gate {
	g := &Gate{phases: make(map[string]*sync.Mutex)}
	g.idle = sync.NewCond(&g.mu)
	return g
}

// Enter takes the lock for phaseID and returns its release func. While a
// migration holds the gate, Enter fails immediately with a retryable
// migration-in-progress error. An empty phaseID locks the unphased bucket.
func (g *Gate) Enter(phaseID string) (func(), error) {
	g.mu.Lock()
	if g.migrating {
		holder := g.holder
		g.mu.Unlock()
		return nil, errors.NewMigrationInProgressError(holder)
	}
	g.inflight++
	pm, ok := g.phases[phaseID]
	if !ok {
		pm = &sync.Mutex{}
		g.phases[phaseID] = pm
	}
	g.mu.Unlock()

	pm.Lock()
	var once sync.Once
	return func() {
		once.Do(func() {
			pm.Unlock()
			g.mu.Lock()
			g.inflight--
			if g.inflight == 0 {
				g.idle.Broadcast()
			}
			g.mu.Unlock()
		})
	}, nil
}

// BeginMigration closes the gate to new mutations, waits for in-flight
// ones to finish and returns the func that reopens it. A second
// concurrent migration fails with a retryable error.
func (g *Gate) BeginMigration(holder string) (func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.migrating {
		return nil, errors.NewMigrationInProgressError(g.holder)
	}
	g.migrating = true
	g.holder = holder
	for g.inflight > 0 {
		g.idle.Wait()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			g.migrating = false
			g.holder = ""
			g.mu.Unlock()
		})
	}, nil
}

// Migrating reports whether a migration holds the gate.
func (g *Gate) Migrating() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.migrating
}
