package migrate

import (
	"github.com/HendryAvila/strata/internal/graph"
	"github.com/HendryAvila/strata/internal/lock"
	"github.com/HendryAvila/strata/internal/store"
)

// Status is the read-only migration report. IntegrityError is set when
// the parent structure is broken and a migration would fail.
type Status struct {
	CurrentVersion string              `json:"current_version"`
	TargetVersion  string              `json:"target_version"`
	NeedsMigration bool                `json:"needs_migration"`
	Pending        []Version           `json:"pending,omitempty"`
	Ledger         []store.LedgerEntry `json:"ledger,omitempty"`
	Phases         int                 `json:"phases"`
	Tasks          int                 `json:"tasks"`
	Unplaced       int                 `json:"unplaced"`
	IntegrityError string              `json:"integrity_error,omitempty"`
	LockHolder     *lock.Info          `json:"lock_holder,omitempty"`
	Migrating      bool                `json:"migrating"`
}

// Check reports the schema version and how much legacy data remains.
func (o *Orchestrator) Check() (*Status, error) {
	ledger, err := o.store.Ledger()
	if err != nil {
		return nil, err
	}
	current := BaselineVersion
	if len(ledger) > 0 {
		current = ledger[len(ledger)-1].Version
	}
	phases, err := o.store.ListPhases()
	if err != nil {
		return nil, err
	}
	tasks, err := o.store.ListTasks()
	if err != nil {
		return nil, err
	}

	st := &Status{
		CurrentVersion: current,
		TargetVersion:  CurrentVersion,
		Pending:        Pending(current),
		Ledger:         ledger,
		Phases:         len(phases),
		Tasks:          len(tasks),
		Migrating:      o.gate.Migrating(),
	}
	unplaced, _, err := graph.Partition(phases, tasks)
	if err != nil {
		st.IntegrityError = err.Error()
	}
	st.Unplaced = len(unplaced)
	st.NeedsMigration = current != CurrentVersion

	if o.fileLock != nil {
		if holder, err := o.fileLock.Holder(); err == nil {
			st.LockHolder = holder
		}
	}
	return st, nil
}
