package migrate

import (
	"time"

	"github.com/HendryAvila/strata/internal/store"
)

// SetAfterMaterialize installs a hook that runs inside the migration
// transaction after the hierarchy is written.
func (o *Orchestrator) SetAfterMaterialize(fn func(tx *store.Tx) error) {
	o.afterMaterialize = fn
}

// SetNow overrides the clock and returns a restore func.
func SetNow(t time.Time) func() {
	prev := timeNow
	timeNow = func() time.Time { return t }
	return func() { timeNow = prev }
}

var (
	BackupName   = backupName
	PruneBackups = pruneBackups
)
