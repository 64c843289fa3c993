// Package migrate converts a flat task store into the phase hierarchy.
//
// A run takes the migration gate and lock file, backs the database up,
// plans the hierarchy in memory from a read snapshot, then writes phases
// and workstreams, reparents tasks, validates totality and appends a
// ledger entry inside a single transaction. Any failure leaves the store
// as it was.
package migrate

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/HendryAvila/strata/internal/classify"
	"github.com/HendryAvila/strata/internal/config"
	"github.com/HendryAvila/strata/internal/errors"
	"github.com/HendryAvila/strata/internal/hierarchy"
	"github.com/HendryAvila/strata/internal/lock"
	"github.com/HendryAvila/strata/internal/log"
	"github.com/HendryAvila/strata/internal/phase"
	"github.com/HendryAvila/strata/internal/store"
)

// timeNow is a package-level variable for testability.
var timeNow = time.Now

// Store is the subset of the task store the orchestrator needs.
type Store interface {
	Path() string
	SchemaVersion() (string, error)
	Ledger() ([]store.LedgerEntry, error)
	ListPhases() ([]hierarchy.Phase, error)
	ListTasks() ([]hierarchy.Task, error)
	Dump() (*store.Snapshot, error)
	Backup(dest string) error
	Restore(src string) error
	WithTx(fn func(tx *store.Tx) error) error
}

// Config holds the migration settings.
type Config struct {
	AutoBackup             bool
	BackupDir              string
	BackupRetentionDays    int
	LockPath               string
	MinTasksPerWorkstream  int
	MaxWorkstreamsPerPhase int
	PreserveHierarchies    bool
}

// ConfigFrom extracts the migration settings from the application config.
func ConfigFrom(cfg config.Config) Config {
	return Config{
		AutoBackup:             cfg.AutoBackup,
		BackupDir:              cfg.BackupDir(),
		BackupRetentionDays:    cfg.BackupRetentionDays,
		LockPath:               cfg.LockPath(),
		MinTasksPerWorkstream:  cfg.MinTasksPerWorkstream,
		MaxWorkstreamsPerPhase: cfg.MaxWorkstreamsPerPhase,
		PreserveHierarchies:    cfg.PreserveHierarchies,
	}
}

// Options wires the orchestrator's collaborators. Nil fields get defaults.
type Options struct {
	Classifier *classify.Classifier
	Gate       *lock.Gate
	Logger     *log.Logger
}

// Orchestrator runs migrations against one store.
type Orchestrator struct {
	store      Store
	cfg        Config
	classifier *classify.Classifier
	gate       *lock.Gate
	fileLock   *lock.FileLock
	logger     *log.Logger

	// afterMaterialize runs inside the transaction between writing the
	// hierarchy and validating it. Tests use it to inject failures.
	afterMaterialize func(tx *store.Tx) error
}

// New creates an Orchestrator.
func New(s Store, cfg Config, opts Options) *Orchestrator {
	if cfg.MinTasksPerWorkstream <= 0 {
		cfg.MinTasksPerWorkstream = 5
	}
	if cfg.MaxWorkstreamsPerPhase <= 0 {
		cfg.MaxWorkstreamsPerPhase = 7
	}
	logger := log.Or(opts.Logger).WithComponent("migrate")
	classifier := opts.Classifier
	if classifier == nil {
		classifier = classify.Default(classify.Options{Logger: logger})
	}
	gate := opts.Gate
	if gate == nil {
		gate = lock.NewGate()
	}
	o := &Orchestrator{
		store:      s,
		cfg:        cfg,
		classifier: classifier,
		gate:       gate,
		logger:     logger,
	}
	if cfg.LockPath != "" {
		o.fileLock = lock.NewFileLock(cfg.LockPath, lock.DefaultStaleAfter)
	}
	return o
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Outcome is how a run ended.
type Outcome string

const (
	OutcomeMigrated Outcome = "migrated"
	OutcomeNoop     Outcome = "noop"
	OutcomeDryRun   Outcome = "dry_run"
)

// RunOptions controls a single run.
type RunOptions struct {
	// Force re-runs on a store already at CurrentVersion; only tasks
	// without a phase ancestor are touched.
	Force      bool
	SkipBackup bool
	DryRun     bool
}

// Result describes a run.
type Result struct {
	RunID       string         `json:"run_id"`
	Outcome     Outcome        `json:"outcome"`
	FromVersion string         `json:"from_version"`
	ToVersion   string         `json:"to_version"`
	BackupPath  string         `json:"backup_path,omitempty"`
	Plan        *Plan          `json:"plan,omitempty"`
	Counts      map[string]int `json:"counts,omitempty"`
	Duration    time.Duration  `json:"duration"`
}

// Run migrates the store. A store already at CurrentVersion is left alone
// unless opts.Force is set. Cancellation is honored until the hierarchy
// starts being written; after that the run completes or rolls back.
func (o *Orchestrator) Run(ctx context.Context, opts RunOptions) (*Result, error) {
	start := timeNow()
	res := &Result{RunID: uuid.New().String(), ToVersion: CurrentVersion}

	from, err := o.store.SchemaVersion()
	if err != nil {
		return nil, err
	}
	if from == "" {
		from = BaselineVersion
	}
	res.FromVersion = from

	if from == CurrentVersion && !opts.Force {
		res.Outcome = OutcomeNoop
		o.logger.InfoContext(ctx, "store already migrated", "version", from)
		return res, nil
	}
	if err := canceled(ctx); err != nil {
		return nil, err
	}

	if opts.DryRun {
		plan, err := o.planFromStore(ctx)
		if err != nil {
			return nil, err
		}
		res.Outcome = OutcomeDryRun
		res.Plan = plan
		res.Counts = planCounts(plan)
		res.Duration = timeNow().Sub(start)
		return res, nil
	}

	release, err := o.acquire(res.RunID)
	if err != nil {
		return nil, err
	}
	defer release()

	// another run may have finished between the version check and the lock
	if again, err := o.store.SchemaVersion(); err != nil {
		return nil, err
	} else if again == CurrentVersion && !opts.Force {
		res.Outcome = OutcomeNoop
		return res, nil
	}

	logger := o.logger.With("run_id", res.RunID)
	logger.InfoContext(ctx, "migration started", "from", from, "to", CurrentVersion, "force", opts.Force)

	// backup
	if o.cfg.AutoBackup && !opts.SkipBackup {
		path, err := o.backup()
		if err != nil {
			return nil, err
		}
		res.BackupPath = path
		logger.Info("backup written", "path", path)
	}
	if err := canceled(ctx); err != nil {
		return nil, err
	}

	// analyze, assign, classify
	plan, err := o.planFromStore(ctx)
	if err != nil {
		return nil, err
	}
	res.Plan = plan
	if err := canceled(ctx); err != nil {
		return nil, err
	}

	// snapshot for the rollback check
	before, err := o.store.Dump()
	if err != nil {
		return nil, err
	}

	// materialize, validate, record
	counts := planCounts(plan)
	err = o.store.WithTx(func(tx *store.Tx) error {
		if err := o.materialize(tx, plan, res.RunID); err != nil {
			return err
		}
		if o.afterMaterialize != nil {
			if err := o.afterMaterialize(tx); err != nil {
				return err
			}
		}
		if err := validate(tx, plan); err != nil {
			return err
		}
		return tx.RecordMigration(store.LedgerEntry{
			Version:     CurrentVersion,
			Description: describe(CurrentVersion),
			FromVersion: from,
			RunID:       res.RunID,
			Counts:      counts,
		})
	})
	if err != nil {
		logger.WithError(err).Error("migration failed; rolled back")
		return nil, o.verifyRollback(before, res.BackupPath, err)
	}

	if o.cfg.BackupRetentionDays > 0 && o.cfg.BackupDir != "" {
		retention := time.Duration(o.cfg.BackupRetentionDays) * 24 * time.Hour
		removed, perr := pruneBackups(o.cfg.BackupDir, o.store.Path(), retention, timeNow().UTC())
		if perr != nil {
			logger.WithError(perr).Warn("backup cleanup failed")
		} else if len(removed) > 0 {
			logger.Info("old backups removed", "count", len(removed))
		}
	}

	res.Outcome = OutcomeMigrated
	res.Counts = counts
	res.Duration = timeNow().Sub(start)
	for _, q := range plan.Quarantined {
		logger.Warn("task quarantined", "task", q.TaskID, "reason", q.Reason)
	}
	logger.InfoContext(ctx, "migration complete",
		"phases_created", counts["phases_created"],
		"workstreams_created", counts["workstreams_created"],
		"tasks_placed", counts["tasks_placed"],
		"tasks_quarantined", counts["tasks_quarantined"],
		"duration", res.Duration,
	)
	return res, nil
}

// acquire takes the in-process gate, then the lock file.
func (o *Orchestrator) acquire(runID string) (func(), error) {
	reopen, err := o.gate.BeginMigration(runID)
	if err != nil {
		return nil, err
	}
	if o.fileLock == nil {
		return reopen, nil
	}
	if err := o.fileLock.Acquire(runID); err != nil {
		reopen()
		return nil, err
	}
	return func() {
		if err := o.fileLock.Release(); err != nil {
			o.logger.WithError(err).Warn("release migration lock")
		}
		reopen()
	}, nil
}

func (o *Orchestrator) backup() (string, error) {
	if o.cfg.BackupDir == "" {
		return "", errors.New(errors.ErrCodeBackupFailed, "no backup directory configured")
	}
	path := backupPath(o.cfg.BackupDir, o.store.Path(), timeNow().UTC())
	if err := o.store.Backup(path); err != nil {
		return "", errors.Wrap(errors.ErrCodeBackupFailed, "backup before migration failed", err)
	}
	return path, nil
}

func (o *Orchestrator) planFromStore(ctx context.Context) (*Plan, error) {
	phases, err := o.store.ListPhases()
	if err != nil {
		return nil, err
	}
	tasks, err := o.store.ListTasks()
	if err != nil {
		return nil, err
	}
	pl := &planner{classifier: o.classifier, cfg: o.cfg}
	return pl.build(ctx, phases, tasks)
}

// verifyRollback compares the store with its pre-migration content and
// restores the backup when they differ.
func (o *Orchestrator) verifyRollback(before *store.Snapshot, backup string, cause error) error {
	after, err := o.store.Dump()
	if err == nil && reflect.DeepEqual(before, after) {
		return cause
	}
	if backup == "" {
		return errors.Wrap(errors.ErrCodeRestoreFailed,
			fmt.Sprintf("store changed after a failed migration and no backup exists (cause: %v)", cause), err)
	}
	if rerr := o.store.Restore(backup); rerr != nil {
		return errors.Wrap(errors.ErrCodeRestoreFailed,
			fmt.Sprintf("restore from %s failed (cause: %v)", backup, cause), rerr)
	}
	o.logger.Warn("store restored from backup", "path", backup)
	return cause
}

// ─── Materialize ─────────────────────────────────────────────────────────────

func (o *Orchestrator) materialize(tx *store.Tx, plan *Plan, runID string) error {
	author := "migration:" + runID
	suggested := make(map[string]ClusterPlan)
	for _, c := range plan.Clusters {
		for _, id := range c.Members {
			suggested[id] = c
		}
	}
	quarantined := make(map[string]bool, len(plan.Quarantined))
	for _, q := range plan.Quarantined {
		quarantined[q.TaskID] = true
	}

	for _, pp := range plan.Phases {
		if pp.Exists {
			p, err := tx.Phase(pp.ID)
			if err != nil {
				return err
			}
			if p.Status != pp.Status {
				if err := tx.SetPhaseStatus(pp.ID, pp.Status); err != nil {
					return err
				}
			}
		} else {
			d, ok := phase.Lookup(pp.ID)
			if !ok {
				return errors.NewNotFoundError("phase definition", pp.ID)
			}
			p := d.Phase()
			p.Status = pp.Status
			if err := tx.InsertPhase(p); err != nil {
				return err
			}
		}

		for _, wp := range pp.Workstreams {
			if len(wp.Members) == 0 {
				continue
			}
			var ws hierarchy.Task
			if wp.Exists {
				existing, err := tx.Task(wp.ID)
				if err != nil {
					return err
				}
				ws = *existing
			} else {
				ws = hierarchy.Task{
					ID:          wp.ID,
					Title:       wp.Title,
					Description: fmt.Sprintf("Workstream for %s work in %s", wp.Title, pp.Title),
					ParentID:    pp.ID,
					Priority:    hierarchy.PriorityMedium,
					Status:      hierarchy.StatusPending,
					Notes:       []hierarchy.Note{hierarchy.NewNote(author, "Workstream created by migration")},
				}
				if err := tx.InsertTask(ws); err != nil {
					return err
				}
			}

			children := make([]hierarchy.Task, 0, len(wp.Attach))
			for _, id := range wp.Attach {
				t, err := tx.Task(id)
				if err != nil {
					return err
				}
				if quarantined[t.ParentID] {
					if err := detachChild(tx, t.ParentID, id); err != nil {
						return err
					}
				}
				t.ParentID = ws.ID
				if !o.cfg.PreserveHierarchies {
					t.ChildIDs = nil
				}
				c := suggested[id]
				t.Notes = append(t.Notes, hierarchy.NewNote(author, fmt.Sprintf(
					"Migrated to %s under %s (cluster %s, suggested phase %s, category %s)",
					c.Phase, ws.ID, c.ClusterID, c.SuggestedPhase, c.Category)))
				if err := tx.SaveTask(*t); err != nil {
					return err
				}
				ws.ChildIDs = appendUnique(ws.ChildIDs, id)
				children = append(children, *t)
			}

			for _, id := range ws.ChildIDs {
				if containsTask(children, id) {
					continue
				}
				t, err := tx.Task(id)
				if err != nil {
					return err
				}
				children = append(children, *t)
			}
			ws.Status = phase.DeriveStatus(children)
			if err := tx.SaveTask(ws); err != nil {
				return err
			}
		}
	}
	return nil
}

// ─── Validate ────────────────────────────────────────────────────────────────

// validate checks, against the written state, that no task was lost, every
// task outside quarantine reaches a phase and no container is empty.
func validate(tx *store.Tx, plan *Plan) error {
	phases, err := tx.Phases()
	if err != nil {
		return err
	}
	tasks, err := tx.Tasks()
	if err != nil {
		return err
	}
	idx := hierarchy.NewIndex(phases, tasks)

	quarantined := make(map[string]bool, len(plan.Quarantined))
	for _, q := range plan.Quarantined {
		quarantined[q.TaskID] = true
	}

	var orphans []string
	for _, id := range plan.before {
		if _, ok := idx.Task(id); !ok {
			orphans = append(orphans, id)
		}
	}
	for _, id := range idx.TaskIDs() {
		if quarantined[id] {
			continue
		}
		p, err := idx.PhaseOf(id)
		if err != nil {
			return err
		}
		if p == "" {
			orphans = append(orphans, id)
		}
	}
	if len(orphans) > 0 {
		sort.Strings(orphans)
		return errors.NewTotalityError(orphans)
	}

	for _, pp := range plan.Phases {
		if len(idx.Workstreams(pp.ID)) == 0 {
			return errors.Newf(errors.ErrCodeTotalityViolation, "phase %s has no workstreams", pp.ID).WithSubjects(pp.ID)
		}
		for _, wp := range pp.Workstreams {
			if len(idx.Children(wp.ID)) == 0 {
				return errors.Newf(errors.ErrCodeTotalityViolation, "workstream %s is empty", wp.ID).WithSubjects(wp.ID)
			}
		}
	}
	return nil
}

func planCounts(plan *Plan) map[string]int {
	counts := map[string]int{
		"tasks_total":       plan.TotalTasks,
		"tasks_placed":      plan.TaskCount(),
		"tasks_quarantined": len(plan.Quarantined),
		"clusters":          len(plan.Clusters),
	}
	for _, pp := range plan.Phases {
		if !pp.Exists {
			counts["phases_created"]++
		}
		for _, wp := range pp.Workstreams {
			if !wp.Exists {
				counts["workstreams_created"]++
			}
		}
	}
	return counts
}

// detachChild removes childID from parentID's child list.
func detachChild(tx *store.Tx, parentID, childID string) error {
	parent, err := tx.Task(parentID)
	if err != nil {
		return err
	}
	kept := parent.ChildIDs[:0]
	for _, c := range parent.ChildIDs {
		if c != childID {
			kept = append(kept, c)
		}
	}
	parent.ChildIDs = kept
	return tx.SaveTask(*parent)
}

func appendUnique(ids []string, id string) []string {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}

func containsTask(tasks []hierarchy.Task, id string) bool {
	for _, t := range tasks {
		if t.ID == id {
			return true
		}
	}
	return false
}
