package migrate_test

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HendryAvila/strata/internal/errors"
	"github.com/HendryAvila/strata/internal/hierarchy"
	"github.com/HendryAvila/strata/internal/lock"
	"github.com/HendryAvila/strata/internal/log"
	"github.com/HendryAvila/strata/internal/migrate"
	"github.com/HendryAvila/strata/internal/phase"
	"github.com/HendryAvila/strata/internal/store"
)

type fixture struct {
	store *store.Store
	orch  *migrate.Orchestrator
	gate  *lock.Gate
	cfg   migrate.Config
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	s, err := store.New(store.Config{DataDir: dir})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	cfg := migrate.Config{
		AutoBackup:             true,
		BackupDir:              filepath.Join(dir, "backups"),
		BackupRetentionDays:    30,
		LockPath:               filepath.Join(dir, ".migration.lock"),
		MinTasksPerWorkstream:  5,
		MaxWorkstreamsPerPhase: 7,
		PreserveHierarchies:    true,
	}
	gate := lock.NewGate()
	orch := migrate.New(s, cfg, migrate.Options{Gate: gate, Logger: log.Discard()})
	return &fixture{store: s, orch: orch, gate: gate, cfg: cfg}
}

// legacyTasks builds 79 flat tasks: 40 completed, 8 in_progress, 28 pending
// and 3 cancelled. With corrupt set, the last one is its own parent.
func legacyTasks(corrupt bool) []hierarchy.Task {
	var tasks []hierarchy.Task
	add := func(id, title string) *hierarchy.Task {
		tasks = append(tasks, hierarchy.Task{ID: id, Title: title, CreatedBy: "legacy"})
		return &tasks[len(tasks)-1]
	}
	for i := 1; i <= 10; i++ {
		task := add(fmt.Sprintf("auth_%02d", i), fmt.Sprintf("Implement login system for user %d", i))
		if i > 1 {
			task.ParentID = "auth_01"
		}
	}
	for i := 1; i <= 10; i++ {
		add(fmt.Sprintf("api_%02d", i), fmt.Sprintf("Build REST API endpoint %d", i))
	}
	for i := 1; i <= 10; i++ {
		task := add(fmt.Sprintf("db_%02d", i), fmt.Sprintf("Design database schema table %d", i))
		if i > 1 {
			task.DependsOn = []string{fmt.Sprintf("db_%02d", i-1)}
		}
	}
	for i := 1; i <= 3; i++ {
		add(fmt.Sprintf("deploy_%d", i), fmt.Sprintf("Deploy production release %d", i))
	}
	for i := 1; i <= 46; i++ {
		add(fmt.Sprintf("misc_%02d", i), fmt.Sprintf("Tidy chore %d", i))
	}

	for i := range tasks {
		switch {
		case i < 40:
			tasks[i].Status = hierarchy.StatusCompleted
		case i < 48:
			tasks[i].Status = hierarchy.StatusInProgress
		case i < 76:
			tasks[i].Status = hierarchy.StatusPending
		default:
			tasks[i].Status = hierarchy.StatusCancelled
		}
	}
	if corrupt {
		last := &tasks[len(tasks)-1]
		last.ParentID = last.ID
	}
	return tasks
}

func importTasks(t *testing.T, s *store.Store, tasks []hierarchy.Task) {
	t.Helper()
	n, err := s.ImportTasks(tasks)
	require.NoError(t, err)
	require.Equal(t, len(tasks), n)
}

func reachable(t *testing.T, s *store.Store, ids []string) (map[string]string, *hierarchy.Index) {
	t.Helper()
	phases, err := s.ListPhases()
	require.NoError(t, err)
	tasks, err := s.ListTasks()
	require.NoError(t, err)
	idx := hierarchy.NewIndex(phases, tasks)

	out := make(map[string]string)
	for _, id := range ids {
		if task, ok := idx.Task(id); ok && task.ParentID == task.ID {
			continue
		}
		p, err := idx.PhaseOf(id)
		require.NoError(t, err, id)
		if p != "" {
			out[id] = p
		}
	}
	return out, idx
}

// --- Cold start ---

func TestRun_ColdStartLegacyProject(t *testing.T) {
	for _, corrupt := range []bool{false, true} {
		t.Run(fmt.Sprintf("corrupt=%v", corrupt), func(t *testing.T) {
			f := newFixture(t)
			legacy := legacyTasks(corrupt)
			importTasks(t, f.store, legacy)

			res, err := f.orch.Run(context.Background(), migrate.RunOptions{})
			require.NoError(t, err)
			assert.Equal(t, migrate.OutcomeMigrated, res.Outcome)
			assert.Equal(t, migrate.BaselineVersion, res.FromVersion)
			assert.Equal(t, migrate.CurrentVersion, res.ToVersion)

			phases, err := f.store.ListPhases()
			require.NoError(t, err)
			require.Len(t, phases, 1)
			assert.Equal(t, phase.FoundationID, phases[0].ID)
			assert.Equal(t, hierarchy.PhaseInProgress, phases[0].Status)

			ids := make([]string, len(legacy))
			for i, task := range legacy {
				ids[i] = task.ID
			}
			placed, idx := reachable(t, f.store, ids)
			want := 79
			if corrupt {
				want = 78
				require.Len(t, res.Plan.Quarantined, 1)
				assert.Equal(t, "misc_46", res.Plan.Quarantined[0].TaskID)
				assert.Equal(t, 1, res.Counts["tasks_quarantined"])
			} else {
				assert.Empty(t, res.Plan.Quarantined)
			}
			assert.Len(t, placed, want)
			for id, p := range placed {
				assert.Equal(t, phase.FoundationID, p, id)
			}

			workstreams := idx.Workstreams(phase.FoundationID)
			require.NotEmpty(t, workstreams)
			assert.LessOrEqual(t, len(workstreams), 7)
			for _, ws := range workstreams {
				assert.NotEmpty(t, idx.Children(ws), "workstream %s is empty", ws)
				assert.True(t, hierarchy.IsWorkstreamID(ws), ws)
			}
			assert.Equal(t, len(workstreams), res.Counts["workstreams_created"])
			assert.Equal(t, 1, res.Counts["phases_created"])

			for _, c := range res.Plan.Clusters {
				assert.Equal(t, phase.FoundationID, c.Phase)
				assert.NotEmpty(t, c.SuggestedPhase)
			}

			version, err := f.store.SchemaVersion()
			require.NoError(t, err)
			assert.Equal(t, migrate.CurrentVersion, version)
		})
	}
}

func TestRun_ClassifiesIntoCategoryWorkstreams(t *testing.T) {
	f := newFixture(t)
	importTasks(t, f.store, legacyTasks(false))

	_, err := f.orch.Run(context.Background(), migrate.RunOptions{})
	require.NoError(t, err)

	for _, tc := range []struct {
		task, workstream string
	}{
		{"auth_01", "root_phase_1_foundation_authentication"},
		{"api_03", "root_phase_1_foundation_api_development"},
		{"db_01", "root_phase_1_foundation_database"},
		// three deployment tasks fall under the minimum and merge into general
		{"deploy_1", "root_phase_1_foundation_general"},
		{"misc_10", "root_phase_1_foundation_general"},
	} {
		task, err := f.store.GetTask(tc.task)
		require.NoError(t, err)
		assert.Equal(t, tc.workstream, task.ParentID, tc.task)
	}

	// preserved hierarchy: auth_02 stays under its original parent
	auth2, err := f.store.GetTask("auth_02")
	require.NoError(t, err)
	assert.Equal(t, "auth_01", auth2.ParentID)

	root, err := f.store.GetTask("auth_01")
	require.NoError(t, err)
	require.NotEmpty(t, root.Notes)
	assert.Contains(t, root.Notes[len(root.Notes)-1].Content, "suggested phase")

	ws, err := f.store.GetTask("root_phase_1_foundation_authentication")
	require.NoError(t, err)
	assert.Equal(t, "Authentication & User Management", ws.Title)
	assert.Equal(t, phase.FoundationID, ws.ParentID)
}

func TestRun_FlattensWhenHierarchiesNotPreserved(t *testing.T) {
	f := newFixture(t)
	cfg := f.cfg
	cfg.PreserveHierarchies = false
	orch := migrate.New(f.store, cfg, migrate.Options{Logger: log.Discard()})
	importTasks(t, f.store, legacyTasks(false))

	_, err := orch.Run(context.Background(), migrate.RunOptions{})
	require.NoError(t, err)

	auth2, err := f.store.GetTask("auth_02")
	require.NoError(t, err)
	assert.Equal(t, "root_phase_1_foundation_authentication", auth2.ParentID)
	auth1, err := f.store.GetTask("auth_01")
	require.NoError(t, err)
	assert.Empty(t, auth1.ChildIDs)
}

func TestRun_AllCompletedCreatesCompletePhase(t *testing.T) {
	f := newFixture(t)
	var tasks []hierarchy.Task
	for i := 0; i < 6; i++ {
		tasks = append(tasks, hierarchy.Task{
			ID:     fmt.Sprintf("done_%d", i),
			Title:  fmt.Sprintf("Write unit test %d", i),
			Status: hierarchy.StatusCompleted,
		})
	}
	importTasks(t, f.store, tasks)

	_, err := f.orch.Run(context.Background(), migrate.RunOptions{})
	require.NoError(t, err)

	p, err := f.store.GetPhase(phase.FoundationID)
	require.NoError(t, err)
	assert.Equal(t, hierarchy.PhaseComplete, p.Status)
	ws, err := f.store.GetTask("root_phase_1_foundation_testing")
	require.NoError(t, err)
	assert.Equal(t, hierarchy.StatusCompleted, ws.Status)
}

func TestRun_EmptyStoreCreatesNoContainers(t *testing.T) {
	f := newFixture(t)

	res, err := f.orch.Run(context.Background(), migrate.RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, migrate.OutcomeMigrated, res.Outcome)

	phases, err := f.store.ListPhases()
	require.NoError(t, err)
	assert.Empty(t, phases)
	tasks, err := f.store.ListTasks()
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestRun_ExistingPhasesTargetNextPhase(t *testing.T) {
	f := newFixture(t)
	foundation, _ := phase.Lookup(phase.FoundationID)
	p := foundation.Phase()
	p.Status = hierarchy.PhaseComplete
	require.NoError(t, f.store.CreatePhase(p))
	importTasks(t, f.store, []hierarchy.Task{
		{ID: "x1", Title: "Build REST API endpoint", Status: hierarchy.StatusPending},
		{ID: "x2", Title: "Something else", Status: hierarchy.StatusInProgress},
	})

	_, err := f.orch.Run(context.Background(), migrate.RunOptions{})
	require.NoError(t, err)

	next, ok := phase.Next(phase.FoundationID)
	require.True(t, ok)
	x1, err := f.store.GetTask("x1")
	require.NoError(t, err)
	ws, err := f.store.GetTask(x1.ParentID)
	require.NoError(t, err)
	assert.Equal(t, next.ID, ws.ParentID)

	created, err := f.store.GetPhase(next.ID)
	require.NoError(t, err)
	assert.Equal(t, hierarchy.PhaseInProgress, created.Status)
}

func TestRun_DanglingReferenceAborts(t *testing.T) {
	f := newFixture(t)
	importTasks(t, f.store, []hierarchy.Task{
		{ID: "a", Title: "orphan", DependsOn: []string{"ghost"}},
	})
	before, err := f.store.Dump()
	require.NoError(t, err)

	_, err = f.orch.Run(context.Background(), migrate.RunOptions{SkipBackup: true})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeDanglingRef), "got %v", err)

	after, err := f.store.Dump()
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestRun_ChildOfQuarantinedTaskIsDetached(t *testing.T) {
	f := newFixture(t)
	importTasks(t, f.store, []hierarchy.Task{
		{ID: "loop", Title: "broken record", ParentID: "loop", ChildIDs: []string{"loop", "kid"}},
		{ID: "kid", Title: "Add login endpoint", ParentID: "loop"},
		{ID: "other", Title: "Write unit test"},
	})

	res, err := f.orch.Run(context.Background(), migrate.RunOptions{SkipBackup: true})
	require.NoError(t, err)
	require.Len(t, res.Plan.Quarantined, 1)

	kid, err := f.store.GetTask("kid")
	require.NoError(t, err)
	assert.True(t, hierarchy.IsWorkstreamID(kid.ParentID), "kid parent = %q", kid.ParentID)

	loop, err := f.store.GetTask("loop")
	require.NoError(t, err)
	assert.Equal(t, "loop", loop.ParentID, "quarantined task keeps its parent")
	assert.NotContains(t, loop.ChildIDs, "kid")
}

// --- Atomicity ---

func TestRun_FailureAfterMaterializeRollsBack(t *testing.T) {
	f := newFixture(t)
	importTasks(t, f.store, legacyTasks(true))
	before, err := f.store.Dump()
	require.NoError(t, err)

	injected := stderrors.New("injected failure")
	var sawPhase bool
	f.orch.SetAfterMaterialize(func(tx *store.Tx) error {
		// the hierarchy is visible inside the transaction
		_, perr := tx.Phase(phase.FoundationID)
		sawPhase = perr == nil
		return injected
	})

	_, err = f.orch.Run(context.Background(), migrate.RunOptions{})
	require.ErrorIs(t, err, injected)
	assert.True(t, sawPhase)

	after, err := f.store.Dump()
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.False(t, f.gate.Migrating(), "gate should reopen after failure")
	_, statErr := os.Stat(f.cfg.LockPath)
	assert.True(t, os.IsNotExist(statErr), "lock file should be released")

	// a clean retry succeeds
	f.orch.SetAfterMaterialize(nil)
	res, err := f.orch.Run(context.Background(), migrate.RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, migrate.OutcomeMigrated, res.Outcome)
}

// --- Re-runs ---

func TestRun_SecondRunIsNoop(t *testing.T) {
	f := newFixture(t)
	importTasks(t, f.store, legacyTasks(false))

	_, err := f.orch.Run(context.Background(), migrate.RunOptions{})
	require.NoError(t, err)
	snapshot, err := f.store.Dump()
	require.NoError(t, err)

	res, err := f.orch.Run(context.Background(), migrate.RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, migrate.OutcomeNoop, res.Outcome)
	assert.Empty(t, res.BackupPath)

	after, err := f.store.Dump()
	require.NoError(t, err)
	assert.Equal(t, snapshot, after)
}

func TestRun_ForcePlacesNewFlatTasks(t *testing.T) {
	f := newFixture(t)
	importTasks(t, f.store, legacyTasks(false))
	_, err := f.orch.Run(context.Background(), migrate.RunOptions{})
	require.NoError(t, err)

	importTasks(t, f.store, []hierarchy.Task{{ID: "late_1", Title: "Tidy chore late"}})
	res, err := f.orch.Run(context.Background(), migrate.RunOptions{Force: true})
	require.NoError(t, err)
	assert.Equal(t, migrate.CurrentVersion, res.FromVersion)
	assert.Equal(t, 0, res.Counts["phases_created"])
	assert.Equal(t, 0, res.Counts["workstreams_created"])

	late, err := f.store.GetTask("late_1")
	require.NoError(t, err)
	assert.Equal(t, "root_phase_1_foundation_general", late.ParentID)

	ledger, err := f.store.Ledger()
	require.NoError(t, err)
	require.Len(t, ledger, 2)
	assert.Equal(t, migrate.CurrentVersion, ledger[1].FromVersion)
}

// --- Concurrency and cancellation ---

func TestRun_ConcurrentMigrationIsRejected(t *testing.T) {
	f := newFixture(t)
	importTasks(t, f.store, legacyTasks(false))

	release, err := f.gate.BeginMigration("other-run")
	require.NoError(t, err)
	_, err = f.orch.Run(context.Background(), migrate.RunOptions{})
	release()
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeMigrationInProgress))
	assert.True(t, errors.IsRetryable(err))

	other := lock.NewFileLock(f.cfg.LockPath, time.Hour)
	require.NoError(t, other.Acquire("other-process"))
	_, err = f.orch.Run(context.Background(), migrate.RunOptions{})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeMigrationInProgress))
	assert.False(t, f.gate.Migrating())
	require.NoError(t, other.Release())

	res, err := f.orch.Run(context.Background(), migrate.RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, migrate.OutcomeMigrated, res.Outcome)
}

func TestRun_CanceledBeforeMaterialize(t *testing.T) {
	f := newFixture(t)
	importTasks(t, f.store, legacyTasks(false))
	before, err := f.store.Dump()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = f.orch.Run(ctx, migrate.RunOptions{})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeMigrationCanceled))
	assert.ErrorIs(t, err, context.Canceled)

	after, err := f.store.Dump()
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

// --- Dry run and check ---

func TestRun_DryRunWritesNothing(t *testing.T) {
	f := newFixture(t)
	importTasks(t, f.store, legacyTasks(false))
	before, err := f.store.Dump()
	require.NoError(t, err)

	res, err := f.orch.Run(context.Background(), migrate.RunOptions{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, migrate.OutcomeDryRun, res.Outcome)
	require.NotNil(t, res.Plan)
	assert.Equal(t, 79, res.Plan.TaskCount())
	require.Len(t, res.Plan.Phases, 1)
	assert.Equal(t, hierarchy.PhaseInProgress, res.Plan.Phases[0].Status)
	assert.Empty(t, res.BackupPath)

	after, err := f.store.Dump()
	require.NoError(t, err)
	assert.Equal(t, before, after)
	_, statErr := os.Stat(f.cfg.BackupDir)
	assert.True(t, os.IsNotExist(statErr))
}

func TestCheck(t *testing.T) {
	f := newFixture(t)
	importTasks(t, f.store, legacyTasks(true))

	st, err := f.orch.Check()
	require.NoError(t, err)
	assert.Equal(t, migrate.BaselineVersion, st.CurrentVersion)
	assert.True(t, st.NeedsMigration)
	assert.Equal(t, 79, st.Unplaced)
	assert.Len(t, st.Pending, 2)
	assert.Empty(t, st.IntegrityError)

	_, err = f.orch.Run(context.Background(), migrate.RunOptions{})
	require.NoError(t, err)

	st, err = f.orch.Check()
	require.NoError(t, err)
	assert.False(t, st.NeedsMigration)
	assert.Equal(t, migrate.CurrentVersion, st.CurrentVersion)
	assert.Empty(t, st.Pending)
	// the corrupt record stays outside the hierarchy and keeps being reported
	assert.Equal(t, 1, st.Unplaced)
	assert.Len(t, st.Ledger, 1)
}

// --- Backups ---

func TestRun_BackupNaming(t *testing.T) {
	restore := migrate.SetNow(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	defer restore()

	f := newFixture(t)
	importTasks(t, f.store, legacyTasks(false))

	res, err := f.orch.Run(context.Background(), migrate.RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(f.cfg.BackupDir, "tasks_backup_20260102_030405.db"), res.BackupPath)
	_, err = os.Stat(res.BackupPath)
	require.NoError(t, err)

	// the backup is an openable copy of the pre-migration store
	copyDir := t.TempDir()
	data, err := os.ReadFile(res.BackupPath)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(copyDir, "tasks.db"), data, 0o600))
	old, err := store.New(store.Config{DataDir: copyDir})
	require.NoError(t, err)
	defer old.Close()
	phases, err := old.ListPhases()
	require.NoError(t, err)
	assert.Empty(t, phases)
}

func TestRun_SkipBackup(t *testing.T) {
	f := newFixture(t)
	importTasks(t, f.store, legacyTasks(false))

	res, err := f.orch.Run(context.Background(), migrate.RunOptions{SkipBackup: true})
	require.NoError(t, err)
	assert.Empty(t, res.BackupPath)
}

func TestBackupName(t *testing.T) {
	got := migrate.BackupName("/data/tasks.db", time.Date(2025, 12, 31, 23, 59, 58, 0, time.UTC))
	assert.Equal(t, "tasks_backup_20251231_235958.db", got)
}

func TestPruneBackups(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	files := []string{
		"tasks_backup_20260101_000000.db", // 59 days old
		"tasks_backup_20260220_120000.db", // 9 days old
		"other_backup_20200101_000000.db", // different store
		"notes.txt",
	}
	for _, name := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o600))
	}

	removed, err := migrate.PruneBackups(dir, "/data/tasks.db", 30*24*time.Hour, now)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "tasks_backup_20260101_000000.db")}, removed)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestPending(t *testing.T) {
	assert.Len(t, migrate.Pending(""), 2)
	assert.Len(t, migrate.Pending("1.1.0"), 1)
	assert.Empty(t, migrate.Pending(migrate.CurrentVersion))
	assert.Len(t, migrate.Versions(), 3)
}
