package cli

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HendryAvila/strata/internal/config"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func stubTerminal(t *testing.T, tty bool, answer bool) *int {
	t.Helper()
	origTTY, origConfirm := stdinIsTerminal, confirm
	t.Cleanup(func() {
		stdinIsTerminal = origTTY
		confirm = origConfirm
	})
	asked := 0
	stdinIsTerminal = func() bool { return tty }
	confirm = func(string) (bool, error) {
		asked++
		return answer, nil
	}
	return &asked
}

const legacyJSON = `[
  {"id": "t1", "title": "Implement login API", "status": "completed"},
  {"id": "t2", "title": "Add user database schema", "status": "in_progress"},
  {"id": "t3", "title": "Write deployment docs", "status": "pending"},
  {"id": "t4", "title": "Fix auth token refresh", "status": "pending", "parent_id": "t1"}
]`

func importLegacy(t *testing.T, dir string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tasks.json")
	require.NoError(t, os.WriteFile(path, []byte(legacyJSON), 0o600))
	out, err := execute(t, "--data-dir", dir, "import", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 4 of 4")
}

func TestCommands_Registered(t *testing.T) {
	root := newRootCmd()
	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "check", "migrate", "import", "config", "phase", "version"} {
		assert.True(t, names[want], "expected %q command to be registered", want)
	}
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "strata ")
	assert.Contains(t, out, "commit:")
}

func TestConfig_InitShowSet(t *testing.T) {
	dir := t.TempDir()

	out, err := execute(t, "--data-dir", dir, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, config.FileName)

	_, err = execute(t, "--data-dir", dir, "config", "init")
	assert.Error(t, err, "second init should refuse to overwrite")

	out, err = execute(t, "--data-dir", dir, "config", "show")
	require.NoError(t, err)
	for _, k := range config.Keys() {
		assert.Contains(t, out, k)
	}

	_, err = execute(t, "--data-dir", dir, "config", "set", "min_tasks_per_workstream", "3")
	require.NoError(t, err)
	cfg, err := config.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.MinTasksPerWorkstream)

	_, err = execute(t, "--data-dir", dir, "config", "set", "no_such_key", "1")
	assert.Error(t, err)
	_, err = execute(t, "--data-dir", dir, "config", "set", "backup_retention_days", "soon")
	assert.Error(t, err)
}

func TestMigrate_EndToEnd(t *testing.T) {
	stubTerminal(t, false, false)
	dir := t.TempDir()
	importLegacy(t, dir)

	out, err := execute(t, "--data-dir", dir, "check")
	require.NoError(t, err)
	assert.Contains(t, out, "Migration needed")
	assert.Contains(t, out, "4 outside the hierarchy")

	out, err = execute(t, "--data-dir", dir, "migrate", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "Migration Complete")

	entries, err := os.ReadDir(filepath.Join(dir, config.BackupDirName))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "one pre-migration backup")

	out, err = execute(t, "--data-dir", dir, "check")
	require.NoError(t, err)
	assert.Contains(t, out, "Up to date")

	out, err = execute(t, "--data-dir", dir, "migrate", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "Nothing to do")

	out, err = execute(t, "--data-dir", dir, "phase", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Phase 1: Foundation")
}

func TestMigrate_DryRun(t *testing.T) {
	dir := t.TempDir()
	importLegacy(t, dir)

	out, err := execute(t, "--data-dir", dir, "migrate", "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "dry run")

	out, err = execute(t, "--data-dir", dir, "check")
	require.NoError(t, err)
	assert.Contains(t, out, "Migration needed")
}

func TestMigrate_NeedsConfirmationWithoutTerminal(t *testing.T) {
	asked := stubTerminal(t, false, true)
	dir := t.TempDir()
	importLegacy(t, dir)

	_, err := execute(t, "--data-dir", dir, "migrate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--yes")
	assert.Zero(t, *asked)
}

func TestMigrate_ConfirmationDeclined(t *testing.T) {
	asked := stubTerminal(t, true, false)
	dir := t.TempDir()
	importLegacy(t, dir)

	out, err := execute(t, "--data-dir", dir, "migrate", "--skip-backup")
	require.NoError(t, err)
	assert.Equal(t, 1, *asked)
	assert.Contains(t, out, "Migration cancelled")

	out, err = execute(t, "--data-dir", dir, "check")
	require.NoError(t, err)
	assert.Contains(t, out, "Migration needed")
}

func TestMigrate_ConfirmationAccepted(t *testing.T) {
	asked := stubTerminal(t, true, true)
	dir := t.TempDir()
	importLegacy(t, dir)

	out, err := execute(t, "--data-dir", dir, "migrate", "--skip-backup")
	require.NoError(t, err)
	assert.Equal(t, 1, *asked)
	assert.Contains(t, out, "Migration Complete")
}

func TestMigrate_NonInteractiveConfig(t *testing.T) {
	asked := stubTerminal(t, false, false)
	dir := t.TempDir()
	_, err := execute(t, "--data-dir", dir, "config", "init")
	require.NoError(t, err)
	_, err = execute(t, "--data-dir", dir, "config", "set", "interactive", "false")
	require.NoError(t, err)
	importLegacy(t, dir)

	out, err := execute(t, "--data-dir", dir, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "Migration Complete")
	assert.Zero(t, *asked)
}

func TestPhase_StatusAndAdvanceErrors(t *testing.T) {
	dir := t.TempDir()

	out, err := execute(t, "--data-dir", dir, "phase", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "No phases yet")

	_, err = execute(t, "--data-dir", dir, "phase", "status", "phase_9_unknown")
	assert.Error(t, err)

	_, err = execute(t, "--data-dir", dir, "phase", "advance", "phase_1_foundation")
	assert.Error(t, err)
}

func TestImport_BadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := execute(t, "--data-dir", dir, "import", path)
	assert.Error(t, err)
	_, err = execute(t, "--data-dir", dir, "import", filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestBar(t *testing.T) {
	assert.Equal(t, "[--------------------]", bar(0))
	assert.Equal(t, "[##########----------]", bar(0.5))
	assert.Equal(t, "[####################]", bar(1.2))
}
