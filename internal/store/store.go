// Package store persists the task hierarchy in SQLite.
//
// Phases, tasks, agents and the schema_migrations ledger live in one
// database file. Multi-row mutations go through WithTx so they commit or
// roll back as a unit, and a store-owned cache of task rows is invalidated
// by every write inside the transaction that performs it.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/HendryAvila/strata/internal/errors"
	"github.com/HendryAvila/strata/internal/hierarchy"
	_ "modernc.org/sqlite"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// ─── Types ───────────────────────────────────────────────────────────────────

// LedgerEntry is one row of the schema_migrations ledger.
type LedgerEntry struct {
	ID          int64          `json:"id"`
	Version     string         `json:"version"`
	Description string         `json:"description"`
	AppliedAt   string         `json:"applied_at"`
	FromVersion string         `json:"from_version,omitempty"`
	RunID       string         `json:"run_id,omitempty"`
	Counts      map[string]int `json:"counts,omitempty"`
}

// Snapshot is the full content of the store, used for comparisons.
type Snapshot struct {
	Phases []hierarchy.Phase `json:"phases"`
	Tasks  []hierarchy.Task  `json:"tasks"`
	Agents []hierarchy.Agent `json:"agents"`
	Ledger []LedgerEntry     `json:"ledger"`
}

// ─── Config ──────────────────────────────────────────────────────────────────

// Config holds task store configuration.
type Config struct {
	DataDir  string
	FileName string
}

// DefaultConfig returns the default configuration for the task store.
func DefaultConfig() Config {
	home, _ := os.UserHomeDir()
	return Config{
		DataDir:  filepath.Join(home, ".strata"),
		FileName: "tasks.db",
	}
}

// ─── Store ───────────────────────────────────────────────────────────────────

// Store is the SQLite-backed task store.
type Store struct {
	db    *sql.DB
	cfg   Config
	path  string
	hooks storeHooks
	cache *taskCache
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

type queryer interface {
	Query(query string, args ...any) (*sql.Rows, error)
}

type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

type sqlRowScanner struct {
	rows *sql.Rows
}

func (r sqlRowScanner) Next() bool             { return r.rows.Next() }
func (r sqlRowScanner) Scan(dest ...any) error { return r.rows.Scan(dest...) }
func (r sqlRowScanner) Err() error             { return r.rows.Err() }
func (r sqlRowScanner) Close() error           { return r.rows.Close() }

// storeHooks lets tests inject failures at the SQL boundary.
type storeHooks struct {
	exec    func(db execer, query string, args ...any) (sql.Result, error)
	queryIt func(db queryer, query string, args ...any) (rowScanner, error)
	beginTx func(db *sql.DB) (*sql.Tx, error)
	commit  func(tx *sql.Tx) error
}

func (s *Store) execHook(db execer, query string, args ...any) (sql.Result, error) {
	if s.hooks.exec != nil {
		return s.hooks.exec(db, query, args...)
	}
	return db.Exec(query, args...)
}

func (s *Store) queryItHook(db queryer, query string, args ...any) (rowScanner, error) {
	if s.hooks.queryIt != nil {
		return s.hooks.queryIt(db, query, args...)
	}
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	return sqlRowScanner{rows: rows}, nil
}

func (s *Store) beginTxHook() (*sql.Tx, error) {
	if s.hooks.beginTx != nil {
		return s.hooks.beginTx(s.db)
	}
	return s.db.Begin()
}

func (s *Store) commitHook(tx *sql.Tx) error {
	if s.hooks.commit != nil {
		return s.hooks.commit(tx)
	}
	return tx.Commit()
}

// New creates a new Store with the given configuration.
// It creates the data directory if needed, opens SQLite with WAL mode,
// and creates the schema.
func New(cfg Config) (*Store, error) {
	if cfg.FileName == "" {
		cfg.FileName = DefaultConfig().FileName
	}
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("store: create data dir: %w", err)
	}

	s := &Store{cfg: cfg, path: filepath.Join(cfg.DataDir, cfg.FileName), cache: newTaskCache()}
	if err := s.open(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) open() error {
	db, err := openDB("sqlite", s.path)
	if err != nil {
		return fmt.Errorf("store: open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return fmt.Errorf("store: pragma %q: %w", p, err)
		}
	}

	s.db = db
	if err := s.bootstrap(); err != nil {
		_ = db.Close()
		return fmt.Errorf("store: schema: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// ─── Schema ──────────────────────────────────────────────────────────────────

func (s *Store) bootstrap() error {
	schema := `
		CREATE TABLE IF NOT EXISTS phases (
			id            TEXT    PRIMARY KEY,
			title         TEXT    NOT NULL,
			description   TEXT    NOT NULL DEFAULT '',
			ordinal       INTEGER NOT NULL,
			prerequisites TEXT    NOT NULL DEFAULT '[]',
			status        TEXT    NOT NULL DEFAULT 'created',
			objectives    TEXT    NOT NULL DEFAULT '[]',
			theory_focus  TEXT    NOT NULL DEFAULT '[]',
			created_at    TEXT    NOT NULL DEFAULT (datetime('now')),
			updated_at    TEXT    NOT NULL DEFAULT (datetime('now'))
		);

		CREATE TABLE IF NOT EXISTS tasks (
			id          TEXT PRIMARY KEY,
			title       TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			status      TEXT NOT NULL DEFAULT 'pending',
			assigned_to TEXT,
			created_by  TEXT NOT NULL DEFAULT '',
			priority    TEXT NOT NULL DEFAULT 'medium',
			created_at  TEXT NOT NULL DEFAULT (datetime('now')),
			updated_at  TEXT NOT NULL DEFAULT (datetime('now')),
			parent_id   TEXT,
			child_ids   TEXT NOT NULL DEFAULT '[]',
			depends_on  TEXT NOT NULL DEFAULT '[]',
			notes       TEXT NOT NULL DEFAULT '[]'
		);

		CREATE INDEX IF NOT EXISTS idx_tasks_parent   ON tasks(parent_id);
		CREATE INDEX IF NOT EXISTS idx_tasks_status   ON tasks(status);
		CREATE INDEX IF NOT EXISTS idx_tasks_assigned ON tasks(assigned_to);

		CREATE TABLE IF NOT EXISTS agents (
			id           TEXT PRIMARY KEY,
			status       TEXT NOT NULL DEFAULT 'active',
			current_task TEXT,
			updated_at   TEXT NOT NULL DEFAULT (datetime('now'))
		);

		CREATE TABLE IF NOT EXISTS schema_migrations (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			version      TEXT NOT NULL,
			description  TEXT NOT NULL,
			applied_at   TEXT NOT NULL DEFAULT (datetime('now')),
			from_version TEXT,
			run_id       TEXT,
			counts       TEXT NOT NULL DEFAULT '{}'
		);
	`
	_, err := s.execHook(s.db, schema)
	return err
}

// ─── Transactions ────────────────────────────────────────────────────────────

// Tx is a write transaction. Every mutation invalidates the cached rows
// it touches immediately, and again after commit.
type Tx struct {
	s       *Store
	tx      *sql.Tx
	touched []string
}

// WithTx runs fn inside a transaction. fn's error rolls everything back.
func (s *Store) WithTx(fn func(tx *Tx) error) error {
	sqlTx, err := s.beginTxHook()
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer sqlTx.Rollback() //nolint:errcheck

	tx := &Tx{s: s, tx: sqlTx}
	if err := fn(tx); err != nil {
		s.cache.reset()
		return err
	}
	if err := s.commitHook(sqlTx); err != nil {
		s.cache.reset()
		return fmt.Errorf("store: commit: %w", err)
	}
	s.cache.invalidate(tx.touched...)
	return nil
}

func (tx *Tx) touch(ids ...string) {
	tx.touched = append(tx.touched, ids...)
	tx.s.cache.invalidate(ids...)
}

// ─── Phases ──────────────────────────────────────────────────────────────────

const phaseColumns = `id, title, description, ordinal, prerequisites, status, objectives, theory_focus, created_at, updated_at`

// InsertPhase creates a phase row.
func (tx *Tx) InsertPhase(p hierarchy.Phase) error {
	if p.Status == "" {
		p.Status = hierarchy.PhaseCreated
	}
	now := hierarchy.Now()
	if p.CreatedAt == "" {
		p.CreatedAt = now
	}
	if p.UpdatedAt == "" {
		p.UpdatedAt = p.CreatedAt
	}
	_, err := tx.s.execHook(tx.tx,
		`INSERT INTO phases (`+phaseColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Title, p.Description, p.Ordinal,
		encodeList(p.Prerequisites), string(p.Status), encodeList(p.Objectives), encodeList(p.TheoryFocus),
		p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.Newf(errors.ErrCodeAlreadyExists, "phase %q already exists", p.ID).WithSubjects(p.ID)
		}
		return fmt.Errorf("store: insert phase %s: %w", p.ID, err)
	}
	return nil
}

// SetPhaseStatus updates a phase's status.
func (tx *Tx) SetPhaseStatus(id string, status hierarchy.PhaseStatus) error {
	res, err := tx.s.execHook(tx.tx,
		`UPDATE phases SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), hierarchy.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("store: update phase %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NewNotFoundError("phase", id)
	}
	return nil
}

// Phase reads one phase inside the transaction.
func (tx *Tx) Phase(id string) (*hierarchy.Phase, error) {
	return tx.s.getPhase(tx.tx, id)
}

// Phases reads every phase inside the transaction, ordered by ordinal.
func (tx *Tx) Phases() ([]hierarchy.Phase, error) {
	return tx.s.listPhases(tx.tx)
}

// CreatePhase inserts a phase in its own transaction.
func (s *Store) CreatePhase(p hierarchy.Phase) error {
	return s.WithTx(func(tx *Tx) error { return tx.InsertPhase(p) })
}

// UpdatePhaseStatus sets a phase's status in its own transaction.
func (s *Store) UpdatePhaseStatus(id string, status hierarchy.PhaseStatus) error {
	return s.WithTx(func(tx *Tx) error { return tx.SetPhaseStatus(id, status) })
}

// GetPhase retrieves a phase by id.
func (s *Store) GetPhase(id string) (*hierarchy.Phase, error) {
	return s.getPhase(s.db, id)
}

// ListPhases returns every phase ordered by ordinal.
func (s *Store) ListPhases() ([]hierarchy.Phase, error) {
	return s.listPhases(s.db)
}

func (s *Store) getPhase(q queryer, id string) (*hierarchy.Phase, error) {
	phases, err := s.queryPhases(q, `SELECT `+phaseColumns+` FROM phases WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(phases) == 0 {
		return nil, errors.NewNotFoundError("phase", id)
	}
	return &phases[0], nil
}

func (s *Store) listPhases(q queryer) ([]hierarchy.Phase, error) {
	return s.queryPhases(q, `SELECT `+phaseColumns+` FROM phases ORDER BY ordinal ASC, id ASC`)
}

func (s *Store) queryPhases(q queryer, query string, args ...any) ([]hierarchy.Phase, error) {
	rows, err := s.queryItHook(q, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query phases: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []hierarchy.Phase
	for rows.Next() {
		var (
			p                               hierarchy.Phase
			status                          string
			prereqs, objectives, theoryJSON string
		)
		if err := rows.Scan(&p.ID, &p.Title, &p.Description, &p.Ordinal, &prereqs, &status,
			&objectives, &theoryJSON, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("store: scan phase: %w", err)
		}
		p.Status = hierarchy.PhaseStatus(status)
		p.Prerequisites = decodeList(prereqs)
		p.Objectives = decodeList(objectives)
		p.TheoryFocus = decodeList(theoryJSON)
		out = append(out, p)
	}
	return out, rows.Err()
}

// ─── Tasks ───────────────────────────────────────────────────────────────────

const taskColumns = `id, title, description, status, assigned_to, created_by, priority, created_at, updated_at, parent_id, child_ids, depends_on, notes`

// InsertTask creates a task row. It does not touch the parent's child list;
// use AttachChild for that.
func (tx *Tx) InsertTask(t hierarchy.Task) error {
	t = withTaskDefaults(t)
	_, err := tx.s.execHook(tx.tx,
		`INSERT INTO tasks (`+taskColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		taskArgs(t)...,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.Newf(errors.ErrCodeAlreadyExists, "task %q already exists", t.ID).WithSubjects(t.ID)
		}
		return fmt.Errorf("store: insert task %s: %w", t.ID, err)
	}
	tx.touch(t.ID)
	return nil
}

// SaveTask overwrites every column of an existing task.
func (tx *Tx) SaveTask(t hierarchy.Task) error {
	t = withTaskDefaults(t)
	args := taskArgs(t)
	res, err := tx.s.execHook(tx.tx,
		`UPDATE tasks SET title = ?, description = ?, status = ?, assigned_to = ?, created_by = ?,
		        priority = ?, created_at = ?, updated_at = ?, parent_id = ?, child_ids = ?,
		        depends_on = ?, notes = ?
		 WHERE id = ?`,
		append(args[1:], t.ID)...,
	)
	if err != nil {
		return fmt.Errorf("store: update task %s: %w", t.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NewNotFoundError("task", t.ID)
	}
	tx.touch(t.ID)
	return nil
}

// AttachChild appends childID to the child list of parentID when parentID
// is a task. Phases keep no child list; their workstreams are found by
// parent pointer.
func (tx *Tx) AttachChild(parentID, childID string) error {
	if parentID == "" || hierarchy.IsPhaseID(parentID) {
		return nil
	}
	parent, err := tx.Task(parentID)
	if err != nil {
		return err
	}
	if parent.HasChild(childID) {
		return nil
	}
	parent.ChildIDs = append(parent.ChildIDs, childID)
	parent.UpdatedAt = hierarchy.Now()
	return tx.SaveTask(*parent)
}

// Task reads one task inside the transaction, bypassing the cache.
func (tx *Tx) Task(id string) (*hierarchy.Task, error) {
	return tx.s.getTask(tx.tx, id)
}

// Tasks reads every task inside the transaction, ordered by id.
func (tx *Tx) Tasks() ([]hierarchy.Task, error) {
	return tx.s.queryTasks(tx.tx, `SELECT `+taskColumns+` FROM tasks ORDER BY id ASC`)
}

// CreateTask inserts a task and links it into its parent's child list.
func (s *Store) CreateTask(t hierarchy.Task) error {
	return s.WithTx(func(tx *Tx) error {
		if err := tx.InsertTask(t); err != nil {
			return err
		}
		return tx.AttachChild(t.ParentID, t.ID)
	})
}

// UpdateTask overwrites an existing task in its own transaction.
func (s *Store) UpdateTask(t hierarchy.Task) error {
	return s.WithTx(func(tx *Tx) error { return tx.SaveTask(t) })
}

// AppendNote adds an entry to a task's notes log.
func (s *Store) AppendNote(id string, note hierarchy.Note) error {
	return s.WithTx(func(tx *Tx) error {
		t, err := tx.Task(id)
		if err != nil {
			return err
		}
		t.Notes = append(t.Notes, note)
		t.UpdatedAt = hierarchy.Now()
		return tx.SaveTask(*t)
	})
}

// UpdateTaskStatus sets one task's status and appends a note when one is given.
func (s *Store) UpdateTaskStatus(id string, status hierarchy.TaskStatus, note *hierarchy.Note) error {
	if err := hierarchy.ValidateTaskStatus(status); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidArgument, err.Error(), err).WithSubjects(id)
	}
	return s.WithTx(func(tx *Tx) error {
		t, err := tx.Task(id)
		if err != nil {
			return err
		}
		t.Status = status
		t.UpdatedAt = hierarchy.Now()
		if note != nil {
			t.Notes = append(t.Notes, *note)
		}
		return tx.SaveTask(*t)
	})
}

// AssignTask records agentID as the task's assignee and as the agent's
// current task, registering the agent if it is new.
func (s *Store) AssignTask(taskID, agentID string) error {
	return s.WithTx(func(tx *Tx) error {
		t, err := tx.Task(taskID)
		if err != nil {
			return err
		}
		t.AssignedTo = agentID
		t.UpdatedAt = hierarchy.Now()
		if err := tx.SaveTask(*t); err != nil {
			return err
		}
		return tx.UpsertAgent(hierarchy.Agent{ID: agentID, Status: hierarchy.AgentActive, CurrentTask: taskID})
	})
}

// GetTask retrieves a task by id, serving repeated reads from the cache.
func (s *Store) GetTask(id string) (*hierarchy.Task, error) {
	if t, ok := s.cache.get(id); ok {
		return &t, nil
	}
	gen := s.cache.generation()
	t, err := s.getTask(s.db, id)
	if err != nil {
		return nil, err
	}
	s.cache.put(*t, gen)
	return t, nil
}

// ListTasks returns every task ordered by id.
func (s *Store) ListTasks() ([]hierarchy.Task, error) {
	return s.queryTasks(s.db, `SELECT `+taskColumns+` FROM tasks ORDER BY id ASC`)
}

// ImportTasks inserts raw task rows without structural validation. It is
// the entry point for legacy flat data awaiting migration. Existing ids
// are skipped. Returns the number of rows inserted.
func (s *Store) ImportTasks(tasks []hierarchy.Task) (int, error) {
	imported := 0
	err := s.WithTx(func(tx *Tx) error {
		for _, t := range tasks {
			t = withTaskDefaults(t)
			res, err := s.execHook(tx.tx,
				`INSERT OR IGNORE INTO tasks (`+taskColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				taskArgs(t)...,
			)
			if err != nil {
				return fmt.Errorf("store: import task %s: %w", t.ID, err)
			}
			n, _ := res.RowsAffected()
			imported += int(n)
			tx.touch(t.ID)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return imported, nil
}

func (s *Store) getTask(q queryer, id string) (*hierarchy.Task, error) {
	tasks, err := s.queryTasks(q, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, errors.NewNotFoundError("task", id)
	}
	return &tasks[0], nil
}

func (s *Store) queryTasks(q queryer, query string, args ...any) ([]hierarchy.Task, error) {
	rows, err := s.queryItHook(q, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []hierarchy.Task
	for rows.Next() {
		var (
			t                          hierarchy.Task
			status, priority           string
			assigned, parent           sql.NullString
			childIDs, dependsOn, notes string
		)
		if err := rows.Scan(&t.ID, &t.Title, &t.Description, &status, &assigned, &t.CreatedBy,
			&priority, &t.CreatedAt, &t.UpdatedAt, &parent, &childIDs, &dependsOn, &notes); err != nil {
			return nil, fmt.Errorf("store: scan task: %w", err)
		}
		t.Status = hierarchy.TaskStatus(status)
		t.Priority = hierarchy.Priority(priority)
		t.AssignedTo = assigned.String
		t.ParentID = parent.String
		t.ChildIDs = decodeList(childIDs)
		t.DependsOn = decodeList(dependsOn)
		t.Notes = decodeNotes(notes)
		out = append(out, t)
	}
	return out, rows.Err()
}

func withTaskDefaults(t hierarchy.Task) hierarchy.Task {
	if t.Status == "" {
		t.Status = hierarchy.StatusPending
	}
	if t.Priority == "" {
		t.Priority = hierarchy.PriorityMedium
	}
	now := hierarchy.Now()
	if t.CreatedAt == "" {
		t.CreatedAt = now
	}
	if t.UpdatedAt == "" {
		t.UpdatedAt = t.CreatedAt
	}
	return t
}

func taskArgs(t hierarchy.Task) []any {
	return []any{
		t.ID, t.Title, t.Description, string(t.Status), nullableString(t.AssignedTo), t.CreatedBy,
		string(t.Priority), t.CreatedAt, t.UpdatedAt, nullableString(t.ParentID),
		encodeList(t.ChildIDs), encodeList(t.DependsOn), encodeNotes(t.Notes),
	}
}

// ─── Agents ──────────────────────────────────────────────────────────────────

// UpsertAgent creates or replaces an agent row.
func (tx *Tx) UpsertAgent(a hierarchy.Agent) error {
	if a.Status == "" {
		a.Status = hierarchy.AgentActive
	}
	_, err := tx.s.execHook(tx.tx,
		`INSERT INTO agents (id, status, current_task, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET status = excluded.status,
		     current_task = excluded.current_task, updated_at = excluded.updated_at`,
		a.ID, string(a.Status), nullableString(a.CurrentTask), hierarchy.Now(),
	)
	if err != nil {
		return fmt.Errorf("store: upsert agent %s: %w", a.ID, err)
	}
	return nil
}

// DeactivateAgents marks the given agents terminated and clears their
// current task.
func (tx *Tx) DeactivateAgents(ids ...string) error {
	for _, id := range ids {
		res, err := tx.s.execHook(tx.tx,
			`UPDATE agents SET status = ?, current_task = NULL, updated_at = ? WHERE id = ?`,
			string(hierarchy.AgentTerminated), hierarchy.Now(), id,
		)
		if err != nil {
			return fmt.Errorf("store: deactivate agent %s: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return errors.NewNotFoundError("agent", id)
		}
	}
	return nil
}

// DeactivateAgents terminates the given agents in one transaction.
func (s *Store) DeactivateAgents(ids ...string) error {
	return s.WithTx(func(tx *Tx) error { return tx.DeactivateAgents(ids...) })
}

// Agents reads every agent inside the transaction.
func (tx *Tx) Agents() ([]hierarchy.Agent, error) {
	return tx.s.listAgents(tx.tx)
}

// UpsertAgent creates or replaces an agent in its own transaction.
func (s *Store) UpsertAgent(a hierarchy.Agent) error {
	return s.WithTx(func(tx *Tx) error { return tx.UpsertAgent(a) })
}

// GetAgent retrieves an agent by id.
func (s *Store) GetAgent(id string) (*hierarchy.Agent, error) {
	agents, err := s.queryAgents(s.db, `SELECT id, status, current_task, updated_at FROM agents WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(agents) == 0 {
		return nil, errors.NewNotFoundError("agent", id)
	}
	return &agents[0], nil
}

// ListAgents returns every agent ordered by id.
func (s *Store) ListAgents() ([]hierarchy.Agent, error) {
	return s.listAgents(s.db)
}

func (s *Store) listAgents(q queryer) ([]hierarchy.Agent, error) {
	return s.queryAgents(q, `SELECT id, status, current_task, updated_at FROM agents ORDER BY id ASC`)
}

func (s *Store) queryAgents(q queryer, query string, args ...any) ([]hierarchy.Agent, error) {
	rows, err := s.queryItHook(q, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query agents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []hierarchy.Agent
	for rows.Next() {
		var (
			a       hierarchy.Agent
			status  string
			current sql.NullString
		)
		if err := rows.Scan(&a.ID, &status, &current, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("store: scan agent: %w", err)
		}
		a.Status = hierarchy.AgentStatus(status)
		a.CurrentTask = current.String
		out = append(out, a)
	}
	return out, rows.Err()
}

// ─── Ledger ──────────────────────────────────────────────────────────────────

// RecordMigration appends a ledger entry.
func (tx *Tx) RecordMigration(e LedgerEntry) error {
	counts, err := json.Marshal(e.Counts)
	if err != nil {
		return fmt.Errorf("store: encode ledger counts: %w", err)
	}
	appliedAt := e.AppliedAt
	if appliedAt == "" {
		appliedAt = hierarchy.Now()
	}
	_, err = tx.s.execHook(tx.tx,
		`INSERT INTO schema_migrations (version, description, applied_at, from_version, run_id, counts)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.Version, e.Description, appliedAt, nullableString(e.FromVersion), nullableString(e.RunID), string(counts),
	)
	if err != nil {
		return fmt.Errorf("store: record migration %s: %w", e.Version, err)
	}
	return nil
}

// Ledger returns every ledger entry in application order.
func (s *Store) Ledger() ([]LedgerEntry, error) {
	rows, err := s.queryItHook(s.db,
		`SELECT id, version, description, applied_at, COALESCE(from_version, ''), COALESCE(run_id, ''), counts
		 FROM schema_migrations ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("store: query ledger: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []LedgerEntry
	for rows.Next() {
		var (
			e      LedgerEntry
			counts string
		)
		if err := rows.Scan(&e.ID, &e.Version, &e.Description, &e.AppliedAt, &e.FromVersion, &e.RunID, &counts); err != nil {
			return nil, fmt.Errorf("store: scan ledger: %w", err)
		}
		_ = json.Unmarshal([]byte(counts), &e.Counts) // best-effort: counts are informational
		out = append(out, e)
	}
	return out, rows.Err()
}

// SchemaVersion returns the version of the latest ledger entry, or "" for
// a store that has never been migrated.
func (s *Store) SchemaVersion() (string, error) {
	entries, err := s.Ledger()
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "", nil
	}
	return entries[len(entries)-1].Version, nil
}

// ─── Snapshot ────────────────────────────────────────────────────────────────

// Dump reads the full content of the store.
func (s *Store) Dump() (*Snapshot, error) {
	phases, err := s.ListPhases()
	if err != nil {
		return nil, err
	}
	tasks, err := s.ListTasks()
	if err != nil {
		return nil, err
	}
	agents, err := s.ListAgents()
	if err != nil {
		return nil, err
	}
	ledger, err := s.Ledger()
	if err != nil {
		return nil, err
	}
	return &Snapshot{Phases: phases, Tasks: tasks, Agents: agents, Ledger: ledger}, nil
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func encodeList(items []string) string {
	if len(items) == 0 {
		return "[]"
	}
	data, _ := json.Marshal(items)
	return string(data)
}

func decodeList(raw string) []string {
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil || len(out) == 0 {
		return nil
	}
	return out
}

func encodeNotes(notes []hierarchy.Note) string {
	if len(notes) == 0 {
		return "[]"
	}
	data, _ := json.Marshal(notes)
	return string(data)
}

func decodeNotes(raw string) []hierarchy.Note {
	var out []hierarchy.Note
	if err := json.Unmarshal([]byte(raw), &out); err != nil || len(out) == 0 {
		return nil
	}
	return out
}

// isUniqueViolation checks if an error is a SQLite UNIQUE constraint violation.
func isUniqueViolation(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "PRIMARY KEY"))
}
