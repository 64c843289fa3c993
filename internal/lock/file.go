package lock

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/HendryAvila/strata/internal/errors"
)

// DefaultStaleAfter is the age after which an abandoned lock file is
// taken over.
const DefaultStaleAfter = 300 * time.Second

// timeNow is a package-level variable for testability.
var timeNow = time.Now

// Info is the content of a lock file.
type Info struct {
	PID       int       `json:"pid"`
	RunID     string    `json:"run_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func (i Info) String() string {
	return fmt.Sprintf("pid %d since %s", i.PID, i.Timestamp.Format(time.RFC3339))
}

// FileLock is an exclusive lock file shared between processes.
type FileLock struct {
	path       string
	staleAfter time.Duration
}

// NewFileLock returns a lock on path. staleAfter <= 0 uses DefaultStaleAfter.
func NewFileLock(path string, staleAfter time.Duration) *FileLock {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &FileLock{path: path, staleAfter: staleAfter}
}

// Path returns the lock file path.
func (l *FileLock) Path() string { return l.path }

// Acquire creates the lock file. A lock held by someone else fails with a
// retryable migration-in-progress error unless it is stale, in which case
// it is replaced.
func (l *FileLock) Acquire(runID string) error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o700); err != nil {
		return fmt.Errorf("lock: create dir: %w", err)
	}
	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			info := Info{PID: os.Getpid(), RunID: runID, Timestamp: timeNow().UTC()}
			encErr := json.NewEncoder(f).Encode(info)
			closeErr := f.Close()
			if encErr != nil {
				_ = os.Remove(l.path)
				return fmt.Errorf("lock: write %s: %w", l.path, encErr)
			}
			if closeErr != nil {
				_ = os.Remove(l.path)
				return fmt.Errorf("lock: close %s: %w", l.path, closeErr)
			}
			return nil
		}
		if !os.IsExist(err) {
			return fmt.Errorf("lock: create %s: %w", l.path, err)
		}

		holder, readErr := l.Holder()
		if readErr == nil && timeNow().Sub(holder.Timestamp) < l.staleAfter {
			return errors.NewMigrationInProgressError(holder.String())
		}
		// stale or unreadable: take it over
		if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("lock: remove stale %s: %w", l.path, err)
		}
	}
	return errors.NewMigrationInProgressError("")
}

// Release removes the lock file. Releasing an absent lock is not an error.
func (l *FileLock) Release() error {
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("lock: release %s: %w", l.path, err)
	}
	return nil
}

// Holder reads the current lock file.
func (l *FileLock) Holder() (*Info, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, err
	}
	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("lock: parse %s: %w", l.path, err)
	}
	return &info, nil
}
