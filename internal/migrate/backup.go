package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const backupTimeLayout = "20060102_150405"

// backupName is <stem>_backup_YYYYMMDD_HHMMSS.db for the store at dbPath.
func backupName(dbPath string, at time.Time) string {
	stem := strings.TrimSuffix(filepath.Base(dbPath), filepath.Ext(dbPath))
	return fmt.Sprintf("%s_backup_%s.db", stem, at.Format(backupTimeLayout))
}

// backupPath picks a free path in dir for a backup taken at at.
func backupPath(dir, dbPath string, at time.Time) string {
	name := backupName(dbPath, at)
	path := filepath.Join(dir, name)
	for n := 2; ; n++ {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return path
		}
		path = filepath.Join(dir, strings.TrimSuffix(name, ".db")+fmt.Sprintf("_%d.db", n))
	}
}

// backupTime parses the timestamp out of a backup file name.
func backupTime(dbPath, name string) (time.Time, bool) {
	stem := strings.TrimSuffix(filepath.Base(dbPath), filepath.Ext(dbPath))
	prefix := stem + "_backup_"
	if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".db") {
		return time.Time{}, false
	}
	rest := strings.TrimPrefix(name, prefix)
	if len(rest) < len(backupTimeLayout) {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(backupTimeLayout, rest[:len(backupTimeLayout)], time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// pruneBackups deletes backups of dbPath in dir older than retention.
// Returns the removed paths.
func pruneBackups(dir, dbPath string, retention time.Duration, now time.Time) ([]string, error) {
	if retention <= 0 {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("migrate: list backups: %w", err)
	}

	var removed []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		taken, ok := backupTime(dbPath, e.Name())
		if !ok || now.Sub(taken) <= retention {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if err := os.Remove(path); err != nil {
			return removed, fmt.Errorf("migrate: remove backup %s: %w", path, err)
		}
		removed = append(removed, path)
	}
	return removed, nil
}
