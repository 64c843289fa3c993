package store

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Backup writes a consistent copy of the database to dest using
// VACUUM INTO. dest must not exist.
func (s *Store) Backup(dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o700); err != nil {
		return fmt.Errorf("store: create backup dir: %w", err)
	}
	if _, err := os.Stat(dest); err == nil {
		return fmt.Errorf("store: backup %s already exists", dest)
	}
	if _, err := s.execHook(s.db, `VACUUM INTO ?`, dest); err != nil {
		return fmt.Errorf("store: backup to %s: %w", dest, err)
	}
	return nil
}

// Restore replaces the database with the backup at src and reopens it.
// Callers must hold the migration gate: no other operation may run on the
// store while the file is swapped.
func (s *Store) Restore(src string) error {
	if _, err := os.Stat(src); err != nil {
		return fmt.Errorf("store: restore source: %w", err)
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close before restore: %w", err)
	}
	for _, suffix := range []string{"-wal", "-shm"} {
		if err := os.Remove(s.path + suffix); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("store: remove %s: %w", suffix, err)
		}
	}
	if err := copyFile(src, s.path); err != nil {
		return fmt.Errorf("store: restore from %s: %w", src, err)
	}
	s.cache.reset()
	return s.open()
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
