package store

import "database/sql"

// DB exposes the internal *sql.DB for test helpers in store_test.
// This file only compiles during `go test`.
func (s *Store) DB() *sql.DB {
	return s.db
}

// CachedTasks reports how many task rows the cache currently holds.
func (s *Store) CachedTasks() int {
	return s.cache.len()
}

// FailCommits makes every subsequent commit fail with err. A nil err
// restores normal commits.
func (s *Store) FailCommits(err error) {
	if err == nil {
		s.hooks.commit = nil
		return
	}
	s.hooks.commit = func(*sql.Tx) error { return err }
}
