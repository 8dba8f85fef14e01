package db

import (
	"database/sql"
	"time"
)

// ImportStats are the counters recorded after an initial import
type ImportStats struct {
	CoursesImported int
	ClassesImported int
	ClassesExisting int
	ClassesDropped  int
}

// SyncState summarises local sync bookkeeping
type SyncState struct {
	LastImportAt   *time.Time
	Stats          ImportStats
	PendingCourses int // rows with synced_at IS NULL
	PendingClasses int
	UnkeyedCourses int // rows with no remote key at all
	UnkeyedClasses int
}

// RecordImport stores the outcome of an initial import
func (db *DB) RecordImport(stats ImportStats, at time.Time) error {
	return db.withWriteLock(func() error {
		_, err := db.conn.Exec(`
			INSERT INTO sync_state (id, last_import_at, courses_imported, classes_imported, classes_existing, classes_dropped)
			VALUES (1, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				last_import_at = excluded.last_import_at,
				courses_imported = excluded.courses_imported,
				classes_imported = excluded.classes_imported,
				classes_existing = excluded.classes_existing,
				classes_dropped = excluded.classes_dropped
		`, at, stats.CoursesImported, stats.ClassesImported, stats.ClassesExisting, stats.ClassesDropped)
		return err
	})
}

// GetSyncState returns import bookkeeping plus pending counts
func (db *DB) GetSyncState() (*SyncState, error) {
	var s SyncState
	var lastImport sql.NullTime

	err := db.conn.QueryRow(`
		SELECT last_import_at, courses_imported, classes_imported, classes_existing, classes_dropped
		FROM sync_state WHERE id = 1
	`).Scan(&lastImport, &s.Stats.CoursesImported, &s.Stats.ClassesImported, &s.Stats.ClassesExisting, &s.Stats.ClassesDropped)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}
	s.LastImportAt = timePtr(lastImport)

	counts := []struct {
		dst   *int
		query string
	}{
		{&s.PendingCourses, `SELECT COUNT(*) FROM courses WHERE synced_at IS NULL`},
		{&s.PendingClasses, `SELECT COUNT(*) FROM classes WHERE synced_at IS NULL`},
		{&s.UnkeyedCourses, `SELECT COUNT(*) FROM courses WHERE remote_key IS NULL`},
		{&s.UnkeyedClasses, `SELECT COUNT(*) FROM classes WHERE remote_key IS NULL`},
	}
	for _, c := range counts {
		if err := db.conn.QueryRow(c.query).Scan(c.dst); err != nil {
			return nil, err
		}
	}

	return &s, nil
}
