package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/marcus/yoga/internal/models"
)

const courseColumns = `id, remote_key, day_of_week, time, capacity, duration, price, class_type,
	description, instructor, room, difficulty, equipment, age_group, created_at, synced_at`

func scanCourse(s rowScanner) (*models.Course, error) {
	var c models.Course
	var remoteKey sql.NullString
	var syncedAt sql.NullTime

	err := s.Scan(
		&c.ID, &remoteKey, &c.DayOfWeek, &c.Time, &c.Capacity, &c.Duration, &c.Price, &c.ClassType,
		&c.Description, &c.Instructor, &c.Room, &c.Difficulty, &c.Equipment, &c.AgeGroup, &c.CreatedAt, &syncedAt,
	)
	if err != nil {
		return nil, err
	}
	c.RemoteKey = remoteKey.String
	c.SyncedAt = timePtr(syncedAt)
	return &c, nil
}

func (db *DB) queryCourses(query string, args ...any) ([]models.Course, error) {
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var courses []models.Course
	for rows.Next() {
		c, err := scanCourse(rows)
		if err != nil {
			return nil, err
		}
		courses = append(courses, *c)
	}
	return courses, rows.Err()
}

// CreateCourse inserts a course and sets its local ID
func (db *DB) CreateCourse(c *models.Course) error {
	return db.withWriteLock(func() error {
		if c.CreatedAt.IsZero() {
			c.CreatedAt = time.Now()
		}

		res, err := db.conn.Exec(`
			INSERT INTO courses (remote_key, day_of_week, time, capacity, duration, price, class_type,
				description, instructor, room, difficulty, equipment, age_group, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, nullString(c.RemoteKey), c.DayOfWeek, c.Time, c.Capacity, c.Duration, c.Price, c.ClassType,
			c.Description, c.Instructor, c.Room, c.Difficulty, c.Equipment, c.AgeGroup, c.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert course: %w", err)
		}

		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("last insert id: %w", err)
		}
		c.ID = id
		c.SyncedAt = nil
		return nil
	})
}

// GetCourse retrieves a course by local ID
func (db *DB) GetCourse(id int64) (*models.Course, error) {
	c, err := scanCourse(db.conn.QueryRow(`SELECT `+courseColumns+` FROM courses WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("course %d: %w", id, ErrNotFound)
	}
	return c, err
}

// FindCourseByRemoteKey retrieves a course by its remote key
func (db *DB) FindCourseByRemoteKey(key string) (*models.Course, error) {
	c, err := scanCourse(db.conn.QueryRow(`SELECT `+courseColumns+` FROM courses WHERE remote_key = ?`, key))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("course with remote key %q: %w", key, ErrNotFound)
	}
	return c, err
}

// ListCourses returns all courses ordered by weekday then time
func (db *DB) ListCourses() ([]models.Course, error) {
	return db.queryCourses(`SELECT ` + courseColumns + ` FROM courses ORDER BY ` + dayOrder("day_of_week") + `, time, id`)
}

// ListUnsyncedCourses returns courses whose latest state has not reached the remote store
func (db *DB) ListUnsyncedCourses() ([]models.Course, error) {
	return db.queryCourses(`SELECT ` + courseColumns + ` FROM courses WHERE synced_at IS NULL ORDER BY id`)
}

// UpdateCourse writes all editable fields. The row drops back to
// key-assigned until the remote write confirms.
func (db *DB) UpdateCourse(c *models.Course) error {
	return db.withWriteLock(func() error {
		res, err := db.conn.Exec(`
			UPDATE courses SET day_of_week = ?, time = ?, capacity = ?, duration = ?, price = ?, class_type = ?,
				description = ?, instructor = ?, room = ?, difficulty = ?, equipment = ?, age_group = ?,
				synced_at = NULL
			WHERE id = ?
		`, c.DayOfWeek, c.Time, c.Capacity, c.Duration, c.Price, c.ClassType,
			c.Description, c.Instructor, c.Room, c.Difficulty, c.Equipment, c.AgeGroup, c.ID)
		if err != nil {
			return fmt.Errorf("update course %d: %w", c.ID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("course %d: %w", c.ID, ErrNotFound)
		}
		c.SyncedAt = nil
		return nil
	})
}

// DeleteCourse removes a course; its classes go with it via ON DELETE CASCADE.
// Returns the remote keys of the cascaded classes so callers can remove
// their remote nodes individually.
func (db *DB) DeleteCourse(id int64) ([]string, error) {
	var childKeys []string
	err := db.withTx(func(tx *sql.Tx) error {
		rows, err := tx.Query(`SELECT remote_key FROM classes WHERE course_id = ? AND remote_key IS NOT NULL ORDER BY id`, id)
		if err != nil {
			return fmt.Errorf("list child classes: %w", err)
		}
		for rows.Next() {
			var key string
			if err := rows.Scan(&key); err != nil {
				rows.Close()
				return err
			}
			childKeys = append(childKeys, key)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		res, err := tx.Exec(`DELETE FROM courses WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete course %d: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("course %d: %w", id, ErrNotFound)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return childKeys, nil
}

// ClaimCourseRemoteKey stores key on a course that has none yet and returns
// the key the row ends up with. When another writer got there first its key
// is kept and returned instead, so a course never changes remote key.
func (db *DB) ClaimCourseRemoteKey(id int64, key string) (string, error) {
	var stored sql.NullString
	err := db.withTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`UPDATE courses SET remote_key = ? WHERE id = ? AND remote_key IS NULL`, nullString(key), id); err != nil {
			return fmt.Errorf("set course %d remote key: %w", id, err)
		}
		err := tx.QueryRow(`SELECT remote_key FROM courses WHERE id = ?`, id).Scan(&stored)
		if err == sql.ErrNoRows {
			return fmt.Errorf("course %d: %w", id, ErrNotFound)
		}
		return err
	})
	if err != nil {
		return "", err
	}
	return stored.String, nil
}

// MarkCourseSynced records that the remote node now mirrors the local row
func (db *DB) MarkCourseSynced(id int64, at time.Time) error {
	return db.withWriteLock(func() error {
		_, err := db.conn.Exec(`UPDATE courses SET synced_at = ? WHERE id = ?`, at, id)
		return err
	})
}

// UpsertCourseByRemoteKey inserts a course pulled from the remote store,
// replacing the fields of an existing row with the same remote key. The
// local ID of an existing row is kept so its classes stay attached.
func (db *DB) UpsertCourseByRemoteKey(c *models.Course) error {
	if c.RemoteKey == "" {
		return fmt.Errorf("upsert course: empty remote key")
	}
	return db.withWriteLock(func() error {
		if c.CreatedAt.IsZero() {
			c.CreatedAt = time.Now()
		}
		now := time.Now()

		_, err := db.conn.Exec(`
			INSERT INTO courses (remote_key, day_of_week, time, capacity, duration, price, class_type,
				description, instructor, room, difficulty, equipment, age_group, created_at, synced_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(remote_key) DO UPDATE SET
				day_of_week = excluded.day_of_week, time = excluded.time, capacity = excluded.capacity,
				duration = excluded.duration, price = excluded.price, class_type = excluded.class_type,
				description = excluded.description, instructor = excluded.instructor, room = excluded.room,
				difficulty = excluded.difficulty, equipment = excluded.equipment, age_group = excluded.age_group,
				synced_at = excluded.synced_at
		`, c.RemoteKey, c.DayOfWeek, c.Time, c.Capacity, c.Duration, c.Price, c.ClassType,
			c.Description, c.Instructor, c.Room, c.Difficulty, c.Equipment, c.AgeGroup, c.CreatedAt, now)
		if err != nil {
			return fmt.Errorf("upsert course %s: %w", c.RemoteKey, err)
		}

		if err := db.conn.QueryRow(`SELECT id FROM courses WHERE remote_key = ?`, c.RemoteKey).Scan(&c.ID); err != nil {
			return fmt.Errorf("lookup upserted course %s: %w", c.RemoteKey, err)
		}
		c.SyncedAt = &now
		return nil
	})
}

// CountCourses returns the number of local courses
func (db *DB) CountCourses() (int, error) {
	var n int
	err := db.conn.QueryRow(`SELECT COUNT(*) FROM courses`).Scan(&n)
	return n, err
}

// dayOrder returns a SQL expression sorting weekday names Monday first
func dayOrder(col string) string {
	return fmt.Sprintf(`CASE %s
		WHEN 'Monday' THEN 1 WHEN 'Tuesday' THEN 2 WHEN 'Wednesday' THEN 3 WHEN 'Thursday' THEN 4
		WHEN 'Friday' THEN 5 WHEN 'Saturday' THEN 6 WHEN 'Sunday' THEN 7 ELSE 8 END`, col)
}
