package db

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/marcus/yoga/internal/models"
)

const classColumns = `id, remote_key, course_id, course_remote_key, date, instructor, actual_capacity,
	slots_available, comments, status, created_at, synced_at`

// SearchFilter combines independently optional class predicates with AND.
// An empty field matches every class.
type SearchFilter struct {
	Instructor string // substring of the class instructor
	Date       string // exact YYYY-MM-DD
	DayOfWeek  string // substring of the parent course's day
}

// IsEmpty reports whether no predicate is set
func (f SearchFilter) IsEmpty() bool {
	return strings.TrimSpace(f.Instructor) == "" && strings.TrimSpace(f.Date) == "" && strings.TrimSpace(f.DayOfWeek) == ""
}

func scanClass(s rowScanner) (*models.Class, error) {
	var c models.Class
	var remoteKey sql.NullString
	var status string
	var syncedAt sql.NullTime

	err := s.Scan(
		&c.ID, &remoteKey, &c.CourseID, &c.CourseRemoteKey, &c.Date, &c.Instructor, &c.ActualCapacity,
		&c.SlotsAvailable, &c.Comments, &status, &c.CreatedAt, &syncedAt,
	)
	if err != nil {
		return nil, err
	}
	c.RemoteKey = remoteKey.String
	c.Status = models.ClassStatus(status)
	c.SyncedAt = timePtr(syncedAt)
	return &c, nil
}

func (db *DB) queryClasses(query string, args ...any) ([]models.Class, error) {
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var classes []models.Class
	for rows.Next() {
		c, err := scanClass(rows)
		if err != nil {
			return nil, err
		}
		classes = append(classes, *c)
	}
	return classes, rows.Err()
}

// CreateClass inserts a new class. Slots available always starts equal to
// the actual capacity.
func (db *DB) CreateClass(c *models.Class) error {
	if c.Status == "" {
		c.Status = models.StatusScheduled
	}
	c.SlotsAvailable = c.ActualCapacity
	if err := c.Validate(); err != nil {
		return err
	}

	return db.withWriteLock(func() error {
		if c.CreatedAt.IsZero() {
			c.CreatedAt = time.Now()
		}

		res, err := db.conn.Exec(`
			INSERT INTO classes (remote_key, course_id, course_remote_key, date, instructor, actual_capacity,
				slots_available, comments, status, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, nullString(c.RemoteKey), c.CourseID, c.CourseRemoteKey, c.Date, c.Instructor, c.ActualCapacity,
			c.SlotsAvailable, c.Comments, string(c.Status), c.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert class: %w", err)
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

// InsertImportedClass inserts a class pulled from the remote store.
// A row with the same remote key is left untouched (ignore on conflict);
// inserted reports whether a new row was written.
func (db *DB) InsertImportedClass(c *models.Class) (inserted bool, err error) {
	if c.RemoteKey == "" {
		return false, fmt.Errorf("import class: empty remote key")
	}
	if err := c.Validate(); err != nil {
		return false, fmt.Errorf("import class %s: %w", c.RemoteKey, err)
	}

	err = db.withWriteLock(func() error {
		if c.CreatedAt.IsZero() {
			c.CreatedAt = time.Now()
		}
		now := time.Now()

		res, err := db.conn.Exec(`
			INSERT INTO classes (remote_key, course_id, course_remote_key, date, instructor, actual_capacity,
				slots_available, comments, status, created_at, synced_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(remote_key) DO NOTHING
		`, c.RemoteKey, c.CourseID, c.CourseRemoteKey, c.Date, c.Instructor, c.ActualCapacity,
			c.SlotsAvailable, c.Comments, string(c.Status), c.CreatedAt, now)
		if err != nil {
			return fmt.Errorf("import class %s: %w", c.RemoteKey, err)
		}

		n, _ := res.RowsAffected()
		if n == 0 {
			return nil
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("last insert id: %w", err)
		}
		c.ID = id
		c.SyncedAt = &now
		inserted = true
		return nil
	})
	return inserted, err
}

// GetClass retrieves a class by local ID
func (db *DB) GetClass(id int64) (*models.Class, error) {
	c, err := scanClass(db.conn.QueryRow(`SELECT `+classColumns+` FROM classes WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("class %d: %w", id, ErrNotFound)
	}
	return c, err
}

// ListClasses returns all classes ordered by date
func (db *DB) ListClasses() ([]models.Class, error) {
	return db.queryClasses(`SELECT ` + classColumns + ` FROM classes ORDER BY date, id`)
}

// ListClassesForCourse returns the classes of a single course ordered by date
func (db *DB) ListClassesForCourse(courseID int64) ([]models.Class, error) {
	return db.queryClasses(`SELECT `+classColumns+` FROM classes WHERE course_id = ? ORDER BY date, id`, courseID)
}

// ListUnsyncedClasses returns classes whose latest state has not reached the remote store
func (db *DB) ListUnsyncedClasses() ([]models.Class, error) {
	return db.queryClasses(`SELECT ` + classColumns + ` FROM classes WHERE synced_at IS NULL ORDER BY id`)
}

// SearchClasses applies the filter's predicates with AND semantics
func (db *DB) SearchClasses(f SearchFilter) ([]models.Class, error) {
	var where []string
	var args []any

	if v := strings.TrimSpace(f.Instructor); v != "" {
		where = append(where, `c.instructor LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(v)+"%")
	}
	if v := strings.TrimSpace(f.Date); v != "" {
		where = append(where, `c.date = ?`)
		args = append(args, v)
	}
	if v := strings.TrimSpace(f.DayOfWeek); v != "" {
		where = append(where, `co.day_of_week LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(v)+"%")
	}

	query := `SELECT c.id, c.remote_key, c.course_id, c.course_remote_key, c.date, c.instructor, c.actual_capacity,
		c.slots_available, c.comments, c.status, c.created_at, c.synced_at
		FROM classes c JOIN courses co ON co.id = c.course_id`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY c.date, c.id`

	return db.queryClasses(query, args...)
}

// ClassExistsForCourseOnDate reports whether the course already has a class on date
func (db *DB) ClassExistsForCourseOnDate(courseID int64, date string) (bool, error) {
	var exists bool
	err := db.conn.QueryRow(`SELECT EXISTS(SELECT 1 FROM classes WHERE course_id = ? AND date = ?)`, courseID, date).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check class for course %d on %s: %w", courseID, date, err)
	}
	return exists, nil
}

// UpdateClass writes all editable fields. The row drops back to
// key-assigned until the remote write confirms.
func (db *DB) UpdateClass(c *models.Class) error {
	if err := c.Validate(); err != nil {
		return err
	}
	return db.withWriteLock(func() error {
		res, err := db.conn.Exec(`
			UPDATE classes SET course_id = ?, course_remote_key = ?, date = ?, instructor = ?, actual_capacity = ?,
				slots_available = ?, comments = ?, status = ?, synced_at = NULL
			WHERE id = ?
		`, c.CourseID, c.CourseRemoteKey, c.Date, c.Instructor, c.ActualCapacity,
			c.SlotsAvailable, c.Comments, string(c.Status), c.ID)
		if err != nil {
			return fmt.Errorf("update class %d: %w", c.ID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("class %d: %w", c.ID, ErrNotFound)
		}
		c.SyncedAt = nil
		return nil
	})
}

// DeleteClass removes a class and returns its remote key ("" if never synced)
func (db *DB) DeleteClass(id int64) (string, error) {
	var key string
	err := db.withTx(func(tx *sql.Tx) error {
		var remoteKey sql.NullString
		err := tx.QueryRow(`SELECT remote_key FROM classes WHERE id = ?`, id).Scan(&remoteKey)
		if err == sql.ErrNoRows {
			return fmt.Errorf("class %d: %w", id, ErrNotFound)
		}
		if err != nil {
			return err
		}
		key = remoteKey.String

		if _, err := tx.Exec(`DELETE FROM classes WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete class %d: %w", id, err)
		}
		return nil
	})
	return key, err
}

// SetClassRemoteKeys writes back the class's own remote key and its parent's key
func (db *DB) SetClassRemoteKeys(id int64, key, courseKey string) error {
	return db.withWriteLock(func() error {
		res, err := db.conn.Exec(`UPDATE classes SET remote_key = ?, course_remote_key = ? WHERE id = ?`,
			nullString(key), courseKey, id)
		if err != nil {
			return fmt.Errorf("set class %d remote key: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("class %d: %w", id, ErrNotFound)
		}
		return nil
	})
}

// MarkClassSynced records that the remote node now mirrors the local row
func (db *DB) MarkClassSynced(id int64, at time.Time) error {
	return db.withWriteLock(func() error {
		_, err := db.conn.Exec(`UPDATE classes SET synced_at = ? WHERE id = ?`, at, id)
		return err
	})
}

// CountClasses returns the number of local classes
func (db *DB) CountClasses() (int, error) {
	var n int
	err := db.conn.QueryRow(`SELECT COUNT(*) FROM classes`).Scan(&n)
	return n, err
}
