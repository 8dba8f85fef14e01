package db

// SchemaVersion is the current schema version.
// Increment this when adding migrations.
const SchemaVersion = 3

const schema = `
-- Courses: recurring weekly offerings
CREATE TABLE IF NOT EXISTS courses (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    remote_key TEXT UNIQUE,
    day_of_week TEXT NOT NULL,
    time TEXT NOT NULL,
    capacity INTEGER NOT NULL,
    duration INTEGER NOT NULL,
    price REAL NOT NULL DEFAULT 0,
    class_type TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    instructor TEXT NOT NULL DEFAULT '',
    room TEXT NOT NULL DEFAULT '',
    difficulty TEXT NOT NULL DEFAULT '',
    equipment TEXT NOT NULL DEFAULT '',
    age_group TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    synced_at DATETIME
);

-- Classes: dated occurrences of a course
CREATE TABLE IF NOT EXISTS classes (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    remote_key TEXT UNIQUE,
    course_id INTEGER NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
    course_remote_key TEXT NOT NULL DEFAULT '',
    date TEXT NOT NULL,
    instructor TEXT NOT NULL,
    actual_capacity INTEGER NOT NULL,
    slots_available INTEGER NOT NULL,
    comments TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL DEFAULT 'Scheduled',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    synced_at DATETIME,
    CHECK (slots_available >= 0 AND slots_available <= actual_capacity)
);

CREATE INDEX IF NOT EXISTS idx_classes_course_date ON classes(course_id, date);
CREATE INDEX IF NOT EXISTS idx_classes_date ON classes(date);
CREATE INDEX IF NOT EXISTS idx_classes_instructor ON classes(instructor);

-- Schema version tracking
CREATE TABLE IF NOT EXISTS schema_info (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`

// Migration defines a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
	// SkipIfColumn names a table/column pair; when the column already exists
	// (fresh databases created from the current schema) the SQL is skipped.
	SkipIfColumn [2]string
}

// Migrations is the list of all database migrations in order
var Migrations = []Migration{
	// Version 1 is the initial schema - no migration needed
	{
		Version:      2,
		Description:  "Track remote write confirmation on courses and classes",
		SkipIfColumn: [2]string{"courses", "synced_at"},
		SQL: `
ALTER TABLE courses ADD COLUMN synced_at DATETIME;
ALTER TABLE classes ADD COLUMN synced_at DATETIME;
`,
	},
	{
		Version:     3,
		Description: "Add sync_state table for initial import bookkeeping",
		SQL: `
CREATE TABLE IF NOT EXISTS sync_state (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    last_import_at DATETIME,
    courses_imported INTEGER NOT NULL DEFAULT 0,
    classes_imported INTEGER NOT NULL DEFAULT 0,
    classes_existing INTEGER NOT NULL DEFAULT 0,
    classes_dropped INTEGER NOT NULL DEFAULT 0
);
`,
	},
}
