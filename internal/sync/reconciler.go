// Package sync keeps the local database and the remote store in agreement:
// a one-time bulk import on first connectivity, write-through of every local
// mutation, and the mapping between remote keys and local ids.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	gosync "sync"
	"sync/atomic"
	"time"

	"github.com/marcus/yoga/internal/db"
	"github.com/marcus/yoga/internal/models"
	"github.com/marcus/yoga/internal/remote"
)

// ErrSweepRunning is returned when an import or push is already in progress
var ErrSweepRunning = errors.New("sync: sweep already running")

// Prefs persists the "initial sync complete" flag
type Prefs interface {
	InitialSyncComplete() (bool, error)
	SetInitialSyncComplete(done bool) error
}

// Reconciler moves data between the local database and a remote store
type Reconciler struct {
	local  *db.DB
	remote remote.Store
	prefs  Prefs
	logger *slog.Logger
	now    func() time.Time

	sweeping atomic.Bool
	parentMu gosync.Mutex // serializes publishing of unkeyed parent courses
}

// New creates a Reconciler. A nil logger uses slog.Default().
func New(local *db.DB, store remote.Store, prefs Prefs, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		local:  local,
		remote: store,
		prefs:  prefs,
		logger: logger.With("component", "sync"),
		now:    time.Now,
	}
}

// ImportResult summarises one import sweep
type ImportResult struct {
	Skipped         bool // initial sync was already complete
	CoursesImported int
	ClassesImported int
	ClassesExisting int // already present locally (same remote key)
	ClassesDropped  int // parent course unknown or record invalid
	DroppedKeys     []string
}

func (res ImportResult) stats() db.ImportStats {
	return db.ImportStats{
		CoursesImported: res.CoursesImported,
		ClassesImported: res.ClassesImported,
		ClassesExisting: res.ClassesExisting,
		ClassesDropped:  res.ClassesDropped,
	}
}

func (r *Reconciler) begin() error {
	if !r.sweeping.CompareAndSwap(false, true) {
		return ErrSweepRunning
	}
	return nil
}

func (r *Reconciler) end() {
	r.sweeping.Store(false)
}

// InitialImport copies the remote courses and classes into the local
// database once. When the persisted flag is already set it does nothing.
// The flag is only set after both phases finish, and both phases are
// idempotent, so an interrupted import is safely re-run.
func (r *Reconciler) InitialImport(ctx context.Context) (ImportResult, error) {
	if err := r.begin(); err != nil {
		return ImportResult{}, err
	}
	defer r.end()

	done, err := r.prefs.InitialSyncComplete()
	if err != nil {
		return ImportResult{}, fmt.Errorf("read sync flag: %w", err)
	}
	if done {
		return ImportResult{Skipped: true}, nil
	}
	return r.importAll(ctx)
}

// Reimport runs the import regardless of the flag
func (r *Reconciler) Reimport(ctx context.Context) (ImportResult, error) {
	if err := r.begin(); err != nil {
		return ImportResult{}, err
	}
	defer r.end()
	return r.importAll(ctx)
}

func (r *Reconciler) importAll(ctx context.Context) (ImportResult, error) {
	var res ImportResult
	start := r.now()

	courseIDs, err := r.importCourses(ctx, &res)
	if err != nil {
		return res, err
	}
	if err := r.importClasses(ctx, courseIDs, &res); err != nil {
		return res, err
	}

	if err := r.prefs.SetInitialSyncComplete(true); err != nil {
		return res, fmt.Errorf("set sync flag: %w", err)
	}
	if err := r.local.RecordImport(res.stats(), r.now()); err != nil {
		r.logger.Warn("record import stats", "err", err)
	}

	r.logger.Info("initial import complete",
		"courses", res.CoursesImported,
		"classes", res.ClassesImported,
		"existing", res.ClassesExisting,
		"dropped", res.ClassesDropped,
		"dur", time.Since(start).String(),
	)
	return res, nil
}

// importCourses upserts every remote course and returns remote key -> local id
func (r *Reconciler) importCourses(ctx context.Context, res *ImportResult) (map[string]int64, error) {
	nodes, err := r.remote.GetAll(ctx, remote.Courses)
	if err != nil {
		return nil, fmt.Errorf("fetch courses: %w", err)
	}
	records := remote.DecodeAll[CourseRecord](nodes, func(key string, err error) {
		r.logger.Warn("skip undecodable course", "key", key, "err", err)
	})

	ids := make(map[string]int64, len(records))
	for _, key := range sortedKeys(records) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		course := records[key].Course(key)
		if err := course.Validate(); err != nil {
			r.logger.Warn("skip invalid course", "key", key, "err", err)
			continue
		}
		if err := r.local.UpsertCourseByRemoteKey(course); err != nil {
			return nil, fmt.Errorf("import course %s: %w", key, err)
		}
		ids[key] = course.ID
		res.CoursesImported++
	}
	return ids, nil
}

// importClasses inserts remote classes, resolving the parent course by its
// remote key. Classes whose parent is unknown are dropped.
func (r *Reconciler) importClasses(ctx context.Context, courseIDs map[string]int64, res *ImportResult) error {
	nodes, err := r.remote.GetAll(ctx, remote.Classes)
	if err != nil {
		return fmt.Errorf("fetch classes: %w", err)
	}
	records := remote.DecodeAll[ClassRecord](nodes, func(key string, err error) {
		r.logger.Warn("skip undecodable class", "key", key, "err", err)
		res.ClassesDropped++
		res.DroppedKeys = append(res.DroppedKeys, key)
	})

	drop := func(key, reason string, args ...any) {
		r.logger.Warn("drop class", append([]any{"key", key, "reason", reason}, args...)...)
		res.ClassesDropped++
		res.DroppedKeys = append(res.DroppedKeys, key)
	}

	for _, key := range sortedKeys(records) {
		if err := ctx.Err(); err != nil {
			return err
		}
		class := records[key].Class(key)

		courseID, ok := courseIDs[class.CourseRemoteKey]
		if !ok && class.CourseRemoteKey != "" {
			parent, err := r.local.FindCourseByRemoteKey(class.CourseRemoteKey)
			switch {
			case err == nil:
				courseID, ok = parent.ID, true
			case !errors.Is(err, db.ErrNotFound):
				return fmt.Errorf("resolve parent of class %s: %w", key, err)
			}
		}
		if !ok {
			drop(key, "parent course not found", "course_key", class.CourseRemoteKey)
			continue
		}
		class.CourseID = courseID

		if err := class.Validate(); err != nil {
			drop(key, "invalid record", "err", err)
			continue
		}
		inserted, err := r.local.InsertImportedClass(class)
		if err != nil {
			return fmt.Errorf("import class %s: %w", key, err)
		}
		if inserted {
			res.ClassesImported++
		} else {
			res.ClassesExisting++
		}
	}
	return nil
}

// AssignCourseKey requests a remote key for a course that has none and
// writes it back to the local row.
func (r *Reconciler) AssignCourseKey(ctx context.Context, c *models.Course) error {
	if c.RemoteKey != "" {
		return nil
	}
	key, err := r.remote.NewKey(ctx, remote.Courses)
	if err != nil {
		return fmt.Errorf("new course key: %w", err)
	}
	stored, err := r.local.ClaimCourseRemoteKey(c.ID, key)
	if err != nil {
		return err
	}
	c.RemoteKey = stored
	if stored != key {
		r.logger.Debug("course already keyed", "id", c.ID, "key", stored, "discarded", key)
		return nil
	}
	r.logger.Debug("course key assigned", "id", c.ID, "key", key)
	return nil
}

// PublishCourse mirrors a course to the remote store, assigning a key first
// when needed. The local row is marked synced only after the remote write.
func (r *Reconciler) PublishCourse(ctx context.Context, c *models.Course) error {
	if err := r.AssignCourseKey(ctx, c); err != nil {
		return err
	}
	if err := r.remote.Set(ctx, remote.Courses, c.RemoteKey, NewCourseRecord(c)); err != nil {
		return fmt.Errorf("publish course %d: %w", c.ID, err)
	}
	now := r.now()
	if err := r.local.MarkCourseSynced(c.ID, now); err != nil {
		return err
	}
	c.SyncedAt = &now
	return nil
}

// AssignClassKey requests a remote key for a class that has none and
// refreshes courseFirebaseKey from the current parent. The parent course is
// published first if it has no key yet, so courseFirebaseKey is never empty.
func (r *Reconciler) AssignClassKey(ctx context.Context, c *models.Class) error {
	parent, err := r.keyedParent(ctx, c.CourseID)
	if err != nil {
		return err
	}
	if c.RemoteKey != "" && c.CourseRemoteKey == parent.RemoteKey {
		return nil
	}

	key := c.RemoteKey
	if key == "" {
		if key, err = r.remote.NewKey(ctx, remote.Classes); err != nil {
			return fmt.Errorf("new class key: %w", err)
		}
	}
	if err := r.local.SetClassRemoteKeys(c.ID, key, parent.RemoteKey); err != nil {
		return err
	}
	c.RemoteKey = key
	c.CourseRemoteKey = parent.RemoteKey
	r.logger.Debug("class key assigned", "id", c.ID, "key", key, "course_key", parent.RemoteKey)
	return nil
}

// keyedParent loads a class's course, publishing it first when it has no
// remote key. Concurrent callers for the same course publish it once.
func (r *Reconciler) keyedParent(ctx context.Context, courseID int64) (*models.Course, error) {
	r.parentMu.Lock()
	defer r.parentMu.Unlock()

	parent, err := r.local.GetCourse(courseID)
	if err != nil {
		return nil, fmt.Errorf("load parent course: %w", err)
	}
	if parent.RemoteKey == "" {
		if err := r.PublishCourse(ctx, parent); err != nil {
			return nil, fmt.Errorf("publish parent course: %w", err)
		}
	}
	return parent, nil
}

// PublishClass mirrors a class to the remote store
func (r *Reconciler) PublishClass(ctx context.Context, c *models.Class) error {
	if err := r.AssignClassKey(ctx, c); err != nil {
		return err
	}
	if err := r.remote.Set(ctx, remote.Classes, c.RemoteKey, NewClassRecord(c)); err != nil {
		return fmt.Errorf("publish class %d: %w", c.ID, err)
	}
	now := r.now()
	if err := r.local.MarkClassSynced(c.ID, now); err != nil {
		return err
	}
	c.SyncedAt = &now
	return nil
}

// RemoveCourse removes the remote nodes of a deleted course. The store does
// not cascade, so each child class node is removed individually first.
// Every removal is attempted; failures are joined.
func (r *Reconciler) RemoveCourse(ctx context.Context, courseKey string, childKeys []string) error {
	var errs []error
	for _, key := range childKeys {
		if err := r.RemoveClass(ctx, key); err != nil {
			errs = append(errs, err)
		}
	}
	if courseKey != "" {
		if err := r.remove(ctx, remote.Courses, courseKey); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RemoveClass removes a class node. An empty key (never synced) is a no-op.
func (r *Reconciler) RemoveClass(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	return r.remove(ctx, remote.Classes, key)
}

func (r *Reconciler) remove(ctx context.Context, collection, key string) error {
	err := r.remote.Remove(ctx, collection, key)
	if err != nil && !errors.Is(err, remote.ErrNotFound) {
		return fmt.Errorf("remove %s/%s: %w", collection, key, err)
	}
	return nil
}

// PushResult summarises a PushPending sweep
type PushResult struct {
	Courses int
	Classes int
	Failed  int
}

// PushPending publishes every local row whose latest state has not reached
// the remote store. Each row is attempted once; failures are counted and
// joined into the returned error.
func (r *Reconciler) PushPending(ctx context.Context) (PushResult, error) {
	var res PushResult
	if err := r.begin(); err != nil {
		return res, err
	}
	defer r.end()

	var errs []error

	courses, err := r.local.ListUnsyncedCourses()
	if err != nil {
		return res, fmt.Errorf("list pending courses: %w", err)
	}
	for i := range courses {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := r.PublishCourse(ctx, &courses[i]); err != nil {
			res.Failed++
			errs = append(errs, err)
			continue
		}
		res.Courses++
	}

	classes, err := r.local.ListUnsyncedClasses()
	if err != nil {
		return res, fmt.Errorf("list pending classes: %w", err)
	}
	for i := range classes {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := r.PublishClass(ctx, &classes[i]); err != nil {
			res.Failed++
			errs = append(errs, err)
			continue
		}
		res.Classes++
	}

	if res.Courses+res.Classes+res.Failed > 0 {
		r.logger.Info("push pending", "courses", res.Courses, "classes", res.Classes, "failed", res.Failed)
	}
	return res, errors.Join(errs...)
}

// WatchConnectivity polls the remote until it answers, then runs
// InitialImport. It returns after the first import attempt that is not
// skipped by a concurrent sweep, or when ctx is done.
func (r *Reconciler) WatchConnectivity(ctx context.Context, interval time.Duration) (ImportResult, error) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := r.remote.Ping(ctx); err == nil {
			res, err := r.InitialImport(ctx)
			if !errors.Is(err, ErrSweepRunning) {
				return res, err
			}
		} else {
			r.logger.Debug("remote unreachable", "err", err)
		}

		select {
		case <-ctx.Done():
			return ImportResult{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Status reports local bookkeeping plus remote reachability
type Status struct {
	InitialSyncComplete bool
	Local               *db.SyncState
	Online              bool
	RemoteErr           error
}

// Status gathers the current sync status. ctx bounds the remote ping.
func (r *Reconciler) Status(ctx context.Context) (*Status, error) {
	done, err := r.prefs.InitialSyncComplete()
	if err != nil {
		return nil, fmt.Errorf("read sync flag: %w", err)
	}
	state, err := r.local.GetSyncState()
	if err != nil {
		return nil, fmt.Errorf("read sync state: %w", err)
	}
	st := &Status{InitialSyncComplete: done, Local: state}
	if err := r.remote.Ping(ctx); err != nil {
		st.RemoteErr = err
	} else {
		st.Online = true
	}
	return st, nil
}

func sortedKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
