package sync

import (
	"context"
	"encoding/json"
	"errors"
	gosync "sync"
	"testing"
	"time"

	"github.com/marcus/yoga/internal/db"
	"github.com/marcus/yoga/internal/models"
	"github.com/marcus/yoga/internal/remote"
)

type memPrefs struct {
	mu   gosync.Mutex
	done bool
}

func (p *memPrefs) InitialSyncComplete() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done, nil
}

func (p *memPrefs) SetInitialSyncComplete(done bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done = done
	return nil
}

// hookStore lets a test intercept GetAll per collection
type hookStore struct {
	remote.Store
	getAll func(collection string) error
}

func (h *hookStore) GetAll(ctx context.Context, collection string) (map[string]json.RawMessage, error) {
	if h.getAll != nil {
		if err := h.getAll(collection); err != nil {
			return nil, err
		}
	}
	return h.Store.GetAll(ctx, collection)
}

type fixture struct {
	local  *db.DB
	store  *remote.MemoryStore
	prefs  *memPrefs
	rec    *Reconciler
	hooked *hookStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	local, err := db.Initialize(t.TempDir())
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	t.Cleanup(func() { local.Close() })

	store := remote.NewMemoryStore()
	hooked := &hookStore{Store: store}
	prefs := &memPrefs{}
	return &fixture{
		local:  local,
		store:  store,
		prefs:  prefs,
		hooked: hooked,
		rec:    New(local, hooked, prefs, nil),
	}
}

func (f *fixture) seedRemote(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	courses := map[string]CourseRecord{
		"-Ncourse1": {FirebaseKey: "-Ncourse1", DayOfWeek: "Monday", Time: "18:00", Capacity: 20, Duration: 60, Price: 12.5, ClassType: "Hatha"},
		"-Ncourse2": {FirebaseKey: "-Ncourse2", DayOfWeek: "fri", Time: "07:30", Capacity: 10, Duration: 45, Price: 9, ClassType: "Yin"},
	}
	for k, c := range courses {
		if err := f.store.Set(ctx, remote.Courses, k, c); err != nil {
			t.Fatalf("seed course: %v", err)
		}
	}
	classes := map[string]ClassRecord{
		"-Nclass1": {FirebaseKey: "-Nclass1", CourseFirebaseKey: "-Ncourse1", Date: "2026-10-19", Instructor: "Asha", ActualCapacity: 20, SlotsAvailable: 18, Status: "Scheduled"},
		"-Nclass2": {FirebaseKey: "-Nclass2", CourseFirebaseKey: "-Ncourse2", Date: "2026-10-23", Instructor: "Ben", ActualCapacity: 10, SlotsAvailable: 10, Status: "active"},
		"-Norphan": {FirebaseKey: "-Norphan", CourseFirebaseKey: "-Ngone", Date: "2026-10-20", Instructor: "Cara", ActualCapacity: 5, SlotsAvailable: 5},
	}
	for k, c := range classes {
		if err := f.store.Set(ctx, remote.Classes, k, c); err != nil {
			t.Fatalf("seed class: %v", err)
		}
	}
}

func TestInitialImport(t *testing.T) {
	f := newFixture(t)
	f.seedRemote(t)

	res, err := f.rec.InitialImport(context.Background())
	if err != nil {
		t.Fatalf("InitialImport: %v", err)
	}
	if res.CoursesImported != 2 || res.ClassesImported != 2 || res.ClassesDropped != 1 {
		t.Errorf("unexpected result: %+v", res)
	}
	if len(res.DroppedKeys) != 1 || res.DroppedKeys[0] != "-Norphan" {
		t.Errorf("dropped keys: %v", res.DroppedKeys)
	}
	if done, _ := f.prefs.InitialSyncComplete(); !done {
		t.Error("initial sync flag not set")
	}

	course, err := f.local.FindCourseByRemoteKey("-Ncourse2")
	if err != nil {
		t.Fatalf("FindCourseByRemoteKey: %v", err)
	}
	if course.DayOfWeek != "Friday" {
		t.Errorf("day not normalised: %q", course.DayOfWeek)
	}

	classes, err := f.local.ListClassesForCourse(course.ID)
	if err != nil {
		t.Fatalf("ListClassesForCourse: %v", err)
	}
	if len(classes) != 1 {
		t.Fatalf("expected 1 class for course 2, got %d", len(classes))
	}
	c := classes[0]
	if c.RemoteKey != "-Nclass2" || c.Status != models.StatusActive || c.SyncState() != models.SyncSynced {
		t.Errorf("unexpected imported class: %+v", c)
	}

	state, err := f.local.GetSyncState()
	if err != nil {
		t.Fatalf("GetSyncState: %v", err)
	}
	if state.LastImportAt == nil || state.Stats.ClassesDropped != 1 {
		t.Errorf("import not recorded: %+v", state)
	}
}

func TestInitialImportSkippedOnceComplete(t *testing.T) {
	f := newFixture(t)
	f.seedRemote(t)
	f.prefs.SetInitialSyncComplete(true)

	res, err := f.rec.InitialImport(context.Background())
	if err != nil {
		t.Fatalf("InitialImport: %v", err)
	}
	if !res.Skipped {
		t.Error("expected import to be skipped")
	}
	if n, _ := f.local.CountCourses(); n != 0 {
		t.Errorf("no rows should be imported, got %d courses", n)
	}
}

func TestInterruptedImportIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.seedRemote(t)
	ctx := context.Background()

	offline := errors.New("connection reset")
	f.hooked.getAll = func(collection string) error {
		if collection == remote.Classes {
			return offline
		}
		return nil
	}
	if _, err := f.rec.InitialImport(ctx); !errors.Is(err, offline) {
		t.Fatalf("expected interrupted import, got %v", err)
	}
	if done, _ := f.prefs.InitialSyncComplete(); done {
		t.Fatal("flag must stay unset after an interrupted import")
	}
	if n, _ := f.local.CountCourses(); n != 2 {
		t.Fatalf("courses phase should have completed, got %d", n)
	}

	f.hooked.getAll = nil
	res, err := f.rec.InitialImport(ctx)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if res.ClassesImported != 2 {
		t.Errorf("retry classes imported: %d", res.ClassesImported)
	}
	if n, _ := f.local.CountCourses(); n != 2 {
		t.Errorf("retry duplicated courses: %d", n)
	}

	res, err = f.rec.Reimport(ctx)
	if err != nil {
		t.Fatalf("Reimport: %v", err)
	}
	if res.ClassesImported != 0 || res.ClassesExisting != 2 {
		t.Errorf("reimport should find existing classes: %+v", res)
	}
	if n, _ := f.local.CountClasses(); n != 2 {
		t.Errorf("class count after reimport: %d", n)
	}
}

func TestSweepNotReentrant(t *testing.T) {
	f := newFixture(t)
	entered := make(chan struct{})
	release := make(chan struct{})
	f.hooked.getAll = func(collection string) error {
		if collection == remote.Courses {
			close(entered)
			<-release
		}
		return nil
	}

	errc := make(chan error, 1)
	go func() {
		_, err := f.rec.InitialImport(context.Background())
		errc <- err
	}()
	<-entered

	if _, err := f.rec.InitialImport(context.Background()); !errors.Is(err, ErrSweepRunning) {
		t.Errorf("second sweep: got %v, want ErrSweepRunning", err)
	}
	if _, err := f.rec.PushPending(context.Background()); !errors.Is(err, ErrSweepRunning) {
		t.Errorf("push during import: got %v, want ErrSweepRunning", err)
	}

	close(release)
	if err := <-errc; err != nil {
		t.Fatalf("first sweep: %v", err)
	}
}

func newCourse(t *testing.T, local *db.DB) *models.Course {
	t.Helper()
	c := &models.Course{DayOfWeek: "Monday", Time: "18:00", Capacity: 20, Duration: 60, Price: 12.5, ClassType: "Hatha"}
	if err := local.CreateCourse(c); err != nil {
		t.Fatalf("CreateCourse: %v", err)
	}
	return c
}

func newClass(t *testing.T, local *db.DB, courseID int64, date string) *models.Class {
	t.Helper()
	c := &models.Class{CourseID: courseID, Date: date, Instructor: "Asha", ActualCapacity: 15}
	if err := local.CreateClass(c); err != nil {
		t.Fatalf("CreateClass: %v", err)
	}
	return c
}

func TestPublishCourse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := newCourse(t, f.local)

	if c.SyncState() != models.SyncUnsynced {
		t.Fatalf("new course state: %s", c.SyncState())
	}
	if err := f.rec.PublishCourse(ctx, c); err != nil {
		t.Fatalf("PublishCourse: %v", err)
	}
	if c.RemoteKey == "" || c.SyncState() != models.SyncSynced {
		t.Errorf("course not synced: %+v", c)
	}

	var rec CourseRecord
	if err := f.store.Get(ctx, remote.Courses, c.RemoteKey, &rec); err != nil {
		t.Fatalf("remote Get: %v", err)
	}
	if rec.FirebaseKey != c.RemoteKey || rec.ClassType != "Hatha" || rec.Price != 12.5 {
		t.Errorf("unexpected remote record: %+v", rec)
	}

	stored, _ := f.local.GetCourse(c.ID)
	if stored.RemoteKey != c.RemoteKey || stored.SyncState() != models.SyncSynced {
		t.Errorf("local row not updated: %+v", stored)
	}

	key := c.RemoteKey
	c.Price = 14
	f.local.UpdateCourse(c)
	if err := f.rec.PublishCourse(ctx, c); err != nil {
		t.Fatalf("republish: %v", err)
	}
	if c.RemoteKey != key {
		t.Errorf("republish changed key: %s -> %s", key, c.RemoteKey)
	}
	if f.store.Len(remote.Courses) != 1 {
		t.Errorf("expected a single remote course node, got %d", f.store.Len(remote.Courses))
	}
}

func TestPublishClassPublishesParentFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	course := newCourse(t, f.local)
	class := newClass(t, f.local, course.ID, "2026-10-19")

	if err := f.rec.PublishClass(ctx, class); err != nil {
		t.Fatalf("PublishClass: %v", err)
	}

	parent, _ := f.local.GetCourse(course.ID)
	if parent.RemoteKey == "" {
		t.Fatal("parent course was not published")
	}
	if class.CourseRemoteKey != parent.RemoteKey {
		t.Errorf("class parent key %q, want %q", class.CourseRemoteKey, parent.RemoteKey)
	}

	var rec ClassRecord
	if err := f.store.Get(ctx, remote.Classes, class.RemoteKey, &rec); err != nil {
		t.Fatalf("remote Get: %v", err)
	}
	if rec.CourseFirebaseKey != parent.RemoteKey || rec.SlotsAvailable != 15 || rec.Status != "Scheduled" {
		t.Errorf("unexpected remote class: %+v", rec)
	}
}

func TestPublishClassFollowsParentChange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := newCourse(t, f.local)
	second := newCourse(t, f.local)
	class := newClass(t, f.local, first.ID, "2026-10-19")

	if err := f.rec.PublishClass(ctx, class); err != nil {
		t.Fatalf("PublishClass: %v", err)
	}
	key := class.RemoteKey

	class.CourseID = second.ID
	if err := f.local.UpdateClass(class); err != nil {
		t.Fatalf("UpdateClass: %v", err)
	}
	if err := f.rec.PublishClass(ctx, class); err != nil {
		t.Fatalf("republish: %v", err)
	}

	moved, _ := f.local.GetCourse(second.ID)
	if class.RemoteKey != key {
		t.Errorf("class key changed: %s -> %s", key, class.RemoteKey)
	}
	var rec ClassRecord
	if err := f.store.Get(ctx, remote.Classes, key, &rec); err != nil {
		t.Fatalf("remote Get: %v", err)
	}
	if rec.CourseFirebaseKey != moved.RemoteKey {
		t.Errorf("remote parent key %q, want %q", rec.CourseFirebaseKey, moved.RemoteKey)
	}
	stored, _ := f.local.GetClass(class.ID)
	if stored.CourseRemoteKey != moved.RemoteKey {
		t.Errorf("local parent key %q, want %q", stored.CourseRemoteKey, moved.RemoteKey)
	}
}

func TestPublishFailureLeavesKeyAssigned(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := newCourse(t, f.local)

	f.store.FailWrites(errors.New("quota exceeded"))
	if err := f.rec.PublishCourse(ctx, c); err == nil {
		t.Fatal("expected publish to fail")
	}
	stored, _ := f.local.GetCourse(c.ID)
	if stored.SyncState() != models.SyncKeyAssigned {
		t.Errorf("state after failed write: %s", stored.SyncState())
	}

	f.store.FailWrites(nil)
	res, err := f.rec.PushPending(ctx)
	if err != nil {
		t.Fatalf("PushPending: %v", err)
	}
	if res.Courses != 1 || res.Failed != 0 {
		t.Errorf("unexpected push result: %+v", res)
	}
	stored, _ = f.local.GetCourse(c.ID)
	if stored.SyncState() != models.SyncSynced || stored.RemoteKey != c.RemoteKey {
		t.Errorf("push did not reuse the assigned key: %+v", stored)
	}
}

func TestPushPendingCountsFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	course := newCourse(t, f.local)
	newClass(t, f.local, course.ID, "2026-10-19")
	newClass(t, f.local, course.ID, "2026-10-26")

	f.store.SetOffline(true)
	res, err := f.rec.PushPending(ctx)
	if !errors.Is(err, remote.ErrOffline) {
		t.Fatalf("expected ErrOffline, got %v", err)
	}
	if res.Failed != 3 {
		t.Errorf("failed: got %d, want 3", res.Failed)
	}

	f.store.SetOffline(false)
	res, err = f.rec.PushPending(ctx)
	if err != nil {
		t.Fatalf("PushPending: %v", err)
	}
	if res.Courses != 1 || res.Classes != 2 {
		t.Errorf("unexpected push result: %+v", res)
	}
	if f.store.Len(remote.Classes) != 2 {
		t.Errorf("remote classes: %d", f.store.Len(remote.Classes))
	}
}

func TestRemoveCourseLeavesNoOrphans(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	course := newCourse(t, f.local)
	a := newClass(t, f.local, course.ID, "2026-10-19")
	b := newClass(t, f.local, course.ID, "2026-10-26")
	newClass(t, f.local, course.ID, "2026-11-02") // never published

	for _, c := range []*models.Class{a, b} {
		if err := f.rec.PublishClass(ctx, c); err != nil {
			t.Fatalf("PublishClass: %v", err)
		}
	}
	stored, _ := f.local.GetCourse(course.ID)
	if f.store.Len(remote.Classes) != 2 || f.store.Len(remote.Courses) != 1 {
		t.Fatalf("setup: remote classes=%d courses=%d", f.store.Len(remote.Classes), f.store.Len(remote.Courses))
	}

	childKeys, err := f.local.DeleteCourse(course.ID)
	if err != nil {
		t.Fatalf("DeleteCourse: %v", err)
	}
	if err := f.rec.RemoveCourse(ctx, stored.RemoteKey, childKeys); err != nil {
		t.Fatalf("RemoveCourse: %v", err)
	}

	if n := f.store.Len(remote.Classes); n != 0 {
		t.Errorf("orphan class nodes remain: %v", f.store.Keys(remote.Classes))
	}
	if n := f.store.Len(remote.Courses); n != 0 {
		t.Errorf("course node remains: %v", f.store.Keys(remote.Courses))
	}
}

func TestRemoveClassUnsyncedIsNoop(t *testing.T) {
	f := newFixture(t)
	f.store.SetOffline(true)
	if err := f.rec.RemoveClass(context.Background(), ""); err != nil {
		t.Errorf("RemoveClass with empty key: %v", err)
	}
}

func TestWatchConnectivityImportsWhenOnline(t *testing.T) {
	f := newFixture(t)
	f.seedRemote(t)
	f.store.SetOffline(true)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	type result struct {
		res ImportResult
		err error
	}
	done := make(chan result, 1)
	go func() {
		res, err := f.rec.WatchConnectivity(ctx, 5*time.Millisecond)
		done <- result{res, err}
	}()

	time.Sleep(20 * time.Millisecond)
	if n, _ := f.local.CountCourses(); n != 0 {
		t.Fatalf("import ran while offline")
	}
	f.store.SetOffline(false)

	r := <-done
	if r.err != nil {
		t.Fatalf("WatchConnectivity: %v", r.err)
	}
	if r.res.CoursesImported != 2 {
		t.Errorf("courses imported: %d", r.res.CoursesImported)
	}
}

func TestWatchConnectivityCancelled(t *testing.T) {
	f := newFixture(t)
	f.store.SetOffline(true)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := f.rec.WatchConnectivity(ctx, 5*time.Millisecond); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected DeadlineExceeded, got %v", err)
	}
}

func TestStatus(t *testing.T) {
	f := newFixture(t)
	newCourse(t, f.local)

	st, err := f.rec.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !st.Online || st.InitialSyncComplete || st.Local.UnkeyedCourses != 1 {
		t.Errorf("unexpected status: %+v", st)
	}

	f.store.SetOffline(true)
	st, _ = f.rec.Status(context.Background())
	if st.Online || !errors.Is(st.RemoteErr, remote.ErrOffline) {
		t.Errorf("offline status: %+v", st)
	}
}

func TestRecordConversion(t *testing.T) {
	created := time.Date(2026, 10, 17, 9, 30, 0, 0, time.UTC)
	c := &models.Class{RemoteKey: "-Nk", CourseRemoteKey: "-Nc", Date: "2026-10-19", Instructor: "Asha",
		ActualCapacity: 12, SlotsAvailable: 4, Status: models.StatusCancelled, CreatedAt: created}

	rec := NewClassRecord(c)
	data, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var fields map[string]any
	json.Unmarshal(data, &fields)
	for _, f := range []string{"firebaseKey", "courseFirebaseKey", "actualCapacity", "slotsAvailable", "createdAt"} {
		if _, ok := fields[f]; !ok {
			t.Errorf("remote record missing %q: %s", f, data)
		}
	}

	back := rec.Class("-Nk")
	if !back.CreatedAt.Equal(created) || back.Status != models.StatusCancelled || back.SlotsAvailable != 4 {
		t.Errorf("conversion lost data: %+v", back)
	}

	u := UserRecord{Email: "a@b.c"}.User("uid-7")
	if u.UID != "uid-7" {
		t.Errorf("user uid should fall back to node key, got %q", u.UID)
	}
}
