package output

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/marcus/yoga/internal/models"
)

// capture redirects Stdout and Stderr for the duration of the test
func capture(t *testing.T) (stdout, stderr *bytes.Buffer) {
	t.Helper()
	stdout, stderr = &bytes.Buffer{}, &bytes.Buffer{}
	oldOut, oldErr := Stdout, Stderr
	Stdout, Stderr = stdout, stderr
	t.Cleanup(func() { Stdout, Stderr = oldOut, oldErr })
	return stdout, stderr
}

func TestFormatTimeAgo(t *testing.T) {
	tests := []struct {
		ago  time.Duration
		want string
	}{
		{0, "just now"},
		{59 * time.Second, "just now"},
		{2 * time.Minute, "2m ago"},
		{5 * time.Hour, "5h ago"},
		{3 * 24 * time.Hour, "3d ago"},
	}
	for _, tt := range tests {
		if got := FormatTimeAgo(time.Now().Add(-tt.ago)); got != tt.want {
			t.Errorf("FormatTimeAgo(-%v) = %q, want %q", tt.ago, got, tt.want)
		}
	}

	old := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	if got := FormatTimeAgo(old); got != "2025-01-02" {
		t.Errorf("old date: got %q", got)
	}
}

func TestMessagesGoToTheRightStream(t *testing.T) {
	stdout, stderr := capture(t)

	Success("saved %d", 3)
	Info("plain")
	Warning("careful")
	Error("broke: %s", "disk")

	if out := stdout.String(); !strings.Contains(out, "saved 3") || !strings.Contains(out, "plain") {
		t.Errorf("stdout: %q", out)
	}
	errOut := stderr.String()
	if !strings.Contains(errOut, "Warning: careful") || !strings.Contains(errOut, "ERROR: broke: disk") {
		t.Errorf("stderr: %q", errOut)
	}
}

func TestJSONErrorEscapes(t *testing.T) {
	stdout, _ := capture(t)
	JSONError(ErrCodeInvalidInput, `bad "date"`)

	want := `{"error":{"code":"invalid_input","message":"bad \"date\""}}`
	if got := strings.TrimSpace(stdout.String()); got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestFormatCourseShort(t *testing.T) {
	c := &models.Course{ID: 3, DayOfWeek: "Wednesday", Time: "18:30", Capacity: 12, Duration: 60, Price: 10, ClassType: "Vinyasa", Instructor: "Ana"}
	got := FormatCourseShort(c)
	for _, want := range []string{"#3", "Wednesday 18:30", "Vinyasa", "60 minutes", "£10.00", "cap 12", "Ana", "unsynced"} {
		if !strings.Contains(got, want) {
			t.Errorf("FormatCourseShort missing %q in %q", want, got)
		}
	}
}

func TestFormatCourseLong(t *testing.T) {
	now := time.Now()
	c := &models.Course{ID: 1, RemoteKey: "-Nabc", SyncedAt: &now, DayOfWeek: "Monday", Time: "07:00", Capacity: 8,
		Duration: 45, Price: 8.5, ClassType: "Yin", Room: "Studio B", Description: "Slow and deep."}
	classes := []models.Class{{ID: 9, Date: "2026-11-02", Instructor: "Ben", ActualCapacity: 8, SlotsAvailable: 0, Status: models.StatusScheduled}}

	got := FormatCourseLong(c, classes)
	for _, want := range []string{"#1 Yin, Monday 07:00", "Room: Studio B", "synced", "-Nabc", "Slow and deep.", "CLASSES:", "#9", "0/8 free"} {
		if !strings.Contains(got, want) {
			t.Errorf("FormatCourseLong missing %q in:\n%s", want, got)
		}
	}
	if strings.Contains(got, "Difficulty") {
		t.Error("empty fields should be omitted")
	}
}

func TestFormatClass(t *testing.T) {
	c := &models.Class{ID: 7, Date: "2026-11-04", Instructor: "Ana", ActualCapacity: 12, SlotsAvailable: 8,
		Status: models.StatusCancelled, Comments: "Heating broken"}
	course := &models.Course{ID: 3, ClassType: "Vinyasa", DayOfWeek: "Wednesday", Time: "18:30"}

	short := FormatClassShort(c, course)
	for _, want := range []string{"#7", "2026-11-04", "Ana", "8/12 free", "[Cancelled]", "Vinyasa 18:30", "unsynced"} {
		if !strings.Contains(short, want) {
			t.Errorf("FormatClassShort missing %q in %q", want, short)
		}
	}

	bookings := []models.Booking{{Key: "-b1", UserID: "u1", ClassKey: "-c1", BookedAt: time.Date(2026, 11, 1, 9, 30, 0, 0, time.UTC)}}
	long := FormatClassLong(c, course, bookings)
	for _, want := range []string{"#7 2026-11-04 with Ana", "Course: #3 Vinyasa", "Heating broken", "BOOKINGS (1):", "-b1", "2026-11-01 09:30"} {
		if !strings.Contains(long, want) {
			t.Errorf("FormatClassLong missing %q in:\n%s", want, long)
		}
	}
	if strings.Contains(FormatClassLong(c, nil, nil), "BOOKINGS") {
		t.Error("nil bookings should omit the section")
	}
}

func TestFormatUser(t *testing.T) {
	got := FormatUser(models.User{UID: "u1", Email: "a@example.com"})
	if !strings.Contains(got, "(no name)") || !strings.Contains(got, "a@example.com") || !strings.Contains(got, "u1") {
		t.Errorf("FormatUser: %q", got)
	}
}

func TestTerminalWidthFallback(t *testing.T) {
	capture(t)
	t.Setenv("COLUMNS", "")
	if got := TerminalWidth(100); got != 100 {
		t.Errorf("got %d, want fallback 100", got)
	}
	t.Setenv("COLUMNS", "132")
	if got := TerminalWidth(100); got != 132 {
		t.Errorf("got %d, want COLUMNS 132", got)
	}
	if IsTerminal() {
		t.Error("a buffer is not a terminal")
	}
}
