package models

import (
	"testing"
	"time"
)

func TestCourseFormatting(t *testing.T) {
	c := Course{DayOfWeek: "Monday", Time: "18:00", Capacity: 20, Duration: 60, Price: 12.50, ClassType: "Hatha"}

	if got := c.FormattedPrice(); got != "£12.50" {
		t.Errorf("FormattedPrice: got %q, want %q", got, "£12.50")
	}
	if got := c.FormattedDuration(); got != "60 minutes" {
		t.Errorf("FormattedDuration: got %q, want %q", got, "60 minutes")
	}
	if err := c.Validate(); err != nil {
		t.Errorf("Validate: unexpected error %v", err)
	}
}

func TestCourseValidate(t *testing.T) {
	base := Course{DayOfWeek: "Monday", Time: "18:00", Capacity: 20, Duration: 60, Price: 12.50, ClassType: "Hatha"}

	tests := []struct {
		name   string
		mutate func(*Course)
	}{
		{"bad day", func(c *Course) { c.DayOfWeek = "Funday" }},
		{"bad time", func(c *Course) { c.Time = "6pm" }},
		{"hour out of range", func(c *Course) { c.Time = "24:00" }},
		{"zero capacity", func(c *Course) { c.Capacity = 0 }},
		{"zero duration", func(c *Course) { c.Duration = 0 }},
		{"negative price", func(c *Course) { c.Price = -1 }},
		{"blank type", func(c *Course) { c.ClassType = "  " }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base
			tt.mutate(&c)
			if err := c.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestNormalizeDay(t *testing.T) {
	tests := map[string]string{
		"mon":       "Monday",
		"MONDAY":    "Monday",
		"Tue":       "Tuesday",
		"wednesday": "Wednesday",
		"su":        "su",
		"xyz":       "xyz",
	}
	for in, want := range tests {
		if got := NormalizeDay(in); got != want {
			t.Errorf("NormalizeDay(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeStatus(t *testing.T) {
	tests := map[string]ClassStatus{
		"scheduled": StatusScheduled,
		"Active":    StatusActive,
		"complete":  StatusCompleted,
		"canceled":  StatusCancelled,
		"CANCELLED": StatusCancelled,
	}
	for in, want := range tests {
		if got := NormalizeStatus(in); got != want {
			t.Errorf("NormalizeStatus(%q) = %q, want %q", in, got, want)
		}
	}
	if IsValidStatus(NormalizeStatus("postponed")) {
		t.Error("expected postponed to be invalid")
	}
}

func TestResolveCapacity(t *testing.T) {
	course := &Course{Capacity: 20}

	if got := ResolveCapacity(12, course); got != 12 {
		t.Errorf("custom capacity: got %d, want 12", got)
	}
	if got := ResolveCapacity(0, course); got != 20 {
		t.Errorf("zero custom: got %d, want 20", got)
	}
	if got := ResolveCapacity(-3, course); got != 20 {
		t.Errorf("negative custom: got %d, want 20", got)
	}
	if got := ResolveCapacity(0, nil); got != 0 {
		t.Errorf("nil course: got %d, want 0", got)
	}
}

func TestClassValidate(t *testing.T) {
	c := Class{Date: "2026-10-19", Instructor: "Asha", ActualCapacity: 10, SlotsAvailable: 10, Status: StatusScheduled}
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	c.SlotsAvailable = 11
	if err := c.Validate(); err == nil {
		t.Error("expected error when slots exceed capacity")
	}

	c.ClampSlots()
	if c.SlotsAvailable != 10 {
		t.Errorf("ClampSlots: got %d, want 10", c.SlotsAvailable)
	}

	c.Date = "19/10/2026"
	if err := c.Validate(); err == nil {
		t.Error("expected error for bad date format")
	}
}

func TestClassFallsOn(t *testing.T) {
	c := Class{Date: "2026-10-19"} // a Monday
	if !c.FallsOn("Monday") {
		t.Error("expected 2026-10-19 to fall on Monday")
	}
	if c.FallsOn("Tuesday") {
		t.Error("did not expect 2026-10-19 to fall on Tuesday")
	}
}

func TestSyncState(t *testing.T) {
	now := time.Now()

	c := Course{}
	if c.SyncState() != SyncUnsynced {
		t.Errorf("no key: got %s", c.SyncState())
	}
	c.RemoteKey = "-Nabc"
	if c.SyncState() != SyncKeyAssigned {
		t.Errorf("key only: got %s", c.SyncState())
	}
	c.SyncedAt = &now
	if c.SyncState() != SyncSynced {
		t.Errorf("key + synced: got %s", c.SyncState())
	}
}
