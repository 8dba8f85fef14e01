package dateparse

import (
	"testing"
	"time"
)

// Fixed reference time: Wednesday, 2026-02-18 12:00:00 UTC
var testNow = time.Date(2026, 2, 18, 12, 0, 0, 0, time.UTC)

func TestParseDateFrom(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		// exact
		{"2026-03-01", "2026-03-01"},
		{"  2025-12-31 ", "2025-12-31"},
		{"01/03/2026", "2026-03-01"},
		// keywords
		{"today", "2026-02-18"},
		{"TOMORROW", "2026-02-19"},
		{"next-week", "2026-02-23"},
		// relative
		{"+0d", "2026-02-18"},
		{"+10d", "2026-02-28"},
		{"+1w", "2026-02-25"},
		{"+2w", "2026-03-04"},
		// day names advance to the next occurrence
		{"friday", "2026-02-20"},
		{"wed", "2026-02-25"},
		{"Mon", "2026-02-23"},
		// natural language
		{"in 3 days", "2026-02-21"},
	}
	for _, tt := range tests {
		got, err := ParseDateFrom(tt.input, testNow)
		if err != nil {
			t.Errorf("ParseDateFrom(%q): unexpected error: %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseDateFrom(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestParseDateFromErrors(t *testing.T) {
	for _, input := range []string{"", "   ", "+3y", "2026-13-01", "blorp"} {
		if got, err := ParseDateFrom(input, testNow); err == nil {
			t.Errorf("ParseDateFrom(%q) = %q, want error", input, got)
		}
	}
}

func TestWeekday(t *testing.T) {
	tests := []struct {
		input string
		want  time.Weekday
		ok    bool
	}{
		{"Sunday", time.Sunday, true},
		{"sat", time.Saturday, true},
		{"THURS", time.Thursday, true},
		{"th", time.Sunday, false},
		{"someday", time.Sunday, false},
	}
	for _, tt := range tests {
		got, ok := Weekday(tt.input)
		if ok != tt.ok || (ok && got != tt.want) {
			t.Errorf("Weekday(%q) = %v, %v; want %v, %v", tt.input, got, ok, tt.want, tt.ok)
		}
	}
}

func TestNextOn(t *testing.T) {
	tests := []struct {
		day  string
		want string
	}{
		{"Wednesday", "2026-02-18"}, // today counts
		{"Thursday", "2026-02-19"},
		{"Tuesday", "2026-02-24"},
	}
	for _, tt := range tests {
		got, err := NextOn(tt.day, testNow)
		if err != nil {
			t.Fatalf("NextOn(%q): %v", tt.day, err)
		}
		if got != tt.want {
			t.Errorf("NextOn(%q) = %q, want %q", tt.day, got, tt.want)
		}
	}
	if _, err := NextOn("Funday", testNow); err == nil {
		t.Error("expected error for invalid day")
	}
}
