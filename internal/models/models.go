package models

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// ClassStatus represents the lifecycle state of a scheduled class
type ClassStatus string

const (
	StatusScheduled ClassStatus = "Scheduled"
	StatusActive    ClassStatus = "Active"
	StatusCompleted ClassStatus = "Completed"
	StatusCancelled ClassStatus = "Cancelled"
)

// SyncState describes how far a local row has progressed towards the remote store
type SyncState string

const (
	SyncUnsynced    SyncState = "unsynced"     // local only, no remote key yet
	SyncKeyAssigned SyncState = "key_assigned" // remote key requested, remote write pending or failed
	SyncSynced      SyncState = "synced"       // remote node written
)

// DateLayout is the on-disk and on-wire format for class dates
const DateLayout = "2006-01-02"

// DaysOfWeek lists valid course days in calendar order
var DaysOfWeek = []string{
	"Monday",
	"Tuesday",
	"Wednesday",
	"Thursday",
	"Friday",
	"Saturday",
	"Sunday",
}

var timeOfDay = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

// Course is a recurring weekly yoga offering
type Course struct {
	ID          int64      `json:"id"`
	RemoteKey   string     `json:"remote_key,omitempty"`
	DayOfWeek   string     `json:"day_of_week"`
	Time        string     `json:"time"`
	Capacity    int        `json:"capacity"`
	Duration    int        `json:"duration"`
	Price       float64    `json:"price"`
	ClassType   string     `json:"class_type"`
	Description string     `json:"description,omitempty"`
	Instructor  string     `json:"instructor,omitempty"`
	Room        string     `json:"room,omitempty"`
	Difficulty  string     `json:"difficulty,omitempty"`
	Equipment   string     `json:"equipment,omitempty"`
	AgeGroup    string     `json:"age_group,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	SyncedAt    *time.Time `json:"synced_at,omitempty"`
}

// Class is a single dated occurrence of a course
type Class struct {
	ID              int64       `json:"id"`
	RemoteKey       string      `json:"remote_key,omitempty"`
	CourseID        int64       `json:"course_id"`
	CourseRemoteKey string      `json:"course_remote_key,omitempty"`
	Date            string      `json:"date"`
	Instructor      string      `json:"instructor"`
	ActualCapacity  int         `json:"actual_capacity"`
	SlotsAvailable  int         `json:"slots_available"`
	Comments        string      `json:"comments,omitempty"`
	Status          ClassStatus `json:"status"`
	CreatedAt       time.Time   `json:"created_at"`
	SyncedAt        *time.Time  `json:"synced_at,omitempty"`
}

// Booking is a remote-only reservation of a class slot by a user
type Booking struct {
	Key      string    `json:"key"`
	ClassKey string    `json:"class_key"`
	UserID   string    `json:"user_id"`
	Status   string    `json:"status,omitempty"`
	BookedAt time.Time `json:"booked_at"`
}

// User is a remote-only identity record, read-only for admins
type User struct {
	UID         string    `json:"uid"`
	Email       string    `json:"email,omitempty"`
	DisplayName string    `json:"display_name,omitempty"`
	Phone       string    `json:"phone,omitempty"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
}

// NormalizeDay maps "mon", "MONDAY", "Monday" to "Monday".
// Returns the input unchanged if no day matches.
func NormalizeDay(day string) string {
	d := strings.ToLower(strings.TrimSpace(day))
	if len(d) < 3 {
		return day
	}
	for _, name := range DaysOfWeek {
		if strings.HasPrefix(strings.ToLower(name), d) {
			return name
		}
	}
	return day
}

// IsValidDay checks if a day name is one of DaysOfWeek
func IsValidDay(day string) bool {
	for _, name := range DaysOfWeek {
		if day == name {
			return true
		}
	}
	return false
}

// NormalizeStatus maps case-insensitive status input to a ClassStatus.
// "canceled" is accepted as an alias for Cancelled.
func NormalizeStatus(s string) ClassStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "scheduled":
		return StatusScheduled
	case "active":
		return StatusActive
	case "completed", "complete":
		return StatusCompleted
	case "cancelled", "canceled":
		return StatusCancelled
	default:
		return ClassStatus(s)
	}
}

// IsValidStatus checks if a status is valid
func IsValidStatus(s ClassStatus) bool {
	switch s {
	case StatusScheduled, StatusActive, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// FormattedPrice renders the course price in pounds, e.g. "£12.50"
func (c Course) FormattedPrice() string {
	return fmt.Sprintf("£%.2f", c.Price)
}

// FormattedDuration renders the course length, e.g. "60 minutes"
func (c Course) FormattedDuration() string {
	return fmt.Sprintf("%d minutes", c.Duration)
}

// SyncState reports the course's position in the local -> remote lifecycle
func (c Course) SyncState() SyncState {
	return syncStateOf(c.RemoteKey, c.SyncedAt)
}

// Validate checks the fields an admin must supply for a course
func (c Course) Validate() error {
	if !IsValidDay(c.DayOfWeek) {
		return fmt.Errorf("invalid day of week: %q", c.DayOfWeek)
	}
	if !timeOfDay.MatchString(c.Time) {
		return fmt.Errorf("invalid time %q (want HH:MM)", c.Time)
	}
	if c.Capacity <= 0 {
		return fmt.Errorf("capacity must be positive, got %d", c.Capacity)
	}
	if c.Duration <= 0 {
		return fmt.Errorf("duration must be positive, got %d", c.Duration)
	}
	if c.Price < 0 {
		return fmt.Errorf("price cannot be negative, got %.2f", c.Price)
	}
	if strings.TrimSpace(c.ClassType) == "" {
		return fmt.Errorf("class type is required")
	}
	return nil
}

// ResolveCapacity returns custom when positive, else the course default capacity
func ResolveCapacity(custom int, course *Course) int {
	if custom > 0 {
		return custom
	}
	if course == nil {
		return 0
	}
	return course.Capacity
}

// SyncState reports the class's position in the local -> remote lifecycle
func (c Class) SyncState() SyncState {
	return syncStateOf(c.RemoteKey, c.SyncedAt)
}

// ParsedDate returns the class date as a time.Time in UTC
func (c Class) ParsedDate() (time.Time, error) {
	return time.Parse(DateLayout, c.Date)
}

// Validate checks class invariants: valid date and status, and
// 0 <= slots available <= actual capacity
func (c Class) Validate() error {
	if _, err := c.ParsedDate(); err != nil {
		return fmt.Errorf("invalid date %q (want YYYY-MM-DD)", c.Date)
	}
	if strings.TrimSpace(c.Instructor) == "" {
		return fmt.Errorf("instructor is required")
	}
	if c.ActualCapacity <= 0 {
		return fmt.Errorf("capacity must be positive, got %d", c.ActualCapacity)
	}
	if c.SlotsAvailable < 0 || c.SlotsAvailable > c.ActualCapacity {
		return fmt.Errorf("slots available %d outside 0..%d", c.SlotsAvailable, c.ActualCapacity)
	}
	if !IsValidStatus(c.Status) {
		return fmt.Errorf("invalid status: %q", c.Status)
	}
	return nil
}

// ClampSlots keeps SlotsAvailable within 0..ActualCapacity
func (c *Class) ClampSlots() {
	if c.SlotsAvailable > c.ActualCapacity {
		c.SlotsAvailable = c.ActualCapacity
	}
	if c.SlotsAvailable < 0 {
		c.SlotsAvailable = 0
	}
}

// FallsOn reports whether the class date is on the given weekday name
func (c Class) FallsOn(day string) bool {
	t, err := c.ParsedDate()
	if err != nil {
		return false
	}
	return t.Weekday().String() == day
}

func syncStateOf(remoteKey string, syncedAt *time.Time) SyncState {
	switch {
	case remoteKey == "":
		return SyncUnsynced
	case syncedAt == nil:
		return SyncKeyAssigned
	default:
		return SyncSynced
	}
}
