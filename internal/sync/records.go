package sync

import (
	"time"

	"github.com/marcus/yoga/internal/models"
)

// CourseRecord is the remote shape of a course. Each record carries its own
// key so a node can be matched back to its local row.
type CourseRecord struct {
	FirebaseKey string  `json:"firebaseKey"`
	DayOfWeek   string  `json:"dayOfWeek"`
	Time        string  `json:"time"`
	Capacity    int     `json:"capacity"`
	Duration    int     `json:"duration"`
	Price       float64 `json:"price"`
	ClassType   string  `json:"classType"`
	Description string  `json:"description,omitempty"`
	Instructor  string  `json:"instructor,omitempty"`
	Room        string  `json:"room,omitempty"`
	Difficulty  string  `json:"difficulty,omitempty"`
	Equipment   string  `json:"equipment,omitempty"`
	AgeGroup    string  `json:"ageGroup,omitempty"`
	CreatedAt   int64   `json:"createdAt,omitempty"` // epoch millis
}

// ClassRecord is the remote shape of a class
type ClassRecord struct {
	FirebaseKey       string `json:"firebaseKey"`
	CourseFirebaseKey string `json:"courseFirebaseKey"`
	Date              string `json:"date"`
	Instructor        string `json:"instructor"`
	ActualCapacity    int    `json:"actualCapacity"`
	SlotsAvailable    int    `json:"slotsAvailable"`
	Comments          string `json:"comments,omitempty"`
	Status            string `json:"status"`
	CreatedAt         int64  `json:"createdAt,omitempty"`
}

// BookingRecord is the remote shape of a booking, written by the customer app
type BookingRecord struct {
	BookingID        string `json:"bookingId"`
	ClassFirebaseKey string `json:"classFirebaseKey"`
	UserID           string `json:"userId"`
	Status           string `json:"status,omitempty"`
	BookingTime      int64  `json:"bookingTime"`
}

// UserRecord is the remote shape of a customer profile
type UserRecord struct {
	UID         string `json:"uid"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"name,omitempty"`
	Phone       string `json:"phone,omitempty"`
	CreatedAt   int64  `json:"createdAt,omitempty"`
}

// NewCourseRecord converts a local course for upload
func NewCourseRecord(c *models.Course) CourseRecord {
	return CourseRecord{
		FirebaseKey: c.RemoteKey,
		DayOfWeek:   c.DayOfWeek,
		Time:        c.Time,
		Capacity:    c.Capacity,
		Duration:    c.Duration,
		Price:       c.Price,
		ClassType:   c.ClassType,
		Description: c.Description,
		Instructor:  c.Instructor,
		Room:        c.Room,
		Difficulty:  c.Difficulty,
		Equipment:   c.Equipment,
		AgeGroup:    c.AgeGroup,
		CreatedAt:   millis(c.CreatedAt),
	}
}

// Course converts a downloaded record. key wins over a missing or stale
// firebaseKey field.
func (r CourseRecord) Course(key string) *models.Course {
	return &models.Course{
		RemoteKey:   key,
		DayOfWeek:   models.NormalizeDay(r.DayOfWeek),
		Time:        r.Time,
		Capacity:    r.Capacity,
		Duration:    r.Duration,
		Price:       r.Price,
		ClassType:   r.ClassType,
		Description: r.Description,
		Instructor:  r.Instructor,
		Room:        r.Room,
		Difficulty:  r.Difficulty,
		Equipment:   r.Equipment,
		AgeGroup:    r.AgeGroup,
		CreatedAt:   fromMillis(r.CreatedAt),
	}
}

// NewClassRecord converts a local class for upload
func NewClassRecord(c *models.Class) ClassRecord {
	return ClassRecord{
		FirebaseKey:       c.RemoteKey,
		CourseFirebaseKey: c.CourseRemoteKey,
		Date:              c.Date,
		Instructor:        c.Instructor,
		ActualCapacity:    c.ActualCapacity,
		SlotsAvailable:    c.SlotsAvailable,
		Comments:          c.Comments,
		Status:            string(c.Status),
		CreatedAt:         millis(c.CreatedAt),
	}
}

// Class converts a downloaded record; the caller resolves CourseID
func (r ClassRecord) Class(key string) *models.Class {
	status := models.NormalizeStatus(r.Status)
	if r.Status == "" {
		status = models.StatusScheduled
	}
	return &models.Class{
		RemoteKey:       key,
		CourseRemoteKey: r.CourseFirebaseKey,
		Date:            r.Date,
		Instructor:      r.Instructor,
		ActualCapacity:  r.ActualCapacity,
		SlotsAvailable:  r.SlotsAvailable,
		Comments:        r.Comments,
		Status:          status,
		CreatedAt:       fromMillis(r.CreatedAt),
	}
}

// Booking converts a downloaded booking record
func (r BookingRecord) Booking(key string) models.Booking {
	return models.Booking{
		Key:      key,
		ClassKey: r.ClassFirebaseKey,
		UserID:   r.UserID,
		Status:   r.Status,
		BookedAt: fromMillis(r.BookingTime),
	}
}

// User converts a downloaded user record
func (r UserRecord) User(key string) models.User {
	uid := r.UID
	if uid == "" {
		uid = key
	}
	return models.User{
		UID:         uid,
		Email:       r.Email,
		DisplayName: r.DisplayName,
		Phone:       r.Phone,
		CreatedAt:   fromMillis(r.CreatedAt),
	}
}

func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
