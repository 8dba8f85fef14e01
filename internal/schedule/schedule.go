// Package schedule turns an admin's request into dated class occurrences of
// a course, optionally repeating weekly.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/marcus/yoga/internal/models"
	"github.com/marcus/yoga/internal/repository"
)

// ErrDuplicateClass is returned when a course already has a class on one of
// the requested dates. Nothing is inserted in that case.
var ErrDuplicateClass = errors.New("class already exists for this course on that date")

// MaxRepeatWeeks caps how far ahead one request may schedule
const MaxRepeatWeeks = 52

// Request describes the classes to create
type Request struct {
	CourseID       int64
	Date           string // first occurrence, YYYY-MM-DD
	Instructor     string
	CustomCapacity int // <= 0 uses the course capacity
	RepeatWeeks    int // <= 0 means a single class
	Comments       string
	Status         models.ClassStatus
}

// Plan is the set of classes a request would create
type Plan struct {
	Course   *models.Course
	Classes  []models.Class
	Warnings []string
}

// Result reports what Create or Edit stored. RemoteErr is set when the
// local writes succeeded but mirroring some of them failed.
type Result struct {
	Classes   []models.Class
	Warnings  []string
	RemoteErr error
}

// Scheduler creates and edits classes through the repositories
type Scheduler struct {
	courses *repository.CourseRepository
	classes *repository.ClassRepository
	logger  *slog.Logger
}

// New returns a Scheduler
func New(courses *repository.CourseRepository, classes *repository.ClassRepository, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{courses: courses, classes: classes, logger: logger}
}

// Plan validates req and computes its occurrences, seven days apart. Every
// date is checked for an existing class before anything is returned.
func (s *Scheduler) Plan(ctx context.Context, req Request) (*Plan, error) {
	start, err := time.Parse(models.DateLayout, req.Date)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q (want YYYY-MM-DD)", req.Date)
	}
	if strings.TrimSpace(req.Instructor) == "" {
		return nil, fmt.Errorf("instructor is required")
	}
	weeks := req.RepeatWeeks
	if weeks <= 0 {
		weeks = 1
	}
	if weeks > MaxRepeatWeeks {
		return nil, fmt.Errorf("repeat weeks %d exceeds %d", weeks, MaxRepeatWeeks)
	}
	status := req.Status
	if status == "" {
		status = models.StatusScheduled
	}
	if !models.IsValidStatus(status) {
		return nil, fmt.Errorf("invalid status: %q", status)
	}

	course, err := s.courses.ByID(req.CourseID)
	if err != nil {
		return nil, fmt.Errorf("course %d: %w", req.CourseID, err)
	}
	capacity := models.ResolveCapacity(req.CustomCapacity, course)

	plan := &Plan{Course: course}
	for i := 0; i < weeks; i++ {
		date := start.AddDate(0, 0, 7*i).Format(models.DateLayout)
		exists, err := s.classes.ExistsForCourseOnDate(ctx, course.ID, date)
		if err != nil {
			return nil, fmt.Errorf("check %s: %w", date, err)
		}
		if exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateClass, date)
		}
		plan.Classes = append(plan.Classes, models.Class{
			CourseID:       course.ID,
			Date:           date,
			Instructor:     strings.TrimSpace(req.Instructor),
			ActualCapacity: capacity,
			SlotsAvailable: capacity,
			Comments:       req.Comments,
			Status:         status,
		})
	}
	if w := dayWarning(course, start); w != "" {
		plan.Warnings = append(plan.Warnings, w)
	}
	return plan, nil
}

// Create plans req and inserts every occurrence in date order. Inserts run
// one at a time so a parent course is keyed at most once.
func (s *Scheduler) Create(ctx context.Context, req Request) (*Result, error) {
	plan, err := s.Plan(ctx, req)
	if err != nil {
		return nil, err
	}
	for _, w := range plan.Warnings {
		s.logger.Warn(w, "course", plan.Course.ID)
	}

	res := &Result{Warnings: plan.Warnings}
	var remoteErrs []error
	for i := range plan.Classes {
		c := &plan.Classes[i]
		err := s.classes.Insert(ctx, c).Wait(ctx)
		switch {
		case err == nil:
		case repository.IsRemoteOnly(err):
			remoteErrs = append(remoteErrs, err)
		default:
			return res, fmt.Errorf("create class on %s: %w", c.Date, err)
		}
		res.Classes = append(res.Classes, *c)
	}
	res.RemoteErr = errors.Join(remoteErrs...)
	return res, nil
}

// Edit stores changes to an existing class. There is no duplicate check,
// and slots are clamped to the capacity.
func (s *Scheduler) Edit(ctx context.Context, c *models.Class) (*Result, error) {
	c.ClampSlots()
	res := &Result{}
	if course, err := s.courses.ByID(c.CourseID); err == nil {
		if d, err := c.ParsedDate(); err == nil {
			if w := dayWarning(course, d); w != "" {
				res.Warnings = append(res.Warnings, w)
			}
		}
	}

	err := s.classes.Update(ctx, c).Wait(ctx)
	switch {
	case err == nil:
	case repository.IsRemoteOnly(err):
		res.RemoteErr = err
	default:
		return nil, err
	}
	res.Classes = []models.Class{*c}
	return res, nil
}

// dayWarning flags a first date that is not on the course's weekday. The
// class is still created.
func dayWarning(course *models.Course, date time.Time) string {
	if date.Weekday().String() == course.DayOfWeek {
		return ""
	}
	return fmt.Sprintf("%s is a %s but the course runs on %s",
		date.Format(models.DateLayout), date.Weekday(), course.DayOfWeek)
}
