package repository

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/marcus/yoga/internal/db"
	"github.com/marcus/yoga/internal/live"
	"github.com/marcus/yoga/internal/models"
	"github.com/marcus/yoga/internal/sync"
	"github.com/marcus/yoga/internal/workers"
)

// CourseRepository reads and writes courses
type CourseRepository struct {
	base
}

// NewCourseRepository wires a course repository. rec may be nil to keep
// writes local.
func NewCourseRepository(local *db.DB, rec *sync.Reconciler, pool *workers.Pool, hub *live.Hub, logger *slog.Logger) *CourseRepository {
	return &CourseRepository{base: newBase(local, rec, pool, hub, logger)}
}

// All delivers every course, ordered by weekday then time, now and after
// each course change.
func (r *CourseRepository) All(deliver func(live.Snapshot[[]models.Course])) *live.Subscription {
	return live.Subscribe(r.hub, []string{TopicCourses}, r.db.ListCourses, deliver)
}

// ByID returns one course
func (r *CourseRepository) ByID(id int64) (*models.Course, error) {
	return r.db.GetCourse(id)
}

// Insert validates and stores c, then publishes it. c.ID and c.RemoteKey
// are filled in by the task; read them only after it is done.
func (r *CourseRepository) Insert(ctx context.Context, c *models.Course) *workers.Task {
	if err := c.Validate(); err != nil {
		return workers.Completed("course insert", err)
	}
	return r.write(ctx, "course insert", []string{TopicCourses},
		func() error { return r.db.CreateCourse(c) },
		func(ctx context.Context) error { return r.sync.PublishCourse(ctx, c) },
	)
}

// Update stores the edited course and republishes it
func (r *CourseRepository) Update(ctx context.Context, c *models.Course) *workers.Task {
	if err := c.Validate(); err != nil {
		return workers.Completed("course update", err)
	}
	return r.write(ctx, "course update", []string{TopicCourses, TopicClasses},
		func() error { return r.db.UpdateCourse(c) },
		func(ctx context.Context) error {
			stored, err := r.db.GetCourse(c.ID)
			if err != nil {
				return err
			}
			return r.sync.PublishCourse(ctx, stored)
		},
	)
}

// Delete removes a course and its classes locally, then removes the course
// node and each class node from the remote store.
func (r *CourseRepository) Delete(ctx context.Context, id int64) *workers.Task {
	var courseKey string
	var childKeys []string
	return r.write(ctx, "course delete", []string{TopicCourses, TopicClasses},
		func() error {
			c, err := r.db.GetCourse(id)
			if err != nil {
				return fmt.Errorf("course %d: %w", id, err)
			}
			courseKey = c.RemoteKey
			childKeys, err = r.db.DeleteCourse(id)
			return err
		},
		func(ctx context.Context) error { return r.sync.RemoveCourse(ctx, courseKey, childKeys) },
	)
}
