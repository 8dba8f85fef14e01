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

// ClassRepository reads and writes class occurrences
type ClassRepository struct {
	base
}

// NewClassRepository wires a class repository. rec may be nil to keep
// writes local.
func NewClassRepository(local *db.DB, rec *sync.Reconciler, pool *workers.Pool, hub *live.Hub, logger *slog.Logger) *ClassRepository {
	return &ClassRepository{base: newBase(local, rec, pool, hub, logger)}
}

// All delivers every class ordered by date
func (r *ClassRepository) All(deliver func(live.Snapshot[[]models.Class])) *live.Subscription {
	return live.Subscribe(r.hub, []string{TopicClasses}, r.db.ListClasses, deliver)
}

// ForCourse delivers the classes of one course
func (r *ClassRepository) ForCourse(courseID int64, deliver func(live.Snapshot[[]models.Class])) *live.Subscription {
	return live.Subscribe(r.hub, []string{TopicClasses}, func() ([]models.Class, error) {
		return r.db.ListClassesForCourse(courseID)
	}, deliver)
}

// Search delivers classes matching f. An empty filter matches everything.
func (r *ClassRepository) Search(f db.SearchFilter, deliver func(live.Snapshot[[]models.Class])) *live.Subscription {
	return live.Subscribe(r.hub, []string{TopicClasses}, func() ([]models.Class, error) {
		return r.db.SearchClasses(f)
	}, deliver)
}

// ByID returns one class
func (r *ClassRepository) ByID(id int64) (*models.Class, error) {
	return r.db.GetClass(id)
}

// ExistsForCourseOnDate runs the duplicate check on the pool and waits for
// its answer.
func (r *ClassRepository) ExistsForCourseOnDate(ctx context.Context, courseID int64, date string) (bool, error) {
	var exists bool
	task := r.pool.Submit("class exists", func() error {
		var err error
		exists, err = r.db.ClassExistsForCourseOnDate(courseID, date)
		return err
	})
	if err := task.Wait(ctx); err != nil {
		return false, err
	}
	return exists, nil
}

// Insert stores c, then publishes it. Slots start at the class capacity
// and an empty status means Scheduled.
func (r *ClassRepository) Insert(ctx context.Context, c *models.Class) *workers.Task {
	return r.write(ctx, "class insert", []string{TopicClasses},
		func() error { return r.db.CreateClass(c) },
		func(ctx context.Context) error { return r.sync.PublishClass(ctx, c) },
	)
}

// Update stores the edited class and republishes it
func (r *ClassRepository) Update(ctx context.Context, c *models.Class) *workers.Task {
	c.ClampSlots()
	if err := c.Validate(); err != nil {
		return workers.Completed("class update", err)
	}
	return r.write(ctx, "class update", []string{TopicClasses},
		func() error { return r.db.UpdateClass(c) },
		func(ctx context.Context) error {
			stored, err := r.db.GetClass(c.ID)
			if err != nil {
				return err
			}
			return r.sync.PublishClass(ctx, stored)
		},
	)
}

// Delete removes a class locally and then its remote node
func (r *ClassRepository) Delete(ctx context.Context, id int64) *workers.Task {
	var key string
	return r.write(ctx, "class delete", []string{TopicClasses},
		func() error {
			var err error
			key, err = r.db.DeleteClass(id)
			if err != nil {
				return fmt.Errorf("class %d: %w", id, err)
			}
			return nil
		},
		func(ctx context.Context) error { return r.sync.RemoveClass(ctx, key) },
	)
}
