// Package repository is the data access layer used by the CLI. Writes run on
// the worker pool: the local row is written first, subscribers are notified,
// and the change is then mirrored to the remote store. Reads of local data
// are live subscriptions that re-run whenever a write touches their table.
package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/marcus/yoga/internal/db"
	"github.com/marcus/yoga/internal/live"
	"github.com/marcus/yoga/internal/sync"
	"github.com/marcus/yoga/internal/workers"
)

// Topics announced on the hub after local writes
const (
	TopicCourses = "courses"
	TopicClasses = "classes"
)

// ErrRemoteSync marks a task whose local write succeeded but whose remote
// mirror failed. The local change is kept; sync push retries it.
var ErrRemoteSync = errors.New("remote sync failed")

// IsRemoteOnly reports whether err only concerns the remote mirror
func IsRemoteOnly(err error) bool {
	return err != nil && errors.Is(err, ErrRemoteSync)
}

// base holds the dependencies shared by the local-data repositories
type base struct {
	db     *db.DB
	sync   *sync.Reconciler
	pool   *workers.Pool
	hub    *live.Hub
	logger *slog.Logger
}

func newBase(local *db.DB, rec *sync.Reconciler, pool *workers.Pool, hub *live.Hub, logger *slog.Logger) base {
	if logger == nil {
		logger = slog.Default()
	}
	return base{db: local, sync: rec, pool: pool, hub: hub, logger: logger}
}

// write submits a local mutation followed by its remote mirror. A local
// failure fails the task and skips the remote step.
func (b base) write(ctx context.Context, name string, topics []string, local func() error, mirror func(ctx context.Context) error) *workers.Task {
	return b.pool.Submit(name, func() error {
		if err := local(); err != nil {
			return err
		}
		b.hub.Notify(topics...)

		if b.sync == nil || mirror == nil {
			return nil
		}
		if err := mirror(ctx); err != nil {
			b.logger.Warn("remote mirror failed", "op", name, "err", err)
			return fmt.Errorf("%w: %w", ErrRemoteSync, err)
		}
		return nil
	})
}
