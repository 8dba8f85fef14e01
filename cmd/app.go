package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/marcus/yoga/internal/config"
	"github.com/marcus/yoga/internal/db"
	"github.com/marcus/yoga/internal/live"
	"github.com/marcus/yoga/internal/logging"
	"github.com/marcus/yoga/internal/output"
	"github.com/marcus/yoga/internal/remote"
	"github.com/marcus/yoga/internal/repository"
	"github.com/marcus/yoga/internal/schedule"
	"github.com/marcus/yoga/internal/sync"
	"github.com/marcus/yoga/internal/workers"
)

const startupPingTimeout = 3 * time.Second

// app holds everything a command needs. One is built per invocation and
// closed when the command returns.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	db     *db.DB
	store  remote.Store
	prefs  *config.Prefs
	pool   *workers.Pool
	hub    *live.Hub
	sync   *sync.Reconciler

	courses  *repository.CourseRepository
	classes  *repository.ClassRepository
	bookings *repository.BookingRepository
	users    *repository.UserRepository
	sched    *schedule.Scheduler

	logCloser io.Closer
}

// openApp loads config, opens the local database and connects the remote
// store. Until the first import has completed, it is attempted here on a
// best-effort basis.
func openApp(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		output.Error("config: %v", err)
		return nil, err
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.Log.Level = lvl
	}

	logger, closer := logging.New(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	})
	slog.SetDefault(logger)

	database, err := db.Open(getBaseDir())
	if err != nil {
		closer.Close()
		output.Error("%v", err)
		return nil, err
	}

	store, err := newStore(cmd.Context(), cfg)
	if err != nil {
		database.Close()
		closer.Close()
		output.Error("remote: %v", err)
		return nil, err
	}

	a := &app{
		cfg:       cfg,
		logger:    logger,
		db:        database,
		store:     store,
		prefs:     config.OpenPrefs(getBaseDir()),
		pool:      workers.New(cfg.Workers, logger),
		hub:       live.NewHub(logger),
		logCloser: closer,
	}
	a.sync = sync.New(a.db, a.store, a.prefs, logger)
	a.courses = repository.NewCourseRepository(a.db, a.sync, a.pool, a.hub, logger)
	a.classes = repository.NewClassRepository(a.db, a.sync, a.pool, a.hub, logger)
	a.bookings = repository.NewBookingRepository(a.store, logger)
	a.users = repository.NewUserRepository(a.store, logger)
	a.sched = schedule.New(a.courses, a.classes, logger)

	a.importIfNeeded(cmd.Context())
	return a, nil
}

// newStore builds the remote store selected by cfg
func newStore(ctx context.Context, cfg *config.Config) (remote.Store, error) {
	switch cfg.Remote.Backend {
	case config.BackendFirebase:
		return remote.NewFirebaseStore(ctx, remote.FirebaseConfig{
			DatabaseURL:     cfg.Remote.URL,
			CredentialsFile: cfg.Remote.CredentialsFile,
		})
	case config.BackendMemory:
		return remote.NewMemoryStore(), nil
	default:
		s := remote.NewRESTStore(cfg.Remote.URL, cfg.Remote.AuthToken)
		s.HTTP.Timeout = cfg.Timeout()
		return s, nil
	}
}

// importIfNeeded runs the initial import once. Failures are logged and the
// command carries on with local data. The in-memory backend never imports.
func (a *app) importIfNeeded(ctx context.Context) {
	if a.cfg.Remote.Backend == config.BackendMemory {
		return
	}
	done, err := a.prefs.InitialSyncComplete()
	if err != nil {
		a.logger.Warn("read prefs", "err", err)
		return
	}
	if done {
		return
	}

	pingCtx, cancel := context.WithTimeout(ctx, startupPingTimeout)
	err = a.store.Ping(pingCtx)
	cancel()
	if err != nil {
		a.logger.Warn("remote unreachable; initial import postponed", "err", err)
		return
	}
	if _, err := a.sync.InitialImport(ctx); err != nil {
		a.logger.Warn("initial import not completed; working offline", "err", err)
		return
	}
	a.hub.Notify(repository.TopicCourses, repository.TopicClasses)
}

// Close drains pending writes before closing the database
func (a *app) Close() {
	a.pool.Close()
	a.hub.Close()
	if err := a.db.Close(); err != nil {
		a.logger.Warn("close db", "err", err)
	}
	a.logCloser.Close()
}

// first subscribes, waits for the initial snapshot and cancels
func first[T any](ctx context.Context, subscribe func(func(live.Snapshot[T])) *live.Subscription) (T, error) {
	ch := make(chan live.Snapshot[T], 1)
	sub := subscribe(func(s live.Snapshot[T]) {
		select {
		case ch <- s:
		default:
		}
	})
	defer sub.Cancel()

	select {
	case s := <-ch:
		return s.Value, s.Err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// finish reports the outcome of a write task. A write that only failed to
// reach the remote store is a warning, not a command failure.
func finish(ctx context.Context, task *workers.Task, what string) error {
	err := task.Wait(ctx)
	switch {
	case err == nil:
		return nil
	case repository.IsRemoteOnly(err):
		warnRemote(what, err)
		return nil
	default:
		output.Error("%s: %v", what, err)
		return err
	}
}

func warnRemote(what string, err error) {
	output.Warning("%s saved locally but not synced: %v", what, unwrapRemote(err))
	output.Warning("run 'yoga sync push' once the remote store is reachable")
}

// unwrapRemote strips the ErrRemoteSync prefix for display
func unwrapRemote(err error) string {
	return strings.TrimPrefix(err.Error(), repository.ErrRemoteSync.Error()+": ")
}

// parseID accepts "12" or "#12"
func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(strings.TrimSpace(arg), "#"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", arg)
	}
	return id, nil
}

// notFound prints a not-found error in the requested format
func notFound(jsonOut bool, what string, err error) error {
	if !errors.Is(err, db.ErrNotFound) && !errors.Is(err, remote.ErrNotFound) {
		if jsonOut {
			output.JSONError(output.ErrCodeDatabaseError, err.Error())
		} else {
			output.Error("%v", err)
		}
		return err
	}
	msg := fmt.Sprintf("%s not found", what)
	if jsonOut {
		output.JSONError(output.ErrCodeNotFound, msg)
	} else {
		output.Error("%s", msg)
	}
	return err
}
