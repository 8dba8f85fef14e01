package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/marcus/yoga/internal/logging"
	"github.com/marcus/yoga/internal/remotesrv"
)

func main() {
	cfg := remotesrv.LoadConfig()

	closer := logging.Setup(logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		File:   os.Getenv("YOGA_REMOTE_LOG_FILE"),
	})
	defer closer.Close()

	store, err := remotesrv.OpenNodeStore(cfg.DBPath)
	if err != nil {
		slog.Error("open node db", "err", err)
		os.Exit(1)
	}
	defer store.Close()

	srv := remotesrv.NewServer(cfg, store)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Start(); err != nil {
		slog.Error("start server", "err", err)
		os.Exit(1)
	}
	slog.Info("server started", "addr", srv.Addr(), "db", cfg.DBPath, "auth", cfg.AuthToken != "")

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "err", err)
	}
}
