package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/dukerupert/heirloom/internal/backup"
	"github.com/dukerupert/heirloom/internal/config"
	"github.com/dukerupert/heirloom/internal/database"
	"github.com/dukerupert/heirloom/internal/logging"
	"github.com/dukerupert/heirloom/internal/server"
	"github.com/dukerupert/heirloom/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		logger.Error("failed to open database", "path", cfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	backups := backup.NewManager(cfg.S3, cfg.Backup, db, store.NewBackupStore(db), logger.With("component", "backup"))

	// heirloom restore <backup-id> <dest-path>
	if len(os.Args) > 1 && os.Args[1] == "restore" {
		if err := restore(backups, os.Args[2:]); err != nil {
			logger.Error("restore failed", "error", err)
			os.Exit(1)
		}
		return
	}

	srv := server.New(db, cfg, logger)

	// No WriteTimeout: /ws connections stay open for the life of the session.
	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go runCleanup(ctx, srv, logger)
	if backups.Enabled() {
		logger.Info("scheduled backups enabled", "interval", cfg.Backup.Interval, "retention", cfg.Backup.Retention)
		go backups.Loop(ctx)
	}

	// Metrics get their own listener so they can be bound to a private
	// interface. Nothing is served when no address is configured.
	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           srv.MetricsHandler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("metrics listening", "addr", metricsServer.Addr)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server error", "error", err)
				os.Exit(1)
			}
		}()
	}

	go func() {
		logger.Info("heirloom starting", "addr", httpServer.Addr, "base_url", cfg.BaseURL)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics shutdown error", "error", err)
		}
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}

// runCleanup purges expired sessions, expired invitations and stale rate
// limit buckets every 15 minutes until ctx is cancelled.
func runCleanup(ctx context.Context, srv *server.Server, logger *slog.Logger) {
	ticker := time.NewTicker(15 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n, err := srv.SessionStore().DeleteExpired(ctx); err != nil {
				logger.Error("cleanup expired sessions", "error", err)
			} else if n > 0 {
				logger.Info("cleaned up expired sessions", "count", n)
			}
			if n, err := srv.InvitationStore().DeleteExpired(ctx); err != nil {
				logger.Error("cleanup expired invitations", "error", err)
			} else if n > 0 {
				logger.Info("cleaned up expired invitations", "count", n)
			}
			srv.RateLimiter().Cleanup()
		case <-ctx.Done():
			return
		}
	}
}

func restore(backups *backup.Manager, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: heirloom restore <backup-id> <dest-path>")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid backup id %q", args[0])
	}
	if err := backups.Restore(context.Background(), id, args[1]); err != nil {
		return err
	}
	slog.Info("backup restored", "id", id, "path", args[1])
	return nil
}
