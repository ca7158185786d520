package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"

	"github.com/acadmail/triaged/internal/config"
	"github.com/acadmail/triaged/internal/email"
	"github.com/acadmail/triaged/internal/store"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup logger
	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting mail triage daemon", "provider", cfg.Provider)

	// Connect to database
	db, err := store.New(cfg.DatabasePath)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx := context.Background()
	if err := db.Migrate(ctx); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	logger.Info("database migrations completed")

	provider, err := cfg.ProviderConfig()
	if err != nil {
		logger.Error("failed to resolve provider", "error", err)
		os.Exit(1)
	}

	client, err := email.NewClient(provider, cfg.Credentials(), logger, email.Options{
		Lookback:    cfg.FetchLookback,
		DialTimeout: cfg.DialTimeout,
		Retry:       email.DefaultRetryPolicy(logger),
	})
	if err != nil {
		logger.Error("failed to create mail client", "error", err)
		os.Exit(1)
	}

	// Graceful shutdown
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh

		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	logger.Info("polling for unanswered mail", "interval", cfg.PollInterval)
	run(ctx, cfg, client, db, logger)

	client.Disconnect()
	logger.Info("daemon stopped")
}

// run polls the mailbox until the context is cancelled. Each cycle
// fetches unanswered messages and records them in the activity ledger
// for the triage pipeline to pick up.
func run(ctx context.Context, cfg *config.Config, client *email.Client, db *store.DB, logger *slog.Logger) {
	ticker := time.NewTicker(cfg.PollInterval)
	defer ticker.Stop()

	for {
		pollOnce(ctx, cfg, client, db, logger)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func pollOnce(ctx context.Context, cfg *config.Config, client *email.Client, db *store.DB, logger *slog.Logger) {
	emails := client.FetchUnanswered(ctx, cfg.MaxResults)
	for _, em := range emails {
		logger.Info("unanswered message",
			"thread_id", em.ThreadID, "sender", em.Sender, "subject", em.Subject)

		err := db.RecordActivity(ctx, &store.Activity{
			ThreadID:  em.ThreadID,
			MessageID: em.MessageID,
			Sender:    em.Sender,
			Subject:   em.Subject,
			Action:    store.ActionFetched,
		})
		if err != nil {
			logger.Error("failed to record activity", "error", err)
		}
	}

	status := client.Status(ctx)
	logger.Debug("connection status",
		"connected", status.Connected,
		"imap", status.IMAPAvailable,
		"smtp", status.SMTPAvailable)
}

func setupLogger(level, format string) *slog.Logger {
	var handler slog.Handler
	logLevel := parseLevel(level)

	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: logLevel,
		})
	} else {
		// Pretty colored output for console
		handler = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      logLevel,
			TimeFormat: time.DateTime,
		})
	}

	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
