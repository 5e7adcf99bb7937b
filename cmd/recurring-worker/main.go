package main

import (
	"context"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"duit/internal/amqp"
	"duit/internal/config"
	"duit/internal/log"
	"duit/internal/services"
	"duit/internal/storage"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := log.New(log.Config{Component: log.ComponentRecurring})
	log.SetDefault(logger)

	logger.Info("Starting recurring-worker")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	// Notification events are best-effort; without AMQP the worker still
	// persists everything.
	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without events", "error", err)
			amqpClient = nil
		} else {
			defer amqpClient.Close()
			logger.Info("AMQP client initialized")
		}
	} else {
		logger.Info("AMQP disabled - notification events will not be published")
	}

	clock := services.SystemClock{}
	notifier := services.NewNotificationService(repo, amqpClient, clock)
	budgets := services.NewBudgetService(repo, repo, repo, notifier, clock, cfg.BudgetThreshold)
	runner := services.NewRecurringRunner(repo, repo, budgets, notifier, clock, cfg.RuleWorkers)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.Info("Recurring rule processor configured",
		"interval", cfg.RecurringInterval,
		"workers", cfg.RuleWorkers,
		"sqlite_db", cfg.SQLiteDBPath)

	// running guards against overlapping batches when one pass outlives
	// the tick interval.
	var running atomic.Bool

	runOnce := func() {
		if !running.CompareAndSwap(false, true) {
			logger.Warn("Previous batch still running, skipping this tick")
			return
		}
		defer running.Store(false)

		stats, err := runner.Run(ctx)
		if err != nil {
			logger.Error("Recurring batch failed", "error", err)
			return
		}
		logger.Info("Recurring batch complete",
			"due", stats.Due,
			"created", stats.Created,
			"expired", stats.Expired,
			"failed", stats.Failed)
	}

	ticker := time.NewTicker(cfg.RecurringInterval)
	defer ticker.Stop()

	logger.Info("Running initial recurring batch...")
	runOnce()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				runOnce()
			}
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	logger.Info("Shutdown signal received", "signal", sig.String())
	cancel()

	// Give an in-flight batch a moment to finish.
	deadline := time.After(5 * time.Second)
	for running.Load() {
		select {
		case <-deadline:
			logger.Warn("Shutdown timeout reached with batch still running")
			return
		case <-time.After(100 * time.Millisecond):
		}
	}
	logger.Info("Recurring-worker shutdown complete")
}
