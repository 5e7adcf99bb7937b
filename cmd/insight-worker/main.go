package main

import (
	"context"
	"os"
	"os/signal"
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

	logger := log.New(log.Config{Component: log.ComponentInsight})
	log.SetDefault(logger)

	logger.Info("Starting insight-worker")

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
	insights := services.NewInsightService(repo, notifier, clock)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.Info("Smart insight generator configured",
		"interval", cfg.InsightInterval,
		"sqlite_db", cfg.SQLiteDBPath)

	runOnce := func() {
		created, err := insights.RunForAllUsers(ctx)
		if err != nil {
			logger.Error("Insight batch failed", "error", err)
			return
		}
		logger.Info("Insight batch complete", "notifications", created)
	}

	ticker := time.NewTicker(cfg.InsightInterval)
	defer ticker.Stop()

	logger.Info("Running initial insight batch...")
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
	logger.Info("Insight-worker shutdown complete")
}
