// Package main is the entry point for the social graph server.
//
// main stays minimal. Its job is to:
//  1. Read configuration (env vars, optionally from .env)
//  2. Create dependencies (logger, store, event sink)
//  3. Start the relay and the HTTP server, and stop both on SIGINT/SIGTERM
//
// All actual logic lives in internal/.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/sakif/botnet/internal/config"
	"github.com/sakif/botnet/internal/events"
	"github.com/sakif/botnet/internal/repository"
	"github.com/sakif/botnet/internal/repository/memory"
	sqliteRepo "github.com/sakif/botnet/internal/repository/sqlite"
	"github.com/sakif/botnet/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Log levels (from least to most severe): Debug → Info → Warn → Error
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	store, err := openStore(cfg, logger)
	if err != nil {
		logger.Error("failed to open store", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer store.Close()

	srv, err := server.New(cfg, store, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// ctx is cancelled on Ctrl+C or SIGTERM; both the relay and the HTTP
	// server watch it.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sink := newSink(cfg, logger)
	defer sink.Close()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		events.NewRelay(store, sink, cfg.OutboxPollInterval, logger).Run(ctx)
	}()

	// Start() blocks until ctx is cancelled
	err = srv.Start(ctx)
	stop()
	wg.Wait()

	if err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func openStore(cfg *config.Config, logger *slog.Logger) (repository.Store, error) {
	if cfg.StoreDriver == config.DriverMemory {
		logger.Warn("using the in-memory store; nothing survives a restart")
		return memory.New(), nil
	}

	// os.MkdirAll creates all parent directories if needed (like `mkdir -p`).
	if dir := filepath.Dir(cfg.DBPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	logger.Info("opening database", slog.String("path", cfg.DBPath))
	return sqliteRepo.New(cfg.DBPath)
}

func newSink(cfg *config.Config, logger *slog.Logger) events.Sink {
	if len(cfg.KafkaBrokers) == 0 {
		logger.Info("KAFKA_BROKERS not set; edge events go to the log")
		return events.NewLogSink(logger)
	}
	logger.Info("publishing edge events to kafka",
		slog.Any("brokers", cfg.KafkaBrokers),
		slog.String("topic", cfg.KafkaTopic),
	)
	return events.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic)
}
