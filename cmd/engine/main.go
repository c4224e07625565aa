package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/cp25sy5-modjot/expense-engine/internal/adapters/httpapi"
	"github.com/cp25sy5-modjot/expense-engine/internal/adapters/inference"
	"github.com/cp25sy5-modjot/expense-engine/internal/adapters/journal"
	"github.com/cp25sy5-modjot/expense-engine/internal/adapters/kv"
	"github.com/cp25sy5-modjot/expense-engine/internal/config"
	"github.com/cp25sy5-modjot/expense-engine/internal/correlator"
	"github.com/cp25sy5-modjot/expense-engine/internal/events"
	"github.com/cp25sy5-modjot/expense-engine/internal/ports"
	"github.com/cp25sy5-modjot/expense-engine/internal/store"
	"github.com/cp25sy5-modjot/expense-engine/internal/syncqueue"
	"github.com/cp25sy5-modjot/expense-engine/internal/usecase"
)

func main() {
	cfg := config.Load()

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger().Level(level)

	ctx := context.Background()

	// Adapters (infrastructure)
	backend, closeBackend, err := newBackend(cfg)
	if err != nil {
		log.Fatalf("kv backend error: %v", err)
	}
	journalTransport := journal.NewHTTPTransport(cfg.JournalURL)
	channel, closeChannel, err := newChannel(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("inference channel error: %v", err)
	}

	// Engine
	bus := events.NewBus(logger)
	recordStore := store.New(backend, bus, logger)
	queue := syncqueue.New(journalTransport, backend, bus, logger, syncqueue.Config{})
	requests := correlator.New(channel, logger)

	// Application services (use cases)
	expenses := usecase.NewExpenseService(recordStore, queue, logger)
	assistant := usecase.NewAssistant(requests, logger)

	// Restore the persisted sync preference
	if v, err := recordStore.GetPreference(ctx, "journal_sync_enabled"); err == nil {
		if enabled, ok := v.(bool); ok {
			queue.SetEnabled(enabled)
		}
	}

	// HTTP surface for the presentation layer
	api := httpapi.New(cfg.HTTPAddr, expenses, assistant, logger)
	go func() {
		status := expenses.SyncStatus()
		logger.Info().Str("addr", cfg.HTTPAddr).Str("backend", cfg.Backend).
			Str("inference", cfg.Inference).Bool("syncEnabled", status.Enabled).
			Msg("expense engine listening")
		if err := api.Start(); err != nil {
			log.Fatalf("http serve error: %v", err)
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
	<-stop
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_ = api.Stop(shutdownCtx)
	requests.Clear()
	queue.Close()
	if closeChannel != nil {
		_ = closeChannel()
	}
	if closeBackend != nil {
		_ = closeBackend()
	}
}

func newBackend(cfg *config.Config) (ports.KV, func() error, error) {
	switch cfg.Backend {
	case "memory":
		return kv.NewMemory(), nil, nil
	case "redis":
		backend, err := kv.NewRedis(cfg.RedisAddr)
		if err != nil {
			return nil, nil, err
		}
		return backend, backend.Close, nil
	default:
		backend, err := kv.NewSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return backend, backend.Close, nil
	}
}

func newChannel(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (ports.InferenceChannel, func() error, error) {
	switch cfg.Inference {
	case "openai":
		return inference.NewOpenAIChannel(cfg.OpenAIKey, cfg.OpenAIModel, logger), nil, nil
	default:
		channel := inference.NewWebsocketChannel(cfg.InferenceURL, logger)
		if err := channel.Connect(ctx); err != nil {
			return nil, nil, err
		}
		return channel, channel.Close, nil
	}
}
