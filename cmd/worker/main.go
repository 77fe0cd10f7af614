// Package main is the entrypoint for the applyflow queue worker.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/applyflow/applyflow/internal/ai"
	"github.com/applyflow/applyflow/internal/breaker"
	"github.com/applyflow/applyflow/internal/cache"
	"github.com/applyflow/applyflow/internal/config"
	"github.com/applyflow/applyflow/internal/core"
	"github.com/applyflow/applyflow/internal/store"
	"github.com/applyflow/applyflow/internal/worker"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("worker failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger.Info("config loaded", "env", cfg.Server.Env, "ai_provider", cfg.AI.Provider)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	logger.Info("database connected")

	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	logger.Info("redis connected")

	customizer, err := ai.NewCustomizer(cfg.AI)
	if err != nil {
		return fmt.Errorf("create AI customizer: %w", err)
	}
	logger.Info("AI customizer initialized", "provider", customizer.Name())

	pgStore := store.NewPostgresStore(pool)
	coreClient := core.NewHTTPClient(cfg.Core.BaseURL, cfg.Core.SharedSecret, cfg.Core.Timeout)

	// Non-fatal: the breaker handles a Core that comes up later.
	if err := coreClient.Ready(ctx); err != nil {
		logger.Warn("core service not ready at startup", "error", err)
	}

	brk := breaker.New(breaker.Config{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		SuccessThreshold: cfg.Breaker.SuccessThreshold,
		ResetTimeout:     cfg.Breaker.ResetTimeout,
	})

	w := worker.New(worker.Deps{
		Store:      pgStore,
		Cache:      redisCache,
		Core:       coreClient,
		Customizer: customizer,
		Breaker:    brk,
		Retry:      worker.NewRetryPolicy(cfg.Retry),
		Limiter:    worker.NewSubmissionLimiter(pgStore, cfg.RateLimit),
		Logger:     logger,
	}, cfg.Worker)

	janitor := worker.NewJanitor(pgStore, logger, cfg.Worker.StaleClaimAfter)
	if err := janitor.Start(); err != nil {
		return fmt.Errorf("start janitor: %w", err)
	}
	defer janitor.Stop()

	return w.Run(ctx)
}
