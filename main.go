package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/eratner15/tariff-engineer/internal/app"
	"github.com/eratner15/tariff-engineer/internal/config"
	"github.com/eratner15/tariff-engineer/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	log := logger.New(os.Stdout, cfg.LogLevel)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	deps, err := app.Bootstrap(ctx, cfg)
	if err != nil {
		return err
	}
	defer deps.Close()

	application, err := app.New(cfg, deps.DB, deps.VectorStore, deps.NSQProducer, log, deps.Options()...)
	if err != nil {
		return err
	}

	slog.Info("service ready",
		"api", cfg.EnableAPI,
		"crawl_worker", cfg.EnableCrawlWorker,
		"vector_index", deps.VectorStore != nil,
		"embeddings", deps.Embedder != nil,
	)
	return application.Run(ctx)
}
