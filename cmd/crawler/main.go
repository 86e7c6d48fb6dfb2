package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/eratner15/tariff-engineer/internal/app"
	"github.com/eratner15/tariff-engineer/internal/config"
	"github.com/eratner15/tariff-engineer/internal/logger"
)

var (
	logLevel string
	rootCmd  = &cobra.Command{
		Use:   "crawler",
		Short: "Operate the customs ruling corpus",
		Long: `crawler fetches customs rulings into the corpus, repairs missing
embeddings and reports on what has been ingested.`,
		SilenceUsage: true,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			slog.SetDefault(logger.New(os.Stderr, logLevel))
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(crawlCmd())
	rootCmd.AddCommand(backfillCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(searchCmd())
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// connect loads the environment and opens every backing service.
func connect(ctx context.Context) (*config.Config, *app.Dependencies, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	deps, err := app.Bootstrap(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, deps, nil
}

func newApp(cfg *config.Config, deps *app.Dependencies, opts ...app.Option) (*app.App, error) {
	opts = append(deps.Options(), opts...)
	return app.New(cfg, deps.DB, deps.VectorStore, deps.NSQProducer, slog.Default(), opts...)
}
