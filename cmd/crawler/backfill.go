package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/eratner15/tariff-engineer/internal/worker"
)

func backfillCmd() *cobra.Command {
	var (
		limit   int
		enqueue bool
	)

	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Embed stored rulings that have no vector yet",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit <= 0 {
				return fmt.Errorf("--limit must be positive, got %d", limit)
			}

			ctx := cmd.Context()
			cfg, deps, err := connect(ctx)
			if err != nil {
				return err
			}
			defer deps.Close()

			if enqueue {
				if err := worker.EnqueueBackfill(ctx, deps.NSQProducer, limit); err != nil {
					return err
				}
				slog.Info("backfill task enqueued", "limit", limit)
				return nil
			}

			application, err := newApp(cfg, deps)
			if err != nil {
				return err
			}
			n, err := application.Crawler.Backfill(ctx, limit)
			fmt.Printf("embedded: %d\n", n)
			return err
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 100, "maximum number of rulings to embed")
	cmd.Flags().BoolVar(&enqueue, "enqueue", false, "publish a backfill task to NSQ instead of running here")
	return cmd
}
