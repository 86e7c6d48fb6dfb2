package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/eratner15/tariff-engineer/features/ruling"
	"github.com/eratner15/tariff-engineer/internal/app"
	"github.com/eratner15/tariff-engineer/internal/crawler"
	"github.com/eratner15/tariff-engineer/internal/worker"
)

type crawlFlags struct {
	kind       string
	start      int
	end        int
	batch      int
	delay      time.Duration
	batchDelay time.Duration
	force      bool
	enqueue    bool
	noProgress bool
}

func crawlCmd() *cobra.Command {
	var f crawlFlags

	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Fetch a range of rulings into the corpus",
		Long: `Fetch every ruling id in a range, extract its fields and store it.
Without --kind the default New York and Headquarters ranges are crawled.
With --enqueue the ids are published to NSQ for the crawl workers instead.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ranges, err := resolveRanges(f.kind, f.start, f.end)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			cfg, deps, err := connect(ctx)
			if err != nil {
				return err
			}
			defer deps.Close()

			if f.enqueue {
				n, err := worker.Enqueue(ctx, deps.NSQProducer, ranges, f.force)
				if err != nil {
					return err
				}
				slog.Info("crawl tasks enqueued", "count", n)
				return nil
			}

			opts := []app.Option{app.WithCrawlerConfig(f.apply(cmd))}
			var bar *progressbar.ProgressBar
			if !f.noProgress {
				bar = newProgressBar(totalIDs(ranges))
				opts = append(opts, app.WithProgress(func(s crawler.Stats) {
					if err := bar.Set64(s.Processed()); err != nil {
						slog.Warn("failed to update progress bar", "error", err)
					}
				}))
			}

			application, err := newApp(cfg, deps, opts...)
			if err != nil {
				return err
			}

			stats, runErr := application.Crawler.Run(ctx, ranges)
			if bar != nil {
				_ = bar.Finish()
			}
			printStats(stats)
			return runErr
		},
	}

	cmd.Flags().StringVar(&f.kind, "kind", "", "ruling kind: N (New York) or H (Headquarters)")
	cmd.Flags().IntVar(&f.start, "start", 0, "first sequence number (inclusive)")
	cmd.Flags().IntVar(&f.end, "end", 0, "last sequence number (inclusive)")
	cmd.Flags().IntVar(&f.batch, "batch", 0, "fetch this many ids concurrently per batch (0 = sequential)")
	cmd.Flags().DurationVar(&f.delay, "delay", 0, "pause between sequential fetches (default from CRAWL_DELAY_MS)")
	cmd.Flags().DurationVar(&f.batchDelay, "batch-delay", 0, "pause between batches (default from CRAWL_BATCH_DELAY_MS)")
	cmd.Flags().BoolVar(&f.force, "force", false, "re-fetch ids that are already stored")
	cmd.Flags().BoolVar(&f.enqueue, "enqueue", false, "publish crawl tasks to NSQ instead of crawling here")
	cmd.Flags().BoolVar(&f.noProgress, "no-progress", false, "disable the progress bar")

	return cmd
}

// apply overrides the environment pacing with the flags the user set.
func (f crawlFlags) apply(cmd *cobra.Command) func(*crawler.Config) {
	return func(c *crawler.Config) {
		if cmd.Flags().Changed("batch") {
			c.BatchSize = f.batch
		}
		if cmd.Flags().Changed("delay") {
			c.Delay = f.delay
		}
		if cmd.Flags().Changed("batch-delay") {
			c.BatchDelay = f.batchDelay
		}
		c.Force = f.force
	}
}

func resolveRanges(kind string, start, end int) ([]crawler.Range, error) {
	if kind == "" {
		if start != 0 || end != 0 {
			return nil, fmt.Errorf("%w: --start and --end need --kind", crawler.ErrInvalidRange)
		}
		return crawler.DefaultRanges(), nil
	}

	k, err := ruling.ParseKind(kind)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", crawler.ErrInvalidRange, err)
	}
	r := crawler.Range{Kind: k, Start: start, End: end}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return []crawler.Range{r}, nil
}

func totalIDs(ranges []crawler.Range) int {
	total := 0
	for _, r := range ranges {
		total += r.Len()
	}
	return total
}

func newProgressBar(total int) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("[cyan]Crawling rulings[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}

func printStats(s crawler.Stats) {
	fmt.Printf("fetched:          %d\n", s.Fetched)
	fmt.Printf("skipped existing: %d\n", s.SkippedExisting)
	fmt.Printf("not found:        %d\n", s.NotFound)
	fmt.Printf("malformed:        %d\n", s.Malformed)
	fmt.Printf("errored:          %d\n", s.Errored)
}
