package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/eratner15/tariff-engineer/features/ruling"
	"github.com/eratner15/tariff-engineer/internal/category"
	"github.com/eratner15/tariff-engineer/internal/embedding"
	"github.com/eratner15/tariff-engineer/internal/middleware"
	"github.com/eratner15/tariff-engineer/internal/text"
)

var ErrInvalidRange = errors.New("invalid crawl range")

// Fetcher retrieves the raw page for a ruling id.
type Fetcher interface {
	Fetch(ctx context.Context, id string) (text.Document, error)
}

// Embedder turns text into vectors. A nil Embedder disables embeddings.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

type Store interface {
	Exists(ctx context.Context, id string) (bool, error)
	Upsert(ctx context.Context, r *ruling.Record) error
	ListUnembedded(ctx context.Context, limit int) ([]ruling.Record, error)
	SetEmbedding(ctx context.Context, r *ruling.Record, vec []float32, model string) error
}

// FailureRecorder persists ids that failed for a reason other than "not a
// ruling", so they can be retried later.
type FailureRecorder interface {
	RecordFailure(ctx context.Context, rulingID, stage string, cause error) error
}

// Failure stages reported to FailureRecorder.
const (
	StageFetch = "fetch"
	StageEmbed = "embed"
	StageStore = "store"
)

type Config struct {
	// Delay spaces consecutive fetches in sequential mode.
	Delay time.Duration
	// BatchSize > 0 switches to batched mode: BatchSize ids run concurrently,
	// then the crawler waits BatchDelay.
	BatchSize  int
	BatchDelay time.Duration
	// MaxRetries bounds the extra attempts after a transient fetch failure.
	MaxRetries int
	RetryDelay time.Duration
	// ReportEvery emits a progress line after this many processed ids.
	ReportEvery int
	// Force re-fetches ids that are already stored.
	Force bool
	// EmbeddingModel is recorded next to every stored vector.
	EmbeddingModel string
}

func DefaultConfig() Config {
	return Config{
		Delay:          500 * time.Millisecond,
		BatchDelay:     2 * time.Second,
		MaxRetries:     3,
		RetryDelay:     2 * time.Second,
		ReportEvery:    100,
		EmbeddingModel: embedding.Model,
	}
}

type Option func(*Crawler)

// WithEmbedder enables embeddings for newly stored records.
func WithEmbedder(e Embedder) Option {
	return func(c *Crawler) { c.embedder = e }
}

func WithFailureRecorder(f FailureRecorder) Option {
	return func(c *Crawler) { c.failures = f }
}

// WithProgress registers fn to receive a snapshot every ReportEvery ids and
// once at the end of each range.
func WithProgress(fn func(Stats)) Option {
	return func(c *Crawler) { c.progress = fn }
}

// WithSleep replaces the pause between batches.
func WithSleep(fn func(context.Context, time.Duration) error) Option {
	return func(c *Crawler) { c.sleep = fn }
}

type Crawler struct {
	fetcher  Fetcher
	store    Store
	embedder Embedder
	failures FailureRecorder
	progress func(Stats)
	sleep    func(context.Context, time.Duration) error
	limiter  *rate.Limiter
	cfg      Config
	counters counters
}

func New(fetcher Fetcher, store Store, cfg Config, opts ...Option) (*Crawler, error) {
	if cfg.Delay < 0 || cfg.BatchSize < 0 || cfg.BatchDelay < 0 || cfg.MaxRetries < 0 || cfg.RetryDelay < 0 || cfg.ReportEvery < 0 {
		return nil, fmt.Errorf("%w: negative pacing value", ErrInvalidRange)
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = embedding.Model
	}

	limit := rate.Inf
	if cfg.Delay > 0 {
		limit = rate.Every(cfg.Delay)
	}

	c := &Crawler{
		fetcher: fetcher,
		store:   store,
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, 1),
		sleep:   sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// EmbeddingsEnabled reports whether new records are embedded at ingestion.
func (c *Crawler) EmbeddingsEnabled() bool {
	return c.embedder != nil
}

// Stats returns the counters accumulated since the crawler was built.
func (c *Crawler) Stats() Stats {
	return c.counters.snapshot()
}

// Run crawls every range in order. Per-id failures are counted and logged
// and never abort the run; only an invalid range or a cancelled context
// stops it early. The returned Stats cover everything processed so far.
func (c *Crawler) Run(ctx context.Context, ranges []Range) (Stats, error) {
	for _, r := range ranges {
		if err := r.Validate(); err != nil {
			return c.Stats(), err
		}
	}

	for _, r := range ranges {
		slog.InfoContext(ctx, "crawl range started", "kind", r.Kind, "start", r.Start, "end", r.End, "batch_size", c.cfg.BatchSize, "force", c.cfg.Force)

		var err error
		if c.cfg.BatchSize > 0 {
			err = c.runBatched(ctx, r)
		} else {
			err = c.runSequential(ctx, r)
		}

		stats := c.Stats()
		c.report(stats)
		if err != nil {
			slog.WarnContext(ctx, "crawl interrupted", "kind", r.Kind, "error", err, "stats", stats)
			return stats, err
		}
		slog.InfoContext(ctx, "crawl range finished", "kind", r.Kind, "start", r.Start, "end", r.End, "stats", stats)
	}
	return c.Stats(), nil
}

func (c *Crawler) runSequential(ctx context.Context, r Range) error {
	for n := r.Start; n <= r.End; n++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := c.process(ctx, ruling.FormatID(r.Kind, n), c.cfg.Force, true); err != nil {
			return err
		}
	}
	return nil
}

func (c *Crawler) runBatched(ctx context.Context, r Range) error {
	for start := r.Start; start <= r.End; start += c.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(start+c.cfg.BatchSize-1, r.End)

		g, gctx := errgroup.WithContext(ctx)
		for n := start; n <= end; n++ {
			id := ruling.FormatID(r.Kind, n)
			g.Go(func() error {
				_, err := c.process(gctx, id, c.cfg.Force, false)
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		if end < r.End && c.cfg.BatchDelay > 0 {
			if err := c.sleep(ctx, c.cfg.BatchDelay); err != nil {
				return err
			}
		}
	}
	return nil
}

// ProcessID ingests a single ruling. It is what queue workers call; the
// delay between ids is the producer's concern there, so no pacing applies.
// The error is non-nil only for invalid ids and context cancellation.
func (c *Crawler) ProcessID(ctx context.Context, id string, force bool) (Outcome, error) {
	if _, err := ruling.KindOf(id); err != nil {
		return OutcomeErrored, err
	}
	return c.process(ctx, id, force, false)
}

func (c *Crawler) process(ctx context.Context, id string, force, paced bool) (Outcome, error) {
	ctx = middleware.WithRulingID(ctx, id)
	outcome, err := c.ingest(ctx, id, force, paced)
	if err != nil {
		return outcome, err
	}

	processed := c.counters.record(outcome)
	if c.cfg.ReportEvery > 0 && processed%int64(c.cfg.ReportEvery) == 0 {
		stats := c.Stats()
		slog.InfoContext(ctx, "crawl progress", "processed", processed, "stats", stats)
		c.report(stats)
	}
	return outcome, nil
}

func (c *Crawler) ingest(ctx context.Context, id string, force, paced bool) (Outcome, error) {
	kind, err := ruling.KindOf(id)
	if err != nil {
		return OutcomeErrored, err
	}

	if !force {
		exists, err := c.store.Exists(ctx, id)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return OutcomeErrored, ctxErr
			}
			slog.ErrorContext(ctx, "existence check failed", "error", err)
			c.recordFailure(ctx, id, StageStore, err)
			return OutcomeErrored, nil
		}
		if exists {
			slog.DebugContext(ctx, "ruling already stored, skipping")
			return OutcomeSkippedExisting, nil
		}
	}

	if paced {
		if err := c.limiter.Wait(ctx); err != nil {
			return OutcomeErrored, err
		}
	}

	doc, err := c.fetch(ctx, id)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return OutcomeErrored, ctxErr
		}
		if errors.Is(err, ruling.ErrNotFound) {
			slog.DebugContext(ctx, "ruling not found")
			return OutcomeNotFound, nil
		}
		slog.WarnContext(ctx, "fetch failed", "error", err)
		c.recordFailure(ctx, id, StageFetch, err)
		return OutcomeErrored, nil
	}

	fields, err := text.Extract(doc)
	if err != nil {
		slog.DebugContext(ctx, "page is not a ruling document", "error", err)
		return OutcomeMalformed, nil
	}

	rec := &ruling.Record{
		ID:                    id,
		Kind:                  kind,
		SourceURL:             ruling.SourceURL(id),
		IssueDate:             fields.IssueDate,
		HTSCodes:              fields.HTSCodes,
		ProductDescription:    fields.ProductDescription,
		ClassificationSnippet: fields.ClassificationSnippet,
		Rationale:             fields.Rationale,
		Keywords:              fields.Keywords,
		Category:              category.Detect(fields.ProductDescription + " " + fields.ClassificationSnippet),
	}

	if c.embedder != nil {
		vec, err := c.embedder.Embed(ctx, embedding.PrepareText(embeddingFields(rec)))
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return OutcomeErrored, ctxErr
			}
			slog.WarnContext(ctx, "embedding failed", "error", err)
			c.recordFailure(ctx, id, StageEmbed, err)
			return OutcomeErrored, nil
		}
		rec.Embedding = vec
		rec.EmbeddingModel = c.cfg.EmbeddingModel
	}

	if err := c.store.Upsert(ctx, rec); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return OutcomeErrored, ctxErr
		}
		slog.ErrorContext(ctx, "store failed", "error", err)
		c.recordFailure(ctx, id, StageStore, err)
		return OutcomeErrored, nil
	}

	slog.InfoContext(ctx, "ruling stored", "category", rec.Category, "hts_codes", len(rec.HTSCodes), "embedded", rec.Embedded)
	return OutcomeFetched, nil
}

// fetch retries transient failures with exponential backoff starting at
// RetryDelay, at most MaxRetries times.
func (c *Crawler) fetch(ctx context.Context, id string) (text.Document, error) {
	var doc text.Document
	attempt := 0
	op := func() error {
		attempt++
		d, err := c.fetcher.Fetch(ctx, id)
		if err == nil {
			doc = d
			return nil
		}
		if errors.Is(err, ruling.ErrTransientFetch) {
			slog.DebugContext(ctx, "transient fetch failure", "attempt", attempt, "error", err)
			return err
		}
		return backoff.Permanent(err)
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = c.cfg.RetryDelay
	eb.RandomizationFactor = 0
	eb.Multiplier = 2
	eb.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(c.cfg.MaxRetries)), ctx)

	if err := backoff.Retry(op, policy); err != nil {
		return text.Document{}, err
	}
	return doc, nil
}

func (c *Crawler) recordFailure(ctx context.Context, id, stage string, cause error) {
	if c.failures == nil {
		return
	}
	if err := c.failures.RecordFailure(ctx, id, stage, cause); err != nil {
		slog.ErrorContext(ctx, "failed to record crawl failure", "stage", stage, "error", err)
	}
}

func (c *Crawler) report(s Stats) {
	if c.progress != nil {
		c.progress(s)
	}
}

func embeddingFields(r *ruling.Record) embedding.Fields {
	return embedding.Fields{
		ProductDescription:    r.ProductDescription,
		ClassificationSnippet: r.ClassificationSnippet,
		Rationale:             r.Rationale,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type counters struct {
	fetched         atomic.Int64
	skippedExisting atomic.Int64
	notFound        atomic.Int64
	malformed       atomic.Int64
	errored         atomic.Int64
	processed       atomic.Int64
}

func (c *counters) record(o Outcome) int64 {
	switch o {
	case OutcomeFetched:
		c.fetched.Add(1)
	case OutcomeSkippedExisting:
		c.skippedExisting.Add(1)
	case OutcomeNotFound:
		c.notFound.Add(1)
	case OutcomeMalformed:
		c.malformed.Add(1)
	case OutcomeErrored:
		c.errored.Add(1)
	}
	return c.processed.Add(1)
}

func (c *counters) snapshot() Stats {
	return Stats{
		Fetched:         c.fetched.Load(),
		SkippedExisting: c.skippedExisting.Load(),
		NotFound:        c.notFound.Load(),
		Malformed:       c.malformed.Load(),
		Errored:         c.errored.Load(),
	}
}
