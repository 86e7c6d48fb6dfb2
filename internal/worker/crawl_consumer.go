package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nsqio/go-nsq"

	"github.com/eratner15/tariff-engineer/features/ruling"
	"github.com/eratner15/tariff-engineer/internal/crawler"
	"github.com/eratner15/tariff-engineer/internal/middleware"
)

const (
	DefaultTaskTimeout   = 2 * time.Minute
	DefaultBackfillLimit = 100
)

// CrawlConsumer ingests the ruling named by each CrawlTask message.
// Failed ids are already persisted as failed jobs by the processor, so the
// message is requeued only when the task ran out of time.
type CrawlConsumer struct {
	proc    Processor
	timeout time.Duration
}

func NewCrawlConsumer(p Processor, timeout time.Duration) *CrawlConsumer {
	if timeout <= 0 {
		timeout = DefaultTaskTimeout
	}
	return &CrawlConsumer{proc: p, timeout: timeout}
}

func (h *CrawlConsumer) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	var task CrawlTask
	if err := json.Unmarshal(m.Body, &task); err != nil {
		slog.Error("poison pill: invalid json", "error", err)
		return nil
	}

	correlationID := task.CorrelationID
	if correlationID == "" {
		correlationID = uuid.New().String()
	}
	ctx := middleware.WithCorrelationID(context.Background(), correlationID)
	ctx = middleware.WithRulingID(ctx, task.RulingID)

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	outcome, err := h.proc.ProcessID(ctx, task.RulingID, task.Force)
	if err != nil {
		if errors.Is(err, ruling.ErrInvalidID) {
			slog.ErrorContext(ctx, "dropping task with invalid ruling id", "error", err)
			return nil
		}
		slog.WarnContext(ctx, "crawl task interrupted, requeueing", "error", err)
		return err
	}

	slog.InfoContext(ctx, "crawl task done", "outcome", outcome.String(), "attempts", m.Attempts)
	return nil
}

// BackfillConsumer embeds unembedded records on request.
type BackfillConsumer struct {
	backfiller   Backfiller
	defaultLimit int
}

func NewBackfillConsumer(b Backfiller, defaultLimit int) *BackfillConsumer {
	return &BackfillConsumer{backfiller: b, defaultLimit: defaultLimit}
}

func (h *BackfillConsumer) HandleMessage(m *nsq.Message) error {
	var task BackfillTask
	if len(m.Body) > 0 {
		if err := json.Unmarshal(m.Body, &task); err != nil {
			slog.Error("poison pill: invalid json", "error", err)
			return nil
		}
	}
	if task.Limit <= 0 {
		task.Limit = h.defaultLimit
	}

	ctx := context.Background()
	if task.CorrelationID != "" {
		ctx = middleware.WithCorrelationID(ctx, task.CorrelationID)
	}

	n, err := h.backfiller.Backfill(ctx, task.Limit)
	if errors.Is(err, crawler.ErrEmbeddingsDisabled) {
		slog.WarnContext(ctx, "dropping backfill task, embeddings are disabled")
		return nil
	}
	if err != nil {
		slog.ErrorContext(ctx, "backfill failed", "embedded", n, "error", err)
		return err
	}
	slog.InfoContext(ctx, "backfill task done", "embedded", n)
	return nil
}
