package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/eratner15/tariff-engineer/features/ruling"
	"github.com/eratner15/tariff-engineer/internal/config"
	"github.com/eratner15/tariff-engineer/internal/crawler"
	"github.com/eratner15/tariff-engineer/internal/middleware"
)

const publishChunk = 500

// PlanRange expands one range into crawl tasks in ascending id order.
func PlanRange(kind ruling.Kind, start, end int, force bool, correlationID string) ([]CrawlTask, error) {
	r := crawler.Range{Kind: kind, Start: start, End: end}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	ids := r.IDs()
	tasks := make([]CrawlTask, len(ids))
	for i, id := range ids {
		tasks[i] = CrawlTask{RulingID: id, Force: force, CorrelationID: correlationID}
	}
	return tasks, nil
}

// Enqueue publishes one CrawlTask per id in ranges and returns how many were
// published. Ranges are validated before anything is sent.
func Enqueue(ctx context.Context, pub TaskPublisher, ranges []crawler.Range, force bool) (int, error) {
	for _, r := range ranges {
		if err := r.Validate(); err != nil {
			return 0, err
		}
	}

	correlationID := middleware.GetCorrelationID(ctx)
	published := 0
	for _, r := range ranges {
		tasks, err := PlanRange(r.Kind, r.Start, r.End, force, correlationID)
		if err != nil {
			return published, err
		}
		for start := 0; start < len(tasks); start += publishChunk {
			if err := ctx.Err(); err != nil {
				return published, err
			}
			chunk := tasks[start:min(start+publishChunk, len(tasks))]

			bodies := make([][]byte, 0, len(chunk))
			for _, task := range chunk {
				body, err := json.Marshal(task)
				if err != nil {
					return published, err
				}
				bodies = append(bodies, body)
			}

			if err := publishAll(pub, config.TopicCrawlTask, bodies); err != nil {
				return published, fmt.Errorf("publish %s: %w", r, err)
			}
			published += len(bodies)
		}
		slog.InfoContext(ctx, "crawl range enqueued", "range", r.String(), "count", len(tasks))
	}
	return published, nil
}

// EnqueueBackfill publishes a single BackfillTask.
func EnqueueBackfill(ctx context.Context, pub TaskPublisher, limit int) error {
	body, err := json.Marshal(BackfillTask{Limit: limit, CorrelationID: middleware.GetCorrelationID(ctx)})
	if err != nil {
		return err
	}
	return pub.Publish(config.TopicCrawlBackfill, body)
}

func publishAll(pub TaskPublisher, topic string, bodies [][]byte) error {
	if bp, ok := pub.(BatchPublisher); ok {
		return bp.MultiPublish(topic, bodies)
	}
	for _, b := range bodies {
		if err := pub.Publish(topic, b); err != nil {
			return err
		}
	}
	return nil
}
