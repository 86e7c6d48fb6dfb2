package worker

import (
	"context"

	"github.com/eratner15/tariff-engineer/internal/crawler"
)

// CrawlTask asks a worker to ingest one ruling.
type CrawlTask struct {
	RulingID      string `json:"ruling_id"`
	Force         bool   `json:"force,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// BackfillTask asks a worker to embed stored rulings that have no vector.
type BackfillTask struct {
	Limit         int    `json:"limit"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

type TaskPublisher interface {
	Publish(topic string, body []byte) error
}

// BatchPublisher is implemented by producers that can send many bodies in
// one round trip, like *nsq.Producer.
type BatchPublisher interface {
	MultiPublish(topic string, body [][]byte) error
}

type Processor interface {
	ProcessID(ctx context.Context, id string, force bool) (crawler.Outcome, error)
}

type Backfiller interface {
	Backfill(ctx context.Context, limit int) (int, error)
}
