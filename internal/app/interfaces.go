package app

import (
	"context"

	"github.com/eratner15/tariff-engineer/features/ruling"
)

// Database is satisfied by *sql.DB; tests pass a sqlmock handle.
type Database interface {
	PingContext(ctx context.Context) error
	Close() error
}

// VectorStore is the ruling vector index plus its schema bootstrap.
type VectorStore interface {
	ruling.VectorIndex
	EnsureSchema(ctx context.Context) error
}

type TaskPublisher interface {
	Publish(topic string, body []byte) error
}
