package job

import (
	"encoding/json"
	"errors"
	"time"
)

var ErrNotFound = errors.New("job not found")

// Job is a ruling id whose ingestion failed at Stage. Payload is the crawl
// task that reproduces the attempt.
type Job struct {
	ID        string          `json:"id"`
	RulingID  string          `json:"ruling_id"`
	Stage     string          `json:"stage"`
	Payload   json.RawMessage `json:"payload"`
	Error     string          `json:"error"`
	Retries   int             `json:"retries"`
	CreatedAt time.Time       `json:"created_at"`
}

type retryPayload struct {
	RulingID string `json:"ruling_id"`
	Force    bool   `json:"force"`
}
