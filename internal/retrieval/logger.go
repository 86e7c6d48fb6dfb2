package retrieval

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/eratner15/tariff-engineer/internal/middleware"
)

// QueryLogEntry is one JSON line per Rank call.
type QueryLogEntry struct {
	Timestamp       time.Time `json:"timestamp"`
	Query           string    `json:"query"`
	Category        string    `json:"category"`
	Limit           int       `json:"limit"`
	Total           int       `json:"total"`
	Matches         int       `json:"matches"`
	NumResults      int       `json:"num_results"`
	SemanticResults int       `json:"semantic_results"`
	TopRulingID     string    `json:"top_ruling_id,omitempty"`
	Degraded        bool      `json:"degraded"`
	LatencyMs       int64     `json:"latency_ms"`
	CorrelationID   string    `json:"correlation_id,omitempty"`
}

// QueryLogger appends ranked queries to a JSON-lines stream for offline
// relevance review.
type QueryLogger struct {
	mu  sync.Mutex
	enc *json.Encoder
	now func() time.Time
}

func NewQueryLogger(w io.Writer) *QueryLogger {
	return &QueryLogger{enc: json.NewEncoder(w), now: time.Now}
}

// NewFileQueryLogger appends to the file at path, creating its directory.
// Entries are copied to mirror when it is non-nil.
func NewFileQueryLogger(path string, mirror io.Writer) (*QueryLogger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(filepath.Clean(path), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600) // #nosec G304 -- path is from application config, not user input
	if err != nil {
		return nil, err
	}
	if mirror == nil {
		return NewQueryLogger(f), nil
	}
	return NewQueryLogger(io.MultiWriter(mirror, f)), nil
}

// Record writes the outcome of ranking q.
func (l *QueryLogger) Record(ctx context.Context, q Query, limit int, res Result, elapsed time.Duration) {
	entry := QueryLogEntry{
		Timestamp:     l.now(),
		Query:         q.Text,
		Category:      res.Category,
		Limit:         limit,
		Total:         res.Total,
		Matches:       res.Matches,
		NumResults:    len(res.Results),
		Degraded:      res.Degraded,
		LatencyMs:     elapsed.Milliseconds(),
		CorrelationID: middleware.GetCorrelationID(ctx),
	}
	if len(res.Results) > 0 {
		entry.TopRulingID = res.Results[0].ID
	}
	for _, r := range res.Results {
		if r.MatchKind == MatchSemantic {
			entry.SemanticResults++
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enc.Encode(entry); err != nil {
		slog.ErrorContext(ctx, "failed to write query log entry", "error", err)
	}
}
