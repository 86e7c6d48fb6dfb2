package stats

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/eratner15/tariff-engineer/internal/middleware"
)

type RulingRepo interface {
	Count(ctx context.Context) (int, error)
	CountEmbedded(ctx context.Context) (int, error)
}

type JobRepo interface {
	Count(ctx context.Context) (int, error)
}

type VectorStore interface {
	CountVectors(ctx context.Context) (int, error)
}

type Handler struct {
	rulingRepo  RulingRepo
	jobRepo     JobRepo
	vectorStore VectorStore
}

// NewHandler builds the stats handler. v may be nil when no vector index is
// wired.
func NewHandler(r RulingRepo, j JobRepo, v VectorStore) *Handler {
	return &Handler{rulingRepo: r, jobRepo: j, vectorStore: v}
}

type StatsResponse struct {
	Rulings    int `json:"rulings"`
	Embedded   int `json:"embedded"`
	Pending    int `json:"pending_embedding"`
	FailedJobs int `json:"failed_jobs"`
	// Vectors is omitted when the index is not wired or not reachable.
	Vectors *int `json:"vectors,omitempty"`
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	total, err := h.rulingRepo.Count(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count rulings", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to count rulings", http.StatusInternalServerError)
		return
	}

	embedded, err := h.rulingRepo.CountEmbedded(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count embedded rulings", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to count embedded rulings", http.StatusInternalServerError)
		return
	}

	jobs, err := h.jobRepo.Count(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count jobs", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to count jobs", http.StatusInternalServerError)
		return
	}

	resp := StatsResponse{
		Rulings:    total,
		Embedded:   embedded,
		Pending:    total - embedded,
		FailedJobs: jobs,
	}

	if h.vectorStore != nil {
		n, err := h.vectorStore.CountVectors(ctx)
		if err != nil {
			slog.WarnContext(ctx, "failed to count vectors", "error", err)
		} else {
			resp.Vectors = &n
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": resp}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}
