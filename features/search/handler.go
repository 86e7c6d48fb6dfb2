package search

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/eratner15/tariff-engineer/internal/category"
	"github.com/eratner15/tariff-engineer/internal/middleware"
	"github.com/eratner15/tariff-engineer/internal/retrieval"
)

const (
	MaxDescriptionLength = 2000
	MaxLimit             = 50
)

type Ranker interface {
	Rank(ctx context.Context, q retrieval.Query, limit int) retrieval.Result
}

type Handler struct {
	ranker Ranker
}

func NewHandler(r Ranker) *Handler {
	return &Handler{ranker: r}
}

type Request struct {
	Description string `json:"description"`
	Category    string `json:"category,omitempty"`
	Limit       int    `json:"limit,omitempty"`
}

// Search serves POST /search-rulings. The body of a 200 response is the
// ranking result itself.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(ctx, w, "VALIDATION_ERROR", "request body must be JSON", http.StatusBadRequest)
		return
	}

	req.Description = strings.TrimSpace(req.Description)
	req.Category = strings.TrimSpace(req.Category)
	switch {
	case req.Description == "":
		h.writeError(ctx, w, "VALIDATION_ERROR", "description is required", http.StatusBadRequest)
		return
	case utf8.RuneCountInString(req.Description) > MaxDescriptionLength:
		h.writeError(ctx, w, "VALIDATION_ERROR", "description is too long", http.StatusBadRequest)
		return
	case req.Category != "" && !category.Valid(req.Category):
		h.writeError(ctx, w, "VALIDATION_ERROR", "unknown category "+req.Category, http.StatusBadRequest)
		return
	case req.Limit < 0 || req.Limit > MaxLimit:
		h.writeError(ctx, w, "VALIDATION_ERROR", "limit must be between 1 and 50", http.StatusBadRequest)
		return
	}

	res := h.ranker.Rank(ctx, retrieval.Query{Text: req.Description, Category: req.Category}, req.Limit)
	slog.InfoContext(ctx, "search served", "category", res.Category, "results", len(res.Results), "matches", res.Matches, "degraded", res.Degraded)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(res); err != nil {
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
