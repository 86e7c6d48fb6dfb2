package ruling

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"

	"github.com/eratner15/tariff-engineer/internal/middleware"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

var htsPrefixRe = regexp.MustCompile(`^\d{2,4}(?:\.\d{1,4}){0,2}$`)

// Reader is the read side of Store used by the HTTP layer.
type Reader interface {
	Get(ctx context.Context, id string) (*Record, error)
	SearchByHTSPrefix(ctx context.Context, prefix string, limit int) ([]Record, error)
}

type Handler struct {
	store Reader
}

func NewHandler(store Reader) *Handler {
	return &Handler{store: store}
}

// Get serves GET /rulings/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := KindOf(id); err != nil {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}

	rec, err := h.store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			h.writeError(r.Context(), w, "NOT_FOUND", "Ruling not found", http.StatusNotFound)
			return
		}
		h.writeError(r.Context(), w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": rec}); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// List serves GET /rulings?hts=6404.19&limit=50.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("hts")
	if !htsPrefixRe.MatchString(prefix) {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", "hts must be a tariff number prefix such as 6404 or 6404.19", http.StatusBadRequest)
		return
	}

	limit := defaultListLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = min(parsed, maxListLimit)
		}
	}

	recs, err := h.store.SearchByHTSPrefix(r.Context(), prefix, limit)
	if err != nil {
		h.writeError(r.Context(), w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}
	if recs == nil {
		recs = []Record{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": recs, "total": len(recs)}); err != nil {
		slog.Error("failed to encode response", "error", err)
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
