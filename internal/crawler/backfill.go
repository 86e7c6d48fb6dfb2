package crawler

import (
	"context"
	"errors"
	"log/slog"

	"github.com/eratner15/tariff-engineer/features/ruling"
	"github.com/eratner15/tariff-engineer/internal/embedding"
	"github.com/eratner15/tariff-engineer/internal/middleware"
)

var ErrEmbeddingsDisabled = errors.New("embeddings are disabled")

// DefaultBackfillBatch is how many records share one embedding request.
const DefaultBackfillBatch = 16

// Backfill embeds up to limit stored records that have no vector yet and
// returns how many were embedded. A failed batch is logged and skipped.
func (c *Crawler) Backfill(ctx context.Context, limit int) (int, error) {
	if c.embedder == nil {
		return 0, ErrEmbeddingsDisabled
	}

	recs, err := c.store.ListUnembedded(ctx, limit)
	if err != nil {
		return 0, err
	}
	slog.InfoContext(ctx, "backfill started", "pending", len(recs))

	batch := DefaultBackfillBatch
	if c.cfg.BatchSize > 0 {
		batch = c.cfg.BatchSize
	}

	embedded := 0
	for start := 0; start < len(recs); start += batch {
		if err := ctx.Err(); err != nil {
			return embedded, err
		}
		group := recs[start:min(start+batch, len(recs))]

		texts := make([]string, len(group))
		for i := range group {
			texts[i] = embedding.PrepareText(embeddingFields(&group[i]))
		}

		vecs, err := c.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return embedded, ctxErr
			}
			slog.WarnContext(ctx, "backfill batch failed", "first_id", group[0].ID, "size", len(group), "error", err)
			for i := range group {
				c.recordFailure(ctx, group[i].ID, StageEmbed, err)
			}
			continue
		}

		for i := range group {
			rec := &group[i]
			rctx := middleware.WithRulingID(ctx, rec.ID)
			if err := c.store.SetEmbedding(rctx, rec, vecs[i], c.cfg.EmbeddingModel); err != nil {
				slog.ErrorContext(rctx, "backfill store failed", "error", err)
				c.recordFailure(rctx, rec.ID, StageStore, err)
				continue
			}
			embedded++
		}
		slog.InfoContext(ctx, "backfill progress", "embedded", embedded, "pending", len(recs)-start-len(group))
	}

	slog.InfoContext(ctx, "backfill finished", "embedded", embedded)
	return embedded, nil
}

var _ Store = (*ruling.Store)(nil)
