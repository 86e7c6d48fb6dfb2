package ruling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Store joins the relational repository with the optional vector index. The
// repository is authoritative; the index only ever holds vectors for ids the
// repository knows.
type Store struct {
	repo  Repository
	index VectorIndex
}

// NewStore wires repo and index. A nil index disables vector search.
func NewStore(repo Repository, index VectorIndex) *Store {
	return &Store{repo: repo, index: index}
}

// Upsert persists rec. When rec carries an embedding it is written to the
// index first; if that write fails the record is stored unembedded so a later
// backfill picks it up.
func (s *Store) Upsert(ctx context.Context, rec *Record) error {
	rec.Embedded = false
	if len(rec.Embedding) > 0 && s.index != nil {
		if err := s.index.UpsertVector(ctx, rec); err != nil {
			slog.WarnContext(ctx, "vector upsert failed, storing unembedded", "ruling_id", rec.ID, "error", err)
			rec.EmbeddingModel = ""
		} else {
			rec.Embedded = true
		}
	} else {
		rec.EmbeddingModel = ""
	}

	if err := s.repo.Upsert(ctx, rec); err != nil {
		return fmt.Errorf("%w: upsert %s: %v", ErrStore, rec.ID, err)
	}
	return nil
}

// SetEmbedding attaches vec to an already stored record.
func (s *Store) SetEmbedding(ctx context.Context, rec *Record, vec []float32, model string) error {
	if s.index == nil {
		return ErrVectorSearchUnavailable
	}
	rec.Embedding = vec
	rec.EmbeddingModel = model
	if err := s.index.UpsertVector(ctx, rec); err != nil {
		return fmt.Errorf("%w: vector upsert %s: %v", ErrStore, rec.ID, err)
	}
	if err := s.repo.MarkEmbedded(ctx, rec.ID, model); err != nil {
		return fmt.Errorf("%w: mark embedded %s: %v", ErrStore, rec.ID, err)
	}
	rec.Embedded = true
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	rec, err := s.repo.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get %s: %v", ErrStore, id, err)
	}
	return rec, nil
}

func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	ok, err := s.repo.Exists(ctx, id)
	if err != nil {
		return false, fmt.Errorf("%w: exists %s: %v", ErrStore, id, err)
	}
	return ok, nil
}

func (s *Store) ListAll(ctx context.Context, limit int) ([]Record, error) {
	recs, err := s.repo.ListAll(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: list: %v", ErrStore, err)
	}
	return recs, nil
}

func (s *Store) ListAfter(ctx context.Context, afterID string, limit int) ([]Record, error) {
	recs, err := s.repo.ListAfter(ctx, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: list after %q: %v", ErrStore, afterID, err)
	}
	return recs, nil
}

func (s *Store) ListUnembedded(ctx context.Context, limit int) ([]Record, error) {
	recs, err := s.repo.ListUnembedded(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: list unembedded: %v", ErrStore, err)
	}
	return recs, nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	n, err := s.repo.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: count: %v", ErrStore, err)
	}
	return n, nil
}

func (s *Store) SearchByHTSPrefix(ctx context.Context, prefix string, limit int) ([]Record, error) {
	recs, err := s.repo.SearchByHTSPrefix(ctx, prefix, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: hts search: %v", ErrStore, err)
	}
	return recs, nil
}

// VectorSearch returns stored records whose vectors have cosine similarity
// of at least threshold with vec, most similar first. Index hits without a
// relational row, or whose row is no longer marked embedded, are dropped.
func (s *Store) VectorSearch(ctx context.Context, vec []float32, threshold float64, limit int) ([]Match, error) {
	if s.index == nil {
		return nil, ErrVectorSearchUnavailable
	}

	hits, err := s.index.SearchNearVector(ctx, vec, threshold, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: vector search: %v", ErrStore, err)
	}
	if len(hits) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(hits))
	for _, h := range hits {
		ids = append(ids, h.RulingID)
	}
	recs, err := s.repo.GetMany(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("%w: hydrate: %v", ErrStore, err)
	}
	byID := make(map[string]Record, len(recs))
	for _, r := range recs {
		byID[r.ID] = r
	}

	matches := make([]Match, 0, len(hits))
	for _, h := range hits {
		rec, ok := byID[h.RulingID]
		if !ok {
			slog.WarnContext(ctx, "vector hit without stored ruling", "ruling_id", h.RulingID)
			continue
		}
		if !rec.Embedded {
			slog.DebugContext(ctx, "skipping stale vector for unembedded ruling", "ruling_id", h.RulingID)
			continue
		}
		if h.Similarity < threshold {
			continue
		}
		matches = append(matches, Match{Record: rec, Similarity: h.Similarity})
	}
	return matches, nil
}

// CountVectors reports how many rulings the index holds vectors for.
func (s *Store) CountVectors(ctx context.Context) (int, error) {
	if s.index == nil {
		return 0, nil
	}
	return s.index.CountVectors(ctx)
}
