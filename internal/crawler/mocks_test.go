package crawler_test

import (
	"context"
	"sort"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/eratner15/tariff-engineer/features/ruling"
	"github.com/eratner15/tariff-engineer/internal/text"
)

const validBody = `N330123 March 15, 2023. The item under consideration is a running shoe with a rubber outer sole.
The merchandise is classified under 6404.19.90, HTSUS, which provides for footwear with outer soles of rubber.`

func validDoc() text.Document {
	return text.Document{
		Body: validBody,
		Paragraphs: []string{
			"The item under consideration is a running shoe with a rubber outer sole and textile upper product.",
			"The merchandise is classified under 6404.19.90, HTSUS, which provides for footwear with outer soles of rubber.",
		},
	}
}

// fakeFetcher answers from a script of results per id. The last entry
// repeats once the script is exhausted.
type fakeFetcher struct {
	mu      sync.Mutex
	results map[string][]fetchResult
	calls   map[string]int
}

type fetchResult struct {
	doc text.Document
	err error
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{results: map[string][]fetchResult{}, calls: map[string]int{}}
}

func (f *fakeFetcher) on(id string, results ...fetchResult) *fakeFetcher {
	f.results[id] = results
	return f
}

func (f *fakeFetcher) Fetch(ctx context.Context, id string) (text.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.calls[id]
	f.calls[id]++
	script, ok := f.results[id]
	if !ok {
		return text.Document{}, ruling.ErrNotFound
	}
	if n >= len(script) {
		n = len(script) - 1
	}
	return script[n].doc, script[n].err
}

func (f *fakeFetcher) callCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

func (f *fakeFetcher) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.calls {
		total += n
	}
	return total
}

// memStore is an in-memory crawler.Store.
type memStore struct {
	mu      sync.Mutex
	records map[string]ruling.Record
	upserts int
}

func newMemStore(ids ...string) *memStore {
	s := &memStore{records: map[string]ruling.Record{}}
	for _, id := range ids {
		s.records[id] = ruling.Record{ID: id}
	}
	return s
}

func (s *memStore) Exists(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.records[id]
	return ok, nil
}

func (s *memStore) Upsert(ctx context.Context, r *ruling.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.Embedded = len(r.Embedding) > 0
	s.records[r.ID] = *r
	s.upserts++
	return nil
}

func (s *memStore) ListUnembedded(ctx context.Context, limit int) ([]ruling.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ruling.Record
	for _, r := range s.records {
		if !r.Embedded {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) SetEmbedding(ctx context.Context, r *ruling.Record, vec []float32, model string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.Embedding = vec
	r.EmbeddingModel = model
	r.Embedded = true
	s.records[r.ID] = *r
	return nil
}

func (s *memStore) get(id string) (ruling.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	return r, ok
}

func (s *memStore) ids() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.records))
	for id := range s.records {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

type MockStore struct {
	mock.Mock
}

func (m *MockStore) Exists(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockStore) Upsert(ctx context.Context, r *ruling.Record) error {
	return m.Called(ctx, r).Error(0)
}

func (m *MockStore) ListUnembedded(ctx context.Context, limit int) ([]ruling.Record, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]ruling.Record), args.Error(1)
}

func (m *MockStore) SetEmbedding(ctx context.Context, r *ruling.Record, vec []float32, model string) error {
	return m.Called(ctx, r, vec, model).Error(0)
}

type MockEmbedder struct {
	mock.Mock
}

func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

func (m *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	args := m.Called(ctx, texts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([][]float32), args.Error(1)
}

type MockFailureRecorder struct {
	mock.Mock
}

func (m *MockFailureRecorder) RecordFailure(ctx context.Context, rulingID, stage string, cause error) error {
	return m.Called(ctx, rulingID, stage, cause).Error(0)
}
