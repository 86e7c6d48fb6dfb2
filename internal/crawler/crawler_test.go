package crawler_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/eratner15/tariff-engineer/features/ruling"
	"github.com/eratner15/tariff-engineer/internal/crawler"
	"github.com/eratner15/tariff-engineer/internal/text"
)

func testConfig() crawler.Config {
	cfg := crawler.DefaultConfig()
	cfg.Delay = 0
	cfg.RetryDelay = time.Millisecond
	cfg.BatchDelay = 0
	cfg.ReportEvery = 0
	return cfg
}

func localRange(start, end int) []crawler.Range {
	return []crawler.Range{{Kind: ruling.KindLocal, Start: 330000 + start, End: 330000 + end}}
}

func TestRun_CountsEveryOutcome(t *testing.T) {
	fetcher := newFakeFetcher().
		on("N330002", fetchResult{doc: validDoc()}).
		on("N330003", fetchResult{err: ruling.ErrNotFound}).
		on("N330004", fetchResult{doc: text.Document{Body: "Page not found"}}).
		on("N330005", fetchResult{err: ruling.ErrTransientFetch}, fetchResult{err: ruling.ErrTransientFetch}, fetchResult{doc: validDoc()})
	store := newMemStore("N330001")

	c, err := crawler.New(fetcher, store, testConfig())
	require.NoError(t, err)

	stats, err := c.Run(context.Background(), localRange(1, 5))
	require.NoError(t, err)

	assert.Equal(t, crawler.Stats{Fetched: 2, SkippedExisting: 1, NotFound: 1, Malformed: 1}, stats)
	assert.Equal(t, int64(5), stats.Processed())
	assert.Equal(t, 0, fetcher.callCount("N330001"))
	assert.Equal(t, 3, fetcher.callCount("N330005"))

	rec, ok := store.get("N330002")
	require.True(t, ok)
	assert.Equal(t, ruling.KindLocal, rec.Kind)
	assert.Equal(t, []string{"6404.19.90"}, rec.HTSCodes)
	assert.Equal(t, "Footwear", rec.Category)
	assert.Equal(t, "https://rulings.cbp.gov/ruling/N330002", rec.SourceURL)
	assert.False(t, rec.Embedded)

	_, ok = store.get("N330004")
	assert.False(t, ok)
}

func TestRun_IsIdempotent(t *testing.T) {
	fetcher := newFakeFetcher().
		on("N330001", fetchResult{doc: validDoc()}).
		on("N330002", fetchResult{doc: validDoc()})
	store := newMemStore()

	c, err := crawler.New(fetcher, store, testConfig())
	require.NoError(t, err)
	_, err = c.Run(context.Background(), localRange(1, 2))
	require.NoError(t, err)

	again, err := crawler.New(fetcher, store, testConfig())
	require.NoError(t, err)
	stats, err := again.Run(context.Background(), localRange(1, 2))
	require.NoError(t, err)

	assert.Equal(t, crawler.Stats{SkippedExisting: 2}, stats)
	assert.Equal(t, 2, fetcher.totalCalls())
	assert.Equal(t, 2, store.upserts)
}

func TestRun_ForceRefetchesStoredIDs(t *testing.T) {
	fetcher := newFakeFetcher().on("N330001", fetchResult{doc: validDoc()})
	store := newMemStore("N330001")

	cfg := testConfig()
	cfg.Force = true
	c, err := crawler.New(fetcher, store, cfg)
	require.NoError(t, err)

	stats, err := c.Run(context.Background(), localRange(1, 1))
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Fetched)
	assert.Equal(t, 1, fetcher.callCount("N330001"))
}

func TestRun_TransientExhaustionIsRecorded(t *testing.T) {
	fetcher := newFakeFetcher().on("N330007", fetchResult{err: ruling.ErrTransientFetch})
	store := newMemStore()
	recorder := new(MockFailureRecorder)
	recorder.On("RecordFailure", mock.Anything, "N330007", crawler.StageFetch, mock.MatchedBy(func(err error) bool {
		return errors.Is(err, ruling.ErrTransientFetch)
	})).Return(nil).Once()

	cfg := testConfig()
	cfg.MaxRetries = 2
	c, err := crawler.New(fetcher, store, cfg, crawler.WithFailureRecorder(recorder))
	require.NoError(t, err)

	stats, err := c.Run(context.Background(), localRange(7, 7))
	require.NoError(t, err)

	assert.Equal(t, crawler.Stats{Errored: 1}, stats)
	assert.Equal(t, 3, fetcher.callCount("N330007"))
	recorder.AssertExpectations(t)
}

func TestRun_RecorderErrorDoesNotStopCrawl(t *testing.T) {
	fetcher := newFakeFetcher().
		on("N330001", fetchResult{err: errors.New("unexpected status 403")}).
		on("N330002", fetchResult{doc: validDoc()})
	recorder := new(MockFailureRecorder)
	recorder.On("RecordFailure", mock.Anything, "N330001", crawler.StageFetch, mock.Anything).Return(errors.New("db down"))

	c, err := crawler.New(fetcher, newMemStore(), testConfig(), crawler.WithFailureRecorder(recorder))
	require.NoError(t, err)

	stats, err := c.Run(context.Background(), localRange(1, 2))
	require.NoError(t, err)
	assert.Equal(t, crawler.Stats{Fetched: 1, Errored: 1}, stats)
	assert.Equal(t, 1, fetcher.callCount("N330001"))
}

func TestRun_StoreFailures(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*MockStore, *MockFailureRecorder)
	}{
		{
			name: "exists check fails",
			setup: func(s *MockStore, r *MockFailureRecorder) {
				s.On("Exists", mock.Anything, "N330001").Return(false, errors.New("conn refused"))
				r.On("RecordFailure", mock.Anything, "N330001", crawler.StageStore, mock.Anything).Return(nil)
			},
		},
		{
			name: "upsert fails",
			setup: func(s *MockStore, r *MockFailureRecorder) {
				s.On("Exists", mock.Anything, "N330001").Return(false, nil)
				s.On("Upsert", mock.Anything, mock.AnythingOfType("*ruling.Record")).Return(ruling.ErrStore)
				r.On("RecordFailure", mock.Anything, "N330001", crawler.StageStore, ruling.ErrStore).Return(nil)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := new(MockStore)
			recorder := new(MockFailureRecorder)
			tt.setup(store, recorder)
			fetcher := newFakeFetcher().on("N330001", fetchResult{doc: validDoc()})

			c, err := crawler.New(fetcher, store, testConfig(), crawler.WithFailureRecorder(recorder))
			require.NoError(t, err)

			stats, err := c.Run(context.Background(), localRange(1, 1))
			require.NoError(t, err)
			assert.Equal(t, crawler.Stats{Errored: 1}, stats)
			store.AssertExpectations(t)
			recorder.AssertExpectations(t)
		})
	}
}

func TestRun_EmbedsWhenEnabled(t *testing.T) {
	fetcher := newFakeFetcher().on("N330001", fetchResult{doc: validDoc()})
	store := newMemStore()
	embedder := new(MockEmbedder)
	embedder.On("Embed", mock.Anything, mock.MatchedBy(func(s string) bool {
		return len(s) > 0
	})).Return([]float32{0.1, 0.2}, nil).Once()

	cfg := testConfig()
	cfg.EmbeddingModel = "test-model"
	c, err := crawler.New(fetcher, store, cfg, crawler.WithEmbedder(embedder))
	require.NoError(t, err)
	assert.True(t, c.EmbeddingsEnabled())

	stats, err := c.Run(context.Background(), localRange(1, 1))
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Fetched)

	rec, ok := store.get("N330001")
	require.True(t, ok)
	assert.Equal(t, []float32{0.1, 0.2}, rec.Embedding)
	assert.Equal(t, "test-model", rec.EmbeddingModel)
	assert.True(t, rec.Embedded)
	embedder.AssertExpectations(t)
}

func TestRun_EmbeddingFailureSkipsStore(t *testing.T) {
	fetcher := newFakeFetcher().on("N330001", fetchResult{doc: validDoc()})
	store := newMemStore()
	embedder := new(MockEmbedder)
	embedder.On("Embed", mock.Anything, mock.Anything).Return(nil, errors.New("quota exceeded"))
	recorder := new(MockFailureRecorder)
	recorder.On("RecordFailure", mock.Anything, "N330001", crawler.StageEmbed, mock.Anything).Return(nil).Once()

	c, err := crawler.New(fetcher, store, testConfig(), crawler.WithEmbedder(embedder), crawler.WithFailureRecorder(recorder))
	require.NoError(t, err)

	stats, err := c.Run(context.Background(), localRange(1, 1))
	require.NoError(t, err)
	assert.Equal(t, crawler.Stats{Errored: 1}, stats)
	assert.Equal(t, 0, store.upserts)
	recorder.AssertExpectations(t)
}

func TestRun_BatchedMode(t *testing.T) {
	fetcher := newFakeFetcher()
	for _, id := range (crawler.Range{Kind: ruling.KindPrecedential, Start: 310001, End: 310007}).IDs() {
		fetcher.on(id, fetchResult{doc: validDoc()})
	}
	store := newMemStore()

	var mu sync.Mutex
	var pauses []time.Duration
	sleep := func(ctx context.Context, d time.Duration) error {
		mu.Lock()
		defer mu.Unlock()
		pauses = append(pauses, d)
		return nil
	}

	cfg := testConfig()
	cfg.BatchSize = 3
	cfg.BatchDelay = 2 * time.Second
	c, err := crawler.New(fetcher, store, cfg, crawler.WithSleep(sleep))
	require.NoError(t, err)

	stats, err := c.Run(context.Background(), []crawler.Range{{Kind: ruling.KindPrecedential, Start: 310001, End: 310007}})
	require.NoError(t, err)

	assert.Equal(t, int64(7), stats.Fetched)
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, pauses)
	rec, ok := store.get("H310007")
	require.True(t, ok)
	assert.Equal(t, ruling.KindPrecedential, rec.Kind)
}

func TestRun_SequentialPacing(t *testing.T) {
	fetcher := newFakeFetcher()
	for _, id := range (crawler.Range{Kind: ruling.KindLocal, Start: 330001, End: 330003}).IDs() {
		fetcher.on(id, fetchResult{err: ruling.ErrNotFound})
	}

	cfg := testConfig()
	cfg.Delay = 20 * time.Millisecond
	c, err := crawler.New(fetcher, newMemStore(), cfg)
	require.NoError(t, err)

	start := time.Now()
	stats, err := c.Run(context.Background(), localRange(1, 3))
	require.NoError(t, err)

	assert.Equal(t, int64(3), stats.NotFound)
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestRun_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	fetcher := newFakeFetcher().on("N330001", fetchResult{doc: validDoc()})

	progress := func(s crawler.Stats) {
		if s.Processed() == 1 {
			cancel()
		}
	}

	cfg := testConfig()
	cfg.ReportEvery = 1
	c, err := crawler.New(fetcher, newMemStore(), cfg, crawler.WithProgress(progress))
	require.NoError(t, err)

	stats, err := c.Run(ctx, localRange(1, 100))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int64(1), stats.Processed())
	assert.Equal(t, 0, fetcher.callCount("N330002"))
}

func TestRun_ResumesAfterInterruption(t *testing.T) {
	scripted := func() *fakeFetcher {
		f := newFakeFetcher()
		for n := 1; n <= 10; n++ {
			if n == 4 || n == 8 {
				continue
			}
			f.on(ruling.FormatID(ruling.KindLocal, 330000+n), fetchResult{doc: validDoc()})
		}
		return f
	}
	cfg := testConfig()
	cfg.ReportEvery = 1

	// Uninterrupted reference run.
	reference := newMemStore()
	c, err := crawler.New(scripted(), reference, cfg)
	require.NoError(t, err)
	_, err = c.Run(context.Background(), localRange(1, 10))
	require.NoError(t, err)

	// Interrupted after four ids, then restarted on the same range.
	fetcher := scripted()
	store := newMemStore()
	ctx, cancel := context.WithCancel(context.Background())
	interrupt := func(s crawler.Stats) {
		if s.Processed() == 4 {
			cancel()
		}
	}
	first, err := crawler.New(fetcher, store, cfg, crawler.WithProgress(interrupt))
	require.NoError(t, err)
	partial, err := first.Run(ctx, localRange(1, 10))
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, int64(4), partial.Processed())

	second, err := crawler.New(fetcher, store, cfg)
	require.NoError(t, err)
	rest, err := second.Run(context.Background(), localRange(1, 10))
	require.NoError(t, err)

	assert.Equal(t, partial.Fetched, rest.SkippedExisting)
	assert.Equal(t, reference.ids(), store.ids())
	assert.Len(t, store.ids(), 8)
	assert.Equal(t, int(partial.Fetched+rest.Fetched), store.upserts)
	assert.Equal(t, reference.upserts, store.upserts)
	for n := 1; n <= 3; n++ {
		assert.Equal(t, 1, fetcher.callCount(ruling.FormatID(ruling.KindLocal, 330000+n)))
	}
}

func TestRun_InvalidRange(t *testing.T) {
	fetcher := newFakeFetcher()
	c, err := crawler.New(fetcher, newMemStore(), testConfig())
	require.NoError(t, err)

	ranges := []crawler.Range{
		{Kind: ruling.KindLocal, Start: 330001, End: 330002},
		{Kind: ruling.KindLocal, Start: 330009, End: 330003},
	}
	_, err = c.Run(context.Background(), ranges)
	assert.ErrorIs(t, err, crawler.ErrInvalidRange)
	assert.Equal(t, 0, fetcher.totalCalls())
}

func TestNew_RejectsNegativePacing(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetries = -1
	_, err := crawler.New(newFakeFetcher(), newMemStore(), cfg)
	assert.ErrorIs(t, err, crawler.ErrInvalidRange)
}

func TestRun_ReportsProgress(t *testing.T) {
	fetcher := newFakeFetcher()
	var reports []crawler.Stats

	cfg := testConfig()
	cfg.ReportEvery = 2
	c, err := crawler.New(fetcher, newMemStore(), cfg, crawler.WithProgress(func(s crawler.Stats) {
		reports = append(reports, s)
	}))
	require.NoError(t, err)

	_, err = c.Run(context.Background(), localRange(1, 5))
	require.NoError(t, err)

	require.Len(t, reports, 3)
	assert.Equal(t, int64(2), reports[0].Processed())
	assert.Equal(t, int64(4), reports[1].Processed())
	assert.Equal(t, int64(5), reports[2].Processed())
}

func TestProcessID(t *testing.T) {
	fetcher := newFakeFetcher().on("H311000", fetchResult{doc: validDoc()})
	store := newMemStore("H311000")
	c, err := crawler.New(fetcher, store, testConfig())
	require.NoError(t, err)

	outcome, err := c.ProcessID(context.Background(), "H311000", false)
	require.NoError(t, err)
	assert.Equal(t, crawler.OutcomeSkippedExisting, outcome)

	outcome, err = c.ProcessID(context.Background(), "H311000", true)
	require.NoError(t, err)
	assert.Equal(t, crawler.OutcomeFetched, outcome)
	assert.Equal(t, "fetched", outcome.String())

	_, err = c.ProcessID(context.Background(), "X123", false)
	assert.ErrorIs(t, err, ruling.ErrInvalidID)

	assert.Equal(t, crawler.Stats{Fetched: 1, SkippedExisting: 1}, c.Stats())
}

func TestRange(t *testing.T) {
	r := crawler.Range{Kind: ruling.KindLocal, Start: 330000, End: 330002}
	assert.NoError(t, r.Validate())
	assert.Equal(t, 3, r.Len())
	assert.Equal(t, []string{"N330000", "N330001", "N330002"}, r.IDs())
	assert.Equal(t, "N330000-N330002", r.String())

	bad := crawler.Range{Kind: ruling.Kind("bogus"), Start: 1, End: 2}
	assert.ErrorIs(t, bad.Validate(), crawler.ErrInvalidRange)
	assert.Equal(t, 0, crawler.Range{Kind: ruling.KindLocal, Start: 5, End: 1}.Len())

	defaults := crawler.DefaultRanges()
	require.Len(t, defaults, 2)
	assert.Equal(t, 10001, defaults[0].Len())
	assert.Equal(t, ruling.KindPrecedential, defaults[1].Kind)
}
