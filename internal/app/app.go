package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/nsqio/go-nsq"

	"github.com/eratner15/tariff-engineer/features/job"
	"github.com/eratner15/tariff-engineer/features/mcp"
	"github.com/eratner15/tariff-engineer/features/ruling"
	"github.com/eratner15/tariff-engineer/features/search"
	"github.com/eratner15/tariff-engineer/features/stats"
	"github.com/eratner15/tariff-engineer/internal/adapter/cbp"
	"github.com/eratner15/tariff-engineer/internal/config"
	"github.com/eratner15/tariff-engineer/internal/crawler"
	"github.com/eratner15/tariff-engineer/internal/embedding"
	"github.com/eratner15/tariff-engineer/internal/middleware"
	"github.com/eratner15/tariff-engineer/internal/retrieval"
	"github.com/eratner15/tariff-engineer/internal/settings"
	"github.com/eratner15/tariff-engineer/internal/worker"
)

// ConsumerChannel is the NSQ channel every ingestion worker joins.
const ConsumerChannel = "ingest"

type App struct {
	Handler          http.Handler
	Store            *ruling.Store
	Crawler          *crawler.Crawler
	Retrieval        *retrieval.Service
	Jobs             *job.Service
	CrawlConsumer    *worker.CrawlConsumer
	BackfillConsumer *worker.BackfillConsumer

	cfg *config.Config
}

type Option func(*options)

type options struct {
	backend  embedding.Backend
	fetcher  crawler.Fetcher
	progress func(crawler.Stats)
	tune     func(*crawler.Config)
}

// WithEmbeddingBackend turns on embeddings at ingestion and semantic search.
func WithEmbeddingBackend(b embedding.Backend) Option {
	return func(o *options) { o.backend = b }
}

// WithFetcher replaces the rulings site client.
func WithFetcher(f crawler.Fetcher) Option {
	return func(o *options) { o.fetcher = f }
}

func WithProgress(fn func(crawler.Stats)) Option {
	return func(o *options) { o.progress = fn }
}

// WithCrawlerConfig adjusts the pacing derived from the environment, for
// example with command line flags.
func WithCrawlerConfig(fn func(*crawler.Config)) Option {
	return func(o *options) { o.tune = fn }
}

// CrawlerConfig maps the environment onto crawler pacing.
func CrawlerConfig(cfg *config.Config) crawler.Config {
	return crawler.Config{
		Delay:          time.Duration(cfg.CrawlDelayMS) * time.Millisecond,
		BatchSize:      cfg.CrawlBatchSize,
		BatchDelay:     time.Duration(cfg.CrawlBatchDelayMS) * time.Millisecond,
		MaxRetries:     cfg.CrawlMaxRetries,
		RetryDelay:     time.Duration(cfg.CrawlRetryDelayMS) * time.Millisecond,
		ReportEvery:    cfg.CrawlReportEvery,
		EmbeddingModel: cfg.EmbeddingModel,
	}
}

func New(
	cfg *config.Config,
	db Database,
	vecStore VectorStore,
	taskPub TaskPublisher,
	logger *slog.Logger,
	opts ...Option,
) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if logger == nil {
		logger = slog.Default()
	}

	// Repositories take *sql.DB; the interface only exists so tests can
	// hand in a sqlmock connection.
	sqlDB, ok := db.(*sql.DB)
	if !ok {
		return nil, fmt.Errorf("app: unsupported database handle %T", db)
	}

	var index ruling.VectorIndex
	if vecStore != nil {
		index = vecStore
	}
	rulingRepo := ruling.NewPostgresRepo(sqlDB)
	store := ruling.NewStore(rulingRepo, index)
	rulingHandler := ruling.NewHandler(store)

	settingsService := settings.NewService(settings.NewPostgresRepo(sqlDB))
	settingsHandler := settings.NewHandler(settingsService)

	jobRepo := job.NewPostgresRepo(sqlDB)
	jobService := job.NewService(jobRepo, taskPub, logger)
	jobHandler := job.NewHandler(jobService)

	var vectorCounter stats.VectorStore
	if vecStore != nil {
		vectorCounter = store
	}
	statsHandler := stats.NewHandler(rulingRepo, jobRepo, vectorCounter)

	var embedder *embedding.Client
	if o.backend != nil {
		embedder = embedding.NewClient(o.backend, embedding.WithRetry(cfg.EmbeddingMaxAttempts, cfg.EmbeddingRetryDelay()))
	}

	queryLogger := retrieval.NewQueryLogger(os.Stdout)
	if cfg.QueryLogPath != "" {
		fileLogger, err := retrieval.NewFileQueryLogger(cfg.QueryLogPath, os.Stdout)
		if err != nil {
			logger.Warn("failed to open query log, writing to stdout only", "path", cfg.QueryLogPath, "error", err)
		} else {
			queryLogger = fileLogger
		}
	}
	retrievalOpts := []retrieval.Option{
		retrieval.WithSettings(settingsService),
		retrieval.WithQueryLogger(queryLogger),
		retrieval.WithSemanticTimeout(cfg.SemanticTimeout()),
	}
	if embedder != nil && vecStore != nil {
		retrievalOpts = append(retrievalOpts, retrieval.WithEmbedder(embedder))
	}
	retrievalService := retrieval.NewService(store, retrievalOpts...)
	searchHandler := search.NewHandler(retrievalService)
	mcpServer, err := mcp.NewServer(retrievalService, store)
	if err != nil {
		return nil, err
	}

	fetcher := o.fetcher
	if fetcher == nil {
		fetcher = cbp.NewClient(cfg.RulingsBaseURL, cfg.UserAgent, cfg.FetchTimeout())
	}
	crawlOpts := []crawler.Option{crawler.WithFailureRecorder(jobService)}
	if embedder != nil {
		crawlOpts = append(crawlOpts, crawler.WithEmbedder(embedder))
	}
	if o.progress != nil {
		crawlOpts = append(crawlOpts, crawler.WithProgress(o.progress))
	}
	crawlCfg := CrawlerConfig(cfg)
	if o.tune != nil {
		o.tune(&crawlCfg)
	}
	c, err := crawler.New(fetcher, store, crawlCfg, crawlOpts...)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	route := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, middleware.CorrelationID(middleware.CORS(h)))
	}

	route("POST /search-rulings", searchHandler.Search)
	route("GET /rulings", rulingHandler.List)
	route("GET /rulings/{id}", rulingHandler.Get)
	route("GET /stats", statsHandler.GetStats)
	route("GET /settings", settingsHandler.GetSettings)
	route("PUT /settings", settingsHandler.UpdateSettings)
	route("GET /jobs/failed", jobHandler.List)
	route("POST /jobs/{id}/retry", jobHandler.Retry)

	mcpHandler := middleware.CorrelationID(mcpServer.Handler())
	for _, method := range []string{http.MethodGet, http.MethodPost, http.MethodDelete} {
		mux.Handle(method+" /mcp", mcpHandler)
	}

	// Preflight requests never match the method-qualified routes above.
	route("OPTIONS /", func(w http.ResponseWriter, r *http.Request) {})

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	return &App{
		Handler:          mux,
		Store:            store,
		Crawler:          c,
		Retrieval:        retrievalService,
		Jobs:             jobService,
		CrawlConsumer:    worker.NewCrawlConsumer(c, worker.DefaultTaskTimeout),
		BackfillConsumer: worker.NewBackfillConsumer(c, worker.DefaultBackfillLimit),
		cfg:              cfg,
	}, nil
}

// StartConsumers subscribes the crawl and backfill handlers. Callers stop the
// returned consumers on shutdown.
func (a *App) StartConsumers() ([]*nsq.Consumer, error) {
	subs := []struct {
		topic       string
		handler     nsq.Handler
		concurrency int
	}{
		{config.TopicCrawlTask, a.CrawlConsumer, max(a.cfg.CrawlConcurrency, 1)},
		{config.TopicCrawlBackfill, a.BackfillConsumer, 1},
	}

	var consumers []*nsq.Consumer
	for _, s := range subs {
		nsqCfg := nsq.NewConfig()
		nsqCfg.MaxInFlight = s.concurrency
		consumer, err := nsq.NewConsumer(s.topic, ConsumerChannel, nsqCfg)
		if err != nil {
			stopAll(consumers)
			return nil, fmt.Errorf("nsq consumer %s: %w", s.topic, err)
		}
		consumer.AddConcurrentHandlers(s.handler, s.concurrency)
		if err := consumer.ConnectToNSQLookupd(a.cfg.NSQLookupd); err != nil {
			consumer.Stop()
			stopAll(consumers)
			return nil, fmt.Errorf("nsq lookupd %s: %w", s.topic, err)
		}
		slog.Info("nsq consumer connected", "topic", s.topic, "concurrency", s.concurrency)
		consumers = append(consumers, consumer)
	}
	return consumers, nil
}

func stopAll(consumers []*nsq.Consumer) {
	for _, c := range consumers {
		c.Stop()
		<-c.StopChan
	}
}

// Run serves HTTP and, when enabled, the crawl workers until ctx is done.
func (a *App) Run(ctx context.Context) error {
	if a.cfg.EnableCrawlWorker {
		consumers, err := a.StartConsumers()
		if err != nil {
			return err
		}
		defer stopAll(consumers)
	}

	if !a.cfg.EnableAPI {
		<-ctx.Done()
		return nil
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.ServerPort),
		Handler:           a.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown failed", "error", err)
		}
	}()

	slog.Info("server starting", "port", a.cfg.ServerPort)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
