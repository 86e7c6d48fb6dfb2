package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/eratner15/tariff-engineer/internal/text"
)

const (
	// Model is the embedding model every stored vector was produced with.
	Model = "gemini-embedding-001"
	// Dimension is the length of every vector produced by Model.
	Dimension = 3072

	MaxInputChars     = 8000
	MaxRationaleChars = 2000

	DefaultMaxAttempts = 3
	DefaultRetryDelay  = time.Second
)

var (
	ErrEmbeddingService  = errors.New("embedding service error")
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)

// Backend is a raw embedding provider. Implementations return whatever the
// remote model produced; Client enforces the dimension contract.
type Backend interface {
	EmbedContent(ctx context.Context, text string) ([]float32, error)
	BatchEmbedContents(ctx context.Context, texts []string) ([][]float32, error)
}

// QueryBackend is implemented by backends that embed search queries
// differently from stored documents.
type QueryBackend interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

type Option func(*Client)

// WithRetry sets the total attempt budget and the first backoff interval.
func WithRetry(maxAttempts int, delay time.Duration) Option {
	return func(c *Client) {
		if maxAttempts > 0 {
			c.maxAttempts = maxAttempts
		}
		c.retryDelay = delay
	}
}

// Client turns text into fixed-length vectors with bounded retries.
type Client struct {
	backend     Backend
	maxAttempts int
	retryDelay  time.Duration
}

func NewClient(backend Backend, opts ...Option) *Client {
	c := &Client{
		backend:     backend,
		maxAttempts: DefaultMaxAttempts,
		retryDelay:  DefaultRetryDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Embed returns the document vector for s, truncated to MaxInputChars first.
func (c *Client) Embed(ctx context.Context, s string) ([]float32, error) {
	return c.embed(ctx, s, c.backend.EmbedContent)
}

// EmbedQuery returns the vector for a search query. Backends without a
// query mode fall back to the document embedding.
func (c *Client) EmbedQuery(ctx context.Context, s string) ([]float32, error) {
	if qb, ok := c.backend.(QueryBackend); ok {
		return c.embed(ctx, s, qb.EmbedQuery)
	}
	return c.embed(ctx, s, c.backend.EmbedContent)
}

func (c *Client) embed(ctx context.Context, s string, call func(context.Context, string) ([]float32, error)) ([]float32, error) {
	input := text.Truncate(s, MaxInputChars)

	var vec []float32
	op := func() error {
		v, err := call(ctx, input)
		if err != nil {
			slog.WarnContext(ctx, "embedding attempt failed", "error", err)
			return err
		}
		if err := checkDimension(v); err != nil {
			return backoff.Permanent(err)
		}
		vec = v
		return nil
	}

	if err := backoff.Retry(op, c.policy(ctx)); err != nil {
		return nil, c.wrap(err)
	}
	return vec, nil
}

// EmbedBatch embeds texts in one backend call. The result is index-aligned
// with texts.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	inputs := make([]string, len(texts))
	for i, t := range texts {
		inputs[i] = text.Truncate(t, MaxInputChars)
	}

	var vecs [][]float32
	op := func() error {
		vs, err := c.backend.BatchEmbedContents(ctx, inputs)
		if err != nil {
			slog.WarnContext(ctx, "batch embedding attempt failed", "error", err, "size", len(inputs))
			return err
		}
		if len(vs) != len(inputs) {
			return backoff.Permanent(fmt.Errorf("%w: got %d vectors for %d inputs", ErrEmbeddingService, len(vs), len(inputs)))
		}
		for _, v := range vs {
			if err := checkDimension(v); err != nil {
				return backoff.Permanent(err)
			}
		}
		vecs = vs
		return nil
	}

	if err := backoff.Retry(op, c.policy(ctx)); err != nil {
		return nil, c.wrap(err)
	}
	return vecs, nil
}

func (c *Client) policy(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = c.retryDelay
	eb.RandomizationFactor = 0
	eb.Multiplier = 2
	eb.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(c.maxAttempts-1)), ctx)
}

func (c *Client) wrap(err error) error {
	if errors.Is(err, ErrDimensionMismatch) || errors.Is(err, ErrEmbeddingService) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrEmbeddingService, err)
}

func checkDimension(v []float32) error {
	if len(v) != Dimension {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(v), Dimension)
	}
	return nil
}

// Fields are the ruling parts that feed the embedding text.
type Fields struct {
	ProductDescription    string
	ClassificationSnippet string
	Rationale             string
}

// PrepareText builds the embedding input. Empty parts are omitted and the
// rationale is capped at MaxRationaleChars.
func PrepareText(f Fields) string {
	var parts []string
	if f.ProductDescription != "" {
		parts = append(parts, "Product: "+f.ProductDescription)
	}
	if f.ClassificationSnippet != "" {
		parts = append(parts, "Classification: "+f.ClassificationSnippet)
	}
	if f.Rationale != "" {
		parts = append(parts, "Rationale: "+text.Truncate(f.Rationale, MaxRationaleChars))
	}
	return strings.Join(parts, "\n\n")
}

// CosineSimilarity returns the cosine of the angle between a and b, or 0 when
// either has zero magnitude.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}
