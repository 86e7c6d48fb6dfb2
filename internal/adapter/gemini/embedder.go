package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// DefaultModel matches embedding.Model.
const DefaultModel = "gemini-embedding-001"

// maxBatchSize is the request limit of batchEmbedContents.
const maxBatchSize = 100

var ErrMissingAPIKey = errors.New("gemini api key not configured")

type Embedder struct {
	client *genai.Client
	model  string
}

// NewEmbedder builds an embedder bound to apiKey. The key comes from
// configuration; it is never looked up at call time.
func NewEmbedder(ctx context.Context, apiKey, model string, opts ...option.ClientOption) (*Embedder, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	if model == "" {
		model = DefaultModel
	}

	opts = append(opts, option.WithAPIKey(apiKey))
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("genai client: %w", err)
	}
	return &Embedder{client: client, model: model}, nil
}

func (e *Embedder) Model() string {
	return e.model
}

// EmbedContent embeds a ruling for storage.
func (e *Embedder) EmbedContent(ctx context.Context, text string) ([]float32, error) {
	return e.embed(ctx, text, genai.TaskTypeRetrievalDocument)
}

// EmbedQuery embeds a search description so it lands near the stored
// rulings it should retrieve.
func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return e.embed(ctx, text, genai.TaskTypeRetrievalQuery)
}

func (e *Embedder) embed(ctx context.Context, text string, task genai.TaskType) ([]float32, error) {
	slog.DebugContext(ctx, "embedding content", "model", e.model, "task", task, "length", len(text))
	em := e.client.EmbeddingModel(e.model)
	em.TaskType = task
	res, err := em.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, err
	}
	if res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, fmt.Errorf("empty embedding received")
	}
	return res.Embedding.Values, nil
}

func (e *Embedder) BatchEmbedContents(ctx context.Context, texts []string) ([][]float32, error) {
	em := e.client.EmbeddingModel(e.model)
	em.TaskType = genai.TaskTypeRetrievalDocument

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += maxBatchSize {
		end := min(start+maxBatchSize, len(texts))
		slog.DebugContext(ctx, "embedding batch", "model", e.model, "size", end-start)

		b := em.NewBatch()
		for _, t := range texts[start:end] {
			b.AddContent(genai.Text(t))
		}
		res, err := em.BatchEmbedContents(ctx, b)
		if err != nil {
			return nil, err
		}
		for _, emb := range res.Embeddings {
			if emb == nil {
				out = append(out, nil)
				continue
			}
			out = append(out, emb.Values)
		}
	}
	return out, nil
}

func (e *Embedder) Close() error {
	return e.client.Close()
}
