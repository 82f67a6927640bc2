// Package rag retrieves reference animation code for scene drafting. Source
// trees are chunked, embedded and kept in chromem-go collections; a curated
// golden set is always ranked ahead of everything else.
package rag

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	lru "github.com/hashicorp/golang-lru/v2"
	openai "github.com/sashabaranov/go-openai"

	mverrors "mathviz/internal/errors"
	"mathviz/internal/logging"
)

const maxEmbedBatch = 100

// Embedder turns text into vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbedderConfig configures the OpenAI-compatible embedder.
type EmbedderConfig struct {
	Model     string
	APIKey    string
	BaseURL   string
	CacheSize int
	Retry     mverrors.RetryConfig
	Logger    logging.Logger
}

// OpenAIEmbedder calls an OpenAI-compatible embeddings endpoint and caches
// vectors by input text.
type OpenAIEmbedder struct {
	client *openai.Client
	model  openai.EmbeddingModel
	cache  *lru.Cache[string, []float32]
	retry  mverrors.RetryConfig
	logger logging.Logger
}

var _ Embedder = (*OpenAIEmbedder)(nil)

func NewOpenAIEmbedder(cfg EmbedderConfig) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("embedding api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = string(openai.SmallEmbedding3)
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 10000
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = mverrors.DefaultRetryConfig()
	}
	cache, err := lru.New[string, []float32](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("create cache: %w", err)
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAIEmbedder{
		client: openai.NewClientWithConfig(clientCfg),
		model:  openai.EmbeddingModel(cfg.Model),
		cache:  cache,
		retry:  cfg.Retry,
		logger: logging.Component(cfg.Logger, "rag-embed"),
	}, nil
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := e.cache.Get(text); ok {
		return v, nil
	}
	out, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EmbedBatch embeds up to 100 texts, only sending the ones not cached.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, errors.New("no texts provided")
	}
	if len(texts) > maxEmbedBatch {
		return nil, fmt.Errorf("batch size exceeds limit: %d > %d", len(texts), maxEmbedBatch)
	}

	results := make([][]float32, len(texts))
	var missing []int
	for i, text := range texts {
		if v, ok := e.cache.Get(text); ok {
			results[i] = v
			continue
		}
		missing = append(missing, i)
	}
	if len(missing) == 0 {
		return results, nil
	}

	input := make([]string, len(missing))
	for i, idx := range missing {
		input[i] = texts[idx]
	}
	resp, err := mverrors.RetryWithResult(ctx, e.retry, func(ctx context.Context) (openai.EmbeddingResponse, error) {
		resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{Input: input, Model: e.model})
		return resp, classify(err)
	}, e.logger)
	if err != nil {
		return nil, fmt.Errorf("embed batch: %w", err)
	}

	for _, item := range resp.Data {
		if item.Index < 0 || item.Index >= len(missing) {
			return nil, fmt.Errorf("embedding index %d out of range", item.Index)
		}
		idx := missing[item.Index]
		results[idx] = item.Embedding
		e.cache.Add(texts[idx], item.Embedding)
	}
	for i, v := range results {
		if v == nil {
			return nil, fmt.Errorf("no embedding returned for input %d", i)
		}
	}
	return results, nil
}

// classify marks rate limits and server errors as retryable.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500 {
			return mverrors.NewTransientError(err, "embedding backend unavailable")
		}
		return mverrors.NewPermanentError(err, "embedding request rejected")
	}
	return err
}
