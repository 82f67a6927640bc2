package rag

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"mathviz/internal/capability"
	"mathviz/internal/config"
	"mathviz/internal/logging"
)

// Snippet is one ranked reference.
type Snippet struct {
	Collection string
	Source     string
	Content    string
	Score      float32
	Golden     bool
}

// Retriever ranks reference code across collections. Golden examples are
// always listed first.
type Retriever struct {
	store       *Store
	collections []string
	topK        int
	logger      logging.Logger
}

func NewRetriever(store *Store, collections []string, topK int, logger logging.Logger) *Retriever {
	if topK <= 0 {
		topK = 3
	}
	return &Retriever{store: store, collections: collections, topK: topK, logger: logging.Component(logger, "rag")}
}

// Detect builds a retriever from configuration: it opens the store, indexes
// any configured source trees and the golden set, and reports unavailable
// when retrieval is disabled or cannot embed.
func Detect(ctx context.Context, cfg config.RAGConfig, llm config.LLMConfig, logger logging.Logger) capability.Capability[*Retriever] {
	if !cfg.Enabled {
		return capability.Unavailable[*Retriever]("retrieval disabled")
	}
	embedder, err := NewOpenAIEmbedder(EmbedderConfig{
		Model:     cfg.EmbeddingModel,
		APIKey:    llm.APIKey,
		BaseURL:   llm.BaseURL,
		CacheSize: cfg.CacheSize,
		Logger:    logger,
	})
	if err != nil {
		return capability.Unavailablef[*Retriever]("embeddings: %v", err)
	}
	store, err := NewStore(cfg.PersistDir, embedder)
	if err != nil {
		return capability.Unavailablef[*Retriever]("%v", err)
	}
	r, err := Build(ctx, store, cfg, logger)
	return capability.FromResult(r, err)
}

// Build indexes configured sources into store and returns a retriever over
// them. Collections that fail to index are logged and left out.
func Build(ctx context.Context, store *Store, cfg config.RAGConfig, logger logging.Logger) (*Retriever, error) {
	indexer := NewIndexer(store, nil, logger)
	if cfg.GoldenDir != "" {
		if _, err := indexer.EnsureIndexed(ctx, GoldenCollection, cfg.GoldenDir); err != nil {
			logging.OrNop(logger).Warn("golden set not indexed: %v", err)
		}
	}
	for name, dir := range cfg.SourceDirs {
		if _, err := indexer.EnsureIndexed(ctx, name, dir); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logging.OrNop(logger).Warn("collection %s not indexed: %v", name, err)
		}
	}
	return NewRetriever(store, cfg.Collections, cfg.TopK, logger), nil
}

// Search queries the golden set and every collection concurrently. Up to
// topK golden examples come first, followed by the topK best matches from
// the other collections by similarity. A collection that fails is skipped.
func (r *Retriever) Search(ctx context.Context, query string) ([]Snippet, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.New("empty query")
	}
	names := append([]string{GoldenCollection}, r.collections...)
	var (
		mu      sync.Mutex
		golden  []Snippet
		regular []Snippet
		failed  int
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, name := range names {
		g.Go(func() error {
			hits, err := r.store.Query(gctx, name, query, r.topK)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				r.logger.Warn("search %s: %v", name, err)
				return nil
			}
			for _, h := range hits {
				s := Snippet{
					Collection: name,
					Source:     h.Document.Metadata["file_path"],
					Content:    h.Document.Content,
					Score:      h.Similarity,
					Golden:     name == GoldenCollection,
				}
				if s.Golden {
					golden = append(golden, s)
				} else {
					regular = append(regular, s)
				}
			}
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if failed == len(names) {
		return nil, fmt.Errorf("all %d collection(s) failed", failed)
	}

	byScore := func(s []Snippet) {
		sort.SliceStable(s, func(i, j int) bool { return s[i].Score > s[j].Score })
	}
	byScore(golden)
	byScore(regular)
	if len(golden) > r.topK {
		golden = golden[:r.topK]
	}
	if len(regular) > r.topK {
		regular = regular[:r.topK]
	}
	return append(golden, regular...), nil
}

// Retrieve returns formatted snippets for a drafting prompt.
func (r *Retriever) Retrieve(ctx context.Context, query string) (string, error) {
	snippets, err := r.Search(ctx, query)
	if err != nil {
		return "", err
	}
	return Format(snippets), nil
}

// Format renders snippets as prompt context.
func Format(snippets []Snippet) string {
	if len(snippets) == 0 {
		return "No relevant reference code found."
	}
	var b strings.Builder
	b.WriteString("REFERENCE ANIMATION CODE\n")
	b.WriteString(strings.Repeat("=", 40) + "\n\n")
	for i, s := range snippets {
		label := s.Collection
		if s.Source != "" {
			label += "/" + s.Source
		}
		if s.Golden {
			label += ", curated"
		}
		fmt.Fprintf(&b, "Example %d (%s, score %.4f):\n", i+1, label, s.Score)
		b.WriteString(strings.Repeat("-", 20) + "\n")
		b.WriteString(strings.TrimSpace(s.Content) + "\n")
		b.WriteString(strings.Repeat("-", 20) + "\n\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
