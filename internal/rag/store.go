package rag

import (
	"context"
	"fmt"
	"path/filepath"

	chromem "github.com/philippgille/chromem-go"
)

// GoldenCollection holds the curated reference examples.
const GoldenCollection = "golden"

// Document is one stored chunk.
type Document struct {
	ID       string
	Content  string
	Metadata map[string]string
}

// Hit is a query match.
type Hit struct {
	Document   Document
	Similarity float32
}

// Store keeps one chromem collection per source.
type Store struct {
	db       *chromem.DB
	embedder Embedder
}

// NewStore opens a persistent database under dir, or an in-memory one when
// dir is empty.
func NewStore(dir string, embedder Embedder) (*Store, error) {
	db := chromem.NewDB()
	if dir != "" {
		var err error
		db, err = chromem.NewPersistentDB(filepath.Join(dir, "chromem"), true)
		if err != nil {
			return nil, fmt.Errorf("open vector store: %w", err)
		}
	}
	return &Store{db: db, embedder: embedder}, nil
}

func (s *Store) embed(ctx context.Context, text string) ([]float32, error) {
	return s.embedder.Embed(ctx, text)
}

func (s *Store) collection(name string) (*chromem.Collection, error) {
	c, err := s.db.GetOrCreateCollection(name, nil, s.embed)
	if err != nil {
		return nil, fmt.Errorf("collection %s: %w", name, err)
	}
	return c, nil
}

// Has reports whether a collection exists and holds documents.
func (s *Store) Has(name string) bool {
	c := s.db.GetCollection(name, s.embed)
	return c != nil && c.Count() > 0
}

// Count returns the number of documents in a collection.
func (s *Store) Count(name string) int {
	c := s.db.GetCollection(name, s.embed)
	if c == nil {
		return 0
	}
	return c.Count()
}

// Add embeds and stores docs in a collection.
func (s *Store) Add(ctx context.Context, name string, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	c, err := s.collection(name)
	if err != nil {
		return err
	}
	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Content
	}
	for startIdx := 0; startIdx < len(docs); startIdx += maxEmbedBatch {
		end := min(startIdx+maxEmbedBatch, len(docs))
		vectors, err := s.embedder.EmbedBatch(ctx, texts[startIdx:end])
		if err != nil {
			return err
		}
		batch := make([]chromem.Document, 0, end-startIdx)
		for i, d := range docs[startIdx:end] {
			batch = append(batch, chromem.Document{
				ID:        d.ID,
				Content:   d.Content,
				Metadata:  d.Metadata,
				Embedding: vectors[i],
			})
		}
		if err := c.AddDocuments(ctx, batch, 1); err != nil {
			return fmt.Errorf("add to %s: %w", name, err)
		}
	}
	return nil
}

// Query returns up to n matches from a collection. Missing or empty
// collections return nothing.
func (s *Store) Query(ctx context.Context, name, text string, n int) ([]Hit, error) {
	c := s.db.GetCollection(name, s.embed)
	if c == nil || c.Count() == 0 || n <= 0 {
		return nil, nil
	}
	n = min(n, c.Count())
	results, err := c.Query(ctx, text, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", name, err)
	}
	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		hits = append(hits, Hit{
			Document:   Document{ID: r.ID, Content: r.Content, Metadata: r.Metadata},
			Similarity: r.Similarity,
		})
	}
	return hits, nil
}

// Reset drops a collection so it can be rebuilt.
func (s *Store) Reset(name string) error {
	return s.db.DeleteCollection(name)
}
