package rag

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"golang.org/x/sync/errgroup"

	"mathviz/internal/logging"
)

const indexConcurrency = 8

// IndexStats summarises one indexing run.
type IndexStats struct {
	Collection string
	Files      int
	Chunks     int
	Failed     int
}

// Indexer loads source trees into collections.
type Indexer struct {
	store   *Store
	chunker *Chunker
	logger  logging.Logger
}

func NewIndexer(store *Store, chunker *Chunker, logger logging.Logger) *Indexer {
	if chunker == nil {
		chunker = NewChunker(0)
	}
	return &Indexer{store: store, chunker: chunker, logger: logging.Component(logger, "rag-index")}
}

// EnsureIndexed indexes dir into collection unless the collection already
// holds documents.
func (x *Indexer) EnsureIndexed(ctx context.Context, collection, dir string) (IndexStats, error) {
	if x.store.Has(collection) {
		return IndexStats{Collection: collection, Chunks: x.store.Count(collection)}, nil
	}
	return x.Index(ctx, collection, dir)
}

// Index walks dir for .py files and stores their chunks. Files that fail to
// read are counted and skipped.
func (x *Indexer) Index(ctx context.Context, collection, dir string) (IndexStats, error) {
	stats := IndexStats{Collection: collection}
	files, err := pythonFiles(dir)
	if err != nil {
		return stats, err
	}
	stats.Files = len(files)

	var (
		mu   sync.Mutex
		docs []Document
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(indexConcurrency)
	for _, path := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			fileDocs, err := x.documents(dir, path)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				stats.Failed++
				x.logger.Warn("skip %s: %v", path, err)
				return nil
			}
			docs = append(docs, fileDocs...)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return stats, err
	}

	if err := x.store.Add(ctx, collection, docs); err != nil {
		return stats, err
	}
	stats.Chunks = len(docs)
	x.logger.Info("indexed %s: %d chunk(s) from %d file(s)", collection, stats.Chunks, stats.Files)
	return stats, nil
}

func (x *Indexer) documents(root, path string) ([]Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = path
	}
	chunks := x.chunker.Split(string(data))
	docs := make([]Document, 0, len(chunks))
	for _, c := range chunks {
		key := fmt.Sprintf("%s:%d-%d", rel, c.StartLine, c.EndLine)
		docs = append(docs, Document{
			ID:      fmt.Sprintf("%x", sha256.Sum256([]byte(key)))[:16],
			Content: c.Text,
			Metadata: map[string]string{
				"file_path":  filepath.ToSlash(rel),
				"start_line": strconv.Itoa(c.StartLine),
				"end_line":   strconv.Itoa(c.EndLine),
			},
		})
	}
	return docs, nil
}

var skipDirs = map[string]bool{".git": true, "__pycache__": true, "node_modules": true, ".venv": true, "venv": true}

func pythonFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if skipDirs[d.Name()] {
				return fs.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) == ".py" {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}
	return files, nil
}
