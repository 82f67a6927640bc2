package rag

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mathviz/internal/config"
	mverrors "mathviz/internal/errors"
)

// bagEmbedder hashes lowercase words into a fixed vector so texts sharing
// words land close together.
type bagEmbedder struct{}

const bagDims = 64

func (bagEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	v := make([]float32, bagDims)
	v[0] = 0.01
	for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '_')
	}) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		v[1+int(h.Sum32()%(bagDims-1))]++
	}
	return v, nil
}

func (b bagEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i], _ = b.Embed(ctx, t)
	}
	return out, nil
}

func wordCount(s string) int { return len(strings.Fields(s)) }

func TestChunkerSplitsAtTopLevelDefinitions(t *testing.T) {
	source := `from manim import *

# A circle that grows.
class Grow(Scene):
    def construct(self):
        self.play(Create(Circle()))

@helper
def fade(mob):
    return FadeOut(mob)
`
	c := &Chunker{MaxTokens: 10, Count: wordCount}
	chunks := c.Split(source)
	require.Len(t, chunks, 3)

	assert.Equal(t, "from manim import *", chunks[0].Text)
	assert.Equal(t, 1, chunks[0].StartLine)
	assert.True(t, strings.HasPrefix(chunks[1].Text, "# A circle that grows.\nclass Grow(Scene):"))
	assert.Equal(t, 3, chunks[1].StartLine)
	assert.Equal(t, 6, chunks[1].EndLine)
	assert.True(t, strings.HasPrefix(chunks[2].Text, "@helper\ndef fade(mob):"))
	assert.Equal(t, 8, chunks[2].StartLine)
}

func TestChunkerPacksSmallDefinitions(t *testing.T) {
	source := "def a():\n    pass\n\ndef b():\n    pass\n"
	chunks := (&Chunker{MaxTokens: 100, Count: wordCount}).Split(source)
	require.Len(t, chunks, 1)
	assert.Equal(t, 1, chunks[0].StartLine)
	assert.Equal(t, 5, chunks[0].EndLine)
}

func TestChunkerSplitsOversizedDefinitions(t *testing.T) {
	source := "class Big(Scene):\n    a = 1 2 3\n    b = 4 5 6\n    c = 7 8 9\n"
	chunks := (&Chunker{MaxTokens: 6, Count: wordCount}).Split(source)
	require.GreaterOrEqual(t, len(chunks), 2)
	for _, c := range chunks {
		assert.LessOrEqual(t, wordCount(c.Text), 6)
	}
	assert.Equal(t, 1, chunks[0].StartLine)
}

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return dir
}

func TestIndexerSkipsCachesAndIsIdempotent(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"scenes/grow.py":          "class Grow(Scene):\n    def construct(self):\n        self.play(GrowFromCenter(Circle()))\n",
		"scenes/notes.txt":        "not python",
		"__pycache__/grow.py":     "class Cached: pass\n",
		"graphs/plot_parabola.py": "class Parabola(Scene):\n    def construct(self):\n        axes = Axes()\n",
	})
	store, err := NewStore("", bagEmbedder{})
	require.NoError(t, err)
	indexer := NewIndexer(store, &Chunker{MaxTokens: 512, Count: wordCount}, nil)

	stats, err := indexer.EnsureIndexed(context.Background(), "examples", dir)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Files)
	assert.Equal(t, 2, stats.Chunks)
	assert.Equal(t, 2, store.Count("examples"))

	again, err := indexer.EnsureIndexed(context.Background(), "examples", dir)
	require.NoError(t, err)
	assert.Equal(t, 0, again.Files)
	assert.Equal(t, 2, store.Count("examples"))
}

func TestRetrieverPutsGoldenFirst(t *testing.T) {
	golden := writeTree(t, map[string]string{
		"network.py": "class NeuralNetwork(Scene):\n    def construct(self):\n        layers = VGroup()\n",
	})
	videos := writeTree(t, map[string]string{
		"derivative.py": "class Derivative(Scene):\n    def construct(self):\n        tangent line slope derivative curve\n",
		"integral.py":   "class Integral(Scene):\n    def construct(self):\n        area under curve riemann rectangles\n",
		"matrix.py":     "class Matrix(Scene):\n    def construct(self):\n        linear transformation grid\n",
	})
	store, err := NewStore("", bagEmbedder{})
	require.NoError(t, err)

	r, err := Build(context.Background(), store, config.RAGConfig{
		GoldenDir:   golden,
		SourceDirs:  map[string]string{"3b1b_videos": videos},
		Collections: []string{"3b1b_videos", "3b1b_missing"},
		TopK:        2,
	}, nil)
	require.NoError(t, err)

	snippets, err := r.Search(context.Background(), "tangent line slope of the derivative curve")
	require.NoError(t, err)
	require.Len(t, snippets, 3)
	assert.True(t, snippets[0].Golden)
	assert.Equal(t, "network.py", snippets[0].Source)
	assert.Equal(t, "derivative.py", snippets[1].Source)
	assert.Greater(t, snippets[1].Score, snippets[0].Score)
	assert.GreaterOrEqual(t, snippets[1].Score, snippets[2].Score)

	text, err := r.Retrieve(context.Background(), "derivative")
	require.NoError(t, err)
	assert.Contains(t, text, "Example 1 (golden/network.py, curated")

	_, err = r.Search(context.Background(), "  ")
	assert.Error(t, err)
}

func TestFormatEmpty(t *testing.T) {
	assert.Equal(t, "No relevant reference code found.", Format(nil))
}

func TestOpenAIEmbedderCachesVectors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.True(t, strings.HasSuffix(r.URL.Path, "/embeddings"))
		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "text-embedding-3-small", req.Model)

		type item struct {
			Object    string    `json:"object"`
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}
		data := make([]item, len(req.Input))
		for i, in := range req.Input {
			data[i] = item{Object: "embedding", Embedding: []float32{float32(len(in)), 1}, Index: i}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": data, "model": req.Model})
	}))
	defer server.Close()

	e, err := NewOpenAIEmbedder(EmbedderConfig{
		APIKey:  "test",
		BaseURL: server.URL + "/v1",
		Retry:   mverrors.RetryConfig{MaxAttempts: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond},
	})
	require.NoError(t, err)

	vecs, err := e.EmbedBatch(context.Background(), []string{"ab", "abcd"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{2, 1}, {4, 1}}, vecs)

	v, err := e.Embed(context.Background(), "abcd")
	require.NoError(t, err)
	assert.Equal(t, []float32{4, 1}, v)
	assert.Equal(t, int32(1), calls.Load())

	_, err = e.EmbedBatch(context.Background(), nil)
	assert.Error(t, err)
}

func TestNewOpenAIEmbedderRequiresKey(t *testing.T) {
	_, err := NewOpenAIEmbedder(EmbedderConfig{})
	assert.Error(t, err)
}
