// Package session owns the on-disk layout of one query's artifacts.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"mathviz/internal/outcome"
)

// Subdirectories of a session folder.
const (
	DirSolver    = "solver"
	DirEvaluator = "evaluator"
	DirScript    = "script"
	DirAudio     = "audio"
	DirVideo     = "video"
	DirFinal     = "final"
)

// Subdirs lists every subdirectory created for a session, in pipeline order.
var Subdirs = []string{DirSolver, DirEvaluator, DirScript, DirAudio, DirVideo, DirFinal}

// Conventional artifact names.
const (
	OriginalQuery         = "original_query.txt"
	Metadata              = "metadata.json"
	SolutionFinal         = "solution_final.txt"
	EvaluationFinal       = "evaluation_final.txt"
	AudioScript           = "audio_script.txt"
	Segments              = "segments.json"
	PhraseTimings         = "phrase_timings.json"
	AudioMetadata         = "audio_metadata.json"
	ManimScript           = "manim_visualization.py"
	RenderingInstructions = "rendering_instructions.txt"
	RenderingMetadata     = "rendering_metadata.json"
	SceneReport           = "scene_generation.json"
	SyncMetadata          = "sync_metadata.json"
	FinalVideo            = "final_video.mp4"
	RenderedDir           = "rendered"
	SyncedDir             = "synced"
)

const (
	timestampLayout = "20060102_150405"
	queryPrefixLen  = 50
)

func SolutionAttempt(n int) string   { return fmt.Sprintf("solution_attempt_%d.txt", n) }
func SolutionDiff(n int) string      { return fmt.Sprintf("solution_attempt_%d.diff", n) }
func EvaluationAttempt(n int) string { return fmt.Sprintf("evaluation_attempt_%d.txt", n) }
func SegmentAudioText(n int) string  { return fmt.Sprintf("segment_%02d_audio.txt", n) }
func SegmentVisual(n int) string     { return fmt.Sprintf("segment_%02d_visual.txt", n) }
func SegmentAudio(n int) string      { return fmt.Sprintf("segment_%02d.wav", n) }
func SegmentPhrases(n int) string    { return fmt.Sprintf("segment_%02d_phrases.json", n) }
func SceneCode(n int) string         { return fmt.Sprintf("scene_%02d.py", n) }

// SceneQA names the review saved for one scene attempt.
func SceneQA(n, attempt int) string {
	return fmt.Sprintf("scene_%02d_qa_attempt_%d.txt", n, attempt)
}

// Store resolves and writes artifacts under one session folder.
type Store struct {
	root      string
	name      string
	createdAt time.Time
}

// New creates <outputDir>/<timestamp>_<sanitized query prefix> and every
// subdirectory. The root is absolute so paths handed to external tools
// resolve regardless of their working directory.
func New(outputDir, query string, now time.Time) (*Store, error) {
	base, err := filepath.Abs(outputDir)
	if err != nil {
		return nil, fmt.Errorf("resolve output directory: %w", err)
	}
	name := FolderName(query, now)
	root := filepath.Join(base, name)
	for _, sub := range Subdirs {
		if err := os.MkdirAll(filepath.Join(root, sub), 0o755); err != nil {
			return nil, fmt.Errorf("create session directory: %w", err)
		}
	}
	return &Store{root: root, name: name, createdAt: now}, nil
}

// Open wraps an existing session folder.
func Open(root string) (*Store, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("open session: %s is not a directory", root)
	}
	return &Store{root: root, name: filepath.Base(root), createdAt: info.ModTime()}, nil
}

// FolderName returns the deterministic folder name for a query.
func FolderName(query string, now time.Time) string {
	prefix := Sanitize(query, queryPrefixLen)
	if prefix == "" {
		prefix = "query"
	}
	return now.Format(timestampLayout) + "_" + prefix
}

// Sanitize keeps the first max runes of text and replaces characters that
// are unsafe in file names (and all whitespace) with underscores.
func Sanitize(text string, max int) string {
	runes := []rune(strings.TrimSpace(text))
	if max > 0 && len(runes) > max {
		runes = runes[:max]
	}
	var sb strings.Builder
	for _, r := range runes {
		switch {
		case strings.ContainsRune(`<>:"/\|?*'`, r), unicode.IsSpace(r), unicode.IsControl(r):
			sb.WriteByte('_')
		default:
			sb.WriteRune(r)
		}
	}
	return strings.Trim(sb.String(), "_.")
}

// Root is the session folder.
func (s *Store) Root() string { return s.root }

// ID is the session folder name.
func (s *Store) ID() string { return s.name }

// CreatedAt is when the session started.
func (s *Store) CreatedAt() time.Time { return s.createdAt }

// Dir returns a subdirectory path (the root when sub is empty).
func (s *Store) Dir(sub string) string {
	if sub == "" {
		return s.root
	}
	return filepath.Join(s.root, sub)
}

// Path returns the path of name inside sub.
func (s *Store) Path(sub, name string) string {
	return filepath.Join(s.Dir(sub), name)
}

// EnsureDir creates a nested directory under the session and returns it.
func (s *Store) EnsureDir(parts ...string) (string, error) {
	dir := filepath.Join(append([]string{s.root}, parts...)...)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", dir, err)
	}
	return dir, nil
}

// SaveText writes content to sub/name and returns the path.
func (s *Store) SaveText(sub, name, content string) (string, error) {
	return s.SaveBytes(sub, name, []byte(content))
}

// SaveBytes writes data to sub/name and returns the path.
func (s *Store) SaveBytes(sub, name string, data []byte) (string, error) {
	path := s.Path(sub, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("save %s: %w", name, err)
	}
	return path, nil
}

// SaveJSON writes v as indented JSON to sub/name and returns the path.
func (s *Store) SaveJSON(sub, name string, v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", name, err)
	}
	return s.SaveText(sub, name, string(data))
}

// LoadText reads sub/name. A missing file is Empty, not Fatal.
func (s *Store) LoadText(sub, name string) outcome.Result[string] {
	data, err := os.ReadFile(s.Path(sub, name))
	if errors.Is(err, fs.ErrNotExist) {
		return outcome.Emptyf[string]("%s not found", name)
	}
	if err != nil {
		return outcome.Fatal[string](fmt.Errorf("read %s: %w", name, err))
	}
	return outcome.Ok(string(data))
}

// Exists reports whether sub/name exists.
func (s *Store) Exists(sub, name string) bool {
	_, err := os.Stat(s.Path(sub, name))
	return err == nil
}

// Cleanup removes intermediate subdirectories and stray root files once the
// final video exists. The final folder, metadata.json and the original query
// are kept. It returns the removed paths.
func (s *Store) Cleanup() ([]string, error) {
	if !s.Exists(DirFinal, FinalVideo) {
		return nil, nil
	}
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("list session: %w", err)
	}
	keep := map[string]bool{DirFinal: true, Metadata: true, OriginalQuery: true}
	var removed []string
	var errs []error
	for _, entry := range entries {
		if keep[entry.Name()] {
			continue
		}
		path := filepath.Join(s.root, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			errs = append(errs, err)
			continue
		}
		removed = append(removed, path)
	}
	return removed, errors.Join(errs...)
}
