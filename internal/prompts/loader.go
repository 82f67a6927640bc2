// Package prompts loads the prompt templates used by every generation role.
// Defaults are embedded; a directory of same-named .md files overrides them.
package prompts

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

//go:embed templates/*.md
var templateFS embed.FS

// Template names.
const (
	Solver         = "solver"
	Evaluator      = "evaluator"
	ScriptWriter   = "script_writer"
	SceneGenerator = "scene_generator"
	SceneQA        = "scene_qa"
	SolveRetry     = "solve_retry"
	SceneRequest   = "scene_request"
	SceneQARequest = "scene_qa_request"
)

const (
	overrideCacheSize  = 32
	templateFileSuffix = ".md"
)

// Loader resolves and renders prompt templates.
type Loader struct {
	overrideDir string
	embedded    map[string]string
	overrides   *lru.Cache[string, string]
}

// NewLoader reads the embedded templates. overrideDir may be empty.
func NewLoader(overrideDir string) (*Loader, error) {
	entries, err := templateFS.ReadDir("templates")
	if err != nil {
		return nil, fmt.Errorf("read embedded prompts: %w", err)
	}
	embedded := make(map[string]string, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), templateFileSuffix) {
			continue
		}
		content, err := templateFS.ReadFile("templates/" + entry.Name())
		if err != nil {
			return nil, fmt.Errorf("read prompt %s: %w", entry.Name(), err)
		}
		embedded[strings.TrimSuffix(entry.Name(), templateFileSuffix)] = string(content)
	}

	cache, err := lru.New[string, string](overrideCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create prompt cache: %w", err)
	}
	return &Loader{overrideDir: overrideDir, embedded: embedded, overrides: cache}, nil
}

// Get returns the raw template for name, preferring an override file.
func (l *Loader) Get(name string) (string, error) {
	if content, ok, err := l.override(name); err != nil {
		return "", err
	} else if ok {
		return content, nil
	}
	content, ok := l.embedded[name]
	if !ok {
		return "", fmt.Errorf("prompt template %q not found", name)
	}
	return content, nil
}

func (l *Loader) override(name string) (string, bool, error) {
	if l.overrideDir == "" {
		return "", false, nil
	}
	if content, ok := l.overrides.Get(name); ok {
		return content, true, nil
	}
	data, err := os.ReadFile(filepath.Join(l.overrideDir, name+templateFileSuffix))
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read prompt override %s: %w", name, err)
	}
	content := string(data)
	l.overrides.Add(name, content)
	return content, true, nil
}

// Render substitutes {{Key}} placeholders in the named template.
func (l *Loader) Render(name string, vars map[string]string) (string, error) {
	content, err := l.Get(name)
	if err != nil {
		return "", err
	}
	return Substitute(content, vars), nil
}

// MustRender is Render for templates known to be embedded.
func (l *Loader) MustRender(name string, vars map[string]string) string {
	out, err := l.Render(name, vars)
	if err != nil {
		panic(err)
	}
	return out
}

// Names lists every known template.
func (l *Loader) Names() []string {
	names := make([]string, 0, len(l.embedded))
	for name := range l.embedded {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Substitute replaces {{Key}} with vars[Key]. Unknown placeholders are left.
func Substitute(content string, vars map[string]string) string {
	for key, value := range vars {
		content = strings.ReplaceAll(content, "{{"+key+"}}", value)
	}
	return strings.TrimSpace(content)
}
