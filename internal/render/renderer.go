// Package render drives the manim CLI: it renders every scene class of a
// merged program on a bounded worker pool, renders text-slide fallbacks and
// performs single-frame dry runs for scene review.
package render

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"mathviz/internal/async"
	"mathviz/internal/capability"
	"mathviz/internal/config"
	"mathviz/internal/ffmpeg"
	"mathviz/internal/logging"
	"mathviz/internal/observability"
	"mathviz/internal/outcome"
	"mathviz/internal/scene"
)

const (
	defaultWorkers          = 4
	defaultTimeout          = 600 * time.Second
	defaultTextSlideTimeout = 300 * time.Second
	defaultVerifyTimeout    = 120 * time.Second
)

// Clip is one rendered scene.
type Clip struct {
	// Index is the 1-based position of the scene class in the program.
	Index    int     `json:"index"`
	Scene    string  `json:"scene"`
	Path     string  `json:"path"`
	Duration float64 `json:"duration"`
}

// Durationer measures media files; *ffmpeg.Executor satisfies it.
type Durationer interface {
	Duration(ctx context.Context, path string) (float64, error)
}

// Options configures a Renderer.
type Options struct {
	Bin              string
	Quality          string
	Workers          int
	Timeout          time.Duration
	TextSlideTimeout time.Duration
	VerifyTimeout    time.Duration
	Runner           ffmpeg.Runner
	Durations        Durationer
	Metrics          *observability.MetricsCollector
	Logger           logging.Logger
}

// Renderer runs manim.
type Renderer struct {
	opts   Options
	logger logging.Logger
}

var _ scene.Verifier = (*Renderer)(nil)

// New builds a Renderer without checking that manim is installed.
func New(opts Options) *Renderer {
	if opts.Bin == "" {
		opts.Bin = "manim"
	}
	if _, ok := config.ResolutionDirs[opts.Quality]; !ok {
		opts.Quality = "h"
	}
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.TextSlideTimeout <= 0 {
		opts.TextSlideTimeout = defaultTextSlideTimeout
	}
	if opts.VerifyTimeout <= 0 {
		opts.VerifyTimeout = defaultVerifyTimeout
	}
	if opts.Runner == nil {
		opts.Runner = ffmpeg.ExecRunner{}
	}
	return &Renderer{opts: opts, logger: logging.Component(opts.Logger, "render")}
}

// Detect returns a ready Renderer when the manim binary is on PATH.
func Detect(cfg config.RenderConfig, durations Durationer, metrics *observability.MetricsCollector, logger logging.Logger) capability.Capability[*Renderer] {
	bin := cfg.ManimBin
	if bin == "" {
		bin = "manim"
	}
	if _, err := exec.LookPath(bin); err != nil {
		return capability.Unavailablef[*Renderer]("%s not found on PATH", bin)
	}
	return capability.Ready(New(Options{
		Bin:              bin,
		Quality:          cfg.Quality,
		Workers:          cfg.Workers,
		Timeout:          cfg.Timeout,
		TextSlideTimeout: cfg.TextSlideTimeout,
		VerifyTimeout:    cfg.VerifyTimeout,
		Durations:        durations,
		Metrics:          metrics,
		Logger:           logger,
	}))
}

// Quality returns the manim quality letter in use.
func (r *Renderer) Quality() string { return r.opts.Quality }

// RenderProgram renders every scene class declared in the program file.
// Scenes render concurrently into their own media directories under
// mediaRoot; failed scenes are logged and left out. The result is Empty
// when nothing rendered and Fatal only when the program cannot be read.
func (r *Renderer) RenderProgram(ctx context.Context, programPath, mediaRoot string) outcome.Result[[]Clip] {
	source, err := os.ReadFile(programPath)
	if err != nil {
		return outcome.Fatal[[]Clip](fmt.Errorf("read program: %w", err))
	}
	classes := scene.SceneClasses(string(source))
	if len(classes) == 0 {
		return outcome.Emptyf[[]Clip]("no scene classes in %s", filepath.Base(programPath))
	}

	r.logger.Info("rendering %d scene(s) with %d worker(s) at quality %s", len(classes), r.opts.Workers, r.opts.Quality)
	slots := make([]*Clip, len(classes))
	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(r.opts.Workers)
	for i, class := range classes {
		group.Go(func() error {
			return async.Safe(r.logger, "render "+class, func() error {
				mediaDir := filepath.Join(mediaRoot, class)
				path, err := r.render(gctx, programPath, class, "-q"+r.opts.Quality, mediaDir, r.opts.Timeout)
				if err != nil {
					r.logger.Warn("scene %s failed to render: %v", class, err)
					return nil
				}
				clip := &Clip{Index: i + 1, Scene: class, Path: path}
				if r.opts.Durations != nil {
					if clip.Duration, err = r.opts.Durations.Duration(gctx, path); err != nil {
						r.logger.Warn("scene %s: could not measure duration: %v", class, err)
					}
				}
				slots[i] = clip
				return nil
			})
		})
	}
	if err := group.Wait(); err != nil {
		r.logger.Warn("render pool: %v", err)
	}

	clips := make([]Clip, 0, len(slots))
	for _, clip := range slots {
		if clip != nil {
			clips = append(clips, *clip)
		}
	}
	if len(clips) == 0 {
		return outcome.Emptyf[[]Clip]("none of %d scene(s) rendered", len(classes))
	}
	return outcome.Ok(clips)
}

// render runs manim for one class and locates the produced file.
func (r *Renderer) render(ctx context.Context, script, class, qualityFlag, mediaDir string, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	_, err := r.opts.Runner.Run(ctx, r.opts.Bin, qualityFlag, "--format", "mp4", "--media_dir", mediaDir, script, class)
	status := "success"
	if err != nil {
		status = "error"
	}
	r.opts.Metrics.RecordRender(ctx, status, time.Since(start))
	if err != nil {
		return "", err
	}
	return FindOutput(mediaDir, script, class, strings.TrimPrefix(qualityFlag, "-q"))
}

// FindOutput locates manim's output for class: first at the conventional
// media/videos/<stem>/<resolution>/<Class>.mp4, then anywhere under
// mediaDir.
func FindOutput(mediaDir, script, class, quality string) (string, error) {
	stem := strings.TrimSuffix(filepath.Base(script), filepath.Ext(script))
	if res, ok := config.ResolutionDirs[quality]; ok {
		expected := filepath.Join(mediaDir, "videos", stem, res, class+".mp4")
		if _, err := os.Stat(expected); err == nil {
			return expected, nil
		}
	}

	var found string
	_ = filepath.WalkDir(mediaDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if d.Name() == class+".mp4" && !strings.Contains(path, "partial_movie_files") {
			found = path
			return filepath.SkipAll
		}
		return nil
	})
	if found == "" {
		return "", fmt.Errorf("no output for %s under %s", class, mediaDir)
	}
	return found, nil
}
