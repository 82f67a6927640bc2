package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"mathviz/internal/capability"
	"mathviz/internal/config"
	"mathviz/internal/logging"
)

const (
	defaultTimeout       = 120 * time.Second
	defaultConcatTimeout = 300 * time.Second
)

// Executor runs the pipeline's ffmpeg operations.
type Executor struct {
	bin           string
	prober        *LocalProber
	runner        Runner
	timeout       time.Duration
	concatTimeout time.Duration
	mergePreset   Preset
	logger        logging.Logger
}

// Options configures an Executor.
type Options struct {
	Bin           string
	ProbeBin      string
	Timeout       time.Duration
	ConcatTimeout time.Duration
	MergePreset   Preset
	Runner        Runner
	Logger        logging.Logger
}

// NewExecutor builds an Executor without checking that the binaries exist.
func NewExecutor(opts Options) *Executor {
	if opts.Bin == "" {
		opts.Bin = "ffmpeg"
	}
	if opts.ProbeBin == "" {
		opts.ProbeBin = "ffprobe"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.ConcatTimeout <= 0 {
		opts.ConcatTimeout = defaultConcatTimeout
	}
	if opts.Runner == nil {
		opts.Runner = ExecRunner{}
	}
	if opts.MergePreset.AudioCodec == "" {
		opts.MergePreset, _ = DefaultPresets().Get(PresetSegmentMerge)
	}
	return &Executor{
		bin:           opts.Bin,
		prober:        &LocalProber{Bin: opts.ProbeBin, Runner: opts.Runner, Timeout: opts.Timeout},
		runner:        opts.Runner,
		timeout:       opts.Timeout,
		concatTimeout: opts.ConcatTimeout,
		mergePreset:   opts.MergePreset,
		logger:        logging.Component(opts.Logger, "ffmpeg"),
	}
}

// Detect returns a ready Executor when both ffmpeg and ffprobe are on PATH.
func Detect(cfg config.FFmpegConfig, logger logging.Logger) capability.Capability[*Executor] {
	opts := Options{
		Bin:           cfg.Bin,
		ProbeBin:      cfg.ProbeBin,
		Timeout:       cfg.Timeout,
		ConcatTimeout: cfg.ConcatTimeout,
		Logger:        logger,
	}
	for _, bin := range []string{orDefault(cfg.Bin, "ffmpeg"), orDefault(cfg.ProbeBin, "ffprobe")} {
		if _, err := exec.LookPath(bin); err != nil {
			return capability.Unavailablef[*Executor]("%s not found on PATH", bin)
		}
	}

	library := DefaultPresets()
	if cfg.PresetFile != "" {
		custom, err := LoadPresetFile(cfg.PresetFile)
		if err != nil {
			return capability.Unavailable[*Executor](err.Error())
		}
		library = library.Merge(custom)
	}
	name := orDefault(cfg.MergePreset, PresetSegmentMerge)
	preset, ok := library.Get(name)
	if !ok {
		return capability.Unavailablef[*Executor]("unknown merge preset %q", name)
	}
	opts.MergePreset = preset
	return capability.Ready(NewExecutor(opts))
}

// Prober exposes the executor's ffprobe wrapper.
func (e *Executor) Prober() *LocalProber { return e.prober }

// Duration returns a media file's length in seconds.
func (e *Executor) Duration(ctx context.Context, path string) (float64, error) {
	return e.prober.Duration(ctx, path)
}

// AdjustResult reports a reconciliation. Path is always usable: on
// failure it is the original clip.
type AdjustResult struct {
	Path     string
	Plan     AdjustPlan
	Duration float64
	Err      error
}

// Adjust reconciles input to target seconds, writing output when a change
// is needed. Failures fall back to the unmodified clip.
func (e *Executor) Adjust(ctx context.Context, input string, target float64, output string) AdjustResult {
	current, err := e.Duration(ctx, input)
	if err != nil {
		return AdjustResult{Path: input, Plan: AdjustPlan{Method: AdjustNone, Target: target}, Err: err}
	}
	plan := PlanAdjustment(current, target)
	if plan.Method == AdjustNone {
		return AdjustResult{Path: input, Plan: plan, Duration: current}
	}

	e.logger.Debug("adjusting %s: %.2fs -> %.2fs (%s)", filepath.Base(input), current, target, plan.Method)
	if err := e.run(ctx, e.timeout, plan.Args(input, output)...); err != nil {
		e.logger.Warn("adjust %s failed, using original clip: %v", filepath.Base(input), err)
		return AdjustResult{Path: input, Plan: plan, Duration: current, Err: err}
	}
	if _, err := os.Stat(output); err != nil {
		return AdjustResult{Path: input, Plan: plan, Duration: current, Err: fmt.Errorf("adjusted clip missing: %w", err)}
	}
	return AdjustResult{Path: output, Plan: plan, Duration: plan.Duration()}
}

// Merge muxes video and audio: the video stream is copied, audio is
// transcoded, and the output ends with the shorter stream.
func (e *Executor) Merge(ctx context.Context, video, audio, output string) error {
	args := []string{"-i", video, "-i", audio, "-c:v", "copy", "-c:a", e.mergePreset.AudioCodec}
	args = append(args, e.mergePreset.Args()...)
	args = append(args, "-shortest", "-y", output)
	return e.run(ctx, e.timeout, args...)
}

// Concat joins inputs losslessly with the concat demuxer. The list file is
// written next to output. The demuxer resolves relative entries against the
// list's directory, so every input is made absolute first.
func (e *Executor) Concat(ctx context.Context, inputs []string, output string) error {
	if len(inputs) == 0 {
		return fmt.Errorf("concat: no inputs")
	}
	entries := make([]string, len(inputs))
	for i, in := range inputs {
		abs, err := filepath.Abs(in)
		if err != nil {
			return fmt.Errorf("concat input %s: %w", in, err)
		}
		entries[i] = abs
	}
	listPath := filepath.Join(filepath.Dir(output), "concat_list.txt")
	if err := os.WriteFile(listPath, []byte(ConcatList(entries)), 0o644); err != nil {
		return fmt.Errorf("write concat list: %w", err)
	}
	return e.run(ctx, e.concatTimeout, "-f", "concat", "-safe", "0", "-i", listPath, "-c", "copy", "-y", output)
}

// ConcatList renders the concat demuxer input file.
func ConcatList(inputs []string) string {
	var b strings.Builder
	for _, path := range inputs {
		path = filepath.ToSlash(path)
		fmt.Fprintf(&b, "file '%s'\n", strings.ReplaceAll(path, "'", `'\''`))
	}
	return b.String()
}

func (e *Executor) run(ctx context.Context, timeout time.Duration, args ...string) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	_, err := e.runner.Run(ctx, e.bin, append([]string{"-hide_banner", "-loglevel", "error"}, args...)...)
	return err
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
