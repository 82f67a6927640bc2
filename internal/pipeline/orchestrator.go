// Package pipeline sequences one query through every phase: solve and
// evaluate, narrate, synthesize speech, generate scenes, render, sync and
// concatenate. Phases run strictly one after another; a missing external
// tool degrades its phase to a skip instead of failing the run.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"mathviz/internal/avsync"
	"mathviz/internal/capability"
	"mathviz/internal/config"
	mverrors "mathviz/internal/errors"
	"mathviz/internal/llm"
	"mathviz/internal/logging"
	"mathviz/internal/narration"
	"mathviz/internal/observability"
	"mathviz/internal/outcome"
	"mathviz/internal/output"
	"mathviz/internal/phrase"
	"mathviz/internal/prompts"
	"mathviz/internal/render"
	"mathviz/internal/scene"
	"mathviz/internal/session"
	"mathviz/internal/solve"
	"mathviz/internal/tts"
)

// Renderer is what the pipeline needs from manim; *render.Renderer
// satisfies it.
type Renderer interface {
	scene.Verifier
	avsync.SlideRenderer
	RenderProgram(ctx context.Context, programPath, mediaRoot string) outcome.Result[[]render.Clip]
	Quality() string
}

var _ Renderer = (*render.Renderer)(nil)

// Deps are the collaborators built once at process start.
type Deps struct {
	Config    config.Config
	Generator llm.TextGenerator
	Prompts   *prompts.Loader
	// UseTools offers the generator's tools to the solver.
	UseTools bool

	Speech    capability.Capability[tts.Provider]
	Renderer  capability.Capability[Renderer]
	Media     capability.Capability[avsync.Media]
	Retriever capability.Capability[scene.ContextRetriever]
	Durations tts.Durationer
	Checker   scene.SyntaxChecker

	Printer *output.Printer
	Metrics *observability.MetricsCollector
	Tracer  *observability.TracerProvider
	Logger  logging.Logger
	Now     func() time.Time
}

// Orchestrator runs queries. It is safe to reuse across queries but not to
// share between concurrent runs.
type Orchestrator struct {
	deps        Deps
	cfg         config.Config
	segmenter   *phrase.Segmenter
	synthesizer *tts.Synthesizer
	coordinator *avsync.Coordinator
	printer     *output.Printer
	logger      logging.Logger
}

// New wires an Orchestrator. The voice reference loader lives as long as
// the Orchestrator, so the reference is read at most once per process.
func New(deps Deps) (*Orchestrator, error) {
	if deps.Generator == nil {
		return nil, fmt.Errorf("pipeline: text generator is required")
	}
	if deps.Prompts == nil {
		loader, err := prompts.NewLoader(deps.Config.PromptDir)
		if err != nil {
			return nil, err
		}
		deps.Prompts = loader
	}
	if deps.Checker == nil {
		deps.Checker = scene.NewSyntaxChecker(deps.Config.Scene.PythonBin)
	}
	if deps.Printer == nil {
		deps.Printer = output.New(nil)
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Tracer == nil {
		deps.Tracer = observability.NewNoopTracerProvider()
	}
	logger := logging.Component(deps.Logger, "pipeline")
	cfg := deps.Config

	segmenter := phrase.New(phrase.Options{
		WordsPerSecond:   cfg.Phrase.WordsPerSecond,
		MinPhraseSeconds: cfg.Phrase.MinPhraseSeconds,
		MaxPhraseSeconds: cfg.Phrase.MaxPhraseSeconds,
	})
	synthesizer := tts.NewSynthesizer(deps.Speech, tts.SynthesizerOptions{
		Voice:      cfg.TTS.Voice,
		SampleRate: cfg.TTS.SampleRate,
		Reference:  tts.NewReferenceLoader(cfg.TTS.ReferenceAudio, cfg.TTS.ReferenceText),
		Segmenter:  segmenter,
		Durations:  deps.Durations,
		Metrics:    deps.Metrics,
		Logger:     deps.Logger,
	})

	slides := capability.Map(deps.Renderer, func(r Renderer) avsync.SlideRenderer { return r })
	coordinator := avsync.NewCoordinator(deps.Media, slides, avsync.Options{
		Branding: cfg.Branding,
		Metrics:  deps.Metrics,
		Logger:   deps.Logger,
	})

	return &Orchestrator{
		deps:        deps,
		cfg:         cfg,
		segmenter:   segmenter,
		synthesizer: synthesizer,
		coordinator: coordinator,
		printer:     deps.Printer,
		logger:      logger,
	}, nil
}

// Result is everything one run produced.
type Result struct {
	RunID      string
	Session    *session.Store
	Solution   solve.Result
	Script     narration.Script
	Audio      []tts.SegmentAudio
	Scenes     scene.Report
	Clips      []render.Clip
	Sync       *avsync.Report
	FinalVideo string
	Phases     []PhaseRecord
	NextSteps  []string
	Removed    []string
}

// Produced reports whether the named phase produced output.
func (r *Result) Produced(phase string) bool {
	for _, p := range r.Phases {
		if p.Name == phase {
			return p.Produced
		}
	}
	return false
}

// Run processes one query end to end. Errors from the solve, narrate and
// scene phases end the run; later phases degrade to skips. The summary is
// printed either way.
func (o *Orchestrator) Run(ctx context.Context, query string) (*Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("empty query")
	}
	started := o.deps.Now()

	runID := observability.RunIDFromContext(ctx)
	if runID == "" {
		runID = uuid.NewString()
		ctx = observability.ContextWithRunID(ctx, runID)
	}

	store, err := session.New(o.cfg.OutputDir, query, started)
	if err != nil {
		return nil, err
	}
	ctx = observability.ContextWithSessionID(ctx, store.ID())
	ctx, span := o.deps.Tracer.StartSpan(ctx, observability.SpanPipelineRun)

	res := &Result{RunID: runID, Session: store}
	runLog := logging.WithContext(o.logger, ctx)
	runLog.Info("run started in %s", store.Root())
	o.printer.Info("Session: %s", store.Root())

	if _, err := store.SaveText("", session.OriginalQuery, query); err != nil {
		observability.EndSpan(span, err)
		return res, err
	}
	meta := newRunMetadata(runID, query, store, o.deps.Generator, o.cfg, started)
	if err := o.saveMetadata(store, meta); err != nil {
		observability.EndSpan(span, err)
		return res, err
	}

	err = o.runPhases(ctx, query, store, res)
	if err != nil {
		runLog.Error("run failed: %v", err)
		o.printer.Error(err)
	} else {
		runLog.Info("run completed, final video %q", res.FinalVideo)
	}
	meta.Finish(res, o.deps.Now(), err)
	if saveErr := o.saveMetadata(store, meta); saveErr != nil && err == nil {
		err = saveErr
	}
	if err == nil {
		o.cleanup(store, res)
	}
	o.printer.PrintSummary(o.summary(res, o.deps.Now().Sub(started)))
	observability.EndSpan(span, err)
	return res, err
}

func (o *Orchestrator) runPhases(ctx context.Context, query string, store *session.Store, res *Result) error {
	steps := []struct {
		name string
		span string
		run  func(context.Context) (phaseOutcome, error)
	}{
		{PhaseSolve, observability.SpanSolve, func(ctx context.Context) (phaseOutcome, error) {
			return o.solve(ctx, query, store, res)
		}},
		{PhaseNarrate, observability.SpanNarrate, func(ctx context.Context) (phaseOutcome, error) {
			return o.narrate(ctx, store, res)
		}},
		{PhaseSynthesize, observability.SpanSynthesize, func(ctx context.Context) (phaseOutcome, error) {
			return o.synthesize(ctx, store, res)
		}},
		{PhaseScenes, observability.SpanScenes, func(ctx context.Context) (phaseOutcome, error) {
			return o.scenes(ctx, store, res)
		}},
		{PhaseRender, observability.SpanRender, func(ctx context.Context) (phaseOutcome, error) {
			return o.render(ctx, store, res)
		}},
		{PhaseSync, observability.SpanSync, func(ctx context.Context) (phaseOutcome, error) {
			return o.sync(ctx, store, res)
		}},
	}

	for i, step := range steps {
		o.printer.Phase(i+1, len(steps), step.name)
		phaseCtx, span := o.deps.Tracer.StartSpan(ctx, step.span)
		start := time.Now()
		out, err := step.run(phaseCtx)
		elapsed := time.Since(start)
		observability.EndSpan(span, err)

		record := PhaseRecord{Name: step.name, Produced: out.produced, Detail: out.detail, Seconds: elapsed.Seconds()}
		status := "ok"
		degraded := mverrors.IsDegraded(err)
		switch {
		case degraded:
			status = "degraded"
			record.Detail = err.Error()
			o.logger.Warn("%s degraded: %v", step.name, err)
			o.printer.Warning("%s skipped: %v", step.name, err)
			if out.nextStep != "" {
				res.NextSteps = append(res.NextSteps, out.nextStep)
			}
		case err != nil:
			status = "failed"
			record.Detail = err.Error()
			o.printer.Failure("%s failed: %v", step.name, err)
		case out.produced:
			o.printer.Success("%s", out.detail)
		default:
			status = "skipped"
			o.printer.Warning("%s skipped: %s", step.name, out.detail)
			if out.nextStep != "" {
				res.NextSteps = append(res.NextSteps, out.nextStep)
			}
		}
		o.deps.Metrics.RecordPhase(ctx, step.name, status, elapsed)
		res.Phases = append(res.Phases, record)
		if err != nil && !degraded {
			return fmt.Errorf("%s: %w", step.name, err)
		}
	}
	return nil
}

func (o *Orchestrator) cleanup(store *session.Store, res *Result) {
	if o.cfg.KeepArtifacts() || res.FinalVideo == "" {
		return
	}
	removed, err := store.Cleanup()
	if err != nil {
		o.logger.Warn("cleanup incomplete: %v", err)
	}
	res.Removed = removed
	if len(removed) > 0 {
		o.printer.Info("Removed %d intermediate folder(s); rerun with --debug to keep them", len(removed))
	}
}

func (o *Orchestrator) saveMetadata(store *session.Store, meta *RunMetadata) error {
	_, err := store.SaveJSON("", session.Metadata, meta)
	return err
}
