package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	mverrors "mathviz/internal/errors"
	"mathviz/internal/narration"
	"mathviz/internal/outcome"
	"mathviz/internal/render"
	"mathviz/internal/scene"
	"mathviz/internal/session"
	"mathviz/internal/solve"
	"mathviz/internal/tts"
)

// Phase names, in run order.
const (
	PhaseSolve      = "Solve and evaluate"
	PhaseNarrate    = "Write narration"
	PhaseSynthesize = "Synthesize audio"
	PhaseScenes     = "Generate scenes"
	PhaseRender     = "Render scenes"
	PhaseSync       = "Sync and concatenate"
)

type phaseOutcome struct {
	produced bool
	detail   string
	nextStep string
}

func produced(format string, args ...any) phaseOutcome {
	return phaseOutcome{produced: true, detail: fmt.Sprintf(format, args...)}
}

func skipped(detail, next string) phaseOutcome {
	return phaseOutcome{detail: detail, nextStep: next}
}

// degrade turns a non-Ok result into a skip. A fatal result is reported as
// a degraded error so the run records it and moves on.
func degrade[T any](r outcome.Result[T], next string) (phaseOutcome, error) {
	if r.IsEmpty() {
		return skipped(r.Reason(), next), nil
	}
	return skipped("", next), mverrors.NewDegradedError(r.Err(), "")
}

func (o *Orchestrator) solve(ctx context.Context, query string, store *session.Store, res *Result) (phaseOutcome, error) {
	temps := o.cfg.LLM.Temperatures
	solver, err := solve.NewSolver(o.deps.Generator, o.deps.Prompts, temps.Solver, o.deps.UseTools)
	if err != nil {
		return phaseOutcome{}, err
	}
	evaluator, err := solve.NewEvaluator(o.deps.Generator, o.deps.Prompts, temps.Evaluator, o.deps.Logger)
	if err != nil {
		return phaseOutcome{}, err
	}
	loop := solve.NewLoop(solver, evaluator, o.deps.Prompts, o.cfg.Solve.MaxRetries, o.deps.Metrics, o.deps.Logger)
	loop.OnEvent = func(ev solve.Event) {
		switch ev.State {
		case solve.StateSolving:
			o.printer.Info("attempt %d/%d: solving", ev.Attempt, ev.Max)
		case solve.StateEvaluating:
			o.printer.Info("attempt %d/%d: evaluating", ev.Attempt, ev.Max)
		case solve.StateExhausted:
			o.printer.Warning("no approval after %d attempts; continuing with the last solution", ev.Max)
		}
	}

	result, err := loop.Run(ctx, query, store)
	if err != nil {
		return phaseOutcome{}, err
	}
	res.Solution = result
	if _, err := store.SaveText(session.DirSolver, session.SolutionFinal, result.Solution); err != nil {
		return phaseOutcome{}, err
	}
	if _, err := store.SaveText(session.DirEvaluator, session.EvaluationFinal, result.Evaluation.Text); err != nil {
		return phaseOutcome{}, err
	}
	o.printer.Markdown(result.Solution)
	if result.Approved() {
		return produced("solution approved after %d attempt(s)", len(result.Attempts)), nil
	}
	return produced("using unapproved solution from attempt %d (%s)", len(result.Attempts), result.Evaluation.Verdict.Rule), nil
}

func (o *Orchestrator) narrate(ctx context.Context, store *session.Store, res *Result) (phaseOutcome, error) {
	writer := narration.NewScriptWriter(o.deps.Generator, o.deps.Prompts, o.cfg.LLM.Temperatures.ScriptWriter, o.deps.Logger)
	script, err := writer.Write(ctx, res.Solution.Solution, store)
	if err != nil {
		return phaseOutcome{}, err
	}
	res.Script = script
	n := len(script.Segments())
	if n == 0 {
		return skipped("the narration contained no [SEGMENT n] blocks", "Inspect script/audio_script.txt and rerun the query"), nil
	}
	return produced("%d narration segment(s)", n), nil
}

func (o *Orchestrator) synthesize(ctx context.Context, store *session.Store, res *Result) (phaseOutcome, error) {
	segments := res.Script.Segments()
	if len(segments) == 0 {
		return skipped("no narration segments", ""), nil
	}
	result := o.synthesizer.SynthesizeAll(ctx, segments, store)
	if result.IsEmpty() {
		return skipped(result.Reason(), "Configure a speech backend (tts.provider) to add narration audio"), nil
	}
	audios, err := result.Unwrap()
	if err != nil {
		return phaseOutcome{}, err
	}
	res.Audio = audios
	total := 0.0
	for _, a := range audios {
		total += a.Duration
	}
	return produced("%d/%d segment(s), %.1fs of audio", len(audios), len(segments), total), nil
}

func (o *Orchestrator) scenes(ctx context.Context, store *session.Store, res *Result) (phaseOutcome, error) {
	segments := res.Script.Segments()
	if len(segments) == 0 {
		return skipped("no narration segments", ""), nil
	}

	repairer := scene.NewRepairer(o.deps.Checker)
	var reviewer scene.Reviewer
	if o.cfg.Scene.QAEnabled {
		var verifier scene.Verifier
		if r, ok := o.deps.Renderer.Get(); ok && o.cfg.Scene.DryRunVerify {
			verifier = r
		}
		reviewer = scene.NewQA(o.deps.Generator, o.deps.Prompts, o.cfg.LLM.Temperatures.SceneQA, o.deps.Checker, verifier, o.deps.Logger)
	}
	opts := scene.GeneratorOptions{
		MaxRetries:   o.cfg.Scene.MaxRetries,
		Temperature:  o.cfg.LLM.Temperatures.SceneGenerator,
		HelperModule: o.cfg.Scene.HelperModule,
		Metrics:      o.deps.Metrics,
		Logger:       o.deps.Logger,
	}
	if r, ok := o.deps.Retriever.Get(); ok {
		opts.Retriever = r
	}
	generator := scene.NewGenerator(o.deps.Generator, o.deps.Prompts, repairer, reviewer, opts)
	generator.OnEvent = func(ev scene.Event) {
		switch {
		case ev.State == scene.StateDrafting && ev.Attempt > 1:
			o.printer.Info("segment %d: attempt %d/%d", ev.Segment, ev.Attempt, ev.Max)
		case ev.State == scene.StateAccepted:
			o.printer.Success("segment %d accepted on attempt %d", ev.Segment, ev.Attempt)
		case ev.State == scene.StateFailed:
			o.printer.Failure("segment %d rejected after %d attempts (%s)", ev.Segment, ev.Attempt, ev.Verdict)
		}
	}

	report, err := generator.GenerateAll(ctx, o.sceneRequests(segments, res.Audio), store)
	if err != nil {
		return phaseOutcome{}, err
	}
	res.Scenes = report
	accepted := len(report.Accepted())
	if accepted == 0 {
		return skipped(fmt.Sprintf("segment %d was rejected and no scene was accepted", report.FailedSegment), "Review video/scene_*_qa_attempt_*.txt and rerun"), nil
	}
	if !report.Complete() {
		return produced("%d of %d scene(s); stopped at segment %d, skipped %v", accepted, len(segments), report.FailedSegment, report.Skipped), nil
	}
	return produced("%d scene(s) merged into %s", accepted, filepath.Base(report.Path)), nil
}

// sceneRequests pairs each segment with its phrase schedule. Segments
// without audio get a schedule estimated from their word count.
func (o *Orchestrator) sceneRequests(segments []narration.Segment, audios []tts.SegmentAudio) []scene.Request {
	byNumber := make(map[int]tts.SegmentAudio, len(audios))
	for _, a := range audios {
		byNumber[a.Number] = a
	}
	reqs := make([]scene.Request, 0, len(segments))
	for _, seg := range segments {
		req := scene.Request{Segment: seg}
		if a, ok := byNumber[seg.Number]; ok {
			req.Phrases, req.Duration = a.Phrases, a.Duration
		} else if strings.TrimSpace(seg.Audio) != "" {
			req.Duration = tts.EstimateDuration(seg.Audio).Seconds()
			req.Phrases = o.segmenter.Segment(seg.Audio, req.Duration)
		}
		reqs = append(reqs, req)
	}
	return reqs
}

func (o *Orchestrator) render(ctx context.Context, store *session.Store, res *Result) (phaseOutcome, error) {
	program := res.Scenes.Path
	if program == "" || len(res.Scenes.Accepted()) == 0 {
		return skipped("no scene program to render", ""), nil
	}
	classes := scene.SceneClasses(res.Scenes.Program)
	if _, err := store.SaveText(session.DirVideo, session.RenderingInstructions, render.Instructions(program, classes)); err != nil {
		return phaseOutcome{}, err
	}

	renderer, ok := o.deps.Renderer.Get()
	if !ok {
		return skipped(o.deps.Renderer.Reason(), fmt.Sprintf("Install manim and follow %s", store.Path(session.DirVideo, session.RenderingInstructions))), nil
	}
	mediaRoot, err := store.EnsureDir(session.DirVideo, session.RenderedDir)
	if err != nil {
		return phaseOutcome{}, err
	}
	result := renderer.RenderProgram(ctx, program, mediaRoot)
	clips := result.ValueOr(nil)
	if _, err := store.SaveJSON(session.DirVideo, session.RenderingMetadata, render.NewMetadata(program, renderer.Quality(), classes, clips)); err != nil {
		return phaseOutcome{}, err
	}
	if !result.IsOk() {
		return degrade(result, fmt.Sprintf("Render manually with %s", store.Path(session.DirVideo, session.RenderingInstructions)))
	}
	res.Clips = clips
	return produced("%d/%d scene(s) rendered", len(clips), len(classes)), nil
}

func (o *Orchestrator) sync(ctx context.Context, store *session.Store, res *Result) (phaseOutcome, error) {
	if len(res.Clips) == 0 && len(res.Audio) == 0 {
		return skipped("no clips or audio to assemble", ""), nil
	}
	result := o.coordinator.Run(ctx, res.Audio, res.Clips, store)
	if !result.IsOk() {
		return degrade(result, "Install ffmpeg to merge audio and video into the final file")
	}
	report, _ := result.Value()
	res.Sync = &report
	res.FinalVideo = report.Final
	detail := fmt.Sprintf("%d segment(s), %.1fs", len(report.Segments)-len(report.Dropped), report.Duration)
	if len(report.Dropped) > 0 {
		detail += fmt.Sprintf(", dropped %v", report.Dropped)
	}
	return produced("%s", detail), nil
}
