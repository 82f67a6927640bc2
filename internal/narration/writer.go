package narration

import (
	"context"
	"encoding/json"
	"fmt"

	"mathviz/internal/llm"
	"mathviz/internal/logging"
	"mathviz/internal/outcome"
	"mathviz/internal/prompts"
	"mathviz/internal/session"
)

// Script is the script writer's output.
type Script struct {
	Raw    string
	Report ParseReport
}

// Segments is shorthand for s.Report.Segments.
func (s Script) Segments() []Segment { return s.Report.Segments }

// ScriptWriter asks the model for a segmented narration of a solution.
type ScriptWriter struct {
	generator   llm.TextGenerator
	prompts     *prompts.Loader
	temperature float64
	logger      logging.Logger
}

// NewScriptWriter builds a ScriptWriter.
func NewScriptWriter(generator llm.TextGenerator, loader *prompts.Loader, temperature float64, logger logging.Logger) *ScriptWriter {
	return &ScriptWriter{
		generator:   generator,
		prompts:     loader,
		temperature: temperature,
		logger:      logging.Component(logger, "script-writer"),
	}
}

// Write generates, parses and persists the narration for solution.
func (w *ScriptWriter) Write(ctx context.Context, solution string, store *session.Store) (Script, error) {
	system, err := w.prompts.Get(prompts.ScriptWriter)
	if err != nil {
		return Script{}, err
	}
	raw, err := w.generator.Generate(ctx, llm.Prompt{
		Purpose:     llm.PurposeScriptWriter,
		System:      system,
		User:        solution,
		Temperature: w.temperature,
	})
	if err != nil {
		return Script{}, err
	}

	script := Script{Raw: raw, Report: ParseWithReport(raw)}
	if len(script.Report.Duplicates) > 0 {
		w.logger.Warn("duplicate segment numbers %v: keeping the first occurrence of each", script.Report.Duplicates)
	}
	if len(script.Report.MissingAudio) > 0 {
		w.logger.Warn("segments %v have no AUDIO block", script.Report.MissingAudio)
	}
	if err := Save(store, script); err != nil {
		return Script{}, err
	}
	w.logger.Info("parsed %d narration segments", len(script.Segments()))
	return script, nil
}

// Save persists the raw script, the segment manifest and per-segment text.
func Save(store *session.Store, script Script) error {
	if _, err := store.SaveText(session.DirScript, session.AudioScript, script.Raw); err != nil {
		return err
	}
	segments := script.Segments()
	if segments == nil {
		segments = []Segment{}
	}
	if _, err := store.SaveJSON(session.DirScript, session.Segments, segments); err != nil {
		return err
	}
	for _, seg := range segments {
		if _, err := store.SaveText(session.DirAudio, session.SegmentAudioText(seg.Number), seg.Audio); err != nil {
			return err
		}
		if _, err := store.SaveText(session.DirScript, session.SegmentVisual(seg.Number), seg.VisualCue); err != nil {
			return err
		}
	}
	return nil
}

// LoadSegments reads segments.json. A missing or empty manifest is Empty.
func LoadSegments(store *session.Store) outcome.Result[[]Segment] {
	text := store.LoadText(session.DirScript, session.Segments)
	if text.IsEmpty() {
		return outcome.Empty[[]Segment](text.Reason())
	}
	raw, err := text.Unwrap()
	if err != nil {
		return outcome.Fatal[[]Segment](err)
	}
	var segments []Segment
	if err := json.Unmarshal([]byte(raw), &segments); err != nil {
		return outcome.Fatal[[]Segment](fmt.Errorf("decode %s: %w", session.Segments, err))
	}
	if len(segments) == 0 {
		return outcome.Empty[[]Segment]("no segments in manifest")
	}
	return outcome.Ok(segments)
}
