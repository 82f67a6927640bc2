package scene

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"mathviz/internal/llm"
	"mathviz/internal/logging"
	"mathviz/internal/narration"
	"mathviz/internal/observability"
	"mathviz/internal/phrase"
	"mathviz/internal/prompts"
	"mathviz/internal/session"
)

// DefaultMaxRetries is the per-scene attempt ceiling.
const DefaultMaxRetries = 3

const firstDraftFeedback = "No feedback, first draft."

// State is a per-scene generation state.
type State string

const (
	StateDrafting State = "drafting"
	StateChecking State = "checking"
	StateAccepted State = "accepted"
	StateFailed   State = "failed"
)

// Event reports a per-scene state transition.
type Event struct {
	Segment int
	State   State
	Attempt int
	Max     int
	Verdict string
}

// ContextRetriever supplies reference examples for a drafting request.
type ContextRetriever interface {
	Retrieve(ctx context.Context, query string) (string, error)
}

// Request is everything needed to draft one segment's scene.
type Request struct {
	Segment narration.Segment
	Phrases []phrase.Phrase
	// Duration is the segment's audio length in seconds, zero if unknown.
	Duration float64
}

// Unit is one segment's generated scene.
type Unit struct {
	Number    int            `json:"segment"`
	ClassName string         `json:"class_name"`
	Code      string         `json:"-"`
	Approved  bool           `json:"approved"`
	Attempts  int            `json:"attempt_count"`
	Repair    RepairStrategy `json:"repair"`
	Verdict   string         `json:"verdict,omitempty"`
	Feedback  string         `json:"-"`
	Path      string         `json:"path,omitempty"`
}

// Report summarises a generation run.
type Report struct {
	Units []Unit `json:"units"`
	// FailedSegment is the first segment that exhausted its retries; zero
	// when every segment was accepted.
	FailedSegment int `json:"failed_segment,omitempty"`
	// Skipped lists segments abandoned after the failure.
	Skipped []int  `json:"skipped,omitempty"`
	Program string `json:"-"`
	Path    string `json:"program_path,omitempty"`
}

// Accepted returns the approved units in segment order.
func (r Report) Accepted() []Unit {
	var out []Unit
	for _, u := range r.Units {
		if u.Approved {
			out = append(out, u)
		}
	}
	return out
}

// Complete reports whether every requested segment produced a scene.
func (r Report) Complete() bool {
	return r.FailedSegment == 0 && len(r.Skipped) == 0
}

// ErrSceneRejected marks a segment that exhausted its attempts.
var ErrSceneRejected = errors.New("scene rejected after all attempts")

// GeneratorOptions configures a Generator.
type GeneratorOptions struct {
	MaxRetries   int
	Temperature  float64
	HelperModule string
	Retriever    ContextRetriever
	Metrics      *observability.MetricsCollector
	Logger       logging.Logger
}

// Generator drafts, repairs and reviews one scene per narration segment.
type Generator struct {
	gen      llm.TextGenerator
	prompts  *prompts.Loader
	repairer *Repairer
	reviewer Reviewer
	opts     GeneratorOptions
	logger   logging.Logger

	// OnEvent, when set, observes every state transition.
	OnEvent func(Event)
}

// NewGenerator builds a Generator. A nil reviewer auto-approves.
func NewGenerator(gen llm.TextGenerator, loader *prompts.Loader, repairer *Repairer, reviewer Reviewer, opts GeneratorOptions) *Generator {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.HelperModule == "" {
		opts.HelperModule = DefaultHelperModule
	}
	if repairer == nil {
		repairer = NewRepairer(nil)
	}
	if reviewer == nil {
		reviewer = AutoApprove{}
	}
	return &Generator{
		gen:      gen,
		prompts:  loader,
		repairer: repairer,
		reviewer: reviewer,
		opts:     opts,
		logger:   logging.Component(opts.Logger, "scene"),
	}
}

// GenerateAll runs every request in order and merges the accepted scenes.
// The run stops at the first segment that exhausts its attempts; scenes
// accepted before it are still merged and saved. Generation or review
// transport errors abort the run.
func (g *Generator) GenerateAll(ctx context.Context, reqs []Request, store *session.Store) (Report, error) {
	var report Report
	for i, req := range reqs {
		unit, err := g.Generate(ctx, req, store)
		if err != nil && !errors.Is(err, ErrSceneRejected) {
			return report, err
		}
		report.Units = append(report.Units, unit)
		if err != nil {
			report.FailedSegment = req.Segment.Number
			for _, rest := range reqs[i+1:] {
				report.Skipped = append(report.Skipped, rest.Segment.Number)
			}
			g.logger.Warn("segment %d failed after %d attempts; skipping %d remaining segment(s)", unit.Number, unit.Attempts, len(report.Skipped))
			break
		}
	}

	report.Program = Merge(report.Accepted(), g.opts.HelperModule)
	if store != nil {
		path, err := store.SaveText(session.DirVideo, session.ManimScript, report.Program)
		if err != nil {
			return report, err
		}
		report.Path = path
		if _, err := store.SaveJSON(session.DirVideo, session.SceneReport, report); err != nil {
			return report, err
		}
	}
	return report, nil
}

// Generate drives one segment through DRAFTING and CHECKING until the
// reviewer accepts or attempts run out. Exhaustion returns the last
// candidate together with ErrSceneRejected.
func (g *Generator) Generate(ctx context.Context, req Request, store *session.Store) (Unit, error) {
	number := req.Segment.Number
	unit := Unit{Number: number}
	feedback := firstDraftFeedback
	references := g.references(ctx, req.Segment)

	for attempt := 1; attempt <= g.opts.MaxRetries; attempt++ {
		unit.Attempts = attempt
		g.emit(Event{Segment: number, State: StateDrafting, Attempt: attempt, Max: g.opts.MaxRetries})

		code, repair, err := g.draft(ctx, req, feedback, references)
		if err != nil {
			return unit, fmt.Errorf("scene %d attempt %d: %w", number, attempt, err)
		}
		unit.Code, unit.Repair = code, repair.Strategy
		if names := SceneClasses(code); len(names) > 0 {
			unit.ClassName = names[0]
		}
		if repair.Strategy != RepairUnchanged {
			g.logger.Warn("segment %d attempt %d: syntax repair %s (%v)", number, attempt, repair.Strategy, repair.Err)
		}

		g.emit(Event{Segment: number, State: StateChecking, Attempt: attempt, Max: g.opts.MaxRetries})
		review, err := g.reviewer.Review(ctx, ReviewRequest{
			Segment: req.Segment,
			Phrases: req.Phrases,
			Code:    code,
			Attempt: attempt,
			Repair:  repair,
		})
		if err != nil {
			return unit, fmt.Errorf("scene %d review %d: %w", number, attempt, err)
		}
		unit.Verdict, unit.Feedback = review.Verdict, review.Feedback
		g.opts.Metrics.RecordSceneAttempt(ctx, review.Approved)
		if store != nil && review.Text != "" {
			if _, err := store.SaveText(session.DirVideo, session.SceneQA(number, attempt), review.Text); err != nil {
				return unit, err
			}
		}

		if review.Approved {
			unit.Approved = true
			if store != nil {
				if unit.Path, err = store.SaveText(session.DirVideo, session.SceneCode(number), code); err != nil {
					return unit, err
				}
			}
			g.emit(Event{Segment: number, State: StateAccepted, Attempt: attempt, Max: g.opts.MaxRetries, Verdict: review.Verdict})
			return unit, nil
		}
		g.logger.Info("segment %d attempt %d/%d rejected (%s)", number, attempt, g.opts.MaxRetries, review.Verdict)
		feedback = review.Feedback
		if strings.TrimSpace(feedback) == "" {
			feedback = "The previous draft was rejected without comments. Re-check timing and layout."
		}
	}

	g.emit(Event{Segment: number, State: StateFailed, Attempt: unit.Attempts, Max: g.opts.MaxRetries, Verdict: unit.Verdict})
	return unit, fmt.Errorf("segment %d: %w", number, ErrSceneRejected)
}

func (g *Generator) draft(ctx context.Context, req Request, feedback, references string) (string, RepairResult, error) {
	system, err := g.prompts.Render(prompts.SceneGenerator, map[string]string{"HelperModule": g.opts.HelperModule})
	if err != nil {
		return "", RepairResult{}, err
	}
	duration := req.Duration
	if duration <= 0 {
		for _, p := range req.Phrases {
			duration += p.Duration
		}
	}
	if references == "" {
		references = "(none)"
	}
	user, err := g.prompts.Render(prompts.SceneRequest, map[string]string{
		"Number":        fmt.Sprint(req.Segment.Number),
		"Narration":     req.Segment.Audio,
		"VisualCue":     req.Segment.VisualCue,
		"Phrases":       FormatPhrases(req.Phrases),
		"TotalDuration": fmt.Sprintf("%.2f", duration),
		"Feedback":      feedback,
		"References":    references,
	})
	if err != nil {
		return "", RepairResult{}, err
	}

	raw, err := g.gen.Generate(ctx, llm.Prompt{
		Purpose:     llm.PurposeSceneGenerator,
		System:      system,
		User:        user,
		Temperature: g.opts.Temperature,
	})
	if err != nil {
		return "", RepairResult{}, err
	}
	repair := g.repairer.Repair(ctx, Clean(raw))
	return repair.Code, repair, nil
}

// references asks the retriever for examples; failures only cost context.
func (g *Generator) references(ctx context.Context, segment narration.Segment) string {
	if g.opts.Retriever == nil {
		return ""
	}
	query := strings.TrimSpace(segment.VisualCue + "\n" + segment.Audio)
	refs, err := g.opts.Retriever.Retrieve(ctx, query)
	if err != nil {
		g.logger.Warn("segment %d: reference retrieval failed: %v", segment.Number, err)
		return ""
	}
	return refs
}

func (g *Generator) emit(ev Event) {
	if g.OnEvent != nil {
		g.OnEvent(ev)
	}
}
