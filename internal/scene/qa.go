package scene

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"mathviz/internal/llm"
	"mathviz/internal/logging"
	"mathviz/internal/narration"
	"mathviz/internal/phrase"
	"mathviz/internal/prompts"
)

// Verdicts a reviewer can return.
const (
	VerdictApproved = "approved"
	VerdictRevise   = "revise"
	VerdictReject   = "reject"
)

const dryRunTailBytes = 1500

var qaVerdictPattern = regexp.MustCompile(`(?i)overall\s+verdict\s*:\s*\**\s*\[?\s*(approved|revise|reject)\b`)

// ReviewRequest is one candidate submitted for approval.
type ReviewRequest struct {
	Segment narration.Segment
	Phrases []phrase.Phrase
	Code    string
	Attempt int
	Repair  RepairResult
}

// Review is a reviewer's decision. Feedback is what the next draft sees.
type Review struct {
	Approved bool
	Verdict  string
	Feedback string
	Text     string
	// DryRunFailed marks a rejection that came from the render check
	// rather than the model.
	DryRunFailed bool
}

// Reviewer approves or rejects a scene candidate. Errors are transport
// failures, not rejections.
type Reviewer interface {
	Review(ctx context.Context, req ReviewRequest) (Review, error)
}

// Verifier renders one scene class quickly to prove the code runs. The
// returned error carries the renderer's diagnostic output.
type Verifier interface {
	Verify(ctx context.Context, code, class string) error
}

// QA reviews candidates with a model, after an optional dry-run render.
type QA struct {
	gen         llm.TextGenerator
	prompts     *prompts.Loader
	temperature float64
	checker     SyntaxChecker
	verifier    Verifier
	logger      logging.Logger
}

var _ Reviewer = (*QA)(nil)

// NewQA builds a reviewer. verifier may be nil to skip dry runs.
func NewQA(gen llm.TextGenerator, loader *prompts.Loader, temperature float64, checker SyntaxChecker, verifier Verifier, logger logging.Logger) *QA {
	if checker == nil {
		checker = HeuristicChecker{}
	}
	return &QA{
		gen:         gen,
		prompts:     loader,
		temperature: temperature,
		checker:     checker,
		verifier:    verifier,
		logger:      logging.Component(logger, "scene-qa"),
	}
}

func (q *QA) Review(ctx context.Context, req ReviewRequest) (Review, error) {
	dryRun := "skipped"
	if q.verifier != nil {
		classes := SceneClasses(req.Code)
		if len(classes) == 0 {
			return Review{
				Verdict:  VerdictReject,
				Feedback: "The code declares no Scene subclass. Define exactly one class deriving from Scene with a construct method.",
			}, nil
		}
		if err := q.verifier.Verify(ctx, req.Code, classes[0]); err != nil {
			if ctx.Err() != nil {
				return Review{}, ctx.Err()
			}
			q.logger.Warn("segment %d attempt %d: dry-run render failed", req.Segment.Number, req.Attempt)
			return Review{
				Verdict:      VerdictReject,
				Feedback:     "The scene failed to render. Fix the error below.\n\n" + tail(err.Error(), dryRunTailBytes),
				DryRunFailed: true,
			}, nil
		}
		dryRun = "passed"
	}

	syntaxNote := "passed"
	if err := q.checker.Check(ctx, req.Code); err != nil {
		syntaxNote = "failed: " + err.Error()
	} else if req.Repair.Strategy != "" && req.Repair.Strategy != RepairUnchanged {
		syntaxNote = fmt.Sprintf("passed after %s repair", req.Repair.Strategy)
	}

	runTimes := RunTimes(req.Code)
	runTimeText := "none found"
	if len(runTimes) > 0 {
		runTimeText = strings.Join(runTimes, ", ")
	}

	user, err := q.prompts.Render(prompts.SceneQARequest, map[string]string{
		"Number":      fmt.Sprint(req.Segment.Number),
		"Attempt":     fmt.Sprint(req.Attempt),
		"PhraseCount": fmt.Sprint(len(req.Phrases)),
		"RunTimes":    runTimeText,
		"SyntaxNote":  syntaxNote,
		"DryRun":      dryRun,
		"Phrases":     FormatPhrases(req.Phrases),
		"Narration":   req.Segment.Audio,
		"VisualCue":   req.Segment.VisualCue,
		"Code":        req.Code,
	})
	if err != nil {
		return Review{}, err
	}
	system, err := q.prompts.Get(prompts.SceneQA)
	if err != nil {
		return Review{}, err
	}

	text, err := q.gen.Generate(ctx, llm.Prompt{
		Purpose:     llm.PurposeSceneQA,
		System:      system,
		User:        user,
		Temperature: q.temperature,
	})
	if err != nil {
		return Review{}, err
	}
	verdict, approved := ParseQAVerdict(text)
	return Review{Approved: approved, Verdict: verdict, Feedback: text, Text: text}, nil
}

// ParseQAVerdict reads the explicit verdict line, falling back to looser
// approval wording when the model ignored the format.
func ParseQAVerdict(text string) (string, bool) {
	if m := qaVerdictPattern.FindStringSubmatch(text); m != nil {
		verdict := strings.ToLower(m[1])
		return verdict, verdict == VerdictApproved
	}
	lower := strings.ToLower(text)
	if strings.Contains(lower, "approved") && !strings.Contains(lower, "not approved") {
		return VerdictApproved, true
	}
	if strings.Contains(lower, "pass") && !strings.Contains(lower, "fail") {
		return VerdictApproved, true
	}
	return VerdictRevise, false
}

// AutoApprove accepts every candidate; used when QA is disabled.
type AutoApprove struct{}

func (AutoApprove) Review(context.Context, ReviewRequest) (Review, error) {
	return Review{Approved: true, Verdict: VerdictApproved}, nil
}

// FormatPhrases renders a phrase schedule the way prompts expect it.
func FormatPhrases(phrases []phrase.Phrase) string {
	if len(phrases) == 0 {
		return "(no phrase timing available)"
	}
	var b strings.Builder
	for i, p := range phrases {
		fmt.Fprintf(&b, "%d. [%.2fs] %s\n", i+1, p.Duration, p.Text)
	}
	return strings.TrimRight(b.String(), "\n")
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
