package scene

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mathviz/internal/llm"
	"mathviz/internal/narration"
	"mathviz/internal/phrase"
	"mathviz/internal/prompts"
)

func TestParseQAVerdict(t *testing.T) {
	cases := []struct {
		text     string
		verdict  string
		approved bool
	}{
		{"Looks good.\nOVERALL VERDICT: APPROVED", VerdictApproved, true},
		{"overall verdict: [revise]\nfix the timing", VerdictRevise, false},
		{"**Overall Verdict:** REJECT", VerdictReject, false},
		{"OVERALL VERDICT: REVISE even though parts are approved", VerdictRevise, false},
		{"The scene is approved.", VerdictApproved, true},
		{"This is not approved.", VerdictRevise, false},
		{"All checks pass.", VerdictApproved, true},
		{"Timing checks pass but layout checks fail.", VerdictRevise, false},
		{"Needs work.", VerdictRevise, false},
	}
	for _, tc := range cases {
		verdict, approved := ParseQAVerdict(tc.text)
		assert.Equal(t, tc.verdict, verdict, tc.text)
		assert.Equal(t, tc.approved, approved, tc.text)
	}
}

type recordingGenerator struct {
	replies []string
	prompts []llm.Prompt
	err     error
}

func (g *recordingGenerator) Generate(_ context.Context, p llm.Prompt) (string, error) {
	g.prompts = append(g.prompts, p)
	if g.err != nil {
		return "", g.err
	}
	if len(g.replies) == 0 {
		return "OVERALL VERDICT: APPROVED", nil
	}
	reply := g.replies[0]
	g.replies = g.replies[1:]
	return reply, nil
}

type fakeVerifier struct {
	err     error
	classes []string
}

func (v *fakeVerifier) Verify(_ context.Context, _, class string) error {
	v.classes = append(v.classes, class)
	return v.err
}

func newLoader(t *testing.T) *prompts.Loader {
	t.Helper()
	loader, err := prompts.NewLoader("")
	require.NoError(t, err)
	return loader
}

var qaSegment = narration.Segment{Number: 2, Audio: "We draw a circle. Then we shade it.", VisualCue: "circle"}

func TestQAReviewAsksModel(t *testing.T) {
	gen := &recordingGenerator{replies: []string{"Timing is off.\nOVERALL VERDICT: REVISE"}}
	qa := NewQA(gen, newLoader(t), 0.1, HeuristicChecker{}, nil, nil)

	review, err := qa.Review(context.Background(), ReviewRequest{
		Segment: qaSegment,
		Phrases: []phrase.Phrase{{Text: "We draw a circle.", Duration: 1}, {Text: "Then we shade it.", Duration: 1.5}},
		Code:    "class Scene2(Scene):\n    def construct(self):\n        self.play(Create(c), run_time=1.00)\n",
		Attempt: 1,
	})
	require.NoError(t, err)
	assert.False(t, review.Approved)
	assert.Equal(t, VerdictRevise, review.Verdict)
	assert.Contains(t, review.Feedback, "Timing is off.")

	require.Len(t, gen.prompts, 1)
	p := gen.prompts[0]
	assert.Equal(t, llm.PurposeSceneQA, p.Purpose)
	assert.InDelta(t, 0.1, p.Temperature, 1e-9)
	assert.Contains(t, p.User, "Expected phrase count: 2")
	assert.Contains(t, p.User, "Detected run_time values: 1.00")
	assert.Contains(t, p.User, "Dry-run render: skipped")
	assert.Contains(t, p.User, "2. [1.50s] Then we shade it.")
}

func TestQADryRunFailureRejectsWithoutModel(t *testing.T) {
	gen := &recordingGenerator{}
	verifier := &fakeVerifier{err: errors.New("Traceback...\nNameError: name 'c' is not defined")}
	qa := NewQA(gen, newLoader(t), 0.1, nil, verifier, nil)

	review, err := qa.Review(context.Background(), ReviewRequest{
		Segment: qaSegment,
		Code:    "class Scene2(Scene):\n    def construct(self):\n        self.play(Create(c), run_time=1.00)\n",
		Attempt: 2,
	})
	require.NoError(t, err)
	assert.False(t, review.Approved)
	assert.True(t, review.DryRunFailed)
	assert.True(t, strings.HasSuffix(review.Feedback, "NameError: name 'c' is not defined"))
	assert.Equal(t, []string{"Scene2"}, verifier.classes)
	assert.Empty(t, gen.prompts)
}

func TestQADryRunPassesThenModelApproves(t *testing.T) {
	gen := &recordingGenerator{}
	verifier := &fakeVerifier{}
	qa := NewQA(gen, newLoader(t), 0.1, nil, verifier, nil)

	review, err := qa.Review(context.Background(), ReviewRequest{
		Segment: qaSegment,
		Code:    "class Scene2(Scene):\n    def construct(self):\n        self.wait()\n",
		Attempt: 1,
	})
	require.NoError(t, err)
	assert.True(t, review.Approved)
	require.Len(t, gen.prompts, 1)
	assert.Contains(t, gen.prompts[0].User, "Dry-run render: passed")
}

func TestQARejectsCodeWithoutSceneClass(t *testing.T) {
	qa := NewQA(&recordingGenerator{}, newLoader(t), 0.1, nil, &fakeVerifier{}, nil)
	review, err := qa.Review(context.Background(), ReviewRequest{Segment: qaSegment, Code: "x = 1\n"})
	require.NoError(t, err)
	assert.False(t, review.Approved)
	assert.Equal(t, VerdictReject, review.Verdict)
}

func TestQAPropagatesTransportErrors(t *testing.T) {
	qa := NewQA(&recordingGenerator{err: errors.New("connection refused")}, newLoader(t), 0.1, nil, nil, nil)
	_, err := qa.Review(context.Background(), ReviewRequest{Segment: qaSegment, Code: "x = 1\n"})
	assert.Error(t, err)
}
