package solve

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseVerdict(t *testing.T) {
	cases := []struct {
		name     string
		text     string
		approved bool
		rule     Rule
	}{
		{"assessment correct", "OVERALL ASSESSMENT: correct", true, RuleAssessment},
		{"assessment bracketed", "Overall Assessment: [CORRECT]", true, RuleAssessment},
		{"assessment incorrect", "overall assessment: incorrect", false, RuleAssessment},
		{"assessment needs revision", "OVERALL ASSESSMENT: needs_revision", false, RuleAssessment},
		{"assessment markdown", "**Overall Assessment:** correct", true, RuleAssessment},
		{"assessment word prefix", "Overall assessment: correctly solved", true, RuleAssessment},
		{"final verdict yes", "FINAL VERDICT: Yes, this is suitable for the video.", true, RuleFinalVerdict},
		{"final verdict no falls to score", "FINAL VERDICT: No.\nCorrectness score: 9/10", true, RuleScore},
		{"score nine", "Correctness Score: 9/10", true, RuleScore},
		{"score eight", "correctness score: [8]", false, RuleScore},
		{"nothing", "Looks fine to me.", false, RuleNone},
		{"empty", "", false, RuleNone},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			verdict := ParseVerdict(tc.text)
			assert.Equal(t, tc.approved, verdict.Approved)
			assert.Equal(t, tc.rule, verdict.Rule)
		})
	}
}

func TestParseVerdictAssessmentOutranksScore(t *testing.T) {
	text := "Correctness score: 10/10\nOVERALL ASSESSMENT: incorrect\nFINAL VERDICT: yes, suitable"
	verdict := ParseVerdict(text)
	assert.False(t, verdict.Approved)
	assert.Equal(t, RuleAssessment, verdict.Rule)
	assert.Equal(t, "incorrect", verdict.Value)
}

func TestParseVerdictFinalVerdictWindow(t *testing.T) {
	text := "FINAL VERDICT: yes" + strings.Repeat(".", 250) + "suitable"
	verdict := ParseVerdict(text)
	assert.False(t, verdict.Approved)
	assert.Equal(t, RuleNone, verdict.Rule)
}

func TestParseVerdictWindowCountsCharacters(t *testing.T) {
	text := "FINAL VERDICT: yes, " + strings.Repeat("é", 150) + " suitable"
	verdict := ParseVerdict(text)
	assert.True(t, verdict.Approved)
	assert.Equal(t, RuleFinalVerdict, verdict.Rule)
}
