// Package solve runs the solve/evaluate loop that produces the approved
// solution for a query.
package solve

import (
	"regexp"
	"strconv"
	"strings"
)

// Rule names which verdict rule decided.
type Rule string

const (
	RuleAssessment   Rule = "assessment"
	RuleFinalVerdict Rule = "final_verdict"
	RuleScore        Rule = "score"
	RuleNone         Rule = "none"
)

const (
	finalVerdictMarker = "final verdict:"
	finalVerdictWindow = 200
	passingScore       = 9
)

var (
	assessmentPattern = regexp.MustCompile(`overall assessment\**\s*:\s*\**\s*\[?\s*(correct|incorrect|needs[_ ]revision)`)
	scorePattern      = regexp.MustCompile(`correctness score\**\s*:\s*\**\s*\[?\s*(\d+)`)
)

// Verdict is the parsed outcome of an evaluation.
type Verdict struct {
	Approved bool
	Rule     Rule
	// Value is the matched assessment word or score, empty for other rules.
	Value string
}

// ParseVerdict applies, case-insensitively and in order: the overall
// assessment tag, the final verdict section ("yes" and "suitable" within 200
// characters of the marker), then the correctness score (>= 9). Text that
// matches none of them is rejected.
//
// A final verdict section that lacks "yes"/"suitable" does not decide; the
// score rule still gets a chance.
func ParseVerdict(evaluation string) Verdict {
	lower := strings.ToLower(evaluation)

	if m := assessmentPattern.FindStringSubmatch(lower); m != nil {
		value := strings.ReplaceAll(m[1], " ", "_")
		return Verdict{Approved: value == "correct", Rule: RuleAssessment, Value: value}
	}

	if idx := strings.Index(lower, finalVerdictMarker); idx >= 0 {
		window := []rune(lower[idx+len(finalVerdictMarker):])
		if len(window) > finalVerdictWindow {
			window = window[:finalVerdictWindow]
		}
		if text := string(window); strings.Contains(text, "yes") && strings.Contains(text, "suitable") {
			return Verdict{Approved: true, Rule: RuleFinalVerdict}
		}
	}

	if m := scorePattern.FindStringSubmatch(lower); m != nil {
		score, err := strconv.Atoi(m[1])
		if err == nil {
			return Verdict{Approved: score >= passingScore, Rule: RuleScore, Value: m[1]}
		}
	}

	return Verdict{Approved: false, Rule: RuleNone}
}
