package scene

import (
	"context"
	"regexp"
	"strings"
)

// RepairStrategy names how a repair pass produced its output.
type RepairStrategy string

const (
	RepairUnchanged RepairStrategy = "unchanged"
	RepairTruncated RepairStrategy = "truncated"
	RepairExtracted RepairStrategy = "extracted"
	RepairBroken    RepairStrategy = "broken"
)

const (
	maxDroppedLines   = 20
	placeholderCall   = "self.wait()"
	extractionHarness = "from manim import *\n\n"
)

var (
	constructHeader = regexp.MustCompile(`^(\s*)def\s+construct\s*\(`)
	playOrWait      = regexp.MustCompile(`self\.(play|wait)\s*\(`)
)

// RepairResult is the outcome of one repair pass.
type RepairResult struct {
	Code     string
	Strategy RepairStrategy
	// Dropped is the number of trailing lines removed by truncation repair.
	Dropped int
	// Kept lists the classes that survived structural extraction.
	Kept []string
	// Err is the parse error of the input, nil when it parsed as-is.
	Err error
}

// Repairer fixes code that does not parse, usually because the model's
// output was cut off mid-statement.
type Repairer struct {
	checker SyntaxChecker
}

// NewRepairer returns a Repairer using checker; nil selects the heuristic.
func NewRepairer(checker SyntaxChecker) *Repairer {
	if checker == nil {
		checker = HeuristicChecker{}
	}
	return &Repairer{checker: checker}
}

// Checker exposes the syntax checker in use.
func (r *Repairer) Checker() SyntaxChecker { return r.checker }

// Repair returns code unchanged when it parses. Otherwise it tries, in
// order: dropping up to 20 trailing lines, then rebuilding the program from
// the classes that validate on their own. When both fail the input comes
// back unchanged with RepairBroken.
func (r *Repairer) Repair(ctx context.Context, code string) RepairResult {
	err := r.checker.Check(ctx, code)
	if err == nil {
		return RepairResult{Code: code, Strategy: RepairUnchanged}
	}

	if fixed, dropped, ok := r.dropTrailing(ctx, code); ok {
		return RepairResult{Code: fixed, Strategy: RepairTruncated, Dropped: dropped, Err: err}
	}
	if fixed, kept, ok := r.extract(ctx, code); ok {
		return RepairResult{Code: fixed, Strategy: RepairExtracted, Kept: kept, Err: err}
	}
	return RepairResult{Code: code, Strategy: RepairBroken, Err: err}
}

// dropTrailing removes 1..20 lines from the end until the rest parses.
func (r *Repairer) dropTrailing(ctx context.Context, code string) (string, int, bool) {
	lines := strings.Split(strings.TrimRight(code, " \t\r\n"), "\n")
	limit := maxDroppedLines
	if limit > len(lines)-1 {
		limit = len(lines) - 1
	}
	for n := 1; n <= limit; n++ {
		candidate := completeClassBody(lines[:len(lines)-n])
		text := strings.Join(candidate, "\n") + "\n"
		if r.checker.Check(ctx, text) == nil {
			return text, n, true
		}
	}
	return "", 0, false
}

// completeClassBody appends an idle call when lines end inside a scene class
// whose construct method has no statement yet, or a whole construct method
// when the class header is the last thing left.
func completeClassBody(lines []string) []string {
	classes := Classes(strings.Join(lines, "\n"))
	if len(classes) == 0 {
		return lines
	}
	last := classes[len(classes)-1]
	if !last.IsScene() {
		return lines
	}

	body := lines[last.Line+1:]
	constructAt, constructIndent := -1, ""
	for i, line := range body {
		if m := constructHeader.FindStringSubmatch(line); m != nil {
			constructAt, constructIndent = i, m[1]
			break
		}
	}

	out := append([]string(nil), lines...)
	if constructAt < 0 {
		if hasStatement(body, 0) {
			return lines
		}
		return append(out, "    def construct(self):", "        "+placeholderCall)
	}
	depth := len(constructIndent)
	if hasStatement(body[constructAt+1:], depth) {
		return lines
	}
	return append(out, constructIndent+"    "+placeholderCall)
}

// hasStatement reports whether any code line is indented deeper than depth.
func hasStatement(lines []string, depth int) bool {
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		if indentWidth(line) > depth {
			return true
		}
	}
	return false
}

type chunk struct {
	name  string
	scene bool
	lines []string
}

// extract splits code at class boundaries, keeps what validates on its own
// (after per-class truncation repair) and reassembles it.
func (r *Repairer) extract(ctx context.Context, code string) (string, []string, bool) {
	lines := strings.Split(code, "\n")
	classes := Classes(code)
	if len(classes) == 0 {
		return "", nil, false
	}

	preamble := lines[:classes[0].Line]
	chunks := make([]chunk, 0, len(classes))
	for i, c := range classes {
		end := len(lines)
		if i+1 < len(classes) {
			end = classes[i+1].Line
		}
		chunks = append(chunks, chunk{name: c.Name, scene: c.IsScene(), lines: lines[c.Line:end]})
	}

	var (
		parts []string
		kept  []string
	)
	if pre := strings.TrimSpace(strings.Join(preamble, "\n")); pre != "" && r.checker.Check(ctx, pre+"\n") == nil {
		parts = append(parts, pre)
	}
	for _, c := range chunks {
		body, ok := r.validateClass(ctx, c)
		if !ok {
			continue
		}
		parts = append(parts, body)
		kept = append(kept, c.name)
	}
	if len(kept) == 0 {
		return "", nil, false
	}

	out := strings.Join(parts, "\n\n\n") + "\n"
	if r.checker.Check(ctx, out) != nil {
		return "", nil, false
	}
	return out, kept, true
}

func (r *Repairer) validateClass(ctx context.Context, c chunk) (string, bool) {
	body := strings.TrimRight(strings.Join(c.lines, "\n"), " \t\r\n")
	if c.scene && !playOrWait.MatchString(body) {
		body = strings.Join(completeClassBody(strings.Split(body, "\n")), "\n")
		if !playOrWait.MatchString(body) {
			body += "\n        " + placeholderCall
		}
	}
	if r.checker.Check(ctx, extractionHarness+body+"\n") == nil {
		return body, true
	}
	fixed, _, ok := r.dropTrailing(ctx, body)
	if !ok {
		return "", false
	}
	fixed = strings.TrimRight(fixed, "\n")
	if r.checker.Check(ctx, extractionHarness+fixed+"\n") != nil {
		return "", false
	}
	return fixed, true
}
