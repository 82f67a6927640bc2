// Package diff renders line diffs between successive generated attempts.
package diff

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Result is a rendered diff plus line statistics.
type Result struct {
	Text         string
	AddedLines   int
	DeletedLines int
}

// Empty reports whether the inputs were identical.
func (r Result) Empty() bool { return r.AddedLines == 0 && r.DeletedLines == 0 }

// Summary returns "+N/-M lines" or "no changes".
func (r Result) Summary() string {
	if r.Empty() {
		return "no changes"
	}
	return fmt.Sprintf("+%d/-%d lines", r.AddedLines, r.DeletedLines)
}

// Lines diffs oldText and newText line by line. Unchanged runs longer than
// 2*context lines are collapsed to a marker.
func Lines(oldText, newText, oldLabel, newLabel string, context int) Result {
	if oldText == newText {
		return Result{}
	}
	dmp := diffmatchpatch.New()
	a, b, lineArray := dmp.DiffLinesToChars(oldText, newText)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lineArray)

	var sb strings.Builder
	fmt.Fprintf(&sb, "--- %s\n+++ %s\n", oldLabel, newLabel)
	var result Result
	for i, d := range diffs {
		lines := splitLines(d.Text)
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			result.AddedLines += len(lines)
			writePrefixed(&sb, "+", lines)
		case diffmatchpatch.DiffDelete:
			result.DeletedLines += len(lines)
			writePrefixed(&sb, "-", lines)
		default:
			writeContext(&sb, lines, context, i == 0, i == len(diffs)-1)
		}
	}
	result.Text = sb.String()
	return result
}

func writeContext(sb *strings.Builder, lines []string, context int, first, last bool) {
	if context < 0 || len(lines) <= 2*context {
		writePrefixed(sb, " ", lines)
		return
	}
	head, tail := context, context
	if first {
		head = 0
	}
	if last {
		tail = 0
	}
	if head+tail >= len(lines) {
		writePrefixed(sb, " ", lines)
		return
	}
	writePrefixed(sb, " ", lines[:head])
	fmt.Fprintf(sb, "@@ %d unchanged lines @@\n", len(lines)-head-tail)
	writePrefixed(sb, " ", lines[len(lines)-tail:])
}

func writePrefixed(sb *strings.Builder, prefix string, lines []string) {
	for _, line := range lines {
		sb.WriteString(prefix)
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
}

func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(text, "\n"), "\n")
}
