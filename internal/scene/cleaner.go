// Package scene turns narration segments into animation code: one drafted,
// repaired and reviewed scene class per segment, merged into a single
// renderable program.
package scene

import (
	"regexp"
	"strings"
)

var (
	pythonFence  = regexp.MustCompile("(?s)```(?:python|py)[ \t]*\r?\n(.*?)```")
	anyFence     = regexp.MustCompile("(?s)```[^\n]*\n(.*?)```")
	classHeader  = regexp.MustCompile(`(?m)^class\s+(\w+)\s*(?:\(([^)]*)\))?\s*:`)
	runTimeValue = regexp.MustCompile(`run_time\s*=\s*([0-9]*\.?[0-9]+)`)
)

// Clean extracts code from a model reply. A python fence wins, then the
// first fenced block of any language, then the raw text. Stray fence lines
// and the literal "markdown artifacts" some models echo are removed.
func Clean(raw string) string {
	code := raw
	if m := pythonFence.FindStringSubmatch(raw); m != nil {
		code = m[1]
	} else if m := anyFence.FindStringSubmatch(raw); m != nil {
		code = m[1]
	}

	lines := strings.Split(code, "\n")
	kept := lines[:0]
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			continue
		}
		if strings.EqualFold(trimmed, "markdown artifacts") {
			continue
		}
		kept = append(kept, strings.TrimRight(line, " \t\r"))
	}
	return strings.Trim(strings.Join(kept, "\n"), "\n") + "\n"
}

// Class is a top-level class declaration found in generated code.
type Class struct {
	Name  string
	Bases string
	// Line is the zero-based line index of the header.
	Line int
}

// IsScene reports whether the class derives from a manim Scene type.
func (c Class) IsScene() bool {
	return strings.Contains(c.Bases, "Scene")
}

// Classes lists every top-level class header in code, in source order.
func Classes(code string) []Class {
	var out []Class
	for i, line := range strings.Split(code, "\n") {
		if m := classHeader.FindStringSubmatch(line); m != nil {
			out = append(out, Class{Name: m[1], Bases: strings.TrimSpace(m[2]), Line: i})
		}
	}
	return out
}

// SceneClasses returns the names of renderable scene classes in code.
func SceneClasses(code string) []string {
	var names []string
	for _, c := range Classes(code) {
		if c.IsScene() {
			names = append(names, c.Name)
		}
	}
	return names
}

// RunTimes extracts every run_time literal in source order.
func RunTimes(code string) []string {
	var out []string
	for _, m := range runTimeValue.FindAllStringSubmatch(code, -1) {
		out = append(out, m[1])
	}
	return out
}
