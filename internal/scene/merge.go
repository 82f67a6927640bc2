package scene

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// DefaultHelperModule is the optional visual helper library.
const DefaultHelperModule = "visual_utils"

var importLine = regexp.MustCompile(`^(import\s+\S|from\s+\S+\s+import\s)`)

// Preamble is the shared header of a merged program. The helper import is
// guarded so the program still runs where the helper is not installed.
func Preamble(helperModule string) string {
	if helperModule == "" {
		helperModule = DefaultHelperModule
	}
	return fmt.Sprintf(`from manim import *
import numpy as np

try:
    from %s import *
except ImportError:
    pass
`, helperModule)
}

// Merge joins units under one preamble in ascending segment order. Import
// lines echoed by the model are dropped and clashing class names are
// renamed to Scene<segment>.
func Merge(units []Unit, helperModule string) string {
	sorted := append([]Unit(nil), units...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Number < sorted[j].Number })

	var b strings.Builder
	b.WriteString(Preamble(helperModule))
	seen := make(map[string]bool)
	for _, u := range sorted {
		body := stripImports(u.Code)
		for _, c := range Classes(body) {
			if !c.IsScene() {
				continue
			}
			if seen[c.Name] {
				body = renameClass(body, c.Name, fmt.Sprintf("Scene%d", u.Number))
			}
			break
		}
		for _, name := range SceneClasses(body) {
			seen[name] = true
		}
		if strings.TrimSpace(body) == "" {
			continue
		}
		fmt.Fprintf(&b, "\n\n# Segment %d\n%s\n", u.Number, strings.Trim(body, "\n"))
	}
	return b.String()
}

func stripImports(code string) string {
	lines := strings.Split(code, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if importLine.MatchString(line) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

func renameClass(code, from, to string) string {
	header := regexp.MustCompile(`(?m)^class\s+` + regexp.QuoteMeta(from) + `\b`)
	return header.ReplaceAllString(code, "class "+to)
}
