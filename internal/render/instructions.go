package render

import (
	"fmt"
	"path/filepath"
	"strings"

	"mathviz/internal/config"
)

var qualityLabels = []struct{ flag, label string }{
	{"l", "low, fast preview"},
	{"m", "medium"},
	{"h", "high"},
	{"k", "4K"},
}

// Instructions describes how to re-render the program by hand.
func Instructions(programPath string, classes []string) string {
	var b strings.Builder
	name := filepath.Base(programPath)
	b.WriteString("MANIM RENDERING INSTRUCTIONS\n\n")
	fmt.Fprintf(&b, "Program: %s\n", name)
	fmt.Fprintf(&b, "Scenes (%d): %s\n\n", len(classes), strings.Join(classes, ", "))
	b.WriteString("Render all scenes:\n")
	for _, q := range qualityLabels {
		fmt.Fprintf(&b, "  manim -q%s %s   # %s, %s\n", q.flag, name, q.label, config.ResolutionDirs[q.flag])
	}
	b.WriteString("\nRender one scene:\n")
	for _, class := range classes {
		fmt.Fprintf(&b, "  manim -qh %s %s\n", name, class)
	}
	b.WriteString("\nOutput: media/videos/<program>/<resolution>/<Scene>.mp4\n")
	return b.String()
}

// Metadata is saved next to the rendered clips.
type Metadata struct {
	Program string   `json:"program"`
	Quality string   `json:"quality"`
	Scenes  []string `json:"scenes"`
	Clips   []Clip   `json:"clips"`
	Missing []string `json:"missing,omitempty"`
}

// NewMetadata records which scenes produced clips.
func NewMetadata(programPath, quality string, classes []string, clips []Clip) Metadata {
	rendered := make(map[string]bool, len(clips))
	for _, c := range clips {
		rendered[c.Scene] = true
	}
	var missing []string
	for _, class := range classes {
		if !rendered[class] {
			missing = append(missing, class)
		}
	}
	return Metadata{Program: programPath, Quality: quality, Scenes: classes, Clips: clips, Missing: missing}
}
