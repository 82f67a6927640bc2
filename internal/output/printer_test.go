package output

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPrinterPlainOutput(t *testing.T) {
	var buf bytes.Buffer
	p := New(&buf)

	p.Phase(3, 7, "Synthesizing audio")
	p.Success("segment %d: %.1fs", 1, 4.0)
	p.Failure("segment 2")
	p.Warning("ffmpeg unavailable")
	p.Info("saved %s", "audio/segment_01.wav")
	p.Markdown("  **x = 2**  ")
	p.Error(errors.New("solver unreachable"))

	out := buf.String()
	assert.NotContains(t, out, "\x1b[", "non-terminal output must not carry escapes")
	assert.Contains(t, out, "[3/7] Synthesizing audio\n")
	assert.Contains(t, out, "  ✓ segment 1: 4.0s\n")
	assert.Contains(t, out, "  ✗ segment 2\n")
	assert.Contains(t, out, "  ! ffmpeg unavailable\n")
	assert.Contains(t, out, "  • saved audio/segment_01.wav\n")
	assert.Contains(t, out, "**x = 2**\n")
	assert.Contains(t, out, "✗ solver unreachable\n")
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	New(&buf).PrintSummary(Summary{
		Session: "20240101_120000_integrate_x",
		Elapsed: 95 * time.Second,
		Capabilities: []CapabilityStatus{
			{Name: "manim", Ready: true, Detail: "/usr/bin/manim"},
			{Name: "ffmpeg", Ready: false, Detail: "not found on PATH"},
		},
		Phases: []PhaseStatus{
			{Name: "render", Produced: true, Detail: "3 clip(s)"},
			{Name: "sync", Produced: false, Detail: "ffmpeg unavailable"},
		},
		Artifacts:  []string{"video/manim_visualization.py"},
		NextSteps:  []string{"Install ffmpeg and re-run to assemble the final video."},
		FinalVideo: "",
	})

	out := buf.String()
	assert.Contains(t, out, "Session: 20240101_120000_integrate_x")
	assert.Contains(t, out, "Elapsed: 1m35s")
	assert.Contains(t, out, "✓ manim /usr/bin/manim")
	assert.Contains(t, out, "! ffmpeg unavailable: not found on PATH")
	assert.Contains(t, out, "! sync skipped: ffmpeg unavailable")
	assert.Contains(t, out, "1. Install ffmpeg")
	assert.NotContains(t, out, "Final video")
}

func TestConstrainWidth(t *testing.T) {
	assert.Equal(t, "abc", ConstrainWidth("abc", 10))
	got := ConstrainWidth("abcdefghij\nxy", 5)
	lines := strings.Split(got, "\n")
	assert.Equal(t, 5, len([]rune(lines[0])))
	assert.Equal(t, "xy", lines[1])
	assert.Equal(t, "abc", ConstrainWidth("abc", 0))
}
