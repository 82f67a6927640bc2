package render

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	slideMaxRunes  = 280
	slideLineWidth = 42
	slideWriteTime = 1.0
)

// TextSlideClass is the class name used in text-slide programs.
func TextSlideClass(index int) string {
	return fmt.Sprintf("TextSlide%02d", index)
}

// TextSlideCode builds a minimal scene showing text for duration seconds.
func TextSlideCode(text string, duration float64, index int) string {
	write := slideWriteTime
	if duration < 2*write {
		write = duration / 2
	}
	hold := duration - write
	if hold < 0 {
		hold = 0
	}

	lines := wrap(shorten(strings.Join(strings.Fields(text), " "), slideMaxRunes), slideLineWidth)
	if len(lines) == 0 {
		lines = []string{fmt.Sprintf("Segment %d", index)}
	}
	quoted := make([]string, len(lines))
	for i, line := range lines {
		quoted[i] = strconv.Quote(line)
	}

	return fmt.Sprintf(`from manim import *


class %s(Scene):
    def construct(self):
        lines = VGroup(*[Text(line, font_size=36) for line in [%s]])
        lines.arrange(DOWN, aligned_edge=LEFT, buff=0.25)
        lines.scale_to_fit_width(min(lines.width, config.frame_width - 1))
        self.play(FadeIn(lines), run_time=%.2f)
        self.wait(%.2f)
`, TextSlideClass(index), strings.Join(quoted, ", "), write, hold)
}

// RenderTextSlide renders a fallback slide for a segment without a clip and
// returns the produced file.
func (r *Renderer) RenderTextSlide(ctx context.Context, text string, duration float64, index int, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	script := filepath.Join(dir, fmt.Sprintf("text_slide_%02d.py", index))
	if err := os.WriteFile(script, []byte(TextSlideCode(text, duration, index)), 0o644); err != nil {
		return "", err
	}
	mediaDir := filepath.Join(dir, fmt.Sprintf("text_slide_%02d_media", index))
	return r.render(ctx, script, TextSlideClass(index), "-ql", mediaDir, r.opts.TextSlideTimeout)
}

func shorten(text string, max int) string {
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return strings.TrimSpace(string(runes[:max])) + "..."
}

func wrap(text string, width int) []string {
	var (
		lines   []string
		current strings.Builder
	)
	for _, word := range strings.Fields(text) {
		if current.Len() > 0 && len([]rune(current.String()))+1+len([]rune(word)) > width {
			lines = append(lines, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(word)
	}
	if current.Len() > 0 {
		lines = append(lines, current.String())
	}
	return lines
}
