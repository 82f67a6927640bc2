// Package output prints the pipeline's progress: phase banners, per-step
// glyphs, rendered markdown and the end-of-run summary.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	markdown "github.com/MichaelMure/go-term-markdown"
	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"
)

// Glyphs used for step results.
const (
	GlyphOK   = "✓"
	GlyphFail = "✗"
	GlyphWarn = "!"
	GlyphInfo = "•"
)

// Printer writes progress to a terminal or plain stream. Colors are
// dropped when the destination is not a terminal.
type Printer struct {
	w      io.Writer
	width  int
	styled bool

	title  *color.Color
	phase  *color.Color
	ok     *color.Color
	fail   *color.Color
	warn   *color.Color
	dim    *color.Color
	accent *color.Color
}

// New returns a Printer for w; nil means stdout.
func New(w io.Writer) *Printer {
	if w == nil {
		w = os.Stdout
	}
	width := terminalWidth(w)
	p := &Printer{w: w, width: width, styled: width > 0}
	if p.width == 0 {
		p.width = defaultWidth
	}
	p.title = p.color(color.FgMagenta, color.Bold)
	p.phase = p.color(color.FgCyan, color.Bold)
	p.ok = p.color(color.FgGreen)
	p.fail = p.color(color.FgRed, color.Bold)
	p.warn = p.color(color.FgYellow)
	p.dim = p.color(color.Faint)
	p.accent = p.color(color.FgBlue)
	return p
}

func (p *Printer) color(attrs ...color.Attribute) *color.Color {
	c := color.New(attrs...)
	if !p.styled {
		c.DisableColor()
	} else {
		c.EnableColor()
	}
	return c
}

func (p *Printer) rule() string {
	return strings.Repeat("─", min(p.width, 72))
}

// Banner prints the application header.
func (p *Printer) Banner(name, version string) {
	title := fmt.Sprintf("%s %s", name, version)
	if p.styled {
		title = gradient(title)
	}
	fmt.Fprintln(p.w, p.rule())
	fmt.Fprintf(p.w, "  %s\n", title)
	p.dim.Fprintln(p.w, "  Math problems in, narrated animations out. Type exit to quit.")
	fmt.Fprintln(p.w, p.rule())
}

// Phase announces the start of pipeline phase n of total.
func (p *Printer) Phase(n, total int, name string) {
	fmt.Fprintln(p.w)
	p.phase.Fprintf(p.w, "[%d/%d] %s\n", n, total, name)
}

// Success prints a completed step.
func (p *Printer) Success(format string, args ...any) {
	p.step(p.ok, GlyphOK, format, args...)
}

// Failure prints a failed step.
func (p *Printer) Failure(format string, args ...any) {
	p.step(p.fail, GlyphFail, format, args...)
}

// Warning prints a degraded step.
func (p *Printer) Warning(format string, args ...any) {
	p.step(p.warn, GlyphWarn, format, args...)
}

// Info prints a neutral detail line.
func (p *Printer) Info(format string, args ...any) {
	p.step(p.dim, GlyphInfo, format, args...)
}

func (p *Printer) step(c *color.Color, glyph, format string, args ...any) {
	line := fmt.Sprintf("  %s %s", c.Sprint(glyph), fmt.Sprintf(format, args...))
	fmt.Fprintln(p.w, ConstrainWidth(line, p.width))
}

// Markdown renders text as terminal markdown when styled, or prints it
// verbatim otherwise.
func (p *Printer) Markdown(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	if !p.styled {
		fmt.Fprintln(p.w, text)
		return
	}
	out := markdown.Render(text, min(p.width, 100)-4, 4)
	fmt.Fprintln(p.w, strings.TrimRight(string(out), "\n"))
}

// Error prints an error that ended a query.
func (p *Printer) Error(err error) {
	p.fail.Fprintf(p.w, "%s %v\n", GlyphFail, err)
}

// gradient colours each rune along a purple ramp.
func gradient(text string) string {
	ramp := []string{"#E0B0FF", "#D8A7F5", "#C78EEB", "#B678E0", "#9F5FD6", "#8B47CC"}
	runes := []rune(text)
	if len(runes) == 0 {
		return text
	}
	var b strings.Builder
	for i, r := range runes {
		idx := i * (len(ramp) - 1) / max(len(runes)-1, 1)
		b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color(ramp[idx])).Render(string(r)))
	}
	return b.String()
}
