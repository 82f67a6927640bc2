package rag

import (
	"strings"

	"mathviz/internal/tokenutil"
)

// Chunk is a contiguous span of a source file. Lines are 1-based and
// inclusive.
type Chunk struct {
	Text      string
	StartLine int
	EndLine   int
}

// Chunker splits Python sources at top-level definitions and packs
// neighbouring definitions together up to MaxTokens. A definition larger
// than MaxTokens is split by lines.
type Chunker struct {
	MaxTokens int
	Count     tokenutil.Counter
}

func NewChunker(maxTokens int) *Chunker {
	if maxTokens <= 0 {
		maxTokens = 512
	}
	return &Chunker{MaxTokens: maxTokens, Count: tokenutil.CountTokens}
}

type block struct {
	lines []string
	start int
}

// Split returns the chunks of source, skipping blank ones.
func (c *Chunker) Split(source string) []Chunk {
	lines := strings.Split(strings.ReplaceAll(source, "\r\n", "\n"), "\n")
	var chunks []Chunk
	var (
		cur    []string
		start  int
		tokens int
	)
	flush := func() {
		for len(cur) > 0 && strings.TrimSpace(cur[len(cur)-1]) == "" {
			cur = cur[:len(cur)-1]
		}
		text := strings.Join(cur, "\n")
		if strings.TrimSpace(text) != "" {
			chunks = append(chunks, Chunk{Text: text, StartLine: start, EndLine: start + len(cur) - 1})
		}
		cur, tokens = nil, 0
	}

	for _, b := range topLevelBlocks(lines) {
		n := c.Count(strings.Join(b.lines, "\n"))
		if n > c.MaxTokens {
			if len(cur) > 0 {
				flush()
			}
			chunks = append(chunks, c.splitLines(b)...)
			continue
		}
		if len(cur) > 0 && tokens+n > c.MaxTokens {
			flush()
		}
		if len(cur) == 0 {
			start = b.start
		}
		cur = append(cur, b.lines...)
		tokens += n
	}
	if len(cur) > 0 {
		flush()
	}
	return chunks
}

func (c *Chunker) splitLines(b block) []Chunk {
	var out []Chunk
	var cur []string
	start, tokens := b.start, 0
	for i, line := range b.lines {
		n := c.Count(line)
		if len(cur) > 0 && tokens+n > c.MaxTokens {
			out = append(out, Chunk{Text: strings.Join(cur, "\n"), StartLine: start, EndLine: start + len(cur) - 1})
			cur, tokens, start = nil, 0, b.start+i
		}
		cur = append(cur, line)
		tokens += n
	}
	if text := strings.Join(cur, "\n"); strings.TrimSpace(text) != "" {
		out = append(out, Chunk{Text: text, StartLine: start, EndLine: start + len(cur) - 1})
	}
	return out
}

// topLevelBlocks cuts lines before every column-0 def, class or decorator.
// Comment lines directly above a definition travel with it.
func topLevelBlocks(lines []string) []block {
	var blocks []block
	cur := block{start: 1}
	for i, line := range lines {
		if i > 0 && startsDefinition(line) && !startsDecoratedDefinition(lines, i) {
			cut := len(cur.lines)
			for cut > 0 && isLeadIn(cur.lines[cut-1]) {
				cut--
			}
			if cut > 0 {
				blocks = append(blocks, block{lines: cur.lines[:cut], start: cur.start})
				cur = block{lines: append([]string(nil), cur.lines[cut:]...), start: cur.start + cut}
			}
		}
		cur.lines = append(cur.lines, line)
	}
	if len(cur.lines) > 0 {
		blocks = append(blocks, cur)
	}
	return blocks
}

func startsDefinition(line string) bool {
	return strings.HasPrefix(line, "def ") || strings.HasPrefix(line, "class ") ||
		strings.HasPrefix(line, "async def ") || strings.HasPrefix(line, "@")
}

// startsDecoratedDefinition reports whether line i continues a decorator
// stack begun on the line above.
func startsDecoratedDefinition(lines []string, i int) bool {
	return strings.HasPrefix(lines[i-1], "@")
}

func isLeadIn(line string) bool {
	return strings.HasPrefix(line, "#")
}
