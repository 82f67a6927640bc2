package scene

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// SyntaxChecker decides whether generated code parses. A nil error means it
// does; a *SyntaxError describes the first problem found.
type SyntaxChecker interface {
	Check(ctx context.Context, code string) error
}

// SyntaxError is a parse failure at a 1-based line.
type SyntaxError struct {
	Line int
	Msg  string
}

func (e *SyntaxError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
	}
	return e.Msg
}

const pythonParseScript = `import ast, sys
try:
    ast.parse(sys.stdin.read())
except SyntaxError as e:
    print("%s:%s" % (e.lineno or 0, e.msg))
    sys.exit(3)
`

const pythonCheckTimeout = 10 * time.Second

// PythonChecker parses with the interpreter's own ast module. When the
// interpreter cannot be run at all it defers to Fallback.
type PythonChecker struct {
	Bin      string
	Fallback SyntaxChecker
}

// NewSyntaxChecker prefers a real interpreter and falls back to the
// heuristic scanner when bin is not on PATH.
func NewSyntaxChecker(bin string) SyntaxChecker {
	if bin == "" {
		bin = "python3"
	}
	if path, err := exec.LookPath(bin); err == nil {
		return &PythonChecker{Bin: path, Fallback: HeuristicChecker{}}
	}
	return HeuristicChecker{}
}

func (p *PythonChecker) Check(ctx context.Context, code string) error {
	ctx, cancel := context.WithTimeout(ctx, pythonCheckTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.Bin, "-c", pythonParseScript)
	cmd.Stdin = strings.NewReader(code)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	err := cmd.Run()
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 3 {
		return parseSyntaxReport(stdout.String())
	}
	if p.Fallback != nil {
		return p.Fallback.Check(ctx, code)
	}
	return fmt.Errorf("syntax check: %w", err)
}

func parseSyntaxReport(out string) error {
	out = strings.TrimSpace(out)
	lineText, msg, ok := strings.Cut(out, ":")
	if !ok {
		return &SyntaxError{Msg: out}
	}
	line, _ := strconv.Atoi(lineText)
	return &SyntaxError{Line: line, Msg: msg}
}

// HeuristicChecker approximates a Python parse: it tracks string literals,
// bracket nesting, line continuations and block indentation. It catches the
// failure modes truncated model output produces, not every grammar error.
type HeuristicChecker struct{}

func (HeuristicChecker) Check(_ context.Context, code string) error {
	s := scanner{indents: []int{0}}
	for i, line := range strings.Split(code, "\n") {
		if err := s.line(i+1, line); err != nil {
			return err
		}
	}
	return s.finish()
}

type scanner struct {
	brackets   []rune
	quote      rune
	triple     bool
	continued  bool
	expectBody bool
	indents    []int
	lineNo     int
	last       rune
	keyword    string
	logical    strings.Builder
}

var compoundKeywords = map[string]bool{
	"def": true, "class": true, "if": true, "elif": true, "else": true,
	"for": true, "while": true, "with": true, "try": true, "except": true,
	"finally": true,
}

func (s *scanner) inLogicalLine() bool {
	return len(s.brackets) > 0 || s.triple || s.continued
}

func (s *scanner) line(no int, line string) error {
	s.lineNo = no
	if !s.inLogicalLine() {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			return nil
		}
		if err := s.indent(indentWidth(line)); err != nil {
			return err
		}
		s.logical.Reset()
		s.last = 0
		s.keyword = leadingWord(trimmed)
	}
	s.continued = false

	runes := []rune(line)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if s.quote != 0 {
			switch {
			case r == '\\':
				if i+1 >= len(runes) {
					// Backslash-newline inside a string joins the lines.
					s.continued = !s.triple
				}
				i++
			case r == s.quote && !s.triple:
				s.quote = 0
			case r == s.quote && s.triple && i+2 < len(runes) && runes[i+1] == r && runes[i+2] == r:
				s.quote, s.triple = 0, false
				i += 2
			}
			s.last = r
			continue
		}

		switch r {
		case '#':
			i = len(runes)
			continue
		case '\'', '"':
			s.quote = r
			if i+2 < len(runes) && runes[i+1] == r && runes[i+2] == r {
				s.triple = true
				i += 2
			}
		case '(', '[', '{':
			s.brackets = append(s.brackets, r)
		case ')', ']', '}':
			if len(s.brackets) == 0 || s.brackets[len(s.brackets)-1] != opening(r) {
				return &SyntaxError{Line: no, Msg: fmt.Sprintf("unmatched '%c'", r)}
			}
			s.brackets = s.brackets[:len(s.brackets)-1]
		case '\\':
			if strings.TrimSpace(string(runes[i+1:])) == "" {
				s.continued = true
				i = len(runes)
				continue
			}
		}
		if r != ' ' && r != '\t' {
			s.last = r
			s.logical.WriteRune(r)
		}
	}

	if s.quote != 0 && !s.triple && !s.continued {
		return &SyntaxError{Line: no, Msg: "unterminated string literal"}
	}
	if s.inLogicalLine() {
		return nil
	}
	return s.endLogicalLine(no)
}

func (s *scanner) endLogicalLine(no int) error {
	if compoundKeywords[s.keyword] && !strings.Contains(s.logical.String(), ":") {
		return &SyntaxError{Line: no, Msg: fmt.Sprintf("expected ':' after %s", s.keyword)}
	}
	switch s.last {
	case ':':
		s.expectBody = true
	case '=', '+', '-', '/', '%', '&', '|', '^', '<', '>', '@', '~':
		return &SyntaxError{Line: no, Msg: "invalid syntax: statement ends with an operator"}
	case '.':
		// "2." is a float literal; "self." is not.
		text := s.logical.String()
		if len(text) < 2 || text[len(text)-2] < '0' || text[len(text)-2] > '9' {
			return &SyntaxError{Line: no, Msg: "invalid syntax: statement ends with '.'"}
		}
	case '*':
		if !strings.HasSuffix(s.logical.String(), "import*") {
			return &SyntaxError{Line: no, Msg: "invalid syntax: statement ends with an operator"}
		}
	}
	return nil
}

func (s *scanner) indent(width int) error {
	top := s.indents[len(s.indents)-1]
	if s.expectBody {
		s.expectBody = false
		if width <= top {
			return &SyntaxError{Line: s.lineNo, Msg: "expected an indented block"}
		}
		s.indents = append(s.indents, width)
		return nil
	}
	if width > top {
		return &SyntaxError{Line: s.lineNo, Msg: "unexpected indent"}
	}
	for width < s.indents[len(s.indents)-1] {
		s.indents = s.indents[:len(s.indents)-1]
	}
	if width != s.indents[len(s.indents)-1] {
		return &SyntaxError{Line: s.lineNo, Msg: "unindent does not match any outer indentation level"}
	}
	return nil
}

func (s *scanner) finish() error {
	switch {
	case s.quote != 0:
		return &SyntaxError{Line: s.lineNo, Msg: "unterminated string literal at end of input"}
	case len(s.brackets) > 0:
		return &SyntaxError{Line: s.lineNo, Msg: fmt.Sprintf("'%c' was never closed", s.brackets[len(s.brackets)-1])}
	case s.continued:
		return &SyntaxError{Line: s.lineNo, Msg: "unexpected end of input after line continuation"}
	case s.expectBody:
		return &SyntaxError{Line: s.lineNo, Msg: "expected an indented block"}
	}
	return nil
}

func leadingWord(text string) string {
	end := strings.IndexFunc(text, func(r rune) bool {
		return !(r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r))
	})
	if end < 0 {
		return text
	}
	return text[:end]
}

func opening(r rune) rune {
	switch r {
	case ')':
		return '('
	case ']':
		return '['
	}
	return '{'
}

func indentWidth(line string) int {
	width := 0
	for _, r := range line {
		switch r {
		case ' ':
			width++
		case '\t':
			width += 8 - width%8
		default:
			return width
		}
	}
	return width
}
