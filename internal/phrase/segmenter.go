// Package phrase splits narration text into natural phrases and apportions a
// known audio duration across them by word count.
package phrase

import (
	"strings"
	"unicode"
)

// Phrase is one timed sub-unit of a narration segment. Offsets are seconds
// from the start of the segment's audio.
type Phrase struct {
	Text     string  `json:"text"`
	Start    float64 `json:"start"`
	End      float64 `json:"end"`
	Duration float64 `json:"duration"`
}

// Options tunes the duration heuristic used only to decide phrase boundaries.
type Options struct {
	WordsPerSecond   float64
	MinPhraseSeconds float64
	MaxPhraseSeconds float64
}

// DefaultOptions approximates a 150 wpm narrator.
func DefaultOptions() Options {
	return Options{WordsPerSecond: 2.5, MinPhraseSeconds: 1.5, MaxPhraseSeconds: 4.0}
}

// Segmenter is stateless and safe for concurrent use.
type Segmenter struct {
	opts Options
}

// New returns a Segmenter; zero fields fall back to DefaultOptions.
func New(opts Options) *Segmenter {
	def := DefaultOptions()
	if opts.WordsPerSecond <= 0 {
		opts.WordsPerSecond = def.WordsPerSecond
	}
	if opts.MinPhraseSeconds <= 0 {
		opts.MinPhraseSeconds = def.MinPhraseSeconds
	}
	if opts.MaxPhraseSeconds <= 0 {
		opts.MaxPhraseSeconds = def.MaxPhraseSeconds
	}
	if opts.MaxPhraseSeconds < opts.MinPhraseSeconds {
		opts.MaxPhraseSeconds = opts.MinPhraseSeconds
	}
	return &Segmenter{opts: opts}
}

// Segment partitions text into phrases whose durations sum to total and whose
// offsets are contiguous. It always returns at least one phrase.
func (s *Segmenter) Segment(text string, total float64) []Phrase {
	if total < 0 {
		total = 0
	}
	trimmed := strings.TrimSpace(text)
	totalWords := wordCount(trimmed)
	if totalWords == 0 {
		return []Phrase{{Text: trimmed, Start: 0, End: total, Duration: total}}
	}

	texts := s.group(s.units(trimmed))
	if len(texts) == 0 {
		return []Phrase{{Text: trimmed, Start: 0, End: total, Duration: total}}
	}

	phrases := make([]Phrase, 0, len(texts))
	cursor := 0.0
	for _, t := range texts {
		d := total * float64(wordCount(t)) / float64(totalWords)
		phrases = append(phrases, Phrase{Text: t, Start: cursor, End: cursor + d, Duration: d})
		cursor += d
	}

	// Absorb floating-point drift in the final phrase.
	last := &phrases[len(phrases)-1]
	last.End = total
	last.Duration = total - last.Start
	return phrases
}

// units returns sentences, with over-long sentences broken at clause marks.
func (s *Segmenter) units(text string) []string {
	var out []string
	for _, sentence := range SplitSentences(text) {
		if s.estimate(sentence) > s.opts.MaxPhraseSeconds {
			out = append(out, SplitClauses(sentence)...)
			continue
		}
		out = append(out, sentence)
	}
	return out
}

// group greedily accumulates units until the running phrase reaches the
// minimum duration, never letting it grow past the maximum.
func (s *Segmenter) group(units []string) []string {
	var (
		phrases []string
		current []string
		words   int
	)
	flush := func() {
		if len(current) > 0 {
			phrases = append(phrases, strings.Join(current, " "))
		}
		current, words = nil, 0
	}

	for _, unit := range units {
		n := wordCount(unit)
		if n == 0 {
			continue
		}
		if len(current) > 0 && s.seconds(words+n) > s.opts.MaxPhraseSeconds {
			flush()
		}
		current = append(current, unit)
		words += n
		if s.seconds(words) >= s.opts.MinPhraseSeconds {
			flush()
		}
	}
	flush()
	return phrases
}

func (s *Segmenter) estimate(text string) float64 {
	return s.seconds(wordCount(text))
}

func (s *Segmenter) seconds(words int) float64 {
	return float64(words) / s.opts.WordsPerSecond
}

// SplitSentences cuts text after '.', '!' or '?' when followed by whitespace.
func SplitSentences(text string) []string {
	return splitAfter(text, func(runes []rune, i int) bool {
		switch runes[i] {
		case '.', '!', '?':
			return i+1 < len(runes) && unicode.IsSpace(runes[i+1])
		}
		return false
	})
}

// SplitClauses cuts a sentence after commas, semicolons, colons and dashes.
// A hyphen only counts as a dash when surrounded by spaces.
func SplitClauses(sentence string) []string {
	return splitAfter(sentence, func(runes []rune, i int) bool {
		switch runes[i] {
		case ',', ';', ':', '—', '–':
			return true
		case '-':
			return i > 0 && unicode.IsSpace(runes[i-1]) && i+1 < len(runes) && unicode.IsSpace(runes[i+1])
		}
		return false
	})
}

func splitAfter(text string, cut func(runes []rune, i int) bool) []string {
	runes := []rune(text)
	var parts []string
	start := 0
	for i := range runes {
		if !cut(runes, i) {
			continue
		}
		if part := strings.TrimSpace(string(runes[start : i+1])); part != "" {
			parts = append(parts, part)
		}
		start = i + 1
	}
	if start < len(runes) {
		if part := strings.TrimSpace(string(runes[start:])); part != "" {
			parts = append(parts, part)
		}
	}
	return parts
}

func wordCount(text string) int {
	return len(strings.Fields(text))
}
