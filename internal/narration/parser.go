// Package narration turns a solution into numbered narration segments.
package narration

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Segment is one numbered unit of narration and its visual hint.
type Segment struct {
	Number    int    `json:"number"`
	Audio     string `json:"audio"`
	VisualCue string `json:"visual_cue"`
}

// ParseReport describes what the parser recovered and what it dropped.
type ParseReport struct {
	Segments []Segment
	// Duplicates lists declared numbers seen more than once; only the first
	// occurrence is kept.
	Duplicates []int
	// MissingAudio lists segments without an AUDIO block.
	MissingAudio []int
	// MissingVisual lists segments without a VISUAL_CUE block.
	MissingVisual []int
}

var (
	markerPattern = regexp.MustCompile(`(?i)\[\s*SEGMENT\s+(\d+)\s*\]`)
	audioLabel    = regexp.MustCompile(`(?i)\**\s*AUDIO\s*\**\s*:\s*\**`)
	visualLabel   = regexp.MustCompile(`(?i)\**\s*VISUAL[_ ]CUE\s*\**\s*:\s*\**`)
)

// Parse returns the segments of transcript sorted by declared number.
func Parse(transcript string) []Segment {
	return ParseWithReport(transcript).Segments
}

// ParseWithReport parses transcript. It never fails: text outside any
// marker is ignored and absent blocks parse as empty strings.
func ParseWithReport(transcript string) ParseReport {
	var report ParseReport
	matches := markerPattern.FindAllStringSubmatchIndex(transcript, -1)
	seen := make(map[int]bool, len(matches))

	for i, m := range matches {
		number, err := strconv.Atoi(transcript[m[2]:m[3]])
		if err != nil {
			continue
		}
		end := len(transcript)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		if seen[number] {
			report.Duplicates = append(report.Duplicates, number)
			continue
		}
		seen[number] = true

		body := transcript[m[1]:end]
		seg := Segment{
			Number:    number,
			Audio:     extractAudio(body),
			VisualCue: extractVisual(body),
		}
		if seg.Audio == "" {
			report.MissingAudio = append(report.MissingAudio, number)
		}
		if seg.VisualCue == "" {
			report.MissingVisual = append(report.MissingVisual, number)
		}
		report.Segments = append(report.Segments, seg)
	}

	sort.SliceStable(report.Segments, func(i, j int) bool {
		return report.Segments[i].Number < report.Segments[j].Number
	})
	sort.Ints(report.MissingAudio)
	sort.Ints(report.MissingVisual)
	return report
}

// extractAudio returns the text between AUDIO: and VISUAL_CUE: (or the end).
func extractAudio(body string) string {
	loc := audioLabel.FindStringIndex(body)
	if loc == nil {
		return ""
	}
	rest := body[loc[1]:]
	if v := visualLabel.FindStringIndex(rest); v != nil {
		rest = rest[:v[0]]
	}
	return clean(rest)
}

// extractVisual returns the text after VISUAL_CUE:. An AUDIO block that
// follows the cue is not part of it.
func extractVisual(body string) string {
	loc := visualLabel.FindStringIndex(body)
	if loc == nil {
		return ""
	}
	rest := body[loc[1]:]
	if a := audioLabel.FindStringIndex(rest); a != nil {
		rest = rest[:a[0]]
	}
	return clean(rest)
}

func clean(text string) string {
	return strings.Trim(strings.TrimSpace(text), "*_ \t\n")
}

// Numbers returns the segment numbers in order.
func Numbers(segments []Segment) []int {
	out := make([]int, len(segments))
	for i, seg := range segments {
		out[i] = seg.Number
	}
	return out
}
