package tts

import (
	"context"
	"math"
	"strings"
	"time"
)

// silentWordsPerSecond matches the phrase segmenter's narrator estimate.
const silentWordsPerSecond = 2.5

// SilentProvider produces silence sized to the text. It lets the pipeline
// run end to end without a speech backend.
type SilentProvider struct {
	SampleRate int
}

func (SilentProvider) Name() string { return "silent" }

func (s SilentProvider) Synthesize(_ context.Context, req Request) (ProviderResult, error) {
	if err := validate(req); err != nil {
		return ProviderResult{}, err
	}
	duration := EstimateDuration(req.Text)
	return ProviderResult{
		Audio:       EncodeSilentWAV(duration, s.SampleRate),
		ContentType: "audio/wav",
		Duration:    duration,
		Metadata:    map[string]string{"voice": req.Voice},
	}, nil
}

// EstimateDuration guesses spoken length from word count, with a one
// second floor.
func EstimateDuration(text string) time.Duration {
	words := len(strings.Fields(text))
	seconds := math.Max(float64(words)/silentWordsPerSecond, 1)
	// Whole centiseconds keep the WAV length exact.
	return time.Duration(math.Round(seconds*100)) * 10 * time.Millisecond
}
