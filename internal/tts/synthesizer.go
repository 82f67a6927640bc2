package tts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"mathviz/internal/capability"
	"mathviz/internal/logging"
	"mathviz/internal/narration"
	"mathviz/internal/observability"
	"mathviz/internal/outcome"
	"mathviz/internal/phrase"
	"mathviz/internal/session"
)

// SegmentAudio is the synthesized narration of one segment.
type SegmentAudio struct {
	Number    int             `json:"segment_number"`
	Text      string          `json:"source_text"`
	AudioPath string          `json:"file_path"`
	Duration  float64         `json:"duration_seconds"`
	Phrases   []phrase.Phrase `json:"phrases"`
	// Estimated is set when the length came from word count rather than the
	// audio itself.
	Estimated bool `json:"estimated,omitempty"`
}

// Metadata is the audio_metadata.json manifest.
type Metadata struct {
	Generated  int            `json:"generated"`
	Total      int            `json:"total"`
	SampleRate int            `json:"sample_rate"`
	Provider   string         `json:"provider"`
	Files      []SegmentAudio `json:"files"`
}

// Durationer measures an audio file; *ffmpeg.Executor satisfies it.
type Durationer interface {
	Duration(ctx context.Context, path string) (float64, error)
}

// SynthesizerOptions configures a Synthesizer.
type SynthesizerOptions struct {
	Voice      string
	SampleRate int
	Reference  *ReferenceLoader
	Segmenter  *phrase.Segmenter
	Durations  Durationer
	Metrics    *observability.MetricsCollector
	Logger     logging.Logger
}

// Synthesizer turns narration segments into per-segment audio files and
// phrase schedules.
type Synthesizer struct {
	provider capability.Capability[Provider]
	opts     SynthesizerOptions
	logger   logging.Logger
}

func NewSynthesizer(provider capability.Capability[Provider], opts SynthesizerOptions) *Synthesizer {
	if opts.Segmenter == nil {
		opts.Segmenter = phrase.New(phrase.DefaultOptions())
	}
	if opts.SampleRate <= 0 {
		opts.SampleRate = 24000
	}
	return &Synthesizer{provider: provider, opts: opts, logger: logging.Component(opts.Logger, "tts")}
}

// Available reports whether synthesis can run at all, and why not.
func (s *Synthesizer) Available() (bool, string) {
	if !s.provider.IsReady() {
		return false, s.provider.Reason()
	}
	return true, ""
}

// SynthesizeAll renders every segment with spoken text. Individual segment
// failures are logged and skipped. The result is Empty when the provider is
// unavailable, the voice reference is missing, or no segment produced audio.
func (s *Synthesizer) SynthesizeAll(ctx context.Context, segments []narration.Segment, store *session.Store) outcome.Result[[]SegmentAudio] {
	provider, ok := s.provider.Get()
	if !ok {
		return outcome.Emptyf[[]SegmentAudio]("speech synthesis unavailable: %s", s.provider.Reason())
	}
	ref, err := s.opts.Reference.Load()
	if errors.Is(err, ErrReferenceMissing) {
		s.logger.Warn("%v; skipping audio", err)
		return outcome.Empty[[]SegmentAudio](err.Error())
	}
	if err != nil {
		return outcome.Fatal[[]SegmentAudio](err)
	}

	var (
		audios []SegmentAudio
		total  int
	)
	for _, seg := range segments {
		if strings.TrimSpace(seg.Audio) == "" {
			continue
		}
		total++
		if err := ctx.Err(); err != nil {
			return outcome.Fatal[[]SegmentAudio](err)
		}
		audio, err := s.synthesize(ctx, provider, ref, seg, store)
		if err != nil {
			s.logger.Warn("segment %d: %v", seg.Number, err)
			continue
		}
		audios = append(audios, audio)
	}
	if len(audios) == 0 {
		return outcome.Empty[[]SegmentAudio]("no segment produced audio")
	}

	if store != nil {
		meta := Metadata{
			Generated:  len(audios),
			Total:      total,
			SampleRate: s.opts.SampleRate,
			Provider:   provider.Name(),
			Files:      audios,
		}
		if _, err := store.SaveJSON(session.DirAudio, session.AudioMetadata, meta); err != nil {
			return outcome.Fatal[[]SegmentAudio](err)
		}
		timings := make(map[string][]phrase.Phrase, len(audios))
		for _, a := range audios {
			timings[fmt.Sprintf("segment_%02d", a.Number)] = a.Phrases
		}
		if _, err := store.SaveJSON(session.DirAudio, session.PhraseTimings, timings); err != nil {
			return outcome.Fatal[[]SegmentAudio](err)
		}
	}
	s.logger.Info("synthesized %d/%d segment(s) with %s", len(audios), total, provider.Name())
	return outcome.Ok(audios)
}

func (s *Synthesizer) synthesize(ctx context.Context, provider Provider, ref *VoiceReference, seg narration.Segment, store *session.Store) (SegmentAudio, error) {
	start := time.Now()
	res, err := provider.Synthesize(ctx, Request{
		Text:       seg.Audio,
		Voice:      s.opts.Voice,
		SampleRate: s.opts.SampleRate,
		Reference:  ref,
	})
	s.opts.Metrics.RecordPhase(ctx, "tts_segment", statusOf(err), time.Since(start))
	if err != nil {
		return SegmentAudio{}, err
	}

	audio := SegmentAudio{Number: seg.Number, Text: seg.Audio}
	if store != nil {
		path, err := store.SaveBytes(session.DirAudio, session.SegmentAudio(seg.Number), res.Audio)
		if err != nil {
			return SegmentAudio{}, err
		}
		audio.AudioPath = path
	}
	audio.Duration, audio.Estimated = s.measure(ctx, res, audio.AudioPath, seg.Audio)
	audio.Phrases = s.opts.Segmenter.Segment(seg.Audio, audio.Duration)

	if store != nil {
		if _, err := store.SaveJSON(session.DirAudio, session.SegmentPhrases(seg.Number), audio.Phrases); err != nil {
			return SegmentAudio{}, err
		}
	}
	return audio, nil
}

// measure prefers the provider's figure, then the WAV header, then a probe
// of the written file, and finally a word-count estimate.
func (s *Synthesizer) measure(ctx context.Context, res ProviderResult, path, text string) (float64, bool) {
	if res.Duration > 0 {
		return res.Duration.Seconds(), false
	}
	if d, err := WAVDuration(res.Audio); err == nil && d > 0 {
		return d.Seconds(), false
	}
	if s.opts.Durations != nil && path != "" {
		if d, err := s.opts.Durations.Duration(ctx, path); err == nil && d > 0 {
			return d, false
		}
	}
	return EstimateDuration(text).Seconds(), true
}

func statusOf(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
