package tts

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mathviz/internal/capability"
	"mathviz/internal/narration"
	"mathviz/internal/phrase"
	"mathviz/internal/session"
)

type flakyProvider struct {
	fail map[string]bool
}

func (flakyProvider) Name() string { return "flaky" }

func (p flakyProvider) Synthesize(ctx context.Context, req Request) (ProviderResult, error) {
	if p.fail[req.Text] {
		return ProviderResult{}, errors.New("backend hiccup")
	}
	return SilentProvider{SampleRate: 8000}.Synthesize(ctx, req)
}

type opaqueProvider struct{}

func (opaqueProvider) Name() string { return "opaque" }

func (opaqueProvider) Synthesize(context.Context, Request) (ProviderResult, error) {
	return ProviderResult{Audio: []byte("ID3 not a wav"), ContentType: "audio/mpeg"}, nil
}

func newStore(t *testing.T) *session.Store {
	t.Helper()
	store, err := session.New(t.TempDir(), "tts test", time.Unix(0, 0))
	require.NoError(t, err)
	return store
}

func TestSynthesizeAllWritesArtifacts(t *testing.T) {
	store := newStore(t)
	s := NewSynthesizer(capability.Ready[Provider](SilentProvider{SampleRate: 8000}), SynthesizerOptions{})
	segments := []narration.Segment{
		{Number: 1, Audio: "one two three four five"},
		{Number: 2, Audio: "  "},
		{Number: 3, Audio: "Then we differentiate. The slope is two x."},
	}

	res := s.SynthesizeAll(context.Background(), segments, store)
	audios, ok := res.Value()
	require.True(t, ok, res.Reason())
	require.Len(t, audios, 2)

	first := audios[0]
	assert.Equal(t, 1, first.Number)
	assert.InDelta(t, 2.0, first.Duration, 1e-9)
	assert.False(t, first.Estimated)
	assert.FileExists(t, first.AudioPath)
	assert.Equal(t, session.SegmentAudio(1), filepath.Base(first.AudioPath))

	var total float64
	for _, p := range first.Phrases {
		total += p.Duration
	}
	assert.InDelta(t, first.Duration, total, 1e-6)

	assert.Equal(t, 3, audios[1].Number)
	assert.True(t, store.Exists(session.DirAudio, session.SegmentPhrases(3)))
	assert.False(t, store.Exists(session.DirAudio, session.SegmentAudio(2)))

	data, err := os.ReadFile(store.Path(session.DirAudio, session.PhraseTimings))
	require.NoError(t, err)
	var timings map[string][]phrase.Phrase
	require.NoError(t, json.Unmarshal(data, &timings))
	assert.Contains(t, timings, "segment_01")
	assert.Contains(t, timings, "segment_03")

	data, err = os.ReadFile(store.Path(session.DirAudio, session.AudioMetadata))
	require.NoError(t, err)
	var meta Metadata
	require.NoError(t, json.Unmarshal(data, &meta))
	assert.Equal(t, 2, meta.Generated)
	assert.Equal(t, 2, meta.Total)
	assert.Equal(t, 24000, meta.SampleRate)
	assert.Equal(t, "silent", meta.Provider)
}

func TestSynthesizeAllSkipsFailedSegments(t *testing.T) {
	provider := flakyProvider{fail: map[string]bool{"broken segment": true}}
	s := NewSynthesizer(capability.Ready[Provider](provider), SynthesizerOptions{})
	res := s.SynthesizeAll(context.Background(), []narration.Segment{
		{Number: 1, Audio: "broken segment"},
		{Number: 2, Audio: "fine segment"},
	}, nil)
	audios, ok := res.Value()
	require.True(t, ok)
	require.Len(t, audios, 1)
	assert.Equal(t, 2, audios[0].Number)

	all := s.SynthesizeAll(context.Background(), []narration.Segment{{Number: 1, Audio: "broken segment"}}, nil)
	assert.True(t, all.IsEmpty())
}

func TestSynthesizeAllEstimatesUnknownFormats(t *testing.T) {
	s := NewSynthesizer(capability.Ready[Provider](opaqueProvider{}), SynthesizerOptions{})
	res := s.SynthesizeAll(context.Background(), []narration.Segment{{Number: 1, Audio: "one two three four five"}}, nil)
	audios, ok := res.Value()
	require.True(t, ok)
	assert.True(t, audios[0].Estimated)
	assert.InDelta(t, 2.0, audios[0].Duration, 1e-9)
}

func TestSynthesizeAllSkipsWithoutProviderOrReference(t *testing.T) {
	segments := []narration.Segment{{Number: 1, Audio: "hello"}}

	none := NewSynthesizer(capability.Unavailable[Provider]("disabled"), SynthesizerOptions{})
	ok, reason := none.Available()
	assert.False(t, ok)
	assert.Equal(t, "disabled", reason)
	assert.True(t, none.SynthesizeAll(context.Background(), segments, nil).IsEmpty())

	missingRef := NewSynthesizer(capability.Ready[Provider](SilentProvider{}), SynthesizerOptions{
		Reference: NewReferenceLoader(filepath.Join(t.TempDir(), "voice.wav"), ""),
	})
	res := missingRef.SynthesizeAll(context.Background(), segments, nil)
	assert.True(t, res.IsEmpty())
	assert.Contains(t, res.Reason(), "voice reference not found")
}
