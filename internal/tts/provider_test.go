package tts

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mathviz/internal/config"
	mverrors "mathviz/internal/errors"
	"mathviz/internal/logging"
)

func TestDetect(t *testing.T) {
	silent := Detect(config.TTSConfig{Provider: "silent"}, logging.Nop())
	require.True(t, silent.IsReady())
	p, _ := silent.Get()
	assert.Equal(t, "silent", p.Name())

	assert.False(t, Detect(config.TTSConfig{Provider: "none"}, nil).IsReady())
	assert.False(t, Detect(config.TTSConfig{Provider: "http"}, nil).IsReady())
	assert.False(t, Detect(config.TTSConfig{Provider: "command", Command: "definitely-not-a-tts-binary"}, nil).IsReady())

	unknown := Detect(config.TTSConfig{Provider: "carrier-pigeon"}, nil)
	assert.False(t, unknown.IsReady())
	assert.Contains(t, unknown.Reason(), "carrier-pigeon")
}

func TestSilentProviderRejectsEmptyText(t *testing.T) {
	_, err := SilentProvider{}.Synthesize(context.Background(), Request{Text: "   "})
	assert.ErrorIs(t, err, ErrNotGenerated)
}

func TestHTTPProviderRawAudio(t *testing.T) {
	wav := EncodeSilentWAV(time.Second, 8000)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		var req httpSynthesisRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "the derivative of x squared", req.Text)
		assert.Equal(t, "narrator", req.Voice)
		assert.Equal(t, "reference words", req.ReferenceText)
		assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("ref")), req.ReferenceAudio)
		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write(wav)
	}))
	defer server.Close()

	p := &HTTPProvider{Endpoint: server.URL, APIKey: "secret"}
	res, err := p.Synthesize(context.Background(), Request{
		Text:      "the derivative of x squared",
		Voice:     "narrator",
		Reference: &VoiceReference{Text: "reference words", Audio: []byte("ref")},
	})
	require.NoError(t, err)
	assert.Equal(t, wav, res.Audio)
	assert.Equal(t, "audio/wav", res.ContentType)
}

func TestHTTPProviderJSONAudio(t *testing.T) {
	wav := EncodeSilentWAV(time.Second, 8000)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(httpSynthesisResponse{
			Audio:    base64.StdEncoding.EncodeToString(wav),
			Duration: 1.25,
		})
	}))
	defer server.Close()

	res, err := (&HTTPProvider{Endpoint: server.URL}).Synthesize(context.Background(), Request{Text: "hello"})
	require.NoError(t, err)
	assert.Equal(t, wav, res.Audio)
	assert.Equal(t, 1250*time.Millisecond, res.Duration)
}

func TestHTTPProviderRetriesBusyBackend(t *testing.T) {
	wav := EncodeSilentWAV(time.Second, 8000)
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			http.Error(w, "model warming up", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write(wav)
	}))
	defer server.Close()

	p := &HTTPProvider{
		Endpoint: server.URL,
		Retry:    mverrors.RetryConfig{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond},
	}
	res, err := p.Synthesize(context.Background(), Request{Text: "hello"})
	require.NoError(t, err)
	assert.Equal(t, wav, res.Audio)
	assert.Equal(t, 2, calls)
}

func TestHTTPProviderErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/empty" {
			w.WriteHeader(http.StatusOK)
			return
		}
		http.Error(w, "voice not loaded", http.StatusBadRequest)
	}))
	defer server.Close()

	_, err := (&HTTPProvider{Endpoint: server.URL}).Synthesize(context.Background(), Request{Text: "hello"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")

	_, err = (&HTTPProvider{Endpoint: server.URL + "/empty"}).Synthesize(context.Background(), Request{Text: "hello"})
	assert.ErrorIs(t, err, ErrNotGenerated)
}

type fileWritingRunner struct {
	args  []string
	audio []byte
	err   error
}

func (r *fileWritingRunner) Run(_ context.Context, _ string, args ...string) ([]byte, error) {
	r.args = args
	if r.err != nil {
		return nil, r.err
	}
	for i, a := range args {
		if a == "--output" && i+1 < len(args) && r.audio != nil {
			if err := os.WriteFile(args[i+1], r.audio, 0o644); err != nil {
				return nil, err
			}
		}
	}
	return nil, nil
}

func TestCommandProviderExpandsArgs(t *testing.T) {
	wav := EncodeSilentWAV(time.Second, 8000)
	runner := &fileWritingRunner{audio: wav}
	p := &CommandProvider{
		Bin:    "/usr/bin/say-math",
		Args:   []string{"--text", "{text}", "--voice", "{voice}", "--rate", "{sample_rate}", "--ref", "{reference_audio}", "--output", "{output}"},
		Runner: runner,
	}
	res, err := p.Synthesize(context.Background(), Request{
		Text:       "two plus two",
		Voice:      "alto",
		SampleRate: 24000,
		Reference:  &VoiceReference{Path: "/voices/ref.wav"},
	})
	require.NoError(t, err)
	assert.Equal(t, wav, res.Audio)
	assert.Equal(t, "command:say-math", p.Name())
	assert.Equal(t, []string{"--text", "two plus two", "--voice", "alto", "--rate", "24000", "--ref", "/voices/ref.wav", "--output"}, runner.args[:9])
	assert.Equal(t, "speech.wav", filepath.Base(runner.args[9]))
}

func TestCommandProviderNoOutput(t *testing.T) {
	p := &CommandProvider{Bin: "tts", Runner: &fileWritingRunner{}}
	_, err := p.Synthesize(context.Background(), Request{Text: "silence"})
	assert.ErrorIs(t, err, ErrNotGenerated)

	failing := &CommandProvider{Bin: "tts", Runner: &fileWritingRunner{err: errors.New("exit status 1")}}
	_, err = failing.Synthesize(context.Background(), Request{Text: "silence"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exit status 1")
}

func TestReferenceLoader(t *testing.T) {
	ref, err := NewReferenceLoader("", "").Load()
	assert.NoError(t, err)
	assert.Nil(t, ref)

	missing := NewReferenceLoader(filepath.Join(t.TempDir(), "gone.wav"), "")
	_, err = missing.Load()
	assert.ErrorIs(t, err, ErrReferenceMissing)

	path := filepath.Join(t.TempDir(), "voice.wav")
	require.NoError(t, os.WriteFile(path, []byte("RIFF"), 0o644))
	loader := NewReferenceLoader(path, "sample text")
	first, err := loader.Load()
	require.NoError(t, err)
	require.NoError(t, os.Remove(path))
	second, err := loader.Load()
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, "sample text", second.Text)
}

func TestReferenceLoaderReadsTranscriptFile(t *testing.T) {
	dir := t.TempDir()
	audio := filepath.Join(dir, "voice.wav")
	text := filepath.Join(dir, "voice.txt")
	require.NoError(t, os.WriteFile(audio, []byte("RIFF"), 0o644))
	require.NoError(t, os.WriteFile(text, []byte("  hello from the reference\n"), 0o644))

	ref, err := NewReferenceLoader(audio, text).Load()
	require.NoError(t, err)
	assert.Equal(t, "hello from the reference", ref.Text)
}
