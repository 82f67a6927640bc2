// Package tts synthesizes narration audio per segment and derives the
// phrase schedules scene generation is timed against.
package tts

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"mathviz/internal/capability"
	"mathviz/internal/config"
	mverrors "mathviz/internal/errors"
	"mathviz/internal/httpclient"
	"mathviz/internal/logging"
)

// ErrNotGenerated signals that a provider produced no audio for a request.
var ErrNotGenerated = errors.New("tts: no audio generated")

// Request is one synthesis call.
type Request struct {
	Text       string
	Voice      string
	SampleRate int
	// Reference is the cached voice sample, nil when none is configured.
	Reference *VoiceReference
}

// ProviderResult is synthesized audio.
type ProviderResult struct {
	Audio       []byte
	ContentType string
	Duration    time.Duration
	Metadata    map[string]string
}

// Provider is a speech-synthesis backend.
type Provider interface {
	Name() string
	Synthesize(ctx context.Context, req Request) (ProviderResult, error)
}

// Detect builds the configured provider, or explains why none is usable.
func Detect(cfg config.TTSConfig, logger logging.Logger) capability.Capability[Provider] {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "silent", "mock":
		return capability.Ready[Provider](SilentProvider{SampleRate: cfg.SampleRate})
	case "http":
		if cfg.Endpoint == "" {
			return capability.Unavailable[Provider]("tts.endpoint is not set")
		}
		return capability.Ready[Provider](&HTTPProvider{
			Endpoint: cfg.Endpoint,
			APIKey:   cfg.APIKey,
			Client:   httpclient.NewWithCircuitBreaker(timeoutOr(cfg.Timeout), logger, "tts"),
			Retry:    mverrors.RetryConfig{MaxAttempts: 2, BaseDelay: 2 * time.Second, MaxDelay: 20 * time.Second, JitterFactor: 0.2},
			Logger:   logger,
		})
	case "command", "":
		if cfg.Command == "" {
			return capability.Unavailable[Provider]("tts.command is not set")
		}
		path, err := exec.LookPath(cfg.Command)
		if err != nil {
			return capability.Unavailablef[Provider]("%s not found on PATH", cfg.Command)
		}
		return capability.Ready[Provider](&CommandProvider{
			Bin:     path,
			Args:    cfg.Args,
			Timeout: timeoutOr(cfg.Timeout),
		})
	case "none", "off":
		return capability.Unavailable[Provider]("speech synthesis disabled")
	default:
		return capability.Unavailablef[Provider]("unknown tts provider %q", cfg.Provider)
	}
}

func timeoutOr(d time.Duration) time.Duration {
	if d <= 0 {
		return 300 * time.Second
	}
	return d
}

func validate(req Request) error {
	if strings.TrimSpace(req.Text) == "" {
		return fmt.Errorf("%w: empty text", ErrNotGenerated)
	}
	return nil
}
