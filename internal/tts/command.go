package tts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"mathviz/internal/ffmpeg"
)

// CommandProvider runs a local synthesis program once per request. Args may
// reference {text}, {output}, {voice}, {sample_rate}, {reference_audio} and
// {reference_text}; the program must write a WAV file to {output}.
type CommandProvider struct {
	Bin     string
	Args    []string
	Timeout time.Duration
	Runner  ffmpeg.Runner
}

func (p *CommandProvider) Name() string { return "command:" + filepath.Base(p.Bin) }

func (p *CommandProvider) Synthesize(ctx context.Context, req Request) (ProviderResult, error) {
	if err := validate(req); err != nil {
		return ProviderResult{}, err
	}
	dir, err := os.MkdirTemp("", "mathviz-tts-")
	if err != nil {
		return ProviderResult{}, err
	}
	defer os.RemoveAll(dir)
	out := filepath.Join(dir, "speech.wav")

	runner := p.Runner
	if runner == nil {
		runner = ffmpeg.ExecRunner{}
	}
	ctx, cancel := context.WithTimeout(ctx, timeoutOr(p.Timeout))
	defer cancel()
	if _, err := runner.Run(ctx, p.Bin, expandArgs(p.Args, req, out)...); err != nil {
		return ProviderResult{}, fmt.Errorf("tts command: %w", err)
	}

	audio, err := os.ReadFile(out)
	if os.IsNotExist(err) || (err == nil && len(audio) == 0) {
		return ProviderResult{}, ErrNotGenerated
	}
	if err != nil {
		return ProviderResult{}, err
	}
	return ProviderResult{Audio: audio, ContentType: "audio/wav"}, nil
}

func expandArgs(args []string, req Request, output string) []string {
	if len(args) == 0 {
		args = []string{"--text", "{text}", "--output", "{output}"}
	}
	refAudio, refText := "", ""
	if req.Reference != nil {
		refAudio, refText = req.Reference.Path, req.Reference.Text
	}
	replacer := strings.NewReplacer(
		"{text}", req.Text,
		"{output}", output,
		"{voice}", req.Voice,
		"{sample_rate}", strconv.Itoa(req.SampleRate),
		"{reference_audio}", refAudio,
		"{reference_text}", refText,
	)
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = replacer.Replace(a)
	}
	return out
}

func secondsToDuration(s float64) time.Duration {
	if s <= 0 {
		return 0
	}
	return time.Duration(s * float64(time.Second))
}
