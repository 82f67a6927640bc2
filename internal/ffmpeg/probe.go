package ffmpeg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrNoVideoStreams is returned when a file has no video stream.
var ErrNoVideoStreams = errors.New("ffprobe: no video streams")

// VideoStream describes one video stream.
type VideoStream struct {
	Codec       string
	Width       int
	Height      int
	PixelFormat string
	FrameRate   float64
}

// AudioStream describes one audio stream.
type AudioStream struct {
	Codec      string
	SampleRate int
	Channels   int
}

// ProbeResult is the subset of ffprobe output the pipeline reads.
type ProbeResult struct {
	Duration     time.Duration
	VideoStreams []VideoStream
	AudioStreams []AudioStream
}

// Seconds returns the container duration in seconds.
func (r *ProbeResult) Seconds() float64 { return r.Duration.Seconds() }

// LocalProber shells out to ffprobe.
type LocalProber struct {
	Bin     string
	Runner  Runner
	Timeout time.Duration
}

// Probe inspects a video file. Files without video fail with
// ErrNoVideoStreams.
func (p *LocalProber) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	out, err := p.run(ctx, path)
	if err != nil {
		return nil, err
	}
	return parseProbeOutput(out)
}

// Duration returns the container duration of any media file in seconds.
func (p *LocalProber) Duration(ctx context.Context, path string) (float64, error) {
	out, err := p.run(ctx, path)
	if err != nil {
		return 0, err
	}
	result, err := decodeProbe(out)
	if err != nil {
		return 0, err
	}
	if result.Duration <= 0 {
		return 0, fmt.Errorf("ffprobe %s: no duration reported", path)
	}
	return result.Seconds(), nil
}

func (p *LocalProber) run(ctx context.Context, path string) ([]byte, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("ffprobe: empty path")
	}
	bin := p.Bin
	if bin == "" {
		bin = "ffprobe"
	}
	runner := p.Runner
	if runner == nil {
		runner = ExecRunner{}
	}
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}
	return runner.Run(ctx, bin, "-v", "error", "-print_format", "json", "-show_format", "-show_streams", path)
}

type probePayload struct {
	Streams []struct {
		CodecType    string `json:"codec_type"`
		CodecName    string `json:"codec_name"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		PixFmt       string `json:"pix_fmt"`
		AvgFrameRate string `json:"avg_frame_rate"`
		SampleRate   string `json:"sample_rate"`
		Channels     int    `json:"channels"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

func decodeProbe(data []byte) (*ProbeResult, error) {
	var payload probePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("decode ffprobe output: %w", err)
	}
	result := &ProbeResult{}
	if payload.Format.Duration != "" {
		seconds, err := strconv.ParseFloat(payload.Format.Duration, 64)
		if err != nil {
			return nil, fmt.Errorf("parse duration %q: %w", payload.Format.Duration, err)
		}
		result.Duration = time.Duration(seconds * float64(time.Second))
	}
	for _, s := range payload.Streams {
		switch s.CodecType {
		case "video":
			result.VideoStreams = append(result.VideoStreams, VideoStream{
				Codec:       s.CodecName,
				Width:       s.Width,
				Height:      s.Height,
				PixelFormat: s.PixFmt,
				FrameRate:   parseRate(s.AvgFrameRate),
			})
		case "audio":
			rate, _ := strconv.Atoi(s.SampleRate)
			result.AudioStreams = append(result.AudioStreams, AudioStream{
				Codec:      s.CodecName,
				SampleRate: rate,
				Channels:   s.Channels,
			})
		}
	}
	return result, nil
}

func parseProbeOutput(data []byte) (*ProbeResult, error) {
	result, err := decodeProbe(data)
	if err != nil {
		return nil, err
	}
	if len(result.VideoStreams) == 0 {
		return nil, ErrNoVideoStreams
	}
	return result, nil
}

// parseRate reads ffprobe's "num/den" frame rates.
func parseRate(rate string) float64 {
	num, den, ok := strings.Cut(rate, "/")
	if !ok {
		v, _ := strconv.ParseFloat(rate, 64)
		return v
	}
	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || d == 0 {
		return 0
	}
	return n / d
}
