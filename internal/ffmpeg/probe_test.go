package ffmpeg

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cannedRunner struct {
	out  string
	args []string
}

func (c *cannedRunner) Run(_ context.Context, bin string, args ...string) ([]byte, error) {
	c.args = append([]string{bin}, args...)
	return []byte(c.out), nil
}

const manimClipProbe = `{
  "streams": [
    {"codec_type": "video", "codec_name": "h264", "width": 1920, "height": 1080,
     "pix_fmt": "yuv420p", "avg_frame_rate": "60/1"},
    {"codec_type": "audio", "codec_name": "aac", "sample_rate": "24000", "channels": 1}
  ],
  "format": {"duration": "7.250000"}
}`

func TestProbeReadsManimClip(t *testing.T) {
	runner := &cannedRunner{out: manimClipProbe}
	prober := &LocalProber{Bin: "/opt/ffprobe", Runner: runner}

	res, err := prober.Probe(context.Background(), "media/Scene1.mp4")
	require.NoError(t, err)
	require.Len(t, res.VideoStreams, 1)
	require.Len(t, res.AudioStreams, 1)
	assert.InDelta(t, 60.0, res.VideoStreams[0].FrameRate, 1e-9)
	assert.Equal(t, 1080, res.VideoStreams[0].Height)
	assert.Equal(t, 24000, res.AudioStreams[0].SampleRate)
	assert.InDelta(t, 7.25, res.Seconds(), 1e-9)
	assert.Equal(t, "/opt/ffprobe", runner.args[0])
	assert.Equal(t, "media/Scene1.mp4", runner.args[len(runner.args)-1])
}

func TestProbeRequiresVideo(t *testing.T) {
	prober := &LocalProber{Runner: &cannedRunner{out: `{"streams": [{"codec_type": "audio"}], "format": {"duration": "2.0"}}`}}
	_, err := prober.Probe(context.Background(), "segment_01.wav")
	assert.ErrorIs(t, err, ErrNoVideoStreams)
}

func TestDurationAcceptsAudioOnly(t *testing.T) {
	prober := &LocalProber{Runner: &cannedRunner{out: `{"streams": [{"codec_type": "audio"}], "format": {"duration": "3.5"}}`}}
	seconds, err := prober.Duration(context.Background(), "segment_01.wav")
	require.NoError(t, err)
	assert.InDelta(t, 3.5, seconds, 1e-9)

	prober.Runner = &cannedRunner{out: `{"streams": [], "format": {}}`}
	_, err = prober.Duration(context.Background(), "empty.wav")
	assert.ErrorContains(t, err, "no duration")

	_, err = prober.Duration(context.Background(), "  ")
	assert.ErrorContains(t, err, "empty path")
}

func TestParseRate(t *testing.T) {
	assert.InDelta(t, 29.97, parseRate("30000/1001"), 0.01)
	assert.InDelta(t, 25.0, parseRate("25"), 1e-9)
	assert.Zero(t, parseRate("1/0"))
	assert.Zero(t, parseRate("x/y"))
}
