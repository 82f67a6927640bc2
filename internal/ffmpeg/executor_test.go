package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRunner answers ffprobe from a duration table and makes ffmpeg
// create its output file.
type fakeRunner struct {
	mu        sync.Mutex
	durations map[string]float64
	fail      map[string]error
	calls     [][]string
}

func (f *fakeRunner) Run(_ context.Context, bin string, args ...string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]string{bin}, args...))
	target := args[len(args)-1]
	if bin == "ffprobe" {
		d, ok := f.durations[target]
		if !ok {
			return nil, &CommandError{Bin: bin, Err: errors.New("exit status 1"), Stderr: "No such file"}
		}
		return []byte(fmt.Sprintf(`{"streams":[{"codec_type":"audio","codec_name":"pcm_s16le","sample_rate":"24000","channels":1}],"format":{"duration":"%.6f"}}`, d)), nil
	}
	if err := f.fail[filepath.Base(target)]; err != nil {
		return nil, err
	}
	return nil, os.WriteFile(target, []byte("media"), 0o644)
}

func (f *fakeRunner) last() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

func newTestExecutor(r *fakeRunner) *Executor {
	return NewExecutor(Options{Runner: r})
}

func TestPlanAdjustment(t *testing.T) {
	cases := []struct {
		name    string
		current float64
		target  float64
		method  AdjustMethod
		loops   int
	}{
		{"within tolerance", 10.0, 10.4, AdjustNone, 0},
		{"mild slowdown", 9.0, 10.0, AdjustRetime, 0},
		{"mild speedup", 11.5, 10.0, AdjustRetime, 0},
		{"long clip", 15.0, 10.0, AdjustTrim, 0},
		{"short clip", 3.0, 10.0, AdjustLoop, 4},
		{"unknown duration", 0, 10.0, AdjustNone, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			plan := PlanAdjustment(tc.current, tc.target)
			assert.Equal(t, tc.method, plan.Method)
			assert.Equal(t, tc.loops, plan.Loops)
			if tc.method != AdjustNone {
				assert.Equal(t, tc.target, plan.Duration())
			} else {
				assert.Equal(t, tc.current, plan.Duration())
			}
		})
	}
}

func TestPlanArgs(t *testing.T) {
	retime := PlanAdjustment(8, 10)
	assert.Equal(t, []string{"-i", "in.mp4", "-filter:v", "setpts=1.250000*PTS", "-an", "-t", "10.000", "-y", "out.mp4"}, retime.Args("in.mp4", "out.mp4"))

	trim := PlanAdjustment(20, 10)
	assert.Equal(t, []string{"-i", "in.mp4", "-t", "10.000", "-c", "copy", "-y", "out.mp4"}, trim.Args("in.mp4", "out.mp4"))

	loop := PlanAdjustment(4, 10)
	assert.Equal(t, []string{"-stream_loop", "3", "-i", "in.mp4", "-t", "10.000", "-c", "copy", "-y", "out.mp4"}, loop.Args("in.mp4", "out.mp4"))

	assert.Nil(t, PlanAdjustment(10, 10).Args("in.mp4", "out.mp4"))
}

func TestAdjustWritesReconciledClip(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "clip.mp4")
	out := filepath.Join(dir, "adjusted.mp4")
	r := &fakeRunner{durations: map[string]float64{in: 3.0}}

	result := newTestExecutor(r).Adjust(context.Background(), in, 10.0, out)
	require.NoError(t, result.Err)
	assert.Equal(t, out, result.Path)
	assert.Equal(t, AdjustLoop, result.Plan.Method)
	assert.Equal(t, 10.0, result.Duration)
	assert.FileExists(t, out)
}

func TestAdjustFallsBackToOriginal(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "clip.mp4")
	out := filepath.Join(dir, "adjusted.mp4")
	r := &fakeRunner{
		durations: map[string]float64{in: 20.0},
		fail:      map[string]error{"adjusted.mp4": errors.New("encoder exploded")},
	}

	result := newTestExecutor(r).Adjust(context.Background(), in, 10.0, out)
	assert.Error(t, result.Err)
	assert.Equal(t, in, result.Path)
	assert.Equal(t, AdjustTrim, result.Plan.Method)

	missing := newTestExecutor(&fakeRunner{}).Adjust(context.Background(), filepath.Join(dir, "gone.mp4"), 10.0, out)
	assert.Error(t, missing.Err)
	assert.Equal(t, filepath.Join(dir, "gone.mp4"), missing.Path)
}

func TestAdjustSkipsCloseDurations(t *testing.T) {
	in := "/clips/a.mp4"
	r := &fakeRunner{durations: map[string]float64{in: 10.2}}
	result := newTestExecutor(r).Adjust(context.Background(), in, 10.0, "/clips/b.mp4")
	require.NoError(t, result.Err)
	assert.Equal(t, in, result.Path)
	assert.Len(t, r.calls, 1)
}

func TestMergeArgs(t *testing.T) {
	dir := t.TempDir()
	r := &fakeRunner{}
	out := filepath.Join(dir, "synced_01.mp4")
	require.NoError(t, newTestExecutor(r).Merge(context.Background(), "v.mp4", "a.wav", out))
	assert.Equal(t, []string{
		"ffmpeg", "-hide_banner", "-loglevel", "error",
		"-i", "v.mp4", "-i", "a.wav", "-c:v", "copy", "-c:a", "aac", "-b:a", "192k", "-shortest", "-y", out,
	}, r.last())
}

func TestConcatWritesList(t *testing.T) {
	dir := t.TempDir()
	r := &fakeRunner{}
	out := filepath.Join(dir, "final_video.mp4")
	inputs := []string{filepath.Join(dir, "intro.mp4"), filepath.Join(dir, "it's.mp4")}

	require.NoError(t, newTestExecutor(r).Concat(context.Background(), inputs, out))
	list, err := os.ReadFile(filepath.Join(dir, "concat_list.txt"))
	require.NoError(t, err)
	assert.Equal(t, ConcatList(inputs), string(list))
	assert.Contains(t, string(list), `it'\''s.mp4`)
	assert.True(t, strings.HasPrefix(string(list), "file '"))
	assert.Contains(t, r.last(), "concat")

	assert.Error(t, newTestExecutor(r).Concat(context.Background(), nil, out))
}

func TestConcatListResolvesFromListDirectory(t *testing.T) {
	t.Chdir(t.TempDir())
	inputs := []string{
		filepath.Join("assets", "branding", "intro", "intro.mp4"),
		filepath.Join("output", "session", "video", "synced_01.mp4"),
	}
	for _, in := range inputs {
		require.NoError(t, os.MkdirAll(filepath.Dir(in), 0o755))
		require.NoError(t, os.WriteFile(in, []byte("clip"), 0o644))
	}
	finalDir := filepath.Join("output", "session", "final")
	require.NoError(t, os.MkdirAll(finalDir, 0o755))

	out := filepath.Join(finalDir, "final_video.mp4")
	require.NoError(t, newTestExecutor(&fakeRunner{}).Concat(context.Background(), inputs, out))

	list, err := os.ReadFile(filepath.Join(finalDir, "concat_list.txt"))
	require.NoError(t, err)
	entries := strings.Split(strings.TrimSpace(string(list)), "\n")
	require.Len(t, entries, len(inputs))
	for _, line := range entries {
		entry := strings.TrimSuffix(strings.TrimPrefix(line, "file '"), "'")
		resolved := filepath.FromSlash(entry)
		if !filepath.IsAbs(resolved) {
			resolved = filepath.Join(finalDir, resolved)
		}
		assert.FileExists(t, resolved)
	}
}

func TestProberDuration(t *testing.T) {
	r := &fakeRunner{durations: map[string]float64{"a.wav": 4.0}}
	prober := &LocalProber{Runner: r}
	d, err := prober.Duration(context.Background(), "a.wav")
	require.NoError(t, err)
	assert.InDelta(t, 4.0, d, 1e-9)

	_, err = prober.Probe(context.Background(), "a.wav")
	assert.ErrorIs(t, err, ErrNoVideoStreams)

	_, err = prober.Duration(context.Background(), "missing.wav")
	var cmdErr *CommandError
	assert.ErrorAs(t, err, &cmdErr)
}
