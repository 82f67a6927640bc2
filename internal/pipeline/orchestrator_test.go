package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mathviz/internal/avsync"
	"mathviz/internal/capability"
	"mathviz/internal/config"
	mverrors "mathviz/internal/errors"
	"mathviz/internal/ffmpeg"
	"mathviz/internal/llm"
	"mathviz/internal/narration"
	"mathviz/internal/outcome"
	"mathviz/internal/output"
	"mathviz/internal/render"
	"mathviz/internal/scene"
	"mathviz/internal/session"
	"mathviz/internal/tts"
)

// fakeRenderer writes an empty clip per scene class with a fixed length.
type fakeRenderer struct {
	seconds  float64
	verified []string
	media    *fakeMedia
}

func (r *fakeRenderer) Verify(_ context.Context, _ string, class string) error {
	r.verified = append(r.verified, class)
	return nil
}

func (r *fakeRenderer) RenderTextSlide(_ context.Context, _ string, duration float64, index int, dir string) (string, error) {
	path := filepath.Join(dir, render.TextSlideClass(index)+".mp4")
	r.media.durations[path] = duration
	return path, touch(path)
}

func (r *fakeRenderer) RenderProgram(_ context.Context, programPath, mediaRoot string) outcome.Result[[]render.Clip] {
	source, err := os.ReadFile(programPath)
	if err != nil {
		return outcome.Fatal[[]render.Clip](err)
	}
	var clips []render.Clip
	for i, class := range scene.SceneClasses(string(source)) {
		path := filepath.Join(mediaRoot, class+".mp4")
		if err := touch(path); err != nil {
			return outcome.Fatal[[]render.Clip](err)
		}
		r.media.durations[path] = r.seconds
		clips = append(clips, render.Clip{Index: i + 1, Scene: class, Path: path, Duration: r.seconds})
	}
	return outcome.Ok(clips)
}

func (r *fakeRenderer) Quality() string { return "l" }

// fakeMedia plans adjustments from recorded lengths and writes empty files
// for every merge and concat.
type fakeMedia struct {
	durations map[string]float64
	merges    int
	concat    []string
}

func (m *fakeMedia) Adjust(_ context.Context, input string, target float64, output string) ffmpeg.AdjustResult {
	current := m.durations[input]
	plan := ffmpeg.PlanAdjustment(current, target)
	if plan.Method == ffmpeg.AdjustNone {
		return ffmpeg.AdjustResult{Path: input, Plan: plan, Duration: current}
	}
	m.durations[output] = plan.Duration()
	return ffmpeg.AdjustResult{Path: output, Plan: plan, Duration: plan.Duration()}
}

func (m *fakeMedia) Merge(_ context.Context, _, _, output string) error {
	m.merges++
	return touch(output)
}

func (m *fakeMedia) Concat(_ context.Context, inputs []string, output string) error {
	m.concat = inputs
	return touch(output)
}

func touch(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, nil, 0o644)
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		OutputDir: t.TempDir(),
		LLM:       config.LLMConfig{Provider: "mock", Model: "mock"},
		Solve:     config.SolveConfig{MaxRetries: 2},
		Scene:     config.SceneConfig{MaxRetries: 2, QAEnabled: true, DryRunVerify: true},
		TTS:       config.TTSConfig{SampleRate: 8000},
	}
}

type harness struct {
	deps     Deps
	client   *llm.MockClient
	renderer *fakeRenderer
	media    *fakeMedia
	out      *bytes.Buffer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	media := &fakeMedia{durations: map[string]float64{}}
	renderer := &fakeRenderer{seconds: 4.4, media: media}
	client := llm.NewMockClient("mock-model")
	out := &bytes.Buffer{}
	return &harness{
		client:   client,
		renderer: renderer,
		media:    media,
		out:      out,
		deps: Deps{
			Config:    testConfig(t),
			Generator: llm.NewGenerator(client, llm.GeneratorOptions{}),
			Speech:    capability.Ready[tts.Provider](tts.SilentProvider{SampleRate: 8000}),
			Renderer:  capability.Ready[Renderer](renderer),
			Media:     capability.Ready[avsync.Media](media),
			Retriever: capability.Unavailable[scene.ContextRetriever]("rag disabled"),
			Checker:   scene.HeuristicChecker{},
			Printer:   output.New(out),
			Now:       func() time.Time { return time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC) },
		},
	}
}

func readMetadata(t *testing.T, store *session.Store) RunMetadata {
	t.Helper()
	data, err := os.ReadFile(store.Path("", session.Metadata))
	require.NoError(t, err)
	var meta RunMetadata
	require.NoError(t, json.Unmarshal(data, &meta))
	return meta
}

func TestRunProducesFinalVideoAndCleansUp(t *testing.T) {
	h := newHarness(t)
	orch, err := New(h.deps)
	require.NoError(t, err)

	res, err := orch.Run(context.Background(), "What is the sum of the first 100 integers?")
	require.NoError(t, err)

	for _, phase := range []string{PhaseSolve, PhaseNarrate, PhaseSynthesize, PhaseScenes, PhaseRender, PhaseSync} {
		assert.True(t, res.Produced(phase), phase)
	}
	assert.True(t, res.Solution.Approved())
	require.Len(t, res.Script.Segments(), 2)
	require.Len(t, res.Audio, 2)
	assert.Len(t, res.Scenes.Accepted(), 2)
	assert.Equal(t, []string{"Scene1", "Scene2"}, h.renderer.verified)
	require.Len(t, res.Clips, 2)

	require.NotNil(t, res.Sync)
	assert.Equal(t, 2, h.media.merges)
	assert.Len(t, h.media.concat, 2)
	var total float64
	for i, seg := range res.Sync.Segments {
		assert.Equal(t, i+1, seg.Index)
		assert.InDelta(t, res.Audio[i].Duration, seg.Duration, 1e-9)
		total += res.Audio[i].Duration
	}
	assert.InDelta(t, total, res.Sync.Duration, 1e-9)

	store := res.Session
	assert.Equal(t, store.Path(session.DirFinal, session.FinalVideo), res.FinalVideo)
	assert.FileExists(t, res.FinalVideo)
	assert.NotEmpty(t, res.Removed)
	assert.NoDirExists(t, store.Dir(session.DirSolver))
	assert.NoDirExists(t, store.Dir(session.DirVideo))
	assert.FileExists(t, store.Path("", session.OriginalQuery))

	meta := readMetadata(t, store)
	assert.Equal(t, "completed", meta.Status)
	assert.Equal(t, res.RunID, meta.RunID)
	assert.Equal(t, "mock-model", meta.Model)
	assert.Equal(t, 2, meta.Segments)
	assert.Equal(t, 2, meta.Scenes)
	assert.Len(t, meta.Phases, 6)
	require.NotNil(t, meta.Solve)
	assert.Equal(t, 1, meta.Solve.Attempts)

	assert.Contains(t, h.out.String(), "Run summary")
	assert.Contains(t, h.out.String(), "[6/6] "+PhaseSync)
}

func TestRunKeepsArtifactsInDebugMode(t *testing.T) {
	h := newHarness(t)
	h.deps.Config.Debug = true
	orch, err := New(h.deps)
	require.NoError(t, err)

	res, err := orch.Run(context.Background(), "Prove that sqrt(2) is irrational")
	require.NoError(t, err)

	store := res.Session
	assert.Empty(t, res.Removed)
	assert.FileExists(t, store.Path(session.DirSolver, session.SolutionFinal))
	assert.FileExists(t, store.Path(session.DirScript, session.Segments))
	assert.FileExists(t, store.Path(session.DirAudio, session.AudioMetadata))
	assert.FileExists(t, store.Path(session.DirAudio, session.PhraseTimings))
	assert.FileExists(t, store.Path(session.DirVideo, session.ManimScript))
	assert.FileExists(t, store.Path(session.DirVideo, session.RenderingInstructions))
	assert.FileExists(t, store.Path(session.DirVideo, session.RenderingMetadata))
	assert.FileExists(t, store.Path(session.DirVideo, session.SyncMetadata))
}

func TestRunDegradesWithoutExternalTools(t *testing.T) {
	h := newHarness(t)
	h.deps.Speech = capability.Unavailable[tts.Provider]("tts disabled")
	h.deps.Renderer = capability.Unavailable[Renderer]("manim not found on PATH")
	h.deps.Media = capability.Unavailable[avsync.Media]("ffmpeg not found on PATH")
	orch, err := New(h.deps)
	require.NoError(t, err)

	res, err := orch.Run(context.Background(), "Integrate x^2 from 0 to 1")
	require.NoError(t, err)

	assert.True(t, res.Produced(PhaseSolve))
	assert.True(t, res.Produced(PhaseNarrate))
	assert.False(t, res.Produced(PhaseSynthesize))
	assert.True(t, res.Produced(PhaseScenes))
	assert.False(t, res.Produced(PhaseRender))
	assert.False(t, res.Produced(PhaseSync))
	assert.Empty(t, res.FinalVideo)
	assert.Len(t, res.NextSteps, 2)

	store := res.Session
	assert.Empty(t, res.Removed)
	assert.FileExists(t, store.Path(session.DirVideo, session.RenderingInstructions))
	assert.False(t, store.Exists(session.DirFinal, session.FinalVideo))
	assert.Equal(t, "completed", readMetadata(t, store).Status)

	caps := orch.Capabilities()
	require.Len(t, caps, 4)
	for _, c := range caps {
		assert.False(t, c.Ready, c.Name)
	}
}

type brokenRenderer struct{ *fakeRenderer }

func (brokenRenderer) RenderProgram(context.Context, string, string) outcome.Result[[]render.Clip] {
	return outcome.Fatal[[]render.Clip](errors.New("manim exited 1: LaTeX Error"))
}

func TestRunRecordsDegradedRender(t *testing.T) {
	h := newHarness(t)
	h.deps.Renderer = capability.Ready[Renderer](brokenRenderer{h.renderer})
	orch, err := New(h.deps)
	require.NoError(t, err)

	res, err := orch.Run(context.Background(), "Differentiate sin(x)cos(x)")
	require.NoError(t, err)

	assert.False(t, res.Produced(PhaseRender))
	var rec PhaseRecord
	for _, p := range res.Phases {
		if p.Name == PhaseRender {
			rec = p
		}
	}
	assert.Contains(t, rec.Detail, "LaTeX Error")
	require.NotEmpty(t, res.NextSteps)
	assert.Contains(t, res.NextSteps[0], "Render manually")
	assert.Len(t, res.Phases, 6)
}

func TestRunAbortsOnGenerationError(t *testing.T) {
	h := newHarness(t)
	h.client.ThenError(errors.New("connection refused"))
	orch, err := New(h.deps)
	require.NoError(t, err)

	res, err := orch.Run(context.Background(), "Factor 91")
	require.Error(t, err)
	assert.Contains(t, err.Error(), PhaseSolve)
	require.NotNil(t, res)
	require.Len(t, res.Phases, 1)
	assert.False(t, res.Phases[0].Produced)

	meta := readMetadata(t, res.Session)
	assert.Equal(t, "failed", meta.Status)
	assert.Contains(t, meta.Error, "connection refused")
	assert.FileExists(t, res.Session.Path("", session.OriginalQuery))
}

func TestRunRejectsEmptyQuery(t *testing.T) {
	orch, err := New(newHarness(t).deps)
	require.NoError(t, err)
	_, err = orch.Run(context.Background(), "   ")
	require.Error(t, err)
}

func TestNewRequiresGenerator(t *testing.T) {
	_, err := New(Deps{})
	require.Error(t, err)
}

func TestSceneRequestsEstimateMissingAudio(t *testing.T) {
	orch, err := New(newHarness(t).deps)
	require.NoError(t, err)

	segments := []narration.Segment{
		{Number: 1, Audio: "one two three four five"},
		{Number: 2, Audio: "six seven eight nine ten"},
		{Number: 3},
	}
	audios := []tts.SegmentAudio{{Number: 1, Duration: 3.5}}

	reqs := orch.sceneRequests(segments, audios)
	require.Len(t, reqs, 3)
	assert.InDelta(t, 3.5, reqs[0].Duration, 1e-9)
	assert.InDelta(t, 2.0, reqs[1].Duration, 1e-9)
	require.NotEmpty(t, reqs[1].Phrases)
	assert.InDelta(t, 2.0, reqs[1].Phrases[len(reqs[1].Phrases)-1].End, 1e-9)
	assert.Zero(t, reqs[2].Duration)
	assert.Empty(t, reqs[2].Phrases)
}

func TestDegradeSeparatesEmptyFromFatal(t *testing.T) {
	skip, err := degrade(outcome.Empty[[]render.Clip]("manim not installed"), "install manim")
	require.NoError(t, err)
	assert.False(t, skip.produced)
	assert.Equal(t, "manim not installed", skip.detail)
	assert.Equal(t, "install manim", skip.nextStep)

	skip, err = degrade(outcome.Fatal[avsync.Report](errors.New("concat failed")), "install ffmpeg")
	require.Error(t, err)
	assert.True(t, mverrors.IsDegraded(err))
	assert.ErrorContains(t, err, "concat failed")
	assert.Equal(t, "install ffmpeg", skip.nextStep)
}
