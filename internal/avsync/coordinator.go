// Package avsync pairs rendered clips with narration audio, reconciles their
// lengths, muxes each pair and concatenates the result into one video.
package avsync

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"mathviz/internal/capability"
	"mathviz/internal/config"
	"mathviz/internal/ffmpeg"
	"mathviz/internal/logging"
	"mathviz/internal/observability"
	"mathviz/internal/outcome"
	"mathviz/internal/render"
	"mathviz/internal/session"
	"mathviz/internal/tts"
)

// Media is the subset of ffmpeg work the coordinator needs.
type Media interface {
	Adjust(ctx context.Context, input string, target float64, output string) ffmpeg.AdjustResult
	Merge(ctx context.Context, video, audio, output string) error
	Concat(ctx context.Context, inputs []string, output string) error
}

// SlideRenderer produces a placeholder clip for audio that has no scene.
type SlideRenderer interface {
	RenderTextSlide(ctx context.Context, text string, duration float64, index int, dir string) (string, error)
}

var (
	_ Media         = (*ffmpeg.Executor)(nil)
	_ SlideRenderer = (*render.Renderer)(nil)
)

// Segment is one audio/video pairing after merge.
type Segment struct {
	Index       int                 `json:"index"`
	AudioFile   string              `json:"audio_file,omitempty"`
	VideoFile   string              `json:"video_file"`
	Placeholder bool                `json:"placeholder,omitempty"`
	MergedPath  string              `json:"merged_output_path"`
	Duration    float64             `json:"duration"`
	Adjustment  ffmpeg.AdjustMethod `json:"adjustment"`
	AdjustError string              `json:"adjust_error,omitempty"`
}

// Bookend is an intro or outro clip found on disk.
type Bookend struct {
	Path     string  `json:"path"`
	Duration float64 `json:"nominal_duration"`
}

// Report is what sync_metadata.json records.
type Report struct {
	Segments []Segment `json:"segments"`
	Intro    *Bookend  `json:"intro,omitempty"`
	Outro    *Bookend  `json:"outro,omitempty"`
	Final    string    `json:"final_video,omitempty"`
	Duration float64   `json:"total_duration"`
	// Dropped lists segments whose merge failed.
	Dropped []int `json:"dropped,omitempty"`
}

// Options configures a Coordinator.
type Options struct {
	Branding config.BrandingConfig
	Metrics  *observability.MetricsCollector
	Logger   logging.Logger
}

// Coordinator runs the sync and concatenation phases.
type Coordinator struct {
	media  capability.Capability[Media]
	slides capability.Capability[SlideRenderer]
	opts   Options
	logger logging.Logger
}

func NewCoordinator(media capability.Capability[Media], slides capability.Capability[SlideRenderer], opts Options) *Coordinator {
	return &Coordinator{media: media, slides: slides, opts: opts, logger: logging.Component(opts.Logger, "avsync")}
}

// Run syncs clips with audio under the session's video directory, then
// concatenates them into final/final_video.mp4. It degrades to Empty when
// ffmpeg is unavailable or nothing could be assembled.
func (c *Coordinator) Run(ctx context.Context, audios []tts.SegmentAudio, clips []render.Clip, store *session.Store) outcome.Result[Report] {
	if _, ok := c.media.Get(); !ok {
		return outcome.Emptyf[Report]("ffmpeg unavailable: %s", c.media.Reason())
	}
	dir, err := store.EnsureDir(session.DirVideo, session.SyncedDir)
	if err != nil {
		return outcome.Fatal[Report](err)
	}

	synced := c.Sync(ctx, audios, clips, dir)
	if synced.IsEmpty() {
		return outcome.Empty[Report](synced.Reason())
	}
	segments, err := synced.Unwrap()
	if err != nil {
		return outcome.Fatal[Report](err)
	}

	report := Report{Segments: segments}
	for _, s := range segments {
		if s.MergedPath == "" {
			report.Dropped = append(report.Dropped, s.Index)
		}
	}

	final := store.Path(session.DirFinal, session.FinalVideo)
	if err := c.Concat(ctx, &report, final); err != nil {
		c.logger.Warn("concatenation failed: %v", err)
		if _, saveErr := store.SaveJSON(session.DirVideo, session.SyncMetadata, report); saveErr != nil {
			return outcome.Fatal[Report](saveErr)
		}
		return outcome.Emptyf[Report]("concatenation failed: %v", err)
	}
	if _, err := store.SaveJSON(session.DirVideo, session.SyncMetadata, report); err != nil {
		return outcome.Fatal[Report](err)
	}
	return outcome.Ok(report)
}

type pairing struct {
	index     int
	clip      string
	clipText  string
	audio     *tts.SegmentAudio
	needSlide bool
}

// pair matches clips to audio by position. Clips beyond the last audio reuse
// it; audio without a clip is marked for a text slide. With no audio at all
// every clip stands alone.
func pair(audios []tts.SegmentAudio, clips []render.Clip) []pairing {
	n := max(len(audios), len(clips))
	out := make([]pairing, 0, n)
	for i := 0; i < n; i++ {
		p := pairing{index: i + 1}
		if len(audios) > 0 {
			a := audios[min(i, len(audios)-1)]
			p.audio = &a
			p.index = a.Number
			if i >= len(audios) {
				p.index = audios[len(audios)-1].Number + i - len(audios) + 1
			}
		}
		if i < len(clips) {
			p.clip = clips[i].Path
		} else {
			p.needSlide = true
			p.clipText = p.audio.Text
		}
		out = append(out, p)
	}
	return out
}

// Sync reconciles and merges every pairing into dir. Per-segment failures
// keep the segment in the result with an empty MergedPath.
func (c *Coordinator) Sync(ctx context.Context, audios []tts.SegmentAudio, clips []render.Clip, dir string) outcome.Result[[]Segment] {
	media, ok := c.media.Get()
	if !ok {
		return outcome.Emptyf[[]Segment]("ffmpeg unavailable: %s", c.media.Reason())
	}
	if len(audios) == 0 && len(clips) == 0 {
		return outcome.Empty[[]Segment]("nothing to sync")
	}

	var segments []Segment
	merged := 0
	for _, p := range pair(audios, clips) {
		if err := ctx.Err(); err != nil {
			return outcome.Fatal[[]Segment](err)
		}
		seg, err := c.syncOne(ctx, media, p, dir)
		if err != nil {
			c.logger.Warn("segment %d: %v", p.index, err)
		} else {
			merged++
		}
		segments = append(segments, seg)
	}
	if merged == 0 {
		return outcome.Empty[[]Segment]("no segment could be merged")
	}
	return outcome.Ok(segments)
}

func (c *Coordinator) syncOne(ctx context.Context, media Media, p pairing, dir string) (Segment, error) {
	seg := Segment{Index: p.index, VideoFile: p.clip, Adjustment: ffmpeg.AdjustNone}

	if p.needSlide {
		slides, ok := c.slides.Get()
		if !ok {
			return seg, fmt.Errorf("no clip and no text-slide renderer: %s", c.slides.Reason())
		}
		path, err := slides.RenderTextSlide(ctx, p.clipText, p.audio.Duration, p.index, filepath.Join(dir, "slides"))
		if err != nil {
			return seg, fmt.Errorf("text slide: %w", err)
		}
		seg.VideoFile, seg.Placeholder = path, true
	}

	if p.audio == nil {
		// Video-only run: the clip is the segment.
		seg.MergedPath = seg.VideoFile
		if d, ok := c.measure(ctx, media, seg.VideoFile); ok {
			seg.Duration = d
		}
		return seg, nil
	}
	seg.AudioFile = p.audio.AudioPath
	target := p.audio.Duration

	adjusted := media.Adjust(ctx, seg.VideoFile, target, filepath.Join(dir, fmt.Sprintf("adjusted_%02d.mp4", p.index)))
	seg.Adjustment = adjusted.Plan.Method
	if adjusted.Err != nil {
		seg.AdjustError = adjusted.Err.Error()
	}
	c.opts.Metrics.RecordSyncAdjustment(ctx, string(seg.Adjustment))

	out := filepath.Join(dir, fmt.Sprintf("synced_%02d.mp4", p.index))
	if err := media.Merge(ctx, adjusted.Path, seg.AudioFile, out); err != nil {
		return seg, fmt.Errorf("merge: %w", err)
	}
	seg.MergedPath = out
	seg.Duration = target
	if adjusted.Duration > 0 {
		// -shortest ends the merge at the shorter stream.
		seg.Duration = math.Min(adjusted.Duration, target)
	}
	return seg, nil
}

func (c *Coordinator) measure(ctx context.Context, media Media, path string) (float64, bool) {
	d, ok := media.(interface {
		Duration(ctx context.Context, path string) (float64, error)
	})
	if !ok {
		return 0, false
	}
	v, err := d.Duration(ctx, path)
	return v, err == nil
}

// Concat joins the merged segments, wrapped in any bookends present on
// disk, into output. It fills in report.Final and report.Duration.
func (c *Coordinator) Concat(ctx context.Context, report *Report, output string) error {
	media, ok := c.media.Get()
	if !ok {
		return errors.New(c.media.Reason())
	}
	report.Intro = bookend(c.opts.Branding.IntroPath, c.opts.Branding.IntroSeconds)
	report.Outro = bookend(c.opts.Branding.OutroPath, c.opts.Branding.OutroSeconds)

	var (
		inputs []string
		total  float64
	)
	if report.Intro != nil {
		inputs = append(inputs, report.Intro.Path)
		total += report.Intro.Duration
	}
	body := 0
	for _, s := range report.Segments {
		if s.MergedPath == "" {
			continue
		}
		inputs = append(inputs, s.MergedPath)
		total += s.Duration
		body++
	}
	if report.Outro != nil {
		inputs = append(inputs, report.Outro.Path)
		total += report.Outro.Duration
	}
	if body == 0 {
		return errors.New("no merged segments to concatenate")
	}

	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return err
	}
	if err := media.Concat(ctx, inputs, output); err != nil {
		return err
	}
	report.Final, report.Duration = output, total
	c.logger.Info("final video %s (%.1fs, %d segment(s))", output, total, body)
	return nil
}

func bookend(path string, nominal float64) *Bookend {
	if path == "" {
		return nil
	}
	if info, err := os.Stat(path); err != nil || info.IsDir() {
		return nil
	}
	return &Bookend{Path: path, Duration: nominal}
}
