package ffmpeg

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Built-in preset names.
const (
	PresetSegmentMerge   = "segment-merge"
	PresetSegmentMergeHQ = "segment-merge-hq"
)

// Preset holds the audio settings applied when a segment clip is muxed
// with its narration. Video is always stream-copied.
type Preset struct {
	Name         string
	AudioCodec   string
	AudioBitrate string
	SampleRate   int
	Channels     int
	ExtraArgs    []string
}

// Args returns the ffmpeg arguments encoded by the preset, excluding the
// codec selection itself.
func (p Preset) Args() []string {
	args := make([]string, 0, 6+len(p.ExtraArgs))
	if p.AudioBitrate != "" {
		args = append(args, "-b:a", p.AudioBitrate)
	}
	if p.SampleRate > 0 {
		args = append(args, "-ar", strconv.Itoa(p.SampleRate))
	}
	if p.Channels > 0 {
		args = append(args, "-ac", strconv.Itoa(p.Channels))
	}
	return append(args, p.ExtraArgs...)
}

// PresetLibrary is a named set of presets.
type PresetLibrary struct {
	presets map[string]Preset
}

// NewPresetLibrary copies m; each preset's Name is set from its key.
func NewPresetLibrary(m map[string]Preset) *PresetLibrary {
	cp := make(map[string]Preset, len(m))
	for k, v := range m {
		v.Name = k
		cp[k] = v
	}
	return &PresetLibrary{presets: cp}
}

// DefaultPresets are always available; a preset file may override them.
func DefaultPresets() *PresetLibrary {
	return NewPresetLibrary(map[string]Preset{
		PresetSegmentMerge:   {AudioCodec: "aac", AudioBitrate: "192k"},
		PresetSegmentMergeHQ: {AudioCodec: "aac", AudioBitrate: "320k", SampleRate: 48000, Channels: 2},
	})
}

// Get retrieves a preset by name.
func (l *PresetLibrary) Get(name string) (Preset, bool) {
	if l == nil {
		return Preset{}, false
	}
	preset, ok := l.presets[name]
	return preset, ok
}

// Names lists presets in sorted order.
func (l *PresetLibrary) Names() []string {
	if l == nil {
		return nil
	}
	names := make([]string, 0, len(l.presets))
	for name := range l.presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Merge returns a library with other's presets layered over l's.
func (l *PresetLibrary) Merge(other *PresetLibrary) *PresetLibrary {
	out := make(map[string]Preset)
	for _, lib := range []*PresetLibrary{l, other} {
		if lib == nil {
			continue
		}
		for name, p := range lib.presets {
			out[name] = p
		}
	}
	return NewPresetLibrary(out)
}

// LoadPresetFile reads presets from a YAML file:
//
//	presets:
//	  segment-merge:
//	    audio_codec: aac
//	    audio_bitrate: 192k
func LoadPresetFile(path string) (*PresetLibrary, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("load preset file: %w", err)
	}
	type rawPreset struct {
		AudioCodec   string   `yaml:"audio_codec"`
		AudioBitrate string   `yaml:"audio_bitrate"`
		SampleRate   int      `yaml:"sample_rate"`
		Channels     int      `yaml:"channels"`
		ExtraArgs    []string `yaml:"extra_args"`
	}
	var payload struct {
		Presets map[string]rawPreset `yaml:"presets"`
	}
	if err := yaml.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("parse preset file: %w", err)
	}
	presets := make(map[string]Preset, len(payload.Presets))
	for name, rp := range payload.Presets {
		if rp.AudioCodec == "" {
			return nil, fmt.Errorf("preset %q: audio_codec is required", name)
		}
		presets[name] = Preset{
			AudioCodec:   rp.AudioCodec,
			AudioBitrate: rp.AudioBitrate,
			SampleRate:   rp.SampleRate,
			Channels:     rp.Channels,
			ExtraArgs:    append([]string(nil), rp.ExtraArgs...),
		}
	}
	return NewPresetLibrary(presets), nil
}
