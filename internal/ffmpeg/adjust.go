package ffmpeg

import (
	"math"
	"strconv"
)

// AdjustMethod is how a clip's length is reconciled with its audio.
type AdjustMethod string

const (
	AdjustNone   AdjustMethod = "none"
	AdjustRetime AdjustMethod = "retime"
	AdjustTrim   AdjustMethod = "trim"
	AdjustLoop   AdjustMethod = "loop"
)

// Reconciliation thresholds.
const (
	DurationTolerance = 0.5
	MinSpeedFactor    = 0.8
	MaxSpeedFactor    = 1.2
)

// AdjustPlan describes the ffmpeg invocation that brings a clip of
// Current seconds to Target seconds.
type AdjustPlan struct {
	Method  AdjustMethod `json:"method"`
	Current float64      `json:"current"`
	Target  float64      `json:"target"`
	// Speed is Current/Target; values above 1 mean the clip plays faster.
	Speed float64 `json:"speed,omitempty"`
	Loops int     `json:"loops,omitempty"`
}

// PlanAdjustment picks the reconciliation method. A clip within half a
// second of target is left alone; a mild speed change re-times playback;
// otherwise the clip is trimmed, or looped and trimmed.
func PlanAdjustment(current, target float64) AdjustPlan {
	plan := AdjustPlan{Method: AdjustNone, Current: current, Target: target}
	if current <= 0 || target <= 0 || math.Abs(current-target) < DurationTolerance {
		return plan
	}
	plan.Speed = current / target
	switch {
	case plan.Speed >= MinSpeedFactor && plan.Speed <= MaxSpeedFactor:
		plan.Method = AdjustRetime
	case current > target:
		plan.Method = AdjustTrim
	default:
		plan.Method = AdjustLoop
		plan.Loops = int(target/current) + 1
	}
	return plan
}

// Duration is the length the adjusted clip will have.
func (p AdjustPlan) Duration() float64 {
	if p.Method == AdjustNone {
		return p.Current
	}
	return p.Target
}

// Args builds the ffmpeg arguments for the plan; nil for AdjustNone.
func (p AdjustPlan) Args(input, output string) []string {
	target := formatSeconds(p.Target)
	switch p.Method {
	case AdjustRetime:
		// setpts scales presentation timestamps, so the multiplier is the
		// ratio of new length to old.
		factor := strconv.FormatFloat(p.Target/p.Current, 'f', 6, 64)
		return []string{"-i", input, "-filter:v", "setpts=" + factor + "*PTS", "-an", "-t", target, "-y", output}
	case AdjustTrim:
		return []string{"-i", input, "-t", target, "-c", "copy", "-y", output}
	case AdjustLoop:
		return []string{"-stream_loop", strconv.Itoa(p.Loops), "-i", input, "-t", target, "-c", "copy", "-y", output}
	}
	return nil
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 3, 64)
}
