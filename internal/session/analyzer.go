// Package session reduces the cycles of one recording session into
// per-angle statistics and pass/fail fit recommendations, and hosts the
// Recorder that drives a session from calibration through analysis.
package session

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/velosense/bikefit/internal/config"
	"github.com/velosense/bikefit/internal/cycles"
)

// ErrNoCycles is returned when analysis is requested for a session with no
// usable cycles (empty input, or everything trimmed away as dismount
// artifact). Distinct from an empty-but-successful report.
var ErrNoCycles = errors.New("session has no usable cycles")

// Status is the classification tier for one angle channel.
type Status string

const (
	StatusGreen  Status = "green"  // mean within target range
	StatusYellow Status = "yellow" // mean outside target by 10° or less
	StatusRed    Status = "red"    // mean outside target by more than 10°
)

// redThresholdDeg is the deviation beyond the target range at which a
// channel escalates from yellow to red.
const redThresholdDeg = 10.0

// Channel names, also used as column keys in the store and the API.
const (
	ChannelKnee  = "knee"
	ChannelHip   = "hip"
	ChannelTorso = "torso"
	ChannelElbow = "elbow"
)

// Threshold is the per-angle target configuration. Min and Max bound the
// acceptable session mean; the three texts are the suggestions reported for
// a mean below, above, or inside the range.
type Threshold struct {
	Name     string  `json:"name"`
	Category string  `json:"category"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	LowText  string  `json:"low_text"`
	HighText string  `json:"high_text"`
	GoodText string  `json:"good_text"`
}

// Validate checks the Min < Max invariant.
func (t Threshold) Validate() error {
	if t.Min >= t.Max {
		return fmt.Errorf("threshold %s: min %.1f must be below max %.1f", t.Name, t.Min, t.Max)
	}
	return nil
}

// Thresholds groups the four channel targets for one analysis run. Target
// ranges are runtime-mutable configuration threaded in explicitly, never
// package-level state, so sessions stay independently testable.
type Thresholds struct {
	Knee  Threshold `json:"knee"`
	Hip   Threshold `json:"hip"`
	Torso Threshold `json:"torso"`
	Elbow Threshold `json:"elbow"`
}

// Validate checks every channel's range invariant.
func (t Thresholds) Validate() error {
	for _, th := range []Threshold{t.Knee, t.Hip, t.Torso, t.Elbow} {
		if err := th.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ThresholdsFromTuning builds the channel targets from the tuning config,
// keeping the suggestion texts fixed and the ranges configurable.
func ThresholdsFromTuning(cfg *config.TuningConfig) Thresholds {
	return Thresholds{
		Knee: Threshold{
			Name:     ChannelKnee,
			Category: "saddle",
			Min:      cfg.GetKneeTargetMin(),
			Max:      cfg.GetKneeTargetMax(),
			LowText:  "Knee stays bent at the bottom of the stroke; the saddle is likely too low. Raise it in small steps.",
			HighText: "Knee is over-extending at the bottom of the stroke; the saddle is likely too high. Lower it slightly.",
			GoodText: "Knee extension is in the ideal range.",
		},
		Hip: Threshold{
			Name:     ChannelHip,
			Category: "saddle",
			Min:      cfg.GetHipTargetMin(),
			Max:      cfg.GetHipTargetMax(),
			LowText:  "Hip angle closes too much over the top of the stroke; try moving the saddle back or raising the handlebars.",
			HighText: "Hip angle stays very open; the position may be too relaxed. Consider a longer or lower reach.",
			GoodText: "Hip angle is in the ideal range.",
		},
		Torso: Threshold{
			Name:     ChannelTorso,
			Category: "cockpit",
			Min:      cfg.GetTorsoTargetMin(),
			Max:      cfg.GetTorsoTargetMax(),
			LowText:  "Torso is very flat, an aggressive position that strains the lower back. Raise the handlebars.",
			HighText: "Torso is very upright; you lose aerodynamics and pedaling power. Lower the handlebars or extend the reach.",
			GoodText: "Torso angle is in the ideal range.",
		},
		Elbow: Threshold{
			Name:     ChannelElbow,
			Category: "cockpit",
			Min:      cfg.GetElbowTargetMin(),
			Max:      cfg.GetElbowTargetMax(),
			LowText:  "Elbows are deeply bent; the reach may be too short or you are crowding the bars. Check stem length.",
			HighText: "Arms are nearly locked out; keep a slight elbow bend to absorb road shock. The reach may be too long.",
			GoodText: "Elbow bend is in the ideal range.",
		},
	}
}

// DefaultThresholds returns the built-in channel targets.
func DefaultThresholds() Thresholds {
	return ThresholdsFromTuning(config.EmptyTuningConfig())
}

// AngleStats is the statistical reduction of one channel across a session.
// All values are rounded to one decimal place.
type AngleStats struct {
	Avg float64 `json:"avg"`
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Std float64 `json:"std"` // population standard deviation
}

// ChannelResult is the analysis outcome for one angle channel.
type ChannelResult struct {
	Channel string `json:"channel"`
	AngleStats
	TargetMin  float64 `json:"target_min"`
	TargetMax  float64 `json:"target_max"`
	Status     Status  `json:"status"`
	Suggestion string  `json:"suggestion"`
}

// Report is the full session analysis: one result per channel plus session
// level aggregates.
type Report struct {
	Cycles        int             `json:"cycles"`
	DurationMs    int64           `json:"duration_ms"`
	CadenceAvgRPM float64         `json:"cadence_avg_rpm"`
	Results       []ChannelResult `json:"results"`
}

// DefaultTrimWindowMs is the trailing window treated as dismount artifact.
const DefaultTrimWindowMs = 5000

// TrimCycles drops cycles whose timestamp falls within the trailing
// trimWindowMs of the session span (motion artifacts from dismounting).
// Sessions of at most one cycle or spanning no more than the window are
// returned unchanged. The operation is timestamp-based, so it is idempotent
// and independent of cycle count.
func TrimCycles(list []cycles.CycleSummary, trimWindowMs int64) []cycles.CycleSummary {
	if len(list) <= 1 {
		return list
	}
	span := list[len(list)-1].TimestampMs - list[0].TimestampMs
	if span <= trimWindowMs {
		return list
	}
	cutoff := list[len(list)-1].TimestampMs - trimWindowMs
	trimmed := make([]cycles.CycleSummary, 0, len(list))
	for _, c := range list {
		if c.TimestampMs < cutoff {
			trimmed = append(trimmed, c)
		}
	}
	return trimmed
}

// Analyze trims the dismount artifact from the cycle list, reduces each
// angle channel to summary statistics, and classifies the channel means
// against the given targets. Returns ErrNoCycles if no cycles survive.
//
// Classification uses only the session mean: a channel with a mean in range
// is green regardless of spread, even though the standard deviation is
// computed and reported.
func Analyze(list []cycles.CycleSummary, targets Thresholds, trimWindowMs int64) (*Report, error) {
	if err := targets.Validate(); err != nil {
		return nil, err
	}

	trimmed := TrimCycles(list, trimWindowMs)
	if len(trimmed) == 0 {
		return nil, ErrNoCycles
	}

	knee := make([]float64, len(trimmed))
	hip := make([]float64, len(trimmed))
	torso := make([]float64, len(trimmed))
	elbow := make([]float64, len(trimmed))
	var cadenceSum float64
	for i, c := range trimmed {
		knee[i] = c.KneeMax
		hip[i] = c.HipMin
		torso[i] = c.TorsoAvg
		elbow[i] = c.ElbowAvg
		cadenceSum += float64(c.CadenceRPM)
	}

	report := &Report{
		Cycles:        len(trimmed),
		DurationMs:    trimmed[len(trimmed)-1].TimestampMs - trimmed[0].TimestampMs,
		CadenceAvgRPM: round1(cadenceSum / float64(len(trimmed))),
		Results: []ChannelResult{
			classify(knee, targets.Knee),
			classify(hip, targets.Hip),
			classify(torso, targets.Torso),
			classify(elbow, targets.Elbow),
		},
	}
	return report, nil
}

func classify(values []float64, target Threshold) ChannelResult {
	mean := stat.Mean(values, nil)

	result := ChannelResult{
		Channel: target.Name,
		AngleStats: AngleStats{
			Avg: round1(mean),
			Min: round1(floats.Min(values)),
			Max: round1(floats.Max(values)),
			Std: round1(stat.PopStdDev(values, nil)),
		},
		TargetMin: target.Min,
		TargetMax: target.Max,
	}

	switch {
	case mean < target.Min:
		result.Status = severity(target.Min - mean)
		result.Suggestion = target.LowText
	case mean > target.Max:
		result.Status = severity(mean - target.Max)
		result.Suggestion = target.HighText
	default:
		result.Status = StatusGreen
		result.Suggestion = target.GoodText
	}
	return result
}

func severity(deficitDeg float64) Status {
	if deficitDeg > redThresholdDeg {
		return StatusRed
	}
	return StatusYellow
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
