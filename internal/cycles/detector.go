// Package cycles segments a noisy, continuous position signal into pedal
// stroke cycles.
//
// The detector consumes one timestamped sample per video frame (the vertical
// coordinate of the drive-side knee) plus an optional angle snapshot, finds
// periodic extrema in a time-bounded sliding window, validates each
// peak-to-peak period against a plausible cadence band, and emits one
// CycleSummary per accepted cycle through a registered listener. It also
// derives two predicates the recording session is driven by: Steady, which
// signals that recent periods are consistent enough to start recording, and
// Stopped, which signals that pedaling has ceased.
package cycles

import (
	"math"

	"github.com/velosense/bikefit/internal/config"
	"github.com/velosense/bikefit/internal/pose"
)

// Sample is one observation of the tracked position signal.
type Sample struct {
	TimestampMs int64
	Position    float64
}

// CycleSummary describes one completed, validated pedal stroke. Created at
// most once per accepted cycle and immutable afterwards.
type CycleSummary struct {
	Cycle       int     `json:"cycle"`        // monotonic, 1-based
	TimestampMs int64   `json:"timestamp_ms"` // timestamp of the defining peak
	CadenceRPM  int     `json:"cadence_rpm"`
	KneeMax     float64 `json:"knee_max"`
	HipMin      float64 `json:"hip_min"`
	TorsoAvg    float64 `json:"torso_avg"`
	ElbowAvg    float64 `json:"elbow_avg"`
}

// CycleListener receives each accepted cycle synchronously, at most once,
// during the AddSample call that completed it.
type CycleListener interface {
	OnCycle(summary CycleSummary)
}

// CycleListenerFunc adapts a plain function to the CycleListener interface.
type CycleListenerFunc func(summary CycleSummary)

// OnCycle implements CycleListener.
func (f CycleListenerFunc) OnCycle(summary CycleSummary) { f(summary) }

// DetectorConfig holds tuning parameters for the cycle detector.
type DetectorConfig struct {
	WindowMs          int64   // Sample window duration (ms)
	MinSamples        int     // Minimum buffered samples before detection runs
	CandidateLag      int     // Candidate offset behind the newest sample
	SmoothingRadius   int     // Moving-average half-width (radius 2 gives a 5-point average)
	NeighborSpan      int     // Samples compared either side of the candidate
	MinProminence     float64 // Minimum deviation from the window mean
	MinExtremumGapMs  int64   // Minimum spacing between accepted peaks (or troughs)
	CadenceMinRPM     float64 // Lower bound of the plausible cadence band
	CadenceMaxRPM     float64 // Upper bound of the plausible cadence band
	SteadyPeriods     int     // Recent periods feeding the steadiness predicate
	SteadyTolerance   float64 // Max relative period deviation for steady motion
	StopTimeoutMs     int64   // Silence after the last cycle that counts as stopped
	ExtremumHistoryMs int64   // Peak/trough retention horizon
}

// DefaultDetectorConfig returns the built-in tuning defaults. The lag and
// smoothing constants are tuned for a ~30fps frame source; a materially
// different frame rate needs rate-relative overrides via the tuning config.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfigFromTuning(config.EmptyTuningConfig())
}

// DetectorConfigFromTuning builds a DetectorConfig from a loaded TuningConfig.
func DetectorConfigFromTuning(cfg *config.TuningConfig) DetectorConfig {
	return DetectorConfig{
		WindowMs:          cfg.GetWindowMs(),
		MinSamples:        cfg.GetMinSamples(),
		CandidateLag:      cfg.GetCandidateLag(),
		SmoothingRadius:   cfg.GetSmoothingRadius(),
		NeighborSpan:      cfg.GetNeighborSpan(),
		MinProminence:     cfg.GetMinProminence(),
		MinExtremumGapMs:  cfg.GetMinExtremumGapMs(),
		CadenceMinRPM:     cfg.GetCadenceMinRPM(),
		CadenceMaxRPM:     cfg.GetCadenceMaxRPM(),
		SteadyPeriods:     cfg.GetSteadyPeriods(),
		SteadyTolerance:   cfg.GetSteadyTolerance(),
		StopTimeoutMs:     cfg.GetStopTimeoutMs(),
		ExtremumHistoryMs: cfg.GetExtremumHistoryMs(),
	}
}

// extremum is one accepted peak or trough.
type extremum struct {
	timestampMs int64
	value       float64 // smoothed position at detection time
}

// Detector is the cycle segmentation engine. It is single-threaded and
// exclusively owned by one recording session; time is supplied externally in
// monotonic milliseconds, so behaviour is fully deterministic.
type Detector struct {
	cfg      DetectorConfig
	listener CycleListener

	samples  []Sample
	peaks    []extremum
	troughs  []extremum
	angleBuf []pose.AngleSet

	cycleCount  int
	lastCycleMs int64
	hasCycle    bool
	steady      bool

	lastTimestampMs int64
}

// NewDetector returns a detector with the given tuning and no listener.
func NewDetector(cfg DetectorConfig) *Detector {
	return &Detector{cfg: cfg}
}

// RegisterListener sets the single cycle listener. Passing nil detaches it.
func (d *Detector) RegisterListener(l CycleListener) {
	d.listener = l
}

// Reset clears all buffers, counters and predicates back to the initial
// empty state. Any in-flight cycle accumulation is abandoned with no
// partial emission.
func (d *Detector) Reset() {
	d.samples = nil
	d.peaks = nil
	d.troughs = nil
	d.angleBuf = nil
	d.cycleCount = 0
	d.lastCycleMs = 0
	d.hasCycle = false
	d.steady = false
	d.lastTimestampMs = 0
}

// AddSample feeds one frame's position observation into the detector.
// Timestamps must be monotonically non-decreasing; samples that step
// backwards in time are dropped. If angles is non-nil it accumulates into
// the running per-cycle buffer used to summarize the eventual cycle.
func (d *Detector) AddSample(timestampMs int64, position float64, angles *pose.AngleSet) {
	if timestampMs < d.lastTimestampMs {
		return
	}
	d.lastTimestampMs = timestampMs

	d.samples = append(d.samples, Sample{TimestampMs: timestampMs, Position: position})
	d.evictSamples(timestampMs)

	if angles != nil {
		d.angleBuf = append(d.angleBuf, *angles)
	}

	d.detect()
}

// Steady reports whether the most recent periods are consistent enough to
// treat the motion as steady pedaling. Recomputed on every accepted cycle
// with no hysteresis, so it can toggle cycle to cycle.
func (d *Detector) Steady() bool {
	return d.steady
}

// Stopped reports whether pedaling has ceased: true iff at least one cycle
// has been recorded and more than the stop timeout has elapsed since it.
// Always false before the first cycle so calibration is never auto-stopped.
func (d *Detector) Stopped(timestampMs int64) bool {
	return d.hasCycle && timestampMs-d.lastCycleMs > d.cfg.StopTimeoutMs
}

// CycleCount returns the number of accepted cycles since the last reset.
func (d *Detector) CycleCount() int {
	return d.cycleCount
}

func (d *Detector) evictSamples(now int64) {
	cutoff := now - d.cfg.WindowMs
	i := 0
	for i < len(d.samples) && d.samples[i].TimestampMs < cutoff {
		i++
	}
	if i > 0 {
		d.samples = d.samples[i:]
	}
}

func evictExtrema(list []extremum, cutoff int64) []extremum {
	i := 0
	for i < len(list) && list[i].timestampMs < cutoff {
		i++
	}
	if i > 0 {
		return list[i:]
	}
	return list
}

// smoothed returns the moving average of the positions centred on index i,
// clamped to the buffer bounds near the edges.
func (d *Detector) smoothed(i int) float64 {
	lo := i - d.cfg.SmoothingRadius
	if lo < 0 {
		lo = 0
	}
	hi := i + d.cfg.SmoothingRadius
	if hi > len(d.samples)-1 {
		hi = len(d.samples) - 1
	}
	var sum float64
	for j := lo; j <= hi; j++ {
		sum += d.samples[j].Position
	}
	return sum / float64(hi-lo+1)
}

func (d *Detector) windowMean() float64 {
	var sum float64
	for _, s := range d.samples {
		sum += s.Position
	}
	return sum / float64(len(d.samples))
}

// detect evaluates the sample a fixed lag behind the newest one as an
// extremum candidate. Each sample is evaluated exactly once, on the
// insertion that places it at the candidate offset.
func (d *Detector) detect() {
	n := len(d.samples)
	if n < d.cfg.MinSamples {
		return
	}
	c := n - 1 - d.cfg.CandidateLag
	if c < 0 {
		return
	}

	sv := d.smoothed(c)
	isPeak, isTrough := true, true
	for off := -d.cfg.NeighborSpan; off <= d.cfg.NeighborSpan; off++ {
		if off == 0 {
			continue
		}
		j := c + off
		if j < 0 || j >= n {
			continue
		}
		nv := d.smoothed(j)
		if sv <= nv {
			isPeak = false
		}
		if sv >= nv {
			isTrough = false
		}
	}
	// Both or neither: flat or ambiguous, not an extremum.
	if isPeak == isTrough {
		return
	}

	// Reject low-prominence wobbles so flat segments never register cycles.
	if math.Abs(sv-d.windowMean()) < d.cfg.MinProminence {
		return
	}

	ts := d.samples[c].TimestampMs
	cutoff := ts - d.cfg.ExtremumHistoryMs

	if isPeak {
		if len(d.peaks) > 0 && ts-d.peaks[len(d.peaks)-1].timestampMs < d.cfg.MinExtremumGapMs {
			return
		}
		d.peaks = append(d.peaks, extremum{timestampMs: ts, value: sv})
		d.peaks = evictExtrema(d.peaks, cutoff)
		d.troughs = evictExtrema(d.troughs, cutoff)
		d.completeCycle(ts)
		return
	}

	if len(d.troughs) > 0 && ts-d.troughs[len(d.troughs)-1].timestampMs < d.cfg.MinExtremumGapMs {
		return
	}
	d.troughs = append(d.troughs, extremum{timestampMs: ts, value: sv})
	d.peaks = evictExtrema(d.peaks, cutoff)
	d.troughs = evictExtrema(d.troughs, cutoff)
}

// completeCycle validates the interval between the two most recent peaks
// and, if plausible, accepts it as one pedal stroke.
func (d *Detector) completeCycle(peakMs int64) {
	if len(d.peaks) < 2 {
		return
	}
	periodMs := peakMs - d.peaks[len(d.peaks)-2].timestampMs
	if periodMs <= 0 {
		return
	}
	cadence := 60000.0 / float64(periodMs)
	if cadence < d.cfg.CadenceMinRPM || cadence > d.cfg.CadenceMaxRPM {
		// Spurious detection, not real pedaling: no emission, no state change.
		return
	}

	d.cycleCount++
	d.lastCycleMs = peakMs
	d.hasCycle = true

	buf := d.angleBuf
	d.angleBuf = nil
	if len(buf) > 0 && d.listener != nil {
		d.listener.OnCycle(summarize(d.cycleCount, peakMs, cadence, buf))
	}

	d.recomputeSteady()
}

func summarize(cycle int, peakMs int64, cadence float64, angles []pose.AngleSet) CycleSummary {
	s := CycleSummary{
		Cycle:       cycle,
		TimestampMs: peakMs,
		CadenceRPM:  int(math.Round(cadence)),
		KneeMax:     angles[0].Knee,
		HipMin:      angles[0].Hip,
	}
	var torsoSum, elbowSum float64
	for _, a := range angles {
		if a.Knee > s.KneeMax {
			s.KneeMax = a.Knee
		}
		if a.Hip < s.HipMin {
			s.HipMin = a.Hip
		}
		torsoSum += a.Torso
		elbowSum += a.Elbow
	}
	s.TorsoAvg = torsoSum / float64(len(angles))
	s.ElbowAvg = elbowSum / float64(len(angles))
	return s
}

// recomputeSteady refreshes the steadiness flag from the most recent peak
// periods. Requires one more peak than the configured period count.
func (d *Detector) recomputeSteady() {
	need := d.cfg.SteadyPeriods + 1
	if len(d.peaks) < need {
		d.steady = false
		return
	}

	recent := d.peaks[len(d.peaks)-need:]
	periods := make([]float64, d.cfg.SteadyPeriods)
	var sum float64
	for i := 0; i < d.cfg.SteadyPeriods; i++ {
		periods[i] = float64(recent[i+1].timestampMs - recent[i].timestampMs)
		sum += periods[i]
	}
	avg := sum / float64(len(periods))
	if avg <= 0 {
		d.steady = false
		return
	}

	var maxDev float64
	for _, p := range periods {
		dev := math.Abs(p-avg) / avg
		if dev > maxDev {
			maxDev = dev
		}
	}
	d.steady = maxDev < d.cfg.SteadyTolerance
}
