package session

import (
	"github.com/velosense/bikefit/internal/config"
	"github.com/velosense/bikefit/internal/cycles"
	"github.com/velosense/bikefit/internal/pose"
)

// State is the lifecycle state of a recording session.
type State string

const (
	// StateCalibrating collects position samples and side votes until the
	// motion is steady. No angles are fed to the detector yet.
	StateCalibrating State = "calibrating"
	// StateRecording feeds full angle snapshots; emitted cycles accumulate
	// for the final analysis.
	StateRecording State = "recording"
	// StateFinished means pedaling stopped or the caller ended the session.
	StateFinished State = "finished"
)

// FrameStatus is the per-frame feedback returned to the caller.
type FrameStatus struct {
	State      State          `json:"state"`
	Side       pose.Side      `json:"side"`
	SideLocked bool           `json:"side_locked"`
	Steady     bool           `json:"steady"`
	Cycles     int            `json:"cycles"`
	Angles     *pose.AngleSet `json:"angles,omitempty"`
}

// Recorder drives one recording session from calibrating through recording
// to finished. It owns the cycle detector exclusively and is single-threaded;
// callers feeding frames from multiple goroutines must serialize access.
type Recorder struct {
	detector  *cycles.Detector
	selector  *pose.SideSelector
	targets   Thresholds
	trimMs    int64
	state     State
	side      pose.Side
	summaries []cycles.CycleSummary
	observer  cycles.CycleListener // optional tap for live streaming
}

// NewRecorder builds a recorder from the tuning config.
func NewRecorder(cfg *config.TuningConfig) *Recorder {
	r := &Recorder{
		detector: cycles.NewDetector(cycles.DetectorConfigFromTuning(cfg)),
		selector: pose.NewSideSelector(),
		targets:  ThresholdsFromTuning(cfg),
		trimMs:   cfg.GetTrimWindowMs(),
		state:    StateCalibrating,
	}
	r.detector.RegisterListener(cycles.CycleListenerFunc(r.onCycle))
	return r
}

// Observe registers an optional listener that receives every cycle summary
// emitted while recording, synchronously with the frame that completed it.
func (r *Recorder) Observe(l cycles.CycleListener) {
	r.observer = l
}

// State returns the current lifecycle state.
func (r *Recorder) State() State {
	return r.state
}

// Side returns the drive side in use: the locked side once calibration has
// settled it, otherwise the side currently leading the vote.
func (r *Recorder) Side() pose.Side {
	if r.side != "" {
		return r.side
	}
	return r.selector.Leaning()
}

// Summaries returns the cycles recorded so far. The slice is owned by the
// recorder; callers must not mutate it.
func (r *Recorder) Summaries() []cycles.CycleSummary {
	return r.summaries
}

func (r *Recorder) onCycle(s cycles.CycleSummary) {
	if r.state != StateRecording {
		return
	}
	r.summaries = append(r.summaries, s)
	if r.observer != nil {
		r.observer.OnCycle(s)
	}
}

// ProcessFrame feeds one landmark frame through the pipeline and returns
// the resulting per-frame status. Frames whose drive-side knee is missing
// or below the visibility threshold are skipped for position tracking;
// frames after the session finished are ignored.
func (r *Recorder) ProcessFrame(timestampMs int64, frame pose.Frame, aspectRatio float64) FrameStatus {
	if r.state == StateFinished {
		return r.status(nil)
	}

	if r.side == "" {
		r.selector.Vote(frame)
		if locked, ok := r.selector.Locked(); ok {
			r.side = locked
		}
	}
	side := r.Side()

	kneeIdx := pose.RightKnee
	if side == pose.SideLeft {
		kneeIdx = pose.LeftKnee
	}
	if kneeIdx >= len(frame) || frame[kneeIdx].Visibility < pose.MinVisibility {
		return r.status(nil)
	}

	var angles *pose.AngleSet
	if r.state == StateRecording {
		if set, ok := pose.ComputeAngles(frame, side, aspectRatio); ok {
			angles = &set
		}
	}

	r.detector.AddSample(timestampMs, frame[kneeIdx].Y, angles)

	switch r.state {
	case StateCalibrating:
		// Steadiness is the sole trigger out of calibration; the side must
		// also be locked so the recorded angles never switch body halves.
		if r.side != "" && r.detector.Steady() {
			r.state = StateRecording
		}
	case StateRecording:
		if r.detector.Stopped(timestampMs) {
			r.state = StateFinished
		}
	}

	return r.status(angles)
}

func (r *Recorder) status(angles *pose.AngleSet) FrameStatus {
	return FrameStatus{
		State:      r.state,
		Side:       r.Side(),
		SideLocked: r.side != "",
		Steady:     r.detector.Steady(),
		Cycles:     len(r.summaries),
		Angles:     angles,
	}
}

// Finish ends the session and analyzes the recorded cycles. Safe to call
// whether or not the stopped predicate already fired.
func (r *Recorder) Finish() (*Report, error) {
	r.state = StateFinished
	return Analyze(r.summaries, r.targets, r.trimMs)
}

// Reset abandons the session and returns the recorder to calibration.
func (r *Recorder) Reset() {
	r.detector.Reset()
	r.selector.Reset()
	r.side = ""
	r.summaries = nil
	r.state = StateCalibrating
}
