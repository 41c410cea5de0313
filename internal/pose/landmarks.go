// Package pose converts 2D body-landmark frames from an external pose
// tracker into side-specific joint angle sets.
//
// Landmarks arrive in a normalized unit-square coordinate space with an
// optional per-point visibility confidence. The package is stateless apart
// from SideSelector, which accumulates visibility votes during calibration.
package pose

import "fmt"

// Landmark indices as produced by the upstream pose tracker
// (MediaPipe Pose topology).
const (
	LeftShoulder  = 11
	RightShoulder = 12
	LeftElbow     = 13
	RightElbow    = 14
	LeftWrist     = 15
	RightWrist    = 16
	LeftHip       = 23
	RightHip      = 24
	LeftKnee      = 25
	RightKnee     = 26
	LeftAnkle     = 27
	RightAnkle    = 28
)

// MinVisibility is the confidence below which a landmark is treated as
// absent. A frame with any required landmark under this threshold yields no
// angle set at all.
const MinVisibility = 0.6

// Landmark is one named 2D point in normalized [0,1] space.
type Landmark struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Visibility float64 `json:"visibility"`
}

// Frame is one indexable set of landmarks, produced fresh each video frame.
type Frame []Landmark

// Point is a 2D point after aspect-ratio correction.
type Point struct {
	X float64
	Y float64
}

// Side selects which body half's landmark set to use.
type Side string

const (
	SideLeft  Side = "left"
	SideRight Side = "right"
)

// Valid reports whether s is a recognised side value.
func (s Side) Valid() bool {
	return s == SideLeft || s == SideRight
}

// sideIndices maps a side to its required landmark indices.
func sideIndices(side Side) (shoulder, elbow, wrist, hip, knee, ankle int) {
	if side == SideLeft {
		return LeftShoulder, LeftElbow, LeftWrist, LeftHip, LeftKnee, LeftAnkle
	}
	return RightShoulder, RightElbow, RightWrist, RightHip, RightKnee, RightAnkle
}

// SideLandmarks is the side-specific subset used for angle computation,
// with the horizontal coordinate pre-multiplied by the frame aspect ratio so
// distances are comparable across axes.
type SideLandmarks struct {
	Shoulder Point
	Elbow    Point
	Wrist    Point
	Hip      Point
	Knee     Point
	Ankle    Point
}

// ExtractSide returns the aspect-corrected landmark subset for one body
// side. It returns ok=false if any required landmark is missing from the
// frame or has visibility below MinVisibility; a partial subset is never
// returned.
func ExtractSide(frame Frame, side Side, aspectRatio float64) (SideLandmarks, bool) {
	shoulder, elbow, wrist, hip, knee, ankle := sideIndices(side)

	indices := []int{shoulder, elbow, wrist, hip, knee, ankle}
	points := make([]Point, len(indices))
	for i, idx := range indices {
		if idx >= len(frame) {
			return SideLandmarks{}, false
		}
		lm := frame[idx]
		if lm.Visibility < MinVisibility {
			return SideLandmarks{}, false
		}
		points[i] = Point{X: lm.X * aspectRatio, Y: lm.Y}
	}

	return SideLandmarks{
		Shoulder: points[0],
		Elbow:    points[1],
		Wrist:    points[2],
		Hip:      points[3],
		Knee:     points[4],
		Ankle:    points[5],
	}, true
}

// SideSelector accumulates per-frame votes for which body side is more
// visible to the camera. The side is locked after LockVotes votes and stays
// fixed for the rest of the session.
type SideSelector struct {
	leftVotes  int
	rightVotes int
	locked     Side
}

// LockVotes is the number of accumulated votes after which the side locks.
const LockVotes = 30

// NewSideSelector returns a selector with no accumulated votes.
func NewSideSelector() *SideSelector {
	return &SideSelector{}
}

// Vote records one frame's side preference based on the mean visibility of
// each side's required landmarks. Frames too short to index both sides are
// ignored. Calls after the side has locked are no-ops.
func (s *SideSelector) Vote(frame Frame) {
	if s.locked != "" {
		return
	}
	left, lok := meanSideVisibility(frame, SideLeft)
	right, rok := meanSideVisibility(frame, SideRight)
	if !lok || !rok {
		return
	}
	if left >= right {
		s.leftVotes++
	} else {
		s.rightVotes++
	}
	if s.leftVotes+s.rightVotes >= LockVotes {
		if s.leftVotes >= s.rightVotes {
			s.locked = SideLeft
		} else {
			s.locked = SideRight
		}
	}
}

// Locked returns the locked side, or ok=false while voting is still open.
func (s *SideSelector) Locked() (Side, bool) {
	if s.locked == "" {
		return "", false
	}
	return s.locked, true
}

// Leaning returns the side currently ahead in the vote without locking it.
// Used for display while calibration is in progress.
func (s *SideSelector) Leaning() Side {
	if s.locked != "" {
		return s.locked
	}
	if s.rightVotes > s.leftVotes {
		return SideRight
	}
	return SideLeft
}

// Reset clears all votes and any locked side.
func (s *SideSelector) Reset() {
	s.leftVotes = 0
	s.rightVotes = 0
	s.locked = ""
}

func meanSideVisibility(frame Frame, side Side) (float64, bool) {
	shoulder, elbow, wrist, hip, knee, ankle := sideIndices(side)
	indices := []int{shoulder, elbow, wrist, hip, knee, ankle}

	var sum float64
	for _, idx := range indices {
		if idx >= len(frame) {
			return 0, false
		}
		sum += frame[idx].Visibility
	}
	return sum / float64(len(indices)), true
}

// ParseSide converts a string to a Side, rejecting unknown values.
func ParseSide(s string) (Side, error) {
	side := Side(s)
	if !side.Valid() {
		return "", fmt.Errorf("invalid side %q (want %q or %q)", s, SideLeft, SideRight)
	}
	return side, nil
}
