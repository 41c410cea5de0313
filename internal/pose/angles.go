package pose

import "math"

// AngleSet holds the four joint angles derived from one frame, in degrees.
// Knee, Hip and Elbow are interior joint angles in [0,180]; Torso is the
// deviation of the hip-to-shoulder line from horizontal in [0,90].
type AngleSet struct {
	Knee  float64 `json:"knee"`
	Hip   float64 `json:"hip"`
	Torso float64 `json:"torso"`
	Elbow float64 `json:"elbow"`
}

// AngleAtVertex returns the unsigned interior angle at vertex b formed by
// the rays from b to a and from b to c, in degrees [0,180]. The
// atan2(|cross|, dot) form is numerically stable near 0° and 180°, where the
// arccosine form loses precision.
func AngleAtVertex(a, b, c Point) float64 {
	ux, uy := a.X-b.X, a.Y-b.Y
	vx, vy := c.X-b.X, c.Y-b.Y

	cross := ux*vy - uy*vx
	dot := ux*vx + uy*vy

	return math.Atan2(math.Abs(cross), dot) * 180 / math.Pi
}

// AngleFromHorizontal returns the absolute deviation of the vector from a
// to b against the horizontal axis, in degrees [0,90]. Orientation-agnostic:
// a rider facing either direction yields the same tilt.
func AngleFromHorizontal(a, b Point) float64 {
	dx := b.X - a.X
	dy := b.Y - a.Y
	return math.Atan2(math.Abs(dy), math.Abs(dx)) * 180 / math.Pi
}

// ComputeAngles derives the full angle set for one frame and side. It
// returns ok=false when any required landmark is missing or below the
// visibility threshold; the result is all-or-nothing per frame.
func ComputeAngles(frame Frame, side Side, aspectRatio float64) (AngleSet, bool) {
	lm, ok := ExtractSide(frame, side, aspectRatio)
	if !ok {
		return AngleSet{}, false
	}

	return AngleSet{
		Knee:  AngleAtVertex(lm.Hip, lm.Knee, lm.Ankle),
		Hip:   AngleAtVertex(lm.Shoulder, lm.Hip, lm.Knee),
		Torso: AngleFromHorizontal(lm.Hip, lm.Shoulder),
		Elbow: AngleAtVertex(lm.Shoulder, lm.Elbow, lm.Wrist),
	}, true
}
