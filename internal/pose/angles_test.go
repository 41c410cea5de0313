package pose

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAngleAtVertex(t *testing.T) {
	t.Parallel()

	t.Run("right angle", func(t *testing.T) {
		t.Parallel()
		a := Point{X: 1, Y: 0}
		b := Point{X: 0, Y: 0}
		c := Point{X: 0, Y: 1}
		assert.InDelta(t, 90.0, AngleAtVertex(a, b, c), 1e-9)
	})

	t.Run("straight line is 180", func(t *testing.T) {
		t.Parallel()
		a := Point{X: -1, Y: 0}
		b := Point{X: 0, Y: 0}
		c := Point{X: 1, Y: 0}
		assert.InDelta(t, 180.0, AngleAtVertex(a, b, c), 1e-9)
	})

	t.Run("degenerate zero angle", func(t *testing.T) {
		t.Parallel()
		a := Point{X: 1, Y: 1}
		b := Point{X: 0, Y: 0}
		c := Point{X: 2, Y: 2}
		assert.InDelta(t, 0.0, AngleAtVertex(a, b, c), 1e-9)
	})

	t.Run("symmetric in outer points", func(t *testing.T) {
		t.Parallel()
		a := Point{X: 0.3, Y: 0.9}
		b := Point{X: 0.5, Y: 0.5}
		c := Point{X: 0.8, Y: 0.2}
		assert.InDelta(t, AngleAtVertex(a, b, c), AngleAtVertex(c, b, a), 1e-12)
	})

	t.Run("result bounded to [0,180]", func(t *testing.T) {
		t.Parallel()
		// Sweep a around the vertex; all results must stay in range.
		b := Point{X: 0.5, Y: 0.5}
		c := Point{X: 1, Y: 0.5}
		for deg := 0; deg < 360; deg += 15 {
			rad := float64(deg) * math.Pi / 180
			a := Point{X: b.X + math.Cos(rad), Y: b.Y + math.Sin(rad)}
			got := AngleAtVertex(a, b, c)
			assert.GreaterOrEqual(t, got, 0.0)
			assert.LessOrEqual(t, got, 180.0)
		}
	})
}

func TestAngleFromHorizontal(t *testing.T) {
	t.Parallel()

	t.Run("horizontal vector is zero", func(t *testing.T) {
		t.Parallel()
		got := AngleFromHorizontal(Point{X: 0, Y: 0.5}, Point{X: 1, Y: 0.5})
		assert.InDelta(t, 0.0, got, 1e-9)
	})

	t.Run("vertical vector is 90", func(t *testing.T) {
		t.Parallel()
		got := AngleFromHorizontal(Point{X: 0.5, Y: 0}, Point{X: 0.5, Y: 1})
		assert.InDelta(t, 90.0, got, 1e-9)
	})

	t.Run("orientation agnostic", func(t *testing.T) {
		t.Parallel()
		a := Point{X: 0.2, Y: 0.8}
		b := Point{X: 0.6, Y: 0.5}
		forward := AngleFromHorizontal(a, b)
		backward := AngleFromHorizontal(b, a)
		mirrored := AngleFromHorizontal(Point{X: -a.X, Y: a.Y}, Point{X: -b.X, Y: b.Y})
		assert.InDelta(t, forward, backward, 1e-12)
		assert.InDelta(t, forward, mirrored, 1e-12)
	})
}

// testFrame builds a frame with every landmark fully visible, then lets the
// caller override individual points.
func testFrame() Frame {
	frame := make(Frame, 33)
	for i := range frame {
		frame[i] = Landmark{X: 0.5, Y: 0.5, Visibility: 1.0}
	}
	// A plausible right-side riding posture.
	frame[RightShoulder] = Landmark{X: 0.40, Y: 0.30, Visibility: 0.95}
	frame[RightElbow] = Landmark{X: 0.30, Y: 0.40, Visibility: 0.95}
	frame[RightWrist] = Landmark{X: 0.22, Y: 0.48, Visibility: 0.95}
	frame[RightHip] = Landmark{X: 0.60, Y: 0.50, Visibility: 0.95}
	frame[RightKnee] = Landmark{X: 0.52, Y: 0.68, Visibility: 0.95}
	frame[RightAnkle] = Landmark{X: 0.56, Y: 0.88, Visibility: 0.95}
	return frame
}

func TestComputeAngles(t *testing.T) {
	t.Parallel()

	t.Run("full set from visible landmarks", func(t *testing.T) {
		t.Parallel()
		angles, ok := ComputeAngles(testFrame(), SideRight, 16.0/9.0)
		require.True(t, ok)

		assert.Greater(t, angles.Knee, 0.0)
		assert.LessOrEqual(t, angles.Knee, 180.0)
		assert.Greater(t, angles.Hip, 0.0)
		assert.LessOrEqual(t, angles.Hip, 180.0)
		assert.GreaterOrEqual(t, angles.Torso, 0.0)
		assert.LessOrEqual(t, angles.Torso, 90.0)
		assert.Greater(t, angles.Elbow, 0.0)
		assert.LessOrEqual(t, angles.Elbow, 180.0)
	})

	t.Run("unavailable when one landmark below visibility threshold", func(t *testing.T) {
		t.Parallel()
		frame := testFrame()
		frame[RightKnee] = Landmark{X: 0.52, Y: 0.68, Visibility: 0.4}
		_, ok := ComputeAngles(frame, SideRight, 1.0)
		assert.False(t, ok)
	})

	t.Run("unavailable on short frame", func(t *testing.T) {
		t.Parallel()
		_, ok := ComputeAngles(make(Frame, 10), SideLeft, 1.0)
		assert.False(t, ok)
	})

	t.Run("aspect ratio changes knee angle", func(t *testing.T) {
		t.Parallel()
		square, ok := ComputeAngles(testFrame(), SideRight, 1.0)
		require.True(t, ok)
		wide, ok := ComputeAngles(testFrame(), SideRight, 16.0/9.0)
		require.True(t, ok)
		assert.NotEqual(t, square.Knee, wide.Knee)
	})
}

func TestExtractSide(t *testing.T) {
	t.Parallel()

	t.Run("scales x by aspect ratio only", func(t *testing.T) {
		t.Parallel()
		frame := testFrame()
		lm, ok := ExtractSide(frame, SideRight, 2.0)
		require.True(t, ok)
		assert.InDelta(t, frame[RightHip].X*2.0, lm.Hip.X, 1e-12)
		assert.InDelta(t, frame[RightHip].Y, lm.Hip.Y, 1e-12)
	})

	t.Run("all or nothing", func(t *testing.T) {
		t.Parallel()
		frame := testFrame()
		frame[RightWrist] = Landmark{Visibility: 0}
		_, ok := ExtractSide(frame, SideRight, 1.0)
		assert.False(t, ok)
	})
}
