package session

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velosense/bikefit/internal/cycles"
)

// cyclesAt builds a summary list with the given timestamps and a fixed,
// in-range angle profile unless overridden.
func cyclesAt(timestamps ...int64) []cycles.CycleSummary {
	list := make([]cycles.CycleSummary, len(timestamps))
	for i, ts := range timestamps {
		list[i] = cycles.CycleSummary{
			Cycle:       i + 1,
			TimestampMs: ts,
			CadenceRPM:  90,
			KneeMax:     145,
			HipMin:      55,
			TorsoAvg:    42,
			ElbowAvg:    157,
		}
	}
	return list
}

func TestTrimCycles(t *testing.T) {
	t.Parallel()

	t.Run("short span is identity", func(t *testing.T) {
		t.Parallel()
		in := cyclesAt(0, 2000, 5000)
		out := TrimCycles(in, DefaultTrimWindowMs)
		assert.Empty(t, cmp.Diff(in, out))
	})

	t.Run("single entry is identity", func(t *testing.T) {
		t.Parallel()
		in := cyclesAt(99999)
		out := TrimCycles(in, DefaultTrimWindowMs)
		assert.Empty(t, cmp.Diff(in, out))
	})

	t.Run("drops trailing window by timestamp not index", func(t *testing.T) {
		t.Parallel()
		// 8s span: everything at or after 3000 is within the last 5000ms.
		in := cyclesAt(0, 1000, 2000, 2999, 3000, 6000, 8000)
		out := TrimCycles(in, DefaultTrimWindowMs)

		require.Len(t, out, 4)
		for _, c := range out {
			assert.Less(t, c.TimestampMs, int64(3000))
		}
	})

	t.Run("idempotent", func(t *testing.T) {
		t.Parallel()
		in := cyclesAt(0, 800, 1600, 2400, 7000, 7400)
		once := TrimCycles(in, DefaultTrimWindowMs)
		twice := TrimCycles(once, DefaultTrimWindowMs)
		assert.Empty(t, cmp.Diff(once, twice))
	})

	t.Run("nil input stays nil", func(t *testing.T) {
		t.Parallel()
		assert.Nil(t, TrimCycles(nil, DefaultTrimWindowMs))
	})
}

func TestAnalyzeStatistics(t *testing.T) {
	t.Parallel()

	list := cyclesAt(0, 1000, 2000)
	list[0].KneeMax = 140
	list[1].KneeMax = 160
	list[2].KneeMax = 130

	targets := DefaultThresholds()
	targets.Knee.Min, targets.Knee.Max = 135, 150

	report, err := Analyze(list, targets, DefaultTrimWindowMs)
	require.NoError(t, err)
	require.Len(t, report.Results, 4)

	knee := report.Results[0]
	require.Equal(t, ChannelKnee, knee.Channel)
	assert.Equal(t, 143.3, knee.Avg)
	assert.Equal(t, 130.0, knee.Min)
	assert.Equal(t, 160.0, knee.Max)
	assert.Equal(t, 12.5, knee.Std) // population std of {140,160,130}
	assert.Equal(t, StatusGreen, knee.Status)
	assert.Equal(t, targets.Knee.GoodText, knee.Suggestion)

	assert.Equal(t, 3, report.Cycles)
	assert.Equal(t, int64(2000), report.DurationMs)
	assert.Equal(t, 90.0, report.CadenceAvgRPM)
}

func TestAnalyzeClassification(t *testing.T) {
	t.Parallel()

	targets := DefaultThresholds()
	targets.Hip.Min, targets.Hip.Max = 50, 70

	cases := []struct {
		name       string
		hipMin     float64
		wantStatus Status
		wantText   string
	}{
		{"mean 12 below min is red", 38, StatusRed, targets.Hip.LowText},
		{"mean 8 below min is yellow", 42, StatusYellow, targets.Hip.LowText},
		{"mean at min is green", 50, StatusGreen, targets.Hip.GoodText},
		{"mean at max is green", 70, StatusGreen, targets.Hip.GoodText},
		{"mean 8 above max is yellow", 78, StatusYellow, targets.Hip.HighText},
		{"mean 12 above max is red", 82, StatusRed, targets.Hip.HighText},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			list := cyclesAt(0, 1000, 2000)
			for i := range list {
				list[i].HipMin = tc.hipMin
			}

			report, err := Analyze(list, targets, DefaultTrimWindowMs)
			require.NoError(t, err)

			hip := report.Results[1]
			require.Equal(t, ChannelHip, hip.Channel)
			assert.Equal(t, tc.wantStatus, hip.Status)
			assert.Equal(t, tc.wantText, hip.Suggestion)
		})
	}
}

func TestAnalyzeMeanOnlyClassification(t *testing.T) {
	t.Parallel()

	// High spread but a centred mean still reads green: classification uses
	// only the mean, never the reported standard deviation.
	targets := DefaultThresholds()
	targets.Torso.Min, targets.Torso.Max = 35, 50

	list := cyclesAt(0, 1000, 2000, 3000)
	spread := []float64{20, 65, 20, 65} // mean 42.5, wildly inconsistent
	for i := range list {
		list[i].TorsoAvg = spread[i]
	}

	report, err := Analyze(list, targets, DefaultTrimWindowMs)
	require.NoError(t, err)

	torso := report.Results[2]
	assert.Equal(t, StatusGreen, torso.Status)
	assert.Greater(t, torso.Std, 10.0)
}

func TestAnalyzeNoCycles(t *testing.T) {
	t.Parallel()

	_, err := Analyze(nil, DefaultThresholds(), DefaultTrimWindowMs)
	assert.ErrorIs(t, err, ErrNoCycles)

	_, err = Analyze([]cycles.CycleSummary{}, DefaultThresholds(), DefaultTrimWindowMs)
	assert.ErrorIs(t, err, ErrNoCycles)
}

func TestAnalyzeRejectsInvalidTargets(t *testing.T) {
	t.Parallel()

	targets := DefaultThresholds()
	targets.Elbow.Min, targets.Elbow.Max = 170, 150

	_, err := Analyze(cyclesAt(0, 1000), targets, DefaultTrimWindowMs)
	assert.Error(t, err)
}

func TestThresholdValidate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, Threshold{Name: "knee", Min: 140, Max: 150}.Validate())
	assert.Error(t, Threshold{Name: "knee", Min: 150, Max: 150}.Validate())
	assert.Error(t, Threshold{Name: "knee", Min: 151, Max: 150}.Validate())
}
