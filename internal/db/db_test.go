package db

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velosense/bikefit/internal/cycles"
	"github.com/velosense/bikefit/internal/pose"
	"github.com/velosense/bikefit/internal/session"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := NewDB(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSessionLifecycle(t *testing.T) {
	db := newTestDB(t)

	id, err := db.CreateSession(time.UnixMilli(1700000000000))
	require.NoError(t, err)
	require.NotEmpty(t, id)

	rec, err := db.GetSession(id)
	require.NoError(t, err)
	assert.Equal(t, id, rec.ID)
	assert.Equal(t, int64(1700000000000), rec.StartedAtMs)
	assert.Equal(t, string(session.StateCalibrating), rec.State)

	require.NoError(t, db.UpdateSessionState(id, session.StateRecording, pose.SideRight))

	rec, err = db.GetSession(id)
	require.NoError(t, err)
	assert.Equal(t, string(session.StateRecording), rec.State)
	assert.Equal(t, pose.SideRight, rec.Side)
}

func TestUpdateUnknownSession(t *testing.T) {
	db := newTestDB(t)
	err := db.UpdateSessionState("no-such-id", session.StateFinished, pose.SideLeft)
	assert.Error(t, err)
}

func TestCycleRoundTrip(t *testing.T) {
	db := newTestDB(t)

	id, err := db.CreateSession(time.Now())
	require.NoError(t, err)

	want := []cycles.CycleSummary{
		{Cycle: 1, TimestampMs: 1500, CadenceRPM: 95, KneeMax: 144.2, HipMin: 52.1, TorsoAvg: 41.0, ElbowAvg: 156.3},
		{Cycle: 2, TimestampMs: 2130, CadenceRPM: 95, KneeMax: 145.8, HipMin: 51.7, TorsoAvg: 41.4, ElbowAvg: 155.9},
		{Cycle: 3, TimestampMs: 2770, CadenceRPM: 94, KneeMax: 143.9, HipMin: 52.6, TorsoAvg: 40.8, ElbowAvg: 156.7},
	}
	for _, c := range want {
		require.NoError(t, db.RecordCycle(id, c))
	}

	got, err := db.SessionCycles(id)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// Cycles from other sessions never leak in.
	other, err := db.CreateSession(time.Now())
	require.NoError(t, err)
	require.NoError(t, db.RecordCycle(other, cycles.CycleSummary{Cycle: 1, TimestampMs: 9000, CadenceRPM: 80}))

	got, err = db.SessionCycles(id)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestResultsRoundTrip(t *testing.T) {
	db := newTestDB(t)

	id, err := db.CreateSession(time.Now())
	require.NoError(t, err)

	results := []session.ChannelResult{
		{Channel: session.ChannelKnee, AngleStats: session.AngleStats{Avg: 143.3, Min: 130, Max: 160, Std: 12.5},
			TargetMin: 135, TargetMax: 150, Status: session.StatusGreen, Suggestion: "fine"},
		{Channel: session.ChannelHip, AngleStats: session.AngleStats{Avg: 38.0, Min: 35, Max: 41, Std: 2.1},
			TargetMin: 50, TargetMax: 70, Status: session.StatusRed, Suggestion: "move saddle"},
		{Channel: session.ChannelTorso, AngleStats: session.AngleStats{Avg: 42.5, Min: 40, Max: 45, Std: 1.8},
			TargetMin: 35, TargetMax: 50, Status: session.StatusGreen, Suggestion: "fine"},
		{Channel: session.ChannelElbow, AngleStats: session.AngleStats{Avg: 158.0, Min: 150, Max: 165, Std: 4.0},
			TargetMin: 150, TargetMax: 165, Status: session.StatusGreen, Suggestion: "fine"},
	}
	require.NoError(t, db.SaveResults(id, results))

	got, err := db.SessionResults(id)
	require.NoError(t, err)
	assert.Equal(t, results, got)

	// Saving again replaces, never duplicates.
	results[1].Status = session.StatusYellow
	require.NoError(t, db.SaveResults(id, results))

	got, err = db.SessionResults(id)
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Equal(t, session.StatusYellow, got[1].Status)
}

func TestMigrations(t *testing.T) {
	db := newTestDB(t)

	version, dirty, err := db.MigrateVersion("../../migrations")
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.Zero(t, version)

	require.NoError(t, db.MigrateUp("../../migrations"))

	version, dirty, err = db.MigrateVersion("../../migrations")
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.Equal(t, uint(2), version)

	// Migrated schema still accepts writes.
	id, err := db.CreateSession(time.Now())
	require.NoError(t, err)
	require.NoError(t, db.RecordCycle(id, cycles.CycleSummary{Cycle: 1, TimestampMs: 600, CadenceRPM: 100}))

	require.NoError(t, db.MigrateDown("../../migrations"))
	version, _, err = db.MigrateVersion("../../migrations")
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
}
