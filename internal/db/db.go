// Package db persists recording sessions, their cycles, and the final
// analysis results in a local sqlite database.
package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/velosense/bikefit/internal/cycles"
	"github.com/velosense/bikefit/internal/pose"
	"github.com/velosense/bikefit/internal/session"
)

type DB struct {
	*sql.DB
}

// NewDB opens (creating if needed) the sqlite database at path and ensures
// the baseline schema exists. Schema changes beyond the baseline are
// handled by the migrations in migrations/.
func NewDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			id               TEXT PRIMARY KEY,
			started_at_ms    BIGINT NOT NULL,
			side             TEXT NOT NULL DEFAULT '',
			state            TEXT NOT NULL DEFAULT 'calibrating',
			created_at       TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
		CREATE TABLE IF NOT EXISTS cycles (
			session_id       TEXT NOT NULL,
			cycle_number     BIGINT NOT NULL,
			timestamp_ms     BIGINT NOT NULL,
			cadence_rpm      BIGINT NOT NULL,
			knee_max         DOUBLE NOT NULL,
			hip_min          DOUBLE NOT NULL,
			torso_avg        DOUBLE NOT NULL,
			elbow_avg        DOUBLE NOT NULL,
			PRIMARY KEY(session_id, cycle_number),
			FOREIGN KEY(session_id) REFERENCES sessions(id)
		);
		CREATE TABLE IF NOT EXISTS results (
			session_id       TEXT NOT NULL,
			channel          TEXT NOT NULL,
			avg              DOUBLE NOT NULL,
			min              DOUBLE NOT NULL,
			max              DOUBLE NOT NULL,
			std              DOUBLE NOT NULL,
			target_min       DOUBLE NOT NULL,
			target_max       DOUBLE NOT NULL,
			status           TEXT NOT NULL,
			suggestion       TEXT NOT NULL,
			PRIMARY KEY(session_id, channel),
			FOREIGN KEY(session_id) REFERENCES sessions(id)
		);
	`)
	if err != nil {
		return nil, err
	}

	return &DB{db}, nil
}

// SessionRecord is one row of the sessions table.
type SessionRecord struct {
	ID          string    `json:"id"`
	StartedAtMs int64     `json:"started_at_ms"`
	Side        pose.Side `json:"side"`
	State       string    `json:"state"`
}

// CreateSession inserts a new session and returns its generated id.
func (db *DB) CreateSession(startedAt time.Time) (string, error) {
	id := uuid.NewString()
	_, err := db.Exec(
		"INSERT INTO sessions (id, started_at_ms, state) VALUES (?, ?, ?)",
		id, startedAt.UnixMilli(), string(session.StateCalibrating),
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert session: %w", err)
	}
	return id, nil
}

// UpdateSessionState records the session's lifecycle state and locked side.
func (db *DB) UpdateSessionState(id string, state session.State, side pose.Side) error {
	res, err := db.Exec(
		"UPDATE sessions SET state = ?, side = ? WHERE id = ?",
		string(state), string(side), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update session %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("session %s not found", id)
	}
	return nil
}

// GetSession loads one session row.
func (db *DB) GetSession(id string) (*SessionRecord, error) {
	var rec SessionRecord
	err := db.QueryRow(
		"SELECT id, started_at_ms, side, state FROM sessions WHERE id = ?", id,
	).Scan(&rec.ID, &rec.StartedAtMs, &rec.Side, &rec.State)
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", id, err)
	}
	return &rec, nil
}

// RecordCycle persists one emitted cycle summary.
func (db *DB) RecordCycle(sessionID string, c cycles.CycleSummary) error {
	_, err := db.Exec(
		`INSERT INTO cycles
			(session_id, cycle_number, timestamp_ms, cadence_rpm, knee_max, hip_min, torso_avg, elbow_avg)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, c.Cycle, c.TimestampMs, c.CadenceRPM, c.KneeMax, c.HipMin, c.TorsoAvg, c.ElbowAvg,
	)
	if err != nil {
		return fmt.Errorf("failed to insert cycle %d: %w", c.Cycle, err)
	}
	return nil
}

// SessionCycles returns a session's cycles ordered by cycle number.
func (db *DB) SessionCycles(sessionID string) ([]cycles.CycleSummary, error) {
	rows, err := db.Query(
		`SELECT cycle_number, timestamp_ms, cadence_rpm, knee_max, hip_min, torso_avg, elbow_avg
		FROM cycles WHERE session_id = ? ORDER BY cycle_number`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query cycles: %w", err)
	}
	defer rows.Close()

	var list []cycles.CycleSummary
	for rows.Next() {
		var c cycles.CycleSummary
		if err := rows.Scan(&c.Cycle, &c.TimestampMs, &c.CadenceRPM,
			&c.KneeMax, &c.HipMin, &c.TorsoAvg, &c.ElbowAvg); err != nil {
			return nil, fmt.Errorf("failed to scan cycle: %w", err)
		}
		list = append(list, c)
	}
	return list, rows.Err()
}

// SaveResults replaces a session's analysis results.
func (db *DB) SaveResults(sessionID string, results []session.ChannelResult) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM results WHERE session_id = ?", sessionID); err != nil {
		return fmt.Errorf("failed to clear previous results: %w", err)
	}
	for _, r := range results {
		_, err := tx.Exec(
			`INSERT INTO results
				(session_id, channel, avg, min, max, std, target_min, target_max, status, suggestion)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			sessionID, r.Channel, r.Avg, r.Min, r.Max, r.Std,
			r.TargetMin, r.TargetMax, string(r.Status), r.Suggestion,
		)
		if err != nil {
			return fmt.Errorf("failed to insert result %s: %w", r.Channel, err)
		}
	}
	return tx.Commit()
}

// SessionResults loads a session's saved analysis results in channel order.
func (db *DB) SessionResults(sessionID string) ([]session.ChannelResult, error) {
	rows, err := db.Query(
		`SELECT channel, avg, min, max, std, target_min, target_max, status, suggestion
		FROM results WHERE session_id = ?
		ORDER BY CASE channel
			WHEN 'knee' THEN 0 WHEN 'hip' THEN 1 WHEN 'torso' THEN 2 ELSE 3 END`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	defer rows.Close()

	var list []session.ChannelResult
	for rows.Next() {
		var r session.ChannelResult
		var status string
		if err := rows.Scan(&r.Channel, &r.Avg, &r.Min, &r.Max, &r.Std,
			&r.TargetMin, &r.TargetMax, &status, &r.Suggestion); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		r.Status = session.Status(status)
		list = append(list, r)
	}
	return list, rows.Err()
}
