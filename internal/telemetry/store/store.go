// Package store persists per-session statistics (NACK counts, bitrate
// history, dropped frames) to a local SQLite database.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"
)

// DB wraps a SQLite database holding one session's telemetry.
type DB struct {
	db   *sql.DB
	path string
	mu   sync.RWMutex
}

// Open opens or creates the telemetry database under dataDir.
func Open(dataDir string) (*DB, error) {
	dbPath := filepath.Join(dataDir, "telemetry.db")

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("telemetry: create data dir: %w", err)
	}

	sqldb, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("telemetry: open database: %w", err)
	}

	if _, err := sqldb.Exec(`
		PRAGMA journal_mode = WAL;
		PRAGMA busy_timeout = 5000;
	`); err != nil {
		sqldb.Close()
		return nil, fmt.Errorf("telemetry: configure database: %w", err)
	}

	if _, err := sqldb.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			id          TEXT PRIMARY KEY,
			started_at  DATETIME DEFAULT CURRENT_TIMESTAMP,
			server_ip   TEXT
		);
		CREATE TABLE IF NOT EXISTS bitrate_samples (
			session_id  TEXT NOT NULL,
			sampled_at  DATETIME DEFAULT CURRENT_TIMESTAMP,
			target_bps  INTEGER NOT NULL,
			burst_bps   INTEGER NOT NULL,
			nacks_per_sec REAL NOT NULL
		);
		CREATE TABLE IF NOT EXISTS stream_events (
			session_id  TEXT NOT NULL,
			occurred_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			kind        TEXT NOT NULL,
			frame_id    INTEGER NOT NULL,
			detail      TEXT
		);
	`); err != nil {
		sqldb.Close()
		return nil, fmt.Errorf("telemetry: create schema: %w", err)
	}

	return &DB{db: sqldb, path: dbPath}, nil
}

func (d *DB) Close() error { return d.db.Close() }
func (d *DB) Path() string { return d.path }

// RecordSession inserts the session row once, at connection start.
func (d *DB) RecordSession(sessionID, serverIP string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.db.Exec(`INSERT OR IGNORE INTO sessions (id, server_ip) VALUES (?, ?)`, sessionID, serverIP)
	return err
}

// RecordBitrateSample logs one congestion-controller window emission.
func (d *DB) RecordBitrateSample(sessionID string, targetBps, burstBps int64, nacksPerSec float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.db.Exec(
		`INSERT INTO bitrate_samples (session_id, target_bps, burst_bps, nacks_per_sec) VALUES (?, ?, ?, ?)`,
		sessionID, targetBps, burstBps, nacksPerSec,
	)
	return err
}

// RecordStreamEvent logs a notable ring-buffer event: key-frame request,
// stream reset, or frame drop.
func (d *DB) RecordStreamEvent(sessionID, kind string, frameID int32, detail string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.db.Exec(
		`INSERT INTO stream_events (session_id, kind, frame_id, detail) VALUES (?, ?, ?, ?)`,
		sessionID, kind, frameID, detail,
	)
	return err
}

// BitrateSample is one row read back from bitrate_samples.
type BitrateSample struct {
	TargetBps   int64
	BurstBps    int64
	NacksPerSec float64
}

// RecentBitrateSamples returns the most recent n bitrate samples for a
// session, newest first.
func (d *DB) RecentBitrateSamples(sessionID string, n int) ([]BitrateSample, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rows, err := d.db.Query(
		`SELECT target_bps, burst_bps, nacks_per_sec FROM bitrate_samples
		 WHERE session_id = ? ORDER BY sampled_at DESC LIMIT ?`,
		sessionID, n,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BitrateSample
	for rows.Next() {
		var s BitrateSample
		if err := rows.Scan(&s.TargetBps, &s.BurstBps, &s.NacksPerSec); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
