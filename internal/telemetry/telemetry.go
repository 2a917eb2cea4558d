// Package telemetry aggregates the in-memory statistics counters the
// error-handling policy requires (recoverable errors are handled locally
// and counted in statistics). The counters stay in memory; when a store is
// attached, dropped frames, key-frame requests, stream resets and bitrate
// windows are written to internal/telemetry/store as they are recorded.
package telemetry

import (
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/driftcast/beamcore/internal/telemetry/store"
	"github.com/driftcast/beamcore/internal/util"
)

// recentEventCap bounds the in-memory event log a running client exposes
// for quick introspection.
const recentEventCap = 200

// Stats is the atomic counter set one session accumulates. All fields are
// safe for concurrent increment from any sync loop.
type Stats struct {
	AuthFailed       atomic.Int64
	MalformedPackets atomic.Int64
	StaleDuplicates  atomic.Int64
	FramesDropped    atomic.Int64
	DecodeErrors     atomic.Int64
	NacksSent        atomic.Int64
	KeyframeRequests atomic.Int64
	StreamResets     atomic.Int64
}

// Ledger wraps Stats with a session id and an optional persistence
// backend, logging notable events in the bracketed-component style used
// throughout the sync loops ("TELEMETRY [session]: ...").
type Ledger struct {
	SessionID string
	Stats     Stats

	db     *store.DB
	events *util.RingBuffer[string]
}

// New creates a ledger for sessionID. db may be nil to run without
// persistence (e.g. in tests or a loopback peer).
func New(sessionID string, db *store.DB) *Ledger {
	return &Ledger{
		SessionID: sessionID,
		db:        db,
		events:    util.NewRingBuffer[string](recentEventCap),
	}
}

// RecentEvents returns the most recent notable events, oldest first,
// capped at recentEventCap.
func (l *Ledger) RecentEvents() []string {
	return l.events.Snapshot()
}

func (l *Ledger) record(format string, args ...any) {
	l.events.Push(fmt.Sprintf(format, args...))
}

// RecordAuthFailed bumps the AuthFailed counter: drop, warn-log, continue.
func (l *Ledger) RecordAuthFailed(reason string) {
	l.Stats.AuthFailed.Add(1)
	l.record("auth failed: %s", reason)
	log.Printf("TELEMETRY [%s]: auth failed: %s", l.SessionID, reason)
}

func (l *Ledger) RecordMalformedPacket(reason string) {
	l.Stats.MalformedPackets.Add(1)
	l.record("malformed packet: %s", reason)
	log.Printf("TELEMETRY [%s]: malformed packet: %s", l.SessionID, reason)
}

func (l *Ledger) RecordStaleDuplicate() {
	l.Stats.StaleDuplicates.Add(1)
	l.record("stale or duplicate fragment")
}

func (l *Ledger) RecordFrameDropped(frameID int32, reason string) {
	l.Stats.FramesDropped.Add(1)
	l.record("dropped frame %d: %s", frameID, reason)
	if l.db != nil {
		_ = l.db.RecordStreamEvent(l.SessionID, "frame_dropped", frameID, reason)
	}
	log.Printf("TELEMETRY [%s]: dropped frame %d: %s", l.SessionID, frameID, reason)
}

func (l *Ledger) RecordDecodeError(frameID int32, err error) {
	l.Stats.DecodeErrors.Add(1)
	l.record("decode error on frame %d: %v", frameID, err)
	log.Printf("TELEMETRY [%s]: decode error on frame %d: %v", l.SessionID, frameID, err)
}

func (l *Ledger) RecordNackSent() {
	l.Stats.NacksSent.Add(1)
}

func (l *Ledger) RecordKeyframeRequest(frameID int32) {
	l.Stats.KeyframeRequests.Add(1)
	l.record("requested key frame after %d", frameID)
	if l.db != nil {
		_ = l.db.RecordStreamEvent(l.SessionID, "keyframe_request", frameID, "")
	}
	log.Printf("TELEMETRY [%s]: requested key frame after %d", l.SessionID, frameID)
}

func (l *Ledger) RecordStreamReset(frameID int32, kind string) {
	l.Stats.StreamResets.Add(1)
	l.record("stream reset for %s after frame %d", kind, frameID)
	if l.db != nil {
		_ = l.db.RecordStreamEvent(l.SessionID, "stream_reset", frameID, kind)
	}
	log.Printf("TELEMETRY [%s]: stream reset for %s after frame %d", l.SessionID, kind, frameID)
}

// RecordBitrateWindow persists one congestion-controller emission.
func (l *Ledger) RecordBitrateWindow(targetBps, burstBps int64, nacksPerSec float64, at time.Time) {
	if l.db == nil {
		return
	}
	if err := l.db.RecordBitrateSample(l.SessionID, targetBps, burstBps, nacksPerSec); err != nil {
		log.Printf("TELEMETRY [%s]: failed to persist bitrate sample: %v", l.SessionID, err)
	}
}
