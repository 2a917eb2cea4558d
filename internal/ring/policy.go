package ring

import (
	"time"

	"github.com/driftcast/beamcore/internal/fragment"
)

// Policy bundles the threshold constants the NACK and key-frame escalation
// logic reads, sourced from configuration (internal/config.Ring).
type Policy struct {
	RTTEstimate             time.Duration
	Latency                 time.Duration
	MaxNackedPerTick        int
	MaxUnsyncedFrames       int32
	MaxUnsyncedFramesRender int32
	MaxMissingPackets       int

	KeyframeRequestInterval time.Duration // ≥ 1500ms
	StreamResetThreshold    time.Duration // defaults to 4 * Latency
}

// NackRequest names a single missing (frame_id, index) pair to retransmit.
type NackRequest struct {
	FrameID int32
	Index   uint16
}

// StreamResetRequest asks the sender to abandon the current GOP and emit a
// fresh key frame with id > LastFailedID.
type StreamResetRequest struct {
	Kind         fragment.Kind
	LastFailedID int32
}

// TickResult is everything the sync loop needs to act on after one policy
// pass: outbound NACKs, whether a key-frame request should be sent, and an
// optional stream reset.
type TickResult struct {
	Nacks             []NackRequest
	KeyframeRequested bool
	StreamReset       *StreamResetRequest
}

// Tick runs one NACK/key-frame/stream-reset pass over the buffer. rendering
// reports whether the renderer currently holds a frame in flight (affects
// the key-frame escalation threshold).
func (b *Buffer) Tick(now time.Time, p Policy, rendering bool) TickResult {
	var result TickResult

	// Stream reset is judged before this tick's NACK pass, so only NACKs
	// sent on earlier ticks count as failed passes.
	b.maybeStreamReset(now, p, &result)
	b.nackIncompleteSlots(now, p, &result)
	b.frameGapNack(now, p, &result)
	b.escalateKeyframe(now, p, rendering, &result)

	return result
}

// nackIncompleteSlots implements the per-slot NACK policy: scan forward
// from last_nacked_index+1 for one unarrived, not-yet-nacked index per
// incomplete slot whose oldest gap has aged past RTT_estimate.
func (b *Buffer) nackIncompleteSlots(now time.Time, p Policy, result *TickResult) {
	start := b.lastRenderedID + 1
	end := b.maxReceivedID
	for id := start; id <= end && len(result.Nacks) < p.MaxNackedPerTick; id++ {
		slot := b.SlotAt(id)
		if slot == nil || slot.State != StateOpen {
			continue
		}
		age, hasGap := slot.OldestUnreceivedAge(now)
		if !hasGap || age < p.RTTEstimate {
			continue
		}

		minSpacing := p.Latency + p.Latency*time.Duration(slot.NumTimesNacked)
		if !slot.LastNackTime.IsZero() && now.Sub(slot.LastNackTime) < minSpacing {
			continue
		}

		for i := slot.LastNackedIndex + 1; i < len(slot.arrivedBitmap); i++ {
			if slot.arrivedBitmap[i] || slot.nackedBitmap[i] {
				continue
			}
			slot.nackedBitmap[i] = true
			slot.LastNackedIndex = i
			slot.LastNackTime = now
			slot.NumTimesNacked++
			result.Nacks = append(result.Nacks, NackRequest{FrameID: id, Index: uint16(i)})
			break // per-frame cap: ≤ 1 index per pass
		}
	}
}

// frameGapNack recovers the case where the first packet of a frame was
// lost entirely, so no slot exists to drive per-index NACKs.
func (b *Buffer) frameGapNack(now time.Time, p Policy, result *TickResult) {
	if b.maxReceivedID <= b.lastRenderedID+1 {
		return
	}
	if !b.missingFrameNackTimer.IsZero() && now.Sub(b.missingFrameNackTimer) < p.Latency {
		return
	}

	sent := false
	for id := b.lastRenderedID + 1; id < b.maxReceivedID && len(result.Nacks) < p.MaxNackedPerTick; id++ {
		if b.SlotAt(id) != nil {
			continue
		}
		result.Nacks = append(result.Nacks, NackRequest{FrameID: id, Index: 0})
		sent = true
	}
	if sent {
		b.missingFrameNackTimer = now
	}
}

// escalateKeyframe implements the key-frame escalation rules.
func (b *Buffer) escalateKeyframe(now time.Time, p Policy, rendering bool, result *TickResult) {
	threshold := p.MaxUnsyncedFrames
	if rendering {
		threshold = p.MaxUnsyncedFramesRender
	}

	gap := b.maxReceivedID - b.lastRenderedID
	missing := b.missingIndexCount(p.MaxUnsyncedFrames)

	needsKeyframe := (gap > threshold && !rendering) || missing > p.MaxMissingPackets
	if !needsKeyframe {
		return
	}
	if !b.lastKeyframeRequestAt.IsZero() && now.Sub(b.lastKeyframeRequestAt) < p.KeyframeRequestInterval {
		return
	}

	b.lastKeyframeRequestAt = now
	b.waitingForKeyframe = true
	result.KeyframeRequested = true
}

func (b *Buffer) missingIndexCount(window int32) int {
	missing := 0
	for id := b.lastRenderedID + 1; id < b.lastRenderedID+1+window; id++ {
		slot := b.SlotAt(id)
		if slot == nil {
			continue
		}
		for _, arrived := range slot.arrivedBitmap {
			if !arrived {
				missing++
			}
		}
	}
	return missing
}

// maybeStreamReset fires a StreamResetRequest when the oldest slot needed
// for forward progress has been stuck despite repeated NACK passes.
func (b *Buffer) maybeStreamReset(now time.Time, p Policy, result *TickResult) {
	threshold := p.StreamResetThreshold
	if threshold == 0 {
		threshold = 4 * p.Latency
	}

	nextID := b.lastRenderedID + 1
	slot := b.SlotAt(nextID)
	if slot == nil || slot.State != StateOpen {
		return
	}
	if now.Sub(slot.CreationTime) < threshold || slot.NumTimesNacked < 2 {
		return
	}
	if b.streamResetFailures[nextID] > 0 {
		return // already requested for this frame id
	}

	b.streamResetFailures[nextID]++
	result.StreamReset = &StreamResetRequest{Kind: b.kind, LastFailedID: nextID}
}
