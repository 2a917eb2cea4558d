package ring

import (
	"fmt"
	"time"

	"github.com/driftcast/beamcore/internal/fragment"
)

// Buffer is the fixed-capacity ring of frame slots for one media stream.
// Capacity is chosen by the caller so that, at the stream's nominal frame
// rate, it spans at least the stream's target buffering window (≥ 4s
// video, ≥ 2.5s audio).
//
// Buffer is single-writer/single-reader by contract: AcceptFragment runs
// on the sync thread, PopCompleted on the renderer/playout thread. It
// takes no lock; callers that violate the single-writer invariant must
// supply their own synchronization.
type Buffer struct {
	slots    []Slot
	capacity int
	kind     fragment.Kind
	fragSize int

	maxReceivedID  int32
	lastRenderedID int32

	missingFrameNackTimer time.Time
	waitingForKeyframe    bool
	lastKeyframeRequestAt time.Time

	streamResetFailures map[int32]int
}

// NewBuffer constructs an empty ring of the given capacity for a single
// stream kind, with fragments of fragSize bytes (the last fragment of a
// frame may be shorter, per internal/fragment).
func NewBuffer(capacity int, kind fragment.Kind, fragSize int) *Buffer {
	slots := make([]Slot, capacity)
	for i := range slots {
		slots[i] = newEmptySlot()
	}
	return &Buffer{
		slots:               slots,
		capacity:            capacity,
		kind:                kind,
		fragSize:            fragSize,
		maxReceivedID:       -1,
		lastRenderedID:      -1,
		streamResetFailures: make(map[int32]int),
	}
}

// AcceptResult reports what AcceptFragment did, so callers can drive stats
// and "occupant was not rendered, count as lost" bookkeeping.
type AcceptResult int

const (
	AcceptWritten AcceptResult = iota
	AcceptDuplicate
	AcceptStale
	AcceptEvictedUnrendered
)

// AcceptFragment implements the receive-path classification table:
// fresh, duplicate, stale, or evicted-unrendered.
func (b *Buffer) AcceptFragment(f fragment.Fragment, now time.Time) (AcceptResult, error) {
	pos := int(uint32(f.FrameID)) % b.capacity
	slot := &b.slots[pos]

	switch {
	case slot.ID == f.FrameID && slot.State != StateEmpty:
		idx := int(f.Index)
		if idx < 0 || idx >= len(slot.arrivedBitmap) {
			return AcceptDuplicate, fmt.Errorf("ring: fragment index %d out of range for frame %d", idx, f.FrameID)
		}
		if slot.arrivedBitmap[idx] {
			return AcceptDuplicate, nil
		}
		slot.arrivedBitmap[idx] = true
		slot.LastPacketTime = now
		if err := slot.def.Accept(f); err != nil {
			return AcceptDuplicate, nil
		}
		b.maybeComplete(slot)
		b.observeReceived(f.FrameID)
		return AcceptWritten, nil

	case slot.ID > f.FrameID:
		return AcceptStale, nil

	case slot.State == StateEmpty, slot.ID < f.FrameID:
		evicted := slot.State != StateEmpty && !slot.Rendered
		slot.reset(f.FrameID, b.fragSize, f.NumOriginal(), int(f.NumFECIndices), now)
		idx := int(f.Index)
		slot.arrivedBitmap[idx] = true
		if err := slot.def.Accept(f); err != nil {
			return AcceptDuplicate, nil
		}
		b.maybeComplete(slot)
		b.observeReceived(f.FrameID)
		if evicted {
			return AcceptEvictedUnrendered, nil
		}
		return AcceptWritten, nil
	}

	return AcceptWritten, nil
}

func (b *Buffer) observeReceived(id int32) {
	if id > b.maxReceivedID {
		b.maxReceivedID = id
	}
}

func (b *Buffer) maybeComplete(slot *Slot) {
	if slot.State == StateOpen && slot.def.Complete() {
		payload, err := slot.def.Reconstruct()
		if err == nil {
			slot.payload = payload
			slot.State = StateComplete
		}
	}
}

// PopCompleted returns the next frame ready for the renderer/playout
// engine, in frame_id order starting from lastRenderedID+1. It returns
// ok=false if that slot isn't complete yet.
func (b *Buffer) PopCompleted() (frameID int32, payload []byte, ok bool) {
	nextID := b.lastRenderedID + 1
	pos := int(uint32(nextID)) % b.capacity
	slot := &b.slots[pos]
	if slot.ID != nextID || slot.State != StateComplete {
		return 0, nil, false
	}
	slot.State = StateRendered
	slot.Rendered = true
	b.lastRenderedID = nextID
	b.waitingForKeyframe = false
	return nextID, slot.payload, true
}

// MaxReceivedID and LastRenderedID expose the counters the NACK/keyframe
// policy and congestion controller read.
func (b *Buffer) MaxReceivedID() int32   { return b.maxReceivedID }
func (b *Buffer) LastRenderedID() int32  { return b.lastRenderedID }
func (b *Buffer) WaitingForKeyframe() bool { return b.waitingForKeyframe }

// SlotAt exposes the slot backing frame_id, for tests and the NACK engine.
func (b *Buffer) SlotAt(id int32) *Slot {
	pos := int(uint32(id)) % b.capacity
	s := &b.slots[pos]
	if s.ID != id {
		return nil
	}
	return s
}

// Capacity returns the configured slot count.
func (b *Buffer) Capacity() int { return b.capacity }
