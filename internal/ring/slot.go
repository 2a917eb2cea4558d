// Package ring implements the per-stream reassembly ring buffer: a bounded
// circular array of frame slots that tolerates loss and reordering, drives
// selective retransmission (NACK) and key-frame recovery, and feeds an
// ordered frame queue to the renderer or audio playout engine.
package ring

import (
	"time"

	"github.com/driftcast/beamcore/internal/fragment"
)

// SlotState is the per-slot lifecycle Data Model names.
type SlotState int

const (
	StateEmpty SlotState = iota
	StateOpen
	StateComplete
	StateRendered
)

func (s SlotState) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateOpen:
		return "open"
	case StateComplete:
		return "complete"
	case StateRendered:
		return "rendered"
	default:
		return "unknown"
	}
}

// Slot holds one in-flight frame's reassembly state. A slot with ID ≥ 0
// owns a Defragmenter (and therefore a buffer); recycling a slot means
// dropping that reference so its memory is reclaimed by the GC rather than
// explicitly pooled.
type Slot struct {
	ID    int32 // -1 when empty
	State SlotState

	def *fragment.Defragmenter

	NumIndices    uint16
	NumFECIndices uint16

	arrivedBitmap []bool
	nackedBitmap  []bool

	CreationTime    time.Time
	LastPacketTime  time.Time
	LastNackTime    time.Time
	NumTimesNacked  int
	LastNackedIndex int

	Rendered bool

	payload []byte // populated once State == StateComplete
}

func newEmptySlot() Slot {
	return Slot{ID: -1, State: StateEmpty, LastNackedIndex: -1}
}

// reset reinitializes the slot for a new frame id, discarding whatever the
// slot previously held.
func (s *Slot) reset(id int32, fragSize int, numOrig, numFEC int, now time.Time) {
	*s = Slot{
		ID:              id,
		State:           StateOpen,
		def:             fragment.NewDefragmenter(fragSize, numOrig, numFEC),
		NumIndices:      uint16(numOrig + numFEC),
		NumFECIndices:   uint16(numFEC),
		arrivedBitmap:   make([]bool, numOrig+numFEC),
		nackedBitmap:    make([]bool, numOrig+numFEC),
		CreationTime:    now,
		LastPacketTime:  now,
		LastNackedIndex: -1,
	}
}

// NumOriginalReceived mirrors the Data Model invariant num_original_received
// ≤ num_indices - num_fec_indices.
func (s *Slot) NumOriginalReceived() int {
	if s.def == nil {
		return 0
	}
	return s.def.NumOriginalReceived()
}

func (s *Slot) NumFECReceived() int {
	if s.def == nil {
		return 0
	}
	return s.def.NumFECReceived()
}

// OldestUnreceivedAge returns how long the oldest unreceived index has been
// missing, used by the NACK policy's RTT_estimate gate. Returns false if
// every index has arrived.
func (s *Slot) OldestUnreceivedAge(now time.Time) (time.Duration, bool) {
	if s.State != StateOpen {
		return 0, false
	}
	for _, arrived := range s.arrivedBitmap {
		if !arrived {
			return now.Sub(s.CreationTime), true
		}
	}
	return 0, false
}
