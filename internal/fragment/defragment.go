package fragment

import (
	"fmt"

	"github.com/driftcast/beamcore/internal/fragment/fec"
)

// StaleOrDuplicate is returned when a fragment repeats an index already
// accepted into the defragmenter.
type StaleOrDuplicate struct{ Reason string }

func (e *StaleOrDuplicate) Error() string { return "fragment: " + e.Reason }

// Defragmenter accumulates the fragments of a single frame_id and
// reconstructs the original payload once the completion rule is satisfied:
//
//	complete when numOriginalReceived == numOrig                (direct path)
//	           or numOriginalReceived + numFECReceived >= numOrig (FEC path)
type Defragmenter struct {
	fragSize      int
	numOrig       int
	numFEC        int
	numTotal      int
	arrived       []bool // index -> seen, covers both original and FEC indices
	originals     map[int][]byte
	fecShards     map[int][]byte
	numOrigRecv   int
	numFECRecv    int
	lastOrigSize  uint32 // PayloadSize of the highest-index original fragment seen
	haveLastOrig  bool
}

// NewDefragmenter starts accumulating a frame whose header fields (sizing)
// were learned from its first fragment.
func NewDefragmenter(fragSize, numOrig, numFEC int) *Defragmenter {
	numTotal := numOrig + numFEC
	return &Defragmenter{
		fragSize:  fragSize,
		numOrig:   numOrig,
		numFEC:    numFEC,
		numTotal:  numTotal,
		arrived:   make([]bool, numTotal),
		originals: make(map[int][]byte),
		fecShards: make(map[int][]byte),
	}
}

// Accept records fragment f. It returns nil the first time this
// exact index is seen, or a *StaleOrDuplicate error if the index repeated.
func (d *Defragmenter) Accept(f Fragment) error {
	idx := int(f.Index)
	if idx < 0 || idx >= d.numTotal {
		return fmt.Errorf("fragment: index %d out of range [0,%d)", idx, d.numTotal)
	}
	if d.arrived[idx] {
		return &StaleOrDuplicate{Reason: fmt.Sprintf("duplicate index %d", idx)}
	}
	d.arrived[idx] = true

	if idx < d.numOrig {
		d.originals[idx] = append([]byte(nil), f.Data...)
		d.numOrigRecv++
		if idx == d.numOrig-1 {
			d.lastOrigSize = f.PayloadSize
			d.haveLastOrig = true
		}
	} else {
		d.fecShards[idx] = append([]byte(nil), f.Data...)
		d.numFECRecv++
	}
	return nil
}

// NumOriginalReceived and NumFECReceived expose the accumulation counters
// from the Data Model for ring-buffer bookkeeping.
func (d *Defragmenter) NumOriginalReceived() int { return d.numOrigRecv }
func (d *Defragmenter) NumFECReceived() int      { return d.numFECRecv }

// Complete reports whether the frame has met the completion rule.
func (d *Defragmenter) Complete() bool {
	if d.numOrigRecv == d.numOrig {
		return true
	}
	return d.numOrigRecv+d.numFECRecv >= d.numOrig
}

// Reconstruct assembles the final payload. If every original fragment has
// already arrived this is a pure concatenation (the direct path); otherwise
// it invokes the FEC decoder over whatever mix of original and repair
// shards has arrived.
func (d *Defragmenter) Reconstruct() ([]byte, error) {
	if !d.Complete() {
		return nil, fmt.Errorf("fragment: frame not complete (%d/%d original, %d fec)",
			d.numOrigRecv, d.numOrig, d.numFECRecv)
	}

	var shards [][]byte
	if d.numOrigRecv == d.numOrig {
		shards = make([][]byte, d.numOrig)
		for i := 0; i < d.numOrig; i++ {
			shards[i] = d.originals[i]
		}
	} else {
		dec := fec.NewDecoder(d.numOrig, d.fragSize)
		for idx, data := range d.originals {
			dec.Add(idx, data)
		}
		for idx, data := range d.fecShards {
			dec.Add(idx, data)
		}
		recovered, err := dec.Reconstruct()
		if err != nil {
			return nil, fmt.Errorf("fragment: fec reconstruct: %w", err)
		}
		shards = recovered
	}

	total := 0
	for i, s := range shards {
		if i == d.numOrig-1 && d.haveLastOrig {
			total += int(d.lastOrigSize)
		} else if i == d.numOrig-1 {
			// Last shard's true length was never observed directly (it was
			// only ever recovered via FEC); fall back to its full width.
			total += len(s)
		} else {
			total += d.fragSize
		}
	}

	out := make([]byte, 0, total)
	for i, s := range shards {
		if i == d.numOrig-1 {
			if d.haveLastOrig {
				out = append(out, s[:d.lastOrigSize]...)
			} else {
				out = append(out, s...)
			}
		} else {
			out = append(out, s[:d.fragSize]...)
		}
	}
	return out, nil
}
