// Package fragment implements the packet fragmenter / FEC codec: it splits
// a frame payload into fixed-size indexed fragments, optionally appends
// fountain-style FEC repair fragments, and reconstructs the payload from
// any sufficient subset on receive.
package fragment

import (
	"fmt"
	"math"

	"github.com/driftcast/beamcore/internal/fragment/fec"
)

// MaxPayload is the largest data region a single wire fragment may carry.
const MaxPayload = 1285

// Kind identifies which stream a fragment belongs to.
type Kind uint32

const (
	KindAudio   Kind = 0
	KindVideo   Kind = 1
	KindMessage Kind = 2
	KindGPU     Kind = 3
)

func (k Kind) String() string {
	switch k {
	case KindAudio:
		return "audio"
	case KindVideo:
		return "video"
	case KindMessage:
		return "message"
	case KindGPU:
		return "gpu"
	default:
		return fmt.Sprintf("kind(%d)", uint32(k))
	}
}

// Fragment is one wire datagram's plaintext payload, minus the
// crypto envelope which internal/cryptoframe owns.
type Fragment struct {
	Kind          Kind
	FrameID       int32
	Index         uint16
	NumIndices    uint16
	NumFECIndices uint16
	PayloadSize   uint32 // length of Data for this specific fragment
	IsRetransmit  bool
	Data          []byte
}

// NumOriginal returns how many of NumIndices fragments carry payload bytes
// directly rather than FEC parity.
func (f Fragment) NumOriginal() int { return int(f.NumIndices) - int(f.NumFECIndices) }

// Split splits payload into num_orig fixed-size shards (the last may be
// short) plus num_fec FEC repair shards:
//
//	num_orig = ceil(n/S)
//	num_fec  = ceil(num_orig * ρ / (1 - ρ))
func Split(payload []byte, fragSize int, fecRatio float64, frameID int32, kind Kind) ([]Fragment, error) {
	if fragSize <= 0 || fragSize > MaxPayload {
		return nil, fmt.Errorf("fragment: fragSize %d out of range (1..%d)", fragSize, MaxPayload)
	}
	if fecRatio < 0 || fecRatio > 0.7 {
		return nil, fmt.Errorf("fragment: fecRatio %v out of range [0, 0.7]", fecRatio)
	}

	n := len(payload)
	numOrig := 1
	if n > 0 {
		numOrig = int(math.Ceil(float64(n) / float64(fragSize)))
	}

	numFEC := 0
	if fecRatio > 0 {
		numFEC = int(math.Ceil(float64(numOrig) * fecRatio / (1 - fecRatio)))
	}
	numTotal := numOrig + numFEC
	if numTotal > math.MaxUint16 {
		return nil, fmt.Errorf("fragment: frame requires %d fragments, exceeds u16 index space", numTotal)
	}

	out := make([]Fragment, 0, numTotal)

	// Padded original shards, used only to feed the FEC encoder; the wire
	// fragments below carry the true (possibly short) slice lengths.
	var paddedOriginals [][]byte
	if numFEC > 0 {
		paddedOriginals = make([][]byte, numOrig)
	}

	for i := 0; i < numOrig; i++ {
		start := i * fragSize
		end := start + fragSize
		if end > n {
			end = n
		}
		slice := payload[start:end]

		out = append(out, Fragment{
			Kind:          kind,
			FrameID:       frameID,
			Index:         uint16(i),
			NumIndices:    uint16(numTotal),
			NumFECIndices: uint16(numFEC),
			PayloadSize:   uint32(len(slice)),
			Data:          append([]byte(nil), slice...),
		})

		if numFEC > 0 {
			padded := make([]byte, fragSize)
			copy(padded, slice)
			paddedOriginals[i] = padded
		}
	}

	if numFEC > 0 {
		enc, err := fec.NewEncoder(paddedOriginals)
		if err != nil {
			return nil, fmt.Errorf("fragment: build FEC encoder: %w", err)
		}
		for j := 0; j < numFEC; j++ {
			repair := enc.Repair(j)
			out = append(out, Fragment{
				Kind:          kind,
				FrameID:       frameID,
				Index:         uint16(numOrig + j),
				NumIndices:    uint16(numTotal),
				NumFECIndices: uint16(numFEC),
				PayloadSize:   uint32(fragSize),
				Data:          repair,
			})
		}
	}

	return out, nil
}
