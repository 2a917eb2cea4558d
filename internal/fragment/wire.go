package fragment

import (
	"encoding/binary"
	"fmt"
)

// headerSize is the fixed portion of the plaintext packet wire format:
// kind(4) + frame_id(4) + index(2) + num_indices(2) + num_fec_indices(2) +
// payload_size(4) + is_retransmit(1).
const headerSize = 4 + 4 + 2 + 2 + 2 + 4 + 1

// Marshal encodes a Fragment as the plaintext packet internal/cryptoframe
// encrypts before it goes on the wire: fixed header followed by Data.
func (f Fragment) Marshal() []byte {
	out := make([]byte, headerSize+len(f.Data))
	binary.LittleEndian.PutUint32(out[0:4], uint32(f.Kind))
	binary.LittleEndian.PutUint32(out[4:8], uint32(f.FrameID))
	binary.LittleEndian.PutUint16(out[8:10], f.Index)
	binary.LittleEndian.PutUint16(out[10:12], f.NumIndices)
	binary.LittleEndian.PutUint16(out[12:14], f.NumFECIndices)
	binary.LittleEndian.PutUint32(out[14:18], f.PayloadSize)
	if f.IsRetransmit {
		out[18] = 1
	}
	copy(out[headerSize:], f.Data)
	return out
}

// Unmarshal parses a Fragment from the plaintext bytes internal/cryptoframe
// hands back from Decrypt. It rejects a header shorter than headerSize and
// a payload_size that disagrees with the bytes actually present.
func Unmarshal(b []byte) (Fragment, error) {
	if len(b) < headerSize {
		return Fragment{}, fmt.Errorf("fragment: packet shorter than %d-byte header (%d bytes)", headerSize, len(b))
	}

	f := Fragment{
		Kind:          Kind(binary.LittleEndian.Uint32(b[0:4])),
		FrameID:       int32(binary.LittleEndian.Uint32(b[4:8])),
		Index:         binary.LittleEndian.Uint16(b[8:10]),
		NumIndices:    binary.LittleEndian.Uint16(b[10:12]),
		NumFECIndices: binary.LittleEndian.Uint16(b[12:14]),
		PayloadSize:   binary.LittleEndian.Uint32(b[14:18]),
		IsRetransmit:  b[18] != 0,
	}

	rest := b[headerSize:]
	if uint64(f.PayloadSize) != uint64(len(rest)) {
		return Fragment{}, fmt.Errorf("fragment: payload_size %d does not match %d remaining bytes", f.PayloadSize, len(rest))
	}
	if f.PayloadSize > MaxPayload {
		return Fragment{}, fmt.Errorf("fragment: payload_size %d exceeds MaxPayload %d", f.PayloadSize, MaxPayload)
	}

	f.Data = append([]byte(nil), rest...)
	return f, nil
}
