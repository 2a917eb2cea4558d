package message

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"

	"github.com/driftcast/beamcore/internal/fragment"
)

// headerSize is the fixed portion of an encoded envelope: id(4) + kind(2)
// + correlation id(16).
const headerSize = 4 + 2 + 16

// Envelope is one message's header plus its kind-specific payload. Most
// kinds have a fixed-size payload; clipboard_chunk, file_metadata,
// file_data, and url carry a variable-length trailing section.
type Envelope struct {
	ID            uint32
	Kind          Kind
	CorrelationID uuid.UUID
	Payload       []byte
}

// Marshal encodes an envelope as: id:u32 LE, kind:u16 LE, correlation_id
// [16]byte, payload[...]. Plain encoding/binary framing, the same
// fixed-field-then-variable-blob idiom the wire datagram itself uses.
func (e Envelope) Marshal() []byte {
	out := make([]byte, headerSize+len(e.Payload))
	binary.LittleEndian.PutUint32(out[0:4], e.ID)
	binary.LittleEndian.PutUint16(out[4:6], uint16(e.Kind))
	copy(out[6:22], e.CorrelationID[:])
	copy(out[22:], e.Payload)
	return out
}

// Unmarshal decodes an envelope previously produced by Marshal.
func Unmarshal(b []byte) (Envelope, error) {
	if len(b) < headerSize {
		return Envelope{}, fmt.Errorf("message: envelope too short (%d bytes)", len(b))
	}
	var e Envelope
	e.ID = binary.LittleEndian.Uint32(b[0:4])
	e.Kind = Kind(binary.LittleEndian.Uint16(b[4:6]))
	copy(e.CorrelationID[:], b[6:22])
	if len(b) > headerSize {
		e.Payload = append([]byte(nil), b[headerSize:]...)
	}
	return e, nil
}

// FitsUnreliableDatagram enforces the over-size check assigns
// unreliable messages: total encoded size must fit in one datagram.
func (e Envelope) FitsUnreliableDatagram() bool {
	return headerSize+len(e.Payload) <= fragment.MaxPayload
}
