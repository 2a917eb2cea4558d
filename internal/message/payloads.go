package message

import "encoding/binary"

// NackPayload names a single missing (frame_id, index) pair carried by the
// simple NACK kind; ring.NackRequest is the in-process equivalent this
// wraps for the wire.
type NackPayload struct {
	Kind    uint32
	FrameID int32
	Index   uint16
}

func (p NackPayload) Marshal() []byte {
	b := make([]byte, 10)
	binary.LittleEndian.PutUint32(b[0:4], p.Kind)
	binary.LittleEndian.PutUint32(b[4:8], uint32(p.FrameID))
	binary.LittleEndian.PutUint16(b[8:10], p.Index)
	return b
}

func DecodeNackPayload(b []byte) NackPayload {
	return NackPayload{
		Kind:    binary.LittleEndian.Uint32(b[0:4]),
		FrameID: int32(binary.LittleEndian.Uint32(b[4:8])),
		Index:   binary.LittleEndian.Uint16(b[8:10]),
	}
}

// BitratePayload mirrors internal/congestion.BitrateMessage on the wire.
type BitratePayload struct {
	TargetBps uint32
	BurstBps  uint32
	FECRatioX1000 uint16 // fec_ratio * 1000, since the wire has no float field
}

func (p BitratePayload) Marshal() []byte {
	b := make([]byte, 10)
	binary.LittleEndian.PutUint32(b[0:4], p.TargetBps)
	binary.LittleEndian.PutUint32(b[4:8], p.BurstBps)
	binary.LittleEndian.PutUint16(b[8:10], p.FECRatioX1000)
	return b
}

func DecodeBitratePayload(b []byte) BitratePayload {
	return BitratePayload{
		TargetBps:     binary.LittleEndian.Uint32(b[0:4]),
		BurstBps:      binary.LittleEndian.Uint32(b[4:8]),
		FECRatioX1000: binary.LittleEndian.Uint16(b[8:10]),
	}
}

// AudioFrequencyPayload announces the sample rate the server's audio
// stream was (re)encoded at.
type AudioFrequencyPayload struct {
	SampleRateHz uint32
}

func (p AudioFrequencyPayload) Marshal() []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b[0:4], p.SampleRateHz)
	return b
}

func DecodeAudioFrequencyPayload(b []byte) AudioFrequencyPayload {
	return AudioFrequencyPayload{SampleRateHz: binary.LittleEndian.Uint32(b[0:4])}
}

// DimensionsPayload is the throttled resize notification.
type DimensionsPayload struct {
	Width, Height uint16
}

func (p DimensionsPayload) Marshal() []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint16(b[0:2], p.Width)
	binary.LittleEndian.PutUint16(b[2:4], p.Height)
	return b
}

func DecodeDimensionsPayload(b []byte) DimensionsPayload {
	return DimensionsPayload{
		Width:  binary.LittleEndian.Uint16(b[0:2]),
		Height: binary.LittleEndian.Uint16(b[2:4]),
	}
}

// StreamResetPayload names the kind and last failed frame id.
type StreamResetPayload struct {
	Kind         uint32
	LastFailedID int32
}

func (p StreamResetPayload) Marshal() []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint32(b[0:4], p.Kind)
	binary.LittleEndian.PutUint32(b[4:8], uint32(p.LastFailedID))
	return b
}

func DecodeStreamResetPayload(b []byte) StreamResetPayload {
	return StreamResetPayload{
		Kind:         binary.LittleEndian.Uint32(b[0:4]),
		LastFailedID: int32(binary.LittleEndian.Uint32(b[4:8])),
	}
}
