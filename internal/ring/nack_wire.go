package ring

import (
	"fmt"

	"github.com/pion/rtcp"
)

// EncodeNackWire packs one tick's NACK requests for a single frame into an
// RTCP transport-layer NACK packet, reusing rtcp.TransportLayerNack's
// bitmask-of-missing-sequence-numbers encoding instead of inventing a new
// wire shape: FrameID takes the place of the media SSRC, and each fragment
// index takes the place of a lost RTP sequence number.
func EncodeNackWire(frameID int32, indices []uint16) ([]byte, error) {
	pkt := &rtcp.TransportLayerNack{
		MediaSSRC: uint32(frameID),
		Nacks:     rtcp.NackPairsFromSequenceNumbers(indices),
	}
	b, err := pkt.Marshal()
	if err != nil {
		return nil, fmt.Errorf("ring: encode nack wire: %w", err)
	}
	return b, nil
}

// DecodeNackWire is the receive side of EncodeNackWire: it recovers the
// frame id and the full set of missing fragment indices from one packed
// RTCP transport-layer NACK packet.
func DecodeNackWire(b []byte) (frameID int32, indices []uint16, err error) {
	pkt := &rtcp.TransportLayerNack{}
	if err := pkt.Unmarshal(b); err != nil {
		return 0, nil, fmt.Errorf("ring: decode nack wire: %w", err)
	}
	return int32(pkt.MediaSSRC), pkt.PacketList(), nil
}

// EncodeNacksByFrame groups a tick's NackRequests by frame id and encodes
// one RTCP packet per frame, since TransportLayerNack carries a single
// media SSRC.
func EncodeNacksByFrame(reqs []NackRequest) (map[int32][]byte, error) {
	byFrame := make(map[int32][]uint16)
	for _, r := range reqs {
		byFrame[r.FrameID] = append(byFrame[r.FrameID], r.Index)
	}
	out := make(map[int32][]byte, len(byFrame))
	for frameID, indices := range byFrame {
		b, err := EncodeNackWire(frameID, indices)
		if err != nil {
			return nil, err
		}
		out[frameID] = b
	}
	return out, nil
}
