package audio

import "github.com/driftcast/beamcore/internal/fragment"

// MaxIndicesPerFrame bounds an audio frame's fragment count.
const MaxIndicesPerFrame = 3

// ShortCircuitTrailingIndices fills in synthetic zero-length fragments for
// every index below the one actually delivered, when the first fragment
// received already announces it is the frame's last index (index+1 ==
// num_indices). This lets a ring.Buffer complete the frame immediately
// instead of waiting on indices the sender never intended to send —audio
// frames that fit in one or two fragments commonly arrive with only the
// first fragment populated and the rest implied empty.
func ShortCircuitTrailingIndices(first fragment.Fragment) []fragment.Fragment {
	if int(first.Index)+1 != int(first.NumIndices) {
		return []fragment.Fragment{first}
	}

	out := make([]fragment.Fragment, 0, first.Index+1)
	for i := uint16(0); i < first.Index; i++ {
		out = append(out, fragment.Fragment{
			Kind:          first.Kind,
			FrameID:       first.FrameID,
			Index:         i,
			NumIndices:    first.NumIndices,
			NumFECIndices: first.NumFECIndices,
			PayloadSize:   0,
			Data:          nil,
		})
	}
	out = append(out, first)
	return out
}
