package audio

import (
	"testing"

	"github.com/driftcast/beamcore/internal/fragment"
)

func TestShortCircuitTrailingIndicesNoOpWhenNotLast(t *testing.T) {
	first := fragment.Fragment{Index: 0, NumIndices: 3}
	out := ShortCircuitTrailingIndices(first)
	if len(out) != 1 {
		t.Fatalf("expected no synthetic fragments, got %d", len(out))
	}
}

func TestShortCircuitTrailingIndicesFillsGap(t *testing.T) {
	first := fragment.Fragment{
		Kind:       fragment.KindAudio,
		FrameID:    7,
		Index:      2,
		NumIndices: 3,
		Data:       []byte("payload"),
	}
	out := ShortCircuitTrailingIndices(first)
	if len(out) != 3 {
		t.Fatalf("expected 3 fragments, got %d", len(out))
	}
	for i := 0; i < 2; i++ {
		if out[i].Index != uint16(i) || out[i].PayloadSize != 0 || out[i].Data != nil {
			t.Fatalf("fragment %d not synthetic zero-length: %+v", i, out[i])
		}
	}
	if out[2].Index != 2 || string(out[2].Data) != "payload" {
		t.Fatalf("last fragment not preserved: %+v", out[2])
	}
}
