package fragment

import (
	"bytes"
	"testing"
)

func TestFragmentMarshalUnmarshalRoundTrip(t *testing.T) {
	cases := []Fragment{
		{Kind: KindVideo, FrameID: 42, Index: 0, NumIndices: 5, NumFECIndices: 1, PayloadSize: 4, Data: []byte("abcd")},
		{Kind: KindAudio, FrameID: 0, Index: 3, NumIndices: 4, NumFECIndices: 0, PayloadSize: 0, IsRetransmit: true},
		{Kind: KindMessage, FrameID: -7, Index: 1, NumIndices: 1, NumFECIndices: 0, PayloadSize: 3, Data: []byte{1, 2, 3}},
		{Kind: KindGPU, FrameID: 9001, Index: 65535 - 1, NumIndices: 65535, NumFECIndices: 100, PayloadSize: 2, Data: []byte{0xFF, 0x00}},
	}

	for _, want := range cases {
		b := want.Marshal()
		got, err := Unmarshal(b)
		if err != nil {
			t.Fatalf("Unmarshal: %v", err)
		}
		if got.Kind != want.Kind || got.FrameID != want.FrameID || got.Index != want.Index ||
			got.NumIndices != want.NumIndices || got.NumFECIndices != want.NumFECIndices ||
			got.PayloadSize != want.PayloadSize || got.IsRetransmit != want.IsRetransmit {
			t.Fatalf("round trip mismatch: got %+v, want %+v", got, want)
		}
		if !bytes.Equal(got.Data, want.Data) {
			t.Fatalf("data mismatch: got %v, want %v", got.Data, want.Data)
		}
	}
}

func TestUnmarshalRejectsShortHeader(t *testing.T) {
	if _, err := Unmarshal(make([]byte, headerSize-1)); err == nil {
		t.Fatal("expected error for a header shorter than headerSize")
	}
}

func TestUnmarshalRejectsPayloadSizeMismatch(t *testing.T) {
	f := Fragment{Kind: KindVideo, FrameID: 1, Index: 0, NumIndices: 1, PayloadSize: 4, Data: []byte("abcd")}
	b := f.Marshal()
	if _, err := Unmarshal(b[:len(b)-1]); err == nil {
		t.Fatal("expected error when payload_size disagrees with the remaining bytes")
	}
}
