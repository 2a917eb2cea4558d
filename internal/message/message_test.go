package message

import (
	"bytes"
	"errors"
	"testing"
)

func TestEnvelopeMarshalUnmarshalRoundTrip(t *testing.T) {
	var counter Counter
	r := NewRouter(&counter)

	env := r.Build(KindBitrate, BitratePayload{TargetBps: 8_000_000, BurstBps: 100_000_000, FECRatioX1000: 200}.Marshal())
	encoded := env.Marshal()

	got, err := Unmarshal(encoded)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.ID != env.ID || got.Kind != env.Kind || got.CorrelationID != env.CorrelationID {
		t.Fatalf("header mismatch: got %+v, want %+v", got, env)
	}
	if !bytes.Equal(got.Payload, env.Payload) {
		t.Fatal("payload mismatch")
	}
}

func TestCounterIsMonotonic(t *testing.T) {
	var c Counter
	ids := make(map[uint32]bool)
	for i := 0; i < 1000; i++ {
		id := c.Next()
		if ids[id] {
			t.Fatalf("duplicate id %d", id)
		}
		ids[id] = true
	}
}

func TestDispatchRoutesClipboardReliable(t *testing.T) {
	var counter Counter
	r := NewRouter(&counter)
	env := r.Build(KindClipboardChunk, []byte("clip"))

	var calledReliable bool
	err := r.Dispatch(env,
		func(e Envelope) error { calledReliable = true; return nil },
		func(e Envelope) error { return errors.New("should not route unreliable") },
	)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if !calledReliable {
		t.Fatal("expected clipboard chunk on reliable channel")
	}
}

func TestDispatchRejectsOversizedUnreliableMessage(t *testing.T) {
	var counter Counter
	r := NewRouter(&counter)
	env := r.Build(KindMouseMotion, make([]byte, 2000))

	err := r.Dispatch(env,
		func(e Envelope) error { return nil },
		func(e Envelope) error { return nil },
	)
	if err == nil {
		t.Fatal("expected error for oversized unreliable envelope")
	}
}

func TestNackPayloadRoundTrip(t *testing.T) {
	p := NackPayload{Kind: 1, FrameID: 42, Index: 7}
	got := DecodeNackPayload(p.Marshal())
	if got != p {
		t.Fatalf("got %+v, want %+v", got, p)
	}
}
