package audio

import (
	"errors"
	"testing"
)

type fakeQueue struct {
	bytes     int
	submitted [][]byte
}

func (q *fakeQueue) QueueBytes() int { return q.bytes }
func (q *fakeQueue) Submit(pcm []byte) error {
	q.submitted = append(q.submitted, pcm)
	return nil
}

type fakeDecoder struct {
	failNext           bool
	lastSampleRateHz   int
	lastBitrateHintBps int
}

func (d *fakeDecoder) Decode(frame []byte) ([]byte, error) {
	if d.failNext {
		return nil, errors.New("decode failed")
	}
	return append([]byte(nil), frame...), nil
}
func (d *fakeDecoder) Reset(sampleRateHz, bitrateHintBps int) error {
	d.lastSampleRateHz, d.lastBitrateHintBps = sampleRateHz, bitrateHintBps
	return nil
}

func marks() Watermarks { return Watermarks{Lower: 1000, Target: 2000, Upper: 5000} }

func TestTickSubmitsReadyFrame(t *testing.T) {
	q := &fakeQueue{bytes: 3000}
	p, err := NewPlayout(q, &fakeDecoder{}, marks(), 500, 64_000)
	if err != nil {
		t.Fatalf("NewPlayout: %v", err)
	}

	called := false
	next := func() ([]byte, bool) {
		called = true
		return []byte("frame-0"), true
	}
	if err := p.Tick(0, next); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if !called {
		t.Fatal("expected next() to be invoked")
	}
	if len(q.submitted) != 1 {
		t.Fatalf("expected 1 submission, got %d", len(q.submitted))
	}
	if p.LastPlayedID() != 0 {
		t.Fatalf("expected lastPlayedID 0, got %d", p.LastPlayedID())
	}
}

func TestTickEntersBufferingBelowLowerWatermark(t *testing.T) {
	q := &fakeQueue{bytes: 0}
	p, err := NewPlayout(q, &fakeDecoder{}, marks(), 500, 64_000)
	if err != nil {
		t.Fatalf("NewPlayout: %v", err)
	}

	next := func() ([]byte, bool) { return []byte("x"), true }
	if err := p.Tick(0, next); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if !p.Buffering() {
		t.Fatal("expected buffering to engage below lower watermark")
	}
	if len(q.submitted) != 0 {
		t.Fatal("expected no submission while buffering and below target")
	}
}

func TestTickDropsFrameAboveUpperWatermark(t *testing.T) {
	q := &fakeQueue{bytes: 9000}
	p, err := NewPlayout(q, &fakeDecoder{}, marks(), 500, 64_000)
	if err != nil {
		t.Fatalf("NewPlayout: %v", err)
	}

	called := false
	next := func() ([]byte, bool) { called = true; return []byte("x"), true }
	if err := p.Tick(5, next); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if called {
		t.Fatal("expected frame to be dropped, not decoded")
	}
	if !p.FlushTriggered() {
		t.Fatal("expected flushTriggered to be set")
	}
	if p.LastPlayedID() != 0 {
		t.Fatalf("expected lastPlayedID advanced by drop, got %d", p.LastPlayedID())
	}
}

func TestSetSampleRateAndBitrateHintFlowIntoDecoderReset(t *testing.T) {
	q := &fakeQueue{}
	dec := &fakeDecoder{}
	p, err := NewPlayout(q, dec, marks(), 500, 64_000)
	if err != nil {
		t.Fatalf("NewPlayout: %v", err)
	}

	if err := p.SetSampleRate(48000); err != nil {
		t.Fatalf("SetSampleRate: %v", err)
	}
	if dec.lastSampleRateHz != 48000 || dec.lastBitrateHintBps != 64_000 {
		t.Fatalf("expected Reset(48000, 64000), got Reset(%d, %d)", dec.lastSampleRateHz, dec.lastBitrateHintBps)
	}

	if err := p.SetBitrateHint(96_000); err != nil {
		t.Fatalf("SetBitrateHint: %v", err)
	}
	if dec.lastSampleRateHz != 48000 || dec.lastBitrateHintBps != 96_000 {
		t.Fatalf("expected Reset(48000, 96000), got Reset(%d, %d)", dec.lastSampleRateHz, dec.lastBitrateHintBps)
	}
	if p.BitrateHint() != 96_000 {
		t.Fatalf("expected BitrateHint() to report 96000, got %d", p.BitrateHint())
	}
}

func TestTickReturnsDecodeError(t *testing.T) {
	q := &fakeQueue{bytes: 3000}
	p, err := NewPlayout(q, &fakeDecoder{failNext: true}, marks(), 500, 64_000)
	if err != nil {
		t.Fatalf("NewPlayout: %v", err)
	}

	next := func() ([]byte, bool) { return []byte("x"), true }
	if err := p.Tick(0, next); err == nil {
		t.Fatal("expected decode error to propagate")
	}
}

