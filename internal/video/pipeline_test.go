package video

import (
	"errors"
	"testing"
	"time"
)

type fakeDecoder struct {
	failDecode bool
	closed     bool
}

func (d *fakeDecoder) Decode(bitstream []byte) (PixelBuffer, error) {
	if d.failDecode {
		return PixelBuffer{}, errors.New("decode failed")
	}
	return PixelBuffer{Width: 1280, Height: 720, Format: FormatNV12, Planes: [][]byte{bitstream}}, nil
}
func (d *fakeDecoder) Close() error { d.closed = true; return nil }

type fakeKeyframer struct {
	requested int
}

func (k *fakeKeyframer) RequestKeyframe() { k.requested++ }

func newTestPipeline(t *testing.T, dec *fakeDecoder, kf *fakeKeyframer) *Pipeline {
	t.Helper()
	p, err := NewPipeline(func(w, h int, codec string, bitrateBps int) (Decoder, error) {
		return dec, nil
	}, kf, 1_500_000)
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	return p
}

func TestFeedFrameConstructsDecoderOnKeyframe(t *testing.T) {
	dec := &fakeDecoder{}
	kf := &fakeKeyframer{}
	p := newTestPipeline(t, dec, kf)

	err := p.FeedFrame(CompletedFrame{
		FrameID: 0, Bitstream: []byte("kf"), IsKeyFrame: true,
		Width: 1280, Height: 720, Codec: "vp8",
	})
	if err != nil {
		t.Fatalf("FeedFrame: %v", err)
	}
	if !p.PendingRender() {
		t.Fatal("expected pending render after successful decode")
	}
	dims := p.Dims()
	if dims.Width != 1280 || dims.Height != 720 {
		t.Fatalf("unexpected dims %dx%d", dims.Width, dims.Height)
	}
}

func TestSetBitrateHintFlowsIntoNextDecoderConstruction(t *testing.T) {
	dec := &fakeDecoder{}
	kf := &fakeKeyframer{}
	var gotBitrate int
	p, err := NewPipeline(func(w, h int, codec string, bitrateBps int) (Decoder, error) {
		gotBitrate = bitrateBps
		return dec, nil
	}, kf, 1_500_000)
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}

	p.SetBitrateHint(3_000_000)
	if p.BitrateHint() != 3_000_000 {
		t.Fatalf("expected BitrateHint to reflect the update, got %d", p.BitrateHint())
	}

	if err := p.FeedFrame(CompletedFrame{IsKeyFrame: true, Width: 1280, Height: 720, Codec: "vp8"}); err != nil {
		t.Fatalf("FeedFrame: %v", err)
	}
	if gotBitrate != 3_000_000 {
		t.Fatalf("expected decoder factory to see the updated hint, got %d", gotBitrate)
	}
}

func TestFeedFrameRequestsKeyframeOnDimensionChangeWithoutKeyframe(t *testing.T) {
	dec := &fakeDecoder{}
	kf := &fakeKeyframer{}
	p := newTestPipeline(t, dec, kf)

	// Non-keyframe with new dimensions before any decoder exists.
	err := p.FeedFrame(CompletedFrame{
		FrameID: 0, Bitstream: []byte("x"), IsKeyFrame: false,
		Width: 1280, Height: 720, Codec: "vp8",
	})
	if err != nil {
		t.Fatalf("FeedFrame: %v", err)
	}
	if kf.requested != 1 {
		t.Fatalf("expected 1 keyframe request, got %d", kf.requested)
	}
	if p.PendingRender() {
		t.Fatal("expected no pending render without a decoder")
	}
}

func TestFeedFrameDecodeFailureDoesNotTearDownDecoder(t *testing.T) {
	dec := &fakeDecoder{}
	kf := &fakeKeyframer{}
	p := newTestPipeline(t, dec, kf)

	if err := p.FeedFrame(CompletedFrame{IsKeyFrame: true, Width: 640, Height: 480, Codec: "vp8"}); err != nil {
		t.Fatalf("FeedFrame keyframe: %v", err)
	}

	dec.failDecode = true
	err := p.FeedFrame(CompletedFrame{IsKeyFrame: false, Width: 640, Height: 480, Codec: "vp8", Bitstream: []byte("bad")})
	if err == nil {
		t.Fatal("expected decode error")
	}
	if dec.closed {
		t.Fatal("decoder should not be closed on a mere decode failure")
	}
}

func TestPresentRendersLoadingAnimationWhenNothingPending(t *testing.T) {
	p := newTestPipeline(t, &fakeDecoder{}, &fakeKeyframer{})
	surf := &recordingSurface{}
	if err := p.Present(surf, 1280, 720); err != nil {
		t.Fatalf("Present: %v", err)
	}
	if !surf.loadingCalled {
		t.Fatal("expected loading animation when nothing pending")
	}
}

type recordingSurface struct {
	loadingCalled        bool
	presentedW, presentedH int
}

func (s *recordingSurface) UpdateTexture(buf PixelBuffer) error { return nil }
func (s *recordingSurface) Present(w, h int) error {
	s.presentedW, s.presentedH = w, h
	return nil
}
func (s *recordingSurface) RenderLoadingAnimation() error { s.loadingCalled = true; return nil }

func TestPresentUsesWindowDimsWithinSlack(t *testing.T) {
	p := newTestPipeline(t, &fakeDecoder{}, &fakeKeyframer{})
	if err := p.FeedFrame(CompletedFrame{IsKeyFrame: true, Width: 1280, Height: 720, Codec: "vp8"}); err != nil {
		t.Fatalf("FeedFrame: %v", err)
	}
	surf := &recordingSurface{}
	if err := p.Present(surf, 1280, 720); err != nil {
		t.Fatalf("Present: %v", err)
	}
	if surf.presentedW != 1280 || surf.presentedH != 720 {
		t.Fatalf("expected window dims, got %dx%d", surf.presentedW, surf.presentedH)
	}
}

func TestPresentFallsBackToDecodedSizeOutsideSlack(t *testing.T) {
	p := newTestPipeline(t, &fakeDecoder{}, &fakeKeyframer{})
	if err := p.FeedFrame(CompletedFrame{IsKeyFrame: true, Width: 1280, Height: 720, Codec: "vp8"}); err != nil {
		t.Fatalf("FeedFrame: %v", err)
	}
	surf := &recordingSurface{}
	// Window much smaller than decoded frame: outside slack.
	if err := p.Present(surf, 640, 480); err != nil {
		t.Fatalf("Present: %v", err)
	}
	if surf.presentedW != 1280 || surf.presentedH != 720 {
		t.Fatalf("expected fallback to decoded size, got %dx%d", surf.presentedW, surf.presentedH)
	}
}

func TestResizeThrottlesAndCoalesces(t *testing.T) {
	p := newTestPipeline(t, &fakeDecoder{}, &fakeKeyframer{})
	base := time.Now()

	dims, sent := p.Resize(1287, 723, base)
	if !sent || dims == nil {
		t.Fatal("expected first resize to send immediately")
	}
	if dims.Width != 1280 || dims.Height != 722 {
		t.Fatalf("unexpected rounding: %+v", dims)
	}

	_, sent2 := p.Resize(1000, 700, base.Add(50*time.Millisecond))
	if sent2 {
		t.Fatal("expected second resize to be throttled")
	}

	flushed, ok := p.FlushPendingResize(base.Add(250 * time.Millisecond))
	if !ok || flushed == nil {
		t.Fatal("expected coalesced resize to flush after interval")
	}
	if flushed.Width != 1000-1000%8 {
		t.Fatalf("unexpected coalesced width: %d", flushed.Width)
	}
}
