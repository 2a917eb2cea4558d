package telemetry

import "testing"

func TestLedgerCountersIncrement(t *testing.T) {
	l := New("sess-1", nil)
	l.RecordAuthFailed("bad hmac")
	l.RecordMalformedPacket("short packet")
	l.RecordStaleDuplicate()
	l.RecordFrameDropped(7, "ring full")
	l.RecordDecodeError(8, errTest{})
	l.RecordNackSent()
	l.RecordKeyframeRequest(9)
	l.RecordStreamReset(10, "video")

	if l.Stats.AuthFailed.Load() != 1 {
		t.Fatalf("AuthFailed = %d, want 1", l.Stats.AuthFailed.Load())
	}
	if l.Stats.MalformedPackets.Load() != 1 {
		t.Fatalf("MalformedPackets = %d, want 1", l.Stats.MalformedPackets.Load())
	}
	if l.Stats.StaleDuplicates.Load() != 1 {
		t.Fatalf("StaleDuplicates = %d, want 1", l.Stats.StaleDuplicates.Load())
	}
	if l.Stats.FramesDropped.Load() != 1 {
		t.Fatalf("FramesDropped = %d, want 1", l.Stats.FramesDropped.Load())
	}
	if l.Stats.DecodeErrors.Load() != 1 {
		t.Fatalf("DecodeErrors = %d, want 1", l.Stats.DecodeErrors.Load())
	}
	if l.Stats.NacksSent.Load() != 1 {
		t.Fatalf("NacksSent = %d, want 1", l.Stats.NacksSent.Load())
	}
	if l.Stats.KeyframeRequests.Load() != 1 {
		t.Fatalf("KeyframeRequests = %d, want 1", l.Stats.KeyframeRequests.Load())
	}
	if l.Stats.StreamResets.Load() != 1 {
		t.Fatalf("StreamResets = %d, want 1", l.Stats.StreamResets.Load())
	}
}

func TestRecentEventsCapturesNotableActivity(t *testing.T) {
	l := New("sess-2", nil)
	l.RecordAuthFailed("bad hmac")
	l.RecordKeyframeRequest(3)

	events := l.RecentEvents()
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d: %v", len(events), events)
	}
}

type errTest struct{}

func (errTest) Error() string { return "test error" }
