package syncloop

import (
	"errors"
	"testing"
	"time"
)

type fakeReliableSocket struct {
	updateErr error
	updates   int
}

func (s *fakeReliableSocket) Update() error {
	s.updates++
	return s.updateErr
}

func TestRunOnceSleepsRemainderWhenIdle(t *testing.T) {
	sock := &fakeReliableSocket{}
	loop := &ReliableLoop{Socket: sock}

	start := time.Now()
	fakeNow := func() time.Time { return start.Add(5 * time.Millisecond) }

	wait, err := loop.RunOnce(start, fakeNow)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if wait != Cadence-5*time.Millisecond {
		t.Fatalf("expected wait %v, got %v", Cadence-5*time.Millisecond, wait)
	}
}

func TestRunOnceSkipsSleepWhenWorkWasDone(t *testing.T) {
	sock := &fakeReliableSocket{}
	loop := &ReliableLoop{
		Socket:   sock,
		Dispatch: func() bool { return true },
	}
	start := time.Now()
	wait, err := loop.RunOnce(start, func() time.Time { return start.Add(time.Millisecond) })
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if wait != 0 {
		t.Fatalf("expected no sleep when work was done, got %v", wait)
	}
}

func TestRunOncePropagatesSocketError(t *testing.T) {
	wantErr := errors.New("socket dead")
	sock := &fakeReliableSocket{updateErr: wantErr}
	loop := &ReliableLoop{Socket: sock}

	_, err := loop.RunOnce(time.Now(), time.Now)
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected wantErr, got %v", err)
	}
}
