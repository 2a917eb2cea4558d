// Package syncloop implements the two packet sync loops: a hot unreliable
// loop that drains the socket and feeds completed frames to the
// renderer/playout engine, and a reliable loop on a 25ms cadence for
// clipboard/file/control traffic.
package syncloop

import (
	"time"

	"github.com/driftcast/beamcore/internal/fragment"
)

// Socket is the minimal capability the unreliable loop needs: a
// non-blocking poll that reports whether the connection is still alive.
type Socket interface {
	// Update drains pending datagrams, dispatching each to onDatagram.
	// It returns false once the connection is judged dead.
	Update(onDatagram func([]byte)) bool
}

// RendererWantsFrame is asked, per media kind, whether the loop should pop
// another completed frame this cycle ("do you want another frame given N
// pending?" in).
type RendererWantsFrame func(kind fragment.Kind, numPending int) bool

// FrameSource pops the next completed frame for kind, if any.
type FrameSource func(kind fragment.Kind) (frameID int32, payload []byte, ok bool)

// DeliverFrame hands a popped frame to the renderer/playout engine.
type DeliverFrame func(kind fragment.Kind, frameID int32, payload []byte)

// ControlDrain handles at most one pending control message per cycle.
type ControlDrain func() (handled bool)

// MediaKinds is the ordered set of kinds the unreliable loop services
// each cycle.
var MediaKinds = []fragment.Kind{fragment.KindVideo, fragment.KindAudio, fragment.KindGPU}

// UnreliableLoop drives one iteration of the hot sync loop. It holds no
// goroutine of its own — Run below is a thin convenience wrapper; callers
// embedding this in a realtime-priority thread can call RunOnce directly.
type UnreliableLoop struct {
	Socket       Socket
	WantsFrame   RendererWantsFrame
	PopFrame     FrameSource
	Deliver      DeliverFrame
	DrainControl ControlDrain
	NumPending   func(kind fragment.Kind) int

	OnDatagram func([]byte)

	// PolicyTick, when set, is invoked at most once every
	// PolicyTickInterval (default 10ms) from within RunOnce, so the
	// ring/congestion policy pass runs on the same hot-loop thread
	// without running once per datagram.
	PolicyTick         func(now time.Time)
	PolicyTickInterval time.Duration

	lastPolicyTick time.Time
	disconnected   bool
}

// defaultPolicyTickInterval is used when PolicyTickInterval is unset.
const defaultPolicyTickInterval = 10 * time.Millisecond

// RunOnce executes exactly one hot-loop cycle: socket update, one control
// message drain, an at-most-once-per-interval policy tick, then one frame
// pop+deliver attempt per media kind. Returns false once the socket is
// judged dead, at which point the caller should sleep 1ms before calling
// again.
func (l *UnreliableLoop) RunOnce() (alive bool) {
	alive = l.Socket.Update(l.onDatagram)
	if !alive {
		l.disconnected = true
		return false
	}
	l.disconnected = false

	if l.DrainControl != nil {
		l.DrainControl()
	}

	if l.PolicyTick != nil {
		now := time.Now()
		interval := l.PolicyTickInterval
		if interval <= 0 {
			interval = defaultPolicyTickInterval
		}
		if now.Sub(l.lastPolicyTick) >= interval {
			l.lastPolicyTick = now
			l.PolicyTick(now)
		}
	}

	for _, kind := range MediaKinds {
		pending := 0
		if l.NumPending != nil {
			pending = l.NumPending(kind)
		}
		if !l.WantsFrame(kind, pending) {
			continue
		}
		frameID, payload, ok := l.PopFrame(kind)
		if !ok {
			continue
		}
		l.Deliver(kind, frameID, payload)
	}
	return true
}

func (l *UnreliableLoop) onDatagram(b []byte) {
	if l.OnDatagram != nil {
		l.OnDatagram(b)
	}
}

// Disconnected reports whether the most recent RunOnce found the socket
// dead.
func (l *UnreliableLoop) Disconnected() bool { return l.disconnected }

// Run drives RunOnce until stop is closed, sleeping 1ms after each dead
// cycle back-off policy. Intended to run on its own
// realtime-priority OS thread.
func (l *UnreliableLoop) Run(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}
		if !l.RunOnce() {
			time.Sleep(1 * time.Millisecond)
		}
	}
}
