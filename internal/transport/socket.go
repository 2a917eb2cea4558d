// Package transport defines the datagram socket contract shared by the
// unreliable (UDP) and reliable (length-prefixed/websocket) channels and
// the STUN-mediated handshake used to establish both.
package transport

import (
	"errors"
	"time"
)

// ErrTimeout is returned by RecvDatagram when no datagram arrives before
// the requested timeout elapses. Callers distinguish it from hard socket
// errors to decide whether to retry.
var ErrTimeout = errors.New("transport: recv timeout")

// ErrClosed is returned by Send/Recv after Shutdown has been called.
var ErrClosed = errors.New("transport: socket closed")

// WaitTimeoutDefault is the initial per-call read timeout both socket
// variants start with before SetTimeout is called explicitly.
const WaitTimeoutDefault = 200 * time.Millisecond

// Socket is the datagram abstraction both channel variants implement.
// Unreliable loses and reorders datagrams; reliable preserves order and
// delivery but at higher latency. Neither variant fragments internally —
// callers hand it pre-sized wire frames.
type Socket interface {
	SendDatagram(frame []byte) error
	RecvDatagram(timeout time.Duration) ([]byte, error)
	SetTimeout(d time.Duration)
	Shutdown() error
}

// Endpoint identifies the two addresses a socket connects.
type Endpoint struct {
	LocalAddr  string
	RemoteAddr string
}

// WaitWithRetry calls recv repeatedly until it returns a datagram, a
// non-timeout error, or the overall budget is exhausted. An
// EINTR-equivalent (a transient error satisfying errors.Is(err,
// ErrTimeout)) consumes only the time actually elapsed, not the full
// requested duration, so an interrupted wait keeps its remaining budget.
func WaitWithRetry(recv func(time.Duration) ([]byte, error), budget time.Duration) ([]byte, error) {
	deadline := time.Now().Add(budget)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, ErrTimeout
		}
		data, err := recv(remaining)
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, ErrTimeout) {
			return nil, err
		}
		if time.Now().After(deadline) {
			return nil, ErrTimeout
		}
	}
}
