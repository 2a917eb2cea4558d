// Package unreliable implements the best-effort datagram channel over UDP:
// media, pings, and input ride this path and tolerate loss and reorder.
package unreliable

import (
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/driftcast/beamcore/internal/transport"
)

// MaxDatagramSize bounds a single UDP read/write: MAX_PAYLOAD plus the
// crypto envelope and fragment header overhead.
const MaxDatagramSize = 1500

// Socket is a transport.Socket backed by a UDP socket, either connected
// (Dial) or bound to any sender (Listen).
type Socket struct {
	conn      *net.UDPConn
	connected bool

	mu         sync.Mutex
	timeout    time.Duration
	closed     bool
	lastRemote *net.UDPAddr // most recent sender, tracked when !connected
}

var _ transport.Socket = (*Socket)(nil)

// Dial connects a UDP socket to remoteAddr, binding an ephemeral local
// port unless localAddr is non-empty.
func Dial(localAddr, remoteAddr string) (*Socket, error) {
	raddr, err := net.ResolveUDPAddr("udp", remoteAddr)
	if err != nil {
		return nil, fmt.Errorf("unreliable: resolve remote: %w", err)
	}

	var laddr *net.UDPAddr
	if localAddr != "" {
		laddr, err = net.ResolveUDPAddr("udp", localAddr)
		if err != nil {
			return nil, fmt.Errorf("unreliable: resolve local: %w", err)
		}
	}

	conn, err := net.DialUDP("udp", laddr, raddr)
	if err != nil {
		return nil, fmt.Errorf("unreliable: dial: %w", err)
	}
	return &Socket{conn: conn, connected: true, timeout: transport.WaitTimeoutDefault}, nil
}

// Listen binds a UDP socket that later calls to RecvDatagram/SendDatagram
// operate against any peer that has sent it a datagram (used by the relay
// test harness, which has no a-priori remote address).
func Listen(bindAddr string) (*Socket, error) {
	addr, err := net.ResolveUDPAddr("udp", bindAddr)
	if err != nil {
		return nil, fmt.Errorf("unreliable: resolve bind addr: %w", err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("unreliable: listen: %w", err)
	}
	return &Socket{conn: conn, timeout: transport.WaitTimeoutDefault}, nil
}

func (s *Socket) SendDatagram(frame []byte) error {
	if len(frame) > MaxDatagramSize {
		return fmt.Errorf("unreliable: frame of %d bytes exceeds MaxDatagramSize %d", len(frame), MaxDatagramSize)
	}
	s.mu.Lock()
	closed := s.closed
	connected := s.connected
	remote := s.lastRemote
	s.mu.Unlock()
	if closed {
		return transport.ErrClosed
	}

	if connected {
		_, err := s.conn.Write(frame)
		return err
	}
	// An unconnected (Listen-backed) socket has no default peer: reply to
	// whichever address RecvDatagram last observed.
	if remote == nil {
		return fmt.Errorf("unreliable: no peer to send to yet (nothing received)")
	}
	_, err := s.conn.WriteToUDP(frame, remote)
	return err
}

func (s *Socket) RecvDatagram(timeout time.Duration) ([]byte, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, transport.ErrClosed
	}
	connected := s.connected
	s.mu.Unlock()

	if err := s.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, fmt.Errorf("unreliable: set read deadline: %w", err)
	}

	buf := make([]byte, MaxDatagramSize)
	var n int
	var err error
	if connected {
		n, err = s.conn.Read(buf)
	} else {
		var from *net.UDPAddr
		n, from, err = s.conn.ReadFromUDP(buf)
		if err == nil {
			s.mu.Lock()
			s.lastRemote = from
			s.mu.Unlock()
		}
	}
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, transport.ErrTimeout
		}
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return nil, transport.ErrTimeout
		}
		return nil, err
	}
	return buf[:n], nil
}

func (s *Socket) SetTimeout(d time.Duration) {
	s.mu.Lock()
	s.timeout = d
	s.mu.Unlock()
}

func (s *Socket) Shutdown() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	return s.conn.Close()
}
