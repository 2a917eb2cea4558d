// Package reliable implements the ordered, lossless channel used for
// clipboard/file/control traffic: a length-prefixed TCP stream
// plus a websocket-framed bulk variant for browser-facing deployments.
package reliable

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/driftcast/beamcore/internal/transport"
)

// MaxFrameSize bounds a single reliable frame to guard against a
// corrupted or adversarial length prefix forcing an unbounded allocation.
const MaxFrameSize = 64 * 1024 * 1024

// readChunk is the read granularity calls out explicitly.
const readChunk = 4096

// Socket is a transport.Socket backed by a TCP stream framed with a
// 4-byte big-endian length prefix per message.
type Socket struct {
	conn net.Conn

	mu      sync.Mutex
	timeout time.Duration
	closed  bool

	recvMu sync.Mutex
	rbuf   []byte // growable receive buffer
}

var _ transport.Socket = (*Socket)(nil)

// Dial opens a reliable channel to remoteAddr.
func Dial(remoteAddr string, timeout time.Duration) (*Socket, error) {
	conn, err := net.DialTimeout("tcp", remoteAddr, timeout)
	if err != nil {
		return nil, fmt.Errorf("reliable: dial: %w", err)
	}
	return &Socket{conn: conn, timeout: transport.WaitTimeoutDefault}, nil
}

// Accept wraps an already-accepted TCP connection (the relay/host side of
// the handshake) as a reliable Socket.
func Accept(conn net.Conn) *Socket {
	return &Socket{conn: conn, timeout: transport.WaitTimeoutDefault}
}

// SendDatagram writes frame prefixed with its 4-byte big-endian length.
func (s *Socket) SendDatagram(frame []byte) error {
	if len(frame) > MaxFrameSize {
		return fmt.Errorf("reliable: frame of %d bytes exceeds MaxFrameSize %d", len(frame), MaxFrameSize)
	}
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return transport.ErrClosed
	}

	header := make([]byte, 4)
	binary.BigEndian.PutUint32(header, uint32(len(frame)))
	if _, err := s.conn.Write(header); err != nil {
		return err
	}
	_, err := s.conn.Write(frame)
	return err
}

// RecvDatagram reads one complete length-prefixed frame into an internal
// buffer, reallocated to the declared length when it is too small, and
// returns a copy of it.
func (s *Socket) RecvDatagram(timeout time.Duration) ([]byte, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, transport.ErrClosed
	}
	s.mu.Unlock()

	s.recvMu.Lock()
	defer s.recvMu.Unlock()

	if err := s.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, fmt.Errorf("reliable: set read deadline: %w", err)
	}

	header := make([]byte, 4)
	if err := s.readFull(header); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(header)
	if length > MaxFrameSize {
		return nil, fmt.Errorf("reliable: declared frame length %d exceeds MaxFrameSize", length)
	}

	if cap(s.rbuf) < int(length) {
		s.rbuf = make([]byte, length)
	}
	buf := s.rbuf[:length]
	if err := s.readFull(buf); err != nil {
		return nil, err
	}
	return append([]byte(nil), buf...), nil
}

func (s *Socket) readFull(buf []byte) error {
	read := 0
	for read < len(buf) {
		end := read + readChunk
		if end > len(buf) {
			end = len(buf)
		}
		n, err := s.conn.Read(buf[read:end])
		read += n
		if err != nil {
			if errors.Is(err, io.EOF) && read == len(buf) {
				return nil
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return transport.ErrTimeout
			}
			if errors.Is(err, os.ErrDeadlineExceeded) {
				return transport.ErrTimeout
			}
			return err
		}
	}
	return nil
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
