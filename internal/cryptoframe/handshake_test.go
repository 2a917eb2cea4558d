package cryptoframe

import (
	"net"
	"testing"
	"time"
)

func TestHandshakeSucceedsWithSharedKey(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	k := key(5)
	errCh := make(chan error, 2)

	go func() { errCh <- Handshake(a, k, time.Second) }()
	go func() { errCh <- Handshake(b, k, time.Second) }()

	for i := 0; i < 2; i++ {
		if err := <-errCh; err != nil {
			t.Fatalf("handshake leg failed: %v", err)
		}
	}
}

func TestHandshakeFailsWithMismatchedKeys(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	errCh := make(chan error, 2)
	go func() { errCh <- Handshake(a, key(1), time.Second) }()
	go func() { errCh <- Handshake(b, key(2), time.Second) }()

	first := <-errCh
	second := <-errCh
	if first == nil && second == nil {
		t.Fatal("expected at least one leg to fail with mismatched keys")
	}
}
