package cryptoframe

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"time"

	"golang.org/x/crypto/pbkdf2"
)

// HandshakeFailed is returned when the mutual key-possession proof fails
// or times out.
type HandshakeFailed struct{ Reason string }

func (e *HandshakeFailed) Error() string { return "cryptoframe: handshake failed: " + e.Reason }

// confirmationKey derives a key-confirmation MAC key from the channel key,
// domain-separated via PBKDF2 so the raw pre-shared key is never reused
// bit-for-bit as both the cipher key and the handshake signing key.
func confirmationKey(channelKey [KeySize]byte) []byte {
	return pbkdf2.Key(channelKey[:], []byte("beamcore-handshake-v1"), 4096, 32, sha256.New)
}

// signPeerIV signs peerIV under the confirmation key: HMAC(key, peer_iv || key),
// proving possession of key without transmitting it.
func signPeerIV(channelKey [KeySize]byte, peerIV [IVSize]byte) []byte {
	ck := confirmationKey(channelKey)
	mac := hmac.New(sha256.New, ck)
	mac.Write(peerIV[:])
	mac.Write(ck)
	return mac.Sum(nil)
}

// transport is the minimal byte-stream capability the handshake needs; both
// the reliable socket and a raw net.Conn satisfy it.
type transport interface {
	io.Reader
	io.Writer
}

// Handshake performs the mutual proof-of-key-possession exchange described
// in over an already-associated transport, within the given
// per-round timeout budget. It proves both peers hold the same pre-shared
// key without ever transmitting it.
func Handshake(conn transport, key [KeySize]byte, timeout time.Duration) error {
	var localIV [IVSize]byte
	if _, err := rand.Read(localIV[:]); err != nil {
		return fmt.Errorf("cryptoframe: handshake: read iv: %w", err)
	}

	type deadliner interface{ SetDeadline(time.Time) error }
	d, hasDeadline := conn.(deadliner)
	if hasDeadline {
		_ = d.SetDeadline(time.Now().Add(timeout))
	}

	// Step 1: exchange random IVs with zeroed signature slots.
	outbound := make([]byte, IVSize+32)
	copy(outbound[:IVSize], localIV[:])
	if _, err := conn.Write(outbound); err != nil {
		return &HandshakeFailed{Reason: fmt.Sprintf("send iv: %v", err)}
	}

	inbound := make([]byte, IVSize+32)
	if _, err := io.ReadFull(conn, inbound); err != nil {
		return &HandshakeFailed{Reason: fmt.Sprintf("recv iv: %v", err)}
	}
	var peerIV [IVSize]byte
	copy(peerIV[:], inbound[:IVSize])

	// Step 2: sign the peer's IV and send the signature back.
	if hasDeadline {
		_ = d.SetDeadline(time.Now().Add(timeout))
	}
	sig := signPeerIV(key, peerIV)
	if _, err := conn.Write(sig); err != nil {
		return &HandshakeFailed{Reason: fmt.Sprintf("send sig: %v", err)}
	}

	peerSig := make([]byte, 32)
	if _, err := io.ReadFull(conn, peerSig); err != nil {
		return &HandshakeFailed{Reason: fmt.Sprintf("recv sig: %v", err)}
	}

	// Step 3: verify the returned signature against our own IV.
	expect := signPeerIV(key, localIV)
	if !hmac.Equal(expect, peerSig) {
		return &HandshakeFailed{Reason: "key confirmation mismatch"}
	}

	return nil
}
