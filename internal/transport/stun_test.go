package transport

import (
	"encoding/binary"
	"testing"
)

func buildXORMappedResponse(txID []byte, ip [4]byte, port uint16) []byte {
	cookie := make([]byte, 4)
	binary.BigEndian.PutUint32(cookie, stunMagicCookie)

	xport := port ^ uint16(stunMagicCookie>>16)
	var xip [4]byte
	for i := range ip {
		xip[i] = ip[i] ^ cookie[i]
	}

	attr := make([]byte, 8)
	binary.BigEndian.PutUint16(attr[0:2], attrXORMappedAddr)
	attr[4] = 0
	attr[5] = 0x01
	binary.BigEndian.PutUint16(attr[2:4], 8) // attr length
	binary.BigEndian.PutUint16(attr[6:8], xport)
	attr = append(attr, xip[:]...)

	msg := make([]byte, 20)
	binary.BigEndian.PutUint16(msg[0:2], stunBindingSuccess)
	binary.BigEndian.PutUint16(msg[2:4], uint16(len(attr)))
	binary.BigEndian.PutUint32(msg[4:8], stunMagicCookie)
	copy(msg[8:20], txID)

	return append(msg, attr...)
}

func TestParseBindingResponseXORMapped(t *testing.T) {
	txID := make([]byte, 12)
	for i := range txID {
		txID[i] = byte(i + 1)
	}
	resp := buildXORMappedResponse(txID, [4]byte{203, 0, 113, 42}, 40000)

	addr, err := parseBindingResponse(resp, txID)
	if err != nil {
		t.Fatalf("parseBindingResponse: %v", err)
	}
	if addr != "203.0.113.42:40000" {
		t.Fatalf("got %q, want 203.0.113.42:40000", addr)
	}
}

func TestParseBindingResponseRejectsMismatchedTransaction(t *testing.T) {
	txID := make([]byte, 12)
	resp := buildXORMappedResponse(txID, [4]byte{1, 2, 3, 4}, 1)

	otherTxID := make([]byte, 12)
	otherTxID[0] = 0xFF
	if _, err := parseBindingResponse(resp, otherTxID); err == nil {
		t.Fatal("expected error for mismatched transaction id")
	}
}

func TestParseBindingResponseRejectsShortPacket(t *testing.T) {
	if _, err := parseBindingResponse([]byte{1, 2, 3}, make([]byte, 12)); err == nil {
		t.Fatal("expected error for short packet")
	}
}
