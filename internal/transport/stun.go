package transport

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"net"
	"time"
)

// Minimal RFC 5389 STUN binding request/response, just enough to learn
// our public reflexive address before a direct-connect or hole-punch
// attempt. Hand-rolled: fixed-size header fields written with
// encoding/binary, no framework required for a wire format this small.
const (
	stunMagicCookie    uint32 = 0x2112A442
	stunBindingRequest uint16 = 0x0001
	stunBindingSuccess uint16 = 0x0101
	attrXORMappedAddr  uint16 = 0x0020
	attrMappedAddr     uint16 = 0x0001
)

// PublicEndpoint discovers this host's server-reflexive UDP address by
// sending a single STUN binding request to a public server.
func PublicEndpoint(localConn *net.UDPConn, stunServer string, timeout time.Duration) (string, error) {
	raddr, err := net.ResolveUDPAddr("udp", stunServer)
	if err != nil {
		return "", fmt.Errorf("transport: resolve stun server: %w", err)
	}

	txID := make([]byte, 12)
	if _, err := rand.Read(txID); err != nil {
		return "", fmt.Errorf("transport: generate transaction id: %w", err)
	}

	req := make([]byte, 20)
	binary.BigEndian.PutUint16(req[0:2], stunBindingRequest)
	binary.BigEndian.PutUint16(req[2:4], 0) // message length, no attributes
	binary.BigEndian.PutUint32(req[4:8], stunMagicCookie)
	copy(req[8:20], txID)

	if err := localConn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return "", fmt.Errorf("transport: set stun deadline: %w", err)
	}
	if _, err := localConn.WriteToUDP(req, raddr); err != nil {
		return "", fmt.Errorf("transport: send stun request: %w", err)
	}

	buf := make([]byte, 512)
	n, _, err := localConn.ReadFromUDP(buf)
	if err != nil {
		return "", fmt.Errorf("transport: read stun response: %w", err)
	}
	return parseBindingResponse(buf[:n], txID)
}

func parseBindingResponse(resp, wantTxID []byte) (string, error) {
	if len(resp) < 20 {
		return "", fmt.Errorf("transport: stun response too short (%d bytes)", len(resp))
	}
	msgType := binary.BigEndian.Uint16(resp[0:2])
	if msgType != stunBindingSuccess {
		return "", fmt.Errorf("transport: unexpected stun message type 0x%04x", msgType)
	}
	msgLen := binary.BigEndian.Uint16(resp[2:4])
	cookie := binary.BigEndian.Uint32(resp[4:8])
	if cookie != stunMagicCookie {
		return "", fmt.Errorf("transport: stun response missing magic cookie")
	}
	for i := 0; i < 12; i++ {
		if resp[8+i] != wantTxID[i] {
			return "", fmt.Errorf("transport: stun transaction id mismatch")
		}
	}

	body := resp[20:]
	if int(msgLen) > len(body) {
		return "", fmt.Errorf("transport: stun message length exceeds packet")
	}
	body = body[:msgLen]

	for len(body) >= 4 {
		attrType := binary.BigEndian.Uint16(body[0:2])
		attrLen := binary.BigEndian.Uint16(body[2:4])
		if int(attrLen)+4 > len(body) {
			return "", fmt.Errorf("transport: truncated stun attribute")
		}
		val := body[4 : 4+attrLen]

		switch attrType {
		case attrXORMappedAddr:
			if addr, err := decodeXORMappedAddr(val); err == nil {
				return addr, nil
			}
		case attrMappedAddr:
			if addr, err := decodeMappedAddr(val); err == nil {
				return addr, nil
			}
		}

		padded := int(attrLen)
		if padded%4 != 0 {
			padded += 4 - padded%4
		}
		body = body[4+padded:]
	}
	return "", fmt.Errorf("transport: stun response carried no mapped address")
}

func decodeXORMappedAddr(val []byte) (string, error) {
	if len(val) < 8 || val[1] != 0x01 {
		return "", fmt.Errorf("transport: unsupported xor-mapped-address family")
	}
	xport := binary.BigEndian.Uint16(val[2:4]) ^ uint16(stunMagicCookie>>16)
	var ip [4]byte
	cookie := make([]byte, 4)
	binary.BigEndian.PutUint32(cookie, stunMagicCookie)
	for i := 0; i < 4; i++ {
		ip[i] = val[4+i] ^ cookie[i]
	}
	return fmt.Sprintf("%d.%d.%d.%d:%d", ip[0], ip[1], ip[2], ip[3], xport), nil
}

func decodeMappedAddr(val []byte) (string, error) {
	if len(val) < 8 || val[1] != 0x01 {
		return "", fmt.Errorf("transport: unsupported mapped-address family")
	}
	port := binary.BigEndian.Uint16(val[2:4])
	return fmt.Sprintf("%d.%d.%d.%d:%d", val[4], val[5], val[6], val[7], port), nil
}
