// Package cryptoframe implements the wire-level authenticated encryption
// used by every datagram on the channel: AES-128-CBC with a random IV,
// authenticated by an HMAC-SHA256 truncated to 128 bits over the ciphertext
// region.
package cryptoframe

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
)

const (
	KeySize    = 16
	IVSize     = 16
	AuthTagSize = 16
)

// Datagram is the on-wire encrypted envelope:
//
//	offset 0  : auth_tag[16]
//	offset 16 : cipher_len:u32 (little-endian)
//	offset 20 : iv[16]
//	offset 36 : ciphertext[cipher_len]
type Datagram struct {
	AuthTag    [AuthTagSize]byte
	CipherLen  uint32
	IV         [IVSize]byte
	Ciphertext []byte
}

// AuthFailed is returned when HMAC verification fails. The caller must
// drop the datagram and continue.
type AuthFailed struct{ Reason string }

func (e *AuthFailed) Error() string { return "cryptoframe: auth failed: " + e.Reason }

// MalformedPacket is returned when the datagram's self-declared lengths
// don't match reality.
type MalformedPacket struct{ Reason string }

func (e *MalformedPacket) Error() string { return "cryptoframe: malformed packet: " + e.Reason }

// CipherLen returns the AES-CBC ciphertext length for a plaintext of the
// given size, i.e. plaintextLen rounded up to the next block boundary with
// PKCS#7 padding (testable property #8 in).
func CipherLen(plaintextLen int) uint32 {
	n := plaintextLen + (aes.BlockSize - plaintextLen%aes.BlockSize)
	return uint32(n)
}

// Encrypt pads and encrypts plaintext under key with a fresh random IV, and
// authenticates (cipher_len, iv, ciphertext) with HMAC-SHA256 truncated to
// the first 128 bits.
func Encrypt(plaintext []byte, key [KeySize]byte) (Datagram, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return Datagram{}, fmt.Errorf("cryptoframe: new cipher: %w", err)
	}

	padded := pkcs7Pad(plaintext, aes.BlockSize)

	var d Datagram
	if _, err := rand.Read(d.IV[:]); err != nil {
		return Datagram{}, fmt.Errorf("cryptoframe: read iv: %w", err)
	}

	d.Ciphertext = make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, d.IV[:]).CryptBlocks(d.Ciphertext, padded)
	d.CipherLen = uint32(len(d.Ciphertext))

	d.AuthTag = authTag(key, d.CipherLen, d.IV, d.Ciphertext)
	return d, nil
}

// Decrypt verifies the HMAC over (cipher_len, iv, ciphertext) before
// decrypting.
func Decrypt(d Datagram, key [KeySize]byte) ([]byte, error) {
	if int(d.CipherLen) != len(d.Ciphertext) {
		return nil, &MalformedPacket{Reason: "cipher_len does not match ciphertext length"}
	}
	if d.CipherLen == 0 || d.CipherLen%aes.BlockSize != 0 {
		return nil, &MalformedPacket{Reason: "cipher_len is not a multiple of the block size"}
	}

	want := authTag(key, d.CipherLen, d.IV, d.Ciphertext)
	if !hmac.Equal(want[:], d.AuthTag[:]) {
		return nil, &AuthFailed{Reason: "hmac mismatch"}
	}

	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("cryptoframe: new cipher: %w", err)
	}

	plainPadded := make([]byte, len(d.Ciphertext))
	cipher.NewCBCDecrypter(block, d.IV[:]).CryptBlocks(plainPadded, d.Ciphertext)

	plain, err := pkcs7Unpad(plainPadded)
	if err != nil {
		return nil, &MalformedPacket{Reason: err.Error()}
	}
	return plain, nil
}

// Marshal serializes a Datagram to its exact wire layout.
func (d Datagram) Marshal() []byte {
	buf := make([]byte, AuthTagSize+4+IVSize+len(d.Ciphertext))
	copy(buf[0:16], d.AuthTag[:])
	binary.LittleEndian.PutUint32(buf[16:20], d.CipherLen)
	copy(buf[20:36], d.IV[:])
	copy(buf[36:], d.Ciphertext)
	return buf
}

// Unmarshal parses a Datagram from its wire layout. It validates the
// ciphertext length matches cipher_len exactly before returning, so a
// caller can safely HMAC-verify without over-reading.
func Unmarshal(b []byte) (Datagram, error) {
	if len(b) < 36 {
		return Datagram{}, &MalformedPacket{Reason: "datagram shorter than fixed header"}
	}
	var d Datagram
	copy(d.AuthTag[:], b[0:16])
	d.CipherLen = binary.LittleEndian.Uint32(b[16:20])
	copy(d.IV[:], b[20:36])

	rest := b[36:]
	if uint64(d.CipherLen) != uint64(len(rest)) {
		return Datagram{}, &MalformedPacket{Reason: "cipher_len does not match remaining bytes"}
	}
	d.Ciphertext = append([]byte(nil), rest...)
	return d, nil
}

func authTag(key [KeySize]byte, cipherLen uint32, iv [IVSize]byte, ciphertext []byte) [AuthTagSize]byte {
	mac := hmac.New(sha256.New, key[:])
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], cipherLen)
	mac.Write(lenBuf[:])
	mac.Write(iv[:])
	mac.Write(ciphertext)
	sum := mac.Sum(nil)

	var tag [AuthTagSize]byte
	copy(tag[:], sum[:AuthTagSize])
	return tag
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padding := bytes.Repeat([]byte{byte(padLen)}, padLen)
	return append(append([]byte(nil), data...), padding...)
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	n := len(data)
	if n == 0 {
		return nil, fmt.Errorf("empty plaintext")
	}
	padLen := int(data[n-1])
	if padLen == 0 || padLen > aes.BlockSize || padLen > n {
		return nil, fmt.Errorf("invalid pkcs7 padding")
	}
	for _, b := range data[n-padLen:] {
		if int(b) != padLen {
			return nil, fmt.Errorf("invalid pkcs7 padding")
		}
	}
	return data[:n-padLen], nil
}
