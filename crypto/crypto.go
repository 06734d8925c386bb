// Package crypto provides AES-GCM encryption for sensitive memory fields at
// rest. A memory snapshot's metadata side-table stores only the sealed
// blobs for fields routed through a Cipher, so a leaked snapshot does not
// expose their content without the key.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/abiusch/penny-assistant-sub000/memory"
)

const (
	// NonceSize is the GCM standard nonce size (12 bytes).
	NonceSize = 12
	// KeySize is the required key length for AES-256-GCM (32 bytes).
	KeySize = 32
)

var (
	ErrInvalidKeySize     = fmt.Errorf("key must be exactly %d bytes", KeySize)
	ErrCiphertextTooShort = errors.New("ciphertext too short")
)

// Encrypt seals plaintext with AES-256-GCM under the given 32-byte key.
// The returned blob has the nonce prepended: [nonce(12)] + [ciphertext].
func Encrypt(key, plaintext []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKeySize
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}

	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens a blob produced by Encrypt using the same 32-byte key.
func Decrypt(key, blob []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKeySize
	}
	if len(blob) < NonceSize {
		return nil, ErrCiphertextTooShort
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}

	nonce, data := blob[:NonceSize], blob[NonceSize:]
	plaintext, err := gcm.Open(nil, nonce, data, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}
	return plaintext, nil
}

// ParseMasterKey decodes a 64-character hex string (32 bytes / 256 bits)
// into a raw key. Callers read the key material from env or config; this
// function has no environment dependencies.
//
// Generate a suitable key with:
//
//	openssl rand -hex 32
func ParseMasterKey(rawHex string) ([]byte, error) {
	raw := strings.TrimSpace(rawHex)
	if raw == "" {
		return nil, fmt.Errorf("master key is empty")
	}

	key, err := hex.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid hex in master key: %w", err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("master key must be %d bytes (%d hex chars), got %d bytes",
			KeySize, KeySize*2, len(key))
	}
	return key, nil
}

// Cipher is a memory.Cipher sealing fields under one fixed key.
type Cipher struct {
	key []byte
}

// NewCipher creates a Cipher from a raw 32-byte key.
func NewCipher(key []byte) (*Cipher, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKeySize
	}
	return &Cipher{key: append([]byte(nil), key...)}, nil
}

// NewCipherFromHex creates a Cipher from a 64-character hex master key.
func NewCipherFromHex(rawHex string) (*Cipher, error) {
	key, err := ParseMasterKey(rawHex)
	if err != nil {
		return nil, err
	}
	return NewCipher(key)
}

// Seal implements memory.Cipher.
func (c *Cipher) Seal(plaintext []byte) ([]byte, error) {
	return Encrypt(c.key, plaintext)
}

// Open implements memory.Cipher.
func (c *Cipher) Open(blob []byte) ([]byte, error) {
	return Decrypt(c.key, blob)
}

var _ memory.Cipher = (*Cipher)(nil)
