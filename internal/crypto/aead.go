package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
)

const (
	// KeyBytes is the AES-256 key length.
	KeyBytes = 32
	// IVBytes is the AES-GCM nonce length.
	IVBytes = 12
)

// ErrDecrypt is returned when authentication fails; the cause is deliberately
// not distinguished.
var ErrDecrypt = errors.New("aead: message authentication failed")

// NewIV returns a fresh random 96-bit IV.
func NewIV() ([]byte, error) {
	iv := make([]byte, IVBytes)
	if _, err := rand.Read(iv); err != nil {
		return nil, err
	}
	return iv, nil
}

// Seal encrypts plaintext under key with AES-256-GCM.
func Seal(key, iv, plaintext []byte) ([]byte, error) {
	aead, err := newGCM(key, iv)
	if err != nil {
		return nil, err
	}
	return aead.Seal(nil, iv, plaintext, nil), nil
}

// Open authenticates and decrypts ciphertext under key with AES-256-GCM.
func Open(key, iv, ciphertext []byte) ([]byte, error) {
	aead, err := newGCM(key, iv)
	if err != nil {
		return nil, err
	}
	pt, err := aead.Open(nil, iv, ciphertext, nil)
	if err != nil {
		return nil, ErrDecrypt
	}
	return pt, nil
}

func newGCM(key, iv []byte) (cipher.AEAD, error) {
	if len(key) != KeyBytes {
		return nil, fmt.Errorf("aead: want %d-byte key, got %d", KeyBytes, len(key))
	}
	if len(iv) != IVBytes {
		return nil, fmt.Errorf("aead: want %d-byte iv, got %d", IVBytes, len(iv))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
