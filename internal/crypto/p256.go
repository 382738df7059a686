package crypto

import (
	"crypto/ecdh"
	"crypto/rand"
	"fmt"
)

// GenerateP256 returns a fresh P-256 ECDH key pair.
func GenerateP256() (*ecdh.PrivateKey, error) {
	return ecdh.P256().GenerateKey(rand.Reader)
}

// SharedSecret computes ECDH(priv, pub) and returns the 32-byte x-coordinate.
func SharedSecret(priv *ecdh.PrivateKey, pub *ecdh.PublicKey) ([]byte, error) {
	if priv == nil || pub == nil {
		return nil, fmt.Errorf("ecdh: nil key")
	}
	secret, err := priv.ECDH(pub)
	if err != nil {
		return nil, fmt.Errorf("ecdh: %w", err)
	}
	return secret, nil
}
