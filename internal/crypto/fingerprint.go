package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/gowebpki/jcs"

	"healthrelay/internal/domain"
)

// Thumbprint returns the RFC 7638 SHA-256 thumbprint of an EC JWK,
// base64url encoded.
func Thumbprint(k domain.JWK) (string, error) {
	sum, err := thumbprintSum(k)
	if err != nil {
		return "", err
	}
	return b64url(sum[:]), nil
}

// Fingerprint returns a short hex fingerprint of a public JWK for display.
//
// It truncates the thumbprint digest to 10 bytes (20 hex chars).
func Fingerprint(k domain.JWK) (domain.Fingerprint, error) {
	sum, err := thumbprintSum(k)
	if err != nil {
		return "", err
	}
	return domain.Fingerprint(hex.EncodeToString(sum[:10])), nil
}

// thumbprintSum hashes the JCS form of the required EC members only.
func thumbprintSum(k domain.JWK) ([sha256.Size]byte, error) {
	raw, err := json.Marshal(map[string]string{
		"crv": k.Crv,
		"kty": k.Kty,
		"x":   k.X,
		"y":   k.Y,
	})
	if err != nil {
		return [sha256.Size]byte{}, err
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return [sha256.Size]byte{}, err
	}
	return sha256.Sum256(canonical), nil
}
