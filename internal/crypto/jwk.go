package crypto

import (
	"crypto/ecdh"
	"encoding/base64"
	"errors"
	"fmt"

	"healthrelay/internal/domain"
)

const (
	coordBytes = 32
	kty        = "EC"
	crv        = "P-256"
)

var errNotP256 = errors.New("jwk: not an EC P-256 key")

// PublicKeyFromJWK imports the public half of an EC P-256 JWK.
// Points not on the curve are rejected.
func PublicKeyFromJWK(k domain.JWK) (*ecdh.PublicKey, error) {
	if k.Kty != kty || k.Crv != crv {
		return nil, errNotP256
	}
	x, err := decodeCoord("x", k.X)
	if err != nil {
		return nil, err
	}
	y, err := decodeCoord("y", k.Y)
	if err != nil {
		return nil, err
	}
	raw := make([]byte, 0, 1+2*coordBytes)
	raw = append(raw, 0x04)
	raw = append(raw, x...)
	raw = append(raw, y...)
	pub, err := ecdh.P256().NewPublicKey(raw)
	if err != nil {
		return nil, fmt.Errorf("jwk: %w", err)
	}
	return pub, nil
}

// PrivateKeyFromJWK imports an EC P-256 private JWK. When x and y are present
// they must match the public key derived from d.
func PrivateKeyFromJWK(k domain.JWK) (*ecdh.PrivateKey, error) {
	if k.Kty != kty || k.Crv != crv {
		return nil, errNotP256
	}
	d, err := decodeCoord("d", k.D)
	if err != nil {
		return nil, err
	}
	defer Wipe(d)
	priv, err := ecdh.P256().NewPrivateKey(d)
	if err != nil {
		return nil, fmt.Errorf("jwk: %w", err)
	}
	if k.X != "" || k.Y != "" {
		want := PublicJWK(priv.PublicKey())
		if want.X != k.X || want.Y != k.Y {
			return nil, errors.New("jwk: public coordinates do not match d")
		}
	}
	return priv, nil
}

// PublicJWK exports pub as an EC P-256 JWK.
func PublicJWK(pub *ecdh.PublicKey) domain.JWK {
	raw := pub.Bytes() // 0x04 || X || Y
	return domain.JWK{
		Kty: kty,
		Crv: crv,
		X:   b64url(raw[1 : 1+coordBytes]),
		Y:   b64url(raw[1+coordBytes:]),
	}
}

// PrivateJWK exports priv, including its public coordinates.
func PrivateJWK(priv *ecdh.PrivateKey) domain.JWK {
	k := PublicJWK(priv.PublicKey())
	k.D = b64url(priv.Bytes())
	return k
}

func decodeCoord(name, v string) ([]byte, error) {
	if v == "" {
		return nil, fmt.Errorf("jwk: missing %q", name)
	}
	b, err := base64.RawURLEncoding.DecodeString(v)
	if err != nil {
		return nil, fmt.Errorf("jwk: decode %q: %w", name, err)
	}
	if len(b) != coordBytes {
		return nil, fmt.Errorf("jwk: %q: want %d bytes, got %d", name, coordBytes, len(b))
	}
	return b, nil
}

func b64url(b []byte) string { return base64.RawURLEncoding.EncodeToString(b) }
