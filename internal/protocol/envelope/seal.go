package envelope

import (
	"bytes"
	"crypto/ecdh"
	"encoding/json"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"

	"healthrelay/internal/crypto"
	"healthrelay/internal/domain"
)

// SealRaw encrypts plaintext for recipient under a fresh ephemeral key pair.
// It returns the ephemeral public JWK, the IV and the ciphertext.
func SealRaw(recipient *ecdh.PublicKey, plaintext []byte) (domain.JWK, []byte, []byte, error) {
	eph, err := crypto.GenerateP256()
	if err != nil {
		return domain.JWK{}, nil, nil, err
	}
	key, err := crypto.SharedSecret(eph, recipient)
	if err != nil {
		return domain.JWK{}, nil, nil, err
	}
	defer crypto.Wipe(key)

	iv, err := crypto.NewIV()
	if err != nil {
		return domain.JWK{}, nil, nil, err
	}
	ct, err := crypto.Seal(key, iv, plaintext)
	if err != nil {
		return domain.JWK{}, nil, nil, err
	}
	return crypto.PublicJWK(eph.PublicKey()), iv, ct, nil
}

// OpenRaw reverses SealRaw with the recipient's static private key.
func OpenRaw(ephemeral domain.JWK, iv, ciphertext []byte, priv *ecdh.PrivateKey) ([]byte, error) {
	pub, err := crypto.PublicKeyFromJWK(ephemeral)
	if err != nil {
		return nil, domain.Errorf(domain.ErrInvalidEnvelope, "ephemeral key: %v", err)
	}
	key, err := crypto.SharedSecret(priv, pub)
	if err != nil {
		return nil, err
	}
	defer crypto.Wipe(key)
	return crypto.Open(key, iv, ciphertext)
}

// Seal serialises payload as JSON and encrypts it for recipient as a version 1
// or version 2 envelope.
func Seal(payload any, recipient domain.JWK, version domain.EnvelopeVersion) (domain.Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return domain.Envelope{}, fmt.Errorf("envelope: marshal payload: %w", err)
	}
	return SealBytes(raw, recipient, version)
}

// SealBytes encrypts already-serialised JSON.
func SealBytes(raw []byte, recipient domain.JWK, version domain.EnvelopeVersion) (domain.Envelope, error) {
	pub, err := crypto.PublicKeyFromJWK(recipient)
	if err != nil {
		return domain.Envelope{}, domain.Errorf(domain.ErrInvalidPublicKey, "%v", err)
	}

	var plaintext []byte
	switch version {
	case domain.VersionPlain:
		plaintext = raw
	case domain.VersionGzip:
		if plaintext, err = compress(raw); err != nil {
			return domain.Envelope{}, err
		}
	default:
		return domain.Envelope{}, fmt.Errorf("envelope: cannot seal version %d as a single envelope", version)
	}

	eph, iv, ct, err := SealRaw(pub, plaintext)
	if err != nil {
		return domain.Envelope{}, err
	}
	return domain.Envelope{
		Version:            version,
		EphemeralPublicKey: eph,
		IV:                 iv,
		Ciphertext:         ct,
	}, nil
}

// Open decrypts a version 1 or version 2 envelope and returns the payload JSON.
func Open(env domain.Envelope, priv *ecdh.PrivateKey) (json.RawMessage, error) {
	if env.Version != domain.VersionPlain && env.Version != domain.VersionGzip {
		return nil, domain.Errorf(domain.ErrInvalidEnvelope, "version %d is not a single envelope", env.Version)
	}
	pt, err := OpenRaw(env.EphemeralPublicKey, env.IV, env.Ciphertext, priv)
	if err != nil {
		return nil, err
	}
	if env.Version == domain.VersionGzip {
		if pt, err = decompress(pt); err != nil {
			return nil, err
		}
	}
	if !json.Valid(pt) {
		return nil, fmt.Errorf("envelope: payload is not valid JSON")
	}
	return json.RawMessage(pt), nil
}

// OpenInto decrypts env and unmarshals the payload into v.
func OpenInto(env domain.Envelope, priv *ecdh.PrivateKey, v any) error {
	raw, err := Open(env, priv)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

func compress(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompress(b []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("envelope: gzip: %w", err)
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("envelope: gzip: %w", err)
	}
	return out, nil
}
