package envelope

import (
	"encoding/json"

	"healthrelay/internal/crypto"
	"healthrelay/internal/domain"
	"healthrelay/internal/schema"
)

// gcmTagBytes is the minimum ciphertext length (the AES-GCM tag).
const gcmTagBytes = 16

// Limits bounds what the relay accepts. Ciphertext is opaque to the relay,
// so limits exist only to cap resource use.
type Limits struct {
	MaxCiphertextBytes int
	MaxChunks          int
}

// DefaultLimits are used when a zero Limits is supplied.
var DefaultLimits = Limits{
	MaxCiphertextBytes: 16 << 20,
	MaxChunks:          4096,
}

// Validate checks that env is structurally complete for its version.
// It never inspects ciphertext contents.
func Validate(env domain.Envelope, lim Limits) error {
	if lim.MaxCiphertextBytes == 0 {
		lim.MaxCiphertextBytes = DefaultLimits.MaxCiphertextBytes
	}
	if lim.MaxChunks == 0 {
		lim.MaxChunks = DefaultLimits.MaxChunks
	}

	if err := validateKeyAndIV("envelope", env.EphemeralPublicKey, env.IV); err != nil {
		return err
	}

	switch env.Version {
	case domain.VersionPlain, domain.VersionGzip:
		if len(env.Ciphertext) == 0 {
			return domain.Errorf(domain.ErrMissingFields, "ciphertext is required for version %d", env.Version)
		}
		if len(env.Chunks) != 0 || env.UploadID != "" {
			return domain.Errorf(domain.ErrInvalidEnvelope, "version %d envelopes cannot carry chunks", env.Version)
		}
		if len(env.Ciphertext) < gcmTagBytes {
			return domain.Errorf(domain.ErrInvalidEnvelope, "ciphertext shorter than the authentication tag")
		}
		if len(env.Ciphertext) > lim.MaxCiphertextBytes {
			return domain.Errorf(domain.ErrPayloadTooLarge, "ciphertext is %d bytes, limit %d",
				len(env.Ciphertext), lim.MaxCiphertextBytes)
		}
	case domain.VersionChunked:
		if len(env.Chunks) == 0 {
			return domain.Errorf(domain.ErrMissingFields, "chunk manifest is required for version 3")
		}
		if env.UploadID == "" {
			return domain.Errorf(domain.ErrMissingFields, "uploadId is required for version 3")
		}
		if len(env.Ciphertext) != 0 {
			return domain.Errorf(domain.ErrInvalidEnvelope, "version 3 envelopes cannot carry inline ciphertext")
		}
		if len(env.Chunks) > lim.MaxChunks {
			return domain.Errorf(domain.ErrPayloadTooLarge, "%d chunks, limit %d", len(env.Chunks), lim.MaxChunks)
		}
		for i, c := range env.Chunks {
			if c.Index != i {
				return domain.Errorf(domain.ErrInvalidEnvelope, "chunk %d has index %d; indices must be 0..n-1 in order", i, c.Index)
			}
			if err := validateKeyAndIV("chunk", c.EphemeralPublicKey, c.IV); err != nil {
				return err
			}
		}
	default:
		return domain.Errorf(domain.ErrInvalidEnvelope, "unsupported version %d", env.Version)
	}
	return nil
}

func validateKeyAndIV(what string, key domain.JWK, iv []byte) error {
	if key.IsZero() {
		return domain.Errorf(domain.ErrMissingFields, "%s ephemeralPublicKey is required", what)
	}
	if len(iv) == 0 {
		return domain.Errorf(domain.ErrMissingFields, "%s iv is required", what)
	}
	if len(iv) != crypto.IVBytes {
		return domain.Errorf(domain.ErrInvalidEnvelope, "%s iv must be %d bytes, got %d", what, crypto.IVBytes, len(iv))
	}
	if _, err := crypto.PublicKeyFromJWK(key); err != nil {
		return domain.Errorf(domain.ErrInvalidEnvelope, "%s ephemeralPublicKey: %v", what, err)
	}
	return nil
}

// Digest returns the canonical digest of env's header (ciphertext of chunked
// envelopes excluded, Digest itself cleared).
func Digest(env domain.Envelope) (string, error) {
	h := env.Header()
	h.Digest = ""
	raw, err := json.Marshal(h)
	if err != nil {
		return "", err
	}
	return schema.DigestJCS(raw)
}

// VerifyDigest checks the digest the relay attached to env, if any.
func VerifyDigest(env domain.Envelope) error {
	if env.Digest == "" {
		return nil
	}
	got, err := Digest(env)
	if err != nil {
		return err
	}
	if got != env.Digest {
		return domain.Errorf(domain.ErrInvalidEnvelope, "digest mismatch")
	}
	return nil
}
