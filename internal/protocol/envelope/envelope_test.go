package envelope_test

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"healthrelay/internal/crypto"
	"healthrelay/internal/domain"
	"healthrelay/internal/protocol/envelope"
)

func recipient(t *testing.T) (domain.JWK, domain.JWK) {
	t.Helper()
	priv, err := crypto.GenerateP256()
	if err != nil {
		t.Fatalf("GenerateP256: %v", err)
	}
	return crypto.PublicJWK(priv.PublicKey()), crypto.PrivateJWK(priv)
}

func samplePayload() map[string]any {
	return map[string]any{
		"provider": "General Hospital",
		"fhir": []any{
			map[string]any{"resourceType": "Patient", "id": "p1"},
			map[string]any{"resourceType": "Observation", "value": 98.6},
		},
		"attachments": float64(2),
	}
}

func TestSealOpen_RoundTrip(t *testing.T) {
	pub, privJWK := recipient(t)
	priv, err := crypto.PrivateKeyFromJWK(privJWK)
	if err != nil {
		t.Fatalf("PrivateKeyFromJWK: %v", err)
	}

	for _, v := range []domain.EnvelopeVersion{domain.VersionPlain, domain.VersionGzip} {
		env, err := envelope.Seal(samplePayload(), pub, v)
		if err != nil {
			t.Fatalf("Seal v%d: %v", v, err)
		}
		if err := envelope.Validate(env, envelope.Limits{}); err != nil {
			t.Fatalf("Validate v%d: %v", v, err)
		}
		var got map[string]any
		if err := envelope.OpenInto(env, priv, &got); err != nil {
			t.Fatalf("Open v%d: %v", v, err)
		}
		if !reflect.DeepEqual(got, samplePayload()) {
			t.Fatalf("v%d: payload mismatch: %#v", v, got)
		}
	}
}

func TestSeal_FreshKeyAndIVPerEnvelope(t *testing.T) {
	pub, _ := recipient(t)
	a, err := envelope.Seal("x", pub, domain.VersionPlain)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	b, err := envelope.Seal("x", pub, domain.VersionPlain)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if a.EphemeralPublicKey.X == b.EphemeralPublicKey.X || string(a.IV) == string(b.IV) {
		t.Fatal("ephemeral key or iv reused across envelopes")
	}
}

func TestOpen_WrongKeyFails(t *testing.T) {
	pub, _ := recipient(t)
	_, otherJWK := recipient(t)
	other, _ := crypto.PrivateKeyFromJWK(otherJWK)

	env, err := envelope.Seal(samplePayload(), pub, domain.VersionGzip)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if _, err := envelope.Open(env, other); !errors.Is(err, crypto.ErrDecrypt) {
		t.Fatalf("want ErrDecrypt, got %v", err)
	}
}

func TestValidate_Rejections(t *testing.T) {
	pub, _ := recipient(t)
	good, err := envelope.Seal(samplePayload(), pub, domain.VersionPlain)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	noIV := good
	noIV.IV = nil
	if err := envelope.Validate(noIV, envelope.Limits{}); !errors.Is(err, domain.ErrMissingFields) {
		t.Fatalf("missing iv: got %v", err)
	}

	noKey := good
	noKey.EphemeralPublicKey = domain.JWK{}
	if err := envelope.Validate(noKey, envelope.Limits{}); !errors.Is(err, domain.ErrMissingFields) {
		t.Fatalf("missing key: got %v", err)
	}

	noCT := good
	noCT.Ciphertext = nil
	if err := envelope.Validate(noCT, envelope.Limits{}); !errors.Is(err, domain.ErrMissingFields) {
		t.Fatalf("missing ciphertext: got %v", err)
	}

	emptyChunked := good
	emptyChunked.Version = domain.VersionChunked
	emptyChunked.Ciphertext = nil
	emptyChunked.UploadID = "u1"
	if err := envelope.Validate(emptyChunked, envelope.Limits{}); !errors.Is(err, domain.ErrMissingFields) {
		t.Fatalf("empty chunk list: got %v", err)
	}

	tooBig := good
	if err := envelope.Validate(tooBig, envelope.Limits{MaxCiphertextBytes: 8}); !errors.Is(err, domain.ErrPayloadTooLarge) {
		t.Fatalf("too large: got %v", err)
	}

	gapped := emptyChunked
	gapped.Chunks = []domain.ChunkMeta{
		{Index: 0, IV: good.IV, EphemeralPublicKey: good.EphemeralPublicKey},
		{Index: 2, IV: good.IV, EphemeralPublicKey: good.EphemeralPublicKey},
	}
	err = envelope.Validate(gapped, envelope.Limits{})
	if !errors.Is(err, domain.ErrInvalidEnvelope) || !strings.Contains(err.Error(), "index") {
		t.Fatalf("gapped indices: got %v", err)
	}
}

func TestDigest_DetectsTampering(t *testing.T) {
	pub, _ := recipient(t)
	env, err := envelope.Seal(samplePayload(), pub, domain.VersionPlain)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	env.Digest, err = envelope.Digest(env)
	if err != nil {
		t.Fatalf("Digest: %v", err)
	}
	if err := envelope.VerifyDigest(env); err != nil {
		t.Fatalf("VerifyDigest: %v", err)
	}
	env.IV[0] ^= 1
	if err := envelope.VerifyDigest(env); !errors.Is(err, domain.ErrInvalidEnvelope) {
		t.Fatalf("want digest mismatch, got %v", err)
	}
}
