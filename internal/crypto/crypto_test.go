package crypto_test

import (
	"bytes"
	"testing"

	"healthrelay/internal/crypto"
	"healthrelay/internal/domain"
)

func TestJWK_RoundTrip(t *testing.T) {
	priv, err := crypto.GenerateP256()
	if err != nil {
		t.Fatalf("GenerateP256: %v", err)
	}
	jwk := crypto.PrivateJWK(priv)
	if jwk.Kty != "EC" || jwk.Crv != "P-256" || jwk.D == "" {
		t.Fatalf("unexpected jwk %+v", jwk)
	}

	got, err := crypto.PrivateKeyFromJWK(jwk)
	if err != nil {
		t.Fatalf("PrivateKeyFromJWK: %v", err)
	}
	if !bytes.Equal(got.Bytes(), priv.Bytes()) {
		t.Fatal("private key mismatch after import")
	}

	pub, err := crypto.PublicKeyFromJWK(jwk.Public())
	if err != nil {
		t.Fatalf("PublicKeyFromJWK: %v", err)
	}
	if !pub.Equal(priv.PublicKey()) {
		t.Fatal("public key mismatch after import")
	}
}

func TestPublicKeyFromJWK_RejectsBadKeys(t *testing.T) {
	priv, err := crypto.GenerateP256()
	if err != nil {
		t.Fatalf("GenerateP256: %v", err)
	}
	good := crypto.PublicJWK(priv.PublicKey())

	cases := map[string]domain.JWK{
		"wrong curve": {Kty: "EC", Crv: "P-384", X: good.X, Y: good.Y},
		"wrong kty":   {Kty: "OKP", Crv: "P-256", X: good.X, Y: good.Y},
		"missing y":   {Kty: "EC", Crv: "P-256", X: good.X},
		"off curve":   {Kty: "EC", Crv: "P-256", X: good.X, Y: good.X},
		"short x":     {Kty: "EC", Crv: "P-256", X: "AAAA", Y: good.Y},
	}
	for name, k := range cases {
		if _, err := crypto.PublicKeyFromJWK(k); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestSharedSecret_Agrees(t *testing.T) {
	a, _ := crypto.GenerateP256()
	b, _ := crypto.GenerateP256()

	s1, err := crypto.SharedSecret(a, b.PublicKey())
	if err != nil {
		t.Fatalf("SharedSecret: %v", err)
	}
	s2, err := crypto.SharedSecret(b, a.PublicKey())
	if err != nil {
		t.Fatalf("SharedSecret: %v", err)
	}
	if len(s1) != crypto.KeyBytes || !bytes.Equal(s1, s2) {
		t.Fatal("shared secrets differ")
	}
}

func TestSealOpen_TamperFails(t *testing.T) {
	key := bytes.Repeat([]byte{7}, crypto.KeyBytes)
	iv, err := crypto.NewIV()
	if err != nil {
		t.Fatalf("NewIV: %v", err)
	}
	ct, err := crypto.Seal(key, iv, []byte("hello"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	pt, err := crypto.Open(key, iv, ct)
	if err != nil || string(pt) != "hello" {
		t.Fatalf("Open: %q %v", pt, err)
	}

	ct[0] ^= 0xff
	if _, err := crypto.Open(key, iv, ct); err != crypto.ErrDecrypt {
		t.Fatalf("want ErrDecrypt, got %v", err)
	}
}

func TestThumbprint_IgnoresOptionalMembers(t *testing.T) {
	priv, _ := crypto.GenerateP256()
	pub := crypto.PublicJWK(priv.PublicKey())

	withExtras := pub
	withExtras.Ext = true
	withExtras.KeyOps = []string{"deriveKey"}

	a, err := crypto.Thumbprint(pub)
	if err != nil {
		t.Fatalf("Thumbprint: %v", err)
	}
	b, err := crypto.Thumbprint(withExtras)
	if err != nil {
		t.Fatalf("Thumbprint: %v", err)
	}
	if a != b {
		t.Fatal("thumbprint depends on optional members")
	}

	fp, err := crypto.Fingerprint(pub)
	if err != nil {
		t.Fatalf("Fingerprint: %v", err)
	}
	if len(fp) != 20 {
		t.Fatalf("want 20 hex chars, got %d", len(fp))
	}
}
