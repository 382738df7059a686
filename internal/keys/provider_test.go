package keys_test

import (
	"errors"
	"testing"

	"healthrelay/internal/domain"
	"healthrelay/internal/keys"
	"healthrelay/internal/store"
)

// countingStore counts loads so caching can be observed.
type countingStore struct {
	domain.KeyStore
	loads int
}

func (s *countingStore) LoadKey(passphrase string) (domain.ConsumerKey, error) {
	s.loads++
	return s.KeyStore.LoadKey(passphrase)
}

func TestProvider_CachesUntilInvalidated(t *testing.T) {
	cs := &countingStore{KeyStore: store.NewKeyFileStore(t.TempDir())}
	gen := keys.NewProvider(cs, "pass")
	key, err := gen.Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	p := keys.NewProvider(cs, "pass")
	for i := 0; i < 3; i++ {
		pub, err := p.PublicJWK()
		if err != nil {
			t.Fatalf("PublicJWK: %v", err)
		}
		if pub.X != key.Public.X || pub.D != "" {
			t.Fatalf("unexpected public key: %+v", pub)
		}
	}
	if _, err := p.PrivateKey(); err != nil {
		t.Fatalf("PrivateKey: %v", err)
	}
	if cs.loads != 1 {
		t.Fatalf("loads = %d, want 1", cs.loads)
	}

	p.Invalidate()
	if _, err := p.PrivateKey(); err != nil {
		t.Fatalf("PrivateKey after invalidate: %v", err)
	}
	if cs.loads != 2 {
		t.Fatalf("loads = %d after invalidate, want 2", cs.loads)
	}

	fp1, _ := p.Fingerprint()
	fp2, _ := gen.Fingerprint()
	if fp1 == "" || fp1 != fp2 {
		t.Fatalf("fingerprints differ: %q vs %q", fp1, fp2)
	}
}

func TestProvider_WrongPassphrase(t *testing.T) {
	ks := store.NewKeyFileStore(t.TempDir())
	if _, err := keys.NewProvider(ks, "right").Generate(); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	_, err := keys.NewProvider(ks, "wrong").PrivateKey()
	if !errors.Is(err, store.ErrWrongPassphrase) {
		t.Fatalf("want ErrWrongPassphrase, got %v", err)
	}
}
