// Package keys provides the consumer's key pair to the services that need it.
//
// A Provider is constructed once with its store and passphrase and handed to
// whoever decrypts. The key is loaded and decrypted on first use and cached
// until Invalidate is called; nothing is held in package-level state.
package keys

import (
	"crypto/ecdh"
	"sync"
	"time"

	"healthrelay/internal/crypto"
	"healthrelay/internal/domain"
)

// Provider lazily loads and caches the consumer key pair.
type Provider struct {
	store      domain.KeyStore
	passphrase string

	mu   sync.Mutex
	key  *domain.ConsumerKey
	priv *ecdh.PrivateKey
}

// NewProvider returns a Provider reading from store with passphrase.
func NewProvider(store domain.KeyStore, passphrase string) *Provider {
	return &Provider{store: store, passphrase: passphrase}
}

// Generate creates a fresh P-256 key pair, saves it and makes it current.
func (p *Provider) Generate() (domain.ConsumerKey, error) {
	priv, err := crypto.GenerateP256()
	if err != nil {
		return domain.ConsumerKey{}, err
	}
	key := domain.ConsumerKey{
		Private:    crypto.PrivateJWK(priv),
		Public:     crypto.PublicJWK(priv.PublicKey()),
		CreatedUTC: time.Now().Unix(),
	}
	if err := p.store.SaveKey(p.passphrase, key); err != nil {
		return domain.ConsumerKey{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.key, p.priv = &key, priv
	return key, nil
}

func (p *Provider) load() error {
	if p.priv != nil {
		return nil
	}
	key, err := p.store.LoadKey(p.passphrase)
	if err != nil {
		return err
	}
	priv, err := crypto.PrivateKeyFromJWK(key.Private)
	if err != nil {
		return err
	}
	p.key, p.priv = &key, priv
	return nil
}

// PrivateKey returns the consumer's private key, loading it on first use.
func (p *Provider) PrivateKey() (*ecdh.PrivateKey, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.load(); err != nil {
		return nil, err
	}
	return p.priv, nil
}

// PublicJWK returns the public half as a JWK.
func (p *Provider) PublicJWK() (domain.JWK, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.load(); err != nil {
		return domain.JWK{}, err
	}
	return p.key.Public, nil
}

// Fingerprint returns the short fingerprint of the public key.
func (p *Provider) Fingerprint() (domain.Fingerprint, error) {
	pub, err := p.PublicJWK()
	if err != nil {
		return "", err
	}
	return crypto.Fingerprint(pub)
}

// Invalidate drops the cached key; the next call reloads it from the store.
func (p *Provider) Invalidate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.key, p.priv = nil, nil
}
