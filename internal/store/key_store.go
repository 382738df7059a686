package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"healthrelay/internal/domain"
	"healthrelay/internal/util/memzero"
)

const keyFilename = "consumer.key.enc"

// ErrNoKey is returned by LoadKey before a key has been generated.
var ErrNoKey = errors.New("no consumer key; run keygen first")

// KeyFileStore persists the consumer key pair, encrypted under a passphrase.
type KeyFileStore struct {
	dir    string
	params scryptParams
	mu     sync.Mutex
}

// NewKeyFileStore returns a KeyFileStore rooted at dir.
func NewKeyFileStore(dir string) *KeyFileStore {
	return &KeyFileStore{dir: dir, params: defaultScryptParams()}
}

// SaveKey encrypts key with passphrase and writes it to disk.
func (s *KeyFileStore) SaveKey(passphrase string, key domain.ConsumerKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := json.Marshal(key)
	if err != nil {
		return err
	}
	defer memzero.Zero(raw)
	ct, err := sealKeyFile(passphrase, raw, s.params)
	if err != nil {
		return err
	}
	return writeFile(filepath.Join(s.dir, keyFilename), ct, 0o600)
}

// LoadKey reads and decrypts the key pair.
func (s *KeyFileStore) LoadKey(passphrase string) (domain.ConsumerKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := readFile(filepath.Join(s.dir, keyFilename))
	if err != nil {
		return domain.ConsumerKey{}, err
	}
	if b == nil {
		return domain.ConsumerKey{}, ErrNoKey
	}
	pt, err := openKeyFile(passphrase, b)
	if err != nil {
		return domain.ConsumerKey{}, err
	}
	defer memzero.Zero(pt)
	var key domain.ConsumerKey
	if err := json.Unmarshal(pt, &key); err != nil {
		return domain.ConsumerKey{}, fmt.Errorf("decode key file: %w", err)
	}
	return key, nil
}

// HasKey reports whether a key file exists.
func (s *KeyFileStore) HasKey() bool {
	_, err := os.Stat(filepath.Join(s.dir, keyFilename))
	return err == nil
}

// Compile-time assertion that KeyFileStore implements domain.KeyStore.
var _ domain.KeyStore = (*KeyFileStore)(nil)
