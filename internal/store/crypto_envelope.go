package store

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"

	"healthrelay/internal/util/memzero"
)

// keyFileVersion is the version of the sealed key file format.
const keyFileVersion = 2

// keyFileAAD binds the ciphertext to its purpose.
const keyFileAAD = "healthrelay consumer key"

// scrypt cost bounds accepted when opening a key file.
const (
	minScryptN = 1 << 14
	maxScryptN = 1 << 20
)

var (
	// ErrWrongPassphrase is returned when the passphrase is incorrect or the key file is corrupted.
	ErrWrongPassphrase = errors.New("wrong passphrase or corrupted key file")
)

// sealedKeyFile is the on-disk JSON structure holding the ciphertext and KDF parameters.
type sealedKeyFile struct {
	V      int    `json:"v"`
	Salt   []byte `json:"salt"`
	N      int    `json:"scrypt_N"`
	R      int    `json:"scrypt_r"`
	P      int    `json:"scrypt_p"`
	Nonce  []byte `json:"nonce"`
	Cipher []byte `json:"cipher"`
}

type scryptParams struct{ N, R, P int }

func defaultScryptParams() scryptParams { return scryptParams{N: 1 << 15, R: 8, P: 1} }

func (sp scryptParams) valid() bool {
	return sp.N >= minScryptN && sp.N <= maxScryptN && sp.N&(sp.N-1) == 0 &&
		sp.R > 0 && sp.R <= 32 && sp.P > 0 && sp.P <= 16
}

// sealKeyFile derives a key from passphrase and seals raw with XChaCha20-Poly1305.
func sealKeyFile(passphrase string, raw []byte, sp scryptParams) ([]byte, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	key, err := scrypt.Key([]byte(passphrase), salt, sp.N, sp.R, sp.P, chacha20poly1305.KeySize)
	if err != nil {
		return nil, err
	}
	defer memzero.Zero(key)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}

	return json.Marshal(sealedKeyFile{
		V:      keyFileVersion,
		Salt:   salt,
		N:      sp.N,
		R:      sp.R,
		P:      sp.P,
		Nonce:  nonce,
		Cipher: aead.Seal(nil, nonce, raw, []byte(keyFileAAD)),
	})
}

// openKeyFile reverses sealKeyFile.
func openKeyFile(passphrase string, b []byte) ([]byte, error) {
	var kf sealedKeyFile
	if err := json.Unmarshal(b, &kf); err != nil {
		return nil, fmt.Errorf("decode key file: %w", err)
	}
	if kf.V != keyFileVersion {
		return nil, fmt.Errorf("unsupported key file version %d", kf.V)
	}
	sp := scryptParams{N: kf.N, R: kf.R, P: kf.P}
	if !sp.valid() {
		return nil, fmt.Errorf("key file has out of range scrypt parameters N=%d r=%d p=%d", sp.N, sp.R, sp.P)
	}
	if len(kf.Nonce) != chacha20poly1305.NonceSizeX {
		return nil, ErrWrongPassphrase
	}

	key, err := scrypt.Key([]byte(passphrase), kf.Salt, sp.N, sp.R, sp.P, chacha20poly1305.KeySize)
	if err != nil {
		return nil, err
	}
	defer memzero.Zero(key)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	pt, err := aead.Open(nil, kf.Nonce, kf.Cipher, []byte(keyFileAAD))
	if err != nil {
		return nil, ErrWrongPassphrase
	}
	return pt, nil
}
