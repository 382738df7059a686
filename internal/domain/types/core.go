package types

// SessionID is the opaque identifier of a relay session.
type SessionID string

// String returns the string form of the session identifier.
func (id SessionID) String() string { return string(id) }

// UploadID groups the staged chunks of one chunked envelope before it is ingested.
type UploadID string

// String returns the string form of the upload identifier.
func (id UploadID) String() string { return string(id) }

// Fingerprint is a short identifier for public keys presented to users.
type Fingerprint string

// String returns the string form of the fingerprint.
func (f Fingerprint) String() string { return string(f) }

// JWK is an elliptic-curve JSON Web Key as exported by WebCrypto.
// D is only present on private keys.
type JWK struct {
	Kty    string   `json:"kty"`
	Crv    string   `json:"crv"`
	X      string   `json:"x"`
	Y      string   `json:"y"`
	D      string   `json:"d,omitempty"`
	Ext    bool     `json:"ext,omitempty"`
	KeyOps []string `json:"key_ops,omitempty"`
}

// Public returns a copy of k with the private scalar removed.
func (k JWK) Public() JWK {
	return JWK{Kty: k.Kty, Crv: k.Crv, X: k.X, Y: k.Y}
}

// IsZero reports whether no key material is set.
func (k JWK) IsZero() bool { return k.X == "" && k.Y == "" && k.D == "" }
