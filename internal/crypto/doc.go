// Package crypto exposes the minimal primitives used by the relay protocol.
//
// Contents
//
//   - P-256 key generation and ECDH (GenerateP256, SharedSecret)
//   - JWK import/export compatible with WebCrypto (PublicKeyFromJWK,
//     PrivateKeyFromJWK, PublicJWK, PrivateJWK)
//   - AES-256-GCM sealing with fresh 96-bit IVs (Seal, Open, NewIV)
//   - RFC 7638 JWK thumbprints and short fingerprints (Thumbprint, Fingerprint)
//   - Best-effort memory wiping for sensitive byte slices (Wipe)
//
// # Notes
//
// The AES key for an envelope is the raw 32-byte ECDH shared secret, the same
// value WebCrypto produces for deriveKey({name: "ECDH"}, ..., {name: "AES-GCM",
// length: 256}). Callers should Wipe shared secrets once sealed or opened.
package crypto
