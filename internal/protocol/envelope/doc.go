// Package envelope implements the per-envelope encryption scheme shared by the
// browser and the consumer.
//
// Every envelope (and every chunk of a chunked envelope) is sealed under a
// fresh ephemeral P-256 key pair: the AES-256-GCM key is ECDH(ephemeral
// private, recipient public), the IV is a fresh random 96-bit value, and the
// ephemeral private key is discarded after sealing. Only the holder of the
// recipient's private key can open an envelope; the relay sees ciphertext
// sizes and envelope counts only.
//
// Versions
//
//   - 1: plaintext is the JSON-serialised payload.
//   - 2: plaintext is the gzip-compressed JSON payload.
//   - 3: chunked; see package chunked. Versions 1 and 2 are kept as legacy
//     decode paths.
package envelope
