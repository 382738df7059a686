package types

import "encoding/json"

// EnvelopeVersion selects how the plaintext of an envelope is framed.
type EnvelopeVersion int

const (
	// VersionPlain envelopes decrypt to raw JSON.
	VersionPlain EnvelopeVersion = 1
	// VersionGzip envelopes decrypt to gzip-compressed JSON.
	VersionGzip EnvelopeVersion = 2
	// VersionChunked envelopes carry a chunk manifest instead of ciphertext.
	VersionChunked EnvelopeVersion = 3
)

// Envelope is one encrypted provider payload.
//
// For chunked envelopes EphemeralPublicKey and IV mirror chunk 0, and the
// ciphertext of each chunk is addressed by (session, provider index, chunk index).
type Envelope struct {
	Version            EnvelopeVersion `json:"version"`
	EphemeralPublicKey JWK             `json:"ephemeralPublicKey"`
	IV                 []byte          `json:"iv"`
	Ciphertext         []byte          `json:"ciphertext,omitempty"`
	Chunks             []ChunkMeta     `json:"chunks,omitempty"`
	UploadID           UploadID        `json:"uploadId,omitempty"`
	Digest             string          `json:"digest,omitempty"`
}

// Chunked reports whether the envelope uses the chunked transfer format.
func (e *Envelope) Chunked() bool { return e.Version == VersionChunked }

// Header returns a copy of e suitable for poll responses: chunked envelopes
// drop any inline ciphertext so responses stay bounded.
func (e Envelope) Header() Envelope {
	out := e
	out.Chunks = append([]ChunkMeta(nil), e.Chunks...)
	if e.Chunked() {
		out.Ciphertext = nil
	}
	return out
}

// ChunkMeta describes one independently encrypted chunk.
type ChunkMeta struct {
	Index              int    `json:"index"`
	IV                 []byte `json:"iv"`
	EphemeralPublicKey JWK    `json:"ephemeralPublicKey"`
	Size               int    `json:"size,omitempty"`
}

// ProviderPayload is a decrypted envelope as seen by the consumer.
type ProviderPayload struct {
	Index   int             `json:"index"`
	Version EnvelopeVersion `json:"version"`
	Data    json.RawMessage `json:"data"`
}
