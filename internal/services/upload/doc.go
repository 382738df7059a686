// Package upload is the browser side of a collection session.
//
// It encrypts a provider payload for the consumer's public key using the
// chunked format, stages each chunk with the relay, then ingests the chunk
// manifest under the session's finalize token. Finalize closes the session.
package upload
