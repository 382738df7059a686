// Package main runs the health record relay.
//
// The relay holds end-to-end encrypted provider envelopes for a consumer
// until they collect them. Sessions live in a bbolt database and expire a
// fixed time after creation, whatever their status.
//
// HTTP API
//
//	POST /api/sessions
//	    Create a session for the consumer's P-256 public key (JWK). Returns
//	    the session id, the URL to hand to the user and the poll URL.
//
//	GET /api/sessions/{id}
//	    Status, recipient public key and provider count.
//
//	PUT /api/sessions/{id}/uploads/{uploadId}/chunks/{index}
//	    Stage one encrypted chunk of a version 3 upload. The finalize token
//	    travels in the X-Finalize-Token header.
//
//	POST /api/sessions/{id}/providers
//	    Ingest one encrypted envelope. The first ingestion claims the
//	    finalize token; later ones must present the same token.
//
//	POST /api/sessions/{id}/finalize
//	    Mark the session complete. Idempotent.
//
//	GET /api/sessions/{id}/poll?timeout=N
//	    Wait up to N seconds (capped at 60) for the session to be finalized.
//
//	GET /api/sessions/{id}/providers/{p}/chunks/{c}
//	    Fetch one chunk ciphertext.
//
//	DELETE /api/sessions/{id}
//	    Delete a session and its chunks.
//
// Behaviour
//
//   - SIGINT and SIGTERM drain in-flight requests and close the database.
//   - SIGHUP reopens the log file.
//   - /livez, /readyz and, when enabled, /metrics are served on the same
//     listener.
package main
