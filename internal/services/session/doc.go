// Package session enforces the relay's session lifecycle.
//
// A session moves pending → collecting → finalized and never backwards. The
// first ingestion claims the finalize token; every later ingestion and the
// finalize call must present the same token. Each transition runs inside a
// single store transaction, so a rejected call leaves the record untouched.
// The package also runs the TTL sweep that removes expired sessions.
package session
