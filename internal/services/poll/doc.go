// Package poll implements the relay's long-poll gateway.
//
// A poll re-reads the session at a fixed interval until it is ready or the
// caller's bounded wait elapses. No lock is held between checks, so a held
// poll never delays requests for other sessions.
package poll
