package types

import "time"

// Status is the lifecycle state of a session.
type Status string

const (
	StatusPending    Status = "pending"
	StatusCollecting Status = "collecting"
	StatusFinalized  Status = "finalized"
)

// Rank orders statuses along the lifecycle; unknown statuses rank -1.
func (s Status) Rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusCollecting:
		return 1
	case StatusFinalized:
		return 2
	default:
		return -1
	}
}

// Session is the relay-side record of one collection session.
//
// FinalizeTokenHash is the SHA-256 of the finalize token claimed by the first
// ingestion; the token itself is never stored.
type Session struct {
	ID                SessionID  `json:"id"`
	CreatedAt         time.Time  `json:"createdAt"`
	Status            Status     `json:"status"`
	PublicKey         JWK        `json:"publicKey"`
	Providers         []Envelope `json:"providers,omitempty"`
	FinalizeTokenHash []byte     `json:"finalizeTokenHash,omitempty"`
}

// Claimed reports whether a finalize token has been bound to the session.
func (s *Session) Claimed() bool { return len(s.FinalizeTokenHash) != 0 }

// ProviderCount returns the number of ingested envelopes.
func (s *Session) ProviderCount() int { return len(s.Providers) }

// Ready reports whether the consumer can collect the session.
func (s *Session) Ready() bool {
	return s.Status == StatusFinalized && len(s.Providers) > 0
}

// StagingUsage describes the chunk blobs staged for a session but not yet
// claimed by an ingested manifest.
type StagingUsage struct {
	// Uploads is the number of distinct upload ids with staged blobs.
	Uploads int
	// Bytes is the total size of the staged blobs.
	Bytes int64
	// HasUpload reports whether the queried upload id is among them.
	HasUpload bool
}

// SessionInfo is the public view of a session shown to the browser before
// upload. It carries the recipient key and nothing about the envelopes.
type SessionInfo struct {
	SessionID     SessionID `json:"sessionId"`
	Status        Status    `json:"status"`
	PublicKey     JWK       `json:"publicKey"`
	ProviderCount int       `json:"providerCount"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Info returns the public view of s.
func (s *Session) Info() SessionInfo {
	return SessionInfo{
		SessionID:     s.ID,
		Status:        s.Status,
		PublicKey:     s.PublicKey,
		ProviderCount: len(s.Providers),
		CreatedAt:     s.CreatedAt,
	}
}

// SessionTicket is returned to the consumer when a session is created.
type SessionTicket struct {
	SessionID SessionID `json:"sessionId"`
	UserURL   string    `json:"userUrl"`
	PollURL   string    `json:"pollUrl"`
}

// PollResult is the answer to a long-poll. Providers is only populated when
// Ready is true; chunked envelopes carry their manifest but no ciphertext.
type PollResult struct {
	Ready         bool       `json:"ready"`
	Status        Status     `json:"status"`
	ProviderCount int        `json:"providerCount"`
	Providers     []Envelope `json:"providers,omitempty"`
}
