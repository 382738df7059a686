package types

import "time"

// ConsumerKey is the consumer's long-term P-256 key pair.
type ConsumerKey struct {
	Private    JWK   `json:"private"`
	Public     JWK   `json:"public"`
	CreatedUTC int64 `json:"created_utc"`
}

// Connection is the consumer's local record of a session it created.
type Connection struct {
	ID            string    `json:"id"`
	SessionID     SessionID `json:"session_id"`
	RelayURL      string    `json:"relay_url"`
	UserURL       string    `json:"user_url"`
	PollURL       string    `json:"poll_url"`
	Status        Status    `json:"status"`
	ProviderCount int       `json:"provider_count"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
