package types

// CreateSessionRequest is the body of a session creation call.
type CreateSessionRequest struct {
	PublicKey JWK `json:"publicKey"`
}

// IngestRequest is the body of a provider ingestion call.
type IngestRequest struct {
	FinalizeToken string   `json:"finalizeToken"`
	Envelope      Envelope `json:"envelope"`
}

// FinalizeRequest is the body of a finalize call.
type FinalizeRequest struct {
	FinalizeToken string `json:"finalizeToken"`
}

// CountResponse answers ingestion and finalize calls.
type CountResponse struct {
	Success       bool `json:"success"`
	ProviderCount int  `json:"providerCount"`
}

// ErrorResponse is the body of every failed call.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
