package domain

import (
	interfaces "healthrelay/internal/domain/interfaces"
	types "healthrelay/internal/domain/types"
)

// Type aliases expose domain types from the types subpackage for compact imports.
type (
	SessionID       = types.SessionID
	UploadID        = types.UploadID
	Fingerprint     = types.Fingerprint
	JWK             = types.JWK
	Status          = types.Status
	Session         = types.Session
	SessionTicket   = types.SessionTicket
	SessionInfo     = types.SessionInfo
	StagingUsage    = types.StagingUsage
	PollResult      = types.PollResult
	EnvelopeVersion = types.EnvelopeVersion
	Envelope        = types.Envelope
	ChunkMeta       = types.ChunkMeta
	ProviderPayload = types.ProviderPayload
	ConsumerKey     = types.ConsumerKey
	Connection      = types.Connection

	CreateSessionRequest = types.CreateSessionRequest
	IngestRequest        = types.IngestRequest
	FinalizeRequest      = types.FinalizeRequest
	CountResponse        = types.CountResponse
	ErrorResponse        = types.ErrorResponse
)

// Re-exported constants.
const (
	StatusPending    = types.StatusPending
	StatusCollecting = types.StatusCollecting
	StatusFinalized  = types.StatusFinalized

	VersionPlain   = types.VersionPlain
	VersionGzip    = types.VersionGzip
	VersionChunked = types.VersionChunked
)

// Interface aliases expose domain interfaces from the interfaces subpackage.
type (
	SessionTx       = interfaces.SessionTx
	SessionStore    = interfaces.SessionStore
	KeyStore        = interfaces.KeyStore
	ConnectionStore = interfaces.ConnectionStore
	RelayClient     = interfaces.RelayClient
	SessionService  = interfaces.SessionService
	PollService     = interfaces.PollService
	UploadService   = interfaces.UploadService
	ReceiveService  = interfaces.ReceiveService
)
