package interfaces

import (
	"context"
	"time"

	domaintypes "healthrelay/internal/domain/types"
)

// SessionTx is the view of a session inside a store transaction.
type SessionTx interface {
	// Session returns the record being mutated; changes are persisted only
	// if the transaction function returns nil.
	Session() *domaintypes.Session
	// PromoteChunks moves staged chunks 0..count-1 of uploadID so they are
	// addressable by providerIndex. A missing chunk fails the transaction.
	PromoteChunks(uploadID domaintypes.UploadID, providerIndex, count int) error
	// StageChunk parks a chunk blob of a not yet ingested upload.
	StageChunk(uploadID domaintypes.UploadID, index int, data []byte) error
	// StagingUsage totals the session's staged blobs, leaving out the blob
	// at (uploadID, index) so an overwrite is not counted twice.
	StagingUsage(uploadID domaintypes.UploadID, index int) domaintypes.StagingUsage
}

// SessionStore is the durable keyed store of relay sessions and chunk blobs.
type SessionStore interface {
	CreateSession(ctx context.Context, session domaintypes.Session) error
	LoadSession(ctx context.Context, id domaintypes.SessionID) (domaintypes.Session, error)
	UpdateSession(
		ctx context.Context,
		id domaintypes.SessionID,
		fn func(tx SessionTx) error,
	) error
	DeleteSession(ctx context.Context, id domaintypes.SessionID) error
	DeleteExpired(ctx context.Context, cutoff time.Time) (int, error)

	LoadChunk(
		ctx context.Context,
		id domaintypes.SessionID,
		providerIndex int,
		chunkIndex int,
	) ([]byte, error)
}

// KeyStore persists the consumer's key pair, encrypted under a passphrase.
type KeyStore interface {
	SaveKey(passphrase string, key domaintypes.ConsumerKey) error
	LoadKey(passphrase string) (domaintypes.ConsumerKey, error)
}

// ConnectionStore is the consumer's local cache of sessions it created.
// It is keyed independently from the key store.
type ConnectionStore interface {
	UpsertConnection(conn domaintypes.Connection) error
	GetConnection(id string) (domaintypes.Connection, bool, error)
	ListConnections() ([]domaintypes.Connection, error)
	DeleteAllConnections() error
}
