package interfaces

import (
	"context"
	"time"

	domaintypes "healthrelay/internal/domain/types"
)

// SessionService enforces the session state machine on top of a SessionStore.
type SessionService interface {
	CreateSession(ctx context.Context, publicKey domaintypes.JWK) (domaintypes.Session, error)
	IngestProvider(
		ctx context.Context,
		id domaintypes.SessionID,
		envelope domaintypes.Envelope,
		finalizeToken string,
	) (int, error)
	StageChunk(
		ctx context.Context,
		id domaintypes.SessionID,
		uploadID domaintypes.UploadID,
		index int,
		finalizeToken string,
		data []byte,
	) error
	FinalizeSession(ctx context.Context, id domaintypes.SessionID, finalizeToken string) (int, error)
	GetSession(ctx context.Context, id domaintypes.SessionID) (domaintypes.Session, error)
	FetchChunk(
		ctx context.Context,
		id domaintypes.SessionID,
		providerIndex int,
		chunkIndex int,
	) ([]byte, error)
	DeleteSession(ctx context.Context, id domaintypes.SessionID) error
	SweepExpired(ctx context.Context) (int, error)
}

// PollService answers long-polls for session readiness.
type PollService interface {
	PollSession(
		ctx context.Context,
		id domaintypes.SessionID,
		wait time.Duration,
	) (domaintypes.PollResult, error)
}

// UploadService is the browser side: encrypt, upload and finalize.
type UploadService interface {
	SendPayload(
		ctx context.Context,
		id domaintypes.SessionID,
		recipient domaintypes.JWK,
		finalizeToken string,
		payload any,
	) (int, error)
	FinalizeSession(ctx context.Context, id domaintypes.SessionID, finalizeToken string) (int, error)
}

// ReceiveService is the consumer side: wait for finalize, then fetch and decrypt.
type ReceiveService interface {
	AwaitSession(ctx context.Context, id domaintypes.SessionID) (domaintypes.PollResult, error)
	CollectSession(ctx context.Context, id domaintypes.SessionID) ([]domaintypes.ProviderPayload, error)
}
