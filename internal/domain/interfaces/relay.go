package interfaces

import (
	"context"
	"time"

	domaintypes "healthrelay/internal/domain/types"
)

// RelayClient is how browsers and consumers talk to the relay, all with context.
type RelayClient interface {
	CreateSession(ctx context.Context, publicKey domaintypes.JWK) (domaintypes.SessionTicket, error)
	GetSessionInfo(ctx context.Context, id domaintypes.SessionID) (domaintypes.SessionInfo, error)
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
	PollSession(
		ctx context.Context,
		id domaintypes.SessionID,
		timeout time.Duration,
	) (domaintypes.PollResult, error)
	FetchChunk(
		ctx context.Context,
		id domaintypes.SessionID,
		providerIndex int,
		chunkIndex int,
	) ([]byte, error)
	DeleteSession(ctx context.Context, id domaintypes.SessionID) error
}
