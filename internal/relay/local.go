package relay

import (
	"context"
	"time"

	"healthrelay/internal/domain"
)

// Local is an in-process RelayClient backed directly by the relay services.
type Local struct {
	Sessions domain.SessionService
	Polls    domain.PollService
	// BaseURL is used to build the ticket URLs.
	BaseURL string
}

func (l *Local) CreateSession(ctx context.Context, publicKey domain.JWK) (domain.SessionTicket, error) {
	sess, err := l.Sessions.CreateSession(ctx, publicKey)
	if err != nil {
		return domain.SessionTicket{}, err
	}
	return domain.SessionTicket{
		SessionID: sess.ID,
		UserURL:   l.BaseURL + "/connect/" + sess.ID.String(),
		PollURL:   l.BaseURL + sessionPath(sess.ID) + "/poll",
	}, nil
}

func (l *Local) GetSessionInfo(ctx context.Context, id domain.SessionID) (domain.SessionInfo, error) {
	sess, err := l.Sessions.GetSession(ctx, id)
	if err != nil {
		return domain.SessionInfo{}, err
	}
	return sess.Info(), nil
}

func (l *Local) IngestProvider(
	ctx context.Context,
	id domain.SessionID,
	env domain.Envelope,
	finalizeToken string,
) (int, error) {
	return l.Sessions.IngestProvider(ctx, id, env, finalizeToken)
}

func (l *Local) StageChunk(
	ctx context.Context,
	id domain.SessionID,
	uploadID domain.UploadID,
	index int,
	finalizeToken string,
	data []byte,
) error {
	return l.Sessions.StageChunk(ctx, id, uploadID, index, finalizeToken, data)
}

func (l *Local) FinalizeSession(ctx context.Context, id domain.SessionID, finalizeToken string) (int, error) {
	return l.Sessions.FinalizeSession(ctx, id, finalizeToken)
}

func (l *Local) PollSession(ctx context.Context, id domain.SessionID, timeout time.Duration) (domain.PollResult, error) {
	return l.Polls.PollSession(ctx, id, timeout)
}

func (l *Local) FetchChunk(ctx context.Context, id domain.SessionID, providerIndex, chunkIndex int) ([]byte, error) {
	return l.Sessions.FetchChunk(ctx, id, providerIndex, chunkIndex)
}

func (l *Local) DeleteSession(ctx context.Context, id domain.SessionID) error {
	return l.Sessions.DeleteSession(ctx, id)
}

var _ domain.RelayClient = (*Local)(nil)
