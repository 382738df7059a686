package relay_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"healthrelay/internal/api"
	"healthrelay/internal/crypto"
	"healthrelay/internal/domain"
	"healthrelay/internal/log"
	"healthrelay/internal/protocol/envelope"
	"healthrelay/internal/relay"
	"healthrelay/internal/schema"
	"healthrelay/internal/services/poll"
	"healthrelay/internal/services/session"
	"healthrelay/internal/store"
)

const token = "finalize-token-0123456789"

func newRelay(t *testing.T) *relay.HTTP {
	t.Helper()
	backend := log.Discard()
	st, err := store.OpenBoltSessionStore(filepath.Join(t.TempDir(), "relay.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	sessions := session.New(st, session.Config{}, backend.GetLogger("session"), nil)
	polls := poll.New(sessions, time.Second, 10*time.Millisecond, backend.GetLogger("poll"), nil)
	v, err := schema.NewValidator()
	require.NoError(t, err)
	h := api.NewSessionHandler(sessions, polls, v, api.SessionHandlerConfig{}, backend.GetLogger("api"))
	ts := httptest.NewServer(api.NewServer(api.ServerConfig{}, backend.GetLogger("http"), nil, nil, h).Handler())
	t.Cleanup(ts.Close)
	return relay.NewHTTP(ts.URL + "/")
}

func TestHTTP_SessionFlow(t *testing.T) {
	ctx := context.Background()
	c := newRelay(t)
	priv, err := crypto.GenerateP256()
	require.NoError(t, err)
	pub := crypto.PublicJWK(priv.PublicKey())

	ticket, err := c.CreateSession(ctx, pub)
	require.NoError(t, err)
	require.NotEmpty(t, ticket.SessionID)

	info, err := c.GetSessionInfo(ctx, ticket.SessionID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, info.Status)
	assert.Equal(t, pub.X, info.PublicKey.X)
	assert.Equal(t, 0, info.ProviderCount)

	require.NoError(t, c.StageChunk(ctx, ticket.SessionID, "up1", 0, token, []byte("0123456789abcdef-ct")))

	eph, iv, _, err := envelope.SealRaw(priv.PublicKey(), []byte("x"))
	require.NoError(t, err)
	env := domain.Envelope{
		Version: domain.VersionChunked, EphemeralPublicKey: eph, IV: iv, UploadID: "up1",
		Chunks: []domain.ChunkMeta{{Index: 0, IV: iv, EphemeralPublicKey: eph}},
	}
	n, err := c.IngestProvider(ctx, ticket.SessionID, env, token)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = c.IngestProvider(ctx, ticket.SessionID, env, "another-token-0123456789")
	assert.ErrorIs(t, err, domain.ErrTokenMismatch)

	res, err := c.PollSession(ctx, ticket.SessionID, 0)
	require.NoError(t, err)
	assert.False(t, res.Ready)

	n, err = c.FinalizeSession(ctx, ticket.SessionID, token)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	res, err = c.PollSession(ctx, ticket.SessionID, 500*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, res.Ready)

	blob, err := c.FetchChunk(ctx, ticket.SessionID, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte("0123456789abcdef-ct"), blob)

	_, err = c.FetchChunk(ctx, ticket.SessionID, 0, 1)
	assert.ErrorIs(t, err, domain.ErrChunkNotFound)

	require.NoError(t, c.DeleteSession(ctx, ticket.SessionID))
	_, err = c.PollSession(ctx, ticket.SessionID, 0)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestHTTP_TransientErrors(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	c := relay.NewHTTP(ts.URL)

	_, err := c.FetchChunk(context.Background(), "s", 0, 0)
	assert.ErrorIs(t, err, domain.ErrUnavailable)
	assert.Equal(t, domain.KindTransient, domain.KindOf(err))

	ts.Close()
	_, err = c.PollSession(context.Background(), "s", 0)
	assert.Equal(t, domain.KindTransient, domain.KindOf(err))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.PollSession(ctx, "s", 0)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestHTTP_RequestTimeout(t *testing.T) {
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer ts.Close()
	defer close(release)

	c := relay.NewHTTP(ts.URL)
	c.RequestTimeout = 50 * time.Millisecond
	ctx := context.Background()

	start := time.Now()
	_, err := c.FetchChunk(ctx, "s", 0, 0)
	assert.ErrorIs(t, err, domain.ErrUnavailable)
	assert.Equal(t, domain.KindTransient, domain.KindOf(err))

	err = c.StageChunk(ctx, "s", "u1", 0, "T1-0123456789abcdef", []byte("blob"))
	assert.Equal(t, domain.KindTransient, domain.KindOf(err))
	assert.Less(t, time.Since(start), 5*time.Second)

	// A long-poll gets its own wait on top of the request timeout.
	start = time.Now()
	_, err = c.PollSession(ctx, "s", 200*time.Millisecond)
	assert.Equal(t, domain.KindTransient, domain.KindOf(err))
	assert.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond)

	// The caller's own deadline is reported as such.
	dctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = c.PollSession(dctx, "s", time.Second)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
