package poll_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"healthrelay/internal/domain"
	"healthrelay/internal/log"
	"healthrelay/internal/services/poll"
)

// fakeSessions serves a mutable in-memory session.
type fakeSessions struct {
	mu    sync.Mutex
	sess  map[domain.SessionID]domain.Session
	reads int
}

func (f *fakeSessions) GetSession(ctx context.Context, id domain.SessionID) (domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	s, ok := f.sess[id]
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return s, nil
}

func (f *fakeSessions) set(s domain.Session) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sess[s.ID] = s
}

func newPoll(f *fakeSessions) *poll.Service {
	return poll.New(f, 200*time.Millisecond, 5*time.Millisecond, log.Discard().GetLogger("poll"), nil)
}

func chunkedEnvelope() domain.Envelope {
	return domain.Envelope{
		Version:    domain.VersionChunked,
		IV:         make([]byte, 12),
		Ciphertext: []byte("should not leak"),
		Chunks:     []domain.ChunkMeta{{Index: 0, IV: make([]byte, 12)}},
		UploadID:   "u1",
	}
}

func TestPoll_UnknownSession(t *testing.T) {
	p := newPoll(&fakeSessions{sess: map[domain.SessionID]domain.Session{}})
	_, err := p.PollSession(context.Background(), "nope", time.Second)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestPoll_TimeoutReportsProgress(t *testing.T) {
	f := &fakeSessions{sess: map[domain.SessionID]domain.Session{
		"s1": {ID: "s1", Status: domain.StatusCollecting, Providers: []domain.Envelope{chunkedEnvelope()}},
	}}
	p := newPoll(f)

	start := time.Now()
	res, err := p.PollSession(context.Background(), "s1", 50*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, res.Ready)
	assert.Equal(t, domain.StatusCollecting, res.Status)
	assert.Equal(t, 1, res.ProviderCount)
	assert.Empty(t, res.Providers)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	assert.Greater(t, f.reads, 2)
}

func TestPoll_WaitIsClamped(t *testing.T) {
	f := &fakeSessions{sess: map[domain.SessionID]domain.Session{"s1": {ID: "s1", Status: domain.StatusPending}}}
	p := newPoll(f)
	assert.Equal(t, 200*time.Millisecond, p.Clamp(time.Hour))
	assert.Equal(t, time.Duration(0), p.Clamp(-time.Second))

	start := time.Now()
	res, err := p.PollSession(context.Background(), "s1", time.Hour)
	require.NoError(t, err)
	assert.False(t, res.Ready)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestPoll_WakesWhenFinalized(t *testing.T) {
	f := &fakeSessions{sess: map[domain.SessionID]domain.Session{
		"s1": {ID: "s1", Status: domain.StatusCollecting, Providers: []domain.Envelope{chunkedEnvelope()}},
	}}
	p := poll.New(f, 5*time.Second, 5*time.Millisecond, log.Discard().GetLogger("poll"), nil)

	go func() {
		time.Sleep(30 * time.Millisecond)
		s, _ := f.GetSession(context.Background(), "s1")
		s.Status = domain.StatusFinalized
		f.set(s)
	}()

	start := time.Now()
	res, err := p.PollSession(context.Background(), "s1", 5*time.Second)
	require.NoError(t, err)
	assert.True(t, res.Ready)
	assert.Equal(t, 1, res.ProviderCount)
	require.Len(t, res.Providers, 1)
	assert.Nil(t, res.Providers[0].Ciphertext, "chunked headers must not carry ciphertext")
	assert.Len(t, res.Providers[0].Chunks, 1)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestPoll_FinalizedWithoutProvidersIsNotReady(t *testing.T) {
	f := &fakeSessions{sess: map[domain.SessionID]domain.Session{"s1": {ID: "s1", Status: domain.StatusFinalized}}}
	res, err := newPoll(f).PollSession(context.Background(), "s1", 0)
	require.NoError(t, err)
	assert.False(t, res.Ready)
}

func TestPoll_ContextCancel(t *testing.T) {
	f := &fakeSessions{sess: map[domain.SessionID]domain.Session{"s1": {ID: "s1", Status: domain.StatusPending}}}
	p := poll.New(f, time.Minute, 5*time.Millisecond, log.Discard().GetLogger("poll"), nil)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := p.PollSession(ctx, "s1", time.Minute)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
