package session_test

import (
	"context"
	"fmt"
	"math/rand"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"healthrelay/internal/crypto"
	"healthrelay/internal/domain"
	"healthrelay/internal/log"
	"healthrelay/internal/protocol/chunked"
	"healthrelay/internal/protocol/envelope"
	"healthrelay/internal/services/session"
	"healthrelay/internal/store"
)

const (
	tokenA = "T1-aaaaaaaaaaaaaaaa"
	tokenB = "T2-bbbbbbbbbbbbbbbb"
)

type fixture struct {
	svc   *session.Service
	store *store.BoltSessionStore
	pub   domain.JWK
	now   time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := store.OpenBoltSessionStore(filepath.Join(t.TempDir(), "relay.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	priv, err := crypto.GenerateP256()
	require.NoError(t, err)

	f := &fixture{store: st, pub: crypto.PublicJWK(priv.PublicKey()), now: time.Now()}
	f.svc = session.New(st, session.Config{
		Now: func() time.Time { return f.now },
	}, log.Discard().GetLogger("session"), nil)
	return f
}

func (f *fixture) create(t *testing.T) domain.SessionID {
	t.Helper()
	sess, err := f.svc.CreateSession(context.Background(), f.pub)
	require.NoError(t, err)
	return sess.ID
}

func (f *fixture) envelope(t *testing.T) domain.Envelope {
	t.Helper()
	env, err := envelope.Seal(map[string]any{"resourceType": "Patient"}, f.pub, domain.VersionGzip)
	require.NoError(t, err)
	return env
}

func TestCreateSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sess, err := f.svc.CreateSession(ctx, f.pub)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, sess.Status)
	assert.NotEmpty(t, sess.ID)
	assert.False(t, sess.Claimed())

	_, err = f.svc.CreateSession(ctx, domain.JWK{})
	assert.ErrorIs(t, err, domain.ErrInvalidPublicKey)
	_, err = f.svc.CreateSession(ctx, domain.JWK{Kty: "EC", Crv: "P-384", X: "AA", Y: "AA"})
	assert.ErrorIs(t, err, domain.ErrInvalidPublicKey)
}

func TestLifecycle_EndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.create(t)

	n, err := f.svc.IngestProvider(ctx, id, f.envelope(t), tokenA)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	sess, err := f.svc.GetSession(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCollecting, sess.Status)
	assert.True(t, sess.Claimed())
	assert.NotContains(t, string(sess.FinalizeTokenHash), tokenA)

	_, err = f.svc.IngestProvider(ctx, id, f.envelope(t), tokenB)
	assert.ErrorIs(t, err, domain.ErrTokenMismatch)
	sess, _ = f.svc.GetSession(ctx, id)
	assert.Equal(t, 1, sess.ProviderCount())

	n, err = f.svc.IngestProvider(ctx, id, f.envelope(t), tokenA)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = f.svc.FinalizeSession(ctx, id, tokenB)
	assert.ErrorIs(t, err, domain.ErrInvalidToken)

	n, err = f.svc.FinalizeSession(ctx, id, tokenA)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// Finalize is idempotent.
	before, _ := f.svc.GetSession(ctx, id)
	n, err = f.svc.FinalizeSession(ctx, id, tokenA)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	after, _ := f.svc.GetSession(ctx, id)
	assert.Equal(t, before, after)

	_, err = f.svc.IngestProvider(ctx, id, f.envelope(t), tokenA)
	assert.ErrorIs(t, err, domain.ErrSessionFinalized)
	assert.True(t, after.Ready())
	for _, p := range after.Providers {
		assert.NoError(t, envelope.VerifyDigest(p))
	}
}

func TestFinalize_Boundaries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.create(t)

	_, err := f.svc.FinalizeSession(ctx, id, tokenA)
	assert.ErrorIs(t, err, domain.ErrNotClaimed)

	_, err = f.svc.FinalizeSession(ctx, "missing", tokenA)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	_, err = f.svc.IngestProvider(ctx, id, f.envelope(t), tokenA)
	require.NoError(t, err)
	_, err = f.svc.FinalizeSession(ctx, id, "")
	assert.ErrorIs(t, err, domain.ErrInvalidToken)
}

func TestIngest_ValidationTouchesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.create(t)
	before, err := f.svc.GetSession(ctx, id)
	require.NoError(t, err)

	_, err = f.svc.IngestProvider(ctx, id, f.envelope(t), "")
	assert.ErrorIs(t, err, domain.ErrMissingFinalizeToken)
	_, err = f.svc.IngestProvider(ctx, id, f.envelope(t), "short")
	assert.ErrorIs(t, err, domain.ErrInvalidFinalizeToken)

	env := f.envelope(t)
	env.IV = nil
	_, err = f.svc.IngestProvider(ctx, id, env, tokenA)
	assert.ErrorIs(t, err, domain.ErrMissingFields)

	env = f.envelope(t)
	env.Ciphertext = nil
	_, err = f.svc.IngestProvider(ctx, id, env, tokenA)
	assert.ErrorIs(t, err, domain.ErrMissingFields)

	_, err = f.svc.IngestProvider(ctx, "missing", f.envelope(t), tokenA)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	after, err := f.svc.GetSession(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestIngest_ConcurrentClaimsHaveOneWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.create(t)
	env := f.envelope(t)

	const callers = 12
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		wins      int
		mismatch  int
		winnerTok string
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tok := fmt.Sprintf("token-%02d-xxxxxxxxxxxx", i)
			_, err := f.svc.IngestProvider(ctx, id, env, tok)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
				winnerTok = tok
			case assert.ErrorIs(t, err, domain.ErrTokenMismatch):
				mismatch++
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, callers-1, mismatch)
	sess, err := f.svc.GetSession(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, sess.ProviderCount())

	n, err := f.svc.FinalizeSession(ctx, id, winnerTok)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestChunkedUpload_StagePromoteFetch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.create(t)

	rng := rand.New(rand.NewSource(3))
	entries := make([]string, 500)
	for i := range entries {
		entries[i] = fmt.Sprintf("%x", rng.Int63())
	}
	payload := map[string]any{"entry": entries}
	blobs := map[int][]byte{}
	enc := &chunked.Encoder{ChunkSize: 256}
	manifest, err := enc.Encode(ctx, payload, f.pub, func(ctx context.Context, meta domain.ChunkMeta, ct []byte) error {
		blobs[meta.Index] = ct
		return f.svc.StageChunk(ctx, id, "upload-1", meta.Index, tokenA, ct)
	})
	require.NoError(t, err)
	require.Greater(t, len(manifest), 1)

	// Staging neither claims the token nor changes the status.
	sess, _ := f.svc.GetSession(ctx, id)
	assert.Equal(t, domain.StatusPending, sess.Status)
	assert.False(t, sess.Claimed())

	env, err := chunked.NewEnvelope("upload-1", manifest)
	require.NoError(t, err)

	// A manifest pointing at a different upload fails without writing anything.
	bad := env
	bad.UploadID = "upload-2"
	_, err = f.svc.IngestProvider(ctx, id, bad, tokenA)
	assert.ErrorIs(t, err, domain.ErrChunkMissing)
	sess, _ = f.svc.GetSession(ctx, id)
	assert.False(t, sess.Claimed())

	n, err := f.svc.IngestProvider(ctx, id, env, tokenA)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	for i := range manifest {
		got, err := f.svc.FetchChunk(ctx, id, 0, i)
		require.NoError(t, err)
		assert.Equal(t, blobs[i], got)
	}
	_, err = f.svc.FetchChunk(ctx, id, 0, len(manifest))
	assert.ErrorIs(t, err, domain.ErrChunkNotFound)

	err = f.svc.StageChunk(ctx, id, "upload-3", 0, tokenB, []byte("0123456789abcdef0"))
	assert.ErrorIs(t, err, domain.ErrTokenMismatch)

	_, err = f.svc.FinalizeSession(ctx, id, tokenA)
	require.NoError(t, err)
	err = f.svc.StageChunk(ctx, id, "upload-3", 0, tokenA, []byte("0123456789abcdef0"))
	assert.ErrorIs(t, err, domain.ErrSessionFinalized)
}

func TestStageChunk_Limits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.create(t)
	limit := f.svc.Limits().MaxChunkBytes

	err := f.svc.StageChunk(ctx, id, "u1", 0, tokenA, make([]byte, limit+1))
	assert.ErrorIs(t, err, domain.ErrPayloadTooLarge)
	err = f.svc.StageChunk(ctx, id, "../etc", 0, tokenA, []byte("x"))
	assert.ErrorIs(t, err, domain.ErrInvalidEnvelope)
	err = f.svc.StageChunk(ctx, id, "u1", -1, tokenA, []byte("x"))
	assert.ErrorIs(t, err, domain.ErrInvalidEnvelope)
	err = f.svc.StageChunk(ctx, id, "u1", 0, tokenA, nil)
	assert.ErrorIs(t, err, domain.ErrMissingFields)
}

func TestIngest_ProviderCap(t *testing.T) {
	st, err := store.OpenBoltSessionStore(filepath.Join(t.TempDir(), "relay.db"))
	require.NoError(t, err)
	defer st.Close()
	priv, _ := crypto.GenerateP256()
	pub := crypto.PublicJWK(priv.PublicKey())
	lim := session.DefaultLimits()
	lim.MaxProviders = 2
	svc := session.New(st, session.Config{Limits: lim}, log.Discard().GetLogger("session"), nil)

	ctx := context.Background()
	sess, err := svc.CreateSession(ctx, pub)
	require.NoError(t, err)
	env, err := envelope.Seal(map[string]any{"a": 1}, pub, domain.VersionPlain)
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		_, err := svc.IngestProvider(ctx, sess.ID, env, tokenA)
		require.NoError(t, err)
	}
	_, err = svc.IngestProvider(ctx, sess.ID, env, tokenA)
	assert.ErrorIs(t, err, domain.ErrTooManyProviders)
}

func TestStageChunk_StagingQuota(t *testing.T) {
	st, err := store.OpenBoltSessionStore(filepath.Join(t.TempDir(), "relay.db"))
	require.NoError(t, err)
	defer st.Close()
	priv, _ := crypto.GenerateP256()
	lim := session.DefaultLimits()
	lim.MaxUploads = 2
	lim.MaxStagedBytes = 10
	svc := session.New(st, session.Config{Limits: lim}, log.Discard().GetLogger("session"), nil)

	ctx := context.Background()
	sess, err := svc.CreateSession(ctx, crypto.PublicJWK(priv.PublicKey()))
	require.NoError(t, err)

	// An unclaimed session accepts any well-formed token, so the cap has to
	// hold across senders.
	require.NoError(t, svc.StageChunk(ctx, sess.ID, "u1", 0, tokenA, []byte("aaaa")))
	require.NoError(t, svc.StageChunk(ctx, sess.ID, "u2", 0, tokenB, []byte("bb")))
	err = svc.StageChunk(ctx, sess.ID, "u3", 0, "T3-cccccccccccccccc", []byte("c"))
	assert.ErrorIs(t, err, domain.ErrPayloadTooLarge)

	// Known uploads keep staging until the byte cap.
	require.NoError(t, svc.StageChunk(ctx, sess.ID, "u1", 1, tokenA, []byte("aaa")))
	err = svc.StageChunk(ctx, sess.ID, "u2", 1, tokenB, []byte("bb"))
	assert.ErrorIs(t, err, domain.ErrPayloadTooLarge)

	// Rewriting a staged index replaces its bytes instead of adding to them.
	require.NoError(t, svc.StageChunk(ctx, sess.ID, "u1", 0, tokenA, []byte("aaaaa")))
	err = svc.StageChunk(ctx, sess.ID, "u1", 0, tokenA, []byte("aaaaaa"))
	assert.ErrorIs(t, err, domain.ErrPayloadTooLarge)
}

func TestStatus_NeverRegresses(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(1))
	tokens := []string{tokenA, tokenB, "", "short"}

	for round := 0; round < 5; round++ {
		id := f.create(t)
		last := domain.StatusPending.Rank()
		for step := 0; step < 40; step++ {
			tok := tokens[rng.Intn(len(tokens))]
			if rng.Intn(3) == 0 {
				_, _ = f.svc.FinalizeSession(ctx, id, tok)
			} else {
				_, _ = f.svc.IngestProvider(ctx, id, f.envelope(t), tok)
			}
			sess, err := f.svc.GetSession(ctx, id)
			require.NoError(t, err)
			rank := sess.Status.Rank()
			require.GreaterOrEqual(t, rank, last, "status regressed to %s", sess.Status)
			if sess.Claimed() {
				require.NotEqual(t, domain.StatusPending, sess.Status)
			}
			last = rank
		}
	}
}

func TestSweepExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	old := f.create(t)
	_, err := f.svc.IngestProvider(ctx, old, f.envelope(t), tokenA)
	require.NoError(t, err)

	f.now = f.now.Add(45 * time.Minute)
	fresh := f.create(t)

	f.now = f.now.Add(20 * time.Minute)
	n, err := f.svc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = f.svc.GetSession(ctx, old)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	_, err = f.svc.GetSession(ctx, fresh)
	assert.NoError(t, err)
}

func TestSweeper_RunsAndHalts(t *testing.T) {
	f := newFixture(t)
	id := f.create(t)
	f.now = f.now.Add(2 * session.DefaultTTL)

	w := session.NewSweeper(f.svc, 10*time.Millisecond, log.Discard().GetLogger("sweeper"))
	w.Start()
	defer w.Halt()

	require.Eventually(t, func() bool {
		_, err := f.store.LoadSession(context.Background(), id)
		return err != nil
	}, 2*time.Second, 10*time.Millisecond)
}
