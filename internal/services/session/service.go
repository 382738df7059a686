package session

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"regexp"
	"time"

	"github.com/google/uuid"
	"gopkg.in/op/go-logging.v1"

	"healthrelay/internal/crypto"
	"healthrelay/internal/domain"
	"healthrelay/internal/metrics"
	"healthrelay/internal/protocol/envelope"
)

// DefaultTTL is how long a session lives after creation, whatever its status.
const DefaultTTL = 60 * time.Minute

var uploadIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// Limits bounds what a session accepts.
type Limits struct {
	// MinTokenLength is the shortest finalize token accepted.
	MinTokenLength int
	// MaxProviders caps the envelopes per session.
	MaxProviders int
	// MaxChunkBytes caps one staged chunk blob.
	MaxChunkBytes int
	// MaxUploads caps the distinct upload ids staged at once per session.
	MaxUploads int
	// MaxStagedBytes caps the total staged bytes per session.
	MaxStagedBytes int64
	// Envelope bounds inline ciphertext and manifest length.
	Envelope envelope.Limits
}

// DefaultLimits returns the limits used when none are configured.
func DefaultLimits() Limits {
	return Limits{
		MinTokenLength: 16,
		MaxProviders:   64,
		MaxChunkBytes:  8 << 20,
		MaxUploads:     16,
		MaxStagedBytes: 512 << 20,
		Envelope:       envelope.DefaultLimits,
	}
}

// Config configures a Service. Zero values fall back to defaults.
type Config struct {
	TTL    time.Duration
	Limits Limits
	// Now is the clock, time.Now if nil.
	Now func() time.Time
}

// Service is the session lifecycle controller.
type Service struct {
	store   domain.SessionStore
	log     *logging.Logger
	metrics *metrics.Metrics
	ttl     time.Duration
	limits  Limits
	now     func() time.Time
}

// New constructs a Service over store. m may be nil.
func New(store domain.SessionStore, cfg Config, log *logging.Logger, m *metrics.Metrics) *Service {
	s := &Service{
		store:   store,
		log:     log,
		metrics: m,
		ttl:     cfg.TTL,
		limits:  cfg.Limits,
		now:     cfg.Now,
	}
	def := DefaultLimits()
	if s.ttl <= 0 {
		s.ttl = DefaultTTL
	}
	if s.limits.MinTokenLength <= 0 {
		s.limits.MinTokenLength = def.MinTokenLength
	}
	if s.limits.MaxProviders <= 0 {
		s.limits.MaxProviders = def.MaxProviders
	}
	if s.limits.MaxChunkBytes <= 0 {
		s.limits.MaxChunkBytes = def.MaxChunkBytes
	}
	if s.limits.MaxUploads <= 0 {
		s.limits.MaxUploads = def.MaxUploads
	}
	if s.limits.MaxStagedBytes <= 0 {
		s.limits.MaxStagedBytes = def.MaxStagedBytes
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Limits returns the effective limits.
func (s *Service) Limits() Limits { return s.limits }

// CreateSession starts a pending session for the consumer's public key.
func (s *Service) CreateSession(ctx context.Context, publicKey domain.JWK) (domain.Session, error) {
	if publicKey.IsZero() {
		return domain.Session{}, domain.Errorf(domain.ErrInvalidPublicKey, "publicKey is required")
	}
	if _, err := crypto.PublicKeyFromJWK(publicKey); err != nil {
		return domain.Session{}, domain.Errorf(domain.ErrInvalidPublicKey, "%v", err)
	}

	sess := domain.Session{
		ID:        domain.SessionID(uuid.NewString()),
		CreatedAt: s.now().UTC(),
		Status:    domain.StatusPending,
		PublicKey: publicKey.Public(),
	}
	if err := s.store.CreateSession(ctx, sess); err != nil {
		return domain.Session{}, err
	}
	s.metrics.SessionCreated()
	s.log.Infof("session %s created", sess.ID)
	return sess, nil
}

// IngestProvider appends env to the session and returns the new provider count.
//
// Steps:
//  1. Validate the token and envelope before touching the store.
//  2. In one transaction: refuse finalized sessions, verify or claim the
//     token, promote staged chunks for chunked envelopes, append the header
//     and move the session to collecting.
func (s *Service) IngestProvider(
	ctx context.Context,
	id domain.SessionID,
	env domain.Envelope,
	finalizeToken string,
) (int, error) {
	if err := s.checkToken(finalizeToken); err != nil {
		return 0, s.reject(id, err)
	}
	if err := envelope.Validate(env, s.limits.Envelope); err != nil {
		return 0, s.reject(id, err)
	}
	env.Digest = ""
	if env.Chunked() {
		env.Ciphertext = nil
	}
	digest, err := envelope.Digest(env)
	if err != nil {
		return 0, err
	}
	env.Digest = digest

	var count int
	err = s.store.UpdateSession(ctx, id, func(tx domain.SessionTx) error {
		sess := tx.Session()
		if sess.Status == domain.StatusFinalized {
			return domain.ErrSessionFinalized
		}
		if sess.Claimed() && !tokenMatches(sess.FinalizeTokenHash, finalizeToken) {
			return domain.ErrTokenMismatch
		}
		if len(sess.Providers) >= s.limits.MaxProviders {
			return domain.Errorf(domain.ErrTooManyProviders, "limit is %d", s.limits.MaxProviders)
		}

		providerIndex := len(sess.Providers)
		if env.Chunked() {
			if err := tx.PromoteChunks(env.UploadID, providerIndex, len(env.Chunks)); err != nil {
				return err
			}
		}
		sess.Providers = append(sess.Providers, env)
		if !sess.Claimed() {
			sess.FinalizeTokenHash = hashToken(finalizeToken)
		}
		sess.Status = domain.StatusCollecting
		count = len(sess.Providers)
		return nil
	})
	if err != nil {
		return 0, s.reject(id, err)
	}
	s.metrics.EnvelopeIngested(int(env.Version))
	s.log.Infof("session %s: provider %d ingested (version %d)", id, count-1, env.Version)
	return count, nil
}

// StageChunk stores one chunk blob of a chunked upload ahead of its
// manifest. It verifies but never claims the finalize token.
func (s *Service) StageChunk(
	ctx context.Context,
	id domain.SessionID,
	uploadID domain.UploadID,
	index int,
	finalizeToken string,
	data []byte,
) error {
	if err := s.checkToken(finalizeToken); err != nil {
		return s.reject(id, err)
	}
	if !uploadIDPattern.MatchString(string(uploadID)) {
		return s.reject(id, domain.Errorf(domain.ErrInvalidEnvelope, "malformed uploadId"))
	}
	maxChunks := s.limits.Envelope.MaxChunks
	if maxChunks <= 0 {
		maxChunks = envelope.DefaultLimits.MaxChunks
	}
	if index < 0 || index >= maxChunks {
		return s.reject(id, domain.Errorf(domain.ErrInvalidEnvelope, "chunk index %d out of range", index))
	}
	if len(data) == 0 {
		return s.reject(id, domain.Errorf(domain.ErrMissingFields, "chunk body is empty"))
	}
	if len(data) > s.limits.MaxChunkBytes {
		return s.reject(id, domain.Errorf(domain.ErrPayloadTooLarge, "chunk is %d bytes, limit %d",
			len(data), s.limits.MaxChunkBytes))
	}

	err := s.store.UpdateSession(ctx, id, func(tx domain.SessionTx) error {
		sess := tx.Session()
		if sess.Status == domain.StatusFinalized {
			return domain.ErrSessionFinalized
		}
		if sess.Claimed() && !tokenMatches(sess.FinalizeTokenHash, finalizeToken) {
			return domain.ErrTokenMismatch
		}
		usage := tx.StagingUsage(uploadID, index)
		if !usage.HasUpload && usage.Uploads >= s.limits.MaxUploads {
			return domain.Errorf(domain.ErrPayloadTooLarge, "session already has %d staged uploads", usage.Uploads)
		}
		if usage.Bytes+int64(len(data)) > s.limits.MaxStagedBytes {
			return domain.Errorf(domain.ErrPayloadTooLarge, "staged data would exceed %d bytes", s.limits.MaxStagedBytes)
		}
		return tx.StageChunk(uploadID, index, data)
	})
	if err != nil {
		return s.reject(id, err)
	}
	s.metrics.ChunkStaged(len(data))
	s.log.Debugf("session %s: staged chunk %d of upload %s (%d bytes)", id, index, uploadID, len(data))
	return nil
}

// FinalizeSession marks the session complete. Repeating it with the claimed
// token on a finalized session succeeds without changing anything.
func (s *Service) FinalizeSession(ctx context.Context, id domain.SessionID, finalizeToken string) (int, error) {
	var (
		count   int
		changed bool
	)
	err := s.store.UpdateSession(ctx, id, func(tx domain.SessionTx) error {
		sess := tx.Session()
		if !sess.Claimed() {
			return domain.ErrNotClaimed
		}
		if finalizeToken == "" || !tokenMatches(sess.FinalizeTokenHash, finalizeToken) {
			return domain.ErrInvalidToken
		}
		count = len(sess.Providers)
		if sess.Status == domain.StatusFinalized {
			return nil
		}
		if count == 0 {
			return domain.ErrNoProviders
		}
		sess.Status = domain.StatusFinalized
		changed = true
		return nil
	})
	if err != nil {
		return 0, s.reject(id, err)
	}
	if changed {
		s.metrics.Finalized()
		s.log.Noticef("session %s finalized with %d providers", id, count)
	}
	return count, nil
}

// GetSession returns the stored record.
func (s *Service) GetSession(ctx context.Context, id domain.SessionID) (domain.Session, error) {
	return s.store.LoadSession(ctx, id)
}

// FetchChunk returns the ciphertext of one promoted chunk.
func (s *Service) FetchChunk(
	ctx context.Context,
	id domain.SessionID,
	providerIndex int,
	chunkIndex int,
) ([]byte, error) {
	if providerIndex < 0 || chunkIndex < 0 {
		return nil, domain.ErrChunkNotFound
	}
	b, err := s.store.LoadChunk(ctx, id, providerIndex, chunkIndex)
	if err != nil {
		return nil, err
	}
	s.metrics.ChunkServed()
	return b, nil
}

// DeleteSession removes a session and its chunks.
func (s *Service) DeleteSession(ctx context.Context, id domain.SessionID) error {
	if err := s.store.DeleteSession(ctx, id); err != nil {
		return err
	}
	s.log.Infof("session %s deleted", id)
	return nil
}

// SweepExpired deletes every session older than the TTL.
func (s *Service) SweepExpired(ctx context.Context) (int, error) {
	n, err := s.store.DeleteExpired(ctx, s.now().Add(-s.ttl))
	if err != nil {
		return 0, err
	}
	s.metrics.Swept(n)
	if n > 0 {
		s.log.Infof("swept %d expired sessions", n)
	}
	return n, nil
}

func (s *Service) checkToken(token string) error {
	if token == "" {
		return domain.ErrMissingFinalizeToken
	}
	if len(token) < s.limits.MinTokenLength {
		return domain.Errorf(domain.ErrInvalidFinalizeToken, "finalize token must be at least %d characters",
			s.limits.MinTokenLength)
	}
	return nil
}

// reject records a refused operation. Authorization failures are logged
// with the session id only.
func (s *Service) reject(id domain.SessionID, err error) error {
	code := domain.CodeOf(err)
	s.metrics.Rejected(code)
	switch domain.KindOf(err) {
	case domain.KindAuthorization:
		s.log.Warningf("session %s: %s", id, code)
	case domain.KindInternal:
		s.log.Errorf("session %s: %v", id, err)
	default:
		s.log.Debugf("session %s: rejected: %v", id, err)
	}
	return err
}

func hashToken(token string) []byte {
	sum := sha256.Sum256([]byte(token))
	return sum[:]
}

func tokenMatches(hash []byte, token string) bool {
	return subtle.ConstantTimeCompare(hash, hashToken(token)) == 1
}

// Compile-time assertion that Service implements domain.SessionService.
var _ domain.SessionService = (*Service)(nil)
