package poll

import (
	"context"
	"time"

	"gopkg.in/op/go-logging.v1"

	"healthrelay/internal/domain"
	"healthrelay/internal/metrics"
)

const (
	// DefaultMaxWait is the longest a single poll may be held open.
	DefaultMaxWait = 60 * time.Second
	// DefaultInterval is how often readiness is re-checked.
	DefaultInterval = 500 * time.Millisecond
)

// SessionReader is the read side of the session controller.
type SessionReader interface {
	GetSession(ctx context.Context, id domain.SessionID) (domain.Session, error)
}

// Service answers long-polls.
type Service struct {
	sessions SessionReader
	log      *logging.Logger
	metrics  *metrics.Metrics
	maxWait  time.Duration
	interval time.Duration
}

// New constructs a poll Service. Non-positive durations use the defaults.
func New(
	sessions SessionReader,
	maxWait time.Duration,
	interval time.Duration,
	log *logging.Logger,
	m *metrics.Metrics,
) *Service {
	if maxWait <= 0 {
		maxWait = DefaultMaxWait
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Service{
		sessions: sessions,
		log:      log,
		metrics:  m,
		maxWait:  maxWait,
		interval: interval,
	}
}

// Clamp bounds a requested wait to [0, max wait].
func (s *Service) Clamp(wait time.Duration) time.Duration {
	if wait < 0 {
		return 0
	}
	if wait > s.maxWait {
		return s.maxWait
	}
	return wait
}

// PollSession waits up to wait for the session to become ready. A timeout is
// not an error: the result then reports ready=false with the current status
// and provider count. Unknown sessions fail with session_not_found.
func (s *Service) PollSession(
	ctx context.Context,
	id domain.SessionID,
	wait time.Duration,
) (domain.PollResult, error) {
	start := time.Now()
	wait = s.Clamp(wait)

	deadline := time.NewTimer(wait)
	defer deadline.Stop()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		sess, err := s.sessions.GetSession(ctx, id)
		if err != nil {
			s.metrics.Polled("error", time.Since(start).Seconds())
			return domain.PollResult{}, err
		}
		if sess.Ready() {
			s.metrics.Polled("ready", time.Since(start).Seconds())
			s.log.Debugf("session %s: poll ready after %s", id, time.Since(start).Round(time.Millisecond))
			return Project(sess), nil
		}

		select {
		case <-ctx.Done():
			s.metrics.Polled("error", time.Since(start).Seconds())
			return domain.PollResult{}, ctx.Err()
		case <-deadline.C:
			s.metrics.Polled("timeout", time.Since(start).Seconds())
			// One last look so a finalize racing the deadline is not missed.
			sess, err := s.sessions.GetSession(ctx, id)
			if err != nil {
				return domain.PollResult{}, err
			}
			return Project(sess), nil
		case <-ticker.C:
		}
	}
}

// Project builds the poll answer for sess. Envelope headers are only
// included once the session is ready.
func Project(sess domain.Session) domain.PollResult {
	res := domain.PollResult{
		Ready:         sess.Ready(),
		Status:        sess.Status,
		ProviderCount: sess.ProviderCount(),
	}
	if res.Ready {
		res.Providers = make([]domain.Envelope, len(sess.Providers))
		for i, p := range sess.Providers {
			res.Providers[i] = p.Header()
		}
	}
	return res
}

// Compile-time assertion that Service implements domain.PollService.
var _ domain.PollService = (*Service)(nil)
