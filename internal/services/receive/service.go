package receive

import (
	"context"
	"crypto/ecdh"
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/op/go-logging.v1"

	"healthrelay/internal/domain"
	"healthrelay/internal/protocol/chunked"
	"healthrelay/internal/protocol/envelope"
	"healthrelay/internal/util/retry"
)

const (
	// DefaultMaxAttempts is how many polls AwaitSession makes.
	DefaultMaxAttempts = 60
	// DefaultPollTimeout is the wait requested per poll.
	DefaultPollTimeout = 30 * time.Second
)

// KeySource supplies the consumer's private key.
type KeySource interface {
	PrivateKey() (*ecdh.PrivateKey, error)
}

// Config tunes a Service. Zero values use the defaults.
type Config struct {
	MaxAttempts int
	PollTimeout time.Duration
	// Concurrency bounds simultaneous chunk fetches.
	Concurrency int
	Retry       retry.Policy
}

// Service receives and decrypts a session's payloads.
type Service struct {
	relay     domain.RelayClient
	keys      KeySource
	assembler *chunked.Assembler
	cfg       Config
	log       *logging.Logger
}

// New constructs a receive Service.
func New(relay domain.RelayClient, keys KeySource, cfg Config, log *logging.Logger) *Service {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = DefaultPollTimeout
	}
	if cfg.Retry == (retry.Policy{}) {
		cfg.Retry = retry.DefaultPolicy()
	}
	return &Service{
		relay:     relay,
		keys:      keys,
		assembler: &chunked.Assembler{Concurrency: cfg.Concurrency},
		cfg:       cfg,
		log:       log,
	}
}

// AwaitSession polls until the session is ready. After MaxAttempts polls it
// fails with ErrPollTimeout. Transient poll failures use up an attempt;
// any other failure, such as session_not_found, is returned at once.
func (s *Service) AwaitSession(ctx context.Context, id domain.SessionID) (domain.PollResult, error) {
	var last domain.PollResult
	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		res, err := s.relay.PollSession(ctx, id, s.cfg.PollTimeout)
		switch {
		case err == nil:
			last = res
			if res.Ready {
				return res, nil
			}
			s.log.Infof("session %s: waiting (%s, %d providers, attempt %d/%d)",
				id, res.Status, res.ProviderCount, attempt, s.cfg.MaxAttempts)
		case ctx.Err() != nil:
			return domain.PollResult{}, ctx.Err()
		case domain.KindOf(err) == domain.KindTransient:
			s.log.Warningf("session %s: poll failed: %v", id, err)
			if err := sleep(ctx, s.cfg.Retry.InitialInterval); err != nil {
				return domain.PollResult{}, err
			}
		default:
			return domain.PollResult{}, err
		}
	}
	return last, domain.Errorf(domain.ErrPollTimeout, "session %s not ready after %d polls", id, s.cfg.MaxAttempts)
}

// CollectSession waits for the session and decrypts every provider payload,
// in provider order.
func (s *Service) CollectSession(ctx context.Context, id domain.SessionID) ([]domain.ProviderPayload, error) {
	res, err := s.AwaitSession(ctx, id)
	if err != nil {
		return nil, err
	}
	priv, err := s.keys.PrivateKey()
	if err != nil {
		return nil, fmt.Errorf("load consumer key: %w", err)
	}

	out := make([]domain.ProviderPayload, 0, len(res.Providers))
	for i, env := range res.Providers {
		data, err := s.open(ctx, id, i, env, priv)
		if err != nil {
			return nil, fmt.Errorf("provider %d: %w", i, err)
		}
		out = append(out, domain.ProviderPayload{Index: i, Version: env.Version, Data: data})
	}
	return out, nil
}

func (s *Service) open(
	ctx context.Context,
	id domain.SessionID,
	providerIndex int,
	env domain.Envelope,
	priv *ecdh.PrivateKey,
) (json.RawMessage, error) {
	if err := envelope.VerifyDigest(env); err != nil {
		return nil, err
	}
	if !env.Chunked() {
		return envelope.Open(env, priv)
	}

	start := time.Now()
	data, err := s.assembler.Open(ctx, env, priv, s.fetcher(id, providerIndex, env.Chunks))
	if err != nil {
		return nil, err
	}
	s.log.Debugf("session %s: provider %d reassembled from %d chunks in %s",
		id, providerIndex, len(env.Chunks), time.Since(start).Round(time.Millisecond))
	return data, nil
}

// fetcher returns a chunk fetcher that retries transient failures and
// checks each blob against its manifest size.
func (s *Service) fetcher(id domain.SessionID, providerIndex int, manifest []domain.ChunkMeta) chunked.Fetcher {
	return func(ctx context.Context, index int) ([]byte, error) {
		var blob []byte
		err := retry.Do(ctx, s.cfg.Retry, func(ctx context.Context) error {
			b, err := s.relay.FetchChunk(ctx, id, providerIndex, index)
			if err != nil {
				return err
			}
			blob = b
			return nil
		})
		if err != nil {
			return nil, err
		}
		if want := manifest[index].Size; want > 0 && len(blob) != want {
			return nil, domain.Errorf(domain.ErrInvalidEnvelope, "chunk %d is %d bytes, manifest says %d",
				index, len(blob), want)
		}
		return blob, nil
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Compile-time assertion that Service implements domain.ReceiveService.
var _ domain.ReceiveService = (*Service)(nil)
