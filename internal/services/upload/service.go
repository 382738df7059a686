package upload

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gopkg.in/op/go-logging.v1"

	"healthrelay/internal/domain"
	"healthrelay/internal/protocol/chunked"
	"healthrelay/internal/protocol/envelope"
	"healthrelay/internal/util/retry"
)

// Service uploads encrypted payloads through a relay.
type Service struct {
	relay   domain.RelayClient
	encoder *chunked.Encoder
	policy  retry.Policy
	log     *logging.Logger
}

// New constructs an upload Service. chunkSize <= 0 uses the default window.
func New(relay domain.RelayClient, chunkSize int, log *logging.Logger) *Service {
	return &Service{
		relay:   relay,
		encoder: &chunked.Encoder{ChunkSize: chunkSize},
		policy:  retry.DefaultPolicy(),
		log:     log,
	}
}

// SendPayload encrypts payload as a chunked envelope and ingests it.
//
// Steps:
//  1. Stream the JSON through the compressor, sealing each window with its
//     own ephemeral key and staging it under a fresh upload id. Staging is
//     an overwrite, so transient failures are retried.
//  2. Ingest the manifest; the relay promotes the staged chunks and claims
//     the finalize token on the first ingestion.
func (s *Service) SendPayload(
	ctx context.Context,
	id domain.SessionID,
	recipient domain.JWK,
	finalizeToken string,
	payload any,
) (int, error) {
	uploadID := domain.UploadID(uuid.NewString())
	manifest, err := s.encoder.Encode(ctx, payload, recipient,
		func(ctx context.Context, meta domain.ChunkMeta, ct []byte) error {
			return retry.Do(ctx, s.policy, func(ctx context.Context) error {
				return s.relay.StageChunk(ctx, id, uploadID, meta.Index, finalizeToken, ct)
			})
		})
	if err != nil {
		return 0, fmt.Errorf("upload %s: %w", uploadID, err)
	}
	env, err := chunked.NewEnvelope(uploadID, manifest)
	if err != nil {
		return 0, err
	}

	count, err := s.relay.IngestProvider(ctx, id, env, finalizeToken)
	if err != nil {
		return 0, err
	}
	s.log.Infof("session %s: sent %d chunks as provider %d", id, len(manifest), count-1)
	return count, nil
}

// SendEnvelope seals payload as a single legacy version 1 or 2 envelope.
func (s *Service) SendEnvelope(
	ctx context.Context,
	id domain.SessionID,
	recipient domain.JWK,
	finalizeToken string,
	payload any,
	version domain.EnvelopeVersion,
) (int, error) {
	if version != domain.VersionPlain && version != domain.VersionGzip {
		return 0, domain.Errorf(domain.ErrInvalidEnvelope, "single envelopes are version 1 or 2, not %d", version)
	}
	env, err := envelope.Seal(payload, recipient, version)
	if err != nil {
		return 0, err
	}
	return s.relay.IngestProvider(ctx, id, env, finalizeToken)
}

// FinalizeSession marks the session complete.
func (s *Service) FinalizeSession(ctx context.Context, id domain.SessionID, finalizeToken string) (int, error) {
	count, err := s.relay.FinalizeSession(ctx, id, finalizeToken)
	if err != nil {
		return 0, err
	}
	s.log.Noticef("session %s finalized with %d providers", id, count)
	return count, nil
}

// Compile-time assertion that Service implements domain.UploadService.
var _ domain.UploadService = (*Service)(nil)
