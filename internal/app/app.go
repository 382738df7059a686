package app

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/op/go-logging.v1"

	"healthrelay/internal/api"
	"healthrelay/internal/log"
	"healthrelay/internal/metrics"
	"healthrelay/internal/protocol/envelope"
	"healthrelay/internal/schema"
	"healthrelay/internal/services/poll"
	"healthrelay/internal/services/session"
	"healthrelay/internal/store"
)

// Relay is the assembled relay server: store, services, HTTP server and
// background sweeper.
type Relay struct {
	Config   *RelayConfig
	Store    *store.BoltSessionStore
	Sessions *session.Service
	Polls    *poll.Service
	Metrics  *metrics.Metrics
	Server   *api.Server

	sweeper *session.Sweeper
	log     *logging.Logger
}

// NewRelay builds the relay described by cfg. cfg must have been validated.
func NewRelay(cfg *RelayConfig, backend *log.Backend) (*Relay, error) {
	if err := os.MkdirAll(cfg.Storage.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	st, err := store.OpenBoltSessionStore(cfg.Storage.Path())
	if err != nil {
		return nil, err
	}
	validator, err := schema.NewValidator()
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enable {
		m = metrics.New()
	}

	sessions := session.New(st, session.Config{
		TTL: cfg.Session.TTL(),
		Limits: session.Limits{
			MinTokenLength: cfg.Limits.MinTokenLength,
			MaxProviders:   cfg.Limits.MaxProviders,
			MaxChunkBytes:  cfg.Limits.MaxChunkBytes,
			MaxUploads:     cfg.Limits.MaxUploads,
			MaxStagedBytes: cfg.Limits.MaxStagedBytes,
			Envelope: envelope.Limits{
				MaxCiphertextBytes: cfg.Limits.MaxRequestBytes,
				MaxChunks:          cfg.Limits.MaxChunks,
			},
		},
	}, backend.GetLogger("session"), m)
	polls := poll.New(sessions, cfg.Session.PollMaxWait(), cfg.Session.PollInterval(),
		backend.GetLogger("poll"), m)

	handler := api.NewSessionHandler(sessions, polls, validator, api.SessionHandlerConfig{
		PublicURL:       cfg.Server.PublicURL,
		MaxRequestBytes: int64(cfg.Limits.MaxRequestBytes),
		MaxChunkBytes:   int64(cfg.Limits.MaxChunkBytes),
		MaxPollWait:     cfg.Session.PollMaxWait(),
	}, backend.GetLogger("api"))

	server := api.NewServer(api.ServerConfig{
		ListenAddr:      cfg.Server.ListenAddr,
		AllowedOrigins:  cfg.Server.AllowedOrigins,
		ReadTimeout:     time.Duration(cfg.Server.ReadTimeoutSec) * time.Second,
		WriteTimeout:    cfg.Session.PollMaxWait() + 10*time.Second,
		ShutdownTimeout: time.Duration(cfg.Server.ShutdownTimeoutSec) * time.Second,
		EnableMetrics:   cfg.Metrics.Enable,
	}, backend.GetLogger("http"), m, st, handler)

	return &Relay{
		Config:   cfg,
		Store:    st,
		Sessions: sessions,
		Polls:    polls,
		Metrics:  m,
		Server:   server,
		sweeper:  session.NewSweeper(sessions, cfg.Session.SweepInterval(), backend.GetLogger("sweeper")),
		log:      backend.GetLogger("relay"),
	}, nil
}

// Start launches the sweeper and the HTTP listener. The returned channel
// reports a listener failure.
func (r *Relay) Start() <-chan error {
	r.sweeper.Start()
	r.log.Noticef("relay starting (db %s, session ttl %s)", r.Config.Storage.Path(), r.Config.Session.TTL())
	return r.Server.RunInBackground()
}

// Shutdown drains HTTP requests, stops the sweeper and closes the store.
func (r *Relay) Shutdown() {
	r.Server.Shutdown()
	r.sweeper.Halt()
	if err := r.Store.Close(); err != nil {
		r.log.Errorf("close store: %v", err)
	}
	r.log.Notice("relay stopped")
}
