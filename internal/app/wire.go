package app

import (
	"net/http"

	"healthrelay/internal/domain"
	"healthrelay/internal/keys"
	"healthrelay/internal/log"
	"healthrelay/internal/relay"
	"healthrelay/internal/services/receive"
	"healthrelay/internal/services/upload"
	"healthrelay/internal/store"
)

// Wire bundles all stores, services, and clients for the CLI.
type Wire struct {
	Keys        *keys.Provider
	KeyStore    *store.KeyFileStore
	Connections domain.ConnectionStore
	Relay       domain.RelayClient
	Upload      *upload.Service
	Receive     *receive.Service
	HTTP        *http.Client
}

// NewWire constructs the dependency graph from cfg.
func NewWire(cfg Config, backend *log.Backend) (*Wire, error) {
	// File-based stores
	keyStore := store.NewKeyFileStore(cfg.Home)
	connStore := store.NewConnectionFileStore(cfg.Home)
	provider := keys.NewProvider(keyStore, cfg.Passphrase)

	// Polls are held open by the relay, so the client must not time out first.
	httpClient := cfg.HTTP
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	rc := relay.NewHTTP(cfg.RelayURL)
	rc.HTTP = httpClient

	return &Wire{
		Keys:        provider,
		KeyStore:    keyStore,
		Connections: connStore,
		Relay:       rc,
		Upload:      upload.New(rc, cfg.ChunkSize, backend.GetLogger("upload")),
		Receive:     receive.New(rc, provider, receive.Config{}, backend.GetLogger("receive")),
		HTTP:        httpClient,
	}, nil
}
