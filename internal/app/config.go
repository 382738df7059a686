package app

import "net/http"

// Config holds runtime wiring options for the consumer CLI.
type Config struct {
	Home       string       // config directory, e.g. $HOME/.healthrelay
	RelayURL   string       // relay base URL, e.g. http://127.0.0.1:8080
	Passphrase string       // protects the consumer key file
	ChunkSize  int          // optional; compressed bytes per uploaded chunk
	HTTP       *http.Client // optional; defaults to a client without a timeout
}
