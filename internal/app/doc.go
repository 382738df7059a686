// Package app wires application dependencies.
//
// For the consumer CLI it builds the key and connection stores, the key
// provider, the relay client and the upload/receive services from Config,
// exposing them via the Wire struct. For the relay it loads the TOML
// RelayConfig and assembles the store, services, HTTP server and sweeper
// into a Relay.
package app
