// Package relay provides implementations of domain.RelayClient: HTTP for
// talking to a remote relay and Local for calling the services in process.
//
// The relay brokers encrypted envelopes between a browser and a consumer
// without holding any decryption key. This client is used by both sides:
//   - Creating sessions and polling for readiness (consumer).
//   - Staging chunk blobs, ingesting envelopes and finalizing (browser).
//   - Fetching chunk ciphertext for local reassembly (consumer).
//
// All requests accept a context for cancellation and deadlines. Error bodies
// are mapped back onto the domain sentinels, so callers can match them with
// errors.Is; network failures and 5xx answers are reported as transient.
package relay
