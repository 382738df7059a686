// Package store provides persistence for the relay and the consumer CLI.
//
// The relay keeps sessions and chunk blobs in a bbolt database
// (BoltSessionStore); session records are CBOR encoded and every state
// change happens inside one read-write transaction. The consumer side uses
// small files under the CLI home directory, written atomically via a temp
// file and rename:
//   - Consumer key pair, encrypted under a passphrase (KeyFileStore)
//   - Connection cache of created sessions (ConnectionFileStore)
package store
