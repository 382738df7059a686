// Package commands defines the healthrelay CLI and wires dependencies for
// subcommands.
//
// Consumer commands
//
//   - keygen          Create the consumer P-256 key, protected by a passphrase
//   - fingerprint     Print the consumer key fingerprint
//   - create-session  Open a session on the relay and remember it locally
//   - receive         Wait for a session, then fetch and decrypt every payload
//   - sessions list   Show remembered sessions
//   - sessions clear  Forget every remembered session
//
// Browser simulator commands
//
//   - send      Encrypt JSON files for a session's recipient and upload them
//   - finalize  Mark a session complete
//
// # Implementation
//
// The root command builds the log backend and the dependency graph (key and
// connection stores, relay client, upload and receive services) before any
// subcommand runs.
package commands
