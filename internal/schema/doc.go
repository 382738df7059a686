// Package schema validates relay request bodies against embedded JSON
// schemas and computes canonical (RFC 8785) digests of JSON documents.
package schema
