// Package domain defines core data models and interfaces shared across the
// relay, the browser-side uploader and the consumer.
// It contains plain types (wire/state), contracts (interfaces) and the error
// taxonomy with its stable wire codes.
package domain
