package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures so transports can map them consistently.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindValidation
	KindAuthorization
	KindState
	KindNotFound
	KindTransient
	KindTooLarge
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthorization:
		return "authorization"
	case KindState:
		return "state"
	case KindNotFound:
		return "not_found"
	case KindTransient:
		return "transient"
	case KindTooLarge:
		return "too_large"
	default:
		return "internal"
	}
}

// Error is a classified failure with a stable code. Two errors match under
// errors.Is when their codes are equal, so a detailed error created with
// Errorf still matches its sentinel.
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return e.Code + ": " + e.Message
}

// Is matches on Code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var (
	ErrMissingFields        = &Error{KindValidation, "missing_fields", "required envelope fields are missing"}
	ErrMissingFinalizeToken = &Error{KindValidation, "missing_finalize_token", "finalize token is required"}
	ErrInvalidFinalizeToken = &Error{KindValidation, "invalid_finalize_token", "finalize token is too short"}
	ErrInvalidPublicKey     = &Error{KindValidation, "invalid_public_key", "public key is not a P-256 JWK"}
	ErrInvalidEnvelope      = &Error{KindValidation, "invalid_envelope", "envelope is malformed"}
	ErrChunkMissing         = &Error{KindValidation, "chunk_missing", "staged chunk is missing"}
	ErrInvalidRequest       = &Error{KindValidation, "invalid_request", "request is malformed"}

	ErrTokenMismatch = &Error{KindAuthorization, "token_mismatch", "finalize token does not match the claimed token"}
	ErrInvalidToken  = &Error{KindAuthorization, "invalid_token", "finalize token is invalid"}

	ErrSessionFinalized = &Error{KindState, "session_finalized", "session is already finalized"}
	ErrNotClaimed       = &Error{KindState, "not_claimed", "no finalize token has been claimed"}
	ErrNoProviders      = &Error{KindState, "no_providers", "session has no providers"}
	ErrTooManyProviders = &Error{KindState, "too_many_providers", "session provider limit reached"}

	ErrSessionNotFound = &Error{KindNotFound, "session_not_found", "session not found"}
	ErrChunkNotFound   = &Error{KindNotFound, "not_found", "chunk not found"}

	ErrPayloadTooLarge = &Error{KindTooLarge, "payload_too_large", "payload exceeds the configured limit"}

	ErrPollTimeout = &Error{KindTransient, "poll_timeout", "session was not finalized in time"}
	ErrUnavailable = &Error{KindTransient, "unavailable", "relay is unavailable"}
)

// Errorf returns an error carrying base's kind and code with a detailed message.
func Errorf(base *Error, format string, args ...any) error {
	return &Error{Kind: base.Kind, Code: base.Code, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf returns the code of the first *Error in err's chain, or "internal".
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "internal"
}

// ErrorByCode returns the sentinel for code, or nil if code is unknown.
func ErrorByCode(code string) *Error {
	for _, e := range []*Error{
		ErrMissingFields, ErrMissingFinalizeToken, ErrInvalidFinalizeToken,
		ErrInvalidPublicKey, ErrInvalidEnvelope, ErrChunkMissing, ErrInvalidRequest,
		ErrTokenMismatch, ErrInvalidToken,
		ErrSessionFinalized, ErrNotClaimed, ErrNoProviders, ErrTooManyProviders,
		ErrSessionNotFound, ErrChunkNotFound,
		ErrPayloadTooLarge, ErrPollTimeout, ErrUnavailable,
	} {
		if e.Code == code {
			return e
		}
	}
	return nil
}
