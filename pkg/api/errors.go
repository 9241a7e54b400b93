package api

import (
	"errors"
	"fmt"
)

// The boundary distinguishes three failure classes. Validation failures are
// caught before any network call and are never retried. Authorization
// failures abort the operation. Transient failures (connectivity, timeouts,
// server 5xx) are safe to retry; the sync loop simply waits for its next tick.

// ValidationError reports a request rejected before it was sent.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return "validation: " + e.Msg }

// AuthorizationError reports a request refused by the server (401/403).
type AuthorizationError struct {
	Status int
	Msg    string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("authorization (%d): %s", e.Status, e.Msg)
}

// TransientError wraps connectivity and server-side failures that may succeed
// on retry.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return "transient: " + e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err is retryable.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsValidation reports whether err was rejected pre-network.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsAuthorization reports whether the server refused the caller.
func IsAuthorization(err error) bool {
	var ae *AuthorizationError
	return errors.As(err, &ae)
}
