package token

import (
	"errors"
	"fmt"
)

// Reason distinguishes why token verification failed.
type Reason string

const (
	// ReasonExpired marks a token past its exp claim.
	ReasonExpired Reason = "expired"
	// ReasonInvalidSignature marks a token that failed signature or parse checks.
	ReasonInvalidSignature Reason = "invalid_signature"
	// ReasonWrongType marks an access token presented as refresh or vice versa.
	ReasonWrongType Reason = "wrong_type"
	// ReasonRevoked marks a refresh token whose record was revoked.
	ReasonRevoked Reason = "revoked"
	// ReasonUserNotFound marks a token whose subject no longer exists.
	ReasonUserNotFound Reason = "user_not_found"
	// ReasonUserDeactivated marks a token whose subject was deactivated.
	ReasonUserDeactivated Reason = "user_deactivated"
)

// Error is the single error kind surfaced by token verification. Raw parse
// failures never escape this package.
type Error struct {
	Reason Reason
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("token: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("token: %s", e.Reason)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ReasonOf extracts the Reason from an error, or empty when the error is not
// a token error.
func ReasonOf(err error) Reason {
	var tokenErr *Error
	if errors.As(err, &tokenErr) {
		return tokenErr.Reason
	}
	return ""
}
