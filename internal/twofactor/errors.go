package twofactor

import (
	"errors"
	"fmt"
)

// Reason distinguishes why a two-factor operation failed.
type Reason string

const (
	// ReasonNotEnabled marks an operation that requires 2FA to be on.
	ReasonNotEnabled Reason = "not_enabled"
	// ReasonInvalidCode marks a TOTP or backup code that did not verify.
	ReasonInvalidCode Reason = "invalid_code"
	// ReasonSetupNotFound marks a confirm with no pending setup.
	ReasonSetupNotFound Reason = "setup_not_found"
	// ReasonAlreadyEnabled marks a setup attempt while 2FA is already on.
	ReasonAlreadyEnabled Reason = "already_enabled"
)

// Error is the typed error surfaced by the two-factor authenticator.
type Error struct {
	Reason Reason
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("twofactor: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("twofactor: %s", e.Reason)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ReasonOf extracts the Reason from an error, or empty when the error is not
// a two-factor error.
func ReasonOf(err error) Reason {
	var twoFactorErr *Error
	if errors.As(err, &twoFactorErr) {
		return twoFactorErr.Reason
	}
	return ""
}
