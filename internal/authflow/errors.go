package authflow

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidCredentials is returned for any credential failure. The message
// is identical whether the email was unknown, the password wrong, or the
// account deactivated, so responses cannot be used to probe for accounts.
var ErrInvalidCredentials = errors.New("invalid email or password")

// ErrChallengeNotFound is returned when a two-factor challenge is missing,
// expired, or already consumed.
var ErrChallengeNotFound = errors.New("two-factor challenge not found or expired")

// AccountLockedError reports an active lockout with the remaining time.
type AccountLockedError struct {
	LockedUntil      time.Time
	MinutesRemaining int
}

func (e *AccountLockedError) Error() string {
	return fmt.Sprintf("account locked, try again in %d minutes", e.MinutesRemaining)
}

// IsAccountLocked reports whether err is an AccountLockedError and returns it.
func IsAccountLocked(err error) (*AccountLockedError, bool) {
	var locked *AccountLockedError
	if errors.As(err, &locked) {
		return locked, true
	}
	return nil, false
}

func newAccountLockedError(until, now time.Time) *AccountLockedError {
	remaining := until.Sub(now)
	minutes := int((remaining + time.Minute - 1) / time.Minute)
	if minutes < 1 {
		minutes = 1
	}
	return &AccountLockedError{LockedUntil: until, MinutesRemaining: minutes}
}
