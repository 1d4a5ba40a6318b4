package models

import "time"

// Identifier kinds tracked for lockout and attempt accounting.
const (
	// IdentifierEmail keys attempts by lowercased email.
	IdentifierEmail = "email"
	// IdentifierUserID keys attempts by numeric user ID.
	IdentifierUserID = "user_id"
	// IdentifierIP keys attempts by client source address.
	IdentifierIP = "ip"
)

// FailedAttempt records a single failed login attempt.
//
// Rows are append-only; the only mutation ever applied is Resolved=true on a
// successful login or an explicit clear. Rows older than 24h are swept.
type FailedAttempt struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Identifier     string `gorm:"type:text;not null;index:idx_failed_attempts_ident"` // Identifier value.
	IdentifierKind string `gorm:"type:text;not null;index:idx_failed_attempts_ident"` // Identifier kind.

	AttemptedAt time.Time `gorm:"not null;index"`         // When the attempt happened.
	Resolved    bool      `gorm:"not null;default:false"` // Set on successful login or clear.

	IPAddress string `gorm:"type:text"` // Optional source address.
	UserAgent string `gorm:"type:text"` // Optional client user agent.
}
