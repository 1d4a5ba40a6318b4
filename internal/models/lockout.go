package models

import "time"

// Lockout represents a lockout window for one identifier.
//
// At most one active lockout exists per identifier; repeated threshold
// breaches while a lockout is active extend LockedUntil and increment
// LockoutCount instead of inserting a second row. IsActive together with
// LockedUntil is authoritative: an expired row that was never deactivated is
// treated as unlocked at read time.
type Lockout struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Identifier     string `gorm:"type:text;not null;index:idx_lockouts_ident"` // Identifier value.
	IdentifierKind string `gorm:"type:text;not null;index:idx_lockouts_ident"` // Identifier kind.

	LockedAt    time.Time `gorm:"not null"`       // When the lockout began.
	LockedUntil time.Time `gorm:"not null;index"` // Expiry of the lockout window.
	Reason      string    `gorm:"type:text"`      // Why the lockout was created.

	IsActive     bool `gorm:"not null;default:true"` // False once expired-and-swept or manually unlocked.
	LockoutCount int  `gorm:"not null;default:1"`    // Times the window was created or extended.

	UnlockedAt   *time.Time `gorm:""`          // Manual unlock timestamp, if any.
	UnlockReason string     `gorm:"type:text"` // Manual unlock reason, if any.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
