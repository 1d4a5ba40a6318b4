package models

import "time"

// TOTPSecret stores a user's TOTP secret.
//
// A secret is inactive until the user proves possession with one correct
// code. Starting a new setup replaces any prior secret for the user, so at
// most one row exists per user at a time.
type TOTPSecret struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID uint64 `gorm:"not null;uniqueIndex"` // Owning user.
	Secret string `gorm:"type:text;not null"`   // Base32-encoded shared secret.

	IsActive   bool       `gorm:"not null;default:false"`  // True once confirmed by a correct code.
	VerifiedAt *time.Time `gorm:""`                        // When the secret was confirmed.
	CreatedAt  time.Time  `gorm:"not null;autoCreateTime"` // Creation timestamp.
}

// BackupCode stores a single-use 2FA recovery code.
//
// Codes are generated in batches of ten at activation time and replaced
// wholesale on regeneration. The stored value is a SHA-256 digest, never the
// plaintext code.
type BackupCode struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID   uint64 `gorm:"not null;index"`     // Owning user.
	CodeHash string `gorm:"type:text;not null"` // SHA-256 digest of the code.

	Used   bool       `gorm:"not null;default:false"`  // Set on first successful match.
	UsedAt *time.Time `gorm:""`                        // When the code was consumed.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}
