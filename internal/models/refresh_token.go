package models

import "time"

// RefreshToken tracks redeemability of one issued refresh token.
//
// The signed token itself is a stateless JWT; this row is what makes it
// revocable. Verification requires a live, non-revoked row for the token's
// jti. Expired rows are deleted by the periodic sweep.
type RefreshToken struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	JTI    string `gorm:"type:text;not null;uniqueIndex"` // JWT ID claim of the issued token.
	UserID uint64 `gorm:"not null;index"`                 // Owning user.

	IssuedAt  time.Time `gorm:"not null"`       // When the token was issued.
	ExpiresAt time.Time `gorm:"not null;index"` // JWT expiry, mirrored for sweeping.

	IsRevoked bool       `gorm:"not null;default:false"` // Revocation flag.
	LastUsed  *time.Time `gorm:""`                       // Last successful redemption.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
