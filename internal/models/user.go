package models

import "time"

// User roles recognized by the job board.
const (
	// RoleJobSeeker is the default role for self-registered accounts.
	RoleJobSeeker = "job_seeker"
	// RoleEmployer marks accounts that post jobs.
	RoleEmployer = "employer"
	// RoleAdmin marks operator accounts.
	RoleAdmin = "admin"
)

// Two-factor method identifiers stored on the user record.
const (
	// TwoFactorMethodTOTP is the authenticator-app method.
	TwoFactorMethodTOTP = "totp"
)

// User represents a job-board account stored in the database.
type User struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Email        string `gorm:"type:text;not null;uniqueIndex"` // Lowercased email address.
	Name         string `gorm:"type:text"`                      // Display name.
	PasswordHash string `gorm:"type:text"`                      // Bcrypt hash; empty for OAuth-only accounts.
	Role         string `gorm:"type:text;not null;default:'job_seeker'"` // Account role.

	EmailVerified bool `gorm:"not null;default:false"` // Whether the email was confirmed.
	IsActive      bool `gorm:"not null;default:true"`  // Whether the account can sign in.

	TwoFactorEnabled bool   `gorm:"not null;default:false"` // Whether 2FA is required at login.
	TwoFactorMethod  string `gorm:"type:text"`              // Active 2FA method, empty when disabled.

	OAuthProvider   string `gorm:"type:text"` // External identity provider name, if any.
	OAuthProviderID string `gorm:"type:text"` // Provider-scoped subject identifier.

	LastLogin *time.Time `gorm:""`                        // Last successful login, nil before first login.
	CreatedAt time.Time  `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time  `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
