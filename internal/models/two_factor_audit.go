package models

import (
	"time"

	"gorm.io/datatypes"
)

// Two-factor audit outcomes.
const (
	// AuditOutcomeSuccess marks a verification that succeeded.
	AuditOutcomeSuccess = "success"
	// AuditOutcomeFailure marks a verification that failed.
	AuditOutcomeFailure = "failure"
)

// Two-factor audit methods.
const (
	// AuditMethodTOTP marks a time-based code verification.
	AuditMethodTOTP = "totp"
	// AuditMethodBackupCode marks a backup-code verification.
	AuditMethodBackupCode = "backup_code"
)

// TwoFactorAudit is an append-only record of a 2FA verification attempt.
//
// The authentication path only writes these rows; nothing in the login flow
// reads them back.
type TwoFactorAudit struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID  uint64 `gorm:"not null;index"`     // User the attempt was made for.
	Method  string `gorm:"type:text;not null"` // totp or backup_code.
	Outcome string `gorm:"type:text;not null"` // success or failure.
	Reason  string `gorm:"type:text"`          // Failure detail, empty on success.

	Metadata datatypes.JSON `gorm:"type:jsonb"` // Optional request context (ip, user agent).

	CreatedAt time.Time `gorm:"not null;autoCreateTime;index"` // Creation timestamp.
}
