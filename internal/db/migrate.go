package db

import (
	"fmt"

	"github.com/hirestack/jobboard-auth/internal/models"
	"gorm.io/gorm"
)

// Migrate runs database migrations for the current dialect.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}

	if errAutoMigrate := conn.AutoMigrate(
		&models.User{},
		&models.FailedAttempt{},
		&models.Lockout{},
		&models.RefreshToken{},
		&models.TOTPSecret{},
		&models.BackupCode{},
		&models.TwoFactorAudit{},
	); errAutoMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errAutoMigrate)
	}

	// Partial unique index backing the one-active-lockout-per-identifier
	// invariant. Both dialects accept the same statement.
	if errIndex := conn.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_lockouts_active_ident
		ON lockouts (identifier, identifier_kind)
		WHERE is_active
	`).Error; errIndex != nil {
		return fmt.Errorf("db: create active lockout index: %w", errIndex)
	}

	if errIndex := conn.Exec(`
		CREATE INDEX IF NOT EXISTS idx_failed_attempts_window
		ON failed_attempts (identifier, identifier_kind, resolved, attempted_at)
	`).Error; errIndex != nil {
		return fmt.Errorf("db: create attempt window index: %w", errIndex)
	}

	return nil
}
