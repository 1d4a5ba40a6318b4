// Package twofactor provisions TOTP secrets, verifies login codes, and
// manages single-use backup codes.
package twofactor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/png"
	"time"

	"github.com/hirestack/jobboard-auth/internal/config"
	"github.com/hirestack/jobboard-auth/internal/identity"
	"github.com/hirestack/jobboard-auth/internal/models"
	"github.com/hirestack/jobboard-auth/internal/security"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	// backupCodeCount is the batch size generated per activation.
	backupCodeCount = 10
	// qrImageSize is the rendered provisioning QR edge length in pixels.
	qrImageSize = 200
)

// validateOpts is the shared TOTP verification policy: 30s steps, six
// digits, and a skew of one step either side for clock drift.
var validateOpts = totp.ValidateOpts{
	Period:    30,
	Skew:      1,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// Setup is the material returned from BeginSetup. BackupCodes carries the
// only plaintext copy of the codes; the database keeps digests.
type Setup struct {
	Secret          string
	ProvisioningURI string
	QRCodePNG       []byte
	BackupCodes     []string
}

// Authenticator drives the per-user 2FA state machine:
// Disabled -> PendingVerification -> Enabled -> Disabled.
type Authenticator struct {
	db    *gorm.DB
	users *identity.Store
	cfg   config.TwoFactorConfig
	nowFn func() time.Time
}

// NewAuthenticator constructs an Authenticator.
func NewAuthenticator(db *gorm.DB, users *identity.Store, cfg config.TwoFactorConfig) *Authenticator {
	return &Authenticator{db: db, users: users, cfg: cfg, nowFn: time.Now}
}

// NewAuthenticatorWithClock constructs an Authenticator with an injected
// clock for tests.
func NewAuthenticatorWithClock(db *gorm.DB, users *identity.Store, cfg config.TwoFactorConfig, nowFn func() time.Time) *Authenticator {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Authenticator{db: db, users: users, cfg: cfg, nowFn: nowFn}
}

// BeginSetup generates a fresh secret and backup-code batch for the user.
// Any prior setup data is discarded; only one in-flight setup exists at a
// time. The secret stays inactive until ConfirmSetup sees a correct code.
func (a *Authenticator) BeginSetup(ctx context.Context, userID uint64) (*Setup, error) {
	user, errUser := a.users.FindByID(ctx, userID)
	if errUser != nil {
		return nil, errUser
	}
	if user.TwoFactorEnabled {
		return nil, &Error{Reason: ReasonAlreadyEnabled}
	}

	key, errKey := totp.Generate(totp.GenerateOpts{
		Issuer:      a.cfg.Issuer,
		AccountName: user.Email,
	})
	if errKey != nil {
		return nil, fmt.Errorf("twofactor: generate secret: %w", errKey)
	}

	img, errImg := key.Image(qrImageSize, qrImageSize)
	if errImg != nil {
		return nil, fmt.Errorf("twofactor: render qr: %w", errImg)
	}
	var buf bytes.Buffer
	if errEncode := png.Encode(&buf, img); errEncode != nil {
		return nil, fmt.Errorf("twofactor: encode qr: %w", errEncode)
	}

	codes, errCodes := security.GenerateBackupCodes(backupCodeCount)
	if errCodes != nil {
		return nil, fmt.Errorf("twofactor: %w", errCodes)
	}

	now := a.nowFn().UTC()
	if errReset := a.discardSetup(ctx, userID); errReset != nil {
		return nil, errReset
	}

	secretRow := models.TOTPSecret{
		UserID:    userID,
		Secret:    key.Secret(),
		CreatedAt: now,
	}
	if errCreate := a.db.WithContext(ctx).Create(&secretRow).Error; errCreate != nil {
		return nil, fmt.Errorf("twofactor: persist secret: %w", errCreate)
	}

	codeRows := make([]models.BackupCode, 0, len(codes))
	for _, code := range codes {
		codeRows = append(codeRows, models.BackupCode{
			UserID:    userID,
			CodeHash:  security.HashCode(code),
			CreatedAt: now,
		})
	}
	if errCreate := a.db.WithContext(ctx).Create(&codeRows).Error; errCreate != nil {
		return nil, fmt.Errorf("twofactor: persist backup codes: %w", errCreate)
	}

	return &Setup{
		Secret:          key.Secret(),
		ProvisioningURI: key.URL(),
		QRCodePNG:       buf.Bytes(),
		BackupCodes:     codes,
	}, nil
}

// ConfirmSetup verifies one code against the pending secret and, on
// success, activates it and flips the user's 2FA flag. A failed code leaves
// the setup pending so the caller may retry.
func (a *Authenticator) ConfirmSetup(ctx context.Context, userID uint64, code string) error {
	var secret models.TOTPSecret
	errFind := a.db.WithContext(ctx).
		Where("user_id = ? AND is_active = ?", userID, false).
		First(&secret).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return &Error{Reason: ReasonSetupNotFound}
		}
		return fmt.Errorf("twofactor: load pending secret: %w", errFind)
	}

	now := a.nowFn().UTC()
	valid, errValidate := totp.ValidateCustom(code, secret.Secret, now, validateOpts)
	if errValidate != nil || !valid {
		a.audit(ctx, userID, models.AuditMethodTOTP, models.AuditOutcomeFailure, "setup code mismatch")
		return &Error{Reason: ReasonInvalidCode}
	}

	if errActivate := a.db.WithContext(ctx).Model(&models.TOTPSecret{}).
		Where("id = ?", secret.ID).
		Updates(map[string]any{"is_active": true, "verified_at": now}).Error; errActivate != nil {
		return fmt.Errorf("twofactor: activate secret: %w", errActivate)
	}
	if errFlag := a.users.SetTwoFactor(ctx, userID, true, models.TwoFactorMethodTOTP); errFlag != nil {
		return errFlag
	}

	a.audit(ctx, userID, models.AuditMethodTOTP, models.AuditOutcomeSuccess, "")
	return nil
}

// VerifyLoginCode checks a login-time code, dispatching to TOTP or
// backup-code verification. Requires 2FA to be enabled for the user.
func (a *Authenticator) VerifyLoginCode(ctx context.Context, userID uint64, code string, isBackupCode bool) error {
	user, errUser := a.users.FindByID(ctx, userID)
	if errUser != nil {
		return errUser
	}
	if !user.TwoFactorEnabled {
		return &Error{Reason: ReasonNotEnabled}
	}

	if isBackupCode {
		return a.verifyBackupCode(ctx, userID, code)
	}
	return a.verifyTOTP(ctx, userID, code)
}

func (a *Authenticator) verifyTOTP(ctx context.Context, userID uint64, code string) error {
	var secret models.TOTPSecret
	errFind := a.db.WithContext(ctx).
		Where("user_id = ? AND is_active = ?", userID, true).
		First(&secret).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return &Error{Reason: ReasonSetupNotFound}
		}
		return fmt.Errorf("twofactor: load secret: %w", errFind)
	}

	valid, errValidate := totp.ValidateCustom(code, secret.Secret, a.nowFn().UTC(), validateOpts)
	if errValidate != nil || !valid {
		a.audit(ctx, userID, models.AuditMethodTOTP, models.AuditOutcomeFailure, "code mismatch")
		return &Error{Reason: ReasonInvalidCode}
	}

	a.audit(ctx, userID, models.AuditMethodTOTP, models.AuditOutcomeSuccess, "")
	return nil
}

// verifyBackupCode matches the code against unused digests and consumes the
// match. The conditional update keeps each code single-use even under
// concurrent presentation: only one caller wins the used flip.
func (a *Authenticator) verifyBackupCode(ctx context.Context, userID uint64, code string) error {
	digest := security.HashCode(code)

	var rows []models.BackupCode
	errFind := a.db.WithContext(ctx).
		Where("user_id = ? AND used = ?", userID, false).
		Find(&rows).Error
	if errFind != nil {
		return fmt.Errorf("twofactor: load backup codes: %w", errFind)
	}

	for _, row := range rows {
		if !security.CodesEqual(row.CodeHash, digest) {
			continue
		}
		res := a.db.WithContext(ctx).Model(&models.BackupCode{}).
			Where("id = ? AND used = ?", row.ID, false).
			Updates(map[string]any{"used": true, "used_at": a.nowFn().UTC()})
		if res.Error != nil {
			return fmt.Errorf("twofactor: consume backup code: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			break
		}
		a.audit(ctx, userID, models.AuditMethodBackupCode, models.AuditOutcomeSuccess, "")
		return nil
	}

	a.audit(ctx, userID, models.AuditMethodBackupCode, models.AuditOutcomeFailure, "no unused code matched")
	return &Error{Reason: ReasonInvalidCode}
}

// Disable removes the user's secret and backup codes and flips the flag
// off. Password possession is the orchestrator's responsibility, not this
// component's.
func (a *Authenticator) Disable(ctx context.Context, userID uint64) error {
	if errDiscard := a.discardSetup(ctx, userID); errDiscard != nil {
		return errDiscard
	}
	return a.users.SetTwoFactor(ctx, userID, false, "")
}

// RegenerateBackupCodes atomically replaces the whole batch; old codes stop
// matching immediately. Requires 2FA to be enabled.
func (a *Authenticator) RegenerateBackupCodes(ctx context.Context, userID uint64) ([]string, error) {
	user, errUser := a.users.FindByID(ctx, userID)
	if errUser != nil {
		return nil, errUser
	}
	if !user.TwoFactorEnabled {
		return nil, &Error{Reason: ReasonNotEnabled}
	}

	codes, errCodes := security.GenerateBackupCodes(backupCodeCount)
	if errCodes != nil {
		return nil, fmt.Errorf("twofactor: %w", errCodes)
	}

	now := a.nowFn().UTC()
	errTx := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errDelete := tx.Where("user_id = ?", userID).Delete(&models.BackupCode{}).Error; errDelete != nil {
			return errDelete
		}
		rows := make([]models.BackupCode, 0, len(codes))
		for _, code := range codes {
			rows = append(rows, models.BackupCode{
				UserID:    userID,
				CodeHash:  security.HashCode(code),
				CreatedAt: now,
			})
		}
		return tx.Create(&rows).Error
	})
	if errTx != nil {
		return nil, fmt.Errorf("twofactor: regenerate backup codes: %w", errTx)
	}
	return codes, nil
}

func (a *Authenticator) discardSetup(ctx context.Context, userID uint64) error {
	if errDelete := a.db.WithContext(ctx).Where("user_id = ?", userID).
		Delete(&models.TOTPSecret{}).Error; errDelete != nil {
		return fmt.Errorf("twofactor: discard secret: %w", errDelete)
	}
	if errDelete := a.db.WithContext(ctx).Where("user_id = ?", userID).
		Delete(&models.BackupCode{}).Error; errDelete != nil {
		return fmt.Errorf("twofactor: discard backup codes: %w", errDelete)
	}
	return nil
}

// audit appends a verification attempt record. The auth path never reads
// these rows back, so a write failure is logged and swallowed.
func (a *Authenticator) audit(ctx context.Context, userID uint64, method, outcome, reason string) {
	row := models.TwoFactorAudit{
		UserID:    userID,
		Method:    method,
		Outcome:   outcome,
		Reason:    reason,
		CreatedAt: a.nowFn().UTC(),
	}
	if errCreate := a.db.WithContext(ctx).Create(&row).Error; errCreate != nil {
		log.WithError(errCreate).WithField("method", method).Warn("twofactor: audit write failed")
	}
}
