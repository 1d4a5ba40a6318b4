package twofactor

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/hirestack/jobboard-auth/internal/config"
	"github.com/hirestack/jobboard-auth/internal/identity"
	"github.com/hirestack/jobboard-auth/internal/models"
	"github.com/pquerna/otp/totp"
	"gorm.io/gorm"
)

func testTwoFactorConfig() config.TwoFactorConfig {
	return config.TwoFactorConfig{Issuer: "JobBoard", ChallengeTTL: 5 * time.Minute}
}

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time {
	return c.now
}

func newTestAuthenticator(t *testing.T) (*Authenticator, *gorm.DB, *testClock) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := db.AutoMigrate(
		&models.User{},
		&models.TOTPSecret{},
		&models.BackupCode{},
		&models.TwoFactorAudit{},
	); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	clock := &testClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	users := identity.NewStore(db)
	return NewAuthenticatorWithClock(db, users, testTwoFactorConfig(), clock.Now), db, clock
}

func seedUser(t *testing.T, db *gorm.DB) *models.User {
	t.Helper()
	user := models.User{Email: "a@x.com", Role: models.RoleJobSeeker, IsActive: true}
	if errCreate := db.Create(&user).Error; errCreate != nil {
		t.Fatalf("create user: %v", errCreate)
	}
	return &user
}

func codeAt(t *testing.T, secret string, at time.Time) string {
	t.Helper()
	code, errCode := totp.GenerateCodeCustom(secret, at, validateOpts)
	if errCode != nil {
		t.Fatalf("generate code: %v", errCode)
	}
	return code
}

func enableTwoFactor(t *testing.T, auth *Authenticator, db *gorm.DB, userID uint64, clock *testClock) *Setup {
	t.Helper()
	setup, errSetup := auth.BeginSetup(context.Background(), userID)
	if errSetup != nil {
		t.Fatalf("begin setup: %v", errSetup)
	}
	if errConfirm := auth.ConfirmSetup(context.Background(), userID, codeAt(t, setup.Secret, clock.now)); errConfirm != nil {
		t.Fatalf("confirm setup: %v", errConfirm)
	}
	return setup
}

func TestBeginSetupProvisionsSecretAndCodes(t *testing.T) {
	auth, db, _ := newTestAuthenticator(t)
	user := seedUser(t, db)

	setup, errSetup := auth.BeginSetup(context.Background(), user.ID)
	if errSetup != nil {
		t.Fatalf("begin setup: %v", errSetup)
	}
	if setup.Secret == "" || setup.ProvisioningURI == "" {
		t.Fatalf("expected secret and provisioning uri")
	}
	if len(setup.QRCodePNG) == 0 {
		t.Fatalf("expected rendered qr image")
	}
	if len(setup.BackupCodes) != 10 {
		t.Fatalf("expected 10 backup codes, got %d", len(setup.BackupCodes))
	}

	var secret models.TOTPSecret
	if errFind := db.Where("user_id = ?", user.ID).First(&secret).Error; errFind != nil {
		t.Fatalf("find secret: %v", errFind)
	}
	if secret.IsActive {
		t.Fatalf("expected pending secret before confirmation")
	}
}

func TestBeginSetupReplacesPriorSetup(t *testing.T) {
	auth, db, _ := newTestAuthenticator(t)
	user := seedUser(t, db)

	first, errFirst := auth.BeginSetup(context.Background(), user.ID)
	if errFirst != nil {
		t.Fatalf("first setup: %v", errFirst)
	}
	second, errSecond := auth.BeginSetup(context.Background(), user.ID)
	if errSecond != nil {
		t.Fatalf("second setup: %v", errSecond)
	}
	if first.Secret == second.Secret {
		t.Fatalf("expected a fresh secret per setup")
	}

	var count int64
	if errCount := db.Model(&models.TOTPSecret{}).Where("user_id = ?", user.ID).Count(&count).Error; errCount != nil {
		t.Fatalf("count secrets: %v", errCount)
	}
	if count != 1 {
		t.Fatalf("expected one in-flight setup, got %d secrets", count)
	}
}

func TestConfirmSetupActivates(t *testing.T) {
	auth, db, clock := newTestAuthenticator(t)
	user := seedUser(t, db)

	setup, errSetup := auth.BeginSetup(context.Background(), user.ID)
	if errSetup != nil {
		t.Fatalf("begin setup: %v", errSetup)
	}

	// Wrong code leaves the setup pending.
	if errConfirm := auth.ConfirmSetup(context.Background(), user.ID, "000000"); ReasonOf(errConfirm) != ReasonInvalidCode {
		t.Fatalf("expected invalid code, got %v", errConfirm)
	}

	if errConfirm := auth.ConfirmSetup(context.Background(), user.ID, codeAt(t, setup.Secret, clock.now)); errConfirm != nil {
		t.Fatalf("confirm setup: %v", errConfirm)
	}

	var updated models.User
	if errFind := db.First(&updated, user.ID).Error; errFind != nil {
		t.Fatalf("find user: %v", errFind)
	}
	if !updated.TwoFactorEnabled || updated.TwoFactorMethod != models.TwoFactorMethodTOTP {
		t.Fatalf("expected 2fa enabled with totp method, got %+v", updated)
	}

	var secret models.TOTPSecret
	if errFind := db.Where("user_id = ?", user.ID).First(&secret).Error; errFind != nil {
		t.Fatalf("find secret: %v", errFind)
	}
	if !secret.IsActive || secret.VerifiedAt == nil {
		t.Fatalf("expected activated secret, got %+v", secret)
	}
}

func TestConfirmSetupWithoutSetup(t *testing.T) {
	auth, db, _ := newTestAuthenticator(t)
	user := seedUser(t, db)

	if errConfirm := auth.ConfirmSetup(context.Background(), user.ID, "123456"); ReasonOf(errConfirm) != ReasonSetupNotFound {
		t.Fatalf("expected setup not found, got %v", errConfirm)
	}
}

func TestBeginSetupWhileEnabled(t *testing.T) {
	auth, db, clock := newTestAuthenticator(t)
	user := seedUser(t, db)
	enableTwoFactor(t, auth, db, user.ID, clock)

	if _, errSetup := auth.BeginSetup(context.Background(), user.ID); ReasonOf(errSetup) != ReasonAlreadyEnabled {
		t.Fatalf("expected already enabled, got %v", errSetup)
	}
}

func TestVerifyLoginCodeToleranceWindow(t *testing.T) {
	auth, db, clock := newTestAuthenticator(t)
	user := seedUser(t, db)
	setup := enableTwoFactor(t, auth, db, user.ID, clock)

	// Codes from the current and adjacent time steps verify.
	for _, offset := range []time.Duration{0, -30 * time.Second, 30 * time.Second} {
		code := codeAt(t, setup.Secret, clock.now.Add(offset))
		if errVerify := auth.VerifyLoginCode(context.Background(), user.ID, code, false); errVerify != nil {
			t.Fatalf("expected code at offset %s to verify: %v", offset, errVerify)
		}
	}

	// A code two steps away is outside the window.
	stale := codeAt(t, setup.Secret, clock.now.Add(-90*time.Second))
	if errVerify := auth.VerifyLoginCode(context.Background(), user.ID, stale, false); ReasonOf(errVerify) != ReasonInvalidCode {
		t.Fatalf("expected invalid code outside window, got %v", errVerify)
	}
}

func TestVerifyLoginCodeNotEnabled(t *testing.T) {
	auth, db, _ := newTestAuthenticator(t)
	user := seedUser(t, db)

	if errVerify := auth.VerifyLoginCode(context.Background(), user.ID, "123456", false); ReasonOf(errVerify) != ReasonNotEnabled {
		t.Fatalf("expected not enabled, got %v", errVerify)
	}
}

func TestBackupCodeSingleUse(t *testing.T) {
	auth, db, clock := newTestAuthenticator(t)
	user := seedUser(t, db)
	setup := enableTwoFactor(t, auth, db, user.ID, clock)

	code := setup.BackupCodes[0]
	if errVerify := auth.VerifyLoginCode(context.Background(), user.ID, code, true); errVerify != nil {
		t.Fatalf("first use: %v", errVerify)
	}
	if errVerify := auth.VerifyLoginCode(context.Background(), user.ID, code, true); ReasonOf(errVerify) != ReasonInvalidCode {
		t.Fatalf("expected second use rejected, got %v", errVerify)
	}

	// Remaining codes are unaffected.
	if errVerify := auth.VerifyLoginCode(context.Background(), user.ID, setup.BackupCodes[1], true); errVerify != nil {
		t.Fatalf("other code: %v", errVerify)
	}
}

func TestRegenerateBackupCodesInvalidatesOld(t *testing.T) {
	auth, db, clock := newTestAuthenticator(t)
	user := seedUser(t, db)
	setup := enableTwoFactor(t, auth, db, user.ID, clock)

	fresh, errRegen := auth.RegenerateBackupCodes(context.Background(), user.ID)
	if errRegen != nil {
		t.Fatalf("regenerate: %v", errRegen)
	}
	if len(fresh) != 10 {
		t.Fatalf("expected 10 fresh codes, got %d", len(fresh))
	}

	if errVerify := auth.VerifyLoginCode(context.Background(), user.ID, setup.BackupCodes[0], true); ReasonOf(errVerify) != ReasonInvalidCode {
		t.Fatalf("expected old code rejected, got %v", errVerify)
	}
	if errVerify := auth.VerifyLoginCode(context.Background(), user.ID, fresh[0], true); errVerify != nil {
		t.Fatalf("fresh code: %v", errVerify)
	}
}

func TestDisableRemovesSecretAndCodes(t *testing.T) {
	auth, db, clock := newTestAuthenticator(t)
	user := seedUser(t, db)
	enableTwoFactor(t, auth, db, user.ID, clock)

	if errDisable := auth.Disable(context.Background(), user.ID); errDisable != nil {
		t.Fatalf("disable: %v", errDisable)
	}

	var secrets, codes int64
	if errCount := db.Model(&models.TOTPSecret{}).Where("user_id = ?", user.ID).Count(&secrets).Error; errCount != nil {
		t.Fatalf("count secrets: %v", errCount)
	}
	if errCount := db.Model(&models.BackupCode{}).Where("user_id = ?", user.ID).Count(&codes).Error; errCount != nil {
		t.Fatalf("count codes: %v", errCount)
	}
	if secrets != 0 || codes != 0 {
		t.Fatalf("expected setup data removed, got %d secrets %d codes", secrets, codes)
	}

	var updated models.User
	if errFind := db.First(&updated, user.ID).Error; errFind != nil {
		t.Fatalf("find user: %v", errFind)
	}
	if updated.TwoFactorEnabled || updated.TwoFactorMethod != "" {
		t.Fatalf("expected flag cleared, got %+v", updated)
	}
}

func TestVerificationAttemptsAudited(t *testing.T) {
	auth, db, clock := newTestAuthenticator(t)
	user := seedUser(t, db)
	setup := enableTwoFactor(t, auth, db, user.ID, clock)

	_ = auth.VerifyLoginCode(context.Background(), user.ID, "000000", false)
	_ = auth.VerifyLoginCode(context.Background(), user.ID, codeAt(t, setup.Secret, clock.now), false)

	var rows []models.TwoFactorAudit
	if errFind := db.Where("user_id = ?", user.ID).Order("id ASC").Find(&rows).Error; errFind != nil {
		t.Fatalf("find audits: %v", errFind)
	}
	// One success from ConfirmSetup plus the two login verifications.
	if len(rows) != 3 {
		t.Fatalf("expected 3 audit rows, got %d", len(rows))
	}
	last := rows[len(rows)-1]
	if last.Outcome != models.AuditOutcomeSuccess || last.Method != models.AuditMethodTOTP {
		t.Fatalf("expected audited totp success, got %+v", last)
	}
	if rows[len(rows)-2].Outcome != models.AuditOutcomeFailure {
		t.Fatalf("expected audited failure, got %+v", rows[len(rows)-2])
	}
}
