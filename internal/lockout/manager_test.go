package lockout

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/hirestack/jobboard-auth/internal/attempts"
	"github.com/hirestack/jobboard-auth/internal/config"
	"github.com/hirestack/jobboard-auth/internal/models"
	"gorm.io/gorm"
)

func testConfig() config.LockoutConfig {
	return config.LockoutConfig{
		MaxFailedAttempts:  5,
		AttemptWindow:      15 * time.Minute,
		LockoutDuration:    30 * time.Minute,
		MaxLockoutDuration: 24 * time.Hour,
	}
}

func newTestManager(t *testing.T, nowFn func() time.Time) (*Manager, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := db.AutoMigrate(&models.FailedAttempt{}, &models.Lockout{}); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	tracker := attempts.NewTrackerWithClock(db, nowFn)
	return NewManagerWithClock(db, tracker, testConfig(), nowFn), db
}

func TestLockCreatesActiveLockout(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	manager, _ := newTestManager(t, func() time.Time { return now })

	row, errLock := manager.Lock(context.Background(), "a@x.com", models.IdentifierEmail, "threshold breached")
	if errLock != nil {
		t.Fatalf("lock: %v", errLock)
	}
	if !row.IsActive || row.LockoutCount != 1 {
		t.Fatalf("expected active lockout with count=1, got active=%v count=%d", row.IsActive, row.LockoutCount)
	}
	if !row.LockedUntil.Equal(now.Add(30 * time.Minute)) {
		t.Fatalf("expected locked_until=now+30m, got %s", row.LockedUntil)
	}

	locked, until, errLocked := manager.IsLocked(context.Background(), "a@x.com", models.IdentifierEmail)
	if errLocked != nil {
		t.Fatalf("is locked: %v", errLocked)
	}
	if !locked || until == nil {
		t.Fatalf("expected locked state")
	}
}

func TestLockExtendsActiveLockout(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	manager, db := newTestManager(t, func() time.Time { return now })

	if _, errLock := manager.Lock(context.Background(), "a@x.com", models.IdentifierEmail, "threshold breached"); errLock != nil {
		t.Fatalf("lock: %v", errLock)
	}

	now = now.Add(10 * time.Minute)
	row, errLock := manager.Lock(context.Background(), "a@x.com", models.IdentifierEmail, "still failing")
	if errLock != nil {
		t.Fatalf("extend: %v", errLock)
	}
	if row.LockoutCount != 2 {
		t.Fatalf("expected lockout_count=2, got %d", row.LockoutCount)
	}
	if !row.LockedUntil.Equal(now.Add(30 * time.Minute)) {
		t.Fatalf("expected extended locked_until, got %s", row.LockedUntil)
	}

	var total int64
	if errCount := db.Model(&models.Lockout{}).Where("is_active = ?", true).Count(&total).Error; errCount != nil {
		t.Fatalf("count: %v", errCount)
	}
	if total != 1 {
		t.Fatalf("expected exactly one active lockout row, got %d", total)
	}
}

func TestLockExtensionCapped(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	lockedAt := now
	manager, _ := newTestManager(t, func() time.Time { return now })

	if _, errLock := manager.Lock(context.Background(), "a@x.com", models.IdentifierEmail, "threshold breached"); errLock != nil {
		t.Fatalf("lock: %v", errLock)
	}

	// Keep failing every 29 minutes; the window must never pass
	// locked_at + 24h even though each extension asks for now+30m.
	var last *models.Lockout
	for i := 0; i < 60; i++ {
		now = now.Add(29 * time.Minute)
		row, errLock := manager.Lock(context.Background(), "a@x.com", models.IdentifierEmail, "still failing")
		if errLock != nil {
			t.Fatalf("extend %d: %v", i, errLock)
		}
		last = row
	}
	maxUntil := lockedAt.Add(24 * time.Hour)
	if last.LockedUntil.After(maxUntil) {
		t.Fatalf("expected locked_until capped at %s, got %s", maxUntil, last.LockedUntil)
	}
}

func TestIsLockedLazyExpiry(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	manager, db := newTestManager(t, func() time.Time { return now })

	if _, errLock := manager.Lock(context.Background(), "a@x.com", models.IdentifierEmail, "threshold breached"); errLock != nil {
		t.Fatalf("lock: %v", errLock)
	}

	now = now.Add(31 * time.Minute)
	locked, _, errLocked := manager.IsLocked(context.Background(), "a@x.com", models.IdentifierEmail)
	if errLocked != nil {
		t.Fatalf("is locked: %v", errLocked)
	}
	if locked {
		t.Fatalf("expected expired lockout to read as unlocked")
	}

	// The stale row should have been deactivated opportunistically.
	var active int64
	if errCount := db.Model(&models.Lockout{}).Where("is_active = ?", true).Count(&active).Error; errCount != nil {
		t.Fatalf("count: %v", errCount)
	}
	if active != 0 {
		t.Fatalf("expected lazy deactivation, %d active rows remain", active)
	}
}

func TestUnlockClearsAttempts(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	manager, db := newTestManager(t, func() time.Time { return now })
	tracker := attempts.NewTrackerWithClock(db, func() time.Time { return now })

	tracker.Record(context.Background(), "a@x.com", models.IdentifierEmail, "", "")
	tracker.Record(context.Background(), "a@x.com", models.IdentifierEmail, "", "")
	if _, errLock := manager.Lock(context.Background(), "a@x.com", models.IdentifierEmail, "threshold breached"); errLock != nil {
		t.Fatalf("lock: %v", errLock)
	}

	unlocked, errUnlock := manager.Unlock(context.Background(), "a@x.com", models.IdentifierEmail, "support ticket #1")
	if errUnlock != nil {
		t.Fatalf("unlock: %v", errUnlock)
	}
	if !unlocked {
		t.Fatalf("expected unlock to report a deactivated row")
	}

	locked, _, errLocked := manager.IsLocked(context.Background(), "a@x.com", models.IdentifierEmail)
	if errLocked != nil {
		t.Fatalf("is locked: %v", errLocked)
	}
	if locked {
		t.Fatalf("expected unlocked state")
	}

	count, errCount := tracker.CountRecent(context.Background(), "a@x.com", models.IdentifierEmail, 15*time.Minute)
	if errCount != nil {
		t.Fatalf("count: %v", errCount)
	}
	if count != 0 {
		t.Fatalf("expected attempts cleared, got %d", count)
	}

	var row models.Lockout
	if errFind := db.First(&row).Error; errFind != nil {
		t.Fatalf("find: %v", errFind)
	}
	if row.UnlockedAt == nil || row.UnlockReason != "support ticket #1" {
		t.Fatalf("expected unlock audit fields, got %+v", row)
	}
}

func TestStatusReportsAttempts(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	manager, db := newTestManager(t, func() time.Time { return now })
	tracker := attempts.NewTrackerWithClock(db, func() time.Time { return now })

	tracker.Record(context.Background(), "a@x.com", models.IdentifierEmail, "", "")
	tracker.Record(context.Background(), "a@x.com", models.IdentifierEmail, "", "")

	status, errStatus := manager.Status(context.Background(), "a@x.com", models.IdentifierEmail)
	if errStatus != nil {
		t.Fatalf("status: %v", errStatus)
	}
	if status.IsLocked {
		t.Fatalf("expected not locked")
	}
	if status.FailedAttempts != 2 {
		t.Fatalf("expected 2 failed attempts, got %d", status.FailedAttempts)
	}
	if status.AttemptsRemaining != 3 {
		t.Fatalf("expected 3 attempts remaining, got %d", status.AttemptsRemaining)
	}
}

func TestSweepDeletesInactivePastRetention(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	manager, db := newTestManager(t, func() time.Time { return now })

	old := models.Lockout{
		Identifier:     "a@x.com",
		IdentifierKind: models.IdentifierEmail,
		LockedAt:       now.Add(-31 * 24 * time.Hour),
		LockedUntil:    now.Add(-31 * 24 * time.Hour).Add(30 * time.Minute),
		IsActive:       false,
		LockoutCount:   1,
	}
	recent := models.Lockout{
		Identifier:     "b@x.com",
		IdentifierKind: models.IdentifierEmail,
		LockedAt:       now.Add(-time.Hour),
		LockedUntil:    now.Add(-30 * time.Minute),
		IsActive:       false,
		LockoutCount:   1,
	}
	if errCreate := db.Create(&old).Error; errCreate != nil {
		t.Fatalf("create old: %v", errCreate)
	}
	if errCreate := db.Create(&recent).Error; errCreate != nil {
		t.Fatalf("create recent: %v", errCreate)
	}

	deleted, errSweep := manager.Sweep(context.Background())
	if errSweep != nil {
		t.Fatalf("sweep: %v", errSweep)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 swept lockout, got %d", deleted)
	}
}
