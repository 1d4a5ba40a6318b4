// Package lockout owns the per-identifier lockout state machine:
// Unlocked -> Locked -> Unlocked.
package lockout

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hirestack/jobboard-auth/internal/attempts"
	"github.com/hirestack/jobboard-auth/internal/config"
	"github.com/hirestack/jobboard-auth/internal/models"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// inactiveRetention is how long deactivated lockout rows are kept.
const inactiveRetention = 30 * 24 * time.Hour

// WriteError wraps a persistence failure while changing lockout state.
// Failing to lock after a threshold breach is security-relevant, so unlike
// attempt recording these errors always propagate.
type WriteError struct {
	Op  string
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("lockout: %s: %v", e.Op, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// Status reports the lockout view exposed to admins.
type Status struct {
	IsLocked          bool
	LockedUntil       *time.Time
	FailedAttempts    int
	AttemptsRemaining int
}

// Manager evaluates and transitions lockout state for identifiers.
type Manager struct {
	db      *gorm.DB
	tracker *attempts.Tracker
	cfg     config.LockoutConfig
	nowFn   func() time.Time
}

// NewManager constructs a Manager.
func NewManager(db *gorm.DB, tracker *attempts.Tracker, cfg config.LockoutConfig) *Manager {
	return &Manager{db: db, tracker: tracker, cfg: cfg, nowFn: time.Now}
}

// NewManagerWithClock constructs a Manager with an injected clock for tests.
func NewManagerWithClock(db *gorm.DB, tracker *attempts.Tracker, cfg config.LockoutConfig, nowFn func() time.Time) *Manager {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Manager{db: db, tracker: tracker, cfg: cfg, nowFn: nowFn}
}

// Config returns the thresholds the manager was built with.
func (m *Manager) Config() config.LockoutConfig {
	return m.cfg
}

// IsLocked reports whether the identifier is currently locked and until when.
//
// Only rows with is_active AND locked_until in the future count; an expired
// row that was never deactivated reads as unlocked. Expiry is a derived
// predicate, so no write is required for correctness, but stale actives are
// deactivated opportunistically.
func (m *Manager) IsLocked(ctx context.Context, identifier, kind string) (bool, *time.Time, error) {
	identifier = strings.TrimSpace(identifier)
	now := m.nowFn().UTC()

	var row models.Lockout
	errFind := m.db.WithContext(ctx).
		Where("identifier = ? AND identifier_kind = ? AND is_active = ?", identifier, kind, true).
		Order("locked_until DESC").
		Limit(1).
		Find(&row).Error
	if errFind != nil {
		return false, nil, &WriteError{Op: "query", Err: errFind}
	}
	if row.ID == 0 {
		return false, nil, nil
	}
	if !row.LockedUntil.After(now) {
		m.deactivateExpired(ctx, row.ID)
		return false, nil, nil
	}
	until := row.LockedUntil
	return true, &until, nil
}

// deactivateExpired lazily flips an expired-but-active row. Best effort;
// correctness never depends on it.
func (m *Manager) deactivateExpired(ctx context.Context, id uint64) {
	errUpdate := m.db.WithContext(ctx).Model(&models.Lockout{}).
		Where("id = ? AND is_active = ?", id, true).
		Updates(map[string]any{"is_active": false, "updated_at": m.nowFn().UTC()}).Error
	if errUpdate != nil {
		log.WithError(errUpdate).Warn("lockout: lazy deactivate failed")
	}
}

// Lock creates or extends the lockout for an identifier.
//
// If an unexpired active lockout exists, its window is replaced and its
// counter incremented instead of inserting a second row; the extension is
// capped so locked_until never passes locked_at plus the configured maximum.
// Two concurrent callers may both take the create path after both observing
// no active row; the conditional update plus deactivate-then-insert sequence
// keeps the outcome idempotent without a cross-row transaction.
func (m *Manager) Lock(ctx context.Context, identifier, kind, reason string) (*models.Lockout, error) {
	identifier = strings.TrimSpace(identifier)
	now := m.nowFn().UTC()

	var active models.Lockout
	errFind := m.db.WithContext(ctx).
		Where("identifier = ? AND identifier_kind = ? AND is_active = ? AND locked_until > ?",
			identifier, kind, true, now).
		Order("locked_until DESC").
		Limit(1).
		Find(&active).Error
	if errFind != nil {
		return nil, &WriteError{Op: "query active", Err: errFind}
	}

	if active.ID != 0 {
		until := now.Add(m.cfg.LockoutDuration)
		if maxUntil := active.LockedAt.Add(m.cfg.MaxLockoutDuration); until.After(maxUntil) {
			until = maxUntil
		}
		res := m.db.WithContext(ctx).Model(&models.Lockout{}).
			Where("id = ? AND is_active = ?", active.ID, true).
			Updates(map[string]any{
				"locked_until":  until,
				"lockout_count": gorm.Expr("lockout_count + 1"),
				"updated_at":    now,
			})
		if res.Error != nil {
			return nil, &WriteError{Op: "extend", Err: res.Error}
		}
		if res.RowsAffected > 0 {
			active.LockedUntil = until
			active.LockoutCount++
			return &active, nil
		}
		// The row was deactivated underneath us; fall through to create.
	}

	// One active lockout per identifier: deactivate leftovers before insert.
	if errDeactivate := m.db.WithContext(ctx).Model(&models.Lockout{}).
		Where("identifier = ? AND identifier_kind = ? AND is_active = ?", identifier, kind, true).
		Updates(map[string]any{"is_active": false, "updated_at": now}).Error; errDeactivate != nil {
		return nil, &WriteError{Op: "deactivate prior", Err: errDeactivate}
	}

	row := models.Lockout{
		Identifier:     identifier,
		IdentifierKind: kind,
		LockedAt:       now,
		LockedUntil:    now.Add(m.cfg.LockoutDuration),
		Reason:         reason,
		IsActive:       true,
		LockoutCount:   1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if errCreate := m.db.WithContext(ctx).Create(&row).Error; errCreate != nil {
		return nil, &WriteError{Op: "create", Err: errCreate}
	}
	return &row, nil
}

// Unlock manually deactivates the identifier's lockout and clears its
// failed-attempt history. Returns false when nothing was locked.
func (m *Manager) Unlock(ctx context.Context, identifier, kind, reason string) (bool, error) {
	identifier = strings.TrimSpace(identifier)
	now := m.nowFn().UTC()

	res := m.db.WithContext(ctx).Model(&models.Lockout{}).
		Where("identifier = ? AND identifier_kind = ? AND is_active = ?", identifier, kind, true).
		Updates(map[string]any{
			"is_active":     false,
			"unlocked_at":   now,
			"unlock_reason": reason,
			"updated_at":    now,
		})
	if res.Error != nil {
		return false, &WriteError{Op: "unlock", Err: res.Error}
	}

	if errClear := m.tracker.Clear(ctx, identifier, kind); errClear != nil {
		return false, &WriteError{Op: "clear attempts", Err: errClear}
	}
	return res.RowsAffected > 0, nil
}

// Status returns the admin view: lock state plus attempt accounting.
func (m *Manager) Status(ctx context.Context, identifier, kind string) (Status, error) {
	locked, until, errLocked := m.IsLocked(ctx, identifier, kind)
	if errLocked != nil {
		return Status{}, errLocked
	}
	count, errCount := m.tracker.CountRecent(ctx, identifier, kind, m.cfg.AttemptWindow)
	if errCount != nil {
		return Status{}, errCount
	}
	remaining := m.cfg.MaxFailedAttempts - count
	if remaining < 0 {
		remaining = 0
	}
	return Status{
		IsLocked:          locked,
		LockedUntil:       until,
		FailedAttempts:    count,
		AttemptsRemaining: remaining,
	}, nil
}

// Sweep hard-deletes lockouts that have been inactive past retention.
func (m *Manager) Sweep(ctx context.Context) (int64, error) {
	cutoff := m.nowFn().UTC().Add(-inactiveRetention)
	res := m.db.WithContext(ctx).
		Where("is_active = ? AND locked_until < ?", false, cutoff).
		Delete(&models.Lockout{})
	if res.Error != nil {
		return 0, &WriteError{Op: "sweep", Err: res.Error}
	}
	return res.RowsAffected, nil
}
