// Package attempts records failed login attempts and evaluates
// sliding-window counts over them.
package attempts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hirestack/jobboard-auth/internal/models"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// retention is how long failed-attempt rows are kept before sweeping.
const retention = 24 * time.Hour

// Tracker appends and counts failed login attempts.
//
// Record never surfaces an error: a tracker write failure must not block or
// crash the login path. Counting uses a sliding window over discrete rows, so
// the window self-expires without a reset timer.
type Tracker struct {
	db    *gorm.DB
	nowFn func() time.Time
}

// NewTracker constructs a Tracker.
func NewTracker(db *gorm.DB) *Tracker {
	return &Tracker{db: db, nowFn: time.Now}
}

// NewTrackerWithClock constructs a Tracker with an injected clock for tests.
func NewTrackerWithClock(db *gorm.DB, nowFn func() time.Time) *Tracker {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Tracker{db: db, nowFn: nowFn}
}

// Record appends a failed attempt. Errors are logged and swallowed.
func (t *Tracker) Record(ctx context.Context, identifier, kind, ip, userAgent string) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || t == nil || t.db == nil {
		return
	}
	row := models.FailedAttempt{
		Identifier:     identifier,
		IdentifierKind: kind,
		AttemptedAt:    t.nowFn().UTC(),
		IPAddress:      strings.TrimSpace(ip),
		UserAgent:      strings.TrimSpace(userAgent),
	}
	if errCreate := t.db.WithContext(ctx).Create(&row).Error; errCreate != nil {
		log.WithError(errCreate).
			WithField("identifier_kind", kind).
			Warn("attempts: record failed")
	}
}

// CountRecent counts unresolved attempts inside the sliding window.
func (t *Tracker) CountRecent(ctx context.Context, identifier, kind string, window time.Duration) (int, error) {
	cutoff := t.nowFn().UTC().Add(-window)
	var count int64
	errCount := t.db.WithContext(ctx).Model(&models.FailedAttempt{}).
		Where("identifier = ? AND identifier_kind = ? AND resolved = ? AND attempted_at >= ?",
			strings.TrimSpace(identifier), kind, false, cutoff).
		Count(&count).Error
	if errCount != nil {
		return 0, fmt.Errorf("attempts: count recent: %w", errCount)
	}
	return int(count), nil
}

// Clear marks all unresolved attempts for the identifier as resolved.
func (t *Tracker) Clear(ctx context.Context, identifier, kind string) error {
	errUpdate := t.db.WithContext(ctx).Model(&models.FailedAttempt{}).
		Where("identifier = ? AND identifier_kind = ? AND resolved = ?",
			strings.TrimSpace(identifier), kind, false).
		Update("resolved", true).Error
	if errUpdate != nil {
		return fmt.Errorf("attempts: clear: %w", errUpdate)
	}
	return nil
}

// KindStat aggregates attempt counts for one identifier kind.
type KindStat struct {
	IdentifierKind string `gorm:"column:identifier_kind" json:"identifier_kind"`
	Total          int64  `gorm:"column:total" json:"total"`
	Unresolved     int64  `gorm:"column:unresolved" json:"unresolved"`
}

// Stats returns per-kind attempt counts inside the window, for admin
// visibility only.
func (t *Tracker) Stats(ctx context.Context, window time.Duration) ([]KindStat, error) {
	cutoff := t.nowFn().UTC().Add(-window)
	var rows []KindStat
	errQuery := t.db.WithContext(ctx).Model(&models.FailedAttempt{}).
		Select("identifier_kind, COUNT(*) AS total, SUM(CASE WHEN resolved THEN 0 ELSE 1 END) AS unresolved").
		Where("attempted_at >= ?", cutoff).
		Group("identifier_kind").
		Find(&rows).Error
	if errQuery != nil {
		return nil, fmt.Errorf("attempts: stats: %w", errQuery)
	}
	return rows, nil
}

// Sweep deletes attempts past retention. Hygiene only, never correctness.
func (t *Tracker) Sweep(ctx context.Context) (int64, error) {
	cutoff := t.nowFn().UTC().Add(-retention)
	res := t.db.WithContext(ctx).
		Where("attempted_at < ?", cutoff).
		Delete(&models.FailedAttempt{})
	if res.Error != nil {
		return 0, fmt.Errorf("attempts: sweep: %w", res.Error)
	}
	return res.RowsAffected, nil
}
