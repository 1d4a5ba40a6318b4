package attempts

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/hirestack/jobboard-auth/internal/models"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := db.AutoMigrate(&models.FailedAttempt{}); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return db
}

func TestTrackerCountRecentWindow(t *testing.T) {
	db := newTestDB(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tracker := NewTrackerWithClock(db, func() time.Time { return now })

	for i := 0; i < 3; i++ {
		tracker.Record(context.Background(), "a@x.com", models.IdentifierEmail, "10.0.0.1", "test-agent")
	}

	// One attempt outside the window.
	old := models.FailedAttempt{
		Identifier:     "a@x.com",
		IdentifierKind: models.IdentifierEmail,
		AttemptedAt:    now.Add(-16 * time.Minute),
	}
	if errCreate := db.Create(&old).Error; errCreate != nil {
		t.Fatalf("create old attempt: %v", errCreate)
	}

	count, errCount := tracker.CountRecent(context.Background(), "a@x.com", models.IdentifierEmail, 15*time.Minute)
	if errCount != nil {
		t.Fatalf("count: %v", errCount)
	}
	if count != 3 {
		t.Fatalf("expected 3 recent attempts, got %d", count)
	}
}

func TestTrackerClearResolvesAttempts(t *testing.T) {
	db := newTestDB(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tracker := NewTrackerWithClock(db, func() time.Time { return now })

	tracker.Record(context.Background(), "a@x.com", models.IdentifierEmail, "", "")
	tracker.Record(context.Background(), "a@x.com", models.IdentifierEmail, "", "")
	tracker.Record(context.Background(), "b@x.com", models.IdentifierEmail, "", "")

	if errClear := tracker.Clear(context.Background(), "a@x.com", models.IdentifierEmail); errClear != nil {
		t.Fatalf("clear: %v", errClear)
	}

	count, errCount := tracker.CountRecent(context.Background(), "a@x.com", models.IdentifierEmail, 15*time.Minute)
	if errCount != nil {
		t.Fatalf("count: %v", errCount)
	}
	if count != 0 {
		t.Fatalf("expected cleared identifier count=0, got %d", count)
	}

	other, errOther := tracker.CountRecent(context.Background(), "b@x.com", models.IdentifierEmail, 15*time.Minute)
	if errOther != nil {
		t.Fatalf("count other: %v", errOther)
	}
	if other != 1 {
		t.Fatalf("expected other identifier untouched, got %d", other)
	}
}

func TestTrackerRecordSwallowsErrors(t *testing.T) {
	db := newTestDB(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tracker := NewTrackerWithClock(db, func() time.Time { return now })

	// Dropping the table makes every insert fail; Record must not panic or
	// surface the error.
	if errDrop := db.Migrator().DropTable(&models.FailedAttempt{}); errDrop != nil {
		t.Fatalf("drop table: %v", errDrop)
	}
	tracker.Record(context.Background(), "a@x.com", models.IdentifierEmail, "", "")
}

func TestTrackerSweepDeletesOldRows(t *testing.T) {
	db := newTestDB(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tracker := NewTrackerWithClock(db, func() time.Time { return now })

	rows := []models.FailedAttempt{
		{Identifier: "a@x.com", IdentifierKind: models.IdentifierEmail, AttemptedAt: now.Add(-25 * time.Hour)},
		{Identifier: "a@x.com", IdentifierKind: models.IdentifierEmail, AttemptedAt: now.Add(-time.Minute)},
	}
	if errCreate := db.Create(&rows).Error; errCreate != nil {
		t.Fatalf("create rows: %v", errCreate)
	}

	deleted, errSweep := tracker.Sweep(context.Background())
	if errSweep != nil {
		t.Fatalf("sweep: %v", errSweep)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 swept row, got %d", deleted)
	}

	var remaining int64
	if errCount := db.Model(&models.FailedAttempt{}).Count(&remaining).Error; errCount != nil {
		t.Fatalf("count: %v", errCount)
	}
	if remaining != 1 {
		t.Fatalf("expected 1 remaining row, got %d", remaining)
	}
}

func TestTrackerStatsGroupsByKind(t *testing.T) {
	db := newTestDB(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tracker := NewTrackerWithClock(db, func() time.Time { return now })

	tracker.Record(context.Background(), "a@x.com", models.IdentifierEmail, "", "")
	tracker.Record(context.Background(), "a@x.com", models.IdentifierEmail, "", "")
	tracker.Record(context.Background(), "10.0.0.9", models.IdentifierIP, "", "")

	stats, errStats := tracker.Stats(context.Background(), time.Hour)
	if errStats != nil {
		t.Fatalf("stats: %v", errStats)
	}
	byKind := make(map[string]KindStat, len(stats))
	for _, s := range stats {
		byKind[s.IdentifierKind] = s
	}
	if byKind[models.IdentifierEmail].Total != 2 {
		t.Fatalf("expected 2 email attempts, got %d", byKind[models.IdentifierEmail].Total)
	}
	if byKind[models.IdentifierIP].Unresolved != 1 {
		t.Fatalf("expected 1 unresolved ip attempt, got %d", byKind[models.IdentifierIP].Unresolved)
	}
}
