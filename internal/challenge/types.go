package challenge

import (
	"context"
	"time"
)

// Record holds the identity a pending two-factor challenge was issued for.
type Record struct {
	UserID    uint64    `json:"user_id"`
	Email     string    `json:"email"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Store persists pending challenges for at most their TTL.
type Store interface {
	Put(ctx context.Context, id string, record Record, ttl time.Duration) error
	Take(ctx context.Context, id string, now time.Time) (Record, bool, error)
}
