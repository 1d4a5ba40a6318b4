package challenge

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/hirestack/jobboard-auth/internal/config"
)

const redisBreakerDuration = 30 * time.Second

// RedisClientFactory constructs a Redis client for the given options.
type RedisClientFactory func(options *redis.Options) *redis.Client

// Manager issues and consumes pending two-factor challenges, preferring
// Redis so challenges survive restarts and spread across replicas, with an
// in-memory fallback when Redis is unreachable.
type Manager struct {
	cfg            config.RedisConfig
	ttl            time.Duration
	nowFn          func() time.Time
	memoryStore    *MemoryStore
	newRedisClient RedisClientFactory

	mu           sync.Mutex
	redisStore   *RedisStore
	breakerUntil time.Time
}

// NewManager constructs a Manager with default dependencies when nil.
func NewManager(cfg config.RedisConfig, ttl time.Duration, nowFn func() time.Time, newRedisClient RedisClientFactory) *Manager {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	if newRedisClient == nil {
		newRedisClient = redis.NewClient
	}
	return &Manager{
		cfg:            cfg,
		ttl:            ttl,
		nowFn:          nowFn,
		memoryStore:    NewMemoryStore(),
		newRedisClient: newRedisClient,
	}
}

// Issue stores a fresh challenge for the user and returns its opaque ID.
func (m *Manager) Issue(ctx context.Context, userID uint64, email string) (string, error) {
	now := m.nowFn().UTC()
	record := Record{
		UserID:    userID,
		Email:     email,
		IssuedAt:  now,
		ExpiresAt: now.Add(m.ttl),
	}
	id := uuid.NewString()

	if store := m.redisAvailable(ctx, now); store != nil {
		errPut := store.Put(ctx, id, record, m.ttl)
		if errPut == nil {
			return id, nil
		}
		m.tripBreaker(errPut, now)
	}
	if errPut := m.memoryStore.Put(ctx, id, record, m.ttl); errPut != nil {
		return "", errPut
	}
	return id, nil
}

// Consume removes the challenge and returns its record. A missing, expired,
// or already-consumed challenge reports ok=false.
func (m *Manager) Consume(ctx context.Context, id string) (Record, bool, error) {
	if strings.TrimSpace(id) == "" {
		return Record{}, false, nil
	}
	now := m.nowFn().UTC()

	if store := m.redisAvailable(ctx, now); store != nil {
		record, ok, errTake := store.Take(ctx, id, now)
		if errTake == nil {
			if ok {
				return record, true, nil
			}
			// Fall through: the challenge may have been issued to memory
			// while the breaker was open.
		} else {
			m.tripBreaker(errTake, now)
		}
	}
	return m.memoryStore.Take(ctx, id, now)
}

// Sweep drops expired in-memory challenges. Redis keys expire on their own.
func (m *Manager) Sweep() int {
	return m.memoryStore.Sweep(m.nowFn().UTC())
}

func (m *Manager) redisAvailable(ctx context.Context, now time.Time) *RedisStore {
	if strings.TrimSpace(m.cfg.Addr) == "" {
		return nil
	}
	if m.isBreakerActive(now) {
		return nil
	}
	store, errEnsure := m.ensureRedis(ctx)
	if errEnsure != nil {
		m.tripBreaker(errEnsure, now)
		return nil
	}
	return store
}

func (m *Manager) isBreakerActive(now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.breakerUntil.IsZero() {
		return false
	}
	if now.Before(m.breakerUntil) {
		return true
	}
	m.breakerUntil = time.Time{}
	return false
}

func (m *Manager) tripBreaker(err error, now time.Time) {
	if err == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.breakerUntil.IsZero() && now.Before(m.breakerUntil) {
		return
	}
	m.breakerUntil = now.Add(redisBreakerDuration)
	log.WithError(err).Warn("challenge: redis unavailable, falling back to memory")
}

func (m *Manager) ensureRedis(ctx context.Context) (*RedisStore, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.redisStore != nil {
		return m.redisStore, nil
	}

	client := m.newRedisClient(&redis.Options{
		Addr:     strings.TrimSpace(m.cfg.Addr),
		Password: strings.TrimSpace(m.cfg.Password),
		DB:       m.cfg.DB,
	})
	ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if errPing := client.Ping(ctxPing).Err(); errPing != nil {
		_ = client.Close()
		return nil, errPing
	}
	m.redisStore = NewRedisStore(client, m.cfg.Prefix)
	return m.redisStore, nil
}
