package challenge

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore persists pending challenges in Redis with a key TTL.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore constructs a RedisStore.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: strings.TrimSpace(prefix),
	}
}

// Put stores the record under id with the given TTL.
func (s *RedisStore) Put(ctx context.Context, id string, record Record, ttl time.Duration) error {
	if id == "" || s == nil || s.client == nil {
		return nil
	}
	payload, errMarshal := json.Marshal(record)
	if errMarshal != nil {
		return errMarshal
	}
	return s.client.Set(ctx, s.buildKey(id), payload, ttl).Err()
}

// Take atomically removes and returns the record for id. The key TTL makes
// expiry authoritative on the Redis side.
func (s *RedisStore) Take(ctx context.Context, id string, now time.Time) (Record, bool, error) {
	if id == "" || s == nil || s.client == nil {
		return Record{}, false, nil
	}
	payload, errGet := s.client.GetDel(ctx, s.buildKey(id)).Bytes()
	if errGet == redis.Nil {
		return Record{}, false, nil
	}
	if errGet != nil {
		return Record{}, false, errGet
	}
	var record Record
	if errUnmarshal := json.Unmarshal(payload, &record); errUnmarshal != nil {
		return Record{}, false, errUnmarshal
	}
	if !record.ExpiresAt.After(now) {
		return Record{}, false, nil
	}
	return record, true, nil
}

func (s *RedisStore) buildKey(id string) string {
	if s.prefix == "" {
		return id
	}
	return s.prefix + ":" + id
}
