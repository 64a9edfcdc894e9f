package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds the Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RedisStore persists cached answers in Redis lists, one list per party and
// fingerprint.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore connects to Redis and validates the connection.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &RedisStore{rdb: rdb}, nil
}

func answerKey(partyID, key string) string {
	return "cached_answers:" + partyID + ":" + key
}

func (s *RedisStore) Get(ctx context.Context, partyID, key string) ([]CachedAnswer, error) {
	raw, err := s.rdb.LRange(ctx, answerKey(partyID, key), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("lrange failed: %w", err)
	}
	answers := make([]CachedAnswer, 0, len(raw))
	for _, item := range raw {
		var answer CachedAnswer
		if err := json.Unmarshal([]byte(item), &answer); err != nil {
			// Skip entries written by incompatible versions.
			continue
		}
		answers = append(answers, answer)
	}
	return answers, nil
}

func (s *RedisStore) Put(ctx context.Context, partyID, key string, answer CachedAnswer) error {
	data, err := json.Marshal(answer)
	if err != nil {
		return fmt.Errorf("marshal cached answer: %w", err)
	}
	if err := s.rdb.RPush(ctx, answerKey(partyID, key), data).Err(); err != nil {
		return fmt.Errorf("rpush failed: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

// StatusWriter records backend pool health in Redis so operators and other
// instances can see when a primary batch was exhausted.
type StatusWriter struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewStatusWriter builds a status writer sharing the store's connection.
func NewStatusWriter(store *RedisStore, ttl time.Duration) *StatusWriter {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &StatusWriter{rdb: store.rdb, ttl: ttl}
}

// RateLimitHit flags that every primary backend was unavailable. The flag
// expires on its own once capacity recovers.
func (w *StatusWriter) RateLimitHit(ctx context.Context) error {
	return w.rdb.Set(ctx, "system_status:rate_limit_hit", time.Now().Format(time.RFC3339), w.ttl).Err()
}
