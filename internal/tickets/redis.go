package tickets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces ticket keys.
const DefaultKeyPrefix = "inboxprune:ticket:"

// redisClient is the subset of *redis.Client the store uses.
type redisClient interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
}

// RedisStore keeps tickets in Redis so confirmation survives restarts and is
// shared between replicas. Keys expire on their own after the grace window.
type RedisStore struct {
	rdb    redisClient
	prefix string
	grace  time.Duration

	// Now is the clock used to compute key TTLs.
	Now func() time.Time
}

var _ Store = (*RedisStore)(nil)

// RedisOptions configures NewRedisClient.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisClient connects to Redis and verifies the connection.
func NewRedisClient(ctx context.Context, opts RedisOptions) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", opts.Addr, err)
	}
	return rdb, nil
}

// NewRedisStore returns a store using rdb. An empty prefix uses DefaultKeyPrefix.
func NewRedisStore(rdb redisClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisStore{rdb: rdb, prefix: prefix, grace: DefaultGrace, Now: time.Now}
}

func (s *RedisStore) key(token string) string {
	return s.prefix + token
}

func (s *RedisStore) Put(ctx context.Context, t Ticket) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode ticket: %w", err)
	}
	ttl := t.ExpiresAt.Sub(s.Now()) + s.grace
	if ttl <= 0 {
		ttl = time.Second
	}
	if err := s.rdb.Set(ctx, s.key(t.Token), data, ttl).Err(); err != nil {
		return fmt.Errorf("store ticket: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, token string) (Ticket, bool, error) {
	data, err := s.rdb.Get(ctx, s.key(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Ticket{}, false, nil
	}
	if err != nil {
		return Ticket{}, false, fmt.Errorf("load ticket: %w", err)
	}
	var t Ticket
	if err := json.Unmarshal(data, &t); err != nil {
		return Ticket{}, false, fmt.Errorf("decode ticket: %w", err)
	}
	return t, true, nil
}

// Delete uses DEL, whose reply count makes consumption single-use across
// processes.
func (s *RedisStore) Delete(ctx context.Context, token string) (bool, error) {
	n, err := s.rdb.Del(ctx, s.key(token)).Result()
	if err != nil {
		return false, fmt.Errorf("delete ticket: %w", err)
	}
	return n > 0, nil
}

// Ping checks the connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}
