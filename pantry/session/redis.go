package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Redis-backed snapshot storage. Keys expire with
// the record, so Redis does the cleanup.
type RedisStore struct {
	client    redis.UniversalClient
	keyPrefix string
}

// RedisStoreConfig configures the Redis store.
type RedisStoreConfig struct {
	// Client is an existing Redis client.
	// If provided, other connection options are ignored.
	Client redis.UniversalClient

	// Address is the Redis server address.
	Address string

	// Password for Redis authentication.
	Password string

	// DB is the database number.
	DB int

	// KeyPrefix is prepended to record keys.
	// Default: "signup:page:".
	KeyPrefix string

	// PoolSize is the connection pool size.
	// Default: 10.
	PoolSize int

	// DialTimeout bounds the initial ping.
	// Default: 5 seconds.
	DialTimeout time.Duration
}

// NewRedisStoreWithConfig creates a Redis store and verifies the connection.
func NewRedisStoreWithConfig(ctx context.Context, cfg RedisStoreConfig) (*RedisStore, error) {
	client := cfg.Client
	if client == nil {
		if cfg.Address == "" {
			return nil, errors.New("session: redis address required")
		}
		poolSize := cfg.PoolSize
		if poolSize == 0 {
			poolSize = 10
		}
		client = redis.NewClient(&redis.Options{
			Addr:     cfg.Address,
			Password: cfg.Password,
			DB:       cfg.DB,
			PoolSize: poolSize,
		})
	}

	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("session: redis ping %s: %w", cfg.Address, err)
	}

	keyPrefix := cfg.KeyPrefix
	if keyPrefix == "" {
		keyPrefix = "signup:page:"
	}

	return &RedisStore{
		client:    client,
		keyPrefix: keyPrefix,
	}, nil
}

func (s *RedisStore) key(id string) string {
	return s.keyPrefix + id
}

// Hash fields of a stored record. Times are Unix milliseconds.
const (
	fieldData    = "data"
	fieldCreated = "created"
	fieldUpdated = "updated"
	fieldExpires = "expires"
)

func (s *RedisStore) Load(ctx context.Context, id string) (*Record, error) {
	h, err := s.client.HGetAll(ctx, s.key(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("session: load %s: %w", id, err)
	}
	data, ok := h[fieldData]
	if !ok {
		return nil, ErrNotFound
	}
	rec := &Record{
		ID:        id,
		Data:      json.RawMessage(data),
		CreatedAt: millis(h[fieldCreated]),
		UpdatedAt: millis(h[fieldUpdated]),
		ExpiresAt: millis(h[fieldExpires]),
	}
	if rec.Expired(time.Now()) {
		return nil, ErrExpired
	}
	return rec, nil
}

// Save writes the record and sets the key to expire with it. CreatedAt is
// kept from the first save.
func (s *RedisStore) Save(ctx context.Context, rec *Record) error {
	if rec.Expired(time.Now()) {
		return nil
	}
	key := s.key(rec.ID)
	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	expires := unixMilli(rec.ExpiresAt)

	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSetNX(ctx, key, fieldCreated, created.UnixMilli())
		p.HSet(ctx, key,
			fieldData, []byte(rec.Data),
			fieldUpdated, unixMilli(rec.UpdatedAt),
			fieldExpires, expires,
		)
		if expires > 0 {
			p.PExpireAt(ctx, key, rec.ExpiresAt)
		} else {
			p.Persist(ctx, key)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("session: save %s: %w", rec.ID, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	return s.client.Del(ctx, s.key(id)).Err()
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func unixMilli(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// millis parses a Unix millisecond field. Missing or zero is the zero time.
func millis(v string) time.Time {
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil || ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
