package cache

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig captures the connection parameters for the shared Redis cache.
// URL takes precedence over the discrete fields when set.
type RedisConfig struct {
	URL      string
	Address  string
	Username string
	Password string
	DB       int
	TLS      bool
	Timeout  time.Duration
}

const (
	defaultRedisTimeout = 5 * time.Second
	redisKeyPrefix      = "cmsconsole:"
)

// RedisStore implements Store on top of go-redis.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore dials Redis and verifies the connection so misconfiguration
// surfaces during startup.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	opts, err := redisOptions(cfg)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), opts.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: connect: %w", err)
	}

	return NewRedisStoreWithClient(client), nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	if client == nil {
		return nil
	}
	return &RedisStore{client: client, prefix: redisKeyPrefix}
}

func redisOptions(cfg RedisConfig) (*redis.Options, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultRedisTimeout
	}

	var opts *redis.Options
	if url := strings.TrimSpace(cfg.URL); url != "" {
		parsed, err := redis.ParseURL(url)
		if err != nil {
			return nil, fmt.Errorf("redis: parse url: %w", err)
		}
		opts = parsed
	} else {
		address := strings.TrimSpace(cfg.Address)
		if address == "" {
			return nil, errors.New("redis: address is required")
		}
		opts = &redis.Options{
			Addr:     address,
			Username: cfg.Username,
			Password: cfg.Password,
			DB:       cfg.DB,
		}
		if cfg.TLS {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
	}

	opts.DialTimeout = timeout
	opts.ReadTimeout = timeout
	opts.WriteTimeout = timeout
	return opts, nil
}

// Ping verifies the connection is alive.
func (s *RedisStore) Ping(ctx context.Context) error {
	if s == nil {
		return ErrStoreNotInitialised
	}
	return s.client.Ping(ensureContext(ctx)).Err()
}

// Close releases the underlying connection pool.
func (s *RedisStore) Close() error {
	if s == nil {
		return nil
	}
	return s.client.Close()
}

// IncrementWithTTL increments key and sets the window expiry on the first hit.
// It returns the current count and the remaining time-to-live.
func (s *RedisStore) IncrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	if s == nil {
		return 0, 0, ErrStoreNotInitialised
	}
	ctx = ensureContext(ctx)
	if window <= 0 {
		window = time.Minute
	}

	k := s.key(key)
	count, err := s.client.Incr(ctx, k).Result()
	if err != nil {
		return 0, 0, err
	}
	if count == 1 {
		if err := s.client.PExpire(ctx, k, window).Err(); err != nil {
			return 0, 0, err
		}
	}

	ttl, err := s.client.PTTL(ctx, k).Result()
	if err != nil || ttl < 0 {
		return count, window, nil
	}
	return count, ttl, nil
}

// Set stores value under key. A non-positive ttl keeps the key until deleted.
func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if s == nil {
		return ErrStoreNotInitialised
	}
	if ttl < 0 {
		ttl = 0
	}
	return s.client.Set(ensureContext(ctx), s.key(key), value, ttl).Err()
}

// Get returns the value stored under key, reporting false when it is absent.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if s == nil {
		return nil, false, ErrStoreNotInitialised
	}
	value, err := s.client.Get(ensureContext(ctx), s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

// Delete removes one or more keys, ignoring missing keys.
func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if s == nil {
		return ErrStoreNotInitialised
	}
	if len(keys) == 0 {
		return nil
	}
	prefixed := make([]string, 0, len(keys))
	for _, key := range keys {
		prefixed = append(prefixed, s.key(key))
	}
	return s.client.Del(ensureContext(ctx), prefixed...).Err()
}

func (s *RedisStore) key(key string) string {
	normalized := normalizeKey(key)
	if strings.HasPrefix(normalized, s.prefix) {
		return normalized
	}
	return normalizeKey(s.prefix + normalized)
}

// normalizeKey collapses repeated colons.
func normalizeKey(key string) string {
	if key == "" {
		return key
	}
	var builder strings.Builder
	builder.Grow(len(key))
	prevColon := false
	for i := 0; i < len(key); i++ {
		ch := key[i]
		if ch == ':' {
			if prevColon {
				continue
			}
			prevColon = true
		} else {
			prevColon = false
		}
		builder.WriteByte(ch)
	}
	return builder.String()
}
