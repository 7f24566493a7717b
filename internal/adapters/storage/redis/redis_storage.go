// Package redis disponibiliza a implementação do storage baseada em Redis.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/dalf/botdetection/internal/core/domain"
	"github.com/dalf/botdetection/internal/core/ports"
)

const DefaultTimeout = 250 * time.Millisecond

var (
	// O TTL só é definido quando o INCR cria a chave: a janela começa no
	// primeiro hit e não é renovada pelos seguintes.
	incrWithExpiryScript = redis.NewScript(`
local c = redis.call("INCR", KEYS[1])
if c == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return c`)

	incrIfEqualsScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) ~= ARGV[1] then
	return -1
end
local c = redis.call("INCR", KEYS[2])
if c == 1 then
	redis.call("PEXPIRE", KEYS[2], ARGV[2])
end
return c`)
)

type Storage struct {
	client  *redis.Client
	timeout time.Duration
}

var _ ports.Storage = (*Storage)(nil)

type Config struct {
	// URL, quando definida, tem precedência sobre Addr/Password/DB.
	URL      string
	Addr     string
	Password string
	DB       int
	Timeout  time.Duration
}

func New(cfg Config) (*Storage, error) {
	var opts *redis.Options
	if cfg.URL != "" {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse redis url: %w", err)
		}
		opts = parsed
	} else {
		if cfg.Addr == "" {
			return nil, fmt.Errorf("redis address is required")
		}
		opts = &redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewWithClient(client, cfg.Timeout), nil
}

// NewWithClient wraps an existing client. A non-positive timeout selects DefaultTimeout.
func NewWithClient(client *redis.Client, timeout time.Duration) *Storage {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Storage{client: client, timeout: timeout}
}

func (s *Storage) Close() error {
	return s.client.Close()
}

func (s *Storage) IncrWithExpiry(ctx context.Context, key string, window time.Duration) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	count, err := incrWithExpiryScript.Run(ctx, s.client, []string{key}, ttlMillis(window)).Int64()
	if err != nil {
		return 0, unavailable("incr", err)
	}
	return count, nil
}

func (s *Storage) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return unavailable("set", err)
	}
	return nil
}

func (s *Storage) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	ok, err := s.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, unavailable("setnx", err)
	}
	return ok, nil
}

func (s *Storage) Get(ctx context.Context, key string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	value, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, unavailable("get", err)
	}
	return value, true, nil
}

func (s *Storage) IncrIfEquals(ctx context.Context, guardKey, expected, counterKey string, ttl time.Duration) (int64, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	count, err := incrIfEqualsScript.Run(ctx, s.client, []string{guardKey, counterKey}, expected, ttlMillis(ttl)).Int64()
	if err != nil {
		return 0, false, unavailable("incr-if-equals", err)
	}
	if count < 0 {
		return 0, false, nil
	}
	return count, true, nil
}

func (s *Storage) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.client.Del(ctx, key).Err(); err != nil {
		return unavailable("del", err)
	}
	return nil
}

// PEXPIRE 0 apaga a chave; a janela mínima é 1ms.
func ttlMillis(d time.Duration) int64 {
	if ms := d.Milliseconds(); ms > 0 {
		return ms
	}
	return 1
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: redis %s: %v", domain.ErrStoreUnavailable, op, err)
}
