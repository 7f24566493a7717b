package services

import (
	"context"
	"fmt"
	"time"

	"github.com/dalf/botdetection/internal/core/ports"
)

const (
	counterKind = "counter"
	blockKind   = "block"
)

// SlidingWindowCounter conta requisições por chave numa janela que começa no
// primeiro incremento. A atomicidade vem do store, não de locks locais.
type SlidingWindowCounter struct {
	storage ports.Storage
	keys    KeyBuilder
}

var _ ports.Counter = (*SlidingWindowCounter)(nil)

func NewSlidingWindowCounter(storage ports.Storage, keys KeyBuilder) (*SlidingWindowCounter, error) {
	if storage == nil {
		return nil, fmt.Errorf("storage is required")
	}
	return &SlidingWindowCounter{storage: storage, keys: keys}, nil
}

// Increment returns the post-increment count for key. The window is fixed when
// the key is created and is not extended by later increments.
func (c *SlidingWindowCounter) Increment(ctx context.Context, key string, window time.Duration) (int64, error) {
	if window <= 0 {
		return 0, fmt.Errorf("window must be positive, got %s", window)
	}
	return c.storage.IncrWithExpiry(ctx, c.keys.Key(counterKind, key), window)
}

func (c *SlidingWindowCounter) Drop(ctx context.Context, key string) error {
	return c.storage.Delete(ctx, c.keys.Key(counterKind, key))
}

func (c *SlidingWindowCounter) Block(ctx context.Context, key string, duration time.Duration) error {
	if duration <= 0 {
		return c.storage.Delete(ctx, c.keys.Key(blockKind, key))
	}
	return c.storage.Set(ctx, c.keys.Key(blockKind, key), "1", duration)
}

func (c *SlidingWindowCounter) IsBlocked(ctx context.Context, key string) (bool, error) {
	_, found, err := c.storage.Get(ctx, c.keys.Key(blockKind, key))
	if err != nil {
		return false, err
	}
	return found, nil
}
