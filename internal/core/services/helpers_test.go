package services

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/require"

	"github.com/dalf/botdetection/internal/adapters/storage/memory"
	"github.com/dalf/botdetection/internal/core/domain"
	"github.com/dalf/botdetection/internal/logging"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// failingStorage fails every call with ErrStoreUnavailable.
type failingStorage struct{}

func (failingStorage) IncrWithExpiry(context.Context, string, time.Duration) (int64, error) {
	return 0, domain.ErrStoreUnavailable
}

func (failingStorage) Set(context.Context, string, string, time.Duration) error {
	return domain.ErrStoreUnavailable
}

func (failingStorage) SetNX(context.Context, string, string, time.Duration) (bool, error) {
	return false, domain.ErrStoreUnavailable
}

func (failingStorage) Get(context.Context, string) (string, bool, error) {
	return "", false, domain.ErrStoreUnavailable
}

func (failingStorage) IncrIfEquals(context.Context, string, string, string, time.Duration) (int64, bool, error) {
	return 0, false, domain.ErrStoreUnavailable
}

func (failingStorage) Delete(context.Context, string) error {
	return domain.ErrStoreUnavailable
}

func newTestLogger(t *testing.T) (*log.Logger, *bytes.Buffer) {
	t.Helper()
	buf := &bytes.Buffer{}
	logger, err := logging.NewWithWriter(buf, logging.Config{Level: "debug", Format: "logfmt"})
	require.NoError(t, err)
	return logger, buf
}

func newTestStore() (*memory.Storage, *fakeClock) {
	clock := newFakeClock()
	return memory.NewWithClock(clock.Now), clock
}

func newRequest(remoteAddr string, headers map[string]string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/search", nil)
	r.RemoteAddr = remoteAddr
	for k, v := range headers {
		r.Header.Set(k, v)
	}
	return r
}

// blockingStorage holds every Get until release is closed, or until the
// call's ctx is done, the way a slow Redis honours its deadline.
type blockingStorage struct {
	*memory.Storage
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newBlockingStorage() *blockingStorage {
	return &blockingStorage{
		Storage: memory.New(),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (s *blockingStorage) Get(ctx context.Context, key string) (string, bool, error) {
	s.once.Do(func() { close(s.entered) })
	select {
	case <-s.release:
	case <-ctx.Done():
		return "", false, ctx.Err()
	}
	return s.Storage.Get(ctx, key)
}
