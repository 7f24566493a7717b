package main

import (
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dalf/botdetection/internal/adapters/storage/memory"
	"github.com/dalf/botdetection/internal/config"
	"github.com/dalf/botdetection/internal/core/domain"
	"github.com/dalf/botdetection/internal/core/services"
)

var browserHeaders = map[string]string{
	"Accept":          "text/html,application/xhtml+xml,*/*;q=0.8",
	"Accept-Encoding": "gzip, deflate, br",
	"Accept-Language": "en-US,en;q=0.5",
	"User-Agent":      "Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0",
}

func newTestApp(t *testing.T, detection domain.DetectionConfig) (http.Handler, *memory.Storage) {
	t.Helper()
	return newTestAppWith(t, detection, true)
}

func newTestAppWith(t *testing.T, detection domain.DetectionConfig, demoRoutes bool) (http.Handler, *memory.Storage) {
	t.Helper()
	store := memory.New()
	handler, err := newApp(appDeps{
		Detection:  detection,
		Storage:    store,
		Keys:       services.NewKeyBuilder("test:", "secret"),
		Logger:     log.New(io.Discard),
		Registry:   prometheus.NewRegistry(),
		DemoRoutes: demoRoutes,
	})
	require.NoError(t, err)
	return handler, store
}

func get(h http.Handler, target, ip string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.RemoteAddr = ip + ":4711"
	req.Header.Set("X-Forwarded-For", ip)
	req.Header.Set("X-Real-IP", ip)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestApp_APIFormatIsRateLimited(t *testing.T) {
	h, _ := newTestApp(t, domain.DefaultDetectionConfig())

	for i := 1; i <= 4; i++ {
		assert.Equal(t, http.StatusOK, get(h, "/search?q=go&format=json", "203.0.113.5", browserHeaders).Code, "request %d", i)
	}
	rec := get(h, "/search?q=go&format=json", "203.0.113.5", browserHeaders)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "Too Many Requests", rec.Body.String())

	// html searches do not count against the API limit
	assert.Equal(t, http.StatusOK, get(h, "/search?q=go", "203.0.113.5", browserHeaders).Code)
}

func TestApp_SearchRejectsBots(t *testing.T) {
	h, _ := newTestApp(t, domain.DefaultDetectionConfig())

	assert.Equal(t, http.StatusTooManyRequests, get(h, "/search?q=go", "203.0.113.7", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, get(h, "/", "203.0.113.7", map[string]string{"User-Agent": "python-requests/2.31"}).Code)
	assert.Equal(t, http.StatusOK, get(h, "/healthz", "203.0.113.7", map[string]string{"User-Agent": "curl/8.0"}).Code)
}

func TestApp_BlockList(t *testing.T) {
	cfg := domain.DefaultDetectionConfig()
	entry, err := domain.ParseListEntry("198.51.100.9", "known-scraper")
	require.NoError(t, err)
	cfg.BlockList = []domain.ListEntry{entry}
	h, store := newTestApp(t, cfg)

	assert.Equal(t, http.StatusTooManyRequests, get(h, "/search?q=go", "198.51.100.9", browserHeaders).Code)
	assert.Equal(t, 0, store.Len())
}

func TestApp_LinkTokenRoundTrip(t *testing.T) {
	cfg := domain.DefaultDetectionConfig()
	cfg.IPLimit.LinkToken = true
	h, _ := newTestApp(t, cfg)

	page := get(h, "/", "203.0.113.5", browserHeaders)
	require.Equal(t, http.StatusOK, page.Code)
	match := regexp.MustCompile(`href="(/client[a-z0-9]+\.css)"`).FindStringSubmatch(page.Body.String())
	require.Len(t, match, 2)

	ping := get(h, match[1], "203.0.113.5", browserHeaders)
	assert.Equal(t, http.StatusOK, ping.Code)
	assert.Equal(t, "text/css", ping.Header().Get("Content-Type"))

	// a pinged network gets the vanilla limits instead of the suspicious ones
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, get(h, "/search?q=go", "203.0.113.5", browserHeaders).Code)
	}

	// a network that never fetched the token is suspicious: burst max is 2
	get(h, "/search?q=go", "203.0.113.99", browserHeaders)
	get(h, "/search?q=go", "203.0.113.99", browserHeaders)
	assert.Equal(t, http.StatusTooManyRequests, get(h, "/search?q=go", "203.0.113.99", browserHeaders).Code)
}

func TestApp_Metrics(t *testing.T) {
	h, _ := newTestApp(t, domain.DefaultDetectionConfig())
	get(h, "/search?q=go", "203.0.113.7", nil)

	rec := get(h, "/metrics", "203.0.113.7", browserHeaders)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `botdetection_decisions_total{outcome="reject",source="filter"} 1`))
}

func TestApp_DetectionLoadFailureRunsWithoutFilters(t *testing.T) {
	detection, err := config.LoadDetection(filepath.Join(t.TempDir(), "missing.toml"))
	require.ErrorIs(t, err, domain.ErrConfigLoad)
	h, store := newTestAppWith(t, detection, false)

	for i := 1; i <= 20; i++ {
		assert.Equal(t, http.StatusOK, get(h, "/search?q=go", "203.0.113.5", browserHeaders).Code, "request %d", i)
	}
	assert.Equal(t, 0, store.Len())
	assert.Equal(t, http.StatusOK, get(h, "/", "203.0.113.5", map[string]string{"User-Agent": "curl/8.0"}).Code)
}

func TestStoreSecret(t *testing.T) {
	secret, err := storeSecret(config.StorageConfig{Type: "redis", Secret: "shared"})
	require.NoError(t, err)
	assert.Equal(t, "shared", secret)

	_, err = storeSecret(config.StorageConfig{Type: "redis"})
	assert.Error(t, err)

	first, err := storeSecret(config.StorageConfig{Type: "memory"})
	require.NoError(t, err)
	second, err := storeSecret(config.StorageConfig{Type: "memory"})
	require.NoError(t, err)
	assert.Len(t, first, 64)
	assert.NotEqual(t, first, second)
}

func TestApp_UnknownFilterFailsStartup(t *testing.T) {
	cfg := domain.DefaultDetectionConfig()
	cfg.Routes = map[string][]string{"/search": {"no_such_filter"}}

	_, err := newApp(appDeps{
		Detection: cfg,
		Storage:   memory.New(),
		Keys:      services.NewKeyBuilder("", ""),
		Logger:    log.New(io.Discard),
	})
	assert.ErrorIs(t, err, domain.ErrUnknownFilter)
}
