package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"regexp"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dalf/botdetection/internal/adapters/http/middleware"
	"github.com/dalf/botdetection/internal/adapters/storage/memory"
	"github.com/dalf/botdetection/internal/core/domain"
	"github.com/dalf/botdetection/internal/core/services"
)

var linkRe = regexp.MustCompile(`<link rel="stylesheet" href="/client([a-z0-9]{16})\.css" type="text/css">`)

type staticResolver struct {
	info domain.RequestInfo
}

func (s staticResolver) Resolve(*http.Request) domain.RequestInfo {
	return s.info
}

func newTestLinkToken(t *testing.T) (*LinkToken, *services.LinkTokenChallenge, domain.RequestInfo) {
	t.Helper()
	store := memory.NewWithClock(func() time.Time { return time.Unix(1_700_000_000, 0) })
	logger := log.New(io.Discard)
	challenge, err := services.NewLinkTokenChallenge(store, services.NewKeyBuilder("", "s"), domain.DefaultDetectionConfig().LinkToken, logger)
	require.NoError(t, err)

	info := domain.RequestInfo{
		RealIP:  netip.MustParseAddr("203.0.113.5"),
		Network: netip.MustParsePrefix("203.0.113.5/32"),
	}
	return NewLinkToken(challenge, staticResolver{info: info}, logger), challenge, info
}

func TestLinkToken_HTMLHeaderAndPing(t *testing.T) {
	h, challenge, info := newTestLinkToken(t)

	header := h.HTMLHeader(httptest.NewRequest(http.MethodGet, "/", nil))
	match := linkRe.FindStringSubmatch(string(header))
	require.Len(t, match, 2, "header: %s", header)
	token := match[1]

	r := chi.NewRouter()
	r.Get(PingRoute, h.Ping)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/client"+token+".css", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/css", rec.Header().Get("Content-Type"))
	assert.Empty(t, rec.Body.String())

	pinged, err := challenge.Pinged(t.Context(), info.Network)
	require.NoError(t, err)
	assert.True(t, pinged)
}

func TestLinkToken_PingWithUnknownTokenLooksTheSame(t *testing.T) {
	h, challenge, info := newTestLinkToken(t)

	r := chi.NewRouter()
	r.Get(PingRoute, h.Ping)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/clientzzzzzzzzzzzzzzzz.css", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/css", rec.Header().Get("Content-Type"))
	assert.Empty(t, rec.Body.String())

	pinged, err := challenge.Pinged(t.Context(), info.Network)
	require.NoError(t, err)
	assert.False(t, pinged)
}

func TestLinkToken_PrefersMiddlewareNetwork(t *testing.T) {
	h, challenge, _ := newTestLinkToken(t)
	other := domain.RequestInfo{
		RealIP:  netip.MustParseAddr("198.51.100.1"),
		Network: netip.MustParsePrefix("198.51.100.0/24"),
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(middleware.WithRequestInfo(req.Context(), other))
	header := h.HTMLHeader(req)

	token, err := challenge.Issue(t.Context(), other.Network)
	require.NoError(t, err)
	assert.Contains(t, string(header), token)
}

func TestDemo(t *testing.T) {
	h, _, _ := newTestLinkToken(t)
	demo := NewDemo(h)

	rec := httptest.NewRecorder()
	demo.Index(rec, httptest.NewRequest(http.MethodGet, "/?q=%3Cb%3E", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Regexp(t, linkRe, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "<b>")

	rec = httptest.NewRecorder()
	demo.Search(rec, httptest.NewRequest(http.MethodGet, "/search?q=go&format=json", nil))
	var body struct {
		Query   string   `json:"query"`
		Results []string `json:"results"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "go", body.Query)
	assert.Len(t, body.Results, 3)

	rec = httptest.NewRecorder()
	Healthz(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, "ok", rec.Body.String())
}

func TestIsAPIFormat(t *testing.T) {
	for target, want := range map[string]bool{
		"/search":             false,
		"/search?format=html": false,
		"/search?format=json": true,
		"/search?format=csv":  true,
	} {
		assert.Equal(t, want, IsAPIFormat(httptest.NewRequest(http.MethodGet, target, nil)), target)
	}
}
