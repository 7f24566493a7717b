package filters

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dalf/botdetection/internal/core/domain"
)

func TestRegistry_Lookup(t *testing.T) {
	reg := NewRegistry()

	for _, name := range []string{"http_accept", "http_accept_encoding", "http_accept_language", "http_connection", "http_user_agent", "ip_limit"} {
		f, err := reg.Lookup(name)
		require.NoError(t, err, name)
		assert.Equal(t, name, f.Name())
	}

	f, err := reg.Lookup("rate_limit:api")
	require.NoError(t, err)
	assert.Equal(t, "rate_limit:api", f.Name())

	_, err = reg.Lookup("nope")
	assert.ErrorIs(t, err, domain.ErrUnknownFilter)
}

func TestRegistry_Register(t *testing.T) {
	reg := NewRegistry()

	require.NoError(t, reg.Register(When("custom", nil, HTTPConnection())))
	f, err := reg.Lookup("custom")
	require.NoError(t, err)
	assert.Equal(t, "custom", f.Name())

	assert.Error(t, reg.Register(HTTPAccept()))
	assert.Error(t, reg.Register(RateLimit("api")))
}

func TestRegistry_BuildTable(t *testing.T) {
	reg := NewRegistry()
	cfg := domain.DefaultDetectionConfig()
	cfg.RateLimits = map[string]domain.RateLimitRule{"api": {Requests: 4, Window: time.Hour}}
	cfg.Routes = map[string][]string{
		"/healthz": {},
		"/search":  {"http_accept", "rate_limit:api", "ip_limit"},
		"*":        {"http_user_agent"},
	}

	table, err := reg.BuildTable(&cfg)
	require.NoError(t, err)
	assert.Empty(t, table.Lookup("/healthz"))
	assert.Len(t, table.Lookup("/search"), 3)
	assert.Equal(t, "http_user_agent", table.Lookup("/other")[0].Name())

	cfg.Routes = map[string][]string{"/search": {"rate_limit:unknown"}}
	_, err = reg.BuildTable(&cfg)
	assert.ErrorIs(t, err, domain.ErrUnknownFilter)

	cfg.Routes = map[string][]string{"/search": {"http_bogus"}}
	_, err = reg.BuildTable(&cfg)
	assert.ErrorIs(t, err, domain.ErrUnknownFilter)
}
