package http

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ServerConfig)
		errHas string
	}{
		{"defaults_are_valid", func(c *ServerConfig) {}, ""},
		{"zero_port", func(c *ServerConfig) { c.Port = 0 }, "port"},
		{"port_out_of_range", func(c *ServerConfig) { c.Port = 70000 }, "port"},
		{"zero_rate_limit", func(c *ServerConfig) { c.RateLimit = 0 }, "rate_limit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultServerConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.errHas == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errHas)
			}
		})
	}
}

func TestNewServer_RejectsBusyPort(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	cfg := DefaultServerConfig()
	cfg.Port = l.Addr().(*net.TCPAddr).Port

	_, err = NewServer(cfg, nil, NewMetrics(), NewProgressHub(zerolog.Nop()), zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), fmt.Sprintf("port %d is busy or unavailable", cfg.Port))
}

func TestServer_RateLimiting(t *testing.T) {
	cfg := testServerConfig(t)
	cfg.RateLimit = 1
	cfg.RateBurst = 2
	f := newMonitorFixture(t, cfg)

	for i := 0; i < 2; i++ {
		rec := f.do(httptest.NewRequest("GET", "/health", nil))
		require.Equal(t, http.StatusOK, rec.Code, "request %d within burst", i+1)
	}

	rec := f.do(httptest.NewRequest("GET", "/health", nil))
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "rate limit exceeded")
}

func TestServer_RequestIDsAreUnique(t *testing.T) {
	f := newMonitorFixture(t, testServerConfig(t))

	first := f.do(httptest.NewRequest("GET", "/health", nil)).Header().Get("X-Request-ID")
	second := f.do(httptest.NewRequest("GET", "/health", nil)).Header().Get("X-Request-ID")

	assert.Len(t, first, 8)
	assert.Len(t, second, 8)
	assert.NotEqual(t, first, second)
}

func TestServer_UnknownEndpointIsJSON(t *testing.T) {
	f := newMonitorFixture(t, testServerConfig(t))

	rec := f.do(httptest.NewRequest("GET", "/api/v2/nope", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "unknown endpoint /api/v2/nope", resp.Error)
}

func TestServer_MethodEnforcement(t *testing.T) {
	f := newMonitorFixture(t, testServerConfig(t))

	rec := f.do(httptest.NewRequest("POST", "/health", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
