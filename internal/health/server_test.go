package health

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plotbeam/renderauth/internal/config"
	"github.com/plotbeam/renderauth/internal/logging"
)

type fakePinger struct {
	err   error
	stats sql.DBStats
}

func (f *fakePinger) Ping(ctx context.Context) error { return f.err }

func (f *fakePinger) Stats() (sql.DBStats, bool) { return f.stats, true }

func newTestServer(pinger Pinger) *Server {
	return NewServer(config.HealthConfig{
		Enabled: true,
		Port:    9090,
		Path:    "/metrics",
	}, pinger, logging.New(false, true))
}

func TestHealthzReportsPoolUsage(t *testing.T) {
	t.Parallel()

	server := newTestServer(&fakePinger{stats: sql.DBStats{
		OpenConnections:    3,
		InUse:              1,
		MaxOpenConnections: 5,
	}})

	rec := httptest.NewRecorder()
	server.handleHealthz(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp healthzResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.NotNil(t, resp.Store)
	assert.True(t, resp.Store.Reachable)
	assert.Equal(t, 3, resp.Store.OpenConns)
	assert.Equal(t, 5, resp.Store.MaxOpen)
}

func TestHealthzDegradedWhenStoreUnreachable(t *testing.T) {
	t.Parallel()

	server := newTestServer(&fakePinger{err: errors.New("connection refused")})

	rec := httptest.NewRecorder()
	server.handleHealthz(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp healthzResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp.Status)
	require.NotNil(t, resp.Store)
	assert.False(t, resp.Store.Reachable)
}

func TestHealthzWithoutStore(t *testing.T) {
	t.Parallel()

	// Remote-mode deployments run the listener with no store behind it.
	server := newTestServer(nil)

	rec := httptest.NewRecorder()
	server.handleHealthz(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp healthzResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Nil(t, resp.Store)
}
