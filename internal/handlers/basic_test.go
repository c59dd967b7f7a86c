package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"doc-chat/internal/workers"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealthCheck(t *testing.T) {
	h := NewHealthHandler(map[string]Pinger{
		"redis": pingFunc(func(ctx context.Context) error { return nil }),
	}, zap.NewNop())

	rec := httptest.NewRecorder()
	h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[HealthResponse](t, rec)
	assert.Equal(t, "success", resp.Status)
	assert.Equal(t, "ok", resp.Dependencies["redis"])
}

func TestHealthCheck_Degraded(t *testing.T) {
	h := NewHealthHandler(map[string]Pinger{
		"redis": pingFunc(func(ctx context.Context) error { return assert.AnError }),
	}, zap.NewNop())

	rec := httptest.NewRecorder()
	h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	resp := decode[HealthResponse](t, rec)
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, "unavailable", resp.Dependencies["redis"])
}

type statsFunc func() []workers.WorkerStats

func (f statsFunc) GetAllStats() []workers.WorkerStats { return f() }

func TestHealthCheck_WorkerStats(t *testing.T) {
	h := NewHealthHandler(nil, zap.NewNop()).WithWorkers(statsFunc(func() []workers.WorkerStats {
		return []workers.WorkerStats{{
			WorkerName:    "session-janitor",
			JobsProcessed: 3,
			JobsFailed:    1,
			Uptime:        time.Minute,
			IsRunning:     true,
		}}
	}))

	rec := httptest.NewRecorder()
	h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[HealthResponse](t, rec)
	require.Len(t, resp.Workers, 1)
	assert.Equal(t, "session-janitor", resp.Workers[0].WorkerName)
	assert.Equal(t, int64(3), resp.Workers[0].JobsProcessed)
	assert.True(t, resp.Workers[0].IsRunning)
}

func TestLiveness(t *testing.T) {
	rec := httptest.NewRecorder()
	Liveness(rec, httptest.NewRequest(http.MethodGet, "/livez", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"alive","status":"success"}`, rec.Body.String())
}
