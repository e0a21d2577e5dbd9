package health_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/express-checkout/internal/health"
)

type redisOnly struct{ err error }

func (s redisOnly) PingRedis(context.Context, time.Duration) error { return s.err }

type withArchive struct {
	redisOnly
	dbErr error
}

func (s withArchive) PingDB(context.Context, time.Duration) error { return s.dbErr }

func decodeStatus(t *testing.T, rr *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var status map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &status))
	return status
}

func TestLive(t *testing.T) {
	rr := httptest.NewRecorder()
	health.Handler{}.Live(rr, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "ok", rr.Body.String())
}

func TestReadyRedisOnly(t *testing.T) {
	rr := httptest.NewRecorder()
	health.Handler{Checker: redisOnly{}}.Ready(rr, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, map[string]string{"redis": "ok"}, decodeStatus(t, rr))
}

func TestReadyWithArchive(t *testing.T) {
	handler := health.Handler{Checker: withArchive{}, DBTimeout: 50 * time.Millisecond, RedisTimeout: 50 * time.Millisecond}
	rr := httptest.NewRecorder()
	handler.Ready(rr, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, map[string]string{"redis": "ok", "db": "ok"}, decodeStatus(t, rr))
}

func TestReadyFailure(t *testing.T) {
	handler := health.Handler{Checker: withArchive{dbErr: errors.New("db down")}}
	rr := httptest.NewRecorder()
	handler.Ready(rr, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	require.Equal(t, "db down", decodeStatus(t, rr)["db"])

	rr = httptest.NewRecorder()
	health.Handler{Checker: redisOnly{err: errors.New("redis down")}}.Ready(rr, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestReadyWithoutChecker(t *testing.T) {
	rr := httptest.NewRecorder()
	health.Handler{}.Ready(rr, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
