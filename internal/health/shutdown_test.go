package health_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/express-checkout/internal/health"
)

type countingChecker struct{ pings atomic.Int32 }

func (c *countingChecker) PingRedis(context.Context, time.Duration) error {
	c.pings.Add(1)
	return nil
}

func TestDrainingSkipsChecksButStaysLive(t *testing.T) {
	checker := &countingChecker{}
	handler := health.Handler{Checker: checker}
	t.Cleanup(func() { health.SetReady(true) })

	health.SetReady(true)
	rr := httptest.NewRecorder()
	handler.Ready(rr, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.EqualValues(t, 1, checker.pings.Load())

	health.SetReady(false)
	rr = httptest.NewRecorder()
	handler.Ready(rr, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	require.Contains(t, rr.Body.String(), "shutting down")
	require.EqualValues(t, 1, checker.pings.Load())

	rr = httptest.NewRecorder()
	handler.Live(rr, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	require.Equal(t, http.StatusOK, rr.Code)
}
