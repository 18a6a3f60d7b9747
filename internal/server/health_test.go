package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/inboxprune/internal/gmail/gmailtest"
)

func getReadiness(t *testing.T, h *HealthChecker) (int, HealthResponse) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ReadinessHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	var resp HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return rec.Code, resp
}

func TestReadinessRunsChecks(t *testing.T) {
	sc := NewServerContext(context.Background(), Options{})
	h := NewHealthChecker(sc)

	sc.AddReadinessCheck("audit", func(context.Context) error { return nil })
	code, resp := getReadiness(t, h)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", resp.Checks["audit"])

	sc.AddReadinessCheck("tickets", func(context.Context) error { return errors.New("redis down") })
	code, resp = getReadiness(t, h)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "redis down", resp.Checks["tickets"])
}

func TestReadinessAfterShutdown(t *testing.T) {
	sc := NewServerContext(context.Background(), Options{})
	h := NewHealthChecker(sc)
	require.NoError(t, sc.Shutdown())

	code, resp := getReadiness(t, h)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, healthStatusShuttingDown, resp.Checks["shutdown"])
}

func TestReadinessNotReady(t *testing.T) {
	h := NewHealthChecker(nil)
	h.SetReady(false)

	code, resp := getReadiness(t, h)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, healthStatusNotReady, resp.Status)
}

func TestLiveness(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHealthChecker(nil).LivenessHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDetailedHealth(t *testing.T) {
	st := testStack()
	sc := NewServerContext(context.Background(), Options{})
	sc.SetServiceForAccount("default", st.NewService("default", gmailtest.New(0), true))
	sc.AddReadinessCheck("audit", func(context.Context) error { return nil })
	h := NewHealthChecker(sc)

	rec := httptest.NewRecorder()
	h.DetailedHealthHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz/detailed", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var resp DetailedHealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, healthStatusOK, resp.Status)
	assert.Equal(t, 1, resp.Accounts)
	assert.Equal(t, healthStatusOK, resp.Checks["audit"])

	require.NoError(t, sc.Shutdown())
	rec = httptest.NewRecorder()
	h.DetailedHealthHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz/detailed", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, healthStatusShuttingDown, resp.Status)
}
