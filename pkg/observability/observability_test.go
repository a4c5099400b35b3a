package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	logger.WithField("request_id", "req-1").
		WithError(errors.New("boom")).
		Info("request failed")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "request failed", entry["msg"])
	assert.Equal(t, "req-1", entry["request_id"])
	assert.Equal(t, "boom", entry["error"])
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(WarnLevel, &buf)

	logger.Info("suppressed")
	assert.Empty(t, buf.Bytes())

	logger.Warn("kept")
	assert.NotEmpty(t, buf.Bytes())
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, DebugLevel, ParseLogLevel("debug"))
	assert.Equal(t, ErrorLevel, ParseLogLevel("error"))
	assert.Equal(t, InfoLevel, ParseLogLevel("anything"))
}

func TestHealthChecker(t *testing.T) {
	t.Run("required failure is unhealthy", func(t *testing.T) {
		checker := NewHealthChecker("test")
		checker.AddCheck("database", func(context.Context) error {
			return errors.New("connection refused")
		})

		rec := httptest.NewRecorder()
		checker.Readiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

		var status HealthStatus
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
		assert.Equal(t, StatusUnhealthy, status.Status)
		assert.Equal(t, StatusUnhealthy, status.Dependencies["database"].Status)
	})

	t.Run("optional failure only degrades", func(t *testing.T) {
		checker := NewHealthChecker("test")
		checker.AddCheck("database", func(context.Context) error { return nil })
		checker.AddOptionalCheck("redis", func(context.Context) error {
			return errors.New("redis down")
		})

		rec := httptest.NewRecorder()
		checker.Readiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
		assert.Equal(t, http.StatusOK, rec.Code)

		var status HealthStatus
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
		assert.Equal(t, StatusDegraded, status.Status)
	})

	t.Run("liveness is always ok", func(t *testing.T) {
		checker := NewHealthChecker("test")
		rec := httptest.NewRecorder()
		checker.Liveness(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestMetricsHandler(t *testing.T) {
	metrics := NewMetrics()
	metrics.ObserveHTTPRequest(http.MethodGet, "/v1/orgs", http.StatusOK, 25*time.Millisecond)
	metrics.RecordAuthzDecision("traces", "create", true)
	metrics.RecordAuthzDecision("traces", "delete", false)
	metrics.RecordKeyVerification("ok")
	metrics.UpdateDBStats(DBStats{OpenConnections: 5, Idle: 2})

	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "traceloft_http_requests_total")
	assert.Contains(t, body, `traceloft_authz_decisions_total{action="create",decision="allowed",resource="traces"} 1`)
	assert.Contains(t, body, `traceloft_authz_decisions_total{action="delete",decision="denied",resource="traces"} 1`)
	assert.Contains(t, body, `traceloft_api_key_verifications_total{outcome="ok"} 1`)
	assert.Contains(t, body, "traceloft_db_connections_active 5")
	assert.Contains(t, body, "traceloft_db_connections_idle 2")
}

func TestShutdownManagerRun(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(ErrorLevel, &buf)

	t.Run("all steps run", func(t *testing.T) {
		sm := NewShutdownManager(logger, time.Second)
		ran := make([]bool, 2)
		sm.Register(func(context.Context) error { ran[0] = true; return nil })
		sm.Register(func(context.Context) error { ran[1] = true; return nil })

		require.NoError(t, sm.Run())
		assert.True(t, ran[0])
		assert.True(t, ran[1])
	})

	t.Run("failed step surfaces an error", func(t *testing.T) {
		sm := NewShutdownManager(logger, time.Second)
		sm.Register(func(context.Context) error { return errors.New("close failed") })

		require.Error(t, sm.Run())
	})
}
