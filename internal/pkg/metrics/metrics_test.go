package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordAuthEvent_Outcome(t *testing.T) {
	m := New()
	m.RecordAuthEvent("login", nil)
	m.RecordAuthEvent("login", errors.New("bad password"))
	m.RecordAuthEvent("login", errors.New("bad password"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuthEvents.WithLabelValues("login", OutcomeSuccess)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.AuthEvents.WithLabelValues("login", OutcomeFailure)))
}

func TestNilMetrics_NoPanic(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordAuthEvent("login", nil)
		m.RecordNotificationFailure("verify_email")
		m.RecordHTTPRequest("GET", "/", 200)
	})
}

func TestHandler_ExposesCounters(t *testing.T) {
	m := New()
	m.RecordNotificationFailure("reset_password")
	m.RecordHTTPRequest(http.MethodPost, "/v1/auth/login", http.StatusOK)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `authd_notification_failures_total{template="reset_password"} 1`)
	assert.Contains(t, string(body), `authd_http_requests_total{method="POST",route="/v1/auth/login",status="200"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
