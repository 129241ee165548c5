package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveEvaluation(t *testing.T) {
	m := newMetrics(prometheus.NewRegistry(), Config{Environment: "test"})

	m.ObserveEvaluation("local", true, 10*time.Millisecond)
	m.ObserveEvaluation("local", true, 10*time.Millisecond)
	m.ObserveEvaluation("remote", false, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.evaluations.WithLabelValues("local", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.evaluations.WithLabelValues("remote", "false")))
}

func TestObservePayrollRun(t *testing.T) {
	m := newMetrics(prometheus.NewRegistry(), Config{})

	m.ObservePayrollRun(RunCompleted, 7, 1, time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.payrollRuns.WithLabelValues(RunCompleted)))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.payrollAdvisors.WithLabelValues(RunCompleted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.payrollAdvisors.WithLabelValues(RunFailed)))
}

func TestNilMetricsAreNoOps(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveEvaluation("local", false, time.Millisecond)
		m.IncRemoteFallback()
		m.IncEvaluationError("remote")
		m.AddWarning("unknown_item")
		m.ObservePayrollRun(RunFailed, 0, 0, 0)
	})
}

func TestHandler_ExposesSeries(t *testing.T) {
	m := New(Config{ServiceName: "commission-engine", Environment: "test"})
	m.IncRemoteFallback()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "commission_remote_fallbacks_total"))
}
