package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetrics_CountAndServe(t *testing.T) {
	m := New(nil)
	m.NodeResponses.WithLabelValues("n1", OutcomeOK).Inc()
	m.NodeResponses.WithLabelValues("n1", OutcomeTimeout).Inc()
	m.NodeResponses.WithLabelValues("n1", OutcomeTimeout).Inc()
	m.DecodedBytes.Add(128)

	require.Equal(t, 2.0, testutil.ToFloat64(m.NodeResponses.WithLabelValues("n1", OutcomeTimeout)))
	require.Equal(t, 128.0, testutil.ToFloat64(m.DecodedBytes))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `novagather_node_responses_total{node="n1",outcome="timeout"} 2`)
}

func TestMetrics_SeparateRegistries(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	require.Panics(t, func() { New(reg) })
	require.NotPanics(t, func() { New(nil) })
}
