package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestObserveRequestCountsErrors(t *testing.T) {
	m := New()
	m.ObserveRequest(http.MethodPut, "/import/pipelines", http.StatusUnprocessableEntity, 10*time.Millisecond)
	m.ObserveRequest(http.MethodGet, "/", http.StatusOK, time.Millisecond)

	require.Equal(t, 1.0, testutil.ToFloat64(m.requestTotal.WithLabelValues(http.MethodPut, "/import/pipelines", "4xx")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.requestErrors.WithLabelValues(http.MethodPut, "/import/pipelines", "422")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.requestTotal.WithLabelValues(http.MethodGet, "/", "2xx")))
}

func TestObserveImportAndProbe(t *testing.T) {
	m := New()
	m.ObserveImport("pipelines", time.Second, nil)
	m.ObserveImport("pipelines", time.Second, errors.New("boom"))
	m.AddEntities("remote_workflow", "created", 3)
	m.AddEntities("remote_workflow", "patched", 0)
	m.ObserveProbe("https://nf-co.re", -1, false)

	require.Equal(t, 1.0, testutil.ToFloat64(m.importsTotal.WithLabelValues("pipelines", "ok")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.importsTotal.WithLabelValues("pipelines", "error")))
	require.Equal(t, 3.0, testutil.ToFloat64(m.importedEntities.WithLabelValues("remote_workflow", "created")))
	require.Equal(t, -1.0, testutil.ToFloat64(m.probeLastStatus.WithLabelValues("https://nf-co.re")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.probesTotal.WithLabelValues("https://nf-co.re", "false")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveImport("pipelines", time.Second, nil)
	m.ObserveProbe("x", 200, true)
	m.ObserveRequest(http.MethodGet, "/", 200, time.Millisecond)
}

func TestHandlerExposesNamespace(t *testing.T) {
	m := New()
	m.ObserveProbe("https://nf-co.re", 200, true)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.Contains(rec.Body.String(), "nfstats_probe_last_status"))
}
