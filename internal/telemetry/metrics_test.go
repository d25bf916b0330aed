package telemetry

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/firescore/internal/metric"
)

func TestMetrics_Observe(t *testing.T) {
	m := NewMetrics()

	m.Observe(&metric.Result{Score: 2.5, Rows: 4, Valid: 2, Missing: 1, Invalid: 1}, 10*time.Millisecond)
	m.Observe(&metric.Result{Score: 10, Rows: 1, Missing: 1}, time.Millisecond)
	m.ObserveFailure()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Runs.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Runs.WithLabelValues("error")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Rows.WithLabelValues("valid")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Rows.WithLabelValues("missing")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Rows.WithLabelValues("invalid")))

	families, err := m.Registry().Gather()
	require.NoError(t, err)

	var score *dto.MetricFamily
	for _, mf := range families {
		if mf.GetName() == "firescore_score" {
			score = mf
		}
	}
	require.NotNil(t, score)
	hist := score.GetMetric()[0].GetHistogram()
	assert.Equal(t, uint64(2), hist.GetSampleCount())
	assert.Equal(t, 12.5, hist.GetSampleSum())
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics()
	m.ObserveFailure()

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `firescore_runs_total{status="error"} 1`)
}

func TestMetrics_WriteTextfile(t *testing.T) {
	m := NewMetrics()
	m.Observe(&metric.Result{Score: 1, Rows: 1, Valid: 1}, time.Millisecond)

	path := filepath.Join(t.TempDir(), "firescore.prom")
	require.NoError(t, m.WriteTextfile(path))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "firescore_score_count 1")
}
