package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	next:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if labels[lp.GetName()] != lp.GetValue() {
					continue next
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

func TestRunsTotalByLabel(t *testing.T) {
	labels := map[string]string{"outcome": "failed", "kind": "validation"}
	before := counterValue(t, "lichtfeld_runs_total", labels)
	RunsTotal.WithLabelValues("failed", "validation").Inc()
	assert.Equal(t, before+1, counterValue(t, "lichtfeld_runs_total", labels))
}

func TestHandlerServesMetrics(t *testing.T) {
	UploadBytes.Add(10)
	RunsInFlight.Set(0)

	srv := httptest.NewServer(Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "lichtfeld_upload_bytes_total")
	assert.Contains(t, string(body), "lichtfeld_runs_in_flight")
}
