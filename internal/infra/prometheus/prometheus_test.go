package prometheus

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sifan077/quotalink/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewServerDefaultPort(t *testing.T) {
	assert.Equal(t, ":9090", NewServer(config.PrometheusConfig{}).Addr)
	assert.Equal(t, ":9100", NewServer(config.PrometheusConfig{Port: 9100}).Addr)
}

func TestMetricsEndpointExposesCounters(t *testing.T) {
	before := testutil.ToFloat64(ShortenTotal.WithLabelValues(OutcomeCreated))
	ShortenTotal.WithLabelValues(OutcomeCreated).Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(ShortenTotal.WithLabelValues(OutcomeCreated)))

	rec := httptest.NewRecorder()
	NewServer(config.PrometheusConfig{}).Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `quotalink_shorten_total{outcome="created"}`)
}
