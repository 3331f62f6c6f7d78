package metrics

import (
	"net/http/httptest"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c interface {
	Write(*dto.Metric) error
}) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestRegistryRecordsValidationOutcomes(t *testing.T) {
	r := NewRegistry()

	r.ObserveValidation("player", "success", 25*time.Millisecond)
	r.ObserveValidation("player", "success", 40*time.Millisecond)
	r.ObserveValidation("game", "timeout", 8*time.Second)

	c, err := r.ValidationsTotal.GetMetricWithLabelValues("player", "success")
	require.NoError(t, err)
	assert.Equal(t, 2.0, counterValue(t, c))

	c, err = r.ValidationsTotal.GetMetricWithLabelValues("game", "timeout")
	require.NoError(t, err)
	assert.Equal(t, 1.0, counterValue(t, c))
}

func TestRegistryRecordsConflictsAndFallbacks(t *testing.T) {
	r := NewRegistry()

	r.RecordConflict("median")
	r.RecordConflict("median")
	r.RecordConflict("majority_vote")
	r.RecordFallback("validation_timeout")

	c, err := r.ConflictsResolved.GetMetricWithLabelValues("median")
	require.NoError(t, err)
	assert.Equal(t, 2.0, counterValue(t, c))

	c, err = r.FallbacksTotal.GetMetricWithLabelValues("validation_timeout")
	require.NoError(t, err)
	assert.Equal(t, 1.0, counterValue(t, c))
}

func TestRegistriesAreIndependent(t *testing.T) {
	// private registries must not collide on construction or cross-count
	a := NewRegistry()
	b := NewRegistry()

	a.RecordCacheHit("report")

	c, err := b.CacheHits.GetMetricWithLabelValues("report")
	require.NoError(t, err)
	assert.Equal(t, 0.0, counterValue(t, c))
}

func TestHandlerServesMetrics(t *testing.T) {
	r := NewRegistry()
	r.ObserveValidation("player", "success", time.Millisecond)
	r.RateLimited.Inc()

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "crosscheck_validations_total")
	assert.Contains(t, body, "crosscheck_rate_limited_total 1")
}
