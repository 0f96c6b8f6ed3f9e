package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pario-ai/tierwise/pkg/models"
)

func TestRecordTurn(t *testing.T) {
	c := NewCollector("tierwise", nil)
	c.RecordTurn(models.UsageRecord{
		Tier: models.TierCapable, Outcome: models.OutcomeOK,
		InputTokens: 100, OutputTokens: 40, Cost: 0.5, Duration: time.Second,
	})
	c.RecordTurn(models.UsageRecord{
		Tier: models.TierCapable, Outcome: models.OutcomeCacheHit, Cached: true,
		InputTokens: 100, OutputTokens: 40,
	})

	assert.Equal(t, 1.0, testutil.ToFloat64(c.turnsTotal.WithLabelValues("capable", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.turnsTotal.WithLabelValues("capable", "cache_hit")))
	assert.Equal(t, 100.0, testutil.ToFloat64(c.tokensTotal.WithLabelValues("capable", "input")), "cached turns add no tokens")
	assert.Equal(t, 0.5, testutil.ToFloat64(c.costTotal.WithLabelValues("capable")))
}

func TestRecordDecisionAndCache(t *testing.T) {
	c := NewCollector("tierwise", nil)
	c.RecordDecision(models.RoutingDecision{Tier: models.TierFast, Rule: "trivial_clarification"})
	c.RecordCacheLookup(models.CategoryRatioAnalysis, true)
	c.RecordCacheLookup(models.CategoryRatioAnalysis, false)
	c.RecordCacheLookup(models.CategoryRatioAnalysis, false)
	c.RecordSubstitution(models.TierCapable)
	c.RecordInvalidation(3)
	c.RecordInvalidation(0)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.decisionsTotal.WithLabelValues("fast", "trivial_clarification")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.cacheLookups.WithLabelValues("miss", "ratio_analysis")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.substitutions.WithLabelValues("capable")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.cacheInvalidated))
}

func TestHandler(t *testing.T) {
	c := NewCollector("tierwise", nil)
	c.RecordHTTP("/v1/turns", http.StatusOK, 20*time.Millisecond)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `tierwise_http_requests_total{path="/v1/turns",status="200"} 1`))
}

func TestNilCollector(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.RecordTurn(models.UsageRecord{})
		c.RecordDecision(models.RoutingDecision{})
		c.RecordCacheLookup(models.CategorySynthesis, true)
		c.RecordSubstitution(models.TierFast)
		c.RecordInvalidation(1)
		c.RecordHTTP("/", 200, time.Millisecond)
	})
	assert.Nil(t, c.Registry())

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
