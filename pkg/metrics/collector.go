// Package metrics exposes routing, cache and upstream metrics to Prometheus.
// A nil *Collector is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/pario-ai/tierwise/pkg/models"
)

// Collector owns a private registry and the tierwise metric families.
type Collector struct {
	registry *prometheus.Registry

	turnsTotal       *prometheus.CounterVec
	decisionsTotal   *prometheus.CounterVec
	cacheLookups     *prometheus.CounterVec
	substitutions    *prometheus.CounterVec
	tokensTotal      *prometheus.CounterVec
	costTotal        *prometheus.CounterVec
	turnDuration     *prometheus.HistogramVec
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
	cacheInvalidated prometheus.Counter

	logger *zap.Logger
}

// NewCollector registers every metric family under namespace.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	c := &Collector{
		registry: reg,
		logger:   logger.With(zap.String("component", "metrics")),
	}

	c.turnsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Conversational turns handled, by tier and outcome",
		},
		[]string{"tier", "outcome"},
	)

	c.decisionsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "routing_decisions_total",
			Help:      "Routing decisions, by tier and winning rule",
		},
		[]string{"tier", "rule"},
	)

	c.cacheLookups = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Response cache lookups, by result and content category",
		},
		[]string{"result", "category"},
	)

	c.substitutions = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_substitutions_total",
			Help:      "Turns served by an alternate model identifier",
		},
		[]string{"tier"},
	)

	c.tokensTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_total",
			Help:      "Upstream tokens, by tier and direction",
		},
		[]string{"tier", "direction"},
	)

	c.costTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cost_usd_total",
			Help:      "Upstream cost in USD, by tier",
		},
		[]string{"tier"},
	)

	c.turnDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_duration_seconds",
			Help:      "Turn duration in seconds, by tier and whether it was cached",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"tier", "cached"},
	)

	c.httpRequests = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests, by path and status",
		},
		[]string{"path", "status"},
	)

	c.httpDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"path"},
	)

	c.cacheInvalidated = f.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_invalidated_entries_total",
		Help:      "Cache entries removed by tag or tenant invalidation",
	})

	c.logger.Debug("metrics collector initialized", zap.String("namespace", namespace))
	return c
}

// Registry returns the collector's registry.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler serves the Prometheus exposition of the registry.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// RecordDecision counts a routing decision.
func (c *Collector) RecordDecision(d models.RoutingDecision) {
	if c == nil {
		return
	}
	c.decisionsTotal.WithLabelValues(d.Tier.String(), d.Rule).Inc()
}

// RecordCacheLookup counts a cache probe.
func (c *Collector) RecordCacheLookup(cat models.ContentCategory, hit bool) {
	if c == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	c.cacheLookups.WithLabelValues(result, cat.String()).Inc()
}

// RecordSubstitution counts a turn served by an alternate model.
func (c *Collector) RecordSubstitution(tier models.Tier) {
	if c == nil {
		return
	}
	c.substitutions.WithLabelValues(tier.String()).Inc()
}

// RecordTurn folds a ledger record into the turn, token and cost metrics.
func (c *Collector) RecordTurn(rec models.UsageRecord) {
	if c == nil {
		return
	}
	tier := rec.Tier.String()
	c.turnsTotal.WithLabelValues(tier, rec.Outcome).Inc()
	c.turnDuration.WithLabelValues(tier, strconv.FormatBool(rec.Cached)).Observe(rec.Duration.Seconds())
	if rec.Cached {
		return
	}
	c.tokensTotal.WithLabelValues(tier, "input").Add(float64(rec.InputTokens))
	c.tokensTotal.WithLabelValues(tier, "output").Add(float64(rec.OutputTokens))
	c.costTotal.WithLabelValues(tier).Add(rec.Cost)
}

// RecordInvalidation counts entries removed by an invalidation sweep.
func (c *Collector) RecordInvalidation(removed int) {
	if c == nil || removed <= 0 {
		return
	}
	c.cacheInvalidated.Add(float64(removed))
}

// RecordHTTP counts an HTTP request.
func (c *Collector) RecordHTTP(path string, status int, d time.Duration) {
	if c == nil {
		return
	}
	c.httpRequests.WithLabelValues(path, strconv.Itoa(status)).Inc()
	c.httpDuration.WithLabelValues(path).Observe(d.Seconds())
}
