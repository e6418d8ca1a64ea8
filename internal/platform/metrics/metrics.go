// Package metrics defines the Prometheus instruments for quote catalogue operations.
//
// Instruments are registered on an injected prometheus.Registerer so tests can
// use an isolated registry. A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "quotevault"

// Metrics holds all instruments.
type Metrics struct {
	// DuplicateChecks counts duplicate detector decisions.
	// Labels: rule (none, exact, similar_text_same_author, ...)
	DuplicateChecks *prometheus.CounterVec

	// DuplicateCandidates observes how many stored quotes each check compared against.
	DuplicateCandidates prometheus.Histogram

	// StoreRetries counts retried store operations.
	// Labels: operation, reason (conflict, throttled)
	StoreRetries *prometheus.CounterVec

	// StoreThrottled counts operations that exhausted their retries.
	// Labels: operation
	StoreThrottled *prometheus.CounterVec

	// CascadeQuotes counts per-quote steps of tag cascades.
	// Labels: operation (rename, delete), outcome (updated, skipped, failed)
	CascadeQuotes *prometheus.CounterVec

	// PipelineEvents counts change events by outcome.
	// Labels: kind, outcome (acked, retried, dead_lettered)
	PipelineEvents *prometheus.CounterVec

	// PipelineBacklog is the number of outbox events seen on the last poll.
	PipelineBacklog prometheus.Gauge

	// TagListCache counts listTags snapshot lookups.
	// Labels: result (hit, miss)
	TagListCache *prometheus.CounterVec
}

// New creates and registers all instruments on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		DuplicateChecks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "duplicate",
			Name:      "checks_total",
			Help:      "Duplicate detector decisions by matched rule.",
		}, []string{"rule"}),
		DuplicateCandidates: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "duplicate",
			Name:      "candidates",
			Help:      "Stored quotes compared per duplicate check.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 7),
		}),
		StoreRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "retries_total",
			Help:      "Store operations retried after a conflict or throttle.",
		}, []string{"operation", "reason"}),
		StoreThrottled: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "throttled_total",
			Help:      "Store operations that exhausted their retries.",
		}, []string{"operation"}),
		CascadeQuotes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tags",
			Name:      "cascade_quotes_total",
			Help:      "Per-quote steps executed by tag rename and delete cascades.",
		}, []string{"operation", "outcome"}),
		PipelineEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "events_total",
			Help:      "Change events processed by the aggregation pipeline.",
		}, []string{"kind", "outcome"}),
		PipelineBacklog: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "backlog",
			Help:      "Outbox events observed on the last poll.",
		}),
		TagListCache: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tags",
			Name:      "list_cache_total",
			Help:      "listTags snapshot cache lookups.",
		}, []string{"result"}),
	}
}

// ObserveDuplicateCheck records a detector decision.
func (m *Metrics) ObserveDuplicateCheck(rule string, candidates int) {
	if m == nil {
		return
	}

	m.DuplicateChecks.WithLabelValues(rule).Inc()
	m.DuplicateCandidates.Observe(float64(candidates))
}

// StoreRetry records one retry of a store operation.
func (m *Metrics) StoreRetry(operation, reason string) {
	if m == nil {
		return
	}

	m.StoreRetries.WithLabelValues(operation, reason).Inc()
}

// StoreGaveUp records an operation surfaced as throttled.
func (m *Metrics) StoreGaveUp(operation string) {
	if m == nil {
		return
	}

	m.StoreThrottled.WithLabelValues(operation).Inc()
}

// CascadeStep records one per-quote cascade step.
func (m *Metrics) CascadeStep(operation, outcome string) {
	if m == nil {
		return
	}

	m.CascadeQuotes.WithLabelValues(operation, outcome).Inc()
}

// PipelineEvent records the outcome of processing one change event.
func (m *Metrics) PipelineEvent(kind, outcome string) {
	if m == nil {
		return
	}

	m.PipelineEvents.WithLabelValues(kind, outcome).Inc()
}

// SetBacklog records the outbox size seen by the dispatcher.
func (m *Metrics) SetBacklog(n int) {
	if m == nil {
		return
	}

	m.PipelineBacklog.Set(float64(n))
}

// TagListLookup records a listTags cache hit or miss.
func (m *Metrics) TagListLookup(hit bool) {
	if m == nil {
		return
	}

	result := "miss"
	if hit {
		result = "hit"
	}

	m.TagListCache.WithLabelValues(result).Inc()
}
