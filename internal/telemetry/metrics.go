package telemetry

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "hearth"

// Metrics collects runtime metrics. Counters are mirrored into a private
// Prometheus registry served on /metrics and into atomic fields read by
// GetSummary.
type Metrics struct {
	mu sync.RWMutex

	// Counters
	TurnsCompleted int64
	TurnsFailed    int64
	BackendCalls   int64
	Failovers      int64
	Recoveries     int64
	FactsCaptured  int64
	TierFailures   int64

	// Gauges
	Degraded int64

	turnDurations []time.Duration
	apiLatencies  []time.Duration

	registry        *prometheus.Registry
	promTurns       *prometheus.CounterVec
	promBackend     *prometheus.CounterVec
	promTransitions *prometheus.CounterVec
	promDegraded    prometheus.Gauge
	promRetrieved   *prometheus.CounterVec
	promTierFailure *prometheus.CounterVec
	promFacts       prometheus.Counter
	promTurnLatency prometheus.Histogram
	promAPILatency  *prometheus.HistogramVec
	promTokens      prometheus.Histogram

	// Exporter (optional)
	exporter MetricsExporter
}

// NewMetrics creates a new metrics collector with its own registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		turnDurations: make([]time.Duration, 0, 1000),
		apiLatencies:  make([]time.Duration, 0, 1000),
		registry:      reg,
		promTurns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Conversation turns by outcome.",
		}, []string{"outcome"}),
		promBackend: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_calls_total",
			Help:      "Language-model backend calls by backend and outcome.",
		}, []string{"backend", "outcome"}),
		promTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatcher_transitions_total",
			Help:      "Dispatcher state transitions.",
		}, []string{"to"}),
		promDegraded: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dispatcher_degraded",
			Help:      "1 while the dispatcher serves from the fallback backend.",
		}),
		promRetrieved: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "context_items_total",
			Help:      "Memory items placed into assembled contexts by tier.",
		}, []string{"tier"}),
		promTierFailure: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memory_tier_failures_total",
			Help:      "Memory tier lookups that degraded, by tier and error code.",
		}, []string{"tier", "code"}),
		promFacts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "facts_captured_total",
			Help:      "Facts captured or added explicitly.",
		}),
		promTurnLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_duration_seconds",
			Help:      "End-to-end turn latency.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		promAPILatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_latency_seconds",
			Help:      "Backend call latency.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"backend"}),
		promTokens: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "context_tokens",
			Help:      "Estimated tokens per assembled context.",
			Buckets:   prometheus.LinearBuckets(250, 250, 16),
		}),
	}
}

// Registry exposes the Prometheus registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// IncTurnsCompleted records a turn that produced a reply.
func (m *Metrics) IncTurnsCompleted(d time.Duration, contextTokens int) {
	atomic.AddInt64(&m.TurnsCompleted, 1)
	m.promTurns.WithLabelValues("ok").Inc()
	m.promTurnLatency.Observe(d.Seconds())
	m.promTokens.Observe(float64(contextTokens))

	m.mu.Lock()
	defer m.mu.Unlock()
	m.turnDurations = append(m.turnDurations, d)
}

// IncTurnsFailed records a turn that ended without a reply.
func (m *Metrics) IncTurnsFailed() {
	atomic.AddInt64(&m.TurnsFailed, 1)
	m.promTurns.WithLabelValues("failed").Inc()
}

// RecordBackendCall records one backend attempt and its latency.
func (m *Metrics) RecordBackendCall(backend string, ok bool, d time.Duration) {
	atomic.AddInt64(&m.BackendCalls, 1)
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	m.promBackend.WithLabelValues(backend, outcome).Inc()
	m.promAPILatency.WithLabelValues(backend).Observe(d.Seconds())

	m.mu.Lock()
	defer m.mu.Unlock()
	m.apiLatencies = append(m.apiLatencies, d)
}

// SetDegraded records a dispatcher transition.
func (m *Metrics) SetDegraded(degraded bool) {
	if degraded {
		atomic.AddInt64(&m.Failovers, 1)
		atomic.StoreInt64(&m.Degraded, 1)
		m.promTransitions.WithLabelValues("degraded").Inc()
		m.promDegraded.Set(1)
		return
	}
	atomic.AddInt64(&m.Recoveries, 1)
	atomic.StoreInt64(&m.Degraded, 0)
	m.promTransitions.WithLabelValues("primary_active").Inc()
	m.promDegraded.Set(0)
}

// AddContextItems counts memory items placed into a context for a tier.
func (m *Metrics) AddContextItems(tier string, n int) {
	if n <= 0 {
		return
	}
	m.promRetrieved.WithLabelValues(tier).Add(float64(n))
}

// IncTierFailure records a degraded memory tier.
func (m *Metrics) IncTierFailure(tier, code string) {
	atomic.AddInt64(&m.TierFailures, 1)
	m.promTierFailure.WithLabelValues(tier, code).Inc()
}

// IncFactsCaptured counts a stored fact.
func (m *Metrics) IncFactsCaptured() {
	atomic.AddInt64(&m.FactsCaptured, 1)
	m.promFacts.Inc()
}

// GetSummary returns a summary of collected metrics
func (m *Metrics) GetSummary() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	summary := map[string]interface{}{
		"turns_completed": atomic.LoadInt64(&m.TurnsCompleted),
		"turns_failed":    atomic.LoadInt64(&m.TurnsFailed),
		"backend_calls":   atomic.LoadInt64(&m.BackendCalls),
		"failovers":       atomic.LoadInt64(&m.Failovers),
		"recoveries":      atomic.LoadInt64(&m.Recoveries),
		"facts_captured":  atomic.LoadInt64(&m.FactsCaptured),
		"tier_failures":   atomic.LoadInt64(&m.TierFailures),
		"degraded":        atomic.LoadInt64(&m.Degraded) == 1,
	}

	if len(m.turnDurations) > 0 {
		var total time.Duration
		for _, d := range m.turnDurations {
			total += d
		}
		summary["avg_turn_duration_ms"] = total.Milliseconds() / int64(len(m.turnDurations))
	}

	if len(m.apiLatencies) > 0 {
		var total time.Duration
		for _, d := range m.apiLatencies {
			total += d
		}
		summary["avg_api_latency_ms"] = total.Milliseconds() / int64(len(m.apiLatencies))
	}

	return summary
}

// SetExporter attaches a metrics exporter.
func (m *Metrics) SetExporter(e MetricsExporter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exporter = e
}

// Flush exports the current metrics snapshot with the given event label.
func (m *Metrics) Flush(event string, labels map[string]string) {
	m.mu.RLock()
	exporter := m.exporter
	m.mu.RUnlock()

	if exporter == nil {
		return
	}

	snapshot := MetricsSnapshot{
		Timestamp: time.Now(),
		Event:     event,
		Metrics:   m.GetSummary(),
		Labels:    labels,
	}
	// Best-effort export.
	_ = exporter.Export(snapshot)
}
