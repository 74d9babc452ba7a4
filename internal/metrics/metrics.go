// Package metrics registers the Prometheus instruments for the session
// runtime. All methods are nil-receiver safe so tests can run without a
// metrics registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the reveal runtime.
type Metrics struct {
	VotesTotal        *prometheus.CounterVec
	ChatTotal         *prometheus.CounterVec
	BroadcastsTotal   prometheus.Counter
	RevealsTotal      prometheus.Counter
	CacheErrorsTotal  *prometheus.CounterVec
	BroadcastDuration prometheus.Histogram
	ActiveSessions    prometheus.Gauge
}

// New creates and registers all metrics on the default registry.
func New() *Metrics {
	return &Metrics{
		VotesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reveal_votes_total",
				Help: "Vote admissions by outcome",
			},
			[]string{"outcome"},
		),
		ChatTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reveal_chat_messages_total",
				Help: "Chat submissions by result",
			},
			[]string{"result"}, // accepted, rejected
		),
		BroadcastsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "reveal_broadcasts_total",
				Help: "Aggregate vote count frames emitted",
			},
		),
		RevealsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "reveal_reveals_total",
				Help: "Sessions finalized",
			},
		),
		CacheErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reveal_cache_errors_total",
				Help: "Transient cache store failures by component",
			},
			[]string{"component"},
		),
		BroadcastDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "reveal_broadcast_tick_seconds",
				Help:    "Duration of broadcast scheduler ticks",
				Buckets: prometheus.DefBuckets,
			},
		),
		ActiveSessions: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "reveal_active_sessions",
				Help: "Sessions currently tracked by the registry",
			},
		),
	}
}

func (m *Metrics) IncVote(outcome string) {
	if m == nil {
		return
	}
	m.VotesTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncChat(result string) {
	if m == nil {
		return
	}
	m.ChatTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) IncBroadcast() {
	if m == nil {
		return
	}
	m.BroadcastsTotal.Inc()
}

func (m *Metrics) IncReveal() {
	if m == nil {
		return
	}
	m.RevealsTotal.Inc()
}

func (m *Metrics) IncCacheError(component string) {
	if m == nil {
		return
	}
	m.CacheErrorsTotal.WithLabelValues(component).Inc()
}

func (m *Metrics) ObserveBroadcastTick(seconds float64) {
	if m == nil {
		return
	}
	m.BroadcastDuration.Observe(seconds)
}

func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Set(float64(n))
}
