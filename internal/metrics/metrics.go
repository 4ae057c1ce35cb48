// Package metrics exposes the gateway's ambient observability surface: a
// small set of Prometheus gauges/counters served on /metrics alongside the
// mandated /healthz (§4.11, generalized per SPEC_FULL.md). The teacher
// exposes similar counters via expvar/client_golang; this gateway sticks
// with client_golang since it's a direct teacher dependency.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the gateway's process-wide counters.
type Metrics struct {
	registry *prometheus.Registry

	sessionsLive    prometheus.Gauge
	sessionsTotal   prometheus.Counter
	messagesTotal   *prometheus.CounterVec
	commandsTotal   *prometheus.CounterVec
	rateLimitedTotal prometheus.Counter
}

// New registers and returns a fresh Metrics instance.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		sessionsLive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ircultra_sessions_live",
			Help: "Number of currently connected sessions.",
		}),
		sessionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ircultra_sessions_total",
			Help: "Total sessions accepted since start.",
		}),
		messagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ircultra_messages_total",
			Help: "Messages inserted, labeled by scope kind.",
		}, []string{"scope"}),
		commandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ircultra_commands_total",
			Help: "Slash commands executed, labeled by command name.",
		}, []string{"command"}),
		rateLimitedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ircultra_rate_limited_total",
			Help: "Inbound events refused by the rate limiter.",
		}),
	}

	reg.MustRegister(m.sessionsLive, m.sessionsTotal, m.messagesTotal, m.commandsTotal, m.rateLimitedTotal)
	return m
}

// SessionConnected implements hub.Metrics.
func (m *Metrics) SessionConnected() {
	m.sessionsLive.Inc()
	m.sessionsTotal.Inc()
}

// SessionDisconnected implements hub.Metrics.
func (m *Metrics) SessionDisconnected() {
	m.sessionsLive.Dec()
}

// MessageInserted records a message insertion labeled by scope kind.
func (m *Metrics) MessageInserted(scopeKind string) {
	m.messagesTotal.WithLabelValues(scopeKind).Inc()
}

// CommandExecuted records a slash command invocation.
func (m *Metrics) CommandExecuted(name string) {
	m.commandsTotal.WithLabelValues(name).Inc()
}

// RateLimited records a refusal by the rate limiter.
func (m *Metrics) RateLimited() {
	m.rateLimitedTotal.Inc()
}

// Handler returns the Prometheus text-exposition HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
