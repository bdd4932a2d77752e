package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "greenlife"

// Metrics Prometheus collectors shared by the dashboard and the bridge.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	snapshots          *prometheus.CounterVec
	subscriptionErrors *prometheus.CounterVec
	fanCommands        *prometheus.CounterVec
	bridgeMessages     *prometheus.CounterVec
	activeSessions     prometheus.Gauge
	timing             *prometheus.SummaryVec

	gatherer prometheus.Gatherer
}

// New creates the collectors and registers them with reg.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		snapshots: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "snapshots_total",
				Help:      "Document snapshots applied by dashboard sessions.",
			},
			[]string{"document"},
		),
		subscriptionErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "subscription_errors_total",
				Help:      "Subscription failures and undecodable snapshots.",
			},
			[]string{"document"},
		),
		fanCommands: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fan_commands_total",
				Help:      "Fan toggle commands by outcome.",
			},
			[]string{"outcome"},
		),
		bridgeMessages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bridge_messages_total",
				Help:      "Messages relayed by the device bridge.",
			},
			[]string{"direction"},
		),
		activeSessions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "dashboard_sessions",
				Help:      "Open dashboard sessions.",
			},
		),
		timing: prometheus.NewSummaryVec(
			prometheus.SummaryOpts{
				Namespace: namespace,
				Name:      "operation_seconds",
				Help:      "Remote operation latency.",
			},
			[]string{"operation"},
		),
		gatherer: reg,
	}

	reg.MustRegister(
		m.snapshots,
		m.subscriptionErrors,
		m.fanCommands,
		m.bridgeMessages,
		m.activeSessions,
		m.timing,
	)
	return m
}

func (m *Metrics) Snapshot(document string) {
	if m == nil {
		return
	}
	m.snapshots.WithLabelValues(document).Inc()
}

func (m *Metrics) SubscriptionError(document string) {
	if m == nil {
		return
	}
	m.subscriptionErrors.WithLabelValues(document).Inc()
}

// FanCommand counts one toggle; outcome is "ok" or "error".
func (m *Metrics) FanCommand(outcome string) {
	if m == nil {
		return
	}
	m.fanCommands.WithLabelValues(outcome).Inc()
}

// BridgeMessage direction is "uplink" (device to store) or "downlink".
func (m *Metrics) BridgeMessage(direction string) {
	if m == nil {
		return
	}
	m.bridgeMessages.WithLabelValues(direction).Inc()
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.activeSessions.Inc()
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.activeSessions.Dec()
}

// Timing observes the time elapsed since start.
func (m *Metrics) Timing(start time.Time, operation string) {
	if m == nil {
		return
	}
	m.timing.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
