// Package observability provides Prometheus metrics instrumentation for the
// conversation engine and the reservation ledger.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	turnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentcore_turns_total",
			Help: "Total number of processed conversation turns",
		},
		[]string{"status"}, // status: success, error, parked
	)

	turnDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agentcore_turn_duration_seconds",
			Help:    "Conversation turn duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"intent"},
	)

	nodeExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentcore_node_executions_total",
			Help: "Total number of graph node executions",
		},
		[]string{"node", "status"}, // status: success, error
	)

	classificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentcore_classifications_total",
			Help: "Safety classification verdicts",
		},
		[]string{"label"}, // label: SAFE, UNSAFE
	)

	escalationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentcore_escalations_total",
			Help: "Escalations by lifecycle event",
		},
		[]string{"event"}, // event: opened, approved, rewritten, rejected
	)

	reservationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentcore_reservations_total",
			Help: "Stock reservation attempts",
		},
		[]string{"status"}, // status: reserved, insufficient_stock, released, expired
	)

	ordersConfirmedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agentcore_orders_confirmed_total",
			Help: "Successfully confirmed orders",
		},
	)

	orderValueTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agentcore_order_value_total",
			Help: "Cumulative value of confirmed orders",
		},
	)
)

// RecordTurn records the outcome and duration of one conversation turn.
func RecordTurn(status, intent string, elapsed time.Duration) {
	turnsTotal.WithLabelValues(status).Inc()
	turnDurationSeconds.WithLabelValues(intent).Observe(elapsed.Seconds())
}

// RecordNodeExecution records one graph node execution.
func RecordNodeExecution(node, status string) {
	nodeExecutionsTotal.WithLabelValues(node, status).Inc()
}

// RecordClassification records a safety verdict.
func RecordClassification(label string) {
	classificationsTotal.WithLabelValues(label).Inc()
}

// RecordEscalation records an escalation lifecycle event.
func RecordEscalation(event string) {
	escalationsTotal.WithLabelValues(event).Inc()
}

// RecordReservation records a reservation ledger event.
func RecordReservation(status string) {
	reservationsTotal.WithLabelValues(status).Inc()
}

// RecordOrderConfirmed records a confirmed order and its value.
func RecordOrderConfirmed(total float64) {
	ordersConfirmedTotal.Inc()
	orderValueTotal.Add(total)
}
