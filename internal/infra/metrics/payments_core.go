package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		ordersTotal,
		callbacksTotal,
		activationsTotal,
	)
}

var (
	ordersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orders_total",
			Help: "Order transitions by resulting status (pending/paid/failed/cancelled/reversed).",
		},
		[]string{"status"},
	)

	callbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_callbacks_total",
			Help: "Gateway callbacks by intake result (ok/missing_fields/signature_mismatch/invalid_envelope/error).",
		},
		[]string{"result"},
	)

	activationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subscription_activations_total",
			Help: "Subscriptions created or extended by a paid order.",
		},
		[]string{"kind"}, // create | extend
	)
)

func IncOrder(status string) {
	ordersTotal.WithLabelValues(norm(status)).Inc()
}

func IncCallback(result string) {
	callbacksTotal.WithLabelValues(norm(result)).Inc()
}

func IncActivation(kind string) {
	activationsTotal.WithLabelValues(norm(kind)).Inc()
}
