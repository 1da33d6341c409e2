package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(subscriptionsExpired)
}

var subscriptionsExpired = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "subscriptions_expired_total",
		Help: "Active subscriptions flipped to expired by the sweep.",
	},
)

func AddSubscriptionsExpired(n int64) {
	subscriptionsExpired.Add(float64(n))
}
