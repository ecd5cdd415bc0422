package push

import (
	"time"

	"github.com/bissquit/pushgarden/internal/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pushDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "push",
			Name:      "deliveries_total",
			Help:      "Push deliveries by dispatch scope and result",
		},
		[]string{"scope", "result"},
	)

	pushSendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metrics.Namespace,
			Subsystem: "push",
			Name:      "send_duration_seconds",
			Help:      "Time to deliver one push message",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"scope"},
	)

	pushPruned = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "push",
			Name:      "pruned_total",
			Help:      "Subscriptions deactivated after the push service reported them gone",
		},
	)

	pushBroadcastLast = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: metrics.Namespace,
			Subsystem: "push",
			Name:      "broadcast_last",
			Help:      "Outcome of the most recent broadcast (delivered and total recipients)",
		},
		[]string{"kind"},
	)
)

// Dispatch scopes.
const (
	scopeUser      = "user"
	scopeBroadcast = "broadcast"
)

// Delivery results.
const (
	resultSuccess = "success"
	resultGone    = "gone"
	resultFailed  = "failed"
)

func recordDelivery(scope, result string, duration time.Duration) {
	pushDeliveries.WithLabelValues(scope, result).Inc()
	pushSendDuration.WithLabelValues(scope).Observe(duration.Seconds())
}

func recordPruned() {
	pushPruned.Inc()
}

func recordBroadcast(delivered, total int) {
	pushBroadcastLast.WithLabelValues("delivered").Set(float64(delivered))
	pushBroadcastLast.WithLabelValues("total").Set(float64(total))
}
