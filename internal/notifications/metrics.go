package notifications

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "subtrack"

var (
	notificationQueueSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "queue_size",
			Help:      "Number of notification jobs by status",
		},
		[]string{"status"},
	)

	notificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "sent_total",
			Help:      "Total delivery attempts by outcome",
		},
		[]string{"mode", "status"},
	)

	notificationSendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "send_duration_seconds",
			Help:      "Time to deliver a reminder",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"mode"},
	)

	subscriptionsRenewed = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "schedule",
			Name:      "renewals_total",
			Help:      "Total subscriptions auto-advanced past their payment date",
		},
	)
)

// recordNotificationSent records a delivery attempt outcome.
func recordNotificationSent(mode, status string) {
	notificationsSent.WithLabelValues(mode, status).Inc()
}

// recordNotificationDuration records delivery duration.
func recordNotificationDuration(mode string, duration time.Duration) {
	notificationSendDuration.WithLabelValues(mode).Observe(duration.Seconds())
}

// RecordRenewals records the number of auto-advanced subscriptions.
func RecordRenewals(count int) {
	subscriptionsRenewed.Add(float64(count))
}

// RecordQueueStats updates queue depth metrics.
func RecordQueueStats(stats *QueueStats) {
	notificationQueueSize.WithLabelValues("pending").Set(float64(stats.Pending))
	notificationQueueSize.WithLabelValues("sent").Set(float64(stats.Sent))
	notificationQueueSize.WithLabelValues("failed").Set(float64(stats.Failed))
}
