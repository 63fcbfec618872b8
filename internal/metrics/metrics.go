package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	intentCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "citysoccer",
			Name:      "payment_intent_created_total",
			Help:      "Count of payment intents created by outcome.",
		},
		[]string{"outcome"},
	)

	webhookProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "citysoccer",
			Name:      "webhook_processed_total",
			Help:      "Count of provider webhooks by reconcile result.",
		},
		[]string{"result"},
	)

	reservationCommitted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "citysoccer",
			Name:      "reservation_committed_total",
			Help:      "Count of reservations committed from approved payments.",
		},
	)

	slotTakenConflict = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "citysoccer",
			Name:      "slot_taken_conflict_total",
			Help:      "Count of approved payments that lost the slot race.",
		},
	)

	notifierSend = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "citysoccer",
			Name:      "notifier_send_total",
			Help:      "Count of notification sends by channel and status.",
		},
		[]string{"channel", "status"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "citysoccer",
			Name:      "http_requests_total",
			Help:      "Count of HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			intentCreated,
			webhookProcessed,
			reservationCommitted,
			slotTakenConflict,
			notifierSend,
			httpRequests,
		)
	})
}

func IncIntentCreated(outcome string) {
	intentCreated.WithLabelValues(outcome).Inc()
}

func IncWebhookProcessed(result string) {
	webhookProcessed.WithLabelValues(result).Inc()
}

func IncReservationCommitted() {
	reservationCommitted.Inc()
}

func IncSlotTakenConflict() {
	slotTakenConflict.Inc()
}

func IncNotifierSend(channel, status string) {
	notifierSend.WithLabelValues(channel, status).Inc()
}

func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}
