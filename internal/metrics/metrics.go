package metrics

import "github.com/prometheus/client_golang/prometheus"

// Prometheus metrics for the sync clients.
var (
	NotificationRefreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_notification_refresh_total",
			Help: "Notification list refreshes by outcome",
		},
		[]string{"outcome"},
	)

	PushEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_push_events_total",
			Help: "Push channel events received by type",
		},
		[]string{"type"},
	)

	DuplicatesDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_duplicates_dropped_total",
			Help: "Items ignored because their identifier was already present",
		},
		[]string{"list"},
	)

	PushFallbackTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "storefront_push_fallback_total",
			Help: "Times the notification client fell back to polling",
		},
	)

	PaymentPollsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_payment_polls_total",
			Help: "Payment status polls by outcome",
		},
		[]string{"outcome"},
	)

	PaymentTerminalTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_payment_terminal_total",
			Help: "Payments observed reaching a terminal status",
		},
		[]string{"status"},
	)

	ChatPollsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_chat_polls_total",
			Help: "Chat message list polls by outcome",
		},
		[]string{"outcome"},
	)

	ChatSendTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_chat_send_total",
			Help: "Chat sends by message type and outcome",
		},
		[]string{"type", "outcome"},
	)

	HubConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "storefront_sandbox_ws_connections",
			Help: "Open push connections on the sandbox backend",
		},
	)

	PaymentsSettledTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "storefront_sandbox_payments_settled_total",
			Help: "Pending payments moved to a final status by the settler",
		},
	)

	AttachmentEncodeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "storefront_attachment_encode_duration_seconds",
			Help:    "Time spent preparing chat attachments",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// Register registers all metrics with reg.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(NotificationRefreshTotal)
	reg.MustRegister(PushEventsTotal)
	reg.MustRegister(DuplicatesDroppedTotal)
	reg.MustRegister(PushFallbackTotal)
	reg.MustRegister(PaymentPollsTotal)
	reg.MustRegister(PaymentTerminalTotal)
	reg.MustRegister(ChatPollsTotal)
	reg.MustRegister(ChatSendTotal)
	reg.MustRegister(AttachmentEncodeDuration)
	reg.MustRegister(HubConnections)
	reg.MustRegister(PaymentsSettledTotal)
}

func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
