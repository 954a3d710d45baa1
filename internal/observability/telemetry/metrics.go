package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Business metrics
	WebhooksReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ivy_webhooks_received_total",
		Help: "Inbound webhook deliveries by outcome or event type",
	}, []string{"type"})

	SessionsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ivy_sessions_started_total",
		Help: "Checkout sessions opened at the provider, by mode",
	}, []string{"mode"})

	OrdersMaterialized = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ivy_orders_materialized_total",
		Help: "Orders created from pending carts on qualifying webhooks",
	})

	TransactionTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ivy_transaction_transitions_total",
		Help: "Transaction state transitions applied, by provider status",
	}, []string{"status"})

	// Infrastructure metrics
	LockTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ivy_lock_timeouts_total",
		Help: "Named lock acquisitions that timed out",
	})

	GatewayRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ivy_gateway_request_duration_seconds",
		Help:    "Latency of outbound provider API calls",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})
)
