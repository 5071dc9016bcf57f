package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts records admin login attempts by result (success|failure).
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "youthtracker_auth_attempts_total",
			Help: "Total number of admin authentication attempts",
		},
		[]string{"result"},
	)

	// TokenOperations counts permission token lifecycle calls (issue|validate|consume) by result.
	TokenOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "youthtracker_token_operations_total",
			Help: "Total number of permission token operations",
		},
		[]string{"operation", "result"},
	)

	// NotificationDeliveries counts per-recipient deliveries by channel and result.
	NotificationDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "youthtracker_notification_deliveries_total",
			Help: "Total number of notification deliveries",
		},
		[]string{"channel", "result"},
	)

	// DocumentsGenerated counts waiver document generations by result.
	DocumentsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "youthtracker_documents_generated_total",
			Help: "Total number of generated waiver documents",
		},
		[]string{"result"},
	)

	// DocumentGenerationSeconds measures waiver rendering time.
	DocumentGenerationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "youthtracker_document_generation_seconds",
			Help:    "Waiver document generation latency",
			Buckets: prometheus.DefBuckets,
		},
	)

	// PendingPermissions tracks unsigned permission records observed by the last reminder run.
	PendingPermissions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "youthtracker_pending_permissions",
			Help: "Unsigned permission records seen by the most recent reminder run",
		},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "youthtracker_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
