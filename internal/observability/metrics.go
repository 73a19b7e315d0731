package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for PredictMesh.
type Metrics struct {
	// --- Core processing ---
	CoreOpsApplied   *prometheus.CounterVec
	CoreOpsRejected  *prometheus.CounterVec
	CoreOpDuration   *prometheus.HistogramVec
	CoreLogicalClock prometheus.Gauge

	// --- Gossip ---
	MessagesApplied      *prometheus.CounterVec
	MessagesStale        *prometheus.CounterVec
	MessagesDeduplicated *prometheus.CounterVec
	GossipPublished      *prometheus.CounterVec
	GossipPublishErrors  prometheus.Counter
	RegistryShards       prometheus.Gauge

	// --- Idempotency ---
	IdempotencyDuplicates *prometheus.CounterVec
	DedupLRUSize          prometheus.Gauge
	DedupLRUEvictions     prometheus.Counter
	DedupTier2Duration    prometheus.Histogram

	// --- Prediction windows ---
	PredictionsSubmitted  *prometheus.CounterVec
	WindowsResolved       *prometheus.CounterVec
	CascadeMembersSettled *prometheus.CounterVec
	SupplyTotal           prometheus.Gauge

	// --- Channel & backpressure ---
	ChannelSize         *prometheus.GaugeVec
	ChannelCapacity     *prometheus.GaugeVec
	ChannelUtilization  *prometheus.GaugeVec
	PersistBackpressure prometheus.Counter

	// --- Persistence ---
	PersistMessagesWritten prometheus.Counter
	PersistRowsWritten     *prometheus.CounterVec
	PersistBatchDur        prometheus.Histogram
	PersistBatchSize       prometheus.Histogram
	PersistErrors          *prometheus.CounterVec
	PersistRetry           prometheus.Counter
	RetentionPruned        prometheus.Counter

	// --- Query API ---
	QueryRequests *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
	QueryErrors   *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	latencyBuckets := []float64{
		0.000001, 0.000005, 0.00001, 0.000025, 0.00005,
		0.0001, 0.00025, 0.0005, 0.001, 0.002, 0.005, 0.01,
	}

	return &Metrics{
		// Core processing
		CoreOpsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "predict_core_ops_applied_total",
			Help: "Local operations successfully applied by core",
		}, []string{"op"}),

		CoreOpsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "predict_core_ops_rejected_total",
			Help: "Local operations rejected (validation, duplicate)",
		}, []string{"op", "reason"}),

		CoreOpDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "predict_core_op_duration_seconds",
			Help:    "Time to execute a single operation in core",
			Buckets: latencyBuckets,
		}, []string{"op"}),

		CoreLogicalClock: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "predict_core_logical_clock",
			Help: "Current logical time (Lamport-merged)",
		}),

		// Gossip
		MessagesApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "predict_gossip_messages_applied_total",
			Help: "Inbound gossip messages that changed local state",
		}, []string{"kind"}),

		MessagesStale: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "predict_gossip_messages_stale_total",
			Help: "Inbound messages reconciled as no-ops (older or tied writes)",
		}, []string{"kind"}),

		MessagesDeduplicated: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "predict_gossip_messages_deduplicated_total",
			Help: "Redelivered messages dropped by the dedup check",
		}, []string{"kind"}),

		GossipPublished: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "predict_gossip_published_total",
			Help: "Outbound messages fanned out to peers",
		}, []string{"kind"}),

		GossipPublishErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "predict_gossip_publish_errors_total",
			Help: "NATS publish failures",
		}),

		RegistryShards: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "predict_registry_shards",
			Help: "Shards known to the local registry (self included)",
		}),

		// Idempotency
		IdempotencyDuplicates: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "predict_idempotency_duplicates_total",
			Help: "Duplicates caught (lru/postgres)",
		}, []string{"kind", "tier"}),

		DedupLRUSize: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "predict_dedup_lru_size",
			Help: "Current LRU occupancy",
		}),

		DedupLRUEvictions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "predict_dedup_lru_evictions_total",
			Help: "LRU evictions",
		}),

		DedupTier2Duration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "predict_dedup_tier2_duration_seconds",
			Help:    "Postgres dedup lookup latency",
			Buckets: latencyBuckets,
		}),

		// Prediction windows
		PredictionsSubmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "predict_predictions_submitted_total",
			Help: "Predictions accepted",
		}, []string{"kind"}),

		WindowsResolved: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "predict_windows_resolved_total",
			Help: "Prediction windows resolved",
		}, []string{"kind", "outcome"}),

		CascadeMembersSettled: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "predict_cascade_members_settled_total",
			Help: "Player settlements including guild cascades",
		}, []string{"kind", "result"}),

		SupplyTotal: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "predict_supply_total",
			Help: "Converged mesh-wide point supply",
		}),

		// Channel & backpressure
		ChannelSize: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "predict_channel_size",
			Help: "Current items in channel",
		}, []string{"name"}),

		ChannelCapacity: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "predict_channel_capacity",
			Help: "Channel capacity (constant)",
		}, []string{"name"}),

		ChannelUtilization: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "predict_channel_utilization",
			Help: "Channel size / capacity (0.0-1.0)",
		}, []string{"name"}),

		PersistBackpressure: promauto.NewCounter(prometheus.CounterOpts{
			Name: "predict_persist_backpressure_total",
			Help: "Times core blocked on persist channel",
		}),

		// Persistence
		PersistMessagesWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "predict_persist_messages_written_total",
			Help: "Processed-message records written to Postgres",
		}),

		PersistRowsWritten: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "predict_persist_rows_written_total",
			Help: "Projection rows upserted",
		}, []string{"table"}),

		PersistBatchDur: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "predict_persist_batch_duration_seconds",
			Help:    "Postgres batch write duration",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),

		PersistBatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "predict_persist_batch_size",
			Help:    "Core outputs per batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),

		PersistErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "predict_persist_errors_total",
			Help: "Persistence errors",
		}, []string{"error_type"}),

		PersistRetry: promauto.NewCounter(prometheus.CounterOpts{
			Name: "predict_persist_retry_total",
			Help: "Persistence retries",
		}),

		RetentionPruned: promauto.NewCounter(prometheus.CounterOpts{
			Name: "predict_retention_pruned_total",
			Help: "Processed-message records pruned by retention",
		}),

		// Query API
		QueryRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "predict_query_requests_total",
			Help: "Query requests",
		}, []string{"endpoint", "status"}),

		QueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "predict_query_duration_seconds",
			Help:    "Query latency",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"endpoint"}),

		QueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "predict_query_errors_total",
			Help: "Query errors",
		}, []string{"endpoint", "code"}),
	}
}

// SetChannelMetrics updates channel utilization metrics.
func (m *Metrics) SetChannelMetrics(name string, size, capacity int) {
	m.ChannelSize.WithLabelValues(name).Set(float64(size))
	m.ChannelCapacity.WithLabelValues(name).Set(float64(capacity))
	if capacity > 0 {
		m.ChannelUtilization.WithLabelValues(name).Set(float64(size) / float64(capacity))
	}
}
