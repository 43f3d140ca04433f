package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Cluster metrics
	ClustersTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mq_clusters_total",
			Help: "Total number of registered clusters",
		},
	)

	BrokerNodesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mq_broker_nodes_total",
			Help: "Total number of broker nodes by cluster",
		},
		[]string{"cluster"},
	)

	// Journal metrics
	ShardsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mq_journal_shards_total",
			Help: "Total number of journal shards by status",
		},
		[]string{"status"},
	)

	SegmentsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mq_journal_segments_total",
			Help: "Total number of journal segments by status",
		},
		[]string{"status"},
	)

	WaitDeleteShardsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mq_wait_delete_shards_total",
			Help: "Shards currently queued for GC deletion",
		},
	)

	WaitDeleteSegmentsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mq_wait_delete_segments_total",
			Help: "Segments currently queued for GC deletion",
		},
	)

	// Raft / leadership metrics
	RaftIsLeader = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mq_placement_raft_is_leader",
			Help: "Whether this node is the Raft leader (1 = leader, 0 = follower)",
		},
	)

	RaftAppliedIndex = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mq_placement_raft_applied_index",
			Help: "Last applied Raft log index",
		},
	)

	RaftApplyDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mq_placement_raft_apply_duration_seconds",
			Help:    "Time taken to apply a Raft log entry",
			Buckets: prometheus.DefBuckets,
		},
	)

	// GC controller metrics
	GCTicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mq_gc_ticks_total",
			Help: "Total number of GC reconciliation ticks by controller",
		},
		[]string{"controller"},
	)

	GCTickDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mq_gc_tick_duration_seconds",
			Help:    "Duration of a GC reconciliation tick",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"controller"},
	)

	GCShardsDeletedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mq_gc_shards_deleted_total",
			Help: "Total number of shards fully deleted by the GC controller",
		},
	)

	GCSegmentsDeletedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mq_gc_segments_deleted_total",
			Help: "Total number of segments fully deleted by the GC controller",
		},
	)

	// RPC client metrics
	RPCRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mq_rpc_retries_total",
			Help: "Total number of retry attempts by service/interface",
		},
		[]string{"service", "interface"},
	)

	RPCCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mq_rpc_call_duration_seconds",
			Help:    "Duration of a single RPC attempt",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "interface"},
	)

	// Cache-update notification metrics
	CacheUpdatesSentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mq_cache_updates_sent_total",
			Help: "Total number of cache-update notifications sent by resource type",
		},
		[]string{"resource_type", "action"},
	)

	CacheUpdatesDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mq_cache_updates_dropped_total",
			Help: "Total number of malformed cache-update payloads dropped on receipt",
		},
		[]string{"resource_type"},
	)

	// Broker cache metrics
	BrokerSessionsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mq_broker_sessions_total",
			Help: "Total number of sessions held in the broker cache",
		},
	)

	BrokerConnectionsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mq_broker_connections_total",
			Help: "Total number of connections held in the broker cache",
		},
	)
)

func init() {
	prometheus.MustRegister(
		ClustersTotal,
		BrokerNodesTotal,
		ShardsTotal,
		SegmentsTotal,
		WaitDeleteShardsTotal,
		WaitDeleteSegmentsTotal,
		RaftIsLeader,
		RaftAppliedIndex,
		RaftApplyDuration,
		GCTicksTotal,
		GCTickDuration,
		GCShardsDeletedTotal,
		GCSegmentsDeletedTotal,
		RPCRetriesTotal,
		RPCCallDuration,
		CacheUpdatesSentTotal,
		CacheUpdatesDroppedTotal,
		BrokerSessionsTotal,
		BrokerConnectionsTotal,
	)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
