/*
Package metrics provides Prometheus metrics collection and exposition for
the control plane.

All metrics are registered at package init and exposed via an HTTP
handler for scraping. Metric names are prefixed mq_ and grouped by the
component that owns them: cluster/node membership, the journal metadata
cache, the GC controllers, the RPC client, cache-update notifications,
and the broker cache projection.

# Core Components

Metric Registry:
  - Global Prometheus DefaultRegistry
  - All metrics registered in init()
  - Thread-safe for concurrent updates

Timer Helper:
  - Start a timer, observe elapsed duration to a histogram
  - ObserveDuration for unlabeled histograms, ObserveDurationVec for
    HistogramVec with label values

# Metrics Catalog

Cluster / Node Metrics:

mq_clusters_total:
  - Gauge. Total number of registered clusters.

mq_broker_nodes_total{cluster}:
  - Gauge. Broker node count per cluster.

Journal Metrics:

mq_journal_shards_total{status}:
  - Gauge. Shard count by lifecycle status.

mq_journal_segments_total{status}:
  - Gauge. Segment count by lifecycle status.

mq_wait_delete_shards_total / mq_wait_delete_segments_total:
  - Gauge. Entries currently queued for GC deletion.

Raft Metrics:

mq_placement_raft_is_leader:
  - Gauge. 1 if this node holds raft leadership, else 0.

mq_placement_raft_applied_index:
  - Gauge. Last raft log index applied to the FSM.

mq_placement_raft_apply_duration_seconds:
  - Histogram. Time to append and commit one raft log entry.

GC Controller Metrics:

mq_gc_ticks_total{controller}:
  - Counter. Reconciliation ticks run, by controller (shard/segment).

mq_gc_tick_duration_seconds{controller}:
  - Histogram. Duration of one reconciliation tick.

mq_gc_shards_deleted_total / mq_gc_segments_deleted_total:
  - Counter. Entities fully removed after all replicas confirmed deletion.

RPC Client Metrics:

mq_rpc_retries_total{service,interface}:
  - Counter. Retry attempts issued by RetryCall.

mq_rpc_call_duration_seconds{service,interface}:
  - Histogram. Duration of a single RPC attempt (not the whole retry loop).

Cache-Update Notification Metrics:

mq_cache_updates_sent_total{resource_type,action}:
  - Counter. UpdateCache notifications successfully delivered.

mq_cache_updates_dropped_total{resource_type}:
  - Counter. Malformed cache-update payloads dropped on receipt.

Broker Cache Metrics:

mq_broker_sessions_total / mq_broker_connections_total:
  - Gauge. Sessions and connections currently held in the broker cache.

# Usage

	import "github.com/cuemby/mqplane/pkg/metrics"

	metrics.ClustersTotal.Set(3)
	metrics.BrokerNodesTotal.WithLabelValues("prod").Set(5)

	timer := metrics.NewTimer()
	err := node.Apply(cmd)
	timer.ObserveDuration(metrics.RaftApplyDuration)

	timer = metrics.NewTimer()
	err = client.RetryCall(ctx, wire.ServiceJournal, wire.InterfaceCreateShard, addrs, req, &reply)
	timer.ObserveDurationVec(metrics.RPCCallDuration, wire.ServiceJournal, wire.InterfaceCreateShard)

	http.Handle("/metrics", metrics.Handler())

# Integration Points

This package integrates with:

  - internal/placement: raft apply-latency histogram
  - internal/leader: raft leadership gauge
  - cmd/*: Collector samplers that set the cluster/node/shard/segment
    and broker session/connection gauges
  - internal/controller: GC tick and deletion counters
  - internal/rpc: retry and per-attempt latency metrics
  - internal/notify: cache-update delivery counters

# Design Patterns

Label Discipline:
  - Labels are cardinality-bounded (cluster name, status, controller
    name, service/interface) - never client IDs, shard sequence numbers,
    or timestamps.

Global Metrics:
  - Package-level variables, safe for concurrent use, no initialization
    required by callers beyond importing the package.

# See Also

  - Prometheus client library: https://github.com/prometheus/client_golang
  - Histogram best practices: https://prometheus.io/docs/practices/histograms/
*/
package metrics
