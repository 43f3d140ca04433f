// Package notify pushes cache-update notifications from the placement
// center leader to every live broker/journal node whenever the FSM
// applies a command that changes observable state.
//
// Grounded on the teacher's pkg/events.Broker subscribe/broadcast
// shape, but reworked from an in-process pub/sub into a remote push:
// this package has no local subscriber channels, only target addresses
// refreshed from the placement cache, and delivery goes out over
// internal/rpc.Client.RetryCall instead of a buffered Go channel.
package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cuemby/mqplane/internal/cache"
	"github.com/cuemby/mqplane/internal/rpc"
	"github.com/cuemby/mqplane/internal/rpc/wire"
	"github.com/cuemby/mqplane/internal/types"
	"github.com/cuemby/mqplane/pkg/log"
	"github.com/cuemby/mqplane/pkg/metrics"
)

// defaultConcurrency bounds the number of in-flight notification
// deliveries so a large cluster's fan-out can't pile up unbounded
// goroutines behind the FSM apply path.
const defaultConcurrency = 16

// Dispatcher fans out UpdateCache notifications to every broker/journal
// node registered under a cluster, fire-and-forget.
type Dispatcher struct {
	client    *rpc.Client
	placement *cache.PlacementCache
	sem       chan struct{}
	timeout   time.Duration
}

// NewDispatcher returns a Dispatcher bounded to at most defaultConcurrency
// concurrent deliveries.
func NewDispatcher(client *rpc.Client, placement *cache.PlacementCache) *Dispatcher {
	return &Dispatcher{
		client:    client,
		placement: placement,
		sem:       make(chan struct{}, defaultConcurrency),
		timeout:   5 * time.Second,
	}
}

// Notify builds an UpdateCache envelope and pushes it to every node
// registered under cluster that answers the given wire service (journal
// or broker). Delivery runs in bounded background goroutines; Notify
// never blocks on the network and never returns an error to the
// caller, since notification fan-out can't stall raft's apply path.
func (d *Dispatcher) Notify(cluster, service, resourceType, action string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Errorf("notify: marshal payload", err)
		return
	}

	req := &wire.UpdateCacheRequest{
		ResourceType: resourceType,
		Action:       action,
		Payload:      data,
	}

	for _, addr := range d.placement.GetBrokerNodeAddrByCluster(cluster) {
		d.deliver(service, resourceType, action, addr, req)
	}
}

func (d *Dispatcher) deliver(service, resourceType, action, addr string, req *wire.UpdateCacheRequest) {
	select {
	case d.sem <- struct{}{}:
	default:
		// at capacity: drop rather than block the apply path
		log.Warn("notify: dropping update, dispatcher at capacity")
		return
	}

	go func() {
		defer func() { <-d.sem }()

		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		if err := d.client.RetryCall(ctx, service, wire.InterfaceUpdateCache, []string{addr}, req, nil); err != nil {
			log.Errorf("notify: deliver update-cache", err)
			return
		}
		metrics.CacheUpdatesSentTotal.WithLabelValues(resourceType, action).Inc()
	}()
}

// DecodePayload unmarshals a received UpdateCacheRequest's payload into
// v, dropping (logging, never panicking) on malformed input per the
// fail-open contract for cache-update delivery.
func DecodePayload(req *wire.UpdateCacheRequest, v interface{}) bool {
	if err := json.Unmarshal(req.Payload, v); err != nil {
		log.Errorf("notify: decode cache-update payload", err)
		metrics.CacheUpdatesDroppedTotal.WithLabelValues(req.ResourceType).Inc()
		return false
	}
	return true
}

// Payload types embedded in an UpdateCache message, one pair per
// entity class the FSM mutates.
type ClusterAdd struct{ Cluster types.ClusterInfo }
type ClusterDelete struct{ ClusterName string }

type NodeAdd struct{ Node types.BrokerNode }
type NodeDelete struct {
	ClusterName string
	NodeID      uint64
}

type ShardAdd struct{ Shard types.JournalShard }
type ShardDelete struct{ Key types.ShardKey }

type SegmentAdd struct{ Segment types.JournalSegment }
type SegmentDelete struct{ Key types.SegmentKey }

type UserAdd struct{ User types.User }
type UserDelete struct {
	ClusterName string
	Username    string
}

type TopicAdd struct{ Topic types.Topic }
type TopicDelete struct {
	ClusterName string
	TopicName   string
}
