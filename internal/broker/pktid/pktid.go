// Package pktid allocates MQTT packet identifiers per client: a 16-bit,
// non-zero id unique among a client's in-flight publishes, handed out
// lowest-free-first and released on PUBACK/PUBCOMP.
//
// Grounded on original_source/protocol/src/placement_center/generate
// and mqtt-broker/src/core/metadata_cache.rs, which back the allocator
// with the same cache the cluster metadata lives in rather than a
// dedicated bitmap, so a crash-restart rebuilds allocator state for
// free from whatever cache-update pushes already repopulated.
package pktid

import (
	"context"
	"time"

	"github.com/cuemby/mqplane/internal/errs"
)

const (
	minPacketID uint16 = 1
	maxPacketID uint16 = 65535

	retryWait = 10 * time.Millisecond
)

// Store is the subset of BrokerCache the allocator needs. Accepting an
// interface here keeps pktid free of a direct dependency on the cache
// package's full surface.
type Store interface {
	ContainsPktID(cluster, clientID string, pktID uint16) bool
	MarkPktID(cluster, clientID string, pktID uint16)
	ReleasePktID(cluster, clientID string, pktID uint16)
	PktIDCount(cluster, clientID string) int
}

// Allocator hands out packet ids backed by a Store.
type Allocator struct {
	store   Store
	cluster string
}

// New returns an Allocator scoped to one cluster.
func New(store Store, cluster string) *Allocator {
	return &Allocator{store: store, cluster: cluster}
}

// Acquire returns the lowest packet id in [1, 65535] not currently in
// use by clientID. If every id is in use it waits retryWait and retries
// until ctx is done.
func (a *Allocator) Acquire(ctx context.Context, clientID string) (uint16, error) {
	for {
		if a.store.PktIDCount(a.cluster, clientID) < int(maxPacketID) {
			for id := minPacketID; ; id++ {
				if !a.store.ContainsPktID(a.cluster, clientID, id) {
					a.store.MarkPktID(a.cluster, clientID, id)
					return id, nil
				}
				if id == maxPacketID {
					break
				}
			}
		}

		select {
		case <-ctx.Done():
			return 0, errs.New(errs.InvariantViolation, "pktid.Acquire", ctx.Err())
		case <-time.After(retryWait):
		}
	}
}

// Release frees a packet id back to the pool for clientID.
func (a *Allocator) Release(clientID string, pktID uint16) {
	a.store.ReleasePktID(a.cluster, clientID, pktID)
}

// Count returns the number of packet ids currently in flight for
// clientID.
func (a *Allocator) Count(clientID string) int {
	return a.store.PktIDCount(a.cluster, clientID)
}

// Contains reports whether pktID is currently allocated to clientID.
func (a *Allocator) Contains(clientID string, pktID uint16) bool {
	return a.store.ContainsPktID(a.cluster, clientID, pktID)
}
