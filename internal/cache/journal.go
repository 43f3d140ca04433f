package cache

import (
	"sync"

	"github.com/cuemby/mqplane/internal/types"
)

// JournalCache is the journal metadata subsystem's in-memory view:
// shards and segments keyed by their natural keys, plus the two
// wait-delete queues the GC controllers drain.
type JournalCache struct {
	mu sync.RWMutex

	shards   map[types.ShardKey]*types.JournalShard
	segments map[types.SegmentKey]*types.JournalSegment

	waitDeleteShards   map[types.ShardKey]struct{}
	waitDeleteSegments map[types.SegmentKey]struct{}
}

// NewJournalCache returns an empty JournalCache.
func NewJournalCache() *JournalCache {
	return &JournalCache{
		shards:             make(map[types.ShardKey]*types.JournalShard),
		segments:           make(map[types.SegmentKey]*types.JournalSegment),
		waitDeleteShards:   make(map[types.ShardKey]struct{}),
		waitDeleteSegments: make(map[types.SegmentKey]struct{}),
	}
}

func (c *JournalCache) AddShard(sh *types.JournalShard) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shards[sh.ShardKey] = sh
}

func (c *JournalCache) GetShard(k types.ShardKey) (*types.JournalShard, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	sh, ok := c.shards[k]
	return sh, ok
}

func (c *JournalCache) RemoveShard(k types.ShardKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.shards, k)
}

// ListShards returns every cached shard belonging to cluster/namespace.
// An empty namespace lists the whole cluster.
func (c *JournalCache) ListShards(cluster, namespace string) []types.JournalShard {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []types.JournalShard
	for k, sh := range c.shards {
		if k.ClusterName != cluster {
			continue
		}
		if namespace != "" && k.Namespace != namespace {
			continue
		}
		out = append(out, *sh)
	}
	return out
}

// AllShards returns every cached shard across every cluster, for
// metrics collection.
func (c *JournalCache) AllShards() []types.JournalShard {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]types.JournalShard, 0, len(c.shards))
	for _, sh := range c.shards {
		out = append(out, *sh)
	}
	return out
}

// AllSegments returns every cached segment across every shard, for
// metrics collection.
func (c *JournalCache) AllSegments() []types.JournalSegment {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]types.JournalSegment, 0, len(c.segments))
	for _, seg := range c.segments {
		out = append(out, *seg)
	}
	return out
}

func (c *JournalCache) AddSegment(seg *types.JournalSegment) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.segments[seg.SegmentKey] = seg
}

func (c *JournalCache) GetSegment(k types.SegmentKey) (*types.JournalSegment, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	seg, ok := c.segments[k]
	return seg, ok
}

func (c *JournalCache) RemoveSegment(k types.SegmentKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.segments, k)
}

// GetActiveSegment returns the shard's current write target: the
// segment named by its ActiveSegmentSeq, provided that segment's
// status is still Active or Create. A shard with no such segment, or
// whose designated segment has moved on to sealing or deletion,
// reports false.
//
// Grounded on original_source/journal-server/src/core/cache.rs's
// get_active_segment.
func (c *JournalCache) GetActiveSegment(shard types.ShardKey) (*types.JournalSegment, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	sh, ok := c.shards[shard]
	if !ok {
		return nil, false
	}
	segKey := types.SegmentKey{ClusterName: shard.ClusterName, Namespace: shard.Namespace, ShardName: shard.ShardName, SegmentSeq: sh.ActiveSegmentSeq}
	seg, ok := c.segments[segKey]
	if !ok {
		return nil, false
	}
	if seg.Status != types.SegmentStatusActive && seg.Status != types.SegmentStatusCreate {
		return nil, false
	}
	return seg, true
}

func (c *JournalCache) ListSegments(shard types.ShardKey) []types.JournalSegment {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []types.JournalSegment
	for k, seg := range c.segments {
		if k.ClusterName == shard.ClusterName && k.Namespace == shard.Namespace && k.ShardName == shard.ShardName {
			out = append(out, *seg)
		}
	}
	return out
}

// ShardStatusCounts returns the number of cached shards per status, for
// metrics collection.
func (c *JournalCache) ShardStatusCounts() map[string]int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	counts := make(map[string]int)
	for _, sh := range c.shards {
		counts[string(sh.Status)]++
	}
	return counts
}

// SegmentStatusCounts returns the number of cached segments per status,
// for metrics collection.
func (c *JournalCache) SegmentStatusCounts() map[string]int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	counts := make(map[string]int)
	for _, seg := range c.segments {
		counts[string(seg.Status)]++
	}
	return counts
}

// WaitDeleteShardCount returns the current depth of the shard GC queue.
func (c *JournalCache) WaitDeleteShardCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.waitDeleteShards)
}

// WaitDeleteSegmentCount returns the current depth of the segment GC
// queue.
func (c *JournalCache) WaitDeleteSegmentCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.waitDeleteSegments)
}

// EnqueueShardDelete marks a shard for GC. Idempotent: re-enqueuing an
// already-queued shard is a no-op.
func (c *JournalCache) EnqueueShardDelete(k types.ShardKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.waitDeleteShards[k] = struct{}{}
}

func (c *JournalCache) DequeueShardDelete(k types.ShardKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.waitDeleteShards, k)
}

func (c *JournalCache) WaitDeleteShardList() []types.ShardKey {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]types.ShardKey, 0, len(c.waitDeleteShards))
	for k := range c.waitDeleteShards {
		out = append(out, k)
	}
	return out
}

func (c *JournalCache) EnqueueSegmentDelete(k types.SegmentKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.waitDeleteSegments[k] = struct{}{}
}

func (c *JournalCache) DequeueSegmentDelete(k types.SegmentKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.waitDeleteSegments, k)
}

func (c *JournalCache) WaitDeleteSegmentList() []types.SegmentKey {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]types.SegmentKey, 0, len(c.waitDeleteSegments))
	for k := range c.waitDeleteSegments {
		out = append(out, k)
	}
	return out
}
