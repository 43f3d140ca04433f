// Package cache holds the in-memory projections rebuilt from the raft
// FSM apply path (PlacementCache), from the journal metadata store
// (JournalCache), and from MQTT broker-side RPC pushes (BrokerCache).
// Every cache is a sync.RWMutex-guarded map: reads never block writers
// behind I/O. Entity records reach the placement center's caches through
// the FSM apply path, which also writes them to the persistent store;
// heartbeats, raft roles, the caches fed by UpdateCache pushes, and
// BrokerCache's session, connection, subscription and packet-id state
// are held in memory only.
package cache

import (
	"sync"
	"time"

	"github.com/cuemby/mqplane/internal/types"
)

// PlacementCache is the placement center's cluster/node/raft view.
type PlacementCache struct {
	mu sync.RWMutex

	clusters map[string]*types.ClusterInfo
	nodes    map[string]map[uint64]*types.BrokerNode
	heartbeats map[string]map[uint64]time.Time
	raftNodes map[string]*types.RaftNode
}

// NewPlacementCache returns an empty PlacementCache.
func NewPlacementCache() *PlacementCache {
	return &PlacementCache{
		clusters:   make(map[string]*types.ClusterInfo),
		nodes:      make(map[string]map[uint64]*types.BrokerNode),
		heartbeats: make(map[string]map[uint64]time.Time),
		raftNodes:  make(map[string]*types.RaftNode),
	}
}

func (c *PlacementCache) AddCluster(ci *types.ClusterInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clusters[ci.ClusterName] = ci
}

func (c *PlacementCache) GetCluster(name string) (*types.ClusterInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ci, ok := c.clusters[name]
	return ci, ok
}

// Clusters returns every registered cluster, for metrics collection and
// for admin list operations.
func (c *PlacementCache) Clusters() []types.ClusterInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]types.ClusterInfo, 0, len(c.clusters))
	for _, ci := range c.clusters {
		out = append(out, *ci)
	}
	return out
}

func (c *PlacementCache) RemoveCluster(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.clusters, name)
	delete(c.nodes, name)
	delete(c.heartbeats, name)
}

// AddBrokerNode registers a node under its cluster, creating the
// cluster's node map on first use.
func (c *PlacementCache) AddBrokerNode(n *types.BrokerNode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.nodes[n.ClusterName] == nil {
		c.nodes[n.ClusterName] = make(map[uint64]*types.BrokerNode)
	}
	c.nodes[n.ClusterName][n.NodeID] = n
	if c.heartbeats[n.ClusterName] == nil {
		c.heartbeats[n.ClusterName] = make(map[uint64]time.Time)
	}
	c.heartbeats[n.ClusterName][n.NodeID] = time.Now()
}

// RemoveBrokerNode evicts a single node. Removing the last node of a
// cluster leaves an empty (not nil) map so GetBrokerNum stays 0 rather
// than panicking on a nil map read.
func (c *PlacementCache) RemoveBrokerNode(cluster string, nodeID uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.nodes[cluster], nodeID)
	delete(c.heartbeats[cluster], nodeID)
}

// ListBrokerNodes returns every node registered under cluster.
func (c *PlacementCache) ListBrokerNodes(cluster string) []types.BrokerNode {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]types.BrokerNode, 0, len(c.nodes[cluster]))
	for _, n := range c.nodes[cluster] {
		out = append(out, *n)
	}
	return out
}

func (c *PlacementCache) GetBrokerNode(cluster string, nodeID uint64) (*types.BrokerNode, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n, ok := c.nodes[cluster][nodeID]
	return n, ok
}

func (c *PlacementCache) GetBrokerNodeAddrByCluster(cluster string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var addrs []string
	for _, n := range c.nodes[cluster] {
		addrs = append(addrs, n.NodeInnerAddr)
	}
	return addrs
}

func (c *PlacementCache) GetBrokerNum(cluster string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.nodes[cluster])
}

// ReportHeartbeat records the last-seen time for a node. Callers use
// this to drive TTL-based expiry independent of the GC controllers.
func (c *PlacementCache) ReportHeartbeat(cluster string, nodeID uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.heartbeats[cluster] == nil {
		c.heartbeats[cluster] = make(map[uint64]time.Time)
	}
	c.heartbeats[cluster][nodeID] = time.Now()
}

// ExpiredNodes returns every node whose last heartbeat is older than
// ttl, across all clusters.
func (c *PlacementCache) ExpiredNodes(ttl time.Duration) []types.BrokerNode {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []types.BrokerNode
	now := time.Now()
	for cluster, hb := range c.heartbeats {
		for nodeID, last := range hb {
			if now.Sub(last) > ttl {
				if n, ok := c.nodes[cluster][nodeID]; ok {
					out = append(out, *n)
				}
			}
		}
	}
	return out
}

// UpdateRaftRole records the latest observed role for a raft node,
// returning whether it differs from the previously recorded role. The
// leadership dispatcher uses the return value to detect edge
// transitions without a separate compare-then-set.
func (c *PlacementCache) UpdateRaftRole(n types.RaftNode) (changed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev, ok := c.raftNodes[n.NodeID]
	c.raftNodes[n.NodeID] = &n
	return !ok || prev.Role != n.Role
}

func (c *PlacementCache) GetRaftNode(nodeID string) (*types.RaftNode, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n, ok := c.raftNodes[nodeID]
	return n, ok
}

func (c *PlacementCache) RaftNodes() []types.RaftNode {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]types.RaftNode, 0, len(c.raftNodes))
	for _, n := range c.raftNodes {
		out = append(out, *n)
	}
	return out
}
