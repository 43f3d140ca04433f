// Package fsm implements the raft finite state machine that applies
// committed log entries to the persistent store and in-memory caches:
// cluster, node, shard, segment, user, and topic mutations all flow
// through Apply before either cache is allowed to reflect them.
//
// Grounded on the teacher's pkg/manager/fsm.go Command{Op,Data}
// dispatch pattern, generalized from node/service/task/secret/volume
// operations to this domain's cluster/node/shard/segment/user/topic
// operations.
package fsm

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/hashicorp/raft"

	"github.com/cuemby/mqplane/internal/cache"
	"github.com/cuemby/mqplane/internal/store"
	"github.com/cuemby/mqplane/internal/types"
)

// Op names carried in Command.Op.
const (
	OpAddCluster      = "add_cluster"
	OpRemoveCluster   = "remove_cluster"
	OpAddNode         = "add_node"
	OpRemoveNode      = "remove_node"
	OpAddShard        = "add_shard"
	OpUpdateShard     = "update_shard"
	OpRemoveShard     = "remove_shard"
	OpAddSegment      = "add_segment"
	OpUpdateSegment   = "update_segment"
	OpRemoveSegment   = "remove_segment"
	OpAddUser         = "add_user"
	OpRemoveUser      = "remove_user"
	OpAddTopic        = "add_topic"
	OpRemoveTopic     = "remove_topic"
)

// Command is one raft log entry: an operation name plus its
// JSON-encoded payload.
type Command struct {
	Op   string          `json:"op"`
	Data json.RawMessage `json:"data"`
}

// FSM applies committed raft log entries to the placement store and
// the placement/journal caches it keeps in sync.
type FSM struct {
	mu sync.RWMutex

	store    *store.Store
	placement *cache.PlacementCache
	journal   *cache.JournalCache
}

// New returns an FSM wired to the given store and caches.
func New(st *store.Store, placement *cache.PlacementCache, journal *cache.JournalCache) *FSM {
	return &FSM{store: st, placement: placement, journal: journal}
}

// Apply dispatches one committed log entry to the store and cache.
func (f *FSM) Apply(log *raft.Log) interface{} {
	var cmd Command
	if err := json.Unmarshal(log.Data, &cmd); err != nil {
		return fmt.Errorf("unmarshal command: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch cmd.Op {
	case OpAddCluster:
		var c types.ClusterInfo
		if err := json.Unmarshal(cmd.Data, &c); err != nil {
			return err
		}
		if err := f.store.PutCluster(&c); err != nil {
			return err
		}
		f.placement.AddCluster(&c)
		return nil

	case OpRemoveCluster:
		var name string
		if err := json.Unmarshal(cmd.Data, &name); err != nil {
			return err
		}
		if err := f.store.DeleteCluster(name); err != nil {
			return err
		}
		f.placement.RemoveCluster(name)
		return nil

	case OpAddNode:
		var n types.BrokerNode
		if err := json.Unmarshal(cmd.Data, &n); err != nil {
			return err
		}
		if err := f.store.PutNode(&n); err != nil {
			return err
		}
		f.placement.AddBrokerNode(&n)
		return nil

	case OpRemoveNode:
		var ref nodeRef
		if err := json.Unmarshal(cmd.Data, &ref); err != nil {
			return err
		}
		if err := f.store.DeleteNode(ref.ClusterName, ref.NodeID); err != nil {
			return err
		}
		f.placement.RemoveBrokerNode(ref.ClusterName, ref.NodeID)
		return nil

	case OpAddShard, OpUpdateShard:
		var sh types.JournalShard
		if err := json.Unmarshal(cmd.Data, &sh); err != nil {
			return err
		}
		if err := f.store.PutShard(&sh); err != nil {
			return err
		}
		f.journal.AddShard(&sh)
		if sh.Status == types.ShardStatusPrepareDelete {
			f.journal.EnqueueShardDelete(sh.ShardKey)
		}
		return nil

	case OpRemoveShard:
		var k types.ShardKey
		if err := json.Unmarshal(cmd.Data, &k); err != nil {
			return err
		}
		if err := f.store.DeleteShard(k); err != nil {
			return err
		}
		f.journal.RemoveShard(k)
		f.journal.DequeueShardDelete(k)
		return nil

	case OpAddSegment, OpUpdateSegment:
		var seg types.JournalSegment
		if err := json.Unmarshal(cmd.Data, &seg); err != nil {
			return err
		}
		if err := f.store.PutSegment(&seg); err != nil {
			return err
		}
		f.journal.AddSegment(&seg)
		if seg.Status == types.SegmentStatusPrepareDelete {
			f.journal.EnqueueSegmentDelete(seg.SegmentKey)
		}
		return nil

	case OpRemoveSegment:
		var k types.SegmentKey
		if err := json.Unmarshal(cmd.Data, &k); err != nil {
			return err
		}
		if err := f.store.DeleteSegment(k); err != nil {
			return err
		}
		f.journal.RemoveSegment(k)
		f.journal.DequeueSegmentDelete(k)
		return nil

	case OpAddUser:
		var u types.User
		if err := json.Unmarshal(cmd.Data, &u); err != nil {
			return err
		}
		return f.store.PutUser(&u)

	case OpRemoveUser:
		var ref userRef
		if err := json.Unmarshal(cmd.Data, &ref); err != nil {
			return err
		}
		return f.store.DeleteUser(ref.ClusterName, ref.Username)

	case OpAddTopic:
		var t types.Topic
		if err := json.Unmarshal(cmd.Data, &t); err != nil {
			return err
		}
		return f.store.PutTopic(&t)

	case OpRemoveTopic:
		var ref topicRef
		if err := json.Unmarshal(cmd.Data, &ref); err != nil {
			return err
		}
		return f.store.DeleteTopic(ref.ClusterName, ref.TopicName)

	default:
		return fmt.Errorf("unknown fsm op: %s", cmd.Op)
	}
}

type nodeRef struct {
	ClusterName string
	NodeID      uint64
}

type userRef struct {
	ClusterName string
	Username    string
}

type topicRef struct {
	ClusterName string
	TopicName   string
}

// Snapshot captures every entity class into a single JSON blob. The
// store is already the durable copy; the snapshot exists so raft can
// compact its log and bring up new followers without replaying history.
func (f *FSM) Snapshot() (raft.FSMSnapshot, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	clusters, err := f.store.ListClusters()
	if err != nil {
		return nil, fmt.Errorf("list clusters: %w", err)
	}

	snap := &Snapshot{Clusters: clusters}

	for _, c := range clusters {
		nodes, err := f.store.ListNodes(c.ClusterName)
		if err != nil {
			return nil, fmt.Errorf("list nodes: %w", err)
		}
		snap.Nodes = append(snap.Nodes, nodes...)

		shards, err := f.store.ListShards(c.ClusterName, "")
		if err != nil {
			return nil, fmt.Errorf("list shards: %w", err)
		}
		snap.Shards = append(snap.Shards, shards...)

		for _, sh := range shards {
			segs, err := f.store.ListSegments(sh.ShardKey)
			if err != nil {
				return nil, fmt.Errorf("list segments: %w", err)
			}
			snap.Segments = append(snap.Segments, segs...)
		}

		users, err := f.store.ListUsers(c.ClusterName)
		if err != nil {
			return nil, fmt.Errorf("list users: %w", err)
		}
		snap.Users = append(snap.Users, users...)

		topics, err := f.store.ListTopics(c.ClusterName)
		if err != nil {
			return nil, fmt.Errorf("list topics: %w", err)
		}
		snap.Topics = append(snap.Topics, topics...)
	}

	return snap, nil
}

// Restore rebuilds the store and caches from a snapshot, used when a
// node restarts or a new follower joins.
func (f *FSM) Restore(rc io.ReadCloser) error {
	defer rc.Close()

	var snap Snapshot
	if err := json.NewDecoder(rc).Decode(&snap); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	for _, c := range snap.Clusters {
		if err := f.store.PutCluster(c); err != nil {
			return err
		}
		f.placement.AddCluster(c)
	}
	for _, n := range snap.Nodes {
		if err := f.store.PutNode(n); err != nil {
			return err
		}
		f.placement.AddBrokerNode(n)
	}
	for _, sh := range snap.Shards {
		if err := f.store.PutShard(sh); err != nil {
			return err
		}
		f.journal.AddShard(sh)
		if sh.Status == types.ShardStatusPrepareDelete {
			f.journal.EnqueueShardDelete(sh.ShardKey)
		}
	}
	for _, seg := range snap.Segments {
		if err := f.store.PutSegment(seg); err != nil {
			return err
		}
		f.journal.AddSegment(seg)
		if seg.Status == types.SegmentStatusPrepareDelete {
			f.journal.EnqueueSegmentDelete(seg.SegmentKey)
		}
	}
	for _, u := range snap.Users {
		if err := f.store.PutUser(u); err != nil {
			return err
		}
	}
	for _, t := range snap.Topics {
		if err := f.store.PutTopic(t); err != nil {
			return err
		}
	}

	return nil
}

// Snapshot is the point-in-time copy of every entity class persisted
// by raft's log-compaction snapshotting.
type Snapshot struct {
	Clusters []*types.ClusterInfo
	Nodes    []*types.BrokerNode
	Shards   []*types.JournalShard
	Segments []*types.JournalSegment
	Users    []*types.User
	Topics   []*types.Topic
}

// Persist writes the snapshot to sink, closing it on success and
// cancelling it on any encode failure.
func (s *Snapshot) Persist(sink raft.SnapshotSink) error {
	err := func() error {
		if err := json.NewEncoder(sink).Encode(s); err != nil {
			return err
		}
		return sink.Close()
	}()
	if err != nil {
		sink.Cancel()
	}
	return err
}

// Release is a no-op; the snapshot holds no resources beyond memory.
func (s *Snapshot) Release() {}
