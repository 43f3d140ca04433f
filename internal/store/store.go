// Package store implements the persistent, column-family-partitioned
// record stores described by the control plane's data model: one bucket
// per entity class (cluster, node, shard, segment, user, topic) plus the
// four offset-index buckets used by the journal server's local index.
//
// put/delete on the entity-class buckets are only ever called from
// inside the raft FSM apply path; the offset-index buckets are written
// by the journal server's UpdateCache handling. get/list may be called
// by any reader. Writes are idempotent by key,
// mirroring the teacher's BoltStore upsert-as-create convention.
package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"

	bolt "go.etcd.io/bbolt"

	"github.com/cuemby/mqplane/internal/errs"
	"github.com/cuemby/mqplane/internal/types"
)

var (
	bucketCluster = []byte("cluster")
	bucketNode    = []byte("node")
	bucketShard   = []byte("shard")
	bucketSegment = []byte("segment")
	bucketUser    = []byte("user")
	bucketTopic   = []byte("topic")

	bucketIdxStartOffset    = []byte("idx_start_offset")
	bucketIdxEndOffset      = []byte("idx_end_offset")
	bucketIdxPositionOffset = []byte("idx_position_offset")
	bucketIdxTimestampOffset = []byte("idx_timestamp_offset")

	allBuckets = [][]byte{
		bucketCluster, bucketNode, bucketShard, bucketSegment, bucketUser, bucketTopic,
		bucketIdxStartOffset, bucketIdxEndOffset, bucketIdxPositionOffset, bucketIdxTimestampOffset,
	}
)

// Store is the keyed byte engine backing every entity class.
type Store struct {
	db *bolt.DB
}

// Open creates or opens a BoltDB-backed store in dataDir, creating every
// bucket on first use.
func Open(dataDir string) (*Store, error) {
	dbPath := filepath.Join(dataDir, "control-plane.db")
	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, errs.New(errs.Storage, "store.Open", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, errs.New(errs.Storage, "store.Open", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// shardKey builds the `/shard/<cluster>/<namespace>/<shard>` key.
func shardKey(k types.ShardKey) []byte {
	return []byte(fmt.Sprintf("/shard/%s/%s/%s", k.ClusterName, k.Namespace, k.ShardName))
}

// shardPrefix builds the scan prefix for all shards in a cluster/namespace.
func shardPrefix(cluster, namespace string) []byte {
	if namespace == "" {
		return []byte(fmt.Sprintf("/shard/%s/", cluster))
	}
	return []byte(fmt.Sprintf("/shard/%s/%s/", cluster, namespace))
}

func segmentKey(k types.SegmentKey) []byte {
	return []byte(fmt.Sprintf("/segment/%s/%s/%s/%d", k.ClusterName, k.Namespace, k.ShardName, k.SegmentSeq))
}

func segmentPrefix(shard types.ShardKey) []byte {
	return []byte(fmt.Sprintf("/segment/%s/%s/%s/", shard.ClusterName, shard.Namespace, shard.ShardName))
}

// --- ClusterInfo ---

func (s *Store) PutCluster(c *types.ClusterInfo) error {
	return s.put(bucketCluster, []byte("/cluster/"+c.ClusterName), c)
}

func (s *Store) GetCluster(name string) (*types.ClusterInfo, error) {
	var c types.ClusterInfo
	ok, err := s.get(bucketCluster, []byte("/cluster/"+name), &c)
	if err != nil || !ok {
		return nil, err
	}
	return &c, nil
}

func (s *Store) DeleteCluster(name string) error {
	return s.delete(bucketCluster, []byte("/cluster/"+name))
}

func (s *Store) ListClusters() ([]*types.ClusterInfo, error) {
	var out []*types.ClusterInfo
	err := s.list(bucketCluster, nil, func(v []byte) error {
		var c types.ClusterInfo
		if err := json.Unmarshal(v, &c); err != nil {
			return err
		}
		out = append(out, &c)
		return nil
	})
	return out, err
}

// --- BrokerNode ---

func nodeKey(cluster string, nodeID uint64) []byte {
	return []byte(fmt.Sprintf("/node/%s/%d", cluster, nodeID))
}

func (s *Store) PutNode(n *types.BrokerNode) error {
	return s.put(bucketNode, nodeKey(n.ClusterName, n.NodeID), n)
}

func (s *Store) GetNode(cluster string, nodeID uint64) (*types.BrokerNode, error) {
	var n types.BrokerNode
	ok, err := s.get(bucketNode, nodeKey(cluster, nodeID), &n)
	if err != nil || !ok {
		return nil, err
	}
	return &n, nil
}

func (s *Store) DeleteNode(cluster string, nodeID uint64) error {
	return s.delete(bucketNode, nodeKey(cluster, nodeID))
}

func (s *Store) ListNodes(cluster string) ([]*types.BrokerNode, error) {
	var out []*types.BrokerNode
	err := s.list(bucketNode, []byte("/node/"+cluster+"/"), func(v []byte) error {
		var n types.BrokerNode
		if err := json.Unmarshal(v, &n); err != nil {
			return err
		}
		out = append(out, &n)
		return nil
	})
	return out, err
}

// --- JournalShard ---

func (s *Store) PutShard(sh *types.JournalShard) error {
	return s.put(bucketShard, shardKey(sh.ShardKey), sh)
}

func (s *Store) GetShard(k types.ShardKey) (*types.JournalShard, error) {
	var sh types.JournalShard
	ok, err := s.get(bucketShard, shardKey(k), &sh)
	if err != nil || !ok {
		return nil, err
	}
	return &sh, nil
}

func (s *Store) DeleteShard(k types.ShardKey) error {
	return s.delete(bucketShard, shardKey(k))
}

func (s *Store) ListShards(cluster, namespace string) ([]*types.JournalShard, error) {
	var out []*types.JournalShard
	err := s.list(bucketShard, shardPrefix(cluster, namespace), func(v []byte) error {
		var sh types.JournalShard
		if err := json.Unmarshal(v, &sh); err != nil {
			return err
		}
		out = append(out, &sh)
		return nil
	})
	return out, err
}

// --- JournalSegment ---

func (s *Store) PutSegment(seg *types.JournalSegment) error {
	return s.put(bucketSegment, segmentKey(seg.SegmentKey), seg)
}

func (s *Store) GetSegment(k types.SegmentKey) (*types.JournalSegment, error) {
	var seg types.JournalSegment
	ok, err := s.get(bucketSegment, segmentKey(k), &seg)
	if err != nil || !ok {
		return nil, err
	}
	return &seg, nil
}

func (s *Store) DeleteSegment(k types.SegmentKey) error {
	return s.delete(bucketSegment, segmentKey(k))
}

// ListSegments lists every segment belonging to a shard in key order.
// segment_seq is written into the key without zero padding, so the
// order is lexicographic (seq 10 sorts before seq 2); callers that need
// numeric order sort the result.
func (s *Store) ListSegments(shard types.ShardKey) ([]*types.JournalSegment, error) {
	var out []*types.JournalSegment
	err := s.list(bucketSegment, segmentPrefix(shard), func(v []byte) error {
		var seg types.JournalSegment
		if err := json.Unmarshal(v, &seg); err != nil {
			return err
		}
		out = append(out, &seg)
		return nil
	})
	return out, err
}

// DeleteSegmentsForShard deletes every segment record keyed by shard,
// used by the shard GC controller's cascading delete.
func (s *Store) DeleteSegmentsForShard(shard types.ShardKey) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSegment)
		c := b.Cursor()
		prefix := segmentPrefix(shard)
		var keys [][]byte
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			keys = append(keys, append([]byte(nil), k...))
		}
		for _, k := range keys {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

// --- User / Topic ---

func (s *Store) PutUser(u *types.User) error {
	return s.put(bucketUser, []byte(fmt.Sprintf("/user/%s/%s", u.ClusterName, u.Username)), u)
}

func (s *Store) GetUser(cluster, username string) (*types.User, error) {
	var u types.User
	ok, err := s.get(bucketUser, []byte(fmt.Sprintf("/user/%s/%s", cluster, username)), &u)
	if err != nil || !ok {
		return nil, err
	}
	return &u, nil
}

func (s *Store) DeleteUser(cluster, username string) error {
	return s.delete(bucketUser, []byte(fmt.Sprintf("/user/%s/%s", cluster, username)))
}

func (s *Store) ListUsers(cluster string) ([]*types.User, error) {
	var out []*types.User
	err := s.list(bucketUser, []byte("/user/"+cluster+"/"), func(v []byte) error {
		var u types.User
		if err := json.Unmarshal(v, &u); err != nil {
			return err
		}
		out = append(out, &u)
		return nil
	})
	return out, err
}

func (s *Store) PutTopic(t *types.Topic) error {
	return s.put(bucketTopic, []byte(fmt.Sprintf("/topic/%s/%s", t.ClusterName, t.TopicName)), t)
}

func (s *Store) GetTopic(cluster, name string) (*types.Topic, error) {
	var t types.Topic
	ok, err := s.get(bucketTopic, []byte(fmt.Sprintf("/topic/%s/%s", cluster, name)), &t)
	if err != nil || !ok {
		return nil, err
	}
	return &t, nil
}

func (s *Store) DeleteTopic(cluster, name string) error {
	return s.delete(bucketTopic, []byte(fmt.Sprintf("/topic/%s/%s", cluster, name)))
}

func (s *Store) ListTopics(cluster string) ([]*types.Topic, error) {
	var out []*types.Topic
	err := s.list(bucketTopic, []byte("/topic/"+cluster+"/"), func(v []byte) error {
		var t types.Topic
		if err := json.Unmarshal(v, &t); err != nil {
			return err
		}
		out = append(out, &t)
		return nil
	})
	return out, err
}

// --- generic helpers ---

func (s *Store) put(bucket, key []byte, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errs.New(errs.Serialization, "store.put", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Put(key, data)
	})
}

func (s *Store) get(bucket, key []byte, v interface{}) (bool, error) {
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucket).Get(key)
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, v)
	})
	if err != nil {
		return false, errs.New(errs.Serialization, "store.get", err)
	}
	return found, nil
}

func (s *Store) delete(bucket, key []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Delete(key)
	})
}

func (s *Store) list(bucket, prefix []byte, fn func(v []byte) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucket).Cursor()
		if prefix == nil {
			for k, v := c.First(); k != nil; k, v = c.Next() {
				if err := fn(v); err != nil {
					return err
				}
			}
			return nil
		}
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			if err := fn(v); err != nil {
				return err
			}
		}
		return nil
	})
}
