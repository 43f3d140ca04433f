package fsm

import (
	"encoding/json"
	"io"
	"testing"

	"github.com/hashicorp/raft"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/mqplane/internal/cache"
	"github.com/cuemby/mqplane/internal/store"
	"github.com/cuemby/mqplane/internal/types"
)

func newTestFSM(t *testing.T) (*FSM, *cache.PlacementCache, *cache.JournalCache) {
	t.Helper()
	st, err := store.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	placement := cache.NewPlacementCache()
	journal := cache.NewJournalCache()
	return New(st, placement, journal), placement, journal
}

func applyCmd(t *testing.T, f *FSM, op string, data interface{}) interface{} {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	cmd := Command{Op: op, Data: raw}
	cmdBytes, err := json.Marshal(cmd)
	require.NoError(t, err)
	return f.Apply(&raft.Log{Data: cmdBytes})
}

func TestFSM_AddClusterUpdatesStoreAndCache(t *testing.T) {
	f, placement, _ := newTestFSM(t)

	result := applyCmd(t, f, OpAddCluster, types.ClusterInfo{ClusterName: "c1"})
	assert.Nil(t, result)

	_, ok := placement.GetCluster("c1")
	assert.True(t, ok)
}

func TestFSM_AddShardWithPrepareDeleteQueuesForGC(t *testing.T) {
	f, _, journal := newTestFSM(t)
	key := types.ShardKey{ClusterName: "c1", ShardName: "s1"}

	result := applyCmd(t, f, OpAddShard, types.JournalShard{ShardKey: key, Status: types.ShardStatusPrepareDelete})
	assert.Nil(t, result)

	assert.Equal(t, 1, journal.WaitDeleteShardCount())
	sh, ok := journal.GetShard(key)
	require.True(t, ok)
	assert.Equal(t, types.ShardStatusPrepareDelete, sh.Status)
}

func TestFSM_RemoveShardDequeuesAndClearsCache(t *testing.T) {
	f, _, journal := newTestFSM(t)
	key := types.ShardKey{ClusterName: "c1", ShardName: "s1"}

	applyCmd(t, f, OpAddShard, types.JournalShard{ShardKey: key, Status: types.ShardStatusPrepareDelete})
	result := applyCmd(t, f, OpRemoveShard, key)
	assert.Nil(t, result)

	_, ok := journal.GetShard(key)
	assert.False(t, ok)
	assert.Equal(t, 0, journal.WaitDeleteShardCount())
}

func TestFSM_UnknownOpReturnsError(t *testing.T) {
	f, _, _ := newTestFSM(t)
	result := f.Apply(&raft.Log{Data: []byte(`{"op":"bogus","data":null}`)})
	assert.Error(t, result.(error))
}

func TestFSM_SnapshotAndRestoreRoundTrip(t *testing.T) {
	f, placement, journal := newTestFSM(t)
	applyCmd(t, f, OpAddCluster, types.ClusterInfo{ClusterName: "c1"})
	applyCmd(t, f, OpAddShard, types.JournalShard{ShardKey: types.ShardKey{ClusterName: "c1", ShardName: "s1"}})

	snap, err := f.Snapshot()
	require.NoError(t, err)

	f2, placement2, journal2 := newTestFSM(t)
	sink := &memSink{}
	require.NoError(t, snap.(*Snapshot).Persist(sink))

	require.NoError(t, f2.Restore(sink))

	_, ok := placement2.GetCluster("c1")
	assert.True(t, ok)
	_, ok = journal2.GetShard(types.ShardKey{ClusterName: "c1", ShardName: "s1"})
	assert.True(t, ok)

	_ = placement
	_ = journal
}

func TestFSM_RestoreRequeuesPrepareDeleteEntries(t *testing.T) {
	f, _, journal := newTestFSM(t)
	shardKey := types.ShardKey{ClusterName: "c1", ShardName: "s1"}
	segKey := types.SegmentKey{ClusterName: "c1", ShardName: "s1", SegmentSeq: 1}

	applyCmd(t, f, OpAddShard, types.JournalShard{ShardKey: shardKey, Status: types.ShardStatusPrepareDelete})
	applyCmd(t, f, OpAddSegment, types.JournalSegment{SegmentKey: segKey, Status: types.SegmentStatusPrepareDelete})
	require.Equal(t, 1, journal.WaitDeleteShardCount())
	require.Equal(t, 1, journal.WaitDeleteSegmentCount())

	snap, err := f.Snapshot()
	require.NoError(t, err)
	sink := &memSink{}
	require.NoError(t, snap.(*Snapshot).Persist(sink))

	f2, _, journal2 := newTestFSM(t)
	require.NoError(t, f2.Restore(sink))

	assert.Equal(t, []types.ShardKey{shardKey}, journal2.WaitDeleteShardList())
	assert.Equal(t, []types.SegmentKey{segKey}, journal2.WaitDeleteSegmentList())
}

type memSink struct {
	buf []byte
}

func (m *memSink) Write(p []byte) (int, error) {
	m.buf = append(m.buf, p...)
	return len(p), nil
}
func (m *memSink) Close() error  { return nil }
func (m *memSink) ID() string    { return "test-snapshot" }
func (m *memSink) Cancel() error { return nil }
func (m *memSink) Read(p []byte) (int, error) {
	if len(m.buf) == 0 {
		return 0, io.EOF
	}
	n := copy(p, m.buf)
	m.buf = m.buf[n:]
	return n, nil
}
