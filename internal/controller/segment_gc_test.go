package controller

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/mqplane/internal/cache"
	"github.com/cuemby/mqplane/internal/fsm"
	"github.com/cuemby/mqplane/internal/rpc"
	"github.com/cuemby/mqplane/internal/types"
)

func TestSegmentGCController_TickSkipsWhenNotLeader(t *testing.T) {
	journal := cache.NewJournalCache()
	placement := cache.NewPlacementCache()
	applier := &fakeApplier{}
	client := rpc.NewClient(rpc.NewPool(), rpc.Config{})

	key := types.SegmentKey{ClusterName: "c1", ShardName: "s1", SegmentSeq: 1}
	journal.AddSegment(&types.JournalSegment{SegmentKey: key, Status: types.SegmentStatusPrepareDelete})
	journal.EnqueueSegmentDelete(key)

	c := NewSegmentGCController(journal, placement, applier, client, time.Hour)
	c.tick()

	assert.Empty(t, applier.applied)
}

func TestSegmentGCController_ReconcileOneMarksDeletingThenStopsWithNoReplicas(t *testing.T) {
	journal := cache.NewJournalCache()
	placement := cache.NewPlacementCache()
	applier := &fakeApplier{}
	applier.leader.Store(true)
	client := rpc.NewClient(rpc.NewPool(), rpc.Config{})

	shardKey := types.ShardKey{ClusterName: "c1", ShardName: "s1"}
	journal.AddShard(&types.JournalShard{ShardKey: shardKey, StartSegmentSeq: 0})

	segKey := types.SegmentKey{ClusterName: "c1", ShardName: "s1", SegmentSeq: 1}
	journal.AddSegment(&types.JournalSegment{SegmentKey: segKey, Status: types.SegmentStatusPrepareDelete})
	journal.EnqueueSegmentDelete(segKey)

	c := NewSegmentGCController(journal, placement, applier, client, time.Hour)
	c.tick()

	require.Len(t, applier.applied, 1, "marks Deleting even with no replica placements registered")
	assert.Equal(t, fsm.OpUpdateSegment, applier.applied[0].Op)
	assert.Equal(t, 1, journal.WaitDeleteSegmentCount(), "still queued, nothing confirmed deletion")
}

func TestSegmentGCController_ReconcileOneSkipsSegmentWithoutShard(t *testing.T) {
	journal := cache.NewJournalCache()
	placement := cache.NewPlacementCache()
	applier := &fakeApplier{}
	applier.leader.Store(true)
	client := rpc.NewClient(rpc.NewPool(), rpc.Config{})

	segKey := types.SegmentKey{ClusterName: "c1", ShardName: "orphan", SegmentSeq: 1}
	journal.AddSegment(&types.JournalSegment{SegmentKey: segKey, Status: types.SegmentStatusPrepareDelete})
	journal.EnqueueSegmentDelete(segKey)

	c := NewSegmentGCController(journal, placement, applier, client, time.Hour)
	c.tick()

	assert.Empty(t, applier.applied, "a segment whose shard no longer exists is left alone")
}

func TestSegmentGCController_StartStopIsIdempotent(t *testing.T) {
	journal := cache.NewJournalCache()
	placement := cache.NewPlacementCache()
	applier := &fakeApplier{}
	client := rpc.NewClient(rpc.NewPool(), rpc.Config{})

	c := NewSegmentGCController(journal, placement, applier, client, time.Hour)
	c.Start()
	c.Start()
	c.Stop()
	c.Stop()
}
