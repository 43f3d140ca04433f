package server

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/mqplane/internal/cache"
	"github.com/cuemby/mqplane/internal/errs"
	"github.com/cuemby/mqplane/internal/fsm"
	"github.com/cuemby/mqplane/internal/notify"
	"github.com/cuemby/mqplane/internal/rpc"
	"github.com/cuemby/mqplane/internal/rpc/wire"
	"github.com/cuemby/mqplane/internal/types"
)

// fakeRaftNode implements RaftNode without bootstrapping a real raft
// group: applied commands are recorded in-process so tests can assert
// on what a handler proposed.
type fakeRaftNode struct {
	leader     bool
	leaderAddr string
	applied    []fsm.Command
	applyErr   error
}

func (f *fakeRaftNode) IsLeader() bool      { return f.leader }
func (f *fakeRaftNode) LeaderAddr() string  { return f.leaderAddr }
func (f *fakeRaftNode) Apply(cmd fsm.Command) error {
	if f.applyErr != nil {
		return f.applyErr
	}
	f.applied = append(f.applied, cmd)
	return nil
}

func newTestServer(leader bool) (*PlacementServer, *fakeRaftNode, *cache.PlacementCache, *cache.JournalCache) {
	node := &fakeRaftNode{leader: leader, leaderAddr: "127.0.0.1:7380"}
	placementCache := cache.NewPlacementCache()
	journalCache := cache.NewJournalCache()
	dispatch := notify.NewDispatcher(rpc.NewClient(rpc.NewPool(), rpc.Config{}), placementCache)
	return NewPlacementServer(node, placementCache, journalCache, dispatch), node, placementCache, journalCache
}

func envelopeFor(t *testing.T, service, iface string, body interface{}) *wire.Envelope {
	t.Helper()
	env := &wire.Envelope{Service: service, Interface: iface}
	require.NoError(t, env.EncodeData(body))
	return env
}

func TestInvoke_RegisterNode_NotLeader(t *testing.T) {
	s, _, _, _ := newTestServer(false)
	req := envelopeFor(t, wire.ServicePlacement, wire.InterfaceRegisterNode, &wire.RegisterNodeRequest{
		Node: types.BrokerNode{NodeID: 1, ClusterName: "c1"},
	})

	reply, err := s.Invoke(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, reply.Error)
	assert.Equal(t, string(errs.AppNotLeader), reply.Error.Kind)
}

func TestInvoke_RegisterNode_AppliesAndNotifies(t *testing.T) {
	s, node, placementCache, _ := newTestServer(true)
	placementCache.AddCluster(&types.ClusterInfo{ClusterName: "c1", ClusterType: types.ClusterTypeMqttBrokerServer})

	req := envelopeFor(t, wire.ServicePlacement, wire.InterfaceRegisterNode, &wire.RegisterNodeRequest{
		Node: types.BrokerNode{NodeID: 1, ClusterName: "c1", NodeInnerAddr: "10.0.0.1:9000"},
	})

	reply, err := s.Invoke(context.Background(), req)
	require.NoError(t, err)
	require.Nil(t, reply.Error)
	require.Len(t, node.applied, 1)
	assert.Equal(t, fsm.OpAddNode, node.applied[0].Op)
}

func TestInvoke_Heartbeat_DoesNotRequireLeader(t *testing.T) {
	s, node, placementCache, _ := newTestServer(false)
	placementCache.AddBrokerNode(&types.BrokerNode{NodeID: 7, ClusterName: "c1"})

	req := envelopeFor(t, wire.ServicePlacement, wire.InterfaceHeartbeat, &wire.HeartbeatRequest{
		ClusterName: "c1", NodeID: 7,
	})

	reply, err := s.Invoke(context.Background(), req)
	require.NoError(t, err)
	require.Nil(t, reply.Error)
	assert.Empty(t, node.applied, "heartbeat is cache-only, never goes through raft")
}

func TestInvoke_NodeList(t *testing.T) {
	s, _, placementCache, _ := newTestServer(true)
	placementCache.AddBrokerNode(&types.BrokerNode{NodeID: 1, ClusterName: "c1"})
	placementCache.AddBrokerNode(&types.BrokerNode{NodeID: 2, ClusterName: "c1"})

	req := envelopeFor(t, wire.ServicePlacement, wire.InterfaceNodeList, &wire.NodeListRequest{ClusterName: "c1"})
	reply, err := s.Invoke(context.Background(), req)
	require.NoError(t, err)
	require.Nil(t, reply.Error)

	var out wire.NodeListReply
	require.NoError(t, reply.DecodeData(&out))
	assert.Len(t, out.Nodes, 2)
}

func TestInvoke_DeleteShard_MarksPrepareDeleteInsteadOfErasing(t *testing.T) {
	s, node, _, journalCache := newTestServer(true)
	key := types.ShardKey{ClusterName: "c1", Namespace: "ns", ShardName: "sh1"}
	journalCache.AddShard(&types.JournalShard{ShardKey: key, Status: types.ShardStatusRunning})

	req := envelopeFor(t, wire.ServiceJournal, wire.InterfaceDeleteShard, &wire.DeleteShardRequest{Key: key})
	reply, err := s.Invoke(context.Background(), req)
	require.NoError(t, err)
	require.Nil(t, reply.Error)

	require.Len(t, node.applied, 1)
	assert.Equal(t, fsm.OpUpdateShard, node.applied[0].Op)

	var updated types.JournalShard
	require.NoError(t, json.Unmarshal(node.applied[0].Data, &updated))
	assert.Equal(t, types.ShardStatusPrepareDelete, updated.Status)
}

func TestInvoke_DeleteSegment_RefusesActiveSegment(t *testing.T) {
	s, node, _, journalCache := newTestServer(true)
	key := types.SegmentKey{ClusterName: "c1", Namespace: "ns", ShardName: "sh1", SegmentSeq: 3}
	journalCache.AddSegment(&types.JournalSegment{SegmentKey: key, Status: types.SegmentStatusActive})

	req := envelopeFor(t, wire.ServiceJournal, wire.InterfaceDeleteSegment, &wire.DeleteSegmentRequest{Key: key})
	reply, err := s.Invoke(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, reply.Error)
	assert.Equal(t, string(errs.InvariantViolation), reply.Error.Kind)
	assert.Empty(t, node.applied)
}

func TestInvoke_DeleteSegment_AllowsSealedSegment(t *testing.T) {
	s, node, _, journalCache := newTestServer(true)
	key := types.SegmentKey{ClusterName: "c1", Namespace: "ns", ShardName: "sh1", SegmentSeq: 3}
	journalCache.AddSegment(&types.JournalSegment{SegmentKey: key, Status: types.SegmentStatusSealUp})

	req := envelopeFor(t, wire.ServiceJournal, wire.InterfaceDeleteSegment, &wire.DeleteSegmentRequest{Key: key})
	reply, err := s.Invoke(context.Background(), req)
	require.NoError(t, err)
	require.Nil(t, reply.Error)
	require.Len(t, node.applied, 1)
}

func TestInvoke_CreateSegment_RejectsUnknownShard(t *testing.T) {
	s, node, _, _ := newTestServer(true)
	seg := types.JournalSegment{SegmentKey: types.SegmentKey{ClusterName: "c1", Namespace: "ns", ShardName: "sh1", SegmentSeq: 1}}

	req := envelopeFor(t, wire.ServiceJournal, wire.InterfaceCreateSegment, &wire.CreateSegmentRequest{Segment: seg})
	reply, err := s.Invoke(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, reply.Error)
	assert.Equal(t, string(errs.InvariantViolation), reply.Error.Kind)
	assert.Empty(t, node.applied)
}

func TestInvoke_CreateSegment_SealsPreviousActiveAndAdvancesPointer(t *testing.T) {
	s, node, _, journalCache := newTestServer(true)
	shardKey := types.ShardKey{ClusterName: "c1", Namespace: "ns", ShardName: "sh1"}
	journalCache.AddShard(&types.JournalShard{ShardKey: shardKey, ActiveSegmentSeq: 1})
	journalCache.AddSegment(&types.JournalSegment{SegmentKey: types.SegmentKey{ClusterName: "c1", Namespace: "ns", ShardName: "sh1", SegmentSeq: 1}, Status: types.SegmentStatusActive})

	newSeg := types.JournalSegment{SegmentKey: types.SegmentKey{ClusterName: "c1", Namespace: "ns", ShardName: "sh1", SegmentSeq: 2}, Status: types.SegmentStatusActive}
	req := envelopeFor(t, wire.ServiceJournal, wire.InterfaceCreateSegment, &wire.CreateSegmentRequest{Segment: newSeg})
	reply, err := s.Invoke(context.Background(), req)
	require.NoError(t, err)
	require.Nil(t, reply.Error)

	require.Len(t, node.applied, 3)
	assert.Equal(t, fsm.OpAddSegment, node.applied[0].Op)

	var sealed types.JournalSegment
	require.NoError(t, json.Unmarshal(node.applied[1].Data, &sealed))
	assert.Equal(t, fsm.OpUpdateSegment, node.applied[1].Op)
	assert.Equal(t, uint32(1), sealed.SegmentSeq)
	assert.Equal(t, types.SegmentStatusPrepareSealUp, sealed.Status)

	var updatedShard types.JournalShard
	require.NoError(t, json.Unmarshal(node.applied[2].Data, &updatedShard))
	assert.Equal(t, fsm.OpUpdateShard, node.applied[2].Op)
	assert.Equal(t, uint32(2), updatedShard.ActiveSegmentSeq)
}

func TestInvoke_UpdateSegmentStatus_ToActiveSealsPrevious(t *testing.T) {
	s, node, _, journalCache := newTestServer(true)
	shardKey := types.ShardKey{ClusterName: "c1", Namespace: "ns", ShardName: "sh1"}
	journalCache.AddShard(&types.JournalShard{ShardKey: shardKey, ActiveSegmentSeq: 1})
	journalCache.AddSegment(&types.JournalSegment{SegmentKey: types.SegmentKey{ClusterName: "c1", Namespace: "ns", ShardName: "sh1", SegmentSeq: 1}, Status: types.SegmentStatusActive})
	journalCache.AddSegment(&types.JournalSegment{SegmentKey: types.SegmentKey{ClusterName: "c1", Namespace: "ns", ShardName: "sh1", SegmentSeq: 2}, Status: types.SegmentStatusCreate})

	req := envelopeFor(t, wire.ServiceJournal, wire.InterfaceUpdateSegmentStatus, &wire.UpdateSegmentStatusRequest{
		Key:    types.SegmentKey{ClusterName: "c1", Namespace: "ns", ShardName: "sh1", SegmentSeq: 2},
		Status: types.SegmentStatusActive,
	})
	reply, err := s.Invoke(context.Background(), req)
	require.NoError(t, err)
	require.Nil(t, reply.Error)

	require.Len(t, node.applied, 3)

	var sealed types.JournalSegment
	require.NoError(t, json.Unmarshal(node.applied[1].Data, &sealed))
	assert.Equal(t, uint32(1), sealed.SegmentSeq)
	assert.Equal(t, types.SegmentStatusPrepareSealUp, sealed.Status)

	var updatedShard types.JournalShard
	require.NoError(t, json.Unmarshal(node.applied[2].Data, &updatedShard))
	assert.Equal(t, uint32(2), updatedShard.ActiveSegmentSeq)
}

func TestInvoke_UnknownService(t *testing.T) {
	s, _, _, _ := newTestServer(true)
	req := &wire.Envelope{Service: "bogus", Interface: "whatever"}
	reply, err := s.Invoke(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, reply.Error)
	assert.Equal(t, string(errs.InvariantViolation), reply.Error.Kind)
}

func TestServiceForClusterType(t *testing.T) {
	tests := []struct {
		name string
		ct   types.ClusterType
		want string
	}{
		{"journal server routes to journal service", types.ClusterTypeJournalServer, wire.ServiceJournal},
		{"mqtt broker routes to broker service", types.ClusterTypeMqttBrokerServer, wire.ServiceBroker},
		{"amqp broker routes to broker service", types.ClusterTypeAmqpBrokerServer, wire.ServiceBroker},
		{"placement center routes to broker service", types.ClusterTypePlacementCenter, wire.ServiceBroker},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, serviceForClusterType(tt.ct))
		})
	}
}
