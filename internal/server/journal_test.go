package server

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/mqplane/internal/cache"
	"github.com/cuemby/mqplane/internal/notify"
	"github.com/cuemby/mqplane/internal/rpc/wire"
	"github.com/cuemby/mqplane/internal/store"
	"github.com/cuemby/mqplane/internal/types"
)

func TestJournalFileServer_DeleteShardFile_TracksCompletion(t *testing.T) {
	journalCache := cache.NewJournalCache()
	s := NewJournalFileServer(journalCache, nil)
	key := types.ShardKey{ClusterName: "c1", Namespace: "ns", ShardName: "sh1"}

	statusReq := envelopeFor(t, wire.ServiceJournal, wire.InterfaceGetShardDeleteStatus, &wire.GetShardDeleteStatusRequest{Key: key})
	reply, err := s.Invoke(context.Background(), statusReq)
	require.NoError(t, err)
	var before wire.GetShardDeleteStatusReply
	require.NoError(t, reply.DecodeData(&before))
	assert.False(t, before.Status)

	deleteReq := envelopeFor(t, wire.ServiceJournal, wire.InterfaceDeleteShardFile, &wire.DeleteShardFileRequest{Key: key})
	_, err = s.Invoke(context.Background(), deleteReq)
	require.NoError(t, err)

	reply, err = s.Invoke(context.Background(), statusReq)
	require.NoError(t, err)
	var after wire.GetShardDeleteStatusReply
	require.NoError(t, reply.DecodeData(&after))
	assert.True(t, after.Status)
}

func TestJournalFileServer_DeleteSegmentFile_TracksCompletion(t *testing.T) {
	journalCache := cache.NewJournalCache()
	s := NewJournalFileServer(journalCache, nil)
	key := types.SegmentKey{ClusterName: "c1", Namespace: "ns", ShardName: "sh1", SegmentSeq: 4}

	deleteReq := envelopeFor(t, wire.ServiceJournal, wire.InterfaceDeleteSegmentFile, &wire.DeleteSegmentFileRequest{Key: key})
	_, err := s.Invoke(context.Background(), deleteReq)
	require.NoError(t, err)

	statusReq := envelopeFor(t, wire.ServiceJournal, wire.InterfaceGetSegmentDeleteStatus, &wire.GetSegmentDeleteStatusRequest{Key: key})
	reply, err := s.Invoke(context.Background(), statusReq)
	require.NoError(t, err)
	var status wire.GetSegmentDeleteStatusReply
	require.NoError(t, reply.DecodeData(&status))
	assert.True(t, status.Status)
}

func TestJournalFileServer_UpdateCache_AddsShard(t *testing.T) {
	journalCache := cache.NewJournalCache()
	s := NewJournalFileServer(journalCache, nil)
	key := types.ShardKey{ClusterName: "c1", Namespace: "ns", ShardName: "sh1"}

	payload, err := json.Marshal(notify.ShardAdd{Shard: types.JournalShard{ShardKey: key, Status: types.ShardStatusRunning}})
	require.NoError(t, err)
	req := envelopeFor(t, wire.ServiceJournal, wire.InterfaceUpdateCache, &wire.UpdateCacheRequest{
		ResourceType: wire.ResourceShard,
		Action:       wire.ActionAdd,
		Payload:      payload,
	})

	_, err = s.Invoke(context.Background(), req)
	require.NoError(t, err)

	sh, ok := journalCache.GetShard(key)
	require.True(t, ok)
	assert.Equal(t, key, sh.ShardKey)
}

func TestJournalFileServer_GetSegmentOffsets_NoIndexReturnsZero(t *testing.T) {
	s := NewJournalFileServer(cache.NewJournalCache(), nil)
	key := types.SegmentKey{ClusterName: "c1", Namespace: "ns", ShardName: "sh1", SegmentSeq: 1}

	req := envelopeFor(t, wire.ServiceJournal, wire.InterfaceGetSegmentOffsets, &wire.GetSegmentOffsetsRequest{Key: key})
	reply, err := s.Invoke(context.Background(), req)
	require.NoError(t, err)
	require.Nil(t, reply.Error)

	var out wire.GetSegmentOffsetsReply
	require.NoError(t, reply.DecodeData(&out))
	assert.Zero(t, out.StartOffset)
	assert.Zero(t, out.EndOffset)
}

func TestJournalFileServer_UpdateCache_PersistsSegmentOffsetsAndGetSegmentOffsetsReadsThemBack(t *testing.T) {
	idx, err := store.Open(t.TempDir())
	require.NoError(t, err)
	defer idx.Close()
	journalCache := cache.NewJournalCache()
	s := NewJournalFileServer(journalCache, idx)
	key := types.SegmentKey{ClusterName: "c1", Namespace: "ns", ShardName: "sh1", SegmentSeq: 1}

	payload, err := json.Marshal(notify.SegmentAdd{Segment: types.JournalSegment{SegmentKey: key, FirstOffset: 5, LastOffset: 42}})
	require.NoError(t, err)
	updateReq := envelopeFor(t, wire.ServiceJournal, wire.InterfaceUpdateCache, &wire.UpdateCacheRequest{
		ResourceType: wire.ResourceSegment,
		Action:       wire.ActionAdd,
		Payload:      payload,
	})
	_, err = s.Invoke(context.Background(), updateReq)
	require.NoError(t, err)

	offsetsReq := envelopeFor(t, wire.ServiceJournal, wire.InterfaceGetSegmentOffsets, &wire.GetSegmentOffsetsRequest{Key: key})
	reply, err := s.Invoke(context.Background(), offsetsReq)
	require.NoError(t, err)
	require.Nil(t, reply.Error)

	var out wire.GetSegmentOffsetsReply
	require.NoError(t, reply.DecodeData(&out))
	assert.Equal(t, uint64(5), out.StartOffset)
	assert.Equal(t, uint64(42), out.EndOffset)
}

func TestJournalFileServer_UnknownInterface(t *testing.T) {
	s := NewJournalFileServer(cache.NewJournalCache(), nil)
	req := &wire.Envelope{Service: wire.ServiceJournal, Interface: "Bogus"}
	reply, err := s.Invoke(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, reply.Error)
}
