package server

import (
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

// updateCacheAddUser builds an UpdateCacheRequest carrying a UserAdd
// payload, shared by broker_test.go.
func updateCacheAddUser(t *testing.T, cluster, username string) *wire.UpdateCacheRequest {
	t.Helper()
	payload, err := json.Marshal(notify.UserAdd{User: types.User{ClusterName: cluster, Username: username}})
	require.NoError(t, err)
	return &wire.UpdateCacheRequest{ResourceType: wire.ResourceUser, Action: wire.ActionAdd, Payload: payload}
}

func TestApplyJournalUpdate_ShardDelete(t *testing.T) {
	journalCache := cache.NewJournalCache()
	key := types.ShardKey{ClusterName: "c1", Namespace: "ns", ShardName: "sh1"}
	journalCache.AddShard(&types.JournalShard{ShardKey: key, Status: types.ShardStatusDeleting})

	payload, err := json.Marshal(notify.ShardDelete{Key: key})
	require.NoError(t, err)
	applyJournalUpdate(journalCache, &wire.UpdateCacheRequest{
		ResourceType: wire.ResourceShard,
		Action:       wire.ActionDelete,
		Payload:      payload,
	}, nil)

	_, ok := journalCache.GetShard(key)
	require.False(t, ok)
}

func TestApplyJournalUpdate_SegmentAddPersistsOffsets(t *testing.T) {
	journalCache := cache.NewJournalCache()
	idx, err := store.Open(t.TempDir())
	require.NoError(t, err)
	defer idx.Close()

	segKey := types.SegmentKey{ClusterName: "c1", Namespace: "ns", ShardName: "sh1", SegmentSeq: 1}
	payload, err := json.Marshal(notify.SegmentAdd{Segment: types.JournalSegment{SegmentKey: segKey, FirstOffset: 10, LastOffset: 99}})
	require.NoError(t, err)

	applyJournalUpdate(journalCache, &wire.UpdateCacheRequest{
		ResourceType: wire.ResourceSegment,
		Action:       wire.ActionAdd,
		Payload:      payload,
	}, idx)

	start, err := idx.GetStartOffset(segKey)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), start)

	end, err := idx.GetEndOffset(segKey)
	require.NoError(t, err)
	assert.Equal(t, uint64(99), end)
}

func TestApplyBrokerUpdate_TopicDelete(t *testing.T) {
	brokerCache := cache.NewBrokerCache()
	brokerCache.AddTopic(&types.Topic{ClusterName: "c1", TopicName: "t1", TopicID: "id-1"})

	payload, err := json.Marshal(notify.TopicDelete{ClusterName: "c1", TopicName: "t1"})
	require.NoError(t, err)
	applyBrokerUpdate(brokerCache, &wire.UpdateCacheRequest{
		ResourceType: wire.ResourceTopic,
		Action:       wire.ActionDelete,
		Payload:      payload,
	})

	_, ok := brokerCache.GetTopicByName("c1", "t1")
	require.False(t, ok)
}

func TestApplyBrokerUpdate_MalformedPayloadDropped(t *testing.T) {
	brokerCache := cache.NewBrokerCache()
	applyBrokerUpdate(brokerCache, &wire.UpdateCacheRequest{
		ResourceType: wire.ResourceUser,
		Action:       wire.ActionAdd,
		Payload:      []byte("not json"),
	})

	_, ok := brokerCache.GetUser("c1", "alice")
	require.False(t, ok)
}
