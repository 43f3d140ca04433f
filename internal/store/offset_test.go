package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/mqplane/internal/types"
)

func TestStore_OffsetIndex_MissingKeyReadsAsZero(t *testing.T) {
	st := openTestStore(t)
	key := types.SegmentKey{ClusterName: "c1", Namespace: "ns1", ShardName: "s1", SegmentSeq: 1}

	start, err := st.GetStartOffset(key)
	require.NoError(t, err)
	assert.Zero(t, start)

	end, err := st.GetEndOffset(key)
	require.NoError(t, err)
	assert.Zero(t, end)

	pos, err := st.GetPositionOffset(key, 7)
	require.NoError(t, err)
	assert.Zero(t, pos)

	ts, err := st.GetTimestampOffset(key, 1234)
	require.NoError(t, err)
	assert.Zero(t, ts)
}

func TestStore_OffsetIndex_SaveAndGetRoundTrip(t *testing.T) {
	st := openTestStore(t)
	key := types.SegmentKey{ClusterName: "c1", Namespace: "ns1", ShardName: "s1", SegmentSeq: 1}

	require.NoError(t, st.SaveStartOffset(key, 10))
	start, err := st.GetStartOffset(key)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), start)

	require.NoError(t, st.SaveEndOffset(key, 99))
	end, err := st.GetEndOffset(key)
	require.NoError(t, err)
	assert.Equal(t, uint64(99), end)

	require.NoError(t, st.SavePositionOffset(key, 42, 4096))
	pos, err := st.GetPositionOffset(key, 42)
	require.NoError(t, err)
	assert.Equal(t, uint64(4096), pos)

	require.NoError(t, st.SaveTimestampOffset(key, 1_700_000_000_000, 17))
	off, err := st.GetTimestampOffset(key, 1_700_000_000_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(17), off)
}

func TestStore_OffsetIndex_SaveIsIdempotent(t *testing.T) {
	st := openTestStore(t)
	key := types.SegmentKey{ClusterName: "c1", Namespace: "ns1", ShardName: "s1", SegmentSeq: 2}

	require.NoError(t, st.SaveStartOffset(key, 5))
	require.NoError(t, st.SaveStartOffset(key, 5))
	start, err := st.GetStartOffset(key)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), start)
}

func TestStore_OffsetIndex_ScopedBySegmentSeq(t *testing.T) {
	st := openTestStore(t)
	k1 := types.SegmentKey{ClusterName: "c1", Namespace: "ns1", ShardName: "s1", SegmentSeq: 1}
	k2 := types.SegmentKey{ClusterName: "c1", Namespace: "ns1", ShardName: "s1", SegmentSeq: 2}

	require.NoError(t, st.SaveStartOffset(k1, 1))
	require.NoError(t, st.SaveStartOffset(k2, 1000))

	v1, err := st.GetStartOffset(k1)
	require.NoError(t, err)
	v2, err := st.GetStartOffset(k2)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), v1)
	assert.Equal(t, uint64(1000), v2)
}
