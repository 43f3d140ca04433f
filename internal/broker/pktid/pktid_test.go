package pktid

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	ids map[string]map[uint16]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{ids: map[string]map[uint16]bool{}}
}

func (f *fakeStore) ContainsPktID(cluster, clientID string, pktID uint16) bool {
	return f.ids[clientID][pktID]
}

func (f *fakeStore) MarkPktID(cluster, clientID string, pktID uint16) {
	if f.ids[clientID] == nil {
		f.ids[clientID] = map[uint16]bool{}
	}
	f.ids[clientID][pktID] = true
}

func (f *fakeStore) ReleasePktID(cluster, clientID string, pktID uint16) {
	delete(f.ids[clientID], pktID)
}

func (f *fakeStore) PktIDCount(cluster, clientID string) int {
	return len(f.ids[clientID])
}

func TestAllocator_AcquireReturnsLowestFree(t *testing.T) {
	store := newFakeStore()
	a := New(store, "c1")

	id, err := a.Acquire(context.Background(), "client-a")
	require.NoError(t, err)
	assert.Equal(t, uint16(1), id)

	id2, err := a.Acquire(context.Background(), "client-a")
	require.NoError(t, err)
	assert.Equal(t, uint16(2), id2)
}

func TestAllocator_ReleaseFreesID(t *testing.T) {
	store := newFakeStore()
	a := New(store, "c1")

	id, err := a.Acquire(context.Background(), "client-a")
	require.NoError(t, err)
	assert.True(t, a.Contains("client-a", id))

	a.Release("client-a", id)
	assert.False(t, a.Contains("client-a", id))
	assert.Equal(t, 0, a.Count("client-a"))
}

func TestAllocator_ScopedPerClient(t *testing.T) {
	store := newFakeStore()
	a := New(store, "c1")

	idA, err := a.Acquire(context.Background(), "client-a")
	require.NoError(t, err)
	idB, err := a.Acquire(context.Background(), "client-b")
	require.NoError(t, err)

	assert.Equal(t, uint16(1), idA)
	assert.Equal(t, uint16(1), idB, "each clientID has its own id space")
}

func TestAllocator_AcquireRespectsContextCancellation(t *testing.T) {
	store := newFakeStore()
	a := New(store, "c1")

	for id := minPacketID; id <= maxPacketID; id++ {
		store.MarkPktID("c1", "client-a", id)
		if id == maxPacketID {
			break
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := a.Acquire(ctx, "client-a")
	require.Error(t, err)
}
