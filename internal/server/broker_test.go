package server

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/mqplane/internal/cache"
	"github.com/cuemby/mqplane/internal/rpc/wire"
	"github.com/cuemby/mqplane/internal/types"
)

func TestBrokerServer_SaveAndDeleteSession(t *testing.T) {
	brokerCache := cache.NewBrokerCache()
	s := NewBrokerServer(brokerCache)

	saveReq := envelopeFor(t, wire.ServiceBroker, wire.InterfaceSaveSession, &wire.SaveSessionRequest{
		Session: types.Session{ClusterName: "c1", ClientID: "client-1"},
	})
	_, err := s.Invoke(context.Background(), saveReq)
	require.NoError(t, err)

	_, ok := brokerCache.GetSession("c1", "client-1")
	require.True(t, ok)

	deleteReq := envelopeFor(t, wire.ServiceBroker, wire.InterfaceDeleteSession, &wire.DeleteSessionRequest{
		ClusterName: "c1", ClientID: "client-1",
	})
	_, err = s.Invoke(context.Background(), deleteReq)
	require.NoError(t, err)

	_, ok = brokerCache.GetSession("c1", "client-1")
	assert.False(t, ok)
}

func TestBrokerServer_UpdateCache_AddsUser(t *testing.T) {
	brokerCache := cache.NewBrokerCache()
	s := NewBrokerServer(brokerCache)

	req := envelopeFor(t, wire.ServiceBroker, wire.InterfaceUpdateCache, updateCacheAddUser(t, "c1", "alice"))
	_, err := s.Invoke(context.Background(), req)
	require.NoError(t, err)

	u, ok := brokerCache.GetUser("c1", "alice")
	require.True(t, ok)
	assert.Equal(t, "alice", u.Username)
}

func TestBrokerServer_UnknownInterface(t *testing.T) {
	s := NewBrokerServer(cache.NewBrokerCache())
	req := &wire.Envelope{Service: wire.ServiceBroker, Interface: "Bogus"}
	reply, err := s.Invoke(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, reply.Error)
}
