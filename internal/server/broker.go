package server

import (
	"context"

	"github.com/cuemby/mqplane/internal/cache"
	"github.com/cuemby/mqplane/internal/errs"
	"github.com/cuemby/mqplane/internal/rpc/wire"
)

// BrokerServer is the mqtt-broker process's own Invoke handler: session
// bookkeeping, which is connection-scoped broker-local state rather
// than an authoritative entity class, plus the UpdateCache receiver
// that keeps this process's BrokerCache in sync with the placement
// center's cluster/user/topic writes.
type BrokerServer struct {
	broker *cache.BrokerCache
}

// NewBrokerServer returns a BrokerServer backed by broker.
func NewBrokerServer(broker *cache.BrokerCache) *BrokerServer {
	return &BrokerServer{broker: broker}
}

func (s *BrokerServer) Invoke(ctx context.Context, req *wire.Envelope) (*wire.Envelope, error) {
	switch req.Interface {
	case wire.InterfaceSaveSession:
		return s.saveSession(req)
	case wire.InterfaceDeleteSession:
		return s.deleteSession(req)
	case wire.InterfaceUpdateCache:
		return s.updateCache(req)
	default:
		return errEnvelope(errs.InvariantViolation, "unknown mqtt-broker interface: "+req.Interface)
	}
}

func (s *BrokerServer) saveSession(req *wire.Envelope) (*wire.Envelope, error) {
	var in wire.SaveSessionRequest
	if err := req.DecodeData(&in); err != nil {
		return errEnvelope(errs.Serialization, err.Error())
	}
	s.broker.AddSession(&in.Session)
	return replyEnvelope(&wire.SaveSessionReply{})
}

func (s *BrokerServer) deleteSession(req *wire.Envelope) (*wire.Envelope, error) {
	var in wire.DeleteSessionRequest
	if err := req.DecodeData(&in); err != nil {
		return errEnvelope(errs.Serialization, err.Error())
	}
	s.broker.RemoveSession(in.ClusterName, in.ClientID)
	return replyEnvelope(&wire.DeleteSessionReply{})
}

func (s *BrokerServer) updateCache(req *wire.Envelope) (*wire.Envelope, error) {
	var in wire.UpdateCacheRequest
	if err := req.DecodeData(&in); err != nil {
		return errEnvelope(errs.Serialization, err.Error())
	}
	applyBrokerUpdate(s.broker, &in)
	return replyEnvelope(&wire.UpdateCacheReply{})
}
