// Package server implements the three components' wire.InvokeServer
// handlers: the placement center's single-writer Invoke (every raft
// proposal for every entity class lands here, since it is the only
// process that hosts the authoritative bbolt stores), and the
// journal-server/mqtt-broker's much smaller local-bookkeeping Invoke
// servers.
//
// Grounded on the teacher's pkg/manager/manager.go request-handling
// methods (each a thin validate-then-Apply-then-respond wrapper), now
// generalized to dispatch on an Envelope's Service/Interface pair
// instead of being one method per gRPC RPC.
package server

import (
	"context"
	"encoding/json"

	"github.com/cuemby/mqplane/internal/cache"
	"github.com/cuemby/mqplane/internal/errs"
	"github.com/cuemby/mqplane/internal/fsm"
	"github.com/cuemby/mqplane/internal/notify"
	"github.com/cuemby/mqplane/internal/rpc/wire"
	"github.com/cuemby/mqplane/internal/types"
)

// RaftNode is the subset of *placement.Node a PlacementServer needs:
// leadership checks, the current leader's address for NotLeader
// replies, and command submission. Narrowed to an interface so the
// Invoke handlers can be exercised against a fake in tests without
// bootstrapping a real raft group.
type RaftNode interface {
	IsLeader() bool
	LeaderAddr() string
	Apply(cmd fsm.Command) error
}

// PlacementServer is the placement center's Invoke handler. It is the
// only process in the system that proposes raft commands: node
// membership, journal shard/segment metadata and MQTT users/topics are
// applied here and then fanned out to subscribers via notify.Dispatcher.
// MQTT session records are not handled here: SaveSession/DeleteSession
// are answered by each mqtt-broker's own BrokerServer.
type PlacementServer struct {
	node      RaftNode
	placement *cache.PlacementCache
	journal   *cache.JournalCache
	dispatch  *notify.Dispatcher
}

// NewPlacementServer returns a PlacementServer wired to node's raft
// handle and the caches the FSM keeps in sync with it.
func NewPlacementServer(node RaftNode, placementCache *cache.PlacementCache, journalCache *cache.JournalCache, dispatch *notify.Dispatcher) *PlacementServer {
	return &PlacementServer{node: node, placement: placementCache, journal: journalCache, dispatch: dispatch}
}

// Invoke dispatches an Envelope to the handler for its Service/Interface
// pair. Every branch here either lands on placement, journal, or broker
// entity classes; all three are accepted because this process is the
// sole raft proposer for all of them.
func (s *PlacementServer) Invoke(ctx context.Context, req *wire.Envelope) (*wire.Envelope, error) {
	switch req.Service {
	case wire.ServicePlacement:
		return s.invokePlacement(ctx, req)
	case wire.ServiceJournal:
		return s.invokeJournal(ctx, req)
	case wire.ServiceBroker:
		return s.invokeBroker(ctx, req)
	default:
		return errEnvelope(errs.InvariantViolation, "unknown service: "+req.Service)
	}
}

func (s *PlacementServer) invokePlacement(ctx context.Context, req *wire.Envelope) (*wire.Envelope, error) {
	switch req.Interface {
	case wire.InterfaceRegisterNode:
		return s.registerNode(req)
	case wire.InterfaceUnregisterNode:
		return s.unregisterNode(req)
	case wire.InterfaceHeartbeat:
		return s.heartbeat(req)
	case wire.InterfaceNodeList:
		return s.nodeList(req)
	default:
		return errEnvelope(errs.InvariantViolation, "unknown placement interface: "+req.Interface)
	}
}

func (s *PlacementServer) registerNode(req *wire.Envelope) (*wire.Envelope, error) {
	if !s.node.IsLeader() {
		return notLeaderEnvelope(s.node.LeaderAddr())
	}

	var in wire.RegisterNodeRequest
	if err := req.DecodeData(&in); err != nil {
		return errEnvelope(errs.Serialization, err.Error())
	}

	data, err := json.Marshal(in.Node)
	if err != nil {
		return errEnvelope(errs.Serialization, err.Error())
	}
	if err := s.node.Apply(fsm.Command{Op: fsm.OpAddNode, Data: data}); err != nil {
		return errEnvelope(errs.ConsensusUnavailable, err.Error())
	}

	s.notifyCluster(in.Node.ClusterName, wire.ResourceNode, wire.ActionAdd, notify.NodeAdd{Node: in.Node})

	return replyEnvelope(&wire.RegisterNodeReply{})
}

func (s *PlacementServer) unregisterNode(req *wire.Envelope) (*wire.Envelope, error) {
	if !s.node.IsLeader() {
		return notLeaderEnvelope(s.node.LeaderAddr())
	}

	var in wire.UnregisterNodeRequest
	if err := req.DecodeData(&in); err != nil {
		return errEnvelope(errs.Serialization, err.Error())
	}

	ref := struct {
		ClusterName string
		NodeID      uint64
	}{in.ClusterName, in.NodeID}
	data, err := json.Marshal(ref)
	if err != nil {
		return errEnvelope(errs.Serialization, err.Error())
	}
	if err := s.node.Apply(fsm.Command{Op: fsm.OpRemoveNode, Data: data}); err != nil {
		return errEnvelope(errs.ConsensusUnavailable, err.Error())
	}

	s.notifyCluster(in.ClusterName, wire.ResourceNode, wire.ActionDelete, notify.NodeDelete{ClusterName: in.ClusterName, NodeID: in.NodeID})

	return replyEnvelope(&wire.UnregisterNodeReply{})
}

// heartbeat records liveness directly in the cache rather than through
// raft: a missed heartbeat window is recoverable by the next one, so
// this doesn't need consensus durability the way membership changes do.
func (s *PlacementServer) heartbeat(req *wire.Envelope) (*wire.Envelope, error) {
	var in wire.HeartbeatRequest
	if err := req.DecodeData(&in); err != nil {
		return errEnvelope(errs.Serialization, err.Error())
	}
	s.placement.ReportHeartbeat(in.ClusterName, in.NodeID)
	return replyEnvelope(&wire.HeartbeatReply{})
}

func (s *PlacementServer) nodeList(req *wire.Envelope) (*wire.Envelope, error) {
	var in wire.NodeListRequest
	if err := req.DecodeData(&in); err != nil {
		return errEnvelope(errs.Serialization, err.Error())
	}
	return replyEnvelope(&wire.NodeListReply{Nodes: s.placement.ListBrokerNodes(in.ClusterName)})
}

// notifyCluster resolves which wire service a cluster's members answer
// under (journal or broker) from its registered ClusterType, and pushes
// the update only to that service. A cluster not yet registered (e.g.
// the very first node of a brand new cluster) has nothing to notify.
func (s *PlacementServer) notifyCluster(cluster, resourceType, action string, payload interface{}) {
	ci, ok := s.placement.GetCluster(cluster)
	if !ok {
		return
	}
	service := serviceForClusterType(ci.ClusterType)
	s.dispatch.Notify(cluster, service, resourceType, action, payload)
}

func serviceForClusterType(ct types.ClusterType) string {
	switch ct {
	case types.ClusterTypeJournalServer:
		return wire.ServiceJournal
	default:
		return wire.ServiceBroker
	}
}

func errEnvelope(kind errs.Kind, msg string) (*wire.Envelope, error) {
	return &wire.Envelope{Error: &wire.AppError{Kind: string(kind), Message: msg}}, nil
}

func notLeaderEnvelope(leaderAddr string) (*wire.Envelope, error) {
	return &wire.Envelope{Error: &wire.AppError{Kind: string(errs.AppNotLeader), Message: "not leader, current leader: " + leaderAddr}}, nil
}

func replyEnvelope(v interface{}) (*wire.Envelope, error) {
	out := &wire.Envelope{}
	if err := out.EncodeData(v); err != nil {
		return errEnvelope(errs.Serialization, err.Error())
	}
	return out, nil
}
