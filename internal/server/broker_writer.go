package server

import (
	"context"
	"encoding/json"

	"github.com/cuemby/mqplane/internal/errs"
	"github.com/cuemby/mqplane/internal/fsm"
	"github.com/cuemby/mqplane/internal/notify"
	"github.com/cuemby/mqplane/internal/rpc/wire"
)

// invokeBroker handles user/topic writes, the authoritative
// copies of which live only in the placement center's stores; the
// broker cache on each mqtt-broker process is rebuilt purely from the
// UpdateCache pushes this triggers.
func (s *PlacementServer) invokeBroker(_ context.Context, req *wire.Envelope) (*wire.Envelope, error) {
	switch req.Interface {
	case wire.InterfaceCreateUser:
		return s.createUser(req)
	case wire.InterfaceDeleteUser:
		return s.deleteUser(req)
	case wire.InterfaceCreateTopic:
		return s.createTopic(req)
	case wire.InterfaceDeleteTopic:
		return s.deleteTopic(req)
	default:
		return errEnvelope(errs.InvariantViolation, "unknown broker interface: "+req.Interface)
	}
}

func (s *PlacementServer) createUser(req *wire.Envelope) (*wire.Envelope, error) {
	if !s.node.IsLeader() {
		return notLeaderEnvelope(s.node.LeaderAddr())
	}
	var in wire.CreateUserRequest
	if err := req.DecodeData(&in); err != nil {
		return errEnvelope(errs.Serialization, err.Error())
	}
	data, err := json.Marshal(in.User)
	if err != nil {
		return errEnvelope(errs.Serialization, err.Error())
	}
	if err := s.node.Apply(fsm.Command{Op: fsm.OpAddUser, Data: data}); err != nil {
		return errEnvelope(errs.ConsensusUnavailable, err.Error())
	}
	s.notifyCluster(in.User.ClusterName, wire.ResourceUser, wire.ActionAdd, notify.UserAdd{User: in.User})
	return replyEnvelope(&wire.CreateUserReply{})
}

func (s *PlacementServer) deleteUser(req *wire.Envelope) (*wire.Envelope, error) {
	if !s.node.IsLeader() {
		return notLeaderEnvelope(s.node.LeaderAddr())
	}
	var in wire.DeleteUserRequest
	if err := req.DecodeData(&in); err != nil {
		return errEnvelope(errs.Serialization, err.Error())
	}
	ref := struct {
		ClusterName string
		Username    string
	}{in.ClusterName, in.Username}
	data, err := json.Marshal(ref)
	if err != nil {
		return errEnvelope(errs.Serialization, err.Error())
	}
	if err := s.node.Apply(fsm.Command{Op: fsm.OpRemoveUser, Data: data}); err != nil {
		return errEnvelope(errs.ConsensusUnavailable, err.Error())
	}
	s.notifyCluster(in.ClusterName, wire.ResourceUser, wire.ActionDelete, notify.UserDelete{ClusterName: in.ClusterName, Username: in.Username})
	return replyEnvelope(&wire.DeleteUserReply{})
}

func (s *PlacementServer) createTopic(req *wire.Envelope) (*wire.Envelope, error) {
	if !s.node.IsLeader() {
		return notLeaderEnvelope(s.node.LeaderAddr())
	}
	var in wire.CreateTopicRequest
	if err := req.DecodeData(&in); err != nil {
		return errEnvelope(errs.Serialization, err.Error())
	}
	data, err := json.Marshal(in.Topic)
	if err != nil {
		return errEnvelope(errs.Serialization, err.Error())
	}
	if err := s.node.Apply(fsm.Command{Op: fsm.OpAddTopic, Data: data}); err != nil {
		return errEnvelope(errs.ConsensusUnavailable, err.Error())
	}
	s.notifyCluster(in.Topic.ClusterName, wire.ResourceTopic, wire.ActionAdd, notify.TopicAdd{Topic: in.Topic})
	return replyEnvelope(&wire.CreateTopicReply{})
}

func (s *PlacementServer) deleteTopic(req *wire.Envelope) (*wire.Envelope, error) {
	if !s.node.IsLeader() {
		return notLeaderEnvelope(s.node.LeaderAddr())
	}
	var in wire.DeleteTopicRequest
	if err := req.DecodeData(&in); err != nil {
		return errEnvelope(errs.Serialization, err.Error())
	}
	ref := struct {
		ClusterName string
		TopicName   string
	}{in.ClusterName, in.TopicName}
	data, err := json.Marshal(ref)
	if err != nil {
		return errEnvelope(errs.Serialization, err.Error())
	}
	if err := s.node.Apply(fsm.Command{Op: fsm.OpRemoveTopic, Data: data}); err != nil {
		return errEnvelope(errs.ConsensusUnavailable, err.Error())
	}
	s.notifyCluster(in.ClusterName, wire.ResourceTopic, wire.ActionDelete, notify.TopicDelete{ClusterName: in.ClusterName, TopicName: in.TopicName})
	return replyEnvelope(&wire.DeleteTopicReply{})
}
