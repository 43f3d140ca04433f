package server

import (
	"context"
	"encoding/json"

	"github.com/cuemby/mqplane/internal/errs"
	"github.com/cuemby/mqplane/internal/fsm"
	"github.com/cuemby/mqplane/internal/notify"
	"github.com/cuemby/mqplane/internal/rpc/wire"
	"github.com/cuemby/mqplane/internal/types"
)

// invokeJournal handles every journal-domain write/read that needs the
// authoritative store: shard and segment lifecycle. The four
// file-deletion-status interfaces (DeleteShardFile, GetShardDeleteStatus,
// DeleteSegmentFile, GetSegmentDeleteStatus) are answered by the
// journal-server process itself, not here - see JournalFileServer.
func (s *PlacementServer) invokeJournal(_ context.Context, req *wire.Envelope) (*wire.Envelope, error) {
	switch req.Interface {
	case wire.InterfaceCreateShard:
		return s.createShard(req)
	case wire.InterfaceDeleteShard:
		return s.deleteShard(req)
	case wire.InterfaceListShard:
		return s.listShard(req)
	case wire.InterfaceCreateSegment:
		return s.createSegment(req)
	case wire.InterfaceDeleteSegment:
		return s.deleteSegment(req)
	case wire.InterfaceListSegment:
		return s.listSegment(req)
	case wire.InterfaceUpdateSegmentStatus:
		return s.updateSegmentStatus(req)
	default:
		return errEnvelope(errs.InvariantViolation, "unknown journal interface: "+req.Interface)
	}
}

func (s *PlacementServer) createShard(req *wire.Envelope) (*wire.Envelope, error) {
	if !s.node.IsLeader() {
		return notLeaderEnvelope(s.node.LeaderAddr())
	}

	var in wire.CreateShardRequest
	if err := req.DecodeData(&in); err != nil {
		return errEnvelope(errs.Serialization, err.Error())
	}
	if in.Shard.Status == "" {
		in.Shard.Status = types.ShardStatusRunning
	}

	data, err := json.Marshal(in.Shard)
	if err != nil {
		return errEnvelope(errs.Serialization, err.Error())
	}
	if err := s.node.Apply(fsm.Command{Op: fsm.OpAddShard, Data: data}); err != nil {
		return errEnvelope(errs.ConsensusUnavailable, err.Error())
	}

	s.notifyCluster(in.Shard.ClusterName, wire.ResourceShard, wire.ActionAdd, notify.ShardAdd{Shard: in.Shard})
	return replyEnvelope(&wire.CreateShardReply{})
}

// deleteShard marks a shard PrepareDelete rather than erasing it: the
// shard GC controller owns the actual removal once every replica
// confirms its files are gone.
func (s *PlacementServer) deleteShard(req *wire.Envelope) (*wire.Envelope, error) {
	if !s.node.IsLeader() {
		return notLeaderEnvelope(s.node.LeaderAddr())
	}

	var in wire.DeleteShardRequest
	if err := req.DecodeData(&in); err != nil {
		return errEnvelope(errs.Serialization, err.Error())
	}

	sh, ok := s.journal.GetShard(in.Key)
	if !ok {
		return errEnvelope(errs.InvariantViolation, "shard not found")
	}
	updated := *sh
	updated.Status = types.ShardStatusPrepareDelete

	data, err := json.Marshal(updated)
	if err != nil {
		return errEnvelope(errs.Serialization, err.Error())
	}
	if err := s.node.Apply(fsm.Command{Op: fsm.OpUpdateShard, Data: data}); err != nil {
		return errEnvelope(errs.ConsensusUnavailable, err.Error())
	}

	s.notifyCluster(in.Key.ClusterName, wire.ResourceShard, wire.ActionDelete, notify.ShardDelete{Key: in.Key})
	return replyEnvelope(&wire.DeleteShardReply{})
}

func (s *PlacementServer) listShard(req *wire.Envelope) (*wire.Envelope, error) {
	var in wire.ListShardRequest
	if err := req.DecodeData(&in); err != nil {
		return errEnvelope(errs.Serialization, err.Error())
	}
	return replyEnvelope(&wire.ListShardReply{Shards: s.journal.ListShards(in.ClusterName, in.Namespace)})
}

func (s *PlacementServer) createSegment(req *wire.Envelope) (*wire.Envelope, error) {
	if !s.node.IsLeader() {
		return notLeaderEnvelope(s.node.LeaderAddr())
	}

	var in wire.CreateSegmentRequest
	if err := req.DecodeData(&in); err != nil {
		return errEnvelope(errs.Serialization, err.Error())
	}
	if in.Segment.Status == "" {
		in.Segment.Status = types.SegmentStatusCreate
	}

	sh, ok := s.journal.GetShard(in.Segment.ShardRef())
	if !ok {
		return errEnvelope(errs.InvariantViolation, "shard not found")
	}

	data, err := json.Marshal(in.Segment)
	if err != nil {
		return errEnvelope(errs.Serialization, err.Error())
	}
	if err := s.node.Apply(fsm.Command{Op: fsm.OpAddSegment, Data: data}); err != nil {
		return errEnvelope(errs.ConsensusUnavailable, err.Error())
	}

	if in.Segment.Status == types.SegmentStatusActive {
		if err := s.sealPreviousActiveSegment(sh, in.Segment.SegmentSeq); err != nil {
			return errEnvelope(errs.ConsensusUnavailable, err.Error())
		}
	}

	s.notifyCluster(in.Segment.ClusterName, wire.ResourceSegment, wire.ActionAdd, notify.SegmentAdd{Segment: in.Segment})
	return replyEnvelope(&wire.CreateSegmentReply{})
}

// deleteSegment refuses to queue an Active segment for deletion: a
// shard's current write target can never be GC'd out from under it.
func (s *PlacementServer) deleteSegment(req *wire.Envelope) (*wire.Envelope, error) {
	if !s.node.IsLeader() {
		return notLeaderEnvelope(s.node.LeaderAddr())
	}

	var in wire.DeleteSegmentRequest
	if err := req.DecodeData(&in); err != nil {
		return errEnvelope(errs.Serialization, err.Error())
	}

	seg, ok := s.journal.GetSegment(in.Key)
	if !ok {
		return errEnvelope(errs.InvariantViolation, "segment not found")
	}
	if seg.Status == types.SegmentStatusActive {
		return errEnvelope(errs.InvariantViolation, "cannot delete an active segment")
	}

	updated := *seg
	updated.Status = types.SegmentStatusPrepareDelete

	data, err := json.Marshal(updated)
	if err != nil {
		return errEnvelope(errs.Serialization, err.Error())
	}
	if err := s.node.Apply(fsm.Command{Op: fsm.OpUpdateSegment, Data: data}); err != nil {
		return errEnvelope(errs.ConsensusUnavailable, err.Error())
	}

	s.notifyCluster(in.Key.ClusterName, wire.ResourceSegment, wire.ActionDelete, notify.SegmentDelete{Key: in.Key})
	return replyEnvelope(&wire.DeleteSegmentReply{})
}

func (s *PlacementServer) listSegment(req *wire.Envelope) (*wire.Envelope, error) {
	var in wire.ListSegmentRequest
	if err := req.DecodeData(&in); err != nil {
		return errEnvelope(errs.Serialization, err.Error())
	}
	return replyEnvelope(&wire.ListSegmentReply{Segments: s.journal.ListSegments(in.Shard)})
}

func (s *PlacementServer) updateSegmentStatus(req *wire.Envelope) (*wire.Envelope, error) {
	if !s.node.IsLeader() {
		return notLeaderEnvelope(s.node.LeaderAddr())
	}

	var in wire.UpdateSegmentStatusRequest
	if err := req.DecodeData(&in); err != nil {
		return errEnvelope(errs.Serialization, err.Error())
	}

	seg, ok := s.journal.GetSegment(in.Key)
	if !ok {
		return errEnvelope(errs.InvariantViolation, "segment not found")
	}
	updated := *seg
	updated.Status = in.Status

	data, err := json.Marshal(updated)
	if err != nil {
		return errEnvelope(errs.Serialization, err.Error())
	}
	if err := s.node.Apply(fsm.Command{Op: fsm.OpUpdateSegment, Data: data}); err != nil {
		return errEnvelope(errs.ConsensusUnavailable, err.Error())
	}

	if in.Status == types.SegmentStatusActive {
		sh, ok := s.journal.GetShard(seg.ShardRef())
		if !ok {
			return errEnvelope(errs.InvariantViolation, "shard not found")
		}
		if err := s.sealPreviousActiveSegment(sh, in.Key.SegmentSeq); err != nil {
			return errEnvelope(errs.ConsensusUnavailable, err.Error())
		}
	}

	return replyEnvelope(&wire.UpdateSegmentStatusReply{})
}

// sealPreviousActiveSegment enforces the rule that at most one segment
// per shard carries Active status: whichever segment the shard's
// ActiveSegmentSeq currently names is sealed before the pointer moves
// to newActiveSeq.
//
// Grounded on original_source/journal-server/src/core/cache.rs's
// get_active_segment, which treats shard.active_segmant as the sole
// pointer to the live segment - this keeps that pointer always
// resolving to at most one Active segment.
func (s *PlacementServer) sealPreviousActiveSegment(sh *types.JournalShard, newActiveSeq uint32) error {
	if sh.ActiveSegmentSeq != 0 && sh.ActiveSegmentSeq != newActiveSeq {
		oldKey := types.SegmentKey{ClusterName: sh.ClusterName, Namespace: sh.Namespace, ShardName: sh.ShardName, SegmentSeq: sh.ActiveSegmentSeq}
		if old, ok := s.journal.GetSegment(oldKey); ok && old.Status == types.SegmentStatusActive {
			sealed := *old
			sealed.Status = types.SegmentStatusPrepareSealUp
			data, err := json.Marshal(sealed)
			if err != nil {
				return err
			}
			if err := s.node.Apply(fsm.Command{Op: fsm.OpUpdateSegment, Data: data}); err != nil {
				return err
			}
		}
	}

	updatedShard := *sh
	updatedShard.ActiveSegmentSeq = newActiveSeq
	data, err := json.Marshal(updatedShard)
	if err != nil {
		return err
	}
	return s.node.Apply(fsm.Command{Op: fsm.OpUpdateShard, Data: data})
}
