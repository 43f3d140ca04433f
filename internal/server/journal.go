package server

import (
	"context"
	"sync"

	"github.com/cuemby/mqplane/internal/cache"
	"github.com/cuemby/mqplane/internal/errs"
	"github.com/cuemby/mqplane/internal/rpc/wire"
	"github.com/cuemby/mqplane/internal/store"
	"github.com/cuemby/mqplane/internal/types"
)

// JournalFileServer is the journal-server process's own Invoke handler:
// the local-disk bookkeeping the shard/segment GC controllers drive
// (DeleteShardFile, GetShardDeleteStatus, DeleteSegmentFile,
// GetSegmentDeleteStatus) plus the UpdateCache receiver that keeps this
// process's JournalCache in sync with the placement center.
//
// On-disk segment file format is out of scope here (see SPEC_FULL.md
// §1's Non-goals), so DeleteShardFile/DeleteSegmentFile don't perform
// real file I/O; they record local completion in an in-memory set, and
// the GetDeleteStatus interfaces report against that set. A real
// journal-server would replace only this bookkeeping with actual
// unlink() calls against its segment storage.
type JournalFileServer struct {
	journal *cache.JournalCache
	idx     *store.Store

	mu              sync.Mutex
	deletedShards   map[types.ShardKey]struct{}
	deletedSegments map[types.SegmentKey]struct{}
}

// NewJournalFileServer returns a JournalFileServer backed by journal
// and, for offset lookups, idx. idx may be nil; GetSegmentOffsets then
// answers with zero offsets rather than failing the call.
func NewJournalFileServer(journal *cache.JournalCache, idx *store.Store) *JournalFileServer {
	return &JournalFileServer{
		journal:         journal,
		idx:             idx,
		deletedShards:   make(map[types.ShardKey]struct{}),
		deletedSegments: make(map[types.SegmentKey]struct{}),
	}
}

func (s *JournalFileServer) Invoke(ctx context.Context, req *wire.Envelope) (*wire.Envelope, error) {
	switch req.Interface {
	case wire.InterfaceDeleteShardFile:
		return s.deleteShardFile(req)
	case wire.InterfaceGetShardDeleteStatus:
		return s.getShardDeleteStatus(req)
	case wire.InterfaceDeleteSegmentFile:
		return s.deleteSegmentFile(req)
	case wire.InterfaceGetSegmentDeleteStatus:
		return s.getSegmentDeleteStatus(req)
	case wire.InterfaceGetSegmentOffsets:
		return s.getSegmentOffsets(req)
	case wire.InterfaceUpdateCache:
		return s.updateCache(req)
	default:
		return errEnvelope(errs.InvariantViolation, "unknown journal-server interface: "+req.Interface)
	}
}

func (s *JournalFileServer) deleteShardFile(req *wire.Envelope) (*wire.Envelope, error) {
	var in wire.DeleteShardFileRequest
	if err := req.DecodeData(&in); err != nil {
		return errEnvelope(errs.Serialization, err.Error())
	}
	s.mu.Lock()
	s.deletedShards[in.Key] = struct{}{}
	s.mu.Unlock()
	return replyEnvelope(&wire.DeleteShardFileReply{})
}

func (s *JournalFileServer) getShardDeleteStatus(req *wire.Envelope) (*wire.Envelope, error) {
	var in wire.GetShardDeleteStatusRequest
	if err := req.DecodeData(&in); err != nil {
		return errEnvelope(errs.Serialization, err.Error())
	}
	s.mu.Lock()
	_, done := s.deletedShards[in.Key]
	s.mu.Unlock()
	return replyEnvelope(&wire.GetShardDeleteStatusReply{Status: done})
}

func (s *JournalFileServer) deleteSegmentFile(req *wire.Envelope) (*wire.Envelope, error) {
	var in wire.DeleteSegmentFileRequest
	if err := req.DecodeData(&in); err != nil {
		return errEnvelope(errs.Serialization, err.Error())
	}
	s.mu.Lock()
	s.deletedSegments[in.Key] = struct{}{}
	s.mu.Unlock()
	return replyEnvelope(&wire.DeleteSegmentFileReply{})
}

func (s *JournalFileServer) getSegmentDeleteStatus(req *wire.Envelope) (*wire.Envelope, error) {
	var in wire.GetSegmentDeleteStatusRequest
	if err := req.DecodeData(&in); err != nil {
		return errEnvelope(errs.Serialization, err.Error())
	}
	s.mu.Lock()
	_, done := s.deletedSegments[in.Key]
	s.mu.Unlock()
	return replyEnvelope(&wire.GetSegmentDeleteStatusReply{Status: done})
}

// getSegmentOffsets answers from the on-disk offset index, not the
// journal cache: FirstOffset/LastOffset on a cached JournalSegment
// reflect what the placement center last recorded, while the index
// reflects what this node has actually indexed on disk.
func (s *JournalFileServer) getSegmentOffsets(req *wire.Envelope) (*wire.Envelope, error) {
	var in wire.GetSegmentOffsetsRequest
	if err := req.DecodeData(&in); err != nil {
		return errEnvelope(errs.Serialization, err.Error())
	}
	if s.idx == nil {
		return replyEnvelope(&wire.GetSegmentOffsetsReply{})
	}

	start, err := s.idx.GetStartOffset(in.Key)
	if err != nil {
		return errEnvelope(errs.Storage, err.Error())
	}
	end, err := s.idx.GetEndOffset(in.Key)
	if err != nil {
		return errEnvelope(errs.Storage, err.Error())
	}
	return replyEnvelope(&wire.GetSegmentOffsetsReply{StartOffset: start, EndOffset: end})
}

// updateCache applies a pushed cache-update notification to this
// process's JournalCache.
func (s *JournalFileServer) updateCache(req *wire.Envelope) (*wire.Envelope, error) {
	var in wire.UpdateCacheRequest
	if err := req.DecodeData(&in); err != nil {
		return errEnvelope(errs.Serialization, err.Error())
	}
	applyJournalUpdate(s.journal, &in, s.idx)
	return replyEnvelope(&wire.UpdateCacheReply{})
}
