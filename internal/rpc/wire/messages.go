package wire

import "github.com/cuemby/mqplane/internal/types"

// Placement center requests/replies.

type RegisterNodeRequest struct {
	Node types.BrokerNode
}

type RegisterNodeReply struct{}

type UnregisterNodeRequest struct {
	ClusterName string
	NodeID      uint64
}

type UnregisterNodeReply struct{}

type HeartbeatRequest struct {
	ClusterName string
	NodeID      uint64
}

type HeartbeatReply struct{}

type NodeListRequest struct {
	ClusterName string
}

type NodeListReply struct {
	Nodes []types.BrokerNode
}

// UpdateCache is pushed by the placement leader to every subscriber
// (journal/broker node) whenever an FSM Apply changes observable state.
type UpdateCacheRequest struct {
	ResourceType string
	Action       string
	Payload      []byte
}

type UpdateCacheReply struct{}

// Resource types and actions carried in UpdateCacheRequest, mirroring
// the entity classes the FSM applies.
const (
	ResourceCluster = "cluster"
	ResourceNode    = "node"
	ResourceShard   = "shard"
	ResourceSegment = "segment"
	ResourceUser    = "user"
	ResourceTopic   = "topic"

	ActionAdd    = "add"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

// Journal server requests/replies.

type CreateShardRequest struct {
	Shard types.JournalShard
}

type CreateShardReply struct{}

type DeleteShardRequest struct {
	Key types.ShardKey
}

type DeleteShardReply struct{}

type ListShardRequest struct {
	ClusterName string
	Namespace   string
}

type ListShardReply struct {
	Shards []types.JournalShard
}

// DeleteShardFile asks a broker/journal node to remove its on-disk
// copy of a shard already marked PrepareDelete.
type DeleteShardFileRequest struct {
	Key types.ShardKey
}

type DeleteShardFileReply struct{}

// GetShardDeleteStatus reports whether a node has finished removing a
// shard's files from local disk.
type GetShardDeleteStatusRequest struct {
	Key types.ShardKey
}

type GetShardDeleteStatusReply struct {
	Status bool
}

type CreateSegmentRequest struct {
	Segment types.JournalSegment
}

type CreateSegmentReply struct{}

type DeleteSegmentRequest struct {
	Key types.SegmentKey
}

type DeleteSegmentReply struct{}

type ListSegmentRequest struct {
	Shard types.ShardKey
}

type ListSegmentReply struct {
	Segments []types.JournalSegment
}

type UpdateSegmentStatusRequest struct {
	Key    types.SegmentKey
	Status types.SegmentStatus
}

type UpdateSegmentStatusReply struct{}

type DeleteSegmentFileRequest struct {
	Key types.SegmentKey
}

type DeleteSegmentFileReply struct{}

type GetSegmentDeleteStatusRequest struct {
	Key types.SegmentKey
}

type GetSegmentDeleteStatusReply struct {
	Status bool
}

// GetSegmentOffsets reads back the start/end log offsets this node's
// offset index has recorded for a segment, answered from the
// on-disk index rather than the journal cache.
type GetSegmentOffsetsRequest struct {
	Key types.SegmentKey
}

type GetSegmentOffsetsReply struct {
	StartOffset uint64
	EndOffset   uint64
}

// Broker cache requests/replies.

type CreateUserRequest struct {
	User types.User
}

type CreateUserReply struct{}

type DeleteUserRequest struct {
	ClusterName string
	Username    string
}

type DeleteUserReply struct{}

type CreateTopicRequest struct {
	Topic types.Topic
}

type CreateTopicReply struct{}

type DeleteTopicRequest struct {
	ClusterName string
	TopicName   string
}

type DeleteTopicReply struct{}

type SaveSessionRequest struct {
	Session types.Session
}

type SaveSessionReply struct{}

type DeleteSessionRequest struct {
	ClusterName string
	ClientID    string
}

type DeleteSessionReply struct{}
