// Package types holds the control-plane data model: clusters, broker
// nodes, raft membership, journal shards/segments, and the MQTT cache
// records (users, topics, sessions, connections, subscriptions).
package types

import "time"

// ClusterType identifies what kind of process owns a cluster.
type ClusterType string

const (
	ClusterTypePlacementCenter  ClusterType = "placement-center"
	ClusterTypeJournalServer    ClusterType = "journal-server"
	ClusterTypeMqttBrokerServer ClusterType = "mqtt-broker-server"
	ClusterTypeAmqpBrokerServer ClusterType = "amqp-broker-server"
)

// ClusterConfig carries the configuration scalars every cluster needs.
type ClusterConfig struct {
	SessionExpiryInterval uint32
	MaxConnections        uint32
}

// ClusterInfo is a named logical cluster.
type ClusterInfo struct {
	ClusterName string
	ClusterType ClusterType
	CreatedAt   time.Time
	Config      ClusterConfig
}

// BrokerNode is a process instance belonging to one cluster.
type BrokerNode struct {
	NodeID        uint64
	ClusterName   string
	ClusterType   ClusterType
	NodeInnerAddr string
	Extend        map[string]string
}

// RaftRole mirrors the consensus group's observable roles.
type RaftRole string

const (
	RaftRoleLeader       RaftRole = "leader"
	RaftRoleFollower     RaftRole = "follower"
	RaftRoleCandidate    RaftRole = "candidate"
	RaftRolePreCandidate RaftRole = "pre_candidate"
	RaftRoleLearner      RaftRole = "learner"
)

// RaftNode is a member of the placement consensus group.
type RaftNode struct {
	NodeID      string
	InnerAddr   string
	Role        RaftRole
}

// ShardStatus is the lifecycle state of a JournalShard.
type ShardStatus string

const (
	ShardStatusRunning       ShardStatus = "running"
	ShardStatusPrepareDelete ShardStatus = "prepare_delete"
	ShardStatusDeleting      ShardStatus = "deleting"
)

// ShardConfig carries per-segment rollover thresholds for a shard.
type ShardConfig struct {
	MaxSegmentSize    uint64 // bytes
	MaxSegmentAge     time.Duration
	ReplicaFactor     uint32
}

// ShardKey uniquely identifies a journal shard.
type ShardKey struct {
	ClusterName string
	Namespace   string
	ShardName   string
}

// JournalShard is a logical append-only log.
type JournalShard struct {
	ShardKey
	ShardUID        string
	Status          ShardStatus
	ActiveSegmentSeq uint32
	StartSegmentSeq  uint32
	ReplicaFactor    uint32
	Config           ShardConfig
}

// SegmentStatus is the lifecycle state of a JournalSegment.
type SegmentStatus string

const (
	SegmentStatusCreate         SegmentStatus = "create"
	SegmentStatusActive         SegmentStatus = "active"
	SegmentStatusPrepareSealUp  SegmentStatus = "prepare_seal_up"
	SegmentStatusSealUp         SegmentStatus = "seal_up"
	SegmentStatusPrepareDelete  SegmentStatus = "prepare_delete"
	SegmentStatusDeleting       SegmentStatus = "deleting"
)

// SegmentReplica is one replica placement of a segment.
type SegmentReplica struct {
	NodeID   uint64
	DiskPath string
}

// SegmentKey uniquely identifies a journal segment.
type SegmentKey struct {
	ClusterName string
	Namespace   string
	ShardName   string
	SegmentSeq  uint32
}

// JournalSegment is a physical, replicated chunk of a shard.
type JournalSegment struct {
	SegmentKey
	Status      SegmentStatus
	Replicas    []SegmentReplica
	ByteSize    uint64
	FirstOffset uint64
	LastOffset  uint64
}

// ShardRef returns the ShardKey this segment belongs to.
func (s *JournalSegment) ShardRef() ShardKey {
	return ShardKey{ClusterName: s.ClusterName, Namespace: s.Namespace, ShardName: s.ShardName}
}

// User is an MQTT account record.
type User struct {
	ClusterName string
	Username    string
	PasswordHash string
	IsSuperuser bool
}

// Topic is an MQTT topic record.
type Topic struct {
	ClusterName string
	TopicID     string
	TopicName   string
	Retain      []byte
}

// Session is a per-client MQTT session projection.
//
// Grounded on original_source/mqtt-broker/src/core/session.rs: reconnect
// bookkeeping (ConnectionID/BrokerID/ReconnectTime/DistinctTime) lets the
// broker cache distinguish a live session from one merely surviving its
// expiry interval waiting for last-will delivery.
type Session struct {
	ClusterName           string
	ClientID              string
	SessionExpiryInterval uint32
	IsContainLastWill     bool
	LastWillDeleteTime    int64
	ConnectionID          uint64
	BrokerID              uint64
	ReconnectTime         int64
	DistinctTime          int64
	CreatedAt             time.Time
}

// UpdateConnectionID records that the session has reconnected on a new
// connection and stamps ReconnectTime; the last-will fields are left
// unchanged.
func (s *Session) UpdateConnectionID(connectionID uint64) {
	s.ConnectionID = connectionID
	s.ReconnectTime = time.Now().Unix()
}

// ClearConnectionID marks the session as disconnected without destroying
// it; the session remains until SessionExpiryInterval elapses.
func (s *Session) ClearConnectionID() {
	s.ConnectionID = 0
	s.DistinctTime = time.Now().Unix()
}

// Connection is a live transport-level connection.
type Connection struct {
	ConnectionID uint64
	ClientID     string
	ClusterName  string
	SourceAddr   string
	ConnectedAt  time.Time
}

// SubscribeData is one subscription record for a client.
type SubscribeData struct {
	ClientID string
	PacketID uint16
	Path     string
	QoS      uint8
}
