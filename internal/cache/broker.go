package cache

import (
	"sync"

	"github.com/cuemby/mqplane/internal/types"
)

// BrokerCache is the MQTT broker's local projection, rebuilt from
// UpdateCache RPC pushes sent by the placement center rather than from
// a local store: the broker itself owns no authoritative copy of this
// data, only a cache of it.
type BrokerCache struct {
	mu sync.RWMutex

	clusterInfo map[string]*types.ClusterInfo
	userInfo    map[string]map[string]*types.User
	topicInfo   map[string]map[string]*types.Topic
	topicIDName map[string]map[string]string // cluster -> topicID -> topicName

	sessionInfo    map[string]map[string]*types.Session // cluster -> clientID -> session
	connectionInfo map[uint64]*types.Connection

	// subscribeFilter is cluster -> topic path -> clientID -> subscription.
	subscribeFilter map[string]map[string]map[string]*types.SubscribeData

	// publishPktID is cluster -> clientID -> set of in-flight packet ids.
	publishPktID map[string]map[string]map[uint16]struct{}
}

// NewBrokerCache returns an empty BrokerCache.
func NewBrokerCache() *BrokerCache {
	return &BrokerCache{
		clusterInfo:     make(map[string]*types.ClusterInfo),
		userInfo:        make(map[string]map[string]*types.User),
		topicInfo:       make(map[string]map[string]*types.Topic),
		topicIDName:     make(map[string]map[string]string),
		sessionInfo:     make(map[string]map[string]*types.Session),
		connectionInfo:  make(map[uint64]*types.Connection),
		subscribeFilter: make(map[string]map[string]map[string]*types.SubscribeData),
		publishPktID:    make(map[string]map[string]map[uint16]struct{}),
	}
}

func (b *BrokerCache) SetClusterInfo(ci *types.ClusterInfo) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clusterInfo[ci.ClusterName] = ci
}

func (b *BrokerCache) GetClusterInfo(cluster string) (*types.ClusterInfo, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ci, ok := b.clusterInfo[cluster]
	return ci, ok
}

func (b *BrokerCache) AddUser(u *types.User) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.userInfo[u.ClusterName] == nil {
		b.userInfo[u.ClusterName] = make(map[string]*types.User)
	}
	b.userInfo[u.ClusterName][u.Username] = u
}

func (b *BrokerCache) RemoveUser(cluster, username string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.userInfo[cluster], username)
}

func (b *BrokerCache) GetUser(cluster, username string) (*types.User, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	u, ok := b.userInfo[cluster][username]
	return u, ok
}

func (b *BrokerCache) AddTopic(t *types.Topic) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.topicInfo[t.ClusterName] == nil {
		b.topicInfo[t.ClusterName] = make(map[string]*types.Topic)
		b.topicIDName[t.ClusterName] = make(map[string]string)
	}
	b.topicInfo[t.ClusterName][t.TopicName] = t
	b.topicIDName[t.ClusterName][t.TopicID] = t.TopicName
}

func (b *BrokerCache) RemoveTopic(cluster, topicName string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if t, ok := b.topicInfo[cluster][topicName]; ok {
		delete(b.topicIDName[cluster], t.TopicID)
	}
	delete(b.topicInfo[cluster], topicName)
}

func (b *BrokerCache) GetTopicByName(cluster, topicName string) (*types.Topic, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	t, ok := b.topicInfo[cluster][topicName]
	return t, ok
}

func (b *BrokerCache) GetTopicNameByID(cluster, topicID string) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	name, ok := b.topicIDName[cluster][topicID]
	return name, ok
}

// AddSession inserts or replaces a session record.
func (b *BrokerCache) AddSession(s *types.Session) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sessionInfo[s.ClusterName] == nil {
		b.sessionInfo[s.ClusterName] = make(map[string]*types.Session)
	}
	b.sessionInfo[s.ClusterName][s.ClientID] = s
}

func (b *BrokerCache) GetSession(cluster, clientID string) (*types.Session, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s, ok := b.sessionInfo[cluster][clientID]
	return s, ok
}

func (b *BrokerCache) RemoveSession(cluster, clientID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.sessionInfo[cluster], clientID)
}

// SessionCount returns the total number of sessions held across every
// cluster, for metrics collection.
func (b *BrokerCache) SessionCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for _, sessions := range b.sessionInfo {
		n += len(sessions)
	}
	return n
}

// ConnectionCount returns the total number of live connections, for
// metrics collection.
func (b *BrokerCache) ConnectionCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.connectionInfo)
}

func (b *BrokerCache) AddConnection(c *types.Connection) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connectionInfo[c.ConnectionID] = c
}

func (b *BrokerCache) GetConnection(connectionID uint64) (*types.Connection, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	c, ok := b.connectionInfo[connectionID]
	return c, ok
}

func (b *BrokerCache) RemoveConnection(connectionID uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.connectionInfo, connectionID)
}

// AddSubscribe records a client's subscription to a topic path.
func (b *BrokerCache) AddSubscribe(cluster string, sub *types.SubscribeData) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subscribeFilter[cluster] == nil {
		b.subscribeFilter[cluster] = make(map[string]map[string]*types.SubscribeData)
	}
	if b.subscribeFilter[cluster][sub.Path] == nil {
		b.subscribeFilter[cluster][sub.Path] = make(map[string]*types.SubscribeData)
	}
	b.subscribeFilter[cluster][sub.Path][sub.ClientID] = sub
}

func (b *BrokerCache) RemoveSubscribe(cluster, path, clientID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subscribeFilter[cluster][path], clientID)
}

// SubscribersOf returns every subscription registered on an exact topic
// path. Wildcard matching is out of scope for the cache projection
// itself; it belongs to the broker's publish routing layer.
func (b *BrokerCache) SubscribersOf(cluster, path string) []types.SubscribeData {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []types.SubscribeData
	for _, sub := range b.subscribeFilter[cluster][path] {
		out = append(out, *sub)
	}
	return out
}

// ContainsPktID reports whether pktID is in use for clientID. With
// MarkPktID (claim) and ReleasePktID (free) it is the packet-ID
// allocator's storage.
func (b *BrokerCache) ContainsPktID(cluster, clientID string, pktID uint16) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.publishPktID[cluster][clientID][pktID]
	return ok
}

func (b *BrokerCache) MarkPktID(cluster, clientID string, pktID uint16) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.publishPktID[cluster] == nil {
		b.publishPktID[cluster] = make(map[string]map[uint16]struct{})
	}
	if b.publishPktID[cluster][clientID] == nil {
		b.publishPktID[cluster][clientID] = make(map[uint16]struct{})
	}
	b.publishPktID[cluster][clientID][pktID] = struct{}{}
}

func (b *BrokerCache) ReleasePktID(cluster, clientID string, pktID uint16) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.publishPktID[cluster][clientID], pktID)
}

func (b *BrokerCache) PktIDCount(cluster, clientID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.publishPktID[cluster][clientID])
}
