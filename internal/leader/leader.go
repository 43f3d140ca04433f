// Package leader polls the placement node's raft handle and records
// role transitions into the placement cache, starting and stopping the
// GC controllers on the edge transitions into and out of leadership.
//
// Grounded on the teacher's pkg/manager/manager.go IsLeader/LeaderAddr
// accessors; the teacher has no dedicated poller because a single
// warren manager process only ever has one raft role to track locally,
// but the placement center needs the edge-triggered start/stop of the
// GC controllers described in the journal metadata cache's controller
// design, so this package adds the poll loop around those accessors.
package leader

import (
	"time"

	"github.com/cuemby/mqplane/internal/cache"
	"github.com/cuemby/mqplane/internal/types"
	"github.com/cuemby/mqplane/pkg/log"
	"github.com/cuemby/mqplane/pkg/metrics"
)

// RaftNode is the subset of *placement.Node the poller depends on.
type RaftNode interface {
	IsLeader() bool
	LeaderAddr() string
}

// Controller is started when this node becomes raft leader and stopped
// when it loses leadership.
type Controller interface {
	Start()
	Stop()
}

// Poller periodically samples raft leadership and reacts to edge
// transitions.
type Poller struct {
	nodeID    string
	raft      RaftNode
	placement *cache.PlacementCache
	controllers []Controller

	interval time.Duration
	stopCh   chan struct{}
}

// New returns a Poller that samples every interval and drives
// controllers' Start/Stop on leadership edges.
func New(nodeID string, raft RaftNode, placement *cache.PlacementCache, interval time.Duration, controllers ...Controller) *Poller {
	if interval <= 0 {
		interval = time.Second
	}
	return &Poller{
		nodeID:      nodeID,
		raft:        raft,
		placement:   placement,
		controllers: controllers,
		interval:    interval,
		stopCh:      make(chan struct{}),
	}
}

// Start begins the poll loop in a background goroutine.
func (p *Poller) Start() {
	go p.run()
}

// Stop ends the poll loop.
func (p *Poller) Stop() {
	close(p.stopCh)
}

func (p *Poller) run() {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.tick()
		case <-p.stopCh:
			return
		}
	}
}

func (p *Poller) tick() {
	role := types.RaftRoleFollower
	if p.raft.IsLeader() {
		role = types.RaftRoleLeader
	}

	changed := p.placement.UpdateRaftRole(types.RaftNode{
		NodeID:    p.nodeID,
		InnerAddr: p.raft.LeaderAddr(),
		Role:      role,
	})

	if role == types.RaftRoleLeader {
		metrics.RaftIsLeader.Set(1)
	} else {
		metrics.RaftIsLeader.Set(0)
	}

	if !changed {
		return
	}

	if role == types.RaftRoleLeader {
		log.Info("raft leadership acquired, starting GC controllers")
		for _, c := range p.controllers {
			c.Start()
		}
	} else {
		log.Info("raft leadership lost, stopping GC controllers")
		for _, c := range p.controllers {
			c.Stop()
		}
	}
}
