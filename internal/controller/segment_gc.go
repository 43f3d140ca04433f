package controller

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/cuemby/mqplane/internal/cache"
	"github.com/cuemby/mqplane/internal/fsm"
	"github.com/cuemby/mqplane/internal/rpc"
	"github.com/cuemby/mqplane/internal/rpc/wire"
	"github.com/cuemby/mqplane/internal/types"
	"github.com/cuemby/mqplane/pkg/log"
	"github.com/cuemby/mqplane/pkg/metrics"
)

// SegmentGCController drains JournalCache's wait-delete-segment queue,
// deleting each segment's replica files and erasing its metadata once
// every replica confirms deletion, then advancing the owning shard's
// start-segment marker past it.
type SegmentGCController struct {
	journal   *cache.JournalCache
	placement *cache.PlacementCache
	node      RaftApplier
	client    *rpc.Client

	interval time.Duration
	timeout  time.Duration

	mu     sync.Mutex
	stopCh chan struct{}
}

// NewSegmentGCController returns a controller ticking every interval.
func NewSegmentGCController(journal *cache.JournalCache, placement *cache.PlacementCache, node RaftApplier, client *rpc.Client, interval time.Duration) *SegmentGCController {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &SegmentGCController{
		journal:   journal,
		placement: placement,
		node:      node,
		client:    client,
		interval:  interval,
		timeout:   10 * time.Second,
	}
}

// Start begins the reconciliation loop. A second call while already
// running is a no-op.
func (c *SegmentGCController) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopCh != nil {
		return
	}
	c.stopCh = make(chan struct{})
	go c.run(c.stopCh)
}

// Stop ends the reconciliation loop.
func (c *SegmentGCController) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopCh == nil {
		return
	}
	close(c.stopCh)
	c.stopCh = nil
}

func (c *SegmentGCController) run(stopCh chan struct{}) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	log.Info("segment gc controller started")

	for {
		select {
		case <-ticker.C:
			c.tick()
		case <-stopCh:
			log.Info("segment gc controller stopped")
			return
		}
	}
}

func (c *SegmentGCController) tick() {
	if !c.node.IsLeader() {
		return
	}

	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.GCTickDuration, "segment")
	metrics.GCTicksTotal.WithLabelValues("segment").Inc()

	for _, key := range c.journal.WaitDeleteSegmentList() {
		c.reconcileOne(key)
	}
}

func (c *SegmentGCController) reconcileOne(key types.SegmentKey) {
	seg, ok := c.journal.GetSegment(key)
	if !ok || seg.Status != types.SegmentStatusPrepareDelete {
		return
	}

	shardKey := seg.ShardRef()
	shard, ok := c.journal.GetShard(shardKey)
	if !ok {
		return
	}

	if err := c.markDeleting(*seg); err != nil {
		log.Errorf("segment gc: mark deleting", err)
		return
	}

	var addrs []string
	for _, rep := range seg.Replicas {
		if n, ok := c.placement.GetBrokerNode(key.ClusterName, rep.NodeID); ok {
			addrs = append(addrs, n.NodeInnerAddr)
		}
	}
	if len(addrs) == 0 {
		return
	}

	for _, addr := range addrs {
		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		req := &wire.DeleteSegmentFileRequest{Key: key}
		if err := c.client.RetryCall(ctx, wire.ServiceJournal, wire.InterfaceDeleteSegmentFile, []string{addr}, req, nil); err != nil {
			log.Errorf("segment gc: delete segment file", err)
		}
		cancel()
	}

	allDone := true
	for _, addr := range addrs {
		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		var reply wire.GetSegmentDeleteStatusReply
		req := &wire.GetSegmentDeleteStatusRequest{Key: key}
		err := c.client.RetryCall(ctx, wire.ServiceJournal, wire.InterfaceGetSegmentDeleteStatus, []string{addr}, req, &reply)
		cancel()
		if err != nil {
			log.Errorf("segment gc: get delete status", err)
			allDone = false
			continue
		}
		if !reply.Status {
			allDone = false
		}
	}

	if !allDone {
		return
	}

	if err := c.removeSegment(key); err != nil {
		log.Errorf("segment gc: remove segment metadata", err)
		return
	}
	c.journal.DequeueSegmentDelete(key)
	metrics.GCSegmentsDeletedTotal.Inc()

	if err := c.advanceStartSegment(*shard, key.SegmentSeq); err != nil {
		log.Errorf("segment gc: advance shard start segment", err)
	}
}

func (c *SegmentGCController) markDeleting(seg types.JournalSegment) error {
	seg.Status = types.SegmentStatusDeleting
	data, err := json.Marshal(seg)
	if err != nil {
		return err
	}
	return c.node.Apply(fsm.Command{Op: fsm.OpUpdateSegment, Data: data})
}

func (c *SegmentGCController) removeSegment(key types.SegmentKey) error {
	data, err := json.Marshal(key)
	if err != nil {
		return err
	}
	return c.node.Apply(fsm.Command{Op: fsm.OpRemoveSegment, Data: data})
}

// advanceStartSegment moves shard.StartSegmentSeq past a deleted
// segment, so readers stop looking for it.
func (c *SegmentGCController) advanceStartSegment(shard types.JournalShard, deletedSeq uint32) error {
	if shard.StartSegmentSeq > deletedSeq {
		return nil
	}
	shard.StartSegmentSeq = deletedSeq + 1
	data, err := json.Marshal(shard)
	if err != nil {
		return err
	}
	return c.node.Apply(fsm.Command{Op: fsm.OpUpdateShard, Data: data})
}
