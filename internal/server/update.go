package server

import (
	"github.com/cuemby/mqplane/internal/cache"
	"github.com/cuemby/mqplane/internal/notify"
	"github.com/cuemby/mqplane/internal/rpc/wire"
	"github.com/cuemby/mqplane/internal/store"
	"github.com/cuemby/mqplane/pkg/log"
)

// applyJournalUpdate decodes an UpdateCacheRequest's payload per its
// ResourceType/Action and mutates journal accordingly. Malformed
// payloads are logged and dropped by notify.DecodePayload rather than
// propagated, matching the fail-open contract cache-update delivery
// runs under. idx may be nil (no offset index configured); when
// present, a segment add/update also records its first/last offset so
// the offset index stays current without a separate write path.
func applyJournalUpdate(journal *cache.JournalCache, req *wire.UpdateCacheRequest, idx *store.Store) {
	switch req.ResourceType {
	case wire.ResourceShard:
		switch req.Action {
		case wire.ActionAdd, wire.ActionUpdate:
			var p notify.ShardAdd
			if notify.DecodePayload(req, &p) {
				journal.AddShard(&p.Shard)
			}
		case wire.ActionDelete:
			var p notify.ShardDelete
			if notify.DecodePayload(req, &p) {
				journal.RemoveShard(p.Key)
			}
		}
	case wire.ResourceSegment:
		switch req.Action {
		case wire.ActionAdd, wire.ActionUpdate:
			var p notify.SegmentAdd
			if notify.DecodePayload(req, &p) {
				journal.AddSegment(&p.Segment)
				if idx != nil {
					if err := idx.SaveStartOffset(p.Segment.SegmentKey, p.Segment.FirstOffset); err != nil {
						log.Errorf("offset index: save start offset", err)
					}
					if err := idx.SaveEndOffset(p.Segment.SegmentKey, p.Segment.LastOffset); err != nil {
						log.Errorf("offset index: save end offset", err)
					}
				}
			}
		case wire.ActionDelete:
			var p notify.SegmentDelete
			if notify.DecodePayload(req, &p) {
				journal.RemoveSegment(p.Key)
			}
		}
	}
}

// applyBrokerUpdate decodes an UpdateCacheRequest's payload per its
// ResourceType/Action and mutates broker accordingly.
func applyBrokerUpdate(broker *cache.BrokerCache, req *wire.UpdateCacheRequest) {
	switch req.ResourceType {
	case wire.ResourceCluster:
		switch req.Action {
		case wire.ActionAdd, wire.ActionUpdate:
			var p notify.ClusterAdd
			if notify.DecodePayload(req, &p) {
				broker.SetClusterInfo(&p.Cluster)
			}
		}
	case wire.ResourceUser:
		switch req.Action {
		case wire.ActionAdd, wire.ActionUpdate:
			var p notify.UserAdd
			if notify.DecodePayload(req, &p) {
				broker.AddUser(&p.User)
			}
		case wire.ActionDelete:
			var p notify.UserDelete
			if notify.DecodePayload(req, &p) {
				broker.RemoveUser(p.ClusterName, p.Username)
			}
		}
	case wire.ResourceTopic:
		switch req.Action {
		case wire.ActionAdd, wire.ActionUpdate:
			var p notify.TopicAdd
			if notify.DecodePayload(req, &p) {
				broker.AddTopic(&p.Topic)
			}
		case wire.ActionDelete:
			var p notify.TopicDelete
			if notify.DecodePayload(req, &p) {
				broker.RemoveTopic(p.ClusterName, p.TopicName)
			}
		}
	}
}
