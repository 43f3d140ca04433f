package store

import (
	"fmt"

	"github.com/cuemby/mqplane/internal/types"
)

// Grounded on original_source/journal-server/src/index/offset.rs's
// OffsetIndexManager: one key per segment per index kind, a missing key
// reads back as 0 rather than an error, and position offsets are keyed
// additionally by the log offset they resolve to a file position for.

func offsetSegmentKey(prefix string, k types.SegmentKey) []byte {
	return []byte(fmt.Sprintf("/%s/%s/%s/%s/%d", prefix, k.ClusterName, k.Namespace, k.ShardName, k.SegmentSeq))
}

func positionOffsetKey(k types.SegmentKey, offset uint64) []byte {
	return []byte(fmt.Sprintf("/idx_position_offset/%s/%s/%s/%d/%d", k.ClusterName, k.Namespace, k.ShardName, k.SegmentSeq, offset))
}

// SaveStartOffset records the first log offset still readable in segment k.
func (s *Store) SaveStartOffset(k types.SegmentKey, startOffset uint64) error {
	return s.put(bucketIdxStartOffset, offsetSegmentKey("idx_start_offset", k), startOffset)
}

// GetStartOffset returns segment k's start offset, or 0 if never saved.
func (s *Store) GetStartOffset(k types.SegmentKey) (uint64, error) {
	var v uint64
	_, err := s.get(bucketIdxStartOffset, offsetSegmentKey("idx_start_offset", k), &v)
	return v, err
}

// SaveEndOffset records the last log offset written to segment k.
func (s *Store) SaveEndOffset(k types.SegmentKey, endOffset uint64) error {
	return s.put(bucketIdxEndOffset, offsetSegmentKey("idx_end_offset", k), endOffset)
}

// GetEndOffset returns segment k's end offset, or 0 if never saved.
func (s *Store) GetEndOffset(k types.SegmentKey) (uint64, error) {
	var v uint64
	_, err := s.get(bucketIdxEndOffset, offsetSegmentKey("idx_end_offset", k), &v)
	return v, err
}

// SavePositionOffset records the on-disk byte position of a single log
// offset within segment k.
func (s *Store) SavePositionOffset(k types.SegmentKey, offset, position uint64) error {
	return s.put(bucketIdxPositionOffset, positionOffsetKey(k, offset), position)
}

// GetPositionOffset returns the byte position of offset within segment
// k, or 0 if never saved.
func (s *Store) GetPositionOffset(k types.SegmentKey, offset uint64) (uint64, error) {
	var v uint64
	_, err := s.get(bucketIdxPositionOffset, positionOffsetKey(k, offset), &v)
	return v, err
}

// SaveTimestampOffset records the log offset whose write time is the
// first to reach timestampMs, used to resolve time-based seeks.
func (s *Store) SaveTimestampOffset(k types.SegmentKey, timestampMs uint64, offset uint64) error {
	key := []byte(fmt.Sprintf("/idx_timestamp_offset/%s/%s/%s/%d/%d", k.ClusterName, k.Namespace, k.ShardName, k.SegmentSeq, timestampMs))
	return s.put(bucketIdxTimestampOffset, key, offset)
}

// GetTimestampOffset returns the offset saved for timestampMs in
// segment k, or 0 if never saved.
func (s *Store) GetTimestampOffset(k types.SegmentKey, timestampMs uint64) (uint64, error) {
	key := []byte(fmt.Sprintf("/idx_timestamp_offset/%s/%s/%s/%d/%d", k.ClusterName, k.Namespace, k.ShardName, k.SegmentSeq, timestampMs))
	var v uint64
	_, err := s.get(bucketIdxTimestampOffset, key, &v)
	return v, err
}
