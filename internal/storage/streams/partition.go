package streams

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/flowmesh/streamlog/internal/logger"
	"github.com/flowmesh/streamlog/internal/metrics"
	"github.com/flowmesh/streamlog/internal/storage/log"
	"github.com/rs/zerolog"
)

// Partition is the ordered, append-only sequence of segments of one partition.
// The last segment is the active one; all others are sealed and read-only.
//
// Appends take the partition lock exclusively; reads share it.
type Partition struct {
	streamID uint32
	topicID  uint32
	id       uint32
	path     string
	config   *log.Config
	segments []*log.Segment
	metrics  *metrics.StorageMetrics
	log      zerolog.Logger
	mu       sync.RWMutex
}

// NewPartition creates a partition rooted at path. It holds no segment until Init or Load.
func NewPartition(streamID, topicID, id uint32, path string, config *log.Config, m *metrics.StorageMetrics) *Partition {
	return &Partition{
		streamID: streamID,
		topicID:  topicID,
		id:       id,
		path:     path,
		config:   config,
		metrics:  m,
		log: logger.WithComponent("partition").With().
			Uint32("stream_id", streamID).
			Uint32("topic_id", topicID).
			Uint32("partition_id", id).
			Logger(),
	}
}

// Init creates the partition directory and its first segment at offset 0
func (p *Partition) Init() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := os.MkdirAll(p.path, 0755); err != nil {
		return fmt.Errorf("failed to create partition directory %s: %w", p.path, err)
	}

	segment := log.NewSegment(p.id, 0, p.path, p.config)
	if err := segment.Persist(); err != nil {
		return err
	}
	p.segments = []*log.Segment{segment}
	p.metrics.RecordSegmentCreated(p.streamID, p.topicID, p.id, len(p.segments))

	p.log.Info().Str("path", p.path).Msg("Partition initialized")
	return nil
}

// Load restores every segment found in the partition directory. A partition
// without segment files is initialized instead.
func (p *Partition) Load() error {
	starts, err := p.segmentStartOffsets()
	if err != nil {
		return err
	}
	if len(starts) == 0 {
		return p.Init()
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	segments := make([]*log.Segment, 0, len(starts))
	for i, start := range starts {
		segment := log.NewSegment(p.id, start, p.path, p.config)
		if i < len(starts)-1 {
			segment.Seal(starts[i+1] - 1)
		}
		if err := segment.Load(); err != nil {
			return fmt.Errorf("failed to load segment %d of partition %d: %w", start, p.id, err)
		}
		segments = append(segments, segment)
	}
	p.segments = segments

	active := segments[len(segments)-1]
	p.metrics.UpdatePartition(p.streamID, p.topicID, p.id, active.CurrentOffset(), len(segments))

	p.log.Info().
		Int("segments", len(segments)).
		Uint64("current_offset", active.CurrentOffset()).
		Msg("Partition loaded")
	return nil
}

// segmentStartOffsets lists the start offsets of the segment logs on disk in ascending order
func (p *Partition) segmentStartOffsets() ([]uint64, error) {
	entries, err := os.ReadDir(p.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list partition directory %s: %w", p.path, err)
	}

	suffix := "." + log.LogExtension
	var starts []uint64
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, suffix) {
			continue
		}
		digits := strings.TrimSuffix(name, suffix)
		if len(digits) != 20 {
			continue
		}
		start, err := strconv.ParseUint(digits, 10, 64)
		if err != nil {
			p.log.Warn().Str("file", name).Msg("Skipping unrecognized segment file")
			continue
		}
		starts = append(starts, start)
	}

	sort.Slice(starts, func(i, j int) bool { return starts[i] < starts[j] })
	return starts, nil
}

// segmentEndOffset is the last offset a segment covers: its end offset once sealed,
// its current offset while active.
func segmentEndOffset(segment *log.Segment) uint64 {
	if segment.IsSealed() {
		return segment.EndOffset()
	}
	return segment.CurrentOffset()
}

// GetMessages returns up to count messages starting at offset, in ascending offset
// order. The range is clamped to the last written offset.
func (p *Partition) GetMessages(offset uint64, count uint32) ([]*log.Message, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if len(p.segments) == 0 || count == 0 {
		return []*log.Message{}, nil
	}

	endOffset := offset + uint64(count) - 1
	if endOffset < offset {
		endOffset = math.MaxUint64
	}
	if last := p.segments[len(p.segments)-1].CurrentOffset(); endOffset > last {
		endOffset = last
	}

	var selected []*log.Segment
	for _, segment := range p.segments {
		start := segment.StartOffset()
		end := segmentEndOffset(segment)
		if (start >= offset && end <= endOffset) ||
			(start <= offset && end >= offset) ||
			(start <= endOffset && end >= endOffset) {
			selected = append(selected, segment)
		}
	}

	switch len(selected) {
	case 0:
		return []*log.Message{}, nil
	case 1:
		return selected[0].GetMessages(offset, count)
	}

	messages := make([]*log.Message, 0, endOffset-offset+1)
	for _, segment := range selected {
		msgs, err := segment.GetMessages(offset, count)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msgs...)
	}
	return messages, nil
}

// AppendMessages appends msgs to the active segment, rotating to a new segment
// first when the active one is full. Offsets continue from the last message.
func (p *Partition) AppendMessages(msgs []*log.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.segments) == 0 {
		return SegmentNotFoundError{StreamID: p.streamID, TopicID: p.topicID, PartitionID: p.id}
	}

	active := p.segments[len(p.segments)-1]
	if active.IsFull() || active.IsSealed() {
		segment, err := p.rotateLocked(active)
		if err != nil {
			return err
		}
		active = segment
	}

	return active.AppendMessages(msgs)
}

// rotateLocked creates and persists the segment following previous
func (p *Partition) rotateLocked(previous *log.Segment) (*log.Segment, error) {
	if !previous.IsSealed() {
		previous.Seal(previous.CurrentOffset())
	}
	startOffset := previous.EndOffset() + 1

	segment := log.NewSegment(p.id, startOffset, p.path, p.config)
	if err := segment.Persist(); err != nil {
		return nil, err
	}

	p.segments = append(p.segments, segment)
	sort.SliceStable(p.segments, func(i, j int) bool {
		return p.segments[i].StartOffset() < p.segments[j].StartOffset()
	})
	p.metrics.RecordSegmentCreated(p.streamID, p.topicID, p.id, len(p.segments))

	p.log.Info().
		Uint64("previous_start_offset", previous.StartOffset()).
		Uint64("previous_end_offset", previous.EndOffset()).
		Uint64("start_offset", startOffset).
		Int("segments", len(p.segments)).
		Msg("Segment rotated")

	return p.segments[len(p.segments)-1], nil
}

// GetOffsetByTimestamp returns the offset of the closest indexed message at or
// before timestamp (unix microseconds). A timestamp older than every indexed
// message resolves to the first indexed offset.
func (p *Partition) GetOffsetByTimestamp(timestamp uint64) (uint64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var candidate *log.Segment
	for _, segment := range p.segments {
		entries := segment.TimeIndexes()
		if len(entries) == 0 {
			continue
		}
		if candidate == nil || entries[0].Timestamp <= timestamp {
			candidate = segment
		}
		if entries[0].Timestamp > timestamp {
			break
		}
	}
	if candidate == nil {
		return 0, log.TimestampNotFoundError{Timestamp: timestamp}
	}
	return candidate.FindOffsetByTimestamp(timestamp)
}

// Flush writes buffered data of every segment to disk, optionally syncing it
func (p *Partition) Flush(sync bool) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, segment := range p.segments {
		if err := segment.Flush(sync); err != nil {
			return err
		}
	}
	return nil
}

// Close flushes and closes every segment
func (p *Partition) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var lastErr error
	for _, segment := range p.segments {
		if err := segment.Close(); err != nil {
			p.log.Error().Err(err).Uint64("start_offset", segment.StartOffset()).Msg("Failed to close segment")
			lastErr = err
		}
	}
	return lastErr
}

// CurrentOffset returns the offset of the last appended message
func (p *Partition) CurrentOffset() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if len(p.segments) == 0 {
		return 0
	}
	return p.segments[len(p.segments)-1].CurrentOffset()
}

// IsEmpty reports whether no message was ever appended to the partition
func (p *Partition) IsEmpty() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return len(p.segments) == 0 || (len(p.segments) == 1 && p.segments[0].IsEmpty())
}

// SegmentsCount returns the number of segments
func (p *Partition) SegmentsCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.segments)
}

// Segments returns a snapshot of every segment in start offset order
func (p *Partition) Segments() []log.SegmentInfo {
	p.mu.RLock()
	defer p.mu.RUnlock()

	infos := make([]log.SegmentInfo, 0, len(p.segments))
	for _, segment := range p.segments {
		infos = append(infos, segment.Info())
	}
	return infos
}

// Key returns the partition's address
func (p *Partition) Key() PartitionKey {
	return PartitionKey{StreamID: p.streamID, TopicID: p.topicID, PartitionID: p.id}
}

// Path returns the partition directory
func (p *Partition) Path() string { return p.path }

// PartitionPath returns the directory of a partition below the streams directory
func PartitionPath(streamsDir string, key PartitionKey) string {
	return filepath.Join(streamsDir,
		strconv.FormatUint(uint64(key.StreamID), 10),
		"topics", strconv.FormatUint(uint64(key.TopicID), 10),
		"partitions", strconv.FormatUint(uint64(key.PartitionID), 10))
}
