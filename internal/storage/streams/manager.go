package streams

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/flowmesh/streamlog/internal/logger"
	"github.com/flowmesh/streamlog/internal/metrics"
	"github.com/flowmesh/streamlog/internal/storage/log"
	"github.com/flowmesh/streamlog/internal/storage/metastore"
	"github.com/rs/zerolog"
)

// PartitionKey addresses one partition of one topic of one stream
type PartitionKey struct {
	StreamID    uint32
	TopicID     uint32
	PartitionID uint32
}

func (k PartitionKey) String() string {
	return fmt.Sprintf("%d/%d/%d", k.StreamID, k.TopicID, k.PartitionID)
}

// Event is a payload to be appended to a partition
type Event struct {
	Payload []byte
	Headers map[string]string
}

// Manager owns every partition of the catalog and routes reads and appends to them
type Manager struct {
	metaStore  *metastore.Store
	streamsDir string
	config     *log.Config
	scheduler  *log.FsyncScheduler
	metrics    *metrics.StorageMetrics
	partitions map[PartitionKey]*Partition
	log        zerolog.Logger
	mu         sync.RWMutex
}

// NewManager creates a partition manager. scheduler and m may be nil.
func NewManager(
	metaStore *metastore.Store,
	streamsDir string,
	config *log.Config,
	scheduler *log.FsyncScheduler,
	m *metrics.StorageMetrics,
) *Manager {
	return &Manager{
		metaStore:  metaStore,
		streamsDir: streamsDir,
		config:     config,
		scheduler:  scheduler,
		metrics:    m,
		partitions: make(map[PartitionKey]*Partition),
		log:        logger.WithComponent("streams"),
	}
}

// CreateStream registers a stream and creates its directory
func (m *Manager) CreateStream(streamID uint32, name string) (*metastore.Stream, error) {
	stream := &metastore.Stream{ID: streamID, Name: name}
	if err := m.metaStore.CreateStream(stream); err != nil {
		return nil, err
	}

	dir := filepath.Join(m.streamsDir, strconv.FormatUint(uint64(streamID), 10))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create stream directory %s: %w", dir, err)
	}
	return stream, nil
}

// CreateTopic registers a topic and initializes each of its partitions
func (m *Manager) CreateTopic(streamID, topicID uint32, name string, partitionsCount uint32) (*metastore.Topic, error) {
	topic := &metastore.Topic{
		ID:              topicID,
		StreamID:        streamID,
		Name:            name,
		PartitionsCount: partitionsCount,
	}
	if err := m.metaStore.CreateTopic(topic); err != nil {
		return nil, err
	}

	for id := uint32(1); id <= partitionsCount; id++ {
		key := PartitionKey{StreamID: streamID, TopicID: topicID, PartitionID: id}
		partition := NewPartition(streamID, topicID, id, PartitionPath(m.streamsDir, key), m.config, m.metrics)
		if err := partition.Init(); err != nil {
			return nil, fmt.Errorf("failed to initialize partition %s: %w", key, err)
		}
		m.register(key, partition)
	}

	m.log.Info().
		Uint32("stream_id", streamID).
		Uint32("topic_id", topicID).
		Uint32("partitions", partitionsCount).
		Msg("Topic partitions initialized")
	return topic, nil
}

// GetStreams returns every registered stream
func (m *Manager) GetStreams() ([]*metastore.Stream, error) {
	return m.metaStore.GetStreams()
}

// GetTopics returns the topics of a stream
func (m *Manager) GetTopics(streamID uint32) ([]*metastore.Topic, error) {
	return m.metaStore.GetTopics(streamID)
}

// Load restores every partition listed in the catalog
func (m *Manager) Load() error {
	streams, err := m.metaStore.GetStreams()
	if err != nil {
		return err
	}

	loaded := 0
	for _, stream := range streams {
		topics, err := m.metaStore.GetTopics(stream.ID)
		if err != nil {
			return err
		}
		for _, topic := range topics {
			for id := uint32(1); id <= topic.PartitionsCount; id++ {
				key := PartitionKey{StreamID: stream.ID, TopicID: topic.ID, PartitionID: id}
				partition := NewPartition(stream.ID, topic.ID, id, PartitionPath(m.streamsDir, key), m.config, m.metrics)
				if err := partition.Load(); err != nil {
					return fmt.Errorf("failed to load partition %s: %w", key, err)
				}
				m.register(key, partition)
				loaded++
			}
		}
	}

	m.log.Info().Int("streams", len(streams)).Int("partitions", loaded).Msg("Partitions loaded")
	return nil
}

func (m *Manager) register(key PartitionKey, partition *Partition) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.partitions[key] = partition
	if m.scheduler != nil {
		m.scheduler.Register(partition)
	}
}

// GetPartition returns a managed partition
func (m *Manager) GetPartition(key PartitionKey) (*Partition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	partition, ok := m.partitions[key]
	if !ok {
		return nil, PartitionNotFoundError{Key: key}
	}
	return partition, nil
}

// Partitions returns the keys of every managed partition in key order
func (m *Manager) Partitions() []PartitionKey {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]PartitionKey, 0, len(m.partitions))
	for key := range m.partitions {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.StreamID != b.StreamID {
			return a.StreamID < b.StreamID
		}
		if a.TopicID != b.TopicID {
			return a.TopicID < b.TopicID
		}
		return a.PartitionID < b.PartitionID
	})
	return keys
}

// GetMessages reads up to count messages of a partition starting at offset
func (m *Manager) GetMessages(key PartitionKey, offset uint64, count uint32) ([]*log.Message, error) {
	partition, err := m.GetPartition(key)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	messages, err := partition.GetMessages(offset, count)
	if err != nil {
		m.metrics.RecordError(key.StreamID, key.TopicID, key.PartitionID, metrics.OperationRead)
		return nil, ReadError{Key: key, Offset: offset, Err: err}
	}
	m.metrics.RecordRead(key.StreamID, key.TopicID, key.PartitionID, len(messages), time.Since(start))

	return messages, nil
}

// AppendMessages appends messages to a partition
func (m *Manager) AppendMessages(key PartitionKey, messages []*log.Message) error {
	if len(messages) == 0 {
		return nil
	}

	partition, err := m.GetPartition(key)
	if err != nil {
		return err
	}

	start := time.Now()
	if err := partition.AppendMessages(messages); err != nil {
		m.metrics.RecordError(key.StreamID, key.TopicID, key.PartitionID, metrics.OperationAppend)
		var notFound SegmentNotFoundError
		if errors.As(err, &notFound) {
			return err
		}
		return WriteError{Key: key, Err: err}
	}

	bytes := 0
	for _, msg := range messages {
		bytes += len(msg.Payload)
	}
	m.metrics.RecordAppend(key.StreamID, key.TopicID, key.PartitionID, len(messages), bytes, time.Since(start))
	m.metrics.UpdatePartition(key.StreamID, key.TopicID, key.PartitionID,
		partition.CurrentOffset(), partition.SegmentsCount())

	m.log.Debug().
		Str("partition", key.String()).
		Int("count", len(messages)).
		Uint64("first_offset", messages[0].Offset).
		Uint64("last_offset", messages[len(messages)-1].Offset).
		Msg("Messages appended")

	return nil
}

// WriteEvents appends events to a partition and returns their assigned offsets
func (m *Manager) WriteEvents(key PartitionKey, events []Event) ([]uint64, error) {
	messages := make([]*log.Message, 0, len(events))
	for _, event := range events {
		messages = append(messages, log.NewMessage(event.Payload, event.Headers))
	}

	if err := m.AppendMessages(key, messages); err != nil {
		return nil, err
	}

	offsets := make([]uint64, 0, len(messages))
	for _, msg := range messages {
		offsets = append(offsets, msg.Offset)
	}
	return offsets, nil
}

// GetOffsetByTimestamp resolves a unix microsecond timestamp to an offset of a partition
func (m *Manager) GetOffsetByTimestamp(key PartitionKey, timestamp uint64) (uint64, error) {
	partition, err := m.GetPartition(key)
	if err != nil {
		return 0, err
	}
	return partition.GetOffsetByTimestamp(timestamp)
}

// FlushAll flushes every partition
func (m *Manager) FlushAll(sync bool) error {
	m.mu.RLock()
	partitions := make([]*Partition, 0, len(m.partitions))
	for _, partition := range m.partitions {
		partitions = append(partitions, partition)
	}
	m.mu.RUnlock()

	var lastErr error
	for _, partition := range partitions {
		if err := partition.Flush(sync); err != nil {
			m.log.Error().Err(err).Str("partition", partition.Key().String()).Msg("Failed to flush partition")
			lastErr = err
		}
	}
	return lastErr
}

// CloseAll closes every partition and forgets them
func (m *Manager) CloseAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var lastErr error
	for key, partition := range m.partitions {
		if m.scheduler != nil {
			m.scheduler.Unregister(partition)
		}
		if err := partition.Close(); err != nil {
			m.log.Error().Err(err).Str("partition", key.String()).Msg("Failed to close partition")
			lastErr = err
		}
	}
	m.partitions = make(map[PartitionKey]*Partition)
	return lastErr
}
