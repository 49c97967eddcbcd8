package storage

import (
	"context"

	"github.com/flowmesh/streamlog/internal/storage/log"
	"github.com/flowmesh/streamlog/internal/storage/metastore"
	"github.com/flowmesh/streamlog/internal/storage/streams"
)

// Lifecycle defines the lifecycle methods for storage components
type Lifecycle interface {
	// Start loads persisted state and starts background work
	Start(ctx context.Context) error
	// Close flushes and releases every resource
	Close(ctx context.Context) error
	// Ready returns true once Start completed
	Ready() bool
}

// Catalog defines stream and topic management
type Catalog interface {
	CreateStream(streamID uint32, name string) (*metastore.Stream, error)
	CreateTopic(streamID, topicID uint32, name string, partitionsCount uint32) (*metastore.Topic, error)
	GetStreams() ([]*metastore.Stream, error)
	GetTopics(streamID uint32) ([]*metastore.Topic, error)
}

// PartitionWriter defines the interface for appending to partitions
type PartitionWriter interface {
	// AppendMessages appends msgs as one batch and assigns their offsets
	AppendMessages(key streams.PartitionKey, msgs []*log.Message) error
	// WriteEvents appends events and returns the offsets they were given
	WriteEvents(key streams.PartitionKey, events []streams.Event) ([]uint64, error)
}

// PartitionReader defines the interface for reading from partitions
type PartitionReader interface {
	// GetMessages returns up to count messages starting at offset
	GetMessages(key streams.PartitionKey, offset uint64, count uint32) ([]*log.Message, error)
	// GetOffsetByTimestamp resolves a unix microsecond timestamp to an offset
	GetOffsetByTimestamp(key streams.PartitionKey, timestamp uint64) (uint64, error)
}

var (
	_ Lifecycle       = (*Storage)(nil)
	_ Catalog         = (*streams.Manager)(nil)
	_ PartitionWriter = (*streams.Manager)(nil)
	_ PartitionReader = (*streams.Manager)(nil)
)
