package log

import (
	"math"
	"time"

	"github.com/google/uuid"
)

const (
	// LogExtension is the file extension of segment log files
	LogExtension = "log"
	// IndexExtension is the file extension of segment offset index files
	IndexExtension = "index"
	// TimeIndexExtension is the file extension of segment time index files
	TimeIndexExtension = "timeindex"

	// DefaultSegmentSize is the default maximum segment size (1GB)
	DefaultSegmentSize = 1_000_000_000
	// DefaultMessagesBuffer is the default capacity of the in-memory message cache
	DefaultMessagesBuffer = 1000
	// DefaultMessagesRequiredToSave is the default number of unsaved messages that triggers a flush
	DefaultMessagesRequiredToSave = 1000
	// DefaultTimeIndexInterval indexes every Nth message in the time index
	DefaultTimeIndexInterval = 100
)

// FsyncPolicy defines when to sync data to disk
type FsyncPolicy string

const (
	// FsyncAlways flushes and syncs after every append (maximum durability, lower throughput)
	FsyncAlways FsyncPolicy = "always"
	// FsyncInterval syncs at regular time intervals (optimal for most use cases)
	FsyncInterval FsyncPolicy = "interval"
)

// Compression selects the payload codec used for new log records
type Compression string

const (
	// CompressionNone stores payloads as-is
	CompressionNone Compression = "none"
	// CompressionZstd stores payloads zstd-compressed
	CompressionZstd Compression = "zstd"
)

// Message represents a record stored in a partition log.
// A message is immutable once AppendMessages has returned; readers share the pointer.
type Message struct {
	// Offset is the position of the message within its partition
	Offset uint64
	// Timestamp is the append time in unix microseconds
	Timestamp uint64
	// ID uniquely identifies the message
	ID uuid.UUID
	// Headers contains optional metadata; an empty map is stored as nil
	Headers map[string]string
	// Payload is the raw message payload
	Payload []byte
}

// NewMessage creates a message ready to be appended. Offset, timestamp and ID
// are assigned by the segment.
func NewMessage(payload []byte, headers map[string]string) *Message {
	return &Message{
		Payload: payload,
		Headers: headers,
	}
}

// Time returns the message timestamp as time.Time
func (m *Message) Time() time.Time {
	return time.UnixMicro(int64(m.Timestamp))
}

// Size returns the uncompressed encoded size of the message record
func (m *Message) Size() int {
	size := RecordHeaderSize + recordFixedBodySize + headersSize(m.Headers) + len(m.Payload)
	return size
}

// Config holds per-segment configuration shared by every segment of a partition
type Config struct {
	// SizeBytes is the size at which a segment is considered full
	SizeBytes uint64
	// MessagesBuffer is the capacity of the in-memory message cache
	MessagesBuffer uint32
	// MessagesRequiredToSave is the number of unsaved messages that triggers a flush
	MessagesRequiredToSave uint32
	// TimeIndexInterval indexes the first message and then every Nth message
	TimeIndexInterval uint32
	// FsyncPolicy determines when appended data is synced to disk
	FsyncPolicy FsyncPolicy
	// Compression is the payload codec for new records
	Compression Compression
}

// DefaultConfig returns the default segment configuration
func DefaultConfig() *Config {
	return &Config{
		SizeBytes:              DefaultSegmentSize,
		MessagesBuffer:         DefaultMessagesBuffer,
		MessagesRequiredToSave: DefaultMessagesRequiredToSave,
		TimeIndexInterval:      DefaultTimeIndexInterval,
		FsyncPolicy:            FsyncInterval,
		Compression:            CompressionNone,
	}
}

// Validate validates the segment configuration
func (c *Config) Validate() error {
	if c.SizeBytes == 0 {
		return InvalidConfigError{Field: "SizeBytes", Reason: "must be greater than zero"}
	}
	// Index entries store byte positions as u32.
	if c.SizeBytes > math.MaxUint32 {
		return InvalidConfigError{Field: "SizeBytes", Reason: "must fit in 32 bits"}
	}
	if c.MessagesBuffer == 0 {
		return InvalidConfigError{Field: "MessagesBuffer", Reason: "must be greater than zero"}
	}
	if c.MessagesRequiredToSave == 0 {
		return InvalidConfigError{Field: "MessagesRequiredToSave", Reason: "must be greater than zero"}
	}
	if c.TimeIndexInterval == 0 {
		return InvalidConfigError{Field: "TimeIndexInterval", Reason: "must be greater than zero"}
	}
	if c.FsyncPolicy != FsyncAlways && c.FsyncPolicy != FsyncInterval {
		return InvalidConfigError{Field: "FsyncPolicy", Reason: "must be 'always' or 'interval'"}
	}
	if c.Compression != CompressionNone && c.Compression != CompressionZstd {
		return InvalidConfigError{Field: "Compression", Reason: "must be 'none' or 'zstd'"}
	}
	return nil
}

// SegmentInfo is a point-in-time snapshot of a segment's counters
type SegmentInfo struct {
	PartitionID   uint32
	StartOffset   uint64
	CurrentOffset uint64
	EndOffset     uint64
	Sealed        bool
	SizeBytes     uint64
	SavedBytes    uint64
	MessagesCount uint64
	LogPath       string
	IndexPath     string
	TimeIndexPath string
}
