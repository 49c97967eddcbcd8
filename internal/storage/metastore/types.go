package metastore

import (
	"fmt"
	"time"
)

const (
	// MaxNameLength is the maximum length of a stream or topic name
	MaxNameLength = 255
	// MaxPartitionsCount is the maximum number of partitions of one topic
	MaxPartitionsCount = 1000
)

// Stream is a named group of topics
type Stream struct {
	// ID is the numeric stream identifier (> 0)
	ID uint32 `json:"id"`
	// Name is the human readable stream name
	Name string `json:"name"`
	// CreatedAt is when the stream was registered
	CreatedAt time.Time `json:"created_at"`
}

// Topic is a named set of partitions inside a stream
type Topic struct {
	// ID is the numeric topic identifier, unique within its stream (> 0)
	ID uint32 `json:"id"`
	// StreamID is the owning stream
	StreamID uint32 `json:"stream_id"`
	// Name is the human readable topic name
	Name string `json:"name"`
	// PartitionsCount is the number of partitions, numbered 1..PartitionsCount
	PartitionsCount uint32 `json:"partitions_count"`
	// CreatedAt is when the topic was registered
	CreatedAt time.Time `json:"created_at"`
}

// Validate validates the stream definition
func (s *Stream) Validate() error {
	if s.ID == 0 {
		return InvalidConfigError{Field: "id", Reason: "must be greater than zero"}
	}
	return validateName(s.Name)
}

// Validate validates the topic definition
func (t *Topic) Validate() error {
	if t.StreamID == 0 {
		return InvalidConfigError{Field: "stream_id", Reason: "must be greater than zero"}
	}
	if t.ID == 0 {
		return InvalidConfigError{Field: "id", Reason: "must be greater than zero"}
	}
	if t.PartitionsCount == 0 || t.PartitionsCount > MaxPartitionsCount {
		return InvalidConfigError{
			Field:  "partitions_count",
			Reason: fmt.Sprintf("must be between 1 and %d", MaxPartitionsCount),
		}
	}
	return validateName(t.Name)
}

func validateName(name string) error {
	if name == "" {
		return InvalidConfigError{Field: "name", Reason: "cannot be empty"}
	}
	if len(name) > MaxNameLength {
		return InvalidConfigError{Field: "name", Reason: fmt.Sprintf("exceeds %d characters", MaxNameLength)}
	}
	return nil
}

func streamKey(streamID uint32) []byte {
	return []byte(fmt.Sprintf("%s%010d", streamsPrefix, streamID))
}

func topicsPrefix(streamID uint32) []byte {
	return []byte(fmt.Sprintf("%s%010d/", topicsKeyPrefix, streamID))
}

func topicKey(streamID, topicID uint32) []byte {
	return []byte(fmt.Sprintf("%s%010d/%010d", topicsKeyPrefix, streamID, topicID))
}
