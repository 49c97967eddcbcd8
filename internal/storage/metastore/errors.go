package metastore

import "fmt"

// StreamNotFoundError indicates a stream was not found
type StreamNotFoundError struct {
	StreamID uint32
}

func (e StreamNotFoundError) Error() string {
	return fmt.Sprintf("stream not found: %d", e.StreamID)
}

// TopicNotFoundError indicates a topic was not found
type TopicNotFoundError struct {
	StreamID uint32
	TopicID  uint32
}

func (e TopicNotFoundError) Error() string {
	return fmt.Sprintf("topic not found: %d in stream %d", e.TopicID, e.StreamID)
}

// ResourceExistsError indicates a stream or topic already exists
type ResourceExistsError struct {
	Key string
}

func (e ResourceExistsError) Error() string {
	return fmt.Sprintf("resource already exists: %s", e.Key)
}

// InvalidConfigError indicates an invalid stream or topic definition
type InvalidConfigError struct {
	Field  string
	Reason string
}

func (e InvalidConfigError) Error() string {
	return fmt.Sprintf("invalid config field '%s': %s", e.Field, e.Reason)
}
