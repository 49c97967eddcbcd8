package streams

import "fmt"

// SegmentNotFoundError indicates an append on a partition that holds no segment
type SegmentNotFoundError struct {
	StreamID    uint32
	TopicID     uint32
	PartitionID uint32
}

func (e SegmentNotFoundError) Error() string {
	return fmt.Sprintf("segment not found for partition %d of topic %d in stream %d",
		e.PartitionID, e.TopicID, e.StreamID)
}

// PartitionNotFoundError indicates the requested partition is not managed
type PartitionNotFoundError struct {
	Key PartitionKey
}

func (e PartitionNotFoundError) Error() string {
	return fmt.Sprintf("partition not found: %s", e.Key)
}

// ReadError indicates a failed partition read
type ReadError struct {
	Key    PartitionKey
	Offset uint64
	Err    error
}

func (e ReadError) Error() string {
	return fmt.Sprintf("failed to read from partition %s at offset %d: %v", e.Key, e.Offset, e.Err)
}

func (e ReadError) Unwrap() error {
	return e.Err
}

// WriteError indicates a failed partition append
type WriteError struct {
	Key PartitionKey
	Err error
}

func (e WriteError) Error() string {
	return fmt.Sprintf("failed to write to partition %s: %v", e.Key, e.Err)
}

func (e WriteError) Unwrap() error {
	return e.Err
}
