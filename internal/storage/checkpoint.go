package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// CheckpointVersion is the format version written into new checkpoints
const CheckpointVersion = 1

// Checkpoint is a snapshot of the last offset of every partition
type Checkpoint struct {
	// Version for compatibility
	Version int `json:"version"`

	// Timestamp when checkpoint was created
	Timestamp time.Time `json:"timestamp"`

	// Partitions keyed by "stream/topic/partition"
	Partitions map[string]PartitionCheckpoint `json:"partitions"`
}

// PartitionCheckpoint is the recorded state of one partition
type PartitionCheckpoint struct {
	CurrentOffset uint64 `json:"current_offset"`
	Empty         bool   `json:"empty"`
	Segments      int    `json:"segments"`
}

// NewCheckpoint creates an empty checkpoint stamped with the current time
func NewCheckpoint() *Checkpoint {
	return &Checkpoint{
		Version:    CheckpointVersion,
		Timestamp:  time.Now(),
		Partitions: make(map[string]PartitionCheckpoint),
	}
}

// Save writes the checkpoint to path through a temp file and a rename
func (c *Checkpoint) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create checkpoint directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write checkpoint temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		//nolint:errcheck // Clean up temp file, ignore remove error
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename checkpoint file: %w", err)
	}

	return nil
}

// LoadCheckpoint reads a checkpoint file
func LoadCheckpoint(path string) (*Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint file: %w", err)
	}

	var checkpoint Checkpoint
	if err := json.Unmarshal(data, &checkpoint); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	if checkpoint.Version != CheckpointVersion {
		return nil, fmt.Errorf("unsupported checkpoint version %d in %s", checkpoint.Version, path)
	}
	if checkpoint.Partitions == nil {
		checkpoint.Partitions = make(map[string]PartitionCheckpoint)
	}

	return &checkpoint, nil
}
