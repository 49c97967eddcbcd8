package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/flowmesh/streamlog/internal/logger"
	"github.com/flowmesh/streamlog/internal/storage/streams"
	"github.com/rs/zerolog"
)

const (
	// DefaultCheckpointInterval is how often to save checkpoints
	DefaultCheckpointInterval = 30 * time.Second
	// DefaultMaxCheckpoints is how many checkpoint files to keep
	DefaultMaxCheckpoints = 5
	// CheckpointFilePattern is the filename pattern for checkpoints
	CheckpointFilePattern = "checkpoint-%020d.json"
)

// ErrNoCheckpoint is returned when the checkpoint directory holds no checkpoint
var ErrNoCheckpoint = errors.New("no checkpoints found")

// RecoveryGap describes a partition that came back with fewer messages than
// the last checkpoint recorded, or did not come back at all
type RecoveryGap struct {
	Partition          string
	CheckpointOffset   uint64
	RecoveredOffset    uint64
	PartitionRecovered bool
}

// CheckpointManager periodically records partition offsets and checks them after a restart
type CheckpointManager struct {
	manager          *streams.Manager
	checkpointDir    string
	interval         time.Duration
	maxCheckpoints   int
	stopCh           chan struct{}
	wg               sync.WaitGroup
	running          bool
	log              zerolog.Logger
	lastCheckpointAt time.Time
	mu               sync.RWMutex
}

// NewCheckpointManager creates a checkpoint manager. A zero interval disables
// periodic checkpoints; Stop still writes a final one.
func NewCheckpointManager(manager *streams.Manager, checkpointDir string, interval time.Duration) *CheckpointManager {
	return &CheckpointManager{
		manager:        manager,
		checkpointDir:  checkpointDir,
		interval:       interval,
		maxCheckpoints: DefaultMaxCheckpoints,
		stopCh:         make(chan struct{}),
		log:            logger.WithComponent("checkpoint"),
	}
}

// Start starts the checkpoint loop
func (cm *CheckpointManager) Start() {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.running || cm.interval <= 0 {
		return
	}
	cm.running = true
	cm.wg.Add(1)
	go cm.run()
	cm.log.Info().Dur("interval", cm.interval).Msg("Checkpoint manager started")
}

// Stop stops the checkpoint loop and saves a final checkpoint
func (cm *CheckpointManager) Stop() error {
	cm.mu.Lock()
	wasRunning := cm.running
	cm.running = false
	cm.mu.Unlock()

	if wasRunning {
		close(cm.stopCh)
		cm.wg.Wait()
	}

	if err := cm.SaveCheckpoint(); err != nil {
		return fmt.Errorf("failed to save final checkpoint: %w", err)
	}

	cm.log.Info().Msg("Checkpoint manager stopped")
	return nil
}

// run executes the checkpoint loop
func (cm *CheckpointManager) run() {
	defer cm.wg.Done()

	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	for {
		select {
		case <-cm.stopCh:
			return
		case <-ticker.C:
			if err := cm.SaveCheckpoint(); err != nil {
				cm.log.Error().Err(err).Msg("Failed to save checkpoint")
			}
		}
	}
}

// SaveCheckpoint writes the current partition offsets to a new checkpoint file
func (cm *CheckpointManager) SaveCheckpoint() error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	start := time.Now()
	checkpoint := cm.collectState()

	// Checkpoint names must sort in creation order.
	if !checkpoint.Timestamp.After(cm.lastCheckpointAt) {
		checkpoint.Timestamp = cm.lastCheckpointAt.Add(time.Nanosecond)
	}
	checkpointPath := cm.getCheckpointPath(checkpoint.Timestamp)

	if err := checkpoint.Save(checkpointPath); err != nil {
		return err
	}

	if err := cm.rotateCheckpoints(); err != nil {
		cm.log.Warn().Err(err).Msg("Failed to rotate old checkpoints")
	}

	cm.lastCheckpointAt = checkpoint.Timestamp

	cm.log.Debug().
		Str("path", checkpointPath).
		Int("partitions", len(checkpoint.Partitions)).
		Dur("duration", time.Since(start)).
		Msg("Checkpoint saved")

	return nil
}

// collectState snapshots every loaded partition
func (cm *CheckpointManager) collectState() *Checkpoint {
	checkpoint := NewCheckpoint()

	for _, key := range cm.manager.Partitions() {
		partition, err := cm.manager.GetPartition(key)
		if err != nil {
			continue
		}
		checkpoint.Partitions[key.String()] = PartitionCheckpoint{
			CurrentOffset: partition.CurrentOffset(),
			Empty:         partition.IsEmpty(),
			Segments:      partition.SegmentsCount(),
		}
	}

	return checkpoint
}

// LoadLatestCheckpoint loads the most recent checkpoint, or returns ErrNoCheckpoint
func (cm *CheckpointManager) LoadLatestCheckpoint() (*Checkpoint, error) {
	checkpoints, err := cm.listCheckpoints()
	if err != nil {
		return nil, err
	}

	if len(checkpoints) == 0 {
		return nil, ErrNoCheckpoint
	}

	latestPath := checkpoints[len(checkpoints)-1]
	checkpoint, err := LoadCheckpoint(latestPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint %s: %w", latestPath, err)
	}

	cm.log.Info().
		Str("path", latestPath).
		Time("timestamp", checkpoint.Timestamp).
		Msg("Loaded checkpoint")

	return checkpoint, nil
}

// VerifyRecovery compares the loaded partitions against checkpoint and returns
// every partition that is missing or behind the recorded offset
func (cm *CheckpointManager) VerifyRecovery(checkpoint *Checkpoint) []RecoveryGap {
	recovered := make(map[string]*streams.Partition)
	for _, key := range cm.manager.Partitions() {
		if partition, err := cm.manager.GetPartition(key); err == nil {
			recovered[key.String()] = partition
		}
	}

	var gaps []RecoveryGap
	for key, recorded := range checkpoint.Partitions {
		if recorded.Empty {
			continue
		}

		partition, ok := recovered[key]
		if !ok {
			gaps = append(gaps, RecoveryGap{Partition: key, CheckpointOffset: recorded.CurrentOffset})
			continue
		}
		if partition.IsEmpty() || partition.CurrentOffset() < recorded.CurrentOffset {
			gaps = append(gaps, RecoveryGap{
				Partition:          key,
				CheckpointOffset:   recorded.CurrentOffset,
				RecoveredOffset:    partition.CurrentOffset(),
				PartitionRecovered: true,
			})
		}
	}

	sort.Slice(gaps, func(i, j int) bool { return gaps[i].Partition < gaps[j].Partition })
	return gaps
}

// getCheckpointPath generates a checkpoint file path
func (cm *CheckpointManager) getCheckpointPath(timestamp time.Time) string {
	filename := fmt.Sprintf(CheckpointFilePattern, timestamp.UnixNano())
	return filepath.Join(cm.checkpointDir, filename)
}

// listCheckpoints lists all checkpoint files sorted by timestamp
func (cm *CheckpointManager) listCheckpoints() ([]string, error) {
	pattern := filepath.Join(cm.checkpointDir, "checkpoint-*.json")
	files, err := filepath.Glob(pattern)
	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}

// rotateCheckpoints removes old checkpoint files
func (cm *CheckpointManager) rotateCheckpoints() error {
	checkpoints, err := cm.listCheckpoints()
	if err != nil {
		return err
	}

	if len(checkpoints) > cm.maxCheckpoints {
		toDelete := checkpoints[:len(checkpoints)-cm.maxCheckpoints]
		for _, path := range toDelete {
			if err := os.Remove(path); err != nil {
				cm.log.Warn().Err(err).Str("path", path).Msg("Failed to delete old checkpoint")
			} else {
				cm.log.Debug().Str("path", path).Msg("Deleted old checkpoint")
			}
		}
	}

	return nil
}

// GetLastCheckpointTime returns the timestamp of the last checkpoint
func (cm *CheckpointManager) GetLastCheckpointTime() time.Time {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.lastCheckpointAt
}
