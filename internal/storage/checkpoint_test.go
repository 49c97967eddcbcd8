package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/flowmesh/streamlog/internal/storage/streams"
	"github.com/flowmesh/streamlog/internal/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startedStorage builds a started storage with one topic of two partitions in stream 1
func startedStorage(t *testing.T, dataDir string) *Storage {
	t.Helper()

	config := testConfig(dataDir)
	config.CheckpointInterval = 0
	storage, err := NewBuilder().WithConfig(config).BuildAndStart(context.Background())
	require.NoError(t, err)
	return storage
}

func createTopic(t *testing.T, storage *Storage) {
	t.Helper()
	_, err := storage.StreamManager().CreateStream(1, "orders")
	require.NoError(t, err)
	_, err = storage.StreamManager().CreateTopic(1, 1, "created", 2)
	require.NoError(t, err)
}

func TestCheckpoint_SaveLoad(t *testing.T) {
	checkpointPath := filepath.Join(t.TempDir(), "checkpoint.json")

	checkpoint := NewCheckpoint()
	checkpoint.Partitions["1/1/1"] = PartitionCheckpoint{CurrentOffset: 100, Segments: 2}
	checkpoint.Partitions["1/1/2"] = PartitionCheckpoint{Empty: true, Segments: 1}

	require.NoError(t, checkpoint.Save(checkpointPath))

	loaded, err := LoadCheckpoint(checkpointPath)
	require.NoError(t, err)
	assert.Equal(t, CheckpointVersion, loaded.Version)
	assert.Equal(t, checkpoint.Partitions, loaded.Partitions)
	assert.True(t, checkpoint.Timestamp.Equal(loaded.Timestamp))

	_, err = os.Stat(checkpointPath + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file should be renamed away")
}

func TestLoadCheckpoint_Invalid(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadCheckpoint(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)

	garbage := filepath.Join(dir, "garbage.json")
	require.NoError(t, os.WriteFile(garbage, []byte("{not json"), 0600))
	_, err = LoadCheckpoint(garbage)
	assert.ErrorContains(t, err, "failed to unmarshal checkpoint")

	future := filepath.Join(dir, "future.json")
	require.NoError(t, os.WriteFile(future, []byte(`{"version": 99}`), 0600))
	_, err = LoadCheckpoint(future)
	assert.ErrorContains(t, err, "unsupported checkpoint version")
}

func TestCheckpointManager_SaveCollectsPartitions(t *testing.T) {
	storage := startedStorage(t, t.TempDir())
	t.Cleanup(func() {
		//nolint:errcheck // Test cleanup
		_ = storage.Close(context.Background())
	})
	createTopic(t, storage)

	key := streams.PartitionKey{StreamID: 1, TopicID: 1, PartitionID: 1}
	require.NoError(t, storage.StreamManager().AppendMessages(key, test.Messages(0, 5)))

	checkpoints := storage.Checkpoints()
	require.NoError(t, checkpoints.SaveCheckpoint())
	assert.False(t, checkpoints.GetLastCheckpointTime().IsZero())

	checkpoint, err := checkpoints.LoadLatestCheckpoint()
	require.NoError(t, err)
	require.Len(t, checkpoint.Partitions, 2)
	assert.Equal(t, PartitionCheckpoint{CurrentOffset: 4, Segments: 1}, checkpoint.Partitions["1/1/1"])
	assert.True(t, checkpoint.Partitions["1/1/2"].Empty)
}

func TestCheckpointManager_Rotation(t *testing.T) {
	storage := startedStorage(t, t.TempDir())
	t.Cleanup(func() {
		//nolint:errcheck // Test cleanup
		_ = storage.Close(context.Background())
	})

	checkpoints := storage.Checkpoints()
	checkpoints.maxCheckpoints = 3

	for i := 0; i < 5; i++ {
		require.NoError(t, checkpoints.SaveCheckpoint())
	}

	files, err := checkpoints.listCheckpoints()
	require.NoError(t, err)
	assert.Len(t, files, 3)
}

func TestCheckpointManager_StartStop(t *testing.T) {
	storage := startedStorage(t, t.TempDir())
	t.Cleanup(func() {
		//nolint:errcheck // Test cleanup
		_ = storage.Close(context.Background())
	})

	manager := NewCheckpointManager(storage.StreamManager(), t.TempDir(), 20*time.Millisecond)
	manager.Start()
	manager.Start()

	require.Eventually(t, func() bool {
		files, err := manager.listCheckpoints()
		return err == nil && len(files) > 0
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, manager.Stop())
	require.NoError(t, manager.Stop())
}

func TestCheckpointManager_LoadNonExistent(t *testing.T) {
	storage := startedStorage(t, t.TempDir())
	t.Cleanup(func() {
		//nolint:errcheck // Test cleanup
		_ = storage.Close(context.Background())
	})

	_, err := storage.Checkpoints().LoadLatestCheckpoint()
	assert.True(t, errors.Is(err, ErrNoCheckpoint))
}

func TestStorage_CloseWritesCheckpoint(t *testing.T) {
	dataDir := t.TempDir()

	storage := startedStorage(t, dataDir)
	createTopic(t, storage)
	key := streams.PartitionKey{StreamID: 1, TopicID: 1, PartitionID: 2}
	require.NoError(t, storage.StreamManager().AppendMessages(key, test.Messages(0, 3)))
	require.NoError(t, storage.Close(context.Background()))

	files, err := filepath.Glob(filepath.Join(dataDir, DirCheckpoints, "checkpoint-*.json"))
	require.NoError(t, err)
	require.Len(t, files, 1)

	checkpoint, err := LoadCheckpoint(files[0])
	require.NoError(t, err)
	assert.Equal(t, uint64(2), checkpoint.Partitions["1/1/2"].CurrentOffset)

	// A clean restart recovers everything the checkpoint recorded.
	restarted := startedStorage(t, dataDir)
	t.Cleanup(func() {
		//nolint:errcheck // Test cleanup
		_ = restarted.Close(context.Background())
	})
	assert.Empty(t, restarted.Checkpoints().VerifyRecovery(checkpoint))
}

func TestCheckpointManager_VerifyRecovery(t *testing.T) {
	storage := startedStorage(t, t.TempDir())
	t.Cleanup(func() {
		//nolint:errcheck // Test cleanup
		_ = storage.Close(context.Background())
	})
	createTopic(t, storage)

	key := streams.PartitionKey{StreamID: 1, TopicID: 1, PartitionID: 1}
	require.NoError(t, storage.StreamManager().AppendMessages(key, test.Messages(0, 5)))

	checkpoint := NewCheckpoint()
	checkpoint.Partitions["1/1/1"] = PartitionCheckpoint{CurrentOffset: 9, Segments: 1}
	checkpoint.Partitions["1/1/2"] = PartitionCheckpoint{CurrentOffset: 0, Segments: 1}
	checkpoint.Partitions["1/1/3"] = PartitionCheckpoint{Empty: true, Segments: 1}
	checkpoint.Partitions["2/1/1"] = PartitionCheckpoint{CurrentOffset: 7, Segments: 1}

	gaps := storage.Checkpoints().VerifyRecovery(checkpoint)
	require.Len(t, gaps, 3)

	assert.Equal(t, RecoveryGap{
		Partition: "1/1/1", CheckpointOffset: 9, RecoveredOffset: 4, PartitionRecovered: true,
	}, gaps[0])
	// Partition 2 holds no message although the checkpoint saw offset 0.
	assert.Equal(t, "1/1/2", gaps[1].Partition)
	assert.True(t, gaps[1].PartitionRecovered)
	assert.Equal(t, RecoveryGap{Partition: "2/1/1", CheckpointOffset: 7}, gaps[2])
}
