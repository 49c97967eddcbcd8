package storage

import (
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/flowmesh/streamlog/internal/storage/log"
	"github.com/flowmesh/streamlog/internal/storage/streams"
	"github.com/flowmesh/streamlog/internal/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getTestConfig(dataDir string, policy string, interval time.Duration) *Config {
	config := testConfig(dataDir)
	config.FsyncPolicy = policy
	config.FsyncInterval = interval
	config.CheckpointInterval = 0
	return config
}

func writeEvents(t *testing.T, storage *Storage, key streams.PartitionKey, count int) {
	t.Helper()
	for i := 0; i < count; i++ {
		_, err := storage.StreamManager().WriteEvents(key, []streams.Event{{Payload: test.Payload(i)}})
		require.NoError(t, err)
	}
}

// TestRecovery_IntegrationEndToEnd tests the complete recovery flow
func TestRecovery_IntegrationEndToEnd(t *testing.T) {
	tmpDir := t.TempDir()
	ctx := context.Background()
	key := streams.PartitionKey{StreamID: 1, TopicID: 1, PartitionID: 1}

	t.Run("recovery after clean shutdown", func(t *testing.T) {
		testDir := filepath.Join(tmpDir, "clean-shutdown")

		storage1, err := NewBuilder().
			WithConfig(getTestConfig(testDir, "interval", 10*time.Millisecond)).
			BuildAndStart(ctx)
		require.NoError(t, err)
		createTopic(t, storage1)
		writeEvents(t, storage1, key, 100)
		require.NoError(t, storage1.Close(ctx))

		storage2, err := NewBuilder().
			WithConfig(getTestConfig(testDir, "interval", 10*time.Millisecond)).
			BuildAndStart(ctx)
		require.NoError(t, err)
		defer storage2.Close(ctx)

		partition, err := storage2.StreamManager().GetPartition(key)
		require.NoError(t, err)
		assert.Equal(t, uint64(99), partition.CurrentOffset(), "Should recover all 100 events (offset 0-99)")

		messages, err := storage2.StreamManager().GetMessages(key, 0, 10)
		require.NoError(t, err)
		assert.Len(t, messages, 10)

		offsets, err := storage2.StreamManager().WriteEvents(key, []streams.Event{{Payload: []byte("after")}})
		require.NoError(t, err)
		assert.Equal(t, []uint64{100}, offsets)
	})

	t.Run("recovery with torn record", func(t *testing.T) {
		testDir := filepath.Join(tmpDir, "torn-record")

		storage1, err := NewBuilder().
			WithConfig(getTestConfig(testDir, "always", 10*time.Millisecond)).
			BuildAndStart(ctx)
		require.NoError(t, err)
		createTopic(t, storage1)
		writeEvents(t, storage1, key, 5)
		require.NoError(t, storage1.Close(ctx))

		partitionDir := streams.PartitionPath(filepath.Join(testDir, DirStreams), key)
		logPath := filepath.Join(partitionDir, log.SegmentFileName(0, log.LogExtension))
		stat, err := os.Stat(logPath)
		require.NoError(t, err)
		validSize := stat.Size()

		// A header announcing 100 body bytes followed by only 10 of them
		torn := make([]byte, log.RecordHeaderSize+10)
		binary.LittleEndian.PutUint32(torn[0:4], 100)
		f, err := os.OpenFile(logPath, os.O_APPEND|os.O_WRONLY, 0644)
		require.NoError(t, err)
		_, err = f.Write(torn)
		require.NoError(t, err)
		require.NoError(t, f.Close())

		storage2, err := NewBuilder().
			WithConfig(getTestConfig(testDir, "always", 10*time.Millisecond)).
			BuildAndStart(ctx)
		require.NoError(t, err)
		defer storage2.Close(ctx)

		stat, err = os.Stat(logPath)
		require.NoError(t, err)
		assert.Equal(t, validSize, stat.Size(), "Torn record should be truncated away")

		messages, err := storage2.StreamManager().GetMessages(key, 0, 10)
		require.NoError(t, err)
		require.Len(t, messages, 5)
		assert.Equal(t, test.Payload(4), messages[4].Payload)

		offsets, err := storage2.StreamManager().WriteEvents(key, []streams.Event{{Payload: []byte("next")}})
		require.NoError(t, err)
		assert.Equal(t, []uint64{5}, offsets)
	})

	t.Run("checkpoint recorded across restart", func(t *testing.T) {
		testDir := filepath.Join(tmpDir, "checkpoint")

		config := getTestConfig(testDir, "interval", 10*time.Millisecond)
		config.CheckpointInterval = 10 * time.Millisecond
		storage1, err := NewBuilder().WithConfig(config).BuildAndStart(ctx)
		require.NoError(t, err)
		createTopic(t, storage1)
		writeEvents(t, storage1, key, 3)

		require.Eventually(t, func() bool {
			return !storage1.Checkpoints().GetLastCheckpointTime().IsZero()
		}, 2*time.Second, 10*time.Millisecond)
		require.NoError(t, storage1.Close(ctx))

		checkpoints, err := filepath.Glob(filepath.Join(testDir, DirCheckpoints, "checkpoint-*.json"))
		require.NoError(t, err)
		assert.NotEmpty(t, checkpoints)

		storage2, err := NewBuilder().WithConfig(config).BuildAndStart(ctx)
		require.NoError(t, err)
		defer storage2.Close(ctx)

		checkpoint, err := storage2.Checkpoints().LoadLatestCheckpoint()
		require.NoError(t, err)
		assert.Equal(t, uint64(2), checkpoint.Partitions[key.String()].CurrentOffset)
		assert.Empty(t, storage2.Checkpoints().VerifyRecovery(checkpoint))
		assert.True(t, storage2.Ready())
	})
}

// TestRecovery_FsyncPolicies tests different fsync policies
func TestRecovery_FsyncPolicies(t *testing.T) {
	tmpDir := t.TempDir()
	key := streams.PartitionKey{StreamID: 1, TopicID: 1, PartitionID: 2}

	policies := []struct {
		name     string
		policy   string
		interval time.Duration
	}{
		{"always", "always", 10 * time.Millisecond},
		{"interval-10ms", "interval", 10 * time.Millisecond},
		{"interval-50ms", "interval", 50 * time.Millisecond},
	}

	for _, tc := range policies {
		t.Run(tc.name, func(t *testing.T) {
			testDir := filepath.Join(tmpDir, tc.name)
			ctx := context.Background()

			storage, err := NewBuilder().
				WithConfig(getTestConfig(testDir, tc.policy, tc.interval)).
				BuildAndStart(ctx)
			require.NoError(t, err)
			createTopic(t, storage)
			writeEvents(t, storage, key, 100)

			if tc.policy == "interval" {
				time.Sleep(tc.interval * 2)
			}

			require.NoError(t, storage.Close(ctx))

			storage2, err := NewBuilder().
				WithConfig(getTestConfig(testDir, tc.policy, tc.interval)).
				BuildAndStart(ctx)
			require.NoError(t, err)
			defer storage2.Close(ctx)

			partition, err := storage2.StreamManager().GetPartition(key)
			require.NoError(t, err)
			assert.Equal(t, uint64(99), partition.CurrentOffset(), "All events should be persisted")
			assert.Greater(t, partition.SegmentsCount(), 1)
		})
	}
}
