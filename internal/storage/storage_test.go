package storage

import (
	"context"
	"errors"
	"testing"

	logpkg "github.com/flowmesh/streamlog/internal/storage/log"
	"github.com/flowmesh/streamlog/internal/storage/streams"
	"github.com/flowmesh/streamlog/internal/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(dataDir string) *Config {
	config := DefaultConfig()
	config.DataDir = dataDir
	config.SegmentSize = 10 * test.RecordSize
	config.MessagesBuffer = 4
	return config
}

func TestNew(t *testing.T) {
	tmpDir := t.TempDir()

	storage, err := New(tmpDir)
	require.NoError(t, err)
	t.Cleanup(func() {
		//nolint:errcheck // Test cleanup
		_ = storage.Close(context.Background())
	})

	assert.NotNil(t, storage.MetaStore())
	assert.NotNil(t, storage.StreamManager())
	assert.NotNil(t, storage.Paths())
	assert.NotNil(t, storage.Metrics())
	assert.NotNil(t, storage.Collector())
	assert.False(t, storage.Ready())
}

func TestStorage_Close(t *testing.T) {
	storage, err := New(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, storage.Start(ctx))
	_, err = storage.StreamManager().CreateStream(1, "orders")
	require.NoError(t, err)

	err = storage.Close(ctx)
	assert.NoError(t, err)

	// Closing again should be safe
	err = storage.Close(ctx)
	assert.NoError(t, err)
	assert.Error(t, storage.Start(ctx))
}

func TestStorage_Validate(t *testing.T) {
	storage, err := New(t.TempDir())
	require.NoError(t, err)
	defer storage.Close(context.Background())

	assert.NoError(t, storage.Validate())
}

func TestBuilder_InvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty data dir", func(c *Config) { c.DataDir = "" }},
		{"zero segment size", func(c *Config) { c.SegmentSize = 0 }},
		{"unknown fsync policy", func(c *Config) { c.FsyncPolicy = "sometimes" }},
		{"zero fsync interval", func(c *Config) { c.FsyncInterval = 0 }},
		{"unknown compression", func(c *Config) { c.Compression = "lz4" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := testConfig(t.TempDir())
			tt.mutate(config)

			_, err := NewBuilder().WithConfig(config).Build()
			assert.Error(t, err)
		})
	}
}

func TestBuilder_FsyncAlwaysHasNoScheduler(t *testing.T) {
	config := testConfig(t.TempDir())
	config.FsyncPolicy = string(logpkg.FsyncAlways)
	config.EnableMetrics = false

	storage, err := NewBuilder().WithConfig(config).BuildAndStart(context.Background())
	require.NoError(t, err)
	defer storage.Close(context.Background())

	assert.Nil(t, storage.scheduler)
	assert.Nil(t, storage.Metrics())
}

func TestStorage_RestartRecoversPartitions(t *testing.T) {
	dataDir := t.TempDir()
	ctx := context.Background()
	key := streams.PartitionKey{StreamID: 1, TopicID: 1, PartitionID: 1}

	storage, err := NewBuilder().WithConfig(testConfig(dataDir)).BuildAndStart(ctx)
	require.NoError(t, err)

	_, err = storage.StreamManager().CreateStream(1, "orders")
	require.NoError(t, err)
	_, err = storage.StreamManager().CreateTopic(1, 1, "created", 1)
	require.NoError(t, err)

	for _, msg := range test.Messages(0, 25) {
		require.NoError(t, storage.StreamManager().AppendMessages(key, []*logpkg.Message{msg}))
	}
	require.NoError(t, storage.Close(ctx))

	reopened, err := NewBuilder().WithConfig(testConfig(dataDir)).BuildAndStart(ctx)
	require.NoError(t, err)
	defer reopened.Close(ctx)

	partition, err := reopened.StreamManager().GetPartition(key)
	require.NoError(t, err)
	assert.Equal(t, uint64(24), partition.CurrentOffset())
	assert.Equal(t, 3, partition.SegmentsCount())

	msgs, err := reopened.StreamManager().GetMessages(key, 5, 15)
	require.NoError(t, err)
	require.Len(t, msgs, 15)
	for i, msg := range msgs {
		assert.Equal(t, uint64(5+i), msg.Offset)
		assert.Equal(t, test.Payload(5+i), msg.Payload)
	}
}

func TestConfig_SegmentConfig(t *testing.T) {
	config := DefaultConfig()
	config.Compression = "zstd"

	segment := config.SegmentConfig()
	assert.Equal(t, config.SegmentSize, segment.SizeBytes)
	assert.Equal(t, logpkg.CompressionZstd, segment.Compression)
	assert.Equal(t, logpkg.FsyncInterval, segment.FsyncPolicy)
	assert.NoError(t, config.Validate())

	config.SegmentSize = 0
	var invalid logpkg.InvalidConfigError
	assert.True(t, errors.As(config.Validate(), &invalid))
}
