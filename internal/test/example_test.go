package test_test

import (
	"path/filepath"
	"testing"

	"github.com/flowmesh/streamlog/internal/storage/log"
	"github.com/flowmesh/streamlog/internal/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExample(t *testing.T) {
	dir := test.TempDir(t)
	assert.DirExists(t, dir)

	dataDir := test.CreateTestDataDir(t, dir)
	assert.DirExists(t, filepath.Join(dataDir, "streams"))
	assert.DirExists(t, filepath.Join(dataDir, "metadata"))
	test.AssertFileNotExists(t, filepath.Join(dataDir, "missing"))
}

func TestMessages_RecordSize(t *testing.T) {
	msgs := test.Messages(98, 3)
	require.Len(t, msgs, 3)
	assert.Equal(t, []byte("payload-99"), msgs[1].Payload)
	assert.Equal(t, []byte("payload-00"), msgs[2].Payload)

	record, err := log.EncodeMessage(msgs[0], log.CompressionNone)
	require.NoError(t, err)
	assert.Equal(t, test.RecordSize, len(record))
}
