package test

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/flowmesh/streamlog/internal/storage/log"
	"github.com/stretchr/testify/require"
)

// PayloadSize is the size of every payload built by Messages
const PayloadSize = 10

// RecordSize is the encoded size of a message built by Messages
const RecordSize = log.RecordOverhead + PayloadSize

// TempDir creates a temporary directory for testing and returns its path.
// The directory is automatically cleaned up after the test.
func TempDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "streamlog-test-*")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = os.RemoveAll(dir) // Ignore cleanup errors in tests
	})
	return dir
}

// CreateTestDataDir creates a test data directory structure.
func CreateTestDataDir(t *testing.T, baseDir string) string {
	t.Helper()
	dataDir := filepath.Join(baseDir, "data")
	//nolint:gosec // Acceptable: test directory permissions
	err := os.MkdirAll(filepath.Join(dataDir, "streams"), 0755)
	require.NoError(t, err)
	//nolint:gosec // Acceptable: test directory permissions
	err = os.MkdirAll(filepath.Join(dataDir, "metadata"), 0755)
	require.NoError(t, err)
	return dataDir
}

// Payload returns the fixed-size payload of message i
func Payload(i int) []byte {
	return []byte(fmt.Sprintf("payload-%02d", i%100))
}

// Messages builds count unappended messages whose payloads are Payload(from)..Payload(from+count-1)
func Messages(from, count int) []*log.Message {
	msgs := make([]*log.Message, 0, count)
	for i := from; i < from+count; i++ {
		msgs = append(msgs, log.NewMessage(Payload(i), nil))
	}
	return msgs
}

// AssertFileExists checks if a file exists and fails the test if it doesn't.
func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	_, err := os.Stat(path)
	require.NoError(t, err, "file should exist: %s", path)
}

// AssertFileNotExists checks if a file doesn't exist and fails the test if it does.
func AssertFileNotExists(t *testing.T, path string) {
	t.Helper()
	_, err := os.Stat(path)
	require.Error(t, err, "file should not exist: %s", path)
	require.True(t, os.IsNotExist(err), "expected file not to exist: %s", path)
}
