package log

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRebuildIndex_AndReadEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), SegmentFileName(0, IndexExtension))

	require.NoError(t, RebuildIndex(path, []uint32{0, 59, 118}))

	stat, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(IndexSentinelSize+3*IndexEntrySize), stat.Size())
	assert.Equal(t, int64(3), IndexEntriesCount(stat.Size()))

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	entry, err := ReadIndexEntry(file, 2)
	require.NoError(t, err)
	assert.Equal(t, IndexEntry{RelativeOffset: 2, Position: 118}, entry)

	_, err = ReadIndexEntry(file, 3)
	assert.Error(t, err)
}

func TestReadIndexEntry_Corrupted(t *testing.T) {
	data := append(indexSentinel(), IndexEntry{RelativeOffset: 7, Position: 0}.Encode()...)

	_, err := ReadIndexEntry(bytes.NewReader(data), 0)
	var corrupted IndexCorruptedError
	assert.True(t, errors.As(err, &corrupted))
}

func TestIndexEntriesCount(t *testing.T) {
	assert.Equal(t, int64(0), IndexEntriesCount(0))
	assert.Equal(t, int64(0), IndexEntriesCount(IndexSentinelSize))
	assert.Equal(t, int64(1), IndexEntriesCount(IndexSentinelSize+IndexEntrySize+3))
}

func TestTimeIndex_LoadAndFind(t *testing.T) {
	path := filepath.Join(t.TempDir(), SegmentFileName(0, TimeIndexExtension))

	entries := []TimeIndexEntry{
		{Timestamp: 1000, Offset: 0},
		{Timestamp: 3000, Offset: 2},
		{Timestamp: 5000, Offset: 4},
	}
	var buf []byte
	for _, e := range entries {
		buf = append(buf, e.Encode()...)
	}
	require.NoError(t, os.WriteFile(path, buf, 0644))

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	loaded, err := LoadTimeIndex(file)
	require.NoError(t, err)
	assert.Equal(t, entries, loaded)

	tests := []struct {
		name      string
		timestamp uint64
		offset    uint64
	}{
		{"before first", 500, 0},
		{"exact first", 1000, 0},
		{"between", 3500, 2},
		{"exact last", 5000, 4},
		{"after last", 9000, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			offset, ok := FindOffset(loaded, tt.timestamp)
			require.True(t, ok)
			assert.Equal(t, tt.offset, offset)
		})
	}
}

func TestTimeIndex_PartialEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), SegmentFileName(0, TimeIndexExtension))
	data := append(TimeIndexEntry{Timestamp: 1000, Offset: 0}.Encode(), 1, 2, 3, 4, 5)
	require.NoError(t, os.WriteFile(path, data, 0644))

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	loaded, err := LoadTimeIndex(file)
	require.NoError(t, err)
	assert.Equal(t, []TimeIndexEntry{{Timestamp: 1000, Offset: 0}}, loaded)

	trimmed, err := TrimTimeIndex(path)
	require.NoError(t, err)
	assert.Equal(t, int64(5), trimmed)

	stat, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(TimeIndexEntrySize), stat.Size())

	trimmed, err = TrimTimeIndex(path)
	require.NoError(t, err)
	assert.Zero(t, trimmed)
}

func TestFindOffset_Empty(t *testing.T) {
	_, ok := FindOffset(nil, 100)
	assert.False(t, ok)
}
