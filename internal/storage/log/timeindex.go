package log

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sort"
)

// TimeIndexEntrySize is the size of one time index entry: timestamp (8 bytes) + offset (8 bytes)
const TimeIndexEntrySize = 16

// TimeIndexEntry maps a message timestamp (unix microseconds) to its absolute offset
type TimeIndexEntry struct {
	Timestamp uint64
	Offset    uint64
}

// Encode returns the on-disk representation of the entry
func (e TimeIndexEntry) Encode() []byte {
	buf := make([]byte, TimeIndexEntrySize)
	binary.LittleEndian.PutUint64(buf[0:8], e.Timestamp)
	binary.LittleEndian.PutUint64(buf[8:16], e.Offset)
	return buf
}

// LoadTimeIndex reads every complete entry of an opened time index file.
// Trailing bytes of a partially written entry are not returned.
func LoadTimeIndex(file *os.File) ([]TimeIndexEntry, error) {
	stat, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat time index file: %w", err)
	}

	size := stat.Size() - stat.Size()%TimeIndexEntrySize

	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to seek time index file: %w", err)
	}

	data := make([]byte, size)
	if _, err := io.ReadFull(file, data); err != nil {
		return nil, fmt.Errorf("failed to read time index file: %w", err)
	}

	return DecodeTimeIndex(data), nil
}

// TrimTimeIndex cuts a partially written entry off the end of the time index
// at path and returns the number of bytes removed.
func TrimTimeIndex(path string) (int64, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("failed to stat time index file %s: %w", path, err)
	}

	partial := stat.Size() % TimeIndexEntrySize
	if partial == 0 {
		return 0, nil
	}
	if err := os.Truncate(path, stat.Size()-partial); err != nil {
		return 0, fmt.Errorf("failed to truncate time index file %s: %w", path, err)
	}
	return partial, nil
}

// DecodeTimeIndex decodes a sequence of time index entries; a trailing partial entry is ignored
func DecodeTimeIndex(data []byte) []TimeIndexEntry {
	count := len(data) / TimeIndexEntrySize
	entries := make([]TimeIndexEntry, 0, count)
	for i := 0; i < count; i++ {
		entry := data[i*TimeIndexEntrySize:]
		entries = append(entries, TimeIndexEntry{
			Timestamp: binary.LittleEndian.Uint64(entry[0:8]),
			Offset:    binary.LittleEndian.Uint64(entry[8:16]),
		})
	}
	return entries
}

// FindOffset returns the offset of the last entry whose timestamp is <= timestamp.
// A timestamp before the first entry resolves to the first entry.
func FindOffset(entries []TimeIndexEntry, timestamp uint64) (uint64, bool) {
	if len(entries) == 0 {
		return 0, false
	}

	// First entry with a timestamp greater than the target
	idx := sort.Search(len(entries), func(i int) bool {
		return entries[i].Timestamp > timestamp
	})
	if idx == 0 {
		return entries[0].Offset, true
	}
	return entries[idx-1].Offset, true
}
