package log

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

const (
	// IndexSentinelSize is the size of the zero base marker at the start of every index file
	IndexSentinelSize = 8
	// IndexEntrySize is the size of one index entry: relative offset (4 bytes) + position (4 bytes)
	IndexEntrySize = 8
)

// IndexEntry maps a relative offset to the byte position of its record in the log file
type IndexEntry struct {
	RelativeOffset uint32
	Position       uint32
}

// Encode returns the on-disk representation of the entry
func (e IndexEntry) Encode() []byte {
	buf := make([]byte, IndexEntrySize)
	binary.LittleEndian.PutUint32(buf[0:4], e.RelativeOffset)
	binary.LittleEndian.PutUint32(buf[4:8], e.Position)
	return buf
}

// indexSentinel returns the 8-byte little-endian zero written when an index file is created
func indexSentinel() []byte {
	var sentinel [IndexSentinelSize]byte
	binary.LittleEndian.PutUint64(sentinel[:], 0)
	return sentinel[:]
}

// ReadIndexEntry reads the entry for a relative offset. Entries are dense, one per
// message, so the entry lives at a fixed position after the sentinel.
func ReadIndexEntry(file io.ReaderAt, relativeOffset uint32) (IndexEntry, error) {
	var buf [IndexEntrySize]byte
	at := int64(IndexSentinelSize) + int64(relativeOffset)*IndexEntrySize
	if _, err := file.ReadAt(buf[:], at); err != nil {
		return IndexEntry{}, fmt.Errorf("failed to read index entry %d: %w", relativeOffset, err)
	}

	entry := IndexEntry{
		RelativeOffset: binary.LittleEndian.Uint32(buf[0:4]),
		Position:       binary.LittleEndian.Uint32(buf[4:8]),
	}
	if entry.RelativeOffset != relativeOffset {
		return IndexEntry{}, IndexCorruptedError{
			Reason: fmt.Sprintf("entry %d holds relative offset %d", relativeOffset, entry.RelativeOffset),
		}
	}
	return entry, nil
}

// IndexEntriesCount returns the number of entries stored in an index file of the given size
func IndexEntriesCount(size int64) int64 {
	if size < IndexSentinelSize {
		return 0
	}
	return (size - IndexSentinelSize) / IndexEntrySize
}

// RebuildIndex rewrites an index file from the record positions of a segment
func RebuildIndex(path string, positions []uint32) error {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return CannotCreateIndexFileError{Path: path, Err: err}
	}
	defer file.Close()

	buf := make([]byte, 0, IndexSentinelSize+len(positions)*IndexEntrySize)
	buf = append(buf, indexSentinel()...)
	for i, position := range positions {
		buf = append(buf, IndexEntry{RelativeOffset: uint32(i), Position: position}.Encode()...)
	}

	if _, err := file.Write(buf); err != nil {
		return CannotSaveIndexError{Path: path, Err: err}
	}
	return file.Sync()
}
