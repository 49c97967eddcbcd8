package log

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/flowmesh/streamlog/internal/logger"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Segment is a bounded, contiguous offset range of one partition backed by a
// log file, a dense offset index and a sparse time index.
//
// Appends and reads are coordinated by the owning partition (exclusive while
// appending, shared while reading). mu only guards the buffered writers, which
// are also flushed by readers falling back to disk and by the fsync scheduler.
type Segment struct {
	partitionID   uint32
	startOffset   uint64
	currentOffset uint64
	endOffset     uint64
	sealed        bool

	partitionPath string
	logPath       string
	indexPath     string
	timeIndexPath string

	messages               *MessageCache
	messagesCount          uint64
	unsavedMessagesCount   uint32
	currentSizeBytes       uint64
	savedBytes             uint64
	shouldIncrementOffset  bool
	config                 *Config
	timeIndexes            []TimeIndexEntry
	sinceLastTimeIndexSave uint32

	mu              sync.Mutex
	logFile         *os.File
	logWriter       *bufio.Writer
	indexFile       *os.File
	indexWriter     *bufio.Writer
	timeIndexFile   *os.File
	timeIndexWriter *bufio.Writer

	log zerolog.Logger
}

// SegmentFileName returns the 20-digit zero-padded file name of a segment artifact
func SegmentFileName(startOffset uint64, extension string) string {
	return fmt.Sprintf("%020d.%s", startOffset, extension)
}

// NewSegment creates a segment starting at startOffset inside partitionPath.
// No I/O happens here; call Persist for a new segment or Load for an existing one.
func NewSegment(partitionID uint32, startOffset uint64, partitionPath string, config *Config) *Segment {
	return &Segment{
		partitionID:   partitionID,
		startOffset:   startOffset,
		currentOffset: startOffset,
		partitionPath: partitionPath,
		logPath:       filepath.Join(partitionPath, SegmentFileName(startOffset, LogExtension)),
		indexPath:     filepath.Join(partitionPath, SegmentFileName(startOffset, IndexExtension)),
		timeIndexPath: filepath.Join(partitionPath, SegmentFileName(startOffset, TimeIndexExtension)),
		messages:      NewMessageCache(config.MessagesBuffer),
		config:        config,
		log: logger.WithComponent("segment").With().
			Uint32("partition", partitionID).
			Uint64("start_offset", startOffset).
			Logger(),
	}
}

// IsFull reports whether the segment reached its configured size
func (s *Segment) IsFull() bool {
	return s.currentSizeBytes >= s.config.SizeBytes
}

// IsEmpty reports whether no message was ever appended to the segment
func (s *Segment) IsEmpty() bool {
	return s.messagesCount == 0
}

// nextOffset returns the offset the next appended message receives
func (s *Segment) nextOffset() uint64 {
	if s.shouldIncrementOffset {
		return s.currentOffset + 1
	}
	return s.currentOffset
}

// AppendMessages assigns consecutive offsets to msgs and appends them to the segment.
// The batch is all or nothing: every record is encoded before any of them is
// written, so a rejected message leaves the segment and msgs untouched.
// With FsyncAlways the data is flushed and synced before returning; otherwise it is
// durable once Flush runs (explicitly, by threshold or by the fsync scheduler).
func (s *Segment) AppendMessages(msgs []*Message) error {
	if len(msgs) == 0 {
		return nil
	}
	if s.sealed || s.IsFull() {
		return SegmentFullError{StartOffset: s.startOffset, SizeBytes: s.currentSizeBytes}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.openWritersLocked(); err != nil {
		return err
	}

	records, err := s.encodeBatch(msgs)
	if err != nil {
		return err
	}

	for i, msg := range msgs {
		if err := s.writeRecordLocked(msg, records[i]); err != nil {
			return err
		}
	}

	s.log.Trace().
		Int("count", len(msgs)).
		Uint64("current_offset", s.currentOffset).
		Uint64("size_bytes", s.currentSizeBytes).
		Msg("Messages appended to segment")

	if s.IsFull() {
		return s.sealLocked()
	}

	if s.config.FsyncPolicy == FsyncAlways {
		return s.flushLocked(true)
	}
	if s.unsavedMessagesCount >= s.config.MessagesRequiredToSave {
		return s.flushLocked(false)
	}
	return nil
}

// encodeBatch stamps msgs with their offsets and encodes them. On error every
// message is restored to the state it was passed in.
func (s *Segment) encodeBatch(msgs []*Message) ([][]byte, error) {
	type stamp struct {
		offset    uint64
		timestamp uint64
		id        uuid.UUID
		headers   map[string]string
	}
	saved := make([]stamp, len(msgs))
	for i, msg := range msgs {
		saved[i] = stamp{msg.Offset, msg.Timestamp, msg.ID, msg.Headers}
	}
	restore := func() {
		for i, msg := range msgs {
			msg.Offset, msg.Timestamp, msg.ID, msg.Headers =
				saved[i].offset, saved[i].timestamp, saved[i].id, saved[i].headers
		}
	}

	now := uint64(time.Now().UnixMicro())
	offset := s.nextOffset()
	position := s.currentSizeBytes
	records := make([][]byte, len(msgs))
	for i, msg := range msgs {
		relative := offset - s.startOffset
		if relative > math.MaxUint32 {
			restore()
			return nil, fmt.Errorf("relative offset %d exceeds index range", relative)
		}
		if position > math.MaxUint32 {
			restore()
			return nil, fmt.Errorf("log position %d exceeds index range", position)
		}

		msg.Offset = offset
		if msg.Timestamp == 0 {
			msg.Timestamp = now
		}
		if msg.ID == uuid.Nil {
			msg.ID = uuid.New()
		}
		// Empty headers are not stored, so they read back as nil
		if len(msg.Headers) == 0 {
			msg.Headers = nil
		}

		record, err := EncodeMessage(msg, s.config.Compression)
		if err != nil {
			restore()
			return nil, fmt.Errorf("failed to encode message at offset %d: %w", offset, err)
		}

		records[i] = record
		position += uint64(len(record))
		offset++
	}
	return records, nil
}

// writeRecordLocked buffers an encoded record with its index entries and advances the segment
func (s *Segment) writeRecordLocked(msg *Message, record []byte) error {
	offset := msg.Offset
	position := s.currentSizeBytes
	if _, err := s.logWriter.Write(record); err != nil {
		return fmt.Errorf("failed to write message at offset %d: %w", offset, err)
	}
	entry := IndexEntry{RelativeOffset: uint32(offset - s.startOffset), Position: uint32(position)}
	if _, err := s.indexWriter.Write(entry.Encode()); err != nil {
		return fmt.Errorf("failed to write index entry at offset %d: %w", offset, err)
	}
	if s.shouldIndexTime() {
		timeEntry := TimeIndexEntry{Timestamp: msg.Timestamp, Offset: offset}
		if _, err := s.timeIndexWriter.Write(timeEntry.Encode()); err != nil {
			return fmt.Errorf("failed to write time index entry at offset %d: %w", offset, err)
		}
		s.timeIndexes = append(s.timeIndexes, timeEntry)
		s.sinceLastTimeIndexSave = 0
	}
	s.sinceLastTimeIndexSave++

	s.messages.Push(msg)
	s.currentOffset = offset
	s.shouldIncrementOffset = true
	s.currentSizeBytes += uint64(len(record))
	s.messagesCount++
	s.unsavedMessagesCount++
	return nil
}

// shouldIndexTime indexes the first message of the segment and then every TimeIndexInterval messages
func (s *Segment) shouldIndexTime() bool {
	return len(s.timeIndexes) == 0 || s.sinceLastTimeIndexSave >= s.config.TimeIndexInterval
}

// sealLocked marks the segment read-only and releases its writers
func (s *Segment) sealLocked() error {
	s.endOffset = s.currentOffset
	s.sealed = true
	if err := s.flushLocked(true); err != nil {
		return err
	}

	s.log.Info().
		Uint64("end_offset", s.endOffset).
		Uint64("size_bytes", s.currentSizeBytes).
		Msg("Segment sealed")

	return s.closeWritersLocked()
}

// GetMessages returns up to count messages starting at offset, clamped to the
// segment's own range. Recent messages come from the in-memory cache; older ones
// are read from the log file.
func (s *Segment) GetMessages(offset uint64, count uint32) ([]*Message, error) {
	if count == 0 || s.IsEmpty() {
		return []*Message{}, nil
	}

	from := max(offset, s.startOffset)
	to := s.currentOffset
	if end := offset + uint64(count) - 1; end >= offset && end < to {
		to = end
	}
	if from > to {
		return []*Message{}, nil
	}

	if s.messages.Covers(from, to) {
		return s.messages.Range(from, to), nil
	}

	return s.loadMessagesFromDisk(from, to)
}

// loadMessagesFromDisk reads messages in [from, to] from the log file using the offset index
func (s *Segment) loadMessagesFromDisk(from, to uint64) ([]*Message, error) {
	// Buffered records must reach the files before they can be read back.
	if err := s.Flush(false); err != nil {
		return nil, err
	}

	indexFile, err := os.Open(s.indexPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open index file %s: %w", s.indexPath, err)
	}
	defer indexFile.Close()

	entry, err := ReadIndexEntry(indexFile, uint32(from-s.startOffset))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve offset %d in %s: %w", from, s.indexPath, err)
	}

	logFile, err := os.Open(s.logPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", s.logPath, err)
	}
	defer logFile.Close()

	if _, err := logFile.Seek(int64(entry.Position), io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to seek log file %s: %w", s.logPath, err)
	}

	result, err := LoadMessages(logFile, from, 0, to-from)
	if err != nil {
		return nil, fmt.Errorf("failed to read messages from %s: %w", s.logPath, err)
	}
	if uint64(len(result.Messages)) != to-from+1 {
		return nil, fmt.Errorf("log file %s returned %d messages for range [%d, %d]",
			s.logPath, len(result.Messages), from, to)
	}

	s.log.Trace().
		Uint64("from", from).
		Uint64("to", to).
		Msg("Messages loaded from disk")

	return result.Messages, nil
}

// FindOffsetByTimestamp returns the offset of the last time index entry at or before timestamp
func (s *Segment) FindOffsetByTimestamp(timestamp uint64) (uint64, error) {
	offset, ok := FindOffset(s.timeIndexes, timestamp)
	if !ok {
		return 0, TimestampNotFoundError{Timestamp: timestamp}
	}
	return offset, nil
}

// Flush writes buffered records to the segment files, optionally syncing them
func (s *Segment) Flush(sync bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked(sync)
}

func (s *Segment) flushLocked(sync bool) error {
	if s.logWriter == nil {
		return nil
	}

	if err := s.logWriter.Flush(); err != nil {
		return fmt.Errorf("failed to flush log file %s: %w", s.logPath, err)
	}
	if err := s.indexWriter.Flush(); err != nil {
		return fmt.Errorf("failed to flush index file %s: %w", s.indexPath, err)
	}
	if err := s.timeIndexWriter.Flush(); err != nil {
		return fmt.Errorf("failed to flush time index file %s: %w", s.timeIndexPath, err)
	}

	if sync {
		for _, f := range []*os.File{s.logFile, s.indexFile, s.timeIndexFile} {
			if err := f.Sync(); err != nil {
				return fmt.Errorf("failed to sync %s: %w", f.Name(), err)
			}
		}
	}

	if s.unsavedMessagesCount > 0 {
		s.log.Debug().
			Uint32("messages", s.unsavedMessagesCount).
			Uint64("bytes", s.currentSizeBytes-s.savedBytes).
			Bool("fsync", sync).
			Msg("Segment flushed")
	}

	s.savedBytes = s.currentSizeBytes
	s.unsavedMessagesCount = 0
	return nil
}

// Close flushes and releases the segment's open files
func (s *Segment) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.flushLocked(true); err != nil {
		return err
	}
	return s.closeWritersLocked()
}

func (s *Segment) closeWritersLocked() error {
	var lastErr error
	for _, f := range []*os.File{s.logFile, s.indexFile, s.timeIndexFile} {
		if f == nil {
			continue
		}
		if err := f.Close(); err != nil {
			lastErr = err
		}
	}
	s.logFile, s.indexFile, s.timeIndexFile = nil, nil, nil
	s.logWriter, s.indexWriter, s.timeIndexWriter = nil, nil, nil
	return lastErr
}

// Seal marks the segment read-only at its current offset. Used when a loaded
// segment is followed by a newer one.
func (s *Segment) Seal(endOffset uint64) {
	s.endOffset = endOffset
	s.sealed = true
}

// PartitionID returns the owning partition ID
func (s *Segment) PartitionID() uint32 { return s.partitionID }

// StartOffset returns the first offset of the segment
func (s *Segment) StartOffset() uint64 { return s.startOffset }

// CurrentOffset returns the offset of the last appended message
func (s *Segment) CurrentOffset() uint64 { return s.currentOffset }

// EndOffset returns the last offset of a sealed segment (0 while active)
func (s *Segment) EndOffset() uint64 { return s.endOffset }

// IsSealed reports whether the segment accepts no further appends
func (s *Segment) IsSealed() bool { return s.sealed }

// SizeBytes returns the number of bytes appended to the log file
func (s *Segment) SizeBytes() uint64 { return s.currentSizeBytes }

// TimeIndexes returns the segment's time index entries
func (s *Segment) TimeIndexes() []TimeIndexEntry { return s.timeIndexes }

// LogPath returns the path of the segment log file
func (s *Segment) LogPath() string { return s.logPath }

// IndexPath returns the path of the segment index file
func (s *Segment) IndexPath() string { return s.indexPath }

// TimeIndexPath returns the path of the segment time index file
func (s *Segment) TimeIndexPath() string { return s.timeIndexPath }

// Info returns a snapshot of the segment's counters
func (s *Segment) Info() SegmentInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	return SegmentInfo{
		PartitionID:   s.partitionID,
		StartOffset:   s.startOffset,
		CurrentOffset: s.currentOffset,
		EndOffset:     s.endOffset,
		Sealed:        s.sealed,
		SizeBytes:     s.currentSizeBytes,
		SavedBytes:    s.savedBytes,
		MessagesCount: s.messagesCount,
		LogPath:       s.logPath,
		IndexPath:     s.indexPath,
		TimeIndexPath: s.timeIndexPath,
	}
}
