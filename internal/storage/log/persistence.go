package log

import (
	"bufio"
	"fmt"
	"math"
	"os"
)

const writerBufferSize = 64 * 1024

// Persist creates (or truncates) the segment's log, time index and index files and
// writes the zero sentinel into the index. The files and the partition directory
// are synced before it returns. It must succeed before the segment accepts
// appends; on failure no artifact of the segment is left behind.
func (s *Segment) Persist() error {
	s.log.Info().Str("path", s.logPath).Msg("Saving segment")

	if err := os.MkdirAll(s.partitionPath, 0755); err != nil {
		return CannotCreateLogFileError{Path: s.logPath, Err: err}
	}

	if err := createEmptyFile(s.logPath); err != nil {
		return CannotCreateLogFileError{Path: s.logPath, Err: err}
	}

	if err := createEmptyFile(s.timeIndexPath); err != nil {
		s.removeFiles()
		return CannotCreateTimeIndexFileError{Path: s.timeIndexPath, Err: err}
	}

	indexFile, err := os.Create(s.indexPath)
	if err != nil {
		s.removeFiles()
		return CannotCreateIndexFileError{Path: s.indexPath, Err: err}
	}
	if _, err := indexFile.Write(indexSentinel()); err != nil {
		//nolint:errcheck // Ignore close error, the write error is reported
		_ = indexFile.Close()
		s.removeFiles()
		return CannotSaveIndexError{Path: s.indexPath, Err: err}
	}
	if err := indexFile.Sync(); err != nil {
		//nolint:errcheck // Ignore close error, the sync error is reported
		_ = indexFile.Close()
		s.removeFiles()
		return CannotSaveIndexError{Path: s.indexPath, Err: err}
	}
	if err := indexFile.Close(); err != nil {
		s.removeFiles()
		return CannotSaveIndexError{Path: s.indexPath, Err: err}
	}

	// New directory entries are only durable once the directory itself is synced
	if err := syncDir(s.partitionPath); err != nil {
		s.removeFiles()
		return err
	}

	s.log.Info().
		Str("log_path", s.logPath).
		Msg("Created partition segment files")

	return nil
}

func createEmptyFile(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := file.Sync(); err != nil {
		//nolint:errcheck // Ignore close error, the sync error is reported
		_ = file.Close()
		return err
	}
	return file.Close()
}

func syncDir(path string) error {
	dir, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open directory %s: %w", path, err)
	}
	defer dir.Close()

	if err := dir.Sync(); err != nil {
		return fmt.Errorf("failed to sync directory %s: %w", path, err)
	}
	return nil
}

// removeFiles deletes whatever artifacts a failed Persist left behind
func (s *Segment) removeFiles() {
	for _, path := range []string{s.logPath, s.timeIndexPath, s.indexPath} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			s.log.Warn().Err(err).Str("path", path).Msg("Failed to remove segment file")
		}
	}
}

// Load restores the segment from its files: the time index is read in full and
// every message of the segment's window is decoded into the in-memory cache.
// A segment whose log holds no messages stays empty.
func (s *Segment) Load() error {
	s.log.Info().Msg("Loading segment from disk")

	logFile, err := os.Open(s.logPath)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", s.logPath, err)
	}
	defer logFile.Close()

	// The time index is flushed last, so a crash mid-flush can leave half an entry behind.
	trimmed, err := TrimTimeIndex(s.timeIndexPath)
	if err != nil {
		return err
	}
	if trimmed > 0 {
		s.log.Warn().
			Int64("bytes", trimmed).
			Msg("Incomplete entry at end of time index, truncating")
	}

	timeIndexFile, err := os.Open(s.timeIndexPath)
	if err != nil {
		return fmt.Errorf("failed to open time index file %s: %w", s.timeIndexPath, err)
	}
	defer timeIndexFile.Close()

	stat, err := logFile.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat log file %s: %w", s.logPath, err)
	}
	fileSize := stat.Size()

	timeIndexes, err := LoadTimeIndex(timeIndexFile)
	if err != nil {
		return err
	}

	// The active segment's end offset is unknown until it is sealed, so it is read to the end.
	relativeEndOffset := uint64(math.MaxUint64)
	if s.sealed {
		relativeEndOffset = s.endOffset - s.startOffset
	}

	result, err := LoadMessages(logFile, s.startOffset, 0, relativeEndOffset)
	if err != nil {
		return fmt.Errorf("failed to load messages from %s: %w", s.logPath, err)
	}

	if result.Truncated {
		s.log.Warn().
			Int64("file_size", fileSize).
			Int64("valid_bytes", result.ValidBytes).
			Msg("Incomplete record at end of segment log, truncating")
		if err := os.Truncate(s.logPath, result.ValidBytes); err != nil {
			return fmt.Errorf("failed to truncate log file %s: %w", s.logPath, err)
		}
		fileSize = result.ValidBytes
	}

	if len(result.Messages) == 0 {
		s.timeIndexes = nil
		return nil
	}

	last := result.Messages[len(result.Messages)-1]
	s.currentOffset = last.Offset
	s.messagesCount = uint64(len(result.Messages))

	s.messages.Clear()
	for _, msg := range result.Messages {
		s.messages.Push(msg)
	}

	// A reloaded segment always continues after its last message.
	s.shouldIncrementOffset = true
	s.currentSizeBytes = uint64(fileSize)
	s.savedBytes = s.currentSizeBytes
	s.unsavedMessagesCount = 0

	if err := s.restoreTimeIndex(timeIndexes); err != nil {
		return err
	}
	if err := s.verifyIndex(result.Positions); err != nil {
		return err
	}

	if !s.sealed && s.IsFull() {
		s.Seal(s.currentOffset)
	}

	s.log.Info().
		Uint64("size_bytes", s.currentSizeBytes).
		Uint64("current_offset", s.currentOffset).
		Int("messages", len(result.Messages)).
		Int("time_indexes", len(s.timeIndexes)).
		Msg("Loaded segment from disk")

	return nil
}

// restoreTimeIndex keeps the entries that point at loaded messages and resumes the indexing interval
func (s *Segment) restoreTimeIndex(entries []TimeIndexEntry) error {
	kept := entries[:0]
	for _, entry := range entries {
		if entry.Offset < s.startOffset || entry.Offset > s.currentOffset {
			break
		}
		kept = append(kept, entry)
	}

	if len(kept) != len(entries) {
		s.log.Warn().
			Int("entries", len(entries)).
			Int("kept", len(kept)).
			Msg("Dropping time index entries past the last message")
		if err := os.Truncate(s.timeIndexPath, int64(len(kept))*TimeIndexEntrySize); err != nil {
			return fmt.Errorf("failed to truncate time index file %s: %w", s.timeIndexPath, err)
		}
	}

	s.timeIndexes = kept
	if len(kept) > 0 {
		s.sinceLastTimeIndexSave = uint32(s.currentOffset - kept[len(kept)-1].Offset + 1)
	}
	return nil
}

// verifyIndex rebuilds the offset index when it does not hold one entry per loaded message
func (s *Segment) verifyIndex(positions []uint32) error {
	stat, err := os.Stat(s.indexPath)
	if err == nil && IndexEntriesCount(stat.Size()) == int64(len(positions)) {
		return nil
	}

	s.log.Warn().
		Int("messages", len(positions)).
		Msg("Segment index out of sync with log, rebuilding")

	return RebuildIndex(s.indexPath, positions)
}

// openWritersLocked opens the segment files for appending. The files must already
// exist, which is what Persist (or a previous run) guarantees.
func (s *Segment) openWritersLocked() error {
	if s.logWriter != nil {
		return nil
	}

	logFile, err := os.OpenFile(s.logPath, os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file %s for append: %w", s.logPath, err)
	}
	indexFile, err := os.OpenFile(s.indexPath, os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		//nolint:errcheck // Ignore close error
		_ = logFile.Close()
		return fmt.Errorf("failed to open index file %s for append: %w", s.indexPath, err)
	}
	timeIndexFile, err := os.OpenFile(s.timeIndexPath, os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		//nolint:errcheck // Ignore close error
		_ = logFile.Close()
		//nolint:errcheck // Ignore close error
		_ = indexFile.Close()
		return fmt.Errorf("failed to open time index file %s for append: %w", s.timeIndexPath, err)
	}

	s.logFile = logFile
	s.logWriter = bufio.NewWriterSize(logFile, writerBufferSize)
	s.indexFile = indexFile
	s.indexWriter = bufio.NewWriterSize(indexFile, writerBufferSize)
	s.timeIndexFile = timeIndexFile
	s.timeIndexWriter = bufio.NewWriterSize(timeIndexFile, writerBufferSize)

	return nil
}
