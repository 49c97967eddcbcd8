package log

import "fmt"

// EntryTooLargeError indicates a record exceeds the maximum size
type EntryTooLargeError struct {
	Size int
	Max  int
}

func (e EntryTooLargeError) Error() string {
	return fmt.Sprintf("entry size %d exceeds maximum %d", e.Size, e.Max)
}

// InvalidEntryLengthError indicates an invalid record length
type InvalidEntryLengthError struct {
	Length uint32
}

func (e InvalidEntryLengthError) Error() string {
	return fmt.Sprintf("invalid entry length: %d", e.Length)
}

// ChecksumMismatchError indicates a checksum validation failure
type ChecksumMismatchError struct {
	Expected uint32
	Actual   uint32
}

func (e ChecksumMismatchError) Error() string {
	return fmt.Sprintf("checksum mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// CannotCreateLogFileError indicates the segment log file could not be created
type CannotCreateLogFileError struct {
	Path string
	Err  error
}

func (e CannotCreateLogFileError) Error() string {
	return fmt.Sprintf("cannot create partition segment log file %s: %v", e.Path, e.Err)
}

func (e CannotCreateLogFileError) Unwrap() error {
	return e.Err
}

// CannotCreateIndexFileError indicates the segment index file could not be created
type CannotCreateIndexFileError struct {
	Path string
	Err  error
}

func (e CannotCreateIndexFileError) Error() string {
	return fmt.Sprintf("cannot create partition segment index file %s: %v", e.Path, e.Err)
}

func (e CannotCreateIndexFileError) Unwrap() error {
	return e.Err
}

// CannotCreateTimeIndexFileError indicates the segment time index file could not be created
type CannotCreateTimeIndexFileError struct {
	Path string
	Err  error
}

func (e CannotCreateTimeIndexFileError) Error() string {
	return fmt.Sprintf("cannot create partition segment time index file %s: %v", e.Path, e.Err)
}

func (e CannotCreateTimeIndexFileError) Unwrap() error {
	return e.Err
}

// CannotSaveIndexError indicates the initial index sentinel could not be written
type CannotSaveIndexError struct {
	Path string
	Err  error
}

func (e CannotSaveIndexError) Error() string {
	return fmt.Sprintf("cannot save index to segment %s: %v", e.Path, e.Err)
}

func (e CannotSaveIndexError) Unwrap() error {
	return e.Err
}

// SegmentFullError indicates an append to a segment that reached its size limit
type SegmentFullError struct {
	StartOffset uint64
	SizeBytes   uint64
}

func (e SegmentFullError) Error() string {
	return fmt.Sprintf("segment with start offset %d is full (%d bytes)", e.StartOffset, e.SizeBytes)
}

// IndexCorruptedError indicates an index file without a valid sentinel or entry
type IndexCorruptedError struct {
	Path   string
	Reason string
}

func (e IndexCorruptedError) Error() string {
	return fmt.Sprintf("index %s corrupted: %s", e.Path, e.Reason)
}

// TimestampNotFoundError indicates a time lookup on a segment without time index entries
type TimestampNotFoundError struct {
	Timestamp uint64
}

func (e TimestampNotFoundError) Error() string {
	return fmt.Sprintf("no time index entry for timestamp %d", e.Timestamp)
}

// InvalidConfigError indicates an invalid segment configuration
type InvalidConfigError struct {
	Field  string
	Reason string
}

func (e InvalidConfigError) Error() string {
	return "invalid segment config: " + e.Field + ": " + e.Reason
}
