package log

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
)

const (
	// RecordHeaderSize is the size of a record header (length + checksum)
	RecordHeaderSize = 8 // 4 bytes length + 4 bytes checksum
	// MaxEntrySize is the maximum record body size (10MB)
	MaxEntrySize = 10 * 1024 * 1024

	// offset + timestamp + id + flags + headers length + payload length
	recordFixedBodySize = 8 + 8 + 16 + 1 + 4 + 4

	// RecordOverhead is the encoded size of a message without headers and payload
	RecordOverhead = RecordHeaderSize + recordFixedBodySize

	flagCompressed byte = 1 << 0
)

var (
	// CRC32Table for checksum calculation
	CRC32Table = crc32.MakeTable(crc32.IEEE)

	zstdOnce    sync.Once
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
	zstdErr     error
)

func zstdCodec() (*zstd.Encoder, *zstd.Decoder, error) {
	zstdOnce.Do(func() {
		zstdEncoder, zstdErr = zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.SpeedDefault),
			zstd.WithEncoderConcurrency(1))
		if zstdErr != nil {
			return
		}
		zstdDecoder, zstdErr = zstd.NewReader(nil)
	})
	return zstdEncoder, zstdDecoder, zstdErr
}

// EncodeMessage encodes a message into a log record
// Format: [Length (4 bytes)][Checksum (4 bytes)][Body (Length bytes)]
func EncodeMessage(msg *Message, compression Compression) ([]byte, error) {
	if err := validateHeaders(msg.Headers); err != nil {
		return nil, err
	}

	payload := msg.Payload
	var flags byte
	if compression == CompressionZstd && len(payload) > 0 {
		enc, _, err := zstdCodec()
		if err != nil {
			return nil, fmt.Errorf("failed to initialize zstd: %w", err)
		}
		payload = enc.EncodeAll(payload, make([]byte, 0, len(payload)))
		flags |= flagCompressed
	}

	hdrSize := headersSize(msg.Headers)
	bodySize := recordFixedBodySize + hdrSize + len(payload)
	if bodySize > MaxEntrySize {
		return nil, EntryTooLargeError{Size: bodySize, Max: MaxEntrySize}
	}

	buf := make([]byte, RecordHeaderSize+bodySize)
	body := buf[RecordHeaderSize:]

	pos := 0
	binary.LittleEndian.PutUint64(body[pos:], msg.Offset)
	pos += 8
	binary.LittleEndian.PutUint64(body[pos:], msg.Timestamp)
	pos += 8
	copy(body[pos:pos+16], msg.ID[:])
	pos += 16
	body[pos] = flags
	pos++
	binary.LittleEndian.PutUint32(body[pos:], uint32(hdrSize))
	pos += 4
	pos += putHeaders(body[pos:], msg.Headers)
	binary.LittleEndian.PutUint32(body[pos:], uint32(len(payload)))
	pos += 4
	copy(body[pos:], payload)

	binary.LittleEndian.PutUint32(buf[0:4], uint32(bodySize))
	binary.LittleEndian.PutUint32(buf[4:8], crc32.Checksum(body, CRC32Table))

	return buf, nil
}

// DecodeMessage decodes a record body (without the header) back into a message.
// A record without headers decodes to nil Headers.
func DecodeMessage(body []byte) (*Message, error) {
	if len(body) < recordFixedBodySize {
		return nil, fmt.Errorf("record body too short: %d bytes", len(body))
	}

	msg := &Message{}
	pos := 0
	msg.Offset = binary.LittleEndian.Uint64(body[pos:])
	pos += 8
	msg.Timestamp = binary.LittleEndian.Uint64(body[pos:])
	pos += 8
	id, err := uuid.FromBytes(body[pos : pos+16])
	if err != nil {
		return nil, fmt.Errorf("failed to decode message id: %w", err)
	}
	msg.ID = id
	pos += 16
	flags := body[pos]
	pos++

	hdrSize := int(binary.LittleEndian.Uint32(body[pos:]))
	pos += 4
	if pos+hdrSize+4 > len(body) {
		return nil, fmt.Errorf("headers length %d exceeds record body", hdrSize)
	}
	if hdrSize > 0 {
		headers, err := decodeHeaders(body[pos : pos+hdrSize])
		if err != nil {
			return nil, err
		}
		msg.Headers = headers
	}
	pos += hdrSize

	payloadSize := int(binary.LittleEndian.Uint32(body[pos:]))
	pos += 4
	if pos+payloadSize != len(body) {
		return nil, fmt.Errorf("payload length %d does not match record body", payloadSize)
	}

	payload := make([]byte, payloadSize)
	copy(payload, body[pos:])
	if flags&flagCompressed != 0 {
		_, dec, err := zstdCodec()
		if err != nil {
			return nil, fmt.Errorf("failed to initialize zstd: %w", err)
		}
		payload, err = dec.DecodeAll(payload, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress payload: %w", err)
		}
	}
	msg.Payload = payload

	return msg, nil
}

// ReadRecord reads the next record from r and returns its verified body.
// It returns io.EOF at a clean end of input and io.ErrUnexpectedEOF when the
// final record is incomplete.
func ReadRecord(r io.Reader) ([]byte, error) {
	var header [RecordHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}

	length := binary.LittleEndian.Uint32(header[0:4])
	if length < recordFixedBodySize || length > MaxEntrySize {
		return nil, InvalidEntryLengthError{Length: length}
	}
	storedChecksum := binary.LittleEndian.Uint32(header[4:8])

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}

	calculatedChecksum := crc32.Checksum(body, CRC32Table)
	if calculatedChecksum != storedChecksum {
		return nil, ChecksumMismatchError{
			Expected: storedChecksum,
			Actual:   calculatedChecksum,
		}
	}

	return body, nil
}

// LoadResult is the outcome of decoding a segment log file
type LoadResult struct {
	// Messages holds the decoded messages inside the requested window, in offset order
	Messages []*Message
	// Positions holds the byte position of each message in Messages
	Positions []uint32
	// ValidBytes is the number of bytes covered by complete records that were examined
	ValidBytes int64
	// Truncated reports an incomplete trailing record
	Truncated bool
}

// LoadMessages decodes sequential records from r and keeps the messages whose
// offset relative to startOffset lies in [relStart, relEnd].
func LoadMessages(r io.Reader, startOffset, relStart, relEnd uint64) (*LoadResult, error) {
	reader := bufio.NewReaderSize(r, 64*1024)
	result := &LoadResult{}

	var position int64
	for {
		body, err := ReadRecord(reader)
		if errors.Is(err, io.EOF) {
			break
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			result.Truncated = true
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read record at position %d: %w", position, err)
		}

		msg, err := DecodeMessage(body)
		if err != nil {
			return nil, fmt.Errorf("failed to decode record at position %d: %w", position, err)
		}

		recordSize := int64(RecordHeaderSize + len(body))
		if msg.Offset < startOffset {
			return nil, fmt.Errorf("record offset %d precedes segment start offset %d", msg.Offset, startOffset)
		}

		relative := msg.Offset - startOffset
		if relative > relEnd {
			break
		}
		if relative >= relStart {
			result.Messages = append(result.Messages, msg)
			result.Positions = append(result.Positions, uint32(position))
		}
		position += recordSize
	}

	result.ValidBytes = position
	return result, nil
}

func validateHeaders(headers map[string]string) error {
	if len(headers) > math.MaxUint16 {
		return fmt.Errorf("too many headers: %d", len(headers))
	}
	for k, v := range headers {
		if len(k) > math.MaxUint16 || len(v) > math.MaxUint16 {
			return fmt.Errorf("header %q exceeds %d bytes", k, math.MaxUint16)
		}
	}
	return nil
}

// headersSize returns the encoded size of a header map (0 for no headers)
func headersSize(headers map[string]string) int {
	if len(headers) == 0 {
		return 0
	}
	size := 2
	for k, v := range headers {
		size += 2 + len(k) + 2 + len(v)
	}
	return size
}

// putHeaders writes headers in sorted key order and returns the bytes written
func putHeaders(dst []byte, headers map[string]string) int {
	if len(headers) == 0 {
		return 0
	}

	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pos := 0
	binary.LittleEndian.PutUint16(dst[pos:], uint16(len(keys)))
	pos += 2
	for _, k := range keys {
		v := headers[k]
		binary.LittleEndian.PutUint16(dst[pos:], uint16(len(k)))
		pos += 2
		pos += copy(dst[pos:], k)
		binary.LittleEndian.PutUint16(dst[pos:], uint16(len(v)))
		pos += 2
		pos += copy(dst[pos:], v)
	}
	return pos
}

func decodeHeaders(data []byte) (map[string]string, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("headers block too short: %d bytes", len(data))
	}

	count := int(binary.LittleEndian.Uint16(data))
	headers := make(map[string]string, count)
	pos := 2
	for i := 0; i < count; i++ {
		key, n, err := readString16(data, pos)
		if err != nil {
			return nil, fmt.Errorf("header %d key: %w", i, err)
		}
		pos = n
		value, n, err := readString16(data, pos)
		if err != nil {
			return nil, fmt.Errorf("header %d value: %w", i, err)
		}
		pos = n
		headers[key] = value
	}
	return headers, nil
}

func readString16(data []byte, pos int) (string, int, error) {
	if pos+2 > len(data) {
		return "", 0, io.ErrUnexpectedEOF
	}
	n := int(binary.LittleEndian.Uint16(data[pos:]))
	pos += 2
	if pos+n > len(data) {
		return "", 0, io.ErrUnexpectedEOF
	}
	return string(data[pos : pos+n]), pos + n, nil
}
