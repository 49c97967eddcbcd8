package metastore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/flowmesh/streamlog/internal/logger"
	"github.com/rs/zerolog"
)

const (
	streamsPrefix   = "streams/"
	topicsKeyPrefix = "topics/"
)

// Store is the stream and topic catalog, persisted in a Pebble database
type Store struct {
	// mu serializes check-then-write sequences
	mu  sync.Mutex
	db  *pebble.DB
	dir string
	log zerolog.Logger
}

// NewStore opens (or creates) the catalog database inside metadataDir
func NewStore(metadataDir string) (*Store, error) {
	if err := os.MkdirAll(metadataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create metadata directory: %w", err)
	}

	db, err := pebble.Open(metadataDir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open metadata database: %w", err)
	}

	s := &Store{
		db:  db,
		dir: metadataDir,
		log: logger.WithComponent("metastore"),
	}
	s.log.Info().Str("dir", metadataDir).Msg("Metadata store opened")

	return s, nil
}

// CreateStream registers a new stream
func (s *Store) CreateStream(stream *Stream) error {
	if err := stream.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := streamKey(stream.ID)
	exists, err := s.has(key)
	if err != nil {
		return err
	}
	if exists {
		return ResourceExistsError{Key: string(key)}
	}

	if stream.CreatedAt.IsZero() {
		stream.CreatedAt = time.Now().UTC()
	}
	if err := s.put(key, stream); err != nil {
		return fmt.Errorf("failed to persist stream %d: %w", stream.ID, err)
	}

	s.log.Info().Uint32("stream_id", stream.ID).Str("name", stream.Name).Msg("Stream created")
	return nil
}

// GetStream returns a stream by ID
func (s *Store) GetStream(streamID uint32) (*Stream, error) {
	var stream Stream
	found, err := s.get(streamKey(streamID), &stream)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, StreamNotFoundError{StreamID: streamID}
	}
	return &stream, nil
}

// GetStreams returns every stream ordered by ID
func (s *Store) GetStreams() ([]*Stream, error) {
	var streams []*Stream
	err := s.scan([]byte(streamsPrefix), func(value []byte) error {
		var stream Stream
		if err := json.Unmarshal(value, &stream); err != nil {
			return err
		}
		streams = append(streams, &stream)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list streams: %w", err)
	}
	return streams, nil
}

// CreateTopic registers a new topic in an existing stream
func (s *Store) CreateTopic(topic *Topic) error {
	if err := topic.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	streamExists, err := s.has(streamKey(topic.StreamID))
	if err != nil {
		return err
	}
	if !streamExists {
		return StreamNotFoundError{StreamID: topic.StreamID}
	}

	key := topicKey(topic.StreamID, topic.ID)
	exists, err := s.has(key)
	if err != nil {
		return err
	}
	if exists {
		return ResourceExistsError{Key: string(key)}
	}

	if topic.CreatedAt.IsZero() {
		topic.CreatedAt = time.Now().UTC()
	}
	if err := s.put(key, topic); err != nil {
		return fmt.Errorf("failed to persist topic %d: %w", topic.ID, err)
	}

	s.log.Info().
		Uint32("stream_id", topic.StreamID).
		Uint32("topic_id", topic.ID).
		Uint32("partitions", topic.PartitionsCount).
		Str("name", topic.Name).
		Msg("Topic created")
	return nil
}

// GetTopic returns a topic by stream and topic ID
func (s *Store) GetTopic(streamID, topicID uint32) (*Topic, error) {
	var topic Topic
	found, err := s.get(topicKey(streamID, topicID), &topic)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, TopicNotFoundError{StreamID: streamID, TopicID: topicID}
	}
	return &topic, nil
}

// GetTopics returns the topics of a stream ordered by ID
func (s *Store) GetTopics(streamID uint32) ([]*Topic, error) {
	if _, err := s.GetStream(streamID); err != nil {
		return nil, err
	}

	var topics []*Topic
	err := s.scan(topicsPrefix(streamID), func(value []byte) error {
		var topic Topic
		if err := json.Unmarshal(value, &topic); err != nil {
			return err
		}
		topics = append(topics, &topic)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list topics of stream %d: %w", streamID, err)
	}
	return topics, nil
}

// Close closes the underlying database
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *Store) has(key []byte) (bool, error) {
	_, closer, err := s.db.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	closer.Close()
	return true, nil
}

func (s *Store) get(key []byte, out any) (bool, error) {
	value, closer, err := s.db.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	defer closer.Close()

	if err := json.Unmarshal(value, out); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return true, nil
}

func (s *Store) put(key []byte, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.db.Set(key, data, pebble.Sync)
}

// scan calls fn for every value whose key starts with prefix, in key order
func (s *Store) scan(prefix []byte, fn func(value []byte) error) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		if err := fn(iter.Value()); err != nil {
			return err
		}
	}
	return iter.Error()
}

// prefixUpperBound returns the smallest key greater than every key starting with prefix
func prefixUpperBound(prefix []byte) []byte {
	upper := make([]byte, len(prefix))
	copy(upper, prefix)
	for i := len(upper) - 1; i >= 0; i-- {
		upper[i]++
		if upper[i] != 0 {
			return upper[:i+1]
		}
	}
	return nil
}
