package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/flowmesh/streamlog/internal/storage/streams"
)

// parseID parses a positive 32-bit identifier argument
func parseID(name, value string) (uint32, error) {
	id, err := strconv.ParseUint(value, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, value, err)
	}
	if id == 0 {
		return 0, fmt.Errorf("invalid %s %q: must be greater than zero", name, value)
	}
	return uint32(id), nil
}

// parsePartitionKey parses <stream-id> <topic-id> <partition-id>
func parsePartitionKey(args []string) (streams.PartitionKey, error) {
	streamID, err := parseID("stream id", args[0])
	if err != nil {
		return streams.PartitionKey{}, err
	}
	topicID, err := parseID("topic id", args[1])
	if err != nil {
		return streams.PartitionKey{}, err
	}
	partitionID, err := parseID("partition id", args[2])
	if err != nil {
		return streams.PartitionKey{}, err
	}
	return streams.PartitionKey{StreamID: streamID, TopicID: topicID, PartitionID: partitionID}, nil
}

// parseHeaders parses repeated key=value header flags
func parseHeaders(values []string) (map[string]string, error) {
	if len(values) == 0 {
		return nil, nil
	}

	headers := make(map[string]string, len(values))
	for _, value := range values {
		key, val, ok := strings.Cut(value, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid header %q: expected key=value", value)
		}
		headers[key] = val
	}
	return headers, nil
}
