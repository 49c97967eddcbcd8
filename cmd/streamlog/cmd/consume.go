package cmd

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/flowmesh/streamlog/internal/storage"
	"github.com/flowmesh/streamlog/internal/storage/log"
	"github.com/flowmesh/streamlog/internal/storage/streams"
)

// messageView is the printable form of a stored message
type messageView struct {
	Offset    uint64            `json:"offset" yaml:"offset"`
	Timestamp time.Time         `json:"timestamp" yaml:"timestamp"`
	ID        string            `json:"id" yaml:"id"`
	Headers   map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	Payload   string            `json:"payload" yaml:"payload"`
}

func newMessageView(msg *log.Message) messageView {
	return messageView{
		Offset:    msg.Offset,
		Timestamp: msg.Time().UTC(),
		ID:        msg.ID.String(),
		Headers:   msg.Headers,
		Payload:   string(msg.Payload),
	}
}

func formatHeaders(headers map[string]string) string {
	if len(headers) == 0 {
		return "-"
	}
	pairs := make([]string, 0, len(headers))
	for k, v := range headers {
		pairs = append(pairs, k+"="+v)
	}
	sort.Strings(pairs)
	return strings.Join(pairs, ",")
}

// readMessages reads count messages from offset, or from the offset indexed for since when set
func readMessages(
	reader storage.PartitionReader,
	key streams.PartitionKey,
	offset uint64,
	since *time.Time,
	count uint32,
) ([]*log.Message, error) {
	if since != nil {
		var err error
		offset, err = reader.GetOffsetByTimestamp(key, uint64(since.UnixMicro()))
		if err != nil {
			return nil, err
		}
	}
	return reader.GetMessages(key, offset, count)
}

func newConsumeCmd(opts *options) *cobra.Command {
	var (
		offset    uint64
		count     uint32
		timestamp string
	)

	consumeCmd := &cobra.Command{
		Use:   "consume <stream-id> <topic-id> <partition-id>",
		Short: "Read messages from a partition",
		Long: `Read up to --count messages starting at --offset. With --timestamp the
start offset is resolved through the partition's time index instead.

Examples:
  streamlog consume 1 1 1
  streamlog consume 1 1 1 --offset 100 --count 50 -o json
  streamlog consume 1 1 1 --timestamp 2024-01-02T15:04:05Z`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := parsePartitionKey(args)
			if err != nil {
				return err
			}

			var since *time.Time
			if timestamp != "" {
				ts, err := time.Parse(time.RFC3339Nano, timestamp)
				if err != nil {
					return fmt.Errorf("invalid timestamp %q: %w", timestamp, err)
				}
				since = &ts
			}

			return opts.withStorage(cmd, func(store *storage.Storage) error {
				messages, err := readMessages(store.StreamManager(), key, offset, since, count)
				if err != nil {
					return err
				}

				views := make([]messageView, 0, len(messages))
				for _, msg := range messages {
					views = append(views, newMessageView(msg))
				}

				headers := []string{"offset", "timestamp", "id", "headers", "payload"}
				return opts.formatter(cmd).render(views, headers, func() [][]any {
					rows := make([][]any, 0, len(views))
					for _, v := range views {
						rows = append(rows, []any{
							v.Offset, v.Timestamp.Format(time.RFC3339Nano), v.ID, formatHeaders(v.Headers), v.Payload,
						})
					}
					return rows
				})
			})
		},
	}

	consumeCmd.Flags().Uint64Var(&offset, "offset", 0, "First offset to read")
	consumeCmd.Flags().Uint32VarP(&count, "count", "n", 10, "Maximum number of messages")
	consumeCmd.Flags().StringVar(&timestamp, "timestamp", "", "Start from the indexed message closest to this RFC3339 time")

	return consumeCmd
}
