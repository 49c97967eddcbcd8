package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/flowmesh/streamlog/internal/storage"
	"github.com/flowmesh/streamlog/internal/storage/streams"
)

func newProduceCmd(opts *options) *cobra.Command {
	var (
		messages   []string
		file       string
		rawHeaders []string
	)

	produceCmd := &cobra.Command{
		Use:   "produce <stream-id> <topic-id> <partition-id>",
		Short: "Append messages to a partition",
		Long: `Append messages to a partition. All messages of one invocation are appended
as a single batch and receive consecutive offsets.

Messages can be provided via:
  - --message flag (repeatable)
  - --file flag (one message per line, "-" reads stdin)

Examples:
  streamlog produce 1 1 1 -m "hello" -m "world"
  streamlog produce 1 1 1 -m '{"id": 7}' -H content-type=json
  cat events.txt | streamlog produce 1 1 1 -f -`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := parsePartitionKey(args)
			if err != nil {
				return err
			}
			headers, err := parseHeaders(rawHeaders)
			if err != nil {
				return err
			}

			payloads := messages
			if file != "" {
				lines, err := readLines(cmd, file)
				if err != nil {
					return err
				}
				payloads = append(payloads, lines...)
			}
			if len(payloads) == 0 {
				return fmt.Errorf("no messages to produce: use --message or --file")
			}

			return opts.withStorage(cmd, func(store *storage.Storage) error {
				offsets, err := produce(store.StreamManager(), key, payloads, headers)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Appended %d messages to %s (offsets %d-%d)\n",
					len(offsets), key, offsets[0], offsets[len(offsets)-1])
				return nil
			})
		},
	}

	produceCmd.Flags().StringArrayVarP(&messages, "message", "m", nil, "Message payload (repeatable)")
	produceCmd.Flags().StringVarP(&file, "file", "f", "", `File with one message per line ("-" for stdin)`)
	produceCmd.Flags().StringArrayVarP(&rawHeaders, "header", "H", nil, "Message header key=value (repeatable)")

	return produceCmd
}

// produce appends payloads as one batch sharing the same headers
func produce(
	writer storage.PartitionWriter,
	key streams.PartitionKey,
	payloads []string,
	headers map[string]string,
) ([]uint64, error) {
	events := make([]streams.Event, 0, len(payloads))
	for _, payload := range payloads {
		events = append(events, streams.Event{Payload: []byte(payload), Headers: headers})
	}
	return writer.WriteEvents(key, events)
}

// readLines returns the non-empty lines of path, or of stdin when path is "-"
func readLines(cmd *cobra.Command, path string) ([]string, error) {
	var r io.Reader
	if path == "-" {
		r = cmd.InOrStdin()
	} else {
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", path, err)
		}
		defer file.Close()
		r = file
	}

	var lines []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read messages: %w", err)
	}
	return lines, nil
}
