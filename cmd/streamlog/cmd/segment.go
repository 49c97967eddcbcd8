package cmd

import (
	"github.com/spf13/cobra"

	"github.com/flowmesh/streamlog/internal/storage"
)

// segmentView is the printable form of a segment snapshot
type segmentView struct {
	StartOffset   uint64 `json:"start_offset" yaml:"start_offset"`
	CurrentOffset uint64 `json:"current_offset" yaml:"current_offset"`
	EndOffset     uint64 `json:"end_offset" yaml:"end_offset"`
	Sealed        bool   `json:"sealed" yaml:"sealed"`
	Messages      uint64 `json:"messages" yaml:"messages"`
	SizeBytes     uint64 `json:"size_bytes" yaml:"size_bytes"`
	SavedBytes    uint64 `json:"saved_bytes" yaml:"saved_bytes"`
	LogPath       string `json:"log_path" yaml:"log_path"`
}

func newSegmentCmd(opts *options) *cobra.Command {
	segmentCmd := &cobra.Command{
		Use:   "segment",
		Short: "Inspect partition segments",
	}

	segmentCmd.AddCommand(&cobra.Command{
		Use:   "inspect <stream-id> <topic-id> <partition-id>",
		Short: "Show the segments of a partition",
		Long: `Show every segment of a partition in offset order: its offset window,
whether it is sealed, its message count and its size on disk.

Examples:
  streamlog segment inspect 1 1 1
  streamlog segment inspect 1 1 1 -o yaml`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := parsePartitionKey(args)
			if err != nil {
				return err
			}

			return opts.withStorage(cmd, func(store *storage.Storage) error {
				partition, err := store.StreamManager().GetPartition(key)
				if err != nil {
					return err
				}

				segments := partition.Segments()
				views := make([]segmentView, 0, len(segments))
				for _, s := range segments {
					views = append(views, segmentView{
						StartOffset:   s.StartOffset,
						CurrentOffset: s.CurrentOffset,
						EndOffset:     s.EndOffset,
						Sealed:        s.Sealed,
						Messages:      s.MessagesCount,
						SizeBytes:     s.SizeBytes,
						SavedBytes:    s.SavedBytes,
						LogPath:       s.LogPath,
					})
				}

				headers := []string{"start", "current", "end", "sealed", "messages", "size", "log"}
				return opts.formatter(cmd).render(views, headers, func() [][]any {
					rows := make([][]any, 0, len(views))
					for _, v := range views {
						rows = append(rows, []any{
							v.StartOffset, v.CurrentOffset, v.EndOffset, v.Sealed, v.Messages, v.SizeBytes, v.LogPath,
						})
					}
					return rows
				})
			})
		},
	})

	return segmentCmd
}
