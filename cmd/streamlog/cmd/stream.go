package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/flowmesh/streamlog/internal/storage"
)

func newStreamCmd(opts *options) *cobra.Command {
	streamCmd := &cobra.Command{
		Use:   "stream",
		Short: "Manage streams",
		Long: `Create and list streams. A stream is a named group of topics.

Examples:
  streamlog stream create 1 orders
  streamlog stream list -o json`,
	}

	streamCmd.AddCommand(&cobra.Command{
		Use:   "create <stream-id> <name>",
		Short: "Create a stream",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			streamID, err := parseID("stream id", args[0])
			if err != nil {
				return err
			}
			return opts.withStorage(cmd, func(store *storage.Storage) error {
				stream, err := store.StreamManager().CreateStream(streamID, args[1])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Stream %d (%s) created\n", stream.ID, stream.Name)
				return nil
			})
		},
	})

	streamCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List streams",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withStorage(cmd, func(store *storage.Storage) error {
				list, err := store.StreamManager().GetStreams()
				if err != nil {
					return err
				}
				return opts.formatter(cmd).render(list, []string{"id", "name", "created"}, func() [][]any {
					rows := make([][]any, 0, len(list))
					for _, s := range list {
						rows = append(rows, []any{s.ID, s.Name, s.CreatedAt.Format(time.RFC3339)})
					}
					return rows
				})
			})
		},
	})

	return streamCmd
}
