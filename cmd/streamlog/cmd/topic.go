package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/flowmesh/streamlog/internal/storage"
)

func newTopicCmd(opts *options) *cobra.Command {
	topicCmd := &cobra.Command{
		Use:   "topic",
		Short: "Manage topics",
		Long: `Create and list the topics of a stream. Creating a topic creates its
partitions, numbered from 1, each with an empty first segment.

Examples:
  streamlog topic create 1 1 created --partitions 3
  streamlog topic list 1`,
	}

	var partitions uint32
	createCmd := &cobra.Command{
		Use:   "create <stream-id> <topic-id> <name>",
		Short: "Create a topic and its partitions",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			streamID, err := parseID("stream id", args[0])
			if err != nil {
				return err
			}
			topicID, err := parseID("topic id", args[1])
			if err != nil {
				return err
			}
			return opts.withStorage(cmd, func(store *storage.Storage) error {
				topic, err := store.StreamManager().CreateTopic(streamID, topicID, args[2], partitions)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Topic %d (%s) created in stream %d with %d partitions\n",
					topic.ID, topic.Name, topic.StreamID, topic.PartitionsCount)
				return nil
			})
		},
	}
	createCmd.Flags().Uint32VarP(&partitions, "partitions", "p", 1, "Number of partitions")
	topicCmd.AddCommand(createCmd)

	topicCmd.AddCommand(&cobra.Command{
		Use:   "list <stream-id>",
		Short: "List the topics of a stream",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			streamID, err := parseID("stream id", args[0])
			if err != nil {
				return err
			}
			return opts.withStorage(cmd, func(store *storage.Storage) error {
				list, err := store.StreamManager().GetTopics(streamID)
				if err != nil {
					return err
				}
				return opts.formatter(cmd).render(list, []string{"id", "name", "partitions", "created"}, func() [][]any {
					rows := make([][]any, 0, len(list))
					for _, t := range list {
						rows = append(rows, []any{t.ID, t.Name, t.PartitionsCount, t.CreatedAt.Format(time.RFC3339)})
					}
					return rows
				})
			})
		},
	})

	return topicCmd
}
