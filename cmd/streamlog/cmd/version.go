package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/flowmesh/streamlog/internal/version"
)

func newVersionCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := parseOutputFormat(opts.output)
			if err != nil {
				return err
			}
			f := newFormatter(format, cmd.OutOrStdout())
			if done, err := f.structured(version.Get()); done {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
			return nil
		},
	}
}
