// Command streamlog runs and administers a segment-based partition log.
//
// USAGE:
//
//	streamlog [command] [subcommand] [flags]
//
// EXAMPLES:
//
//	streamlog serve --config streamlog.yaml
//	streamlog stream create 1 orders
//	streamlog topic create 1 1 created --partitions 3
//	streamlog produce 1 1 1 -m "hello"
//	streamlog consume 1 1 1 --offset 0 --count 10
//	streamlog segment inspect 1 1 1
package main

import (
	"os"

	"github.com/flowmesh/streamlog/cmd/streamlog/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
