// Command chronicle is a command-line front end for the eventlog package:
// append events to a log file, replay them, and inspect the aggregate index.
//
// Usage:
//
//	chronicle append <log> --type Created --aggregate 1 --payload '{"name":"Leandro"}'
//	chronicle replay <log> [--from N] [--until N]
//	chronicle aggregate <log> <key>
//	chronicle info <log>
//	chronicle index rebuild <log>
package main

import (
	"fmt"
	"os"

	"github.com/snehjoshi/chronicle/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "chronicle: %v\n", err)
		os.Exit(1)
	}
}
