// Package cli implements the chronicle command-line tool: a thin external
// consumer of the eventlog package for appending, replaying, and inspecting
// a log from the shell. All storage semantics live in eventlog; this layer
// only parses arguments, wires options, and prints results.
package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/snehjoshi/chronicle/eventlog"
)

// RootOptions holds flags shared by every subcommand.
type RootOptions struct {
	Verbose bool
	Options string // path to a YAML options file; empty means defaults
}

// NewRootCommand creates the chronicle root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "chronicle",
		Short: "Append-only event log tool",
		Long: `chronicle appends, replays, and inspects an embeddable append-only
event log file. Offsets printed by append are stable identities: feed them
back to replay to resume from any frame boundary.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelWarn
			if opts.Verbose {
				level = slog.LevelDebug
			}
			handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
			slog.SetDefault(slog.New(handler))
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().StringVar(&opts.Options, "options", "", "path to YAML options file")

	cmd.AddCommand(
		NewAppendCommand(opts),
		NewReplayCommand(opts),
		NewAggregateCommand(opts),
		NewInfoCommand(opts),
		NewIndexCommand(opts),
	)
	return cmd
}

// loadOptions resolves the eventlog options for this invocation.
func (o *RootOptions) loadOptions() (eventlog.Options, error) {
	if o.Options == "" {
		return eventlog.DefaultOptions(), nil
	}
	return eventlog.LoadOptions(o.Options)
}
