package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/snehjoshi/chronicle/eventlog"
)

// NewAggregateCommand creates the aggregate command.
func NewAggregateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "aggregate <log> <key>",
		Short: "Print every event recorded under an aggregate key",
		Long: `Look up an aggregate key in the index and print its events in append
order, one JSON object per line. Each event is read directly at its indexed
offset — no log scan. An unseen key prints nothing and exits zero.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := strconv.ParseUint(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("aggregate key must be an unsigned integer: %w", err)
			}
			return runAggregate(rootOpts, cmd, args[0], key)
		},
	}
	return cmd
}

func runAggregate(opts *RootOptions, cmd *cobra.Command, path string, key uint64) error {
	logOpts, err := opts.loadOptions()
	if err != nil {
		return err
	}

	l, err := eventlog.Open(path, logOpts)
	if err != nil {
		return err
	}
	defer func() {
		if err := l.Close(); err != nil {
			slog.Warn("close log", "err", err)
		}
	}()

	events, err := l.LoadAggregate(key)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	for _, ev := range events {
		if err := enc.Encode(replayLine{Offset: ev.Offset, StoredEvent: ev}); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
	}
	return nil
}
