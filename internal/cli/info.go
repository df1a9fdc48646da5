package cli

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/snehjoshi/chronicle/eventlog"
)

// NewInfoCommand creates the info command.
func NewInfoCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "info <log>",
		Short:         "Summarize a log file",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInfo(rootOpts, cmd, args[0])
		},
	}
	return cmd
}

func runInfo(opts *RootOptions, cmd *cobra.Command, path string) error {
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

	// Count frames and keyed events by a bounded scan of the current log.
	frames, keyedFrames := 0, 0
	cur := l.ReplayUntil(0, l.EndOffset())
	for cur.Next() {
		frames++
		if _, ok := cur.Event().Aggregate(); ok {
			keyedFrames++
		}
	}
	if err := cur.Err(); err != nil {
		return err
	}

	sidecar := "absent"
	if _, err := os.Stat(eventlog.SidecarPath(path)); err == nil {
		sidecar = eventlog.SidecarPath(path)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "path:          %s\n", l.Path())
	fmt.Fprintf(out, "created:       %s\n", l.CreatedAt().UTC().Format(time.RFC3339))
	fmt.Fprintf(out, "end offset:    %d\n", l.EndOffset())
	fmt.Fprintf(out, "events:        %d (%d keyed)\n", frames, keyedFrames)
	fmt.Fprintf(out, "aggregates:    %d\n", len(l.Aggregates()))
	fmt.Fprintf(out, "index sidecar: %s\n", sidecar)
	return nil
}
