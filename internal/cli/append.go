package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/snehjoshi/chronicle/eventlog"
)

// AppendOptions holds flags for the append command.
type AppendOptions struct {
	*RootOptions
	Type          string
	Namespace     string
	SchemaID      string
	SchemaVersion uint32
	Aggregate     uint64
	Payload       string
	Sync          bool
}

// NewAppendCommand creates the append command.
func NewAppendCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AppendOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "append <log>",
		Short: "Append one event and print its offset",
		Long: `Append one event to the log, creating the file if it does not exist.

By default the write lands in the OS buffer; pass --sync to force it to
stable storage before the command returns.

Example:
  chronicle append accounts.log --type Created --namespace accounts \
    --schema Person --aggregate 1 --payload '{"name":"Leandro"}' --sync`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAppend(opts, cmd, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.Type, "type", "", "event type (required)")
	cmd.Flags().StringVar(&opts.Namespace, "namespace", "", "schema namespace")
	cmd.Flags().StringVar(&opts.SchemaID, "schema", "", "schema identifier")
	cmd.Flags().Uint32Var(&opts.SchemaVersion, "schema-version", 1, "schema version")
	cmd.Flags().Uint64Var(&opts.Aggregate, "aggregate", 0, "aggregate key (omit for an unkeyed event)")
	cmd.Flags().StringVar(&opts.Payload, "payload", "", "raw JSON payload")
	cmd.Flags().BoolVar(&opts.Sync, "sync", false, "fsync before returning")
	_ = cmd.MarkFlagRequired("type")

	return cmd
}

func runAppend(opts *AppendOptions, cmd *cobra.Command, path string) error {
	logOpts, err := opts.loadOptions()
	if err != nil {
		return err
	}

	ev := eventlog.Event{
		Type:          opts.Type,
		Namespace:     opts.Namespace,
		SchemaID:      opts.SchemaID,
		SchemaVersion: opts.SchemaVersion,
	}
	if cmd.Flags().Changed("aggregate") {
		key := opts.Aggregate
		ev.AggregateID = &key
	}
	if opts.Payload != "" {
		if !json.Valid([]byte(opts.Payload)) {
			return fmt.Errorf("--payload is not valid JSON")
		}
		ev.Payload = json.RawMessage(opts.Payload)
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

	var offset uint64
	if opts.Sync {
		offset, err = l.AppendSync(ev)
	} else {
		offset, err = l.Append(ev)
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "appended event at offset %d\n", offset)
	return nil
}
