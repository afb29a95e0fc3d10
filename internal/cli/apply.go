package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/storesync/internal/core"
)

type applyOptions struct {
	operation string
	terminal  string
}

// NewApplyCommand creates the apply command.
func NewApplyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &applyOptions{}

	cmd := &cobra.Command{
		Use:   "apply <entity> [file]",
		Short: "Reconcile a batch file into the store",
		Long: `Reconcile a batch of records into the store exactly as a terminal sync would.

The file holds either a JSON array of records or an envelope
{"operation": ..., "data": [...]}. With no file, or "-", the batch is read
from stdin. The exit code is 1 when any record failed.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "-"
			if len(args) == 2 {
				path = args[1]
			}
			return runApply(cmd, rootOpts, opts, args[0], path)
		},
	}

	cmd.Flags().StringVar(&opts.operation, "operation", "", "operation hint (INSERT|UPDATE|CREATE|DELETE), overrides the file")
	cmd.Flags().StringVar(&opts.terminal, "terminal", "syncctl", "terminal name recorded on notifications")

	return cmd
}

func runApply(cmd *cobra.Command, rootOpts *RootOptions, opts *applyOptions, entity, path string) error {
	body, err := readInput(cmd.InOrStdin(), path)
	if err != nil {
		return WrapExitError(ExitCommandError, "read batch", err)
	}
	op, records, err := core.DecodeBatch(body)
	if err != nil {
		return WrapExitError(ExitCommandError, "decode batch", err)
	}
	if opts.operation != "" {
		op = core.ParseOperation(opts.operation)
	}

	ctx := core.ContextWithTerminal(cmd.Context(), opts.terminal)
	app, err := rootOpts.Open(ctx, rootOpts, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer app.Shutdown(context.WithoutCancel(ctx))

	report, syncErr := app.Service.Sync(ctx, core.BatchRequest{
		Entity:    entity,
		Operation: op,
		Records:   records,
	})
	if report == nil {
		return WrapExitError(ExitCommandError, "sync rejected", syncErr)
	}

	if err := output(cmd.OutOrStdout(), rootOpts.Format, report, func(w io.Writer) error {
		return printReport(w, report, rootOpts.Verbose)
	}); err != nil {
		return err
	}

	if syncErr != nil {
		return WrapExitError(ExitFailure, "batch aborted", syncErr)
	}
	if report.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d records failed", report.Failed, report.Total))
	}
	return nil
}

func readInput(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}

// printReport writes the batch totals, then one line per failed record, or
// per record when verbose.
func printReport(w io.Writer, r *core.BatchReport, verbose bool) error {
	fmt.Fprintf(w, "batch %s entity=%s total=%d created=%d updated=%d deleted=%d skipped=%d failed=%d chunks=%d\n",
		r.BatchID, r.Entity, r.Total, r.Created, r.Updated, r.Deleted, r.Skipped, r.Failed, r.Chunks)

	for _, res := range r.Results {
		if res.Action != core.ActionFailed && !verbose {
			continue
		}
		line := fmt.Sprintf("  #%d %s", res.Index, res.Action)
		if res.Reason != "" {
			line += " " + res.Reason
		}
		if res.Column != "" {
			line += fmt.Sprintf(" column=%s", res.Column)
		}
		if res.Error != "" {
			line += fmt.Sprintf(" (%s)", res.Error)
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}
