package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/storesync/internal/core"
)

type changesOptions struct {
	since  string
	cursor string
	limit  int
	all    bool
}

// NewChangesCommand creates the changes command.
func NewChangesCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &changesOptions{}

	cmd := &cobra.Command{
		Use:   "changes <entity>",
		Short: "List rows modified after a timestamp",
		Long: `List rows of an entity whose modification timestamp is after --since,
oldest first. Text output is one JSON record per line.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChanges(cmd, rootOpts, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.since, "since", "", "only rows modified after this timestamp")
	cmd.Flags().StringVar(&opts.cursor, "cursor", "", "resume after the next value of a previous page")
	cmd.Flags().IntVar(&opts.limit, "limit", 0, "page size (default: server limit)")
	cmd.Flags().BoolVar(&opts.all, "all", false, "follow pages until no more rows")

	return cmd
}

func runChanges(cmd *cobra.Command, rootOpts *RootOptions, opts *changesOptions, entity string) error {
	ctx := cmd.Context()
	app, err := rootOpts.Open(ctx, rootOpts, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer app.Shutdown(context.WithoutCancel(ctx))

	var pages []*core.ChangesPage
	req := core.ChangesRequest{Entity: entity, Since: opts.since, Cursor: opts.cursor, Limit: opts.limit}
	for {
		page, err := app.Service.Changes(ctx, req)
		if err != nil {
			return WrapExitError(ExitCommandError, "list changes", err)
		}
		pages = append(pages, page)
		if !opts.all || !page.HasMore || page.Next == "" {
			break
		}
		req.Cursor = page.Next
	}

	var v any = pages
	if len(pages) == 1 {
		v = pages[0]
	}
	return output(cmd.OutOrStdout(), rootOpts.Format, v, func(w io.Writer) error {
		count := 0
		for _, page := range pages {
			for _, rec := range page.Records {
				line, err := json.Marshal(rec)
				if err != nil {
					return err
				}
				fmt.Fprintln(w, string(line))
				count++
			}
		}
		if rootOpts.Verbose {
			last := pages[len(pages)-1]
			fmt.Fprintf(w, "# %d rows, more=%v next=%q\n", count, last.HasMore, last.Next)
		}
		return nil
	})
}
