package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/storesync/internal/core/tables"
)

// NewCatalogCommand creates the catalog command group.
func NewCatalogCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Work with YAML entity catalogs",
	}
	cmd.AddCommand(newCatalogCheckCommand(rootOpts))
	return cmd
}

func newCatalogCheckCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check <file>",
		Short: "Validate a catalog without registering it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "open catalog", err)
			}
			defer f.Close()

			defs, err := tables.ParseCatalog(f)
			if err != nil {
				return WrapExitError(ExitFailure, "invalid catalog", err)
			}

			keys := make([]string, len(defs))
			for i, def := range defs {
				keys[i] = def.Info.Key
			}
			result := map[string]any{"valid": true, "entities": keys}
			return output(cmd.OutOrStdout(), rootOpts.Format, result, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "%s: %d entities ok %v\n", args[0], len(defs), keys)
				return err
			})
		},
	}
}
