package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/storesync/internal/core"
	"github.com/JonMunkholm/storesync/internal/core/tables"
)

// NewEntitiesCommand creates the entities command.
func NewEntitiesCommand(rootOpts *RootOptions) *cobra.Command {
	var catalog string

	cmd := &cobra.Command{
		Use:   "entities",
		Short: "List registered entities",
		Long:  "List built-in entities, plus those of --catalog, with their identity keys and failure mode.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if catalog != "" {
				if _, err := tables.LoadCatalog(catalog); err != nil {
					return WrapExitError(ExitCommandError, "load catalog", err)
				}
			}
			return printEntities(cmd.OutOrStdout(), rootOpts.Format, core.All())
		},
	}

	cmd.Flags().StringVar(&catalog, "catalog", "", "YAML entity catalog to load first")

	return cmd
}

func printEntities(w io.Writer, format string, defs []core.EntityDefinition) error {
	summaries := make([]core.EntitySummary, len(defs))
	for i, def := range defs {
		summaries[i] = core.SummaryOf(def)
	}

	return output(w, format, summaries, func(w io.Writer) error {
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "KEY\tGROUP\tTABLE\tIDENTITY\tMODE")
		for _, s := range summaries {
			ids := make([]string, len(s.IdentityKeys))
			for i, k := range s.IdentityKeys {
				ids[i] = strings.Join(k, "+")
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", s.Key, s.Group, s.Table, strings.Join(ids, ", "), s.Mode)
		}
		return tw.Flush()
	})
}
