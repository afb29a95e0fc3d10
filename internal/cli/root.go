// Package cli implements syncctl, the operator command line for storesync.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/storesync/internal/application"
	"github.com/JonMunkholm/storesync/internal/config"
	"github.com/JonMunkholm/storesync/internal/logging"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose  bool
	Format   string // "json" | "text"
	EnvFiles []string

	// Open builds the application for commands that need a store. Tests
	// replace it.
	Open func(ctx context.Context, opts *RootOptions, stderr io.Writer) (*application.App, error)
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the syncctl root command.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{Open: openApp})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "syncctl",
		Short: "syncctl - storesync operator tool",
		Long:  "Apply terminal batches, inspect changes and check entity catalogs against a storesync database.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringSliceVar(&opts.EnvFiles, "env-file", []string{".env"}, "env files loaded before configuration")

	cmd.AddCommand(NewApplyCommand(opts))
	cmd.AddCommand(NewChangesCommand(opts))
	cmd.AddCommand(NewEntitiesCommand(opts))
	cmd.AddCommand(NewCatalogCommand(opts))

	return cmd
}

// openApp loads configuration from the environment and opens the store.
// Logs go to stderr so JSON output stays clean.
func openApp(ctx context.Context, opts *RootOptions, stderr io.Writer) (*application.App, error) {
	if _, err := config.LoadDotEnv(opts.EnvFiles...); err != nil {
		return nil, WrapExitError(ExitCommandError, "read env file", err)
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "load configuration", err)
	}

	level := "warn"
	if opts.Verbose {
		level = "debug"
	}
	logger := logging.New(stderr, level, "text")
	slog.SetDefault(logger)

	app, err := application.New(ctx, cfg, logger)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "open store", err)
	}
	return app, nil
}
