package cli

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/akatsuki-labs/akatsuki/internal/app"
	"github.com/akatsuki-labs/akatsuki/internal/config"
	"github.com/akatsuki-labs/akatsuki/internal/logging"
)

// RootOptions holds global flags and the hooks every command builds its runtime with.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	// LoadConfig and Build are overridable for tests.
	LoadConfig func() (config.Config, error)
	Build      func(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app.App, error)
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the akatsuki operator CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{LoadConfig: config.Load, Build: app.Build})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "akatsuki",
		Short: "Idempotent wager purchase runner",
		Long:  "Operate purchase runs against the wagering portal: run, inspect the ledger, manage the stored session and evaluate settled races.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewLedgerCommand(opts))
	cmd.AddCommand(NewSessionCommand(opts))
	cmd.AddCommand(NewEvaluateCommand(opts))

	return cmd
}

// runtime loads configuration and builds the application for one command.
func (o *RootOptions) runtime(cmd *cobra.Command) (*app.App, error) {
	cfg, err := o.LoadConfig()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "load config", err)
	}
	level := cfg.LogLevel
	if o.Verbose {
		level = "debug"
	}
	logger := logging.NewWithWriter(cmd.ErrOrStderr(), level)
	rt, err := o.Build(cmd.Context(), cfg, logger)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "build runtime", err)
	}
	return rt, nil
}

func closeRuntime(rt *app.App) {
	if err := rt.Close(context.Background()); err != nil {
		rt.Logger.Warn("close runtime", slog.Any("error", err))
	}
}
