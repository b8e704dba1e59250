// Package cli implements the migratory command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/aatuh/migratory/internal/app"
	"github.com/aatuh/migratory/internal/config"
)

// DefaultConfigFile is read when --config is not given and the file exists.
const DefaultConfigFile = "migratory.yaml"

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Verbose    bool
	Format     string // "json" | "text"

	// lookupEnv overrides the environment in tests.
	lookupEnv func(string) (string, bool)
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migratory",
		Short: "Plan and run database migrations",
		Long: "migratory compares the migrations in a directory with the records of " +
			"what has run, plans the steps needed to reconcile them and executes them.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return commandError("usage",
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats), nil)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "config file (default "+DefaultConfigFile+" if present)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(
		newInitCommand(opts),
		newPlanCommand(opts),
		newMigrateCommand(opts),
		newStatusCommand(opts),
		newUpCommand(opts),
		newDownCommand(opts),
		newRerunCommand(opts),
		newMarkFailedCommand(opts),
		newDropCommand(opts),
		newDestroyCommand(opts),
	)
	return cmd
}

// Execute runs the command line with args and returns the exit code.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	return execute(ctx, &RootOptions{}, args, stdout, stderr)
}

func execute(ctx context.Context, opts *RootOptions, args []string, stdout, stderr io.Writer) int {
	cmd := newRootCommand(opts)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return ExitSuccess
	}
	f := &OutputFormatter{Format: opts.Format, Writer: stdout, ErrWriter: stderr}
	f.Error(err)
	return GetExitCode(err)
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

func (o *RootOptions) loadConfig() (*config.Config, error) {
	path := o.ConfigPath
	if path == "" {
		if _, err := os.Stat(DefaultConfigFile); err == nil {
			path = DefaultConfigFile
		}
	}
	loader := config.NewLoader().WithPath(path)
	if o.lookupEnv != nil {
		loader = loader.WithLookupEnv(o.lookupEnv)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, commandError("config", "load config", err)
	}
	return cfg, nil
}

// withApp loads the configuration, opens the App, runs fn and closes the
// App again.
func (o *RootOptions) withApp(
	cmd *cobra.Command,
	fn func(ctx context.Context, a *app.App, f *OutputFormatter) error,
) error {
	f := o.formatter(cmd)
	cfg, err := o.loadConfig()
	if err != nil {
		return err
	}
	f.VerboseLog("store=%s database=%s dir=%s", cfg.Store.Driver, cfg.Database.Driver, cfg.Migrations.Dir)

	appOpts := app.Options{Out: cmd.OutOrStdout(), Err: cmd.ErrOrStderr(), Verbose: o.Verbose}
	if f.JSON() {
		// Progress lines must not mix with the JSON envelope.
		appOpts.Out = cmd.ErrOrStderr()
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := app.Open(ctx, cfg, appOpts)
	if err != nil {
		return commandError("connect", "open", err)
	}

	runErr := fn(ctx, a, f)
	if closeErr := a.Close(); closeErr != nil {
		return errors.Join(runErr, failure("close", closeErr))
	}
	return runErr
}
