package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aatuh/migratory"
	"github.com/aatuh/migratory/internal/app"
)

// PlanResult is the JSON payload of plan and migrate.
type PlanResult struct {
	Actions []migratory.Action          `json:"actions"`
	Records []migratory.MigrationRecord `json:"records,omitempty"`
}

// StatusResult is the JSON payload of status.
type StatusResult struct {
	Records []migratory.MigrationRecord `json:"records"`
}

// StepResult is the JSON payload of the single-migration commands.
type StepResult struct {
	MigrationID string                   `json:"migrationId"`
	State       migratory.MigrationState `json:"state"`
}

func newInitCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the record store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App, f *OutputFormatter) error {
				if err := a.Runner.Initialize(ctx); err != nil {
					return failure("initialize", err)
				}
				return f.Success("Record store initialized.", map[string]bool{"initialized": true})
			})
		},
	}
}

func newPlanCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "plan",
		Short: "Show the actions migrate would take",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App, f *OutputFormatter) error {
				if f.JSON() {
					plan, err := a.Runner.PlanMigration(ctx)
					if err != nil {
						return failure("plan", err)
					}
					return f.Success("", PlanResult{Actions: nonNil(plan)})
				}
				if _, err := a.Runner.DisplayPlan(ctx); err != nil {
					return failure("plan", err)
				}
				return nil
			})
		},
	}
}

func newMigrateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Bring the records in line with the migrations directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App, f *OutputFormatter) error {
				plan, err := a.Runner.PlanMigration(ctx)
				if err != nil {
					return failure("plan", err)
				}
				f.VerboseLog("%d action(s) planned", len(plan))
				if err := a.Runner.Migrate(ctx); err != nil {
					return failure("migrate", err)
				}
				records, err := a.Runner.GetAllMigrationRecords(ctx)
				if err != nil {
					return failure("read records", err)
				}
				return f.Success(
					fmt.Sprintf("Migrated: %d action(s) applied.", len(plan)),
					PlanResult{Actions: nonNil(plan), Records: records},
				)
			})
		},
	}
}

func newStatusCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "List the recorded state of every migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App, f *OutputFormatter) error {
				if err := logDeclared(a, f); err != nil {
					return err
				}
				if f.JSON() {
					records, err := a.Runner.GetAllMigrationRecords(ctx)
					if err != nil {
						return failure("status", err)
					}
					if records == nil {
						records = []migratory.MigrationRecord{}
					}
					return f.Success("", StatusResult{Records: records})
				}
				if _, err := a.Runner.DisplayState(ctx); err != nil {
					return failure("status", err)
				}
				return nil
			})
		},
	}
}

// logDeclared lists the declared migrations in verbose mode.
func logDeclared(a *app.App, f *OutputFormatter) error {
	if !f.Verbose {
		return nil
	}
	migs, err := a.Source.Migrations()
	if err != nil {
		return failure("load migrations", err)
	}
	for _, m := range migs {
		f.VerboseLog("declared %s: %d up step(s), %d down step(s)",
			m.ID(), len(m.UpSteps), len(m.DownSteps))
	}
	return nil
}

// stepCommand builds a command acting on one migration ID.
func stepCommand(
	opts *RootOptions,
	use, short, verb string,
	run func(ctx context.Context, a *app.App, id string) error,
) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <migration-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return opts.withApp(cmd, func(ctx context.Context, a *app.App, f *OutputFormatter) error {
				if err := run(ctx, a, id); err != nil {
					return failure(use+" "+id, err)
				}
				state, err := stateOf(ctx, a, id)
				if err != nil {
					return failure("read records", err)
				}
				return f.Success(fmt.Sprintf("%s %s.", verb, id), StepResult{MigrationID: id, State: state})
			})
		},
	}
}

func newUpCommand(opts *RootOptions) *cobra.Command {
	return stepCommand(opts, "up", "Run one migration forward", "Applied",
		func(ctx context.Context, a *app.App, id string) error {
			return a.Runner.MigrateOneUp(ctx, id)
		})
}

func newDownCommand(opts *RootOptions) *cobra.Command {
	return stepCommand(opts, "down", "Run one migration backward", "Reverted",
		func(ctx context.Context, a *app.App, id string) error {
			return a.Runner.MigrateOneDown(ctx, id)
		})
}

func newRerunCommand(opts *RootOptions) *cobra.Command {
	return stepCommand(opts, "rerun", "Run one migration backward, then forward", "Reran",
		func(ctx context.Context, a *app.App, id string) error {
			return a.Runner.RerunOne(ctx, id)
		})
}

func newMarkFailedCommand(opts *RootOptions) *cobra.Command {
	return stepCommand(opts, "mark-failed", "Mark a migration failed without running it", "Marked failed",
		func(ctx context.Context, a *app.App, id string) error {
			return a.Runner.MarkFailed(ctx, id)
		})
}

func newDropCommand(opts *RootOptions) *cobra.Command {
	return stepCommand(opts, "drop", "Mark a migration down without running it", "Dropped",
		func(ctx context.Context, a *app.App, id string) error {
			return a.Runner.Drop(ctx, id)
		})
}

func newDestroyCommand(opts *RootOptions) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "destroy",
		Short: "Roll back every migration and remove the record store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return commandError("usage", "destroy rolls back every migration; pass --yes to confirm", nil)
			}
			return opts.withApp(cmd, func(ctx context.Context, a *app.App, f *OutputFormatter) error {
				if err := a.Runner.Destroy(ctx); err != nil {
					return failure("destroy", err)
				}
				return f.Success("Destroyed.", map[string]bool{"destroyed": true})
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm destroy")
	return cmd
}

func stateOf(ctx context.Context, a *app.App, id string) (migratory.MigrationState, error) {
	records, err := a.Runner.GetAllMigrationRecords(ctx)
	if err != nil {
		return "", err
	}
	for _, r := range records {
		if r.MigrationID == id {
			return r.State, nil
		}
	}
	return "", nil
}

func nonNil(actions []migratory.Action) []migratory.Action {
	if actions == nil {
		return []migratory.Action{}
	}
	return actions
}
