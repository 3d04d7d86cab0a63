package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/trop-dev/trop/internal/config"
	"github.com/trop-dev/trop/internal/pathx"
	"github.com/trop-dev/trop/internal/plan"
	"github.com/trop-dev/trop/internal/trop"
)

func newMigrateCommand() *cobra.Command {
	var recursive, force, dryRun bool

	cmd := &cobra.Command{
		Use:   "migrate <from> <to>",
		Short: "Rename a reservation's key path without reallocating its port",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFromContext(cmd.Context())
			return runMigrate(cmd, a, args[0], args[1], recursive, force, dryRun)
		},
	}
	cmd.Flags().BoolVar(&recursive, "recursive", false, "Migrate every reservation whose path is under <from>")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite a reservation already present at the destination")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Compute the plan but write nothing")
	return cmd
}

func runMigrate(cmd *cobra.Command, a *app, from, to string, recursive, force, dryRun bool) error {
	ctx := cmd.Context()
	cfg, err := loadConfig(a, config.Partial{})
	if err != nil {
		return err
	}
	s, err := openStore(ctx, a, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	fromResolved, err := pathx.Resolve(from, pathx.Explicit)
	if err != nil {
		return err
	}
	toResolved, err := pathx.Resolve(to, pathx.Explicit)
	if err != nil {
		return err
	}

	p, conflicts, err := plan.BuildMigrate(ctx, s.DB(), plan.MigrateOptions{
		From:      fromResolved,
		To:        toResolved,
		Recursive: recursive,
		Force:     force,
	})
	if err != nil {
		return err
	}
	if len(conflicts) > 0 && !force {
		for _, c := range conflicts {
			a.log.Warn("skipped migration due to conflict", "old_key", c.OldKey.String(), "new_key", c.NewKey.String())
		}
		return trop.New(trop.KindReservationConflict, "%d migration(s) skipped, a reservation already exists at the destination; rerun with --force to overwrite", len(conflicts))
	}

	result, err := plan.Execute(ctx, s, p, dryRun)
	if err != nil {
		return err
	}
	for _, w := range result.Warnings {
		a.log.Warn(w)
	}
	if len(p.Actions) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no reservations to migrate")
	}
	return nil
}
