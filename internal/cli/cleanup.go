package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/trop-dev/trop/internal/cleanup"
	"github.com/trop-dev/trop/internal/cli/format"
	"github.com/trop-dev/trop/internal/config"
)

func newPruneCommand() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete reservations whose key path no longer exists on disk",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFromContext(cmd.Context())
			return runPrune(cmd, a, dryRun)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report what would be removed but remove nothing")
	return cmd
}

func newExpireCommand() *cobra.Command {
	var dryRun bool
	var maxAgeDays int
	cmd := &cobra.Command{
		Use:   "expire",
		Short: "Delete reservations unused past the configured (or given) age",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFromContext(cmd.Context())
			return runExpire(cmd, a, dryRun, maxAgeDays)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report what would be removed but remove nothing")
	cmd.Flags().IntVar(&maxAgeDays, "max-age-days", 0, "Override the configured expire_after_days")
	return cmd
}

func newAutocleanCommand() *cobra.Command {
	var dryRun bool
	var maxAgeDays int
	cmd := &cobra.Command{
		Use:   "autoclean",
		Short: "Run prune followed by expire",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFromContext(cmd.Context())
			return runAutoclean(cmd, a, dryRun, maxAgeDays)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report what would be removed but remove nothing")
	cmd.Flags().IntVar(&maxAgeDays, "max-age-days", 0, "Override the configured expire_after_days")
	return cmd
}

func runPrune(cmd *cobra.Command, a *app, dryRun bool) error {
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

	result, err := cleanup.Prune(ctx, s, dryRun)
	if err != nil {
		return err
	}
	return emitCleanupResult(cmd, a, result)
}

func runExpire(cmd *cobra.Command, a *app, dryRun bool, maxAgeDays int) error {
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

	maxAge := time.Duration(cfg.ExpireAfterDays) * 24 * time.Hour
	if maxAgeDays > 0 {
		maxAge = time.Duration(maxAgeDays) * 24 * time.Hour
	}

	result, err := cleanup.Expire(ctx, s, maxAge, dryRun)
	if err != nil {
		return err
	}
	return emitCleanupResult(cmd, a, result)
}

func runAutoclean(cmd *cobra.Command, a *app, dryRun bool, maxAgeDays int) error {
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

	maxAge := time.Duration(cfg.ExpireAfterDays) * 24 * time.Hour
	if maxAgeDays > 0 {
		maxAge = time.Duration(maxAgeDays) * 24 * time.Hour
	}

	result, err := cleanup.Autoclean(ctx, s, maxAge, dryRun)
	if err != nil {
		return err
	}
	combined := cleanup.Result{DryRun: dryRun}
	combined.Removed = append(combined.Removed, result.Pruned.Removed...)
	combined.Removed = append(combined.Removed, result.Expired.Removed...)
	return emitCleanupResult(cmd, a, combined)
}

func emitCleanupResult(cmd *cobra.Command, a *app, result cleanup.Result) error {
	for _, r := range result.Removed {
		a.log.Info("removed", "key", r.Key.String(), "port", r.Port.Int())
	}
	f, err := format.Parse(a.format)
	if err != nil {
		return err
	}
	return format.WriteReservations(cmd.OutOrStdout(), f, result.Removed)
}
