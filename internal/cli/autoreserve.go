package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/trop-dev/trop/internal/inference"
	"github.com/trop-dev/trop/internal/pathx"
	"github.com/trop-dev/trop/internal/plan"
)

func newAutoreserveCommand() *cobra.Command {
	flags := &reserveFlags{}
	cmd := &cobra.Command{
		Use:   "autoreserve",
		Short: "Reserve a port for the current directory, inferring project and task from git",
		Long: `Equivalent to reserve on the current directory, except Project and Task
default to the git repository basename and sanitized branch name when not
set explicitly. An inferred value that differs from an existing sticky
project or task is refused like any other sticky-field change.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFromContext(cmd.Context())
			return runAutoreserve(cmd, a, flags)
		},
	}
	flags.register(cmd)
	return cmd
}

func runAutoreserve(cmd *cobra.Command, a *app, flags *reserveFlags) error {
	ctx := cmd.Context()
	cfg, err := loadConfig(a, flags.overrides())
	if err != nil {
		return err
	}
	s, err := openStore(ctx, a, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	cwd, err := os.Getwd()
	if err != nil {
		return err
	}
	identity := inference.Infer(cwd)

	preferred, err := optionalPort(flags.preferred)
	if err != nil {
		return err
	}
	exclusions, err := parseExclusions(flags.excludedPorts)
	if err != nil {
		return err
	}
	if exclusions == nil {
		exclusions = cfg.ExcludedPorts
	}

	// TROP_PATH/TROP_TASK are per-invocation inputs, not merged config:
	// they stand in for the path argument and --task flag autoreserve
	// otherwise infers, but never override an explicit flag.
	keyPath := ""
	if v, ok := os.LookupEnv("TROP_PATH"); ok {
		keyPath, err = pathx.Resolve(v, pathx.Explicit)
		if err != nil {
			return err
		}
	}
	task := optionalString(flags.task)
	if task == nil {
		if v, ok := os.LookupEnv("TROP_TASK"); ok {
			task = &v
		}
	}

	opts := plan.AutoreserveOptions{
		ReserveOptions: plan.ReserveOptions{
			Key:                keyFor(keyPath, flags.tag),
			WorkingDir:         cwd,
			Preferred:          preferred,
			Project:            optionalString(flags.project),
			Task:               task,
			Authority:          buildAuthority(flags.force, flags.allowProjectChange, flags.allowTaskChange, flags.allowChange),
			Force:              flags.force,
			Overwrite:          flags.overwrite,
			AllowUnrelatedPath: flags.allowUnrelatedPath || cfg.AllowUnrelatedPath,
			Range:              cfg.Ports,
			Exclusions:         exclusions,
			Occupancy:          cfg.Occupancy,
			IgnoreOccupied:     flags.ignoreOccupied,
			IgnoreExclusions:   flags.ignoreExclusions,
		},
		InferredProject: optionalString(identity.Project),
		InferredTask:    optionalString(identity.Task),
	}

	p, err := plan.BuildAutoreserve(ctx, s.DB(), opts)
	if err != nil {
		return err
	}
	result, err := plan.Execute(ctx, s, p, flags.dryRun)
	if err != nil {
		return err
	}
	return emitPortResult(cmd, a, result)
}
