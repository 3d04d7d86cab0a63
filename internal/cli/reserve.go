package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/trop-dev/trop/internal/cli/format"
	"github.com/trop-dev/trop/internal/config"
	"github.com/trop-dev/trop/internal/pathx"
	"github.com/trop-dev/trop/internal/plan"
)

// reserveFlags is shared between reserve and autoreserve.
type reserveFlags struct {
	tag                string
	preferred          string
	project            string
	task               string
	force              bool
	overwrite          bool
	allowUnrelatedPath bool
	allowProjectChange bool
	allowTaskChange    bool
	allowChange        bool
	portMin            int
	portMax            int
	excludedPorts      string
	ignoreOccupied     bool
	ignoreExclusions   bool
	dryRun             bool
}

func (f *reserveFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.tag, "tag", "", "Secondary key distinguishing multiple reservations for the same path")
	cmd.Flags().StringVar(&f.preferred, "port", "", "Request this specific port instead of searching the configured range")
	cmd.Flags().StringVar(&f.project, "project", "", "Set the sticky project field")
	cmd.Flags().StringVar(&f.task, "task", "", "Set the sticky task field")
	cmd.Flags().BoolVar(&f.force, "force", false, "Bypass sticky-field, path-relationship, and availability checks")
	cmd.Flags().BoolVar(&f.overwrite, "overwrite", false, "Steal a preferred port held by another key")
	cmd.Flags().BoolVar(&f.allowUnrelatedPath, "allow-unrelated-path", false, "Allow a key path unrelated to the current directory")
	cmd.Flags().BoolVar(&f.allowProjectChange, "allow-project-change", false, "Authorize changing an existing reservation's project")
	cmd.Flags().BoolVar(&f.allowTaskChange, "allow-task-change", false, "Authorize changing an existing reservation's task")
	cmd.Flags().BoolVar(&f.allowChange, "allow-change", false, "Authorize changing any sticky field")
	cmd.Flags().IntVar(&f.portMin, "port-min", 0, "Override the allocation range minimum")
	cmd.Flags().IntVar(&f.portMax, "port-max", 0, "Override the allocation range maximum")
	cmd.Flags().StringVar(&f.excludedPorts, "exclude", "", "Comma-separated ports/ranges to exclude from allocation")
	cmd.Flags().BoolVar(&f.ignoreOccupied, "ignore-occupied", false, "Skip the occupancy probe")
	cmd.Flags().BoolVar(&f.ignoreExclusions, "ignore-exclusions", false, "Skip the excluded-ports check")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "Compute the plan and port but write nothing")
}

// overrides turns flag values into a config.Partial so --port-min et al.
// take precedence over every config source.
func (f *reserveFlags) overrides() config.Partial {
	var p config.Partial
	if f.portMin != 0 {
		p.PortsMin = &f.portMin
	}
	if f.portMax != 0 {
		p.PortsMax = &f.portMax
	}
	return p
}

func newReserveCommand() *cobra.Command {
	flags := &reserveFlags{}
	cmd := &cobra.Command{
		Use:   "reserve <path>",
		Short: "Reserve a port for a directory, allocating or touching as needed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFromContext(cmd.Context())
			return runReserve(cmd, a, args[0], flags)
		},
	}
	flags.register(cmd)
	return cmd
}

func runReserve(cmd *cobra.Command, a *app, path string, flags *reserveFlags) error {
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
	resolvedPath, err := pathx.Resolve(path, pathx.Explicit)
	if err != nil {
		return err
	}

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

	opts := plan.ReserveOptions{
		Key:                keyFor(resolvedPath, flags.tag),
		WorkingDir:         cwd,
		Preferred:          preferred,
		Project:            optionalString(flags.project),
		Task:               optionalString(flags.task),
		Authority:          buildAuthority(flags.force, flags.allowProjectChange, flags.allowTaskChange, flags.allowChange),
		Force:              flags.force,
		Overwrite:          flags.overwrite,
		AllowUnrelatedPath: flags.allowUnrelatedPath || cfg.AllowUnrelatedPath,
		Range:              cfg.Ports,
		Exclusions:         exclusions,
		Occupancy:          cfg.Occupancy,
		IgnoreOccupied:     flags.ignoreOccupied,
		IgnoreExclusions:   flags.ignoreExclusions,
	}

	p, err := plan.BuildReserve(ctx, s.DB(), opts)
	if err != nil {
		return err
	}
	result, err := plan.Execute(ctx, s, p, flags.dryRun)
	if err != nil {
		return err
	}
	return emitPortResult(cmd, a, result)
}

func newReleaseCommand() *cobra.Command {
	var tag string
	var force, allowUnrelatedPath, dryRun bool

	cmd := &cobra.Command{
		Use:   "release <path>",
		Short: "Release a reservation; idempotent when none exists",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFromContext(cmd.Context())
			return runRelease(cmd, a, args[0], tag, force, allowUnrelatedPath, dryRun)
		},
	}
	cmd.Flags().StringVar(&tag, "tag", "", "Secondary key distinguishing multiple reservations for the same path")
	cmd.Flags().BoolVar(&force, "force", false, "Bypass the path-relationship check")
	cmd.Flags().BoolVar(&allowUnrelatedPath, "allow-unrelated-path", false, "Allow a key path unrelated to the current directory")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Compute the plan but write nothing")
	return cmd
}

func runRelease(cmd *cobra.Command, a *app, path, tag string, force, allowUnrelatedPath, dryRun bool) error {
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

	cwd, err := os.Getwd()
	if err != nil {
		return err
	}
	resolvedPath, err := pathx.Resolve(path, pathx.Explicit)
	if err != nil {
		return err
	}

	p, err := plan.BuildRelease(ctx, s.DB(), plan.ReleaseOptions{
		Key:                keyFor(resolvedPath, tag),
		WorkingDir:         cwd,
		Force:              force,
		AllowUnrelatedPath: allowUnrelatedPath || cfg.AllowUnrelatedPath,
	})
	if err != nil {
		return err
	}
	result, err := plan.Execute(ctx, s, p, dryRun)
	if err != nil {
		return err
	}
	for _, w := range result.Warnings {
		a.log.Warn(w)
	}
	return nil
}

// emitPortResult writes the port allocated/touched by a single-port plan
// execution to stdout in the requested format.
func emitPortResult(cmd *cobra.Command, a *app, result plan.ExecutionResult) error {
	for _, w := range result.Warnings {
		a.log.Warn(w)
	}
	f, err := format.Parse(a.format)
	if err != nil {
		return err
	}
	var entries []format.PortEntry
	if result.Port != nil {
		entries = append(entries, format.PortEntry{Port: result.Port.Int()})
	}
	return format.WritePorts(cmd.OutOrStdout(), f, entries)
}
