package cli

import (
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/trop-dev/trop/internal/allocator"
	"github.com/trop-dev/trop/internal/cli/format"
	"github.com/trop-dev/trop/internal/config"
	"github.com/trop-dev/trop/internal/pathx"
	"github.com/trop-dev/trop/internal/plan"
	"github.com/trop-dev/trop/internal/portspec"
	"github.com/trop-dev/trop/internal/trop"
)

func newReserveGroupCommand() *cobra.Command {
	var (
		services      []string
		project, task string
		force         bool
		portMin       int
		portMax       int
		excludedPorts string
		ignoreOcc     bool
		ignoreExcl    bool
		dryRun        bool
	)

	cmd := &cobra.Command{
		Use:   "reserve-group <path>",
		Short: "Reserve a coordinated set of ports for related services under one path",
		Long: `Each --service flag describes one member of the group as TAG=OFFSET or
TAG@PORT. An offset is relative to the base port chosen for the group; an
@PORT pins that service to an exact port. The allocation is all-or-nothing.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFromContext(cmd.Context())
			return runReserveGroup(cmd, a, args[0], services, project, task, force, portMin, portMax, excludedPorts, ignoreOcc, ignoreExcl, dryRun)
		},
	}
	cmd.Flags().StringArrayVar(&services, "service", nil, "Service spec: TAG=OFFSET or TAG@PORT (repeatable)")
	cmd.Flags().StringVar(&project, "project", "", "Set the sticky project field for every member")
	cmd.Flags().StringVar(&task, "task", "", "Set the sticky task field for every member")
	cmd.Flags().BoolVar(&force, "force", false, "Bypass the path-relationship and availability checks")
	cmd.Flags().IntVar(&portMin, "port-min", 0, "Override the allocation range minimum")
	cmd.Flags().IntVar(&portMax, "port-max", 0, "Override the allocation range maximum")
	cmd.Flags().StringVar(&excludedPorts, "exclude", "", "Comma-separated ports/ranges to exclude from allocation")
	cmd.Flags().BoolVar(&ignoreOcc, "ignore-occupied", false, "Skip the occupancy probe")
	cmd.Flags().BoolVar(&ignoreExcl, "ignore-exclusions", false, "Skip the excluded-ports check")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Compute the plan and ports but write nothing")
	cmd.MarkFlagRequired("service")
	return cmd
}

func runReserveGroup(cmd *cobra.Command, a *app, path string, serviceSpecs []string, project, task string, force bool, portMin, portMax int, excludedPorts string, ignoreOcc, ignoreExcl, dryRun bool) error {
	ctx := cmd.Context()
	var overrides config.Partial
	if portMin != 0 {
		overrides.PortsMin = &portMin
	}
	if portMax != 0 {
		overrides.PortsMax = &portMax
	}
	cfg, err := loadConfig(a, overrides)
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

	svcs, err := parseServiceSpecs(serviceSpecs)
	if err != nil {
		return err
	}
	exclusions, err := parseExclusions(excludedPorts)
	if err != nil {
		return err
	}
	if exclusions == nil {
		exclusions = cfg.ExcludedPorts
	}

	p, err := plan.BuildReserveGroup(ctx, plan.ReserveGroupOptions{
		WorkingDir:         cwd,
		Force:              force,
		AllowUnrelatedPath: cfg.AllowUnrelatedPath,
		Request: allocator.GroupRequest{
			BasePath: resolvedPath,
			Project:  project,
			Task:     task,
			Services: svcs,
		},
		Options: allocator.GroupOptions{
			Range:            cfg.Ports,
			Exclusions:       exclusions,
			Occupancy:        cfg.Occupancy,
			IgnoreOccupied:   ignoreOcc,
			IgnoreExclusions: ignoreExcl,
			Force:            force,
		},
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

	f, err := format.Parse(a.format)
	if err != nil {
		return err
	}
	entries := make([]format.PortEntry, 0, len(result.AllocatedPorts))
	for _, ap := range result.AllocatedPorts {
		entries = append(entries, format.PortEntry{Tag: ap.Tag, Port: ap.Port.Int(), Env: cfg.Services[ap.Tag].Env})
	}
	return format.WritePorts(cmd.OutOrStdout(), f, entries)
}

// parseServiceSpecs parses "TAG=OFFSET" and "TAG@PORT" specs into
// allocator.ServiceRequest values.
func parseServiceSpecs(specs []string) ([]allocator.ServiceRequest, error) {
	result := make([]allocator.ServiceRequest, 0, len(specs))
	for _, spec := range specs {
		if tag, rest, ok := strings.Cut(spec, "@"); ok {
			n, err := strconv.Atoi(rest)
			if err != nil {
				return nil, trop.Wrap(trop.KindInvalidPort, err, "invalid service spec %q", spec)
			}
			p, err := portspec.NewPort(n)
			if err != nil {
				return nil, err
			}
			result = append(result, allocator.ServiceRequest{Tag: tag, Preferred: &p})
			continue
		}
		if tag, rest, ok := strings.Cut(spec, "="); ok {
			offset, err := strconv.Atoi(rest)
			if err != nil {
				return nil, trop.Wrap(trop.KindInvalidPort, err, "invalid service spec %q", spec)
			}
			result = append(result, allocator.ServiceRequest{Tag: tag, Offset: &offset})
			continue
		}
		return nil, trop.New(trop.KindInvalidPort, "invalid service spec %q: want TAG=OFFSET or TAG@PORT", spec)
	}
	return result, nil
}
