package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/trop-dev/trop/internal/config"
	"github.com/trop-dev/trop/internal/trop"
)

func newExcludeCommand() *cobra.Command {
	var remove bool
	cmd := &cobra.Command{
		Use:   "exclude <port|lo-hi>",
		Short: "Add or remove a persisted port exclusion in config.yaml",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFromContext(cmd.Context())
			return runExclude(cmd, a, args[0], remove)
		},
	}
	cmd.Flags().BoolVar(&remove, "remove", false, "Remove the exclusion instead of adding it")
	return cmd
}

func runExclude(cmd *cobra.Command, a *app, spec string, remove bool) error {
	if remove {
		p, err := optionalPort(spec)
		if err != nil {
			return err
		}
		if p == nil {
			return trop.New(trop.KindInvalidPort, "--remove requires a single port, not a range")
		}
		if err := config.RemoveExclusion(a.dataDir, *p); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "removed exclusion %s\n", *p)
		return nil
	}

	exclusions, err := parseExclusions(spec)
	if err != nil {
		return err
	}
	if len(exclusions) != 1 {
		return trop.New(trop.KindInvalidPort, "exclude takes exactly one port or range, got %q", spec)
	}
	if err := config.AddExclusion(a.dataDir, exclusions[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "added exclusion %s\n", exclusions[0])
	return nil
}

func newCompactExclusionsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "compact-exclusions",
		Short: "Merge overlapping and adjacent entries in the persisted exclusion list",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFromContext(cmd.Context())
			return runCompactExclusions(cmd, a)
		},
	}
}

func runCompactExclusions(cmd *cobra.Command, a *app) error {
	if err := config.CompactExclusions(a.dataDir); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "exclusions compacted")
	return nil
}
