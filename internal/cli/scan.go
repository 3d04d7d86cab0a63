package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/trop-dev/trop/internal/cli/format"
	"github.com/trop-dev/trop/internal/config"
	"github.com/trop-dev/trop/internal/occupancy"
)

func newScanCommand() *cobra.Command {
	var autoexclude bool
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Probe the configured port range for host-level occupancy",
		Long: `Reports every port in the configured range found bound by some process on
this host, independent of trop's own reservations. With --autoexclude, each
occupied port is also added to the persisted excluded_ports list.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFromContext(cmd.Context())
			return runScan(cmd, a, autoexclude)
		},
	}
	cmd.Flags().BoolVar(&autoexclude, "autoexclude", false, "Persist an exclusion for every occupied port found")
	return cmd
}

func runScan(cmd *cobra.Command, a *app, autoexclude bool) error {
	cfg, err := loadConfig(a, config.Partial{})
	if err != nil {
		return err
	}

	occupied, err := occupancy.FindOccupiedPorts(cfg.Ports, cfg.Occupancy)
	if err != nil {
		return err
	}

	if autoexclude && len(occupied) > 0 {
		if err := config.AddExclusions(a.dataDir, occupied); err != nil {
			return err
		}
	}

	f, err := format.Parse(a.format)
	if err != nil {
		return err
	}
	entries := make([]format.PortEntry, 0, len(occupied))
	for _, p := range occupied {
		entries = append(entries, format.PortEntry{Port: p.Int()})
	}
	return format.WritePorts(cmd.OutOrStdout(), f, entries)
}

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load and validate the merged configuration without changing anything",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFromContext(cmd.Context())
			return runValidate(cmd, a)
		},
	}
}

func runValidate(cmd *cobra.Command, a *app) error {
	if _, err := loadConfig(a, config.Partial{}); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "configuration is valid")
	return nil
}
