package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/trop-dev/trop/internal/cli/format"
	"github.com/trop-dev/trop/internal/config"
	"github.com/trop-dev/trop/internal/pathx"
	"github.com/trop-dev/trop/internal/reservation"
	"github.com/trop-dev/trop/internal/store"
)

func newListCommand() *cobra.Command {
	var prefix string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List reservations, optionally filtered to a path prefix",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFromContext(cmd.Context())
			return runList(cmd, a, prefix)
		},
	}
	cmd.Flags().StringVar(&prefix, "path", "", "Only list reservations at or under this path")
	return cmd
}

func runList(cmd *cobra.Command, a *app, prefix string) error {
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

	list, err := listReservations(ctx, s.DB(), prefix)
	if err != nil {
		return err
	}
	f, err := format.Parse(a.format)
	if err != nil {
		return err
	}
	return format.WriteReservations(cmd.OutOrStdout(), f, list)
}

func newListProjectsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list-projects",
		Short: "List the distinct project names across all reservations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFromContext(cmd.Context())
			return runListProjects(cmd, a)
		},
	}
}

func runListProjects(cmd *cobra.Command, a *app) error {
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

	projects, err := store.ListProjects(ctx, s.DB())
	if err != nil {
		return err
	}
	f, err := format.Parse(a.format)
	if err != nil {
		return err
	}
	return format.WriteStrings(cmd.OutOrStdout(), f, "project", projects)
}

func newPortInfoCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "port-info <port>",
		Short: "Show the reservation holding a given port, if any",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFromContext(cmd.Context())
			return runPortInfo(cmd, a, args[0])
		},
	}
}

func runPortInfo(cmd *cobra.Command, a *app, portArg string) error {
	ctx := cmd.Context()
	p, err := optionalPort(portArg)
	if err != nil {
		return err
	}
	if p == nil {
		return nil
	}
	cfg, err := loadConfig(a, config.Partial{})
	if err != nil {
		return err
	}
	s, err := openStore(ctx, a, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	r, err := store.GetReservationByPort(ctx, s.DB(), *p)
	if err != nil {
		return err
	}
	f, err := format.Parse(a.format)
	if err != nil {
		return err
	}
	return format.WriteReservations(cmd.OutOrStdout(), f, toSlice(r))
}

func newShowPathCommand() *cobra.Command {
	var tag string
	cmd := &cobra.Command{
		Use:   "show-path <path>",
		Short: "Show the reservation for a path and optional tag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFromContext(cmd.Context())
			return runShowPath(cmd, a, args[0], tag)
		},
	}
	cmd.Flags().StringVar(&tag, "tag", "", "Secondary key distinguishing multiple reservations for the same path")
	return cmd
}

func runShowPath(cmd *cobra.Command, a *app, path, tag string) error {
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

	resolvedPath, err := pathx.Resolve(path, pathx.Explicit)
	if err != nil {
		return err
	}
	r, err := store.GetReservation(ctx, s.DB(), keyFor(resolvedPath, tag))
	if err != nil {
		return err
	}
	f, err := format.Parse(a.format)
	if err != nil {
		return err
	}
	return format.WriteReservations(cmd.OutOrStdout(), f, toSlice(r))
}

func newShowDataDirCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show-data-dir",
		Short: "Print the resolved data directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFromContext(cmd.Context())
			fmt.Fprintln(cmd.OutOrStdout(), a.dataDir)
			return nil
		},
	}
}

func listReservations(ctx context.Context, q store.Queryer, prefix string) ([]reservation.Reservation, error) {
	if prefix == "" {
		return store.ListAll(ctx, q)
	}
	resolved, err := pathx.Resolve(prefix, pathx.Explicit)
	if err != nil {
		return nil, err
	}
	return store.GetReservationsByPathPrefix(ctx, q, resolved)
}

// toSlice wraps a possibly-nil *Reservation into a 0-or-1-element slice
// for the renderers, which take a slice uniformly.
func toSlice(r *reservation.Reservation) []reservation.Reservation {
	if r == nil {
		return nil
	}
	return []reservation.Reservation{*r}
}
