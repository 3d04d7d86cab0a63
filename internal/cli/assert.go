package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/trop-dev/trop/internal/config"
	"github.com/trop-dev/trop/internal/pathx"
	"github.com/trop-dev/trop/internal/store"
	"github.com/trop-dev/trop/internal/trop"
)

func newAssertReservationCommand() *cobra.Command {
	var tag, expectPort string
	cmd := &cobra.Command{
		Use:   "assert-reservation <path>",
		Short: "Exit non-zero unless a reservation exists for path (and optionally holds --port)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFromContext(cmd.Context())
			return runAssertReservation(cmd, a, args[0], tag, expectPort)
		},
	}
	cmd.Flags().StringVar(&tag, "tag", "", "Secondary key distinguishing multiple reservations for the same path")
	cmd.Flags().StringVar(&expectPort, "port", "", "Also require the reservation to hold exactly this port")
	return cmd
}

func runAssertReservation(cmd *cobra.Command, a *app, path, tag, expectPort string) error {
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
	if r == nil {
		return trop.New(trop.KindNotFound, "no reservation found for %s", resolvedPath)
	}
	if expectPort != "" {
		want, err := optionalPort(expectPort)
		if err != nil {
			return err
		}
		if r.Port != *want {
			return trop.New(trop.KindNotFound, "reservation for %s holds port %s, not %s", resolvedPath, r.Port, *want)
		}
	}
	return nil
}

func newAssertPortCommand() *cobra.Command {
	var reserved, free bool
	cmd := &cobra.Command{
		Use:   "assert-port <port>",
		Short: "Exit non-zero unless a port's reservation state matches --reserved/--free",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFromContext(cmd.Context())
			return runAssertPort(cmd, a, args[0], reserved, free)
		},
	}
	cmd.Flags().BoolVar(&reserved, "reserved", false, "Require the port to be currently reserved")
	cmd.Flags().BoolVar(&free, "free", false, "Require the port to not be currently reserved")
	return cmd
}

func runAssertPort(cmd *cobra.Command, a *app, portArg string, reserved, free bool) error {
	ctx := cmd.Context()
	if reserved == free {
		return trop.New(trop.KindValidation, "assert-port requires exactly one of --reserved or --free")
	}
	p, err := optionalPort(portArg)
	if err != nil {
		return err
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

	isReserved, err := store.IsPortReserved(ctx, s.DB(), *p)
	if err != nil {
		return err
	}
	if reserved && !isReserved {
		return trop.New(trop.KindNotFound, "port %s is not reserved", *p)
	}
	if free && isReserved {
		return trop.New(trop.KindNotFound, "port %s is reserved", *p)
	}
	return nil
}

func newAssertDataDirCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "assert-data-dir",
		Short: "Exit non-zero unless the data directory has been initialized",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFromContext(cmd.Context())
			return runAssertDataDir(a)
		},
	}
}

func runAssertDataDir(a *app) error {
	if _, err := os.Stat(dbPath(a.dataDir)); err != nil {
		return trop.New(trop.KindNotFound, "data directory %s is not initialized", a.dataDir)
	}
	return nil
}
