package cli

import (
	"context"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/trop-dev/trop/internal/store"
	"github.com/trop-dev/trop/internal/trop"
)

func newInitCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the data directory and bootstrap the store",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFromContext(cmd.Context())
			return runInit(cmd.Context(), a, force)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Remove and recreate an existing data directory")
	return cmd
}

func runInit(ctx context.Context, a *app, force bool) error {
	dbFile := dbPath(a.dataDir)

	if force {
		for _, suffix := range []string{"", "-wal", "-shm"} {
			if err := os.Remove(dbFile + suffix); err != nil && !os.IsNotExist(err) {
				return trop.Wrap(trop.KindIO, err, "failed to remove existing store file %s", dbFile+suffix)
			}
		}
		if err := os.Remove(filepath.Join(a.dataDir, "config.yaml")); err != nil && !os.IsNotExist(err) {
			return trop.Wrap(trop.KindIO, err, "failed to remove existing config")
		}
	} else if _, err := os.Stat(dbFile); err == nil {
		a.log.Warn("already initialized", "data_dir", a.dataDir)
		return nil
	}

	if err := os.MkdirAll(a.dataDir, 0o700); err != nil {
		return trop.Wrap(trop.KindIO, err, "failed to create data directory %s", a.dataDir)
	}

	scfg := store.NewConfig(dbFile)
	s, err := store.Open(ctx, scfg)
	if err != nil {
		return err
	}
	defer s.Close()

	configPath := filepath.Join(a.dataDir, "config.yaml")
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := writeDefaultConfig(configPath); err != nil {
			return err
		}
	}

	a.log.Info("initialized", "data_dir", a.dataDir)
	return nil
}

// writeDefaultConfig emits a user config file containing only a comment:
// absent fields mean built-in defaults apply until the user edits it.
func writeDefaultConfig(path string) error {
	contents := "# trop user configuration — see `trop validate` to check edits.\n"
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		return trop.Wrap(trop.KindIO, err, "failed to write default config %s", path)
	}
	return nil
}
