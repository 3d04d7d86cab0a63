// Package cli implements the cobra-based commands backing the trop
// binary. Each subcommand lives in its own file, builds an Options
// struct for the matching core package (internal/plan, internal/cleanup,
// internal/config, ...). Mutations go through plans; the read-only query
// and assert commands read the store directly.
// This file defines the root command and the shared error/exit-code
// dispatch every subcommand funnels through.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/trop-dev/trop/internal/trop"
)

// version, commit, and date are set at build time via ldflags.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// globalFlags holds the persistent flags every subcommand inherits.
var globalFlags struct {
	dataDir string
	format  string
	verbose bool
}

type appKey struct{}

// app bundles the state a subcommand's RunE needs beyond its own flags.
// It travels on the command context rather than as package globals so a
// test can construct one directly without going through cobra at all.
type app struct {
	log     *slog.Logger
	dataDir string
	format  string
}

func appFromContext(ctx context.Context) *app {
	if a, ok := ctx.Value(appKey{}).(*app); ok {
		return a
	}
	return &app{log: slog.Default(), format: "table"}
}

func withApp(ctx context.Context, a *app) context.Context {
	return context.WithValue(ctx, appKey{}, a)
}

// newLogHandler picks the stderr log encoding. TROP_LOG_MODE=json emits
// structured JSON lines for log aggregators; anything else (including
// unset) keeps the default human-readable text handler.
func newLogHandler(mode string, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if mode == "json" {
		return slog.NewJSONHandler(os.Stderr, opts)
	}
	return slog.NewTextHandler(os.Stderr, opts)
}

// NewRootCommand builds the root cobra command and registers every
// subcommand.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "trop",
		Short: "Per-user, filesystem-backed TCP/UDP port reservation coordinator",
		Long: `trop coordinates ephemeral port reservations across the directories and
tasks on one machine, without running a network daemon. Reservations are
keyed by (directory, optional tag) and stored in a local database under
the data directory.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, Date),

		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := slog.LevelWarn
			if globalFlags.verbose {
				level = slog.LevelDebug
			}
			logger := slog.New(newLogHandler(os.Getenv("TROP_LOG_MODE"), level))

			dataDir, err := resolveDataDir(globalFlags.dataDir)
			if err != nil {
				return err
			}

			cmd.SetContext(withApp(cmd.Context(), &app{log: logger, dataDir: dataDir, format: globalFlags.format}))
			return nil
		},
	}

	root.PersistentFlags().StringVar(&globalFlags.dataDir, "data-dir", "", "Override the data directory (default: $TROP_DATA_DIR or $HOME/.trop)")
	root.PersistentFlags().StringVar(&globalFlags.format, "format", "table", "Output format: table, csv, tsv, json, dotenv, shell-export")
	root.PersistentFlags().BoolVarP(&globalFlags.verbose, "verbose", "v", false, "Enable debug logging on stderr")

	root.AddCommand(newInitCommand())
	root.AddCommand(newReserveCommand())
	root.AddCommand(newReleaseCommand())
	root.AddCommand(newMigrateCommand())
	root.AddCommand(newReserveGroupCommand())
	root.AddCommand(newAutoreserveCommand())
	root.AddCommand(newPruneCommand())
	root.AddCommand(newExpireCommand())
	root.AddCommand(newAutocleanCommand())
	root.AddCommand(newListCommand())
	root.AddCommand(newListProjectsCommand())
	root.AddCommand(newPortInfoCommand())
	root.AddCommand(newShowPathCommand())
	root.AddCommand(newShowDataDirCommand())
	root.AddCommand(newAssertReservationCommand())
	root.AddCommand(newAssertPortCommand())
	root.AddCommand(newAssertDataDirCommand())
	root.AddCommand(newScanCommand())
	root.AddCommand(newValidateCommand())
	root.AddCommand(newExcludeCommand())
	root.AddCommand(newCompactExclusionsCommand())
	root.AddCommand(newGendocsCommand(root))

	return root
}

// Execute runs root, mapping a returned error to the documented exit
// code and printing a single diagnostic (text or JSON, matching
// --format) to stderr.
func Execute(root *cobra.Command) {
	if err := root.Execute(); err != nil {
		printError(err)
		os.Exit(trop.ExitCode(err))
	}
}

func printError(err error) {
	if globalFlags.format == "json" {
		obj := map[string]any{"error": map[string]any{"message": err.Error()}}
		if te, ok := trop.As(err); ok {
			obj["error"].(map[string]any)["kind"] = te.Kind.String()
		}
		data, _ := json.MarshalIndent(obj, "", "  ")
		fmt.Fprintln(os.Stderr, string(data))
		return
	}
	fmt.Fprintf(os.Stderr, "trop: %v\n", err)
}
