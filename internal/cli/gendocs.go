package cli

import (
	"github.com/spf13/cobra"
	"github.com/spf13/cobra/doc"
)

// newGendocsCommand wires cobra's own documentation generator as a hidden
// subcommand, the standard extension point for shipping man pages built
// from the live command tree rather than hand-maintained separately.
func newGendocsCommand(root *cobra.Command) *cobra.Command {
	var outDir string
	cmd := &cobra.Command{
		Use:    "gendocs",
		Short:  "Generate man pages for every command",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			header := &doc.GenManHeader{Title: "TROP", Section: "1"}
			return doc.GenManTree(root, header, outDir)
		},
	}
	cmd.Flags().StringVar(&outDir, "out", ".", "Directory to write generated man pages into")
	return cmd
}
