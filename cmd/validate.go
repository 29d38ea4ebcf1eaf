package cmd

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/spf13/cobra"

	"github.com/sw33tLie/puzzleimport/pkg/importer"
)

var validateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Check an import file without contacting Puzzle",
	Long: `Parses a CSV or XLSX import file, checks every row and the resulting group tree,
and verifies that referenced pictures exist. Exits with code 2 on the first problem found.`,
	Args: exactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		showTree, _ := cmd.Flags().GetBool("tree")

		specs, tree, err := importer.Validate(args[0])
		if err != nil {
			return fileError(err)
		}
		if showTree {
			fmt.Fprint(cmd.OutOrStdout(), tree.String())
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d products in %d groups\n", args[0], len(specs), tree.GroupCount())
		return nil
	},
}

// fileError classifies errors from reading an import file.
func fileError(err error) error {
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
		return withCode(exitUsage, err)
	}
	return withCode(exitValidation, err)
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().Bool("tree", false, "Print the group tree")
}
