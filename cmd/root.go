// =============================================================================
// DC Data Quality - Root Command
// =============================================================================
//
// This file defines the root command for the Cobra CLI. The root command is
// the base command all other commands are attached to.
//
// COBRA CLI STRUCTURE:
//   dcqa
//   ├── clean       (clean extract workbooks)
//   ├── apply-fixes (fold reviewed worklists back into the taxonomies)
//   └── version
//
// =============================================================================

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// =============================================================================
// GLOBAL VARIABLES
// =============================================================================

// rulesFile holds the path to the cleaning rules file, overridable via
// --rules.
var rulesFile string

// taxonomyDir holds the directory of taxonomy CSVs, overridable via
// --taxonomies.
var taxonomyDir string

// verbose enables debug logging when set to true.
var verbose bool

// =============================================================================
// ROOT COMMAND DEFINITION
// =============================================================================

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "dcqa",
	Short: "DC Data Quality - Clean marketing spend extracts against taxonomy tables",
	Long: `dcqa cleans media-plan spend extracts: it resolves raw brand, campaign,
vendor and channel values against taxonomy tables, converts monetary columns
with the configured FX rates, and reports every change and unresolved value.

Each run produces:
  - A cleaned workbook with the same rows as the input, in order
  - A QA workbook with the exception report and the cell-level change log
  - One todo_<dimension>.csv worklist per dimension with unresolved values

Reviewers fill in the worklists; 'dcqa apply-fixes' folds them back into the
taxonomy tables so the next run resolves those values.

Example Usage:
  dcqa clean --input ./extracts --output ./out
  dcqa clean --file ./extracts/media_plans_2024.xlsx --output ./out
  dcqa apply-fixes --fixes ./out`,

	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// =============================================================================
// EXECUTE FUNCTION
// =============================================================================

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// =============================================================================
// INITIALIZATION
// =============================================================================

func init() {
	rootCmd.PersistentFlags().StringVar(
		&rulesFile,
		"rules",
		"rules/validation_rules.yaml",
		"Path to the cleaning rules file",
	)

	rootCmd.PersistentFlags().StringVar(
		&taxonomyDir,
		"taxonomies",
		"taxonomies",
		"Directory holding the taxonomy CSV tables",
	)

	rootCmd.PersistentFlags().BoolVarP(
		&verbose,
		"verbose",
		"v",
		false,
		"Enable debug logging",
	)
}
