// =============================================================================
// DC Data Quality - Apply-Fixes Command
// =============================================================================
//
// This file defines the 'apply-fixes' command, which folds reviewed worklist
// files back into the taxonomy CSVs.
//
// COMMAND USAGE:
//   dcqa apply-fixes [flags]
//
// FLAGS:
//   --fixes : Directory holding the reviewed todo_<dimension>.csv files
//
// WORKFLOW:
//   1. Load the rules file and the taxonomy CSVs
//   2. Read each todo_<dimension>.csv from the fixes directory
//   3. Append rows whose mapped columns a reviewer filled in, skipping
//      entries already present in the taxonomy
//   4. Save the updated taxonomy CSVs
//
// =============================================================================

package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/dcanalytics/dcqa/internal/config"
	"github.com/dcanalytics/dcqa/internal/csvio"
	"github.com/dcanalytics/dcqa/internal/fixpack"
)

// fixesDir is the directory holding the reviewed worklist files.
var fixesDir string

// applyFixesCmd represents the 'apply-fixes' command.
var applyFixesCmd = &cobra.Command{
	Use:   "apply-fixes",
	Short: "Fold reviewed worklist files back into the taxonomy tables",
	Long: `The apply-fixes command reads the todo_<dimension>.csv worklists produced
by a cleaning run, after a reviewer has filled in the mapped columns, and
appends the completed rows to the corresponding taxonomy tables.

Rows are skipped when the reviewer left the mapped columns blank, or when
the taxonomy already contains an entry with the same key. The next cleaning
run then resolves the previously unmapped values.`,

	RunE: func(cmd *cobra.Command, args []string) error {
		return runApplyFixes()
	},
}

func init() {
	rootCmd.AddCommand(applyFixesCmd)

	applyFixesCmd.Flags().StringVar(&fixesDir, "fixes", "fixes", "Directory holding the reviewed todo_<dimension>.csv files")
}

// runApplyFixes loads the taxonomies, applies the worklists and saves the
// updated tables.
func runApplyFixes() error {
	rules, err := config.Load(rulesFile)
	if err != nil {
		return fmt.Errorf("failed to load rules: %w", err)
	}

	repo := csvio.NewDir(taxonomyDir, tableSpecs(rules))
	taxonomies, err := repo.Load()
	if err != nil {
		return fmt.Errorf("failed to load taxonomies: %w", err)
	}

	added, err := fixpack.ApplyDir(taxonomies, fixesDir)
	if err != nil {
		return fmt.Errorf("failed to apply fixes: %w", err)
	}

	total := 0
	tables := make([]string, 0, len(added))
	for table, n := range added {
		tables = append(tables, table)
		total += n
	}
	sort.Strings(tables)

	if total == 0 {
		fmt.Println("No new taxonomy entries to apply.")
		return nil
	}

	if err := repo.Save(taxonomies); err != nil {
		return fmt.Errorf("failed to save taxonomies: %w", err)
	}

	fmt.Println("=== Taxonomy Update Complete ===")
	for _, table := range tables {
		if added[table] > 0 {
			fmt.Printf("  %-10s +%d entries\n", table, added[table])
		}
	}
	fmt.Printf("Total:      +%d entries\n", total)
	return nil
}
