// =============================================================================
// DC Data Quality - Clean Command
// =============================================================================
//
// This file defines the 'clean' command, the main command for cleaning
// extract workbooks against the taxonomy tables.
//
// COMMAND USAGE:
//   dcqa clean [flags]
//
// FLAGS:
//   --input    : Directory scanned for extract workbooks
//   --file     : Clean a single workbook instead of scanning --input
//   --output   : Directory for cleaned and QA output
//   --archive  : Directory processed extracts are moved to
//   --dry-run  : Run the pipeline without writing output files
//
// PIPELINE:
//   1. Load the rules file and the taxonomy CSVs
//   2. Discover extract workbooks
//   3. For each workbook (concurrently):
//      a. Read the extract rows
//      b. Run the cleaning pipeline
//      c. Write the cleaned workbook, QA workbook and CSV exports
//      d. Archive the extract
//   4. Merge worklists across workbooks and write the per-dimension files
//   5. Print a summary
//
// =============================================================================

package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/dcanalytics/dcqa/internal/config"
	"github.com/dcanalytics/dcqa/internal/csvio"
	"github.com/dcanalytics/dcqa/internal/ledger"
	"github.com/dcanalytics/dcqa/internal/pipeline"
	"github.com/dcanalytics/dcqa/internal/taxonomy"
	"github.com/dcanalytics/dcqa/internal/xlsxio"
	"github.com/dcanalytics/dcqa/pkg/utils"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

// inputDir is the directory scanned for extract workbooks.
var inputDir string

// outputDir is the directory for cleaned and QA output.
var outputDir string

// archiveDir is the directory processed extracts are moved to.
var archiveDir string

// singleFile cleans one workbook instead of scanning the input directory.
var singleFile string

// dryRun runs the pipeline without writing output files.
var dryRun bool

// =============================================================================
// CLEAN COMMAND DEFINITION
// =============================================================================

// cleanCmd represents the 'clean' command.
var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Clean extract workbooks against the taxonomy tables",
	Long: `The clean command reads media-plan extract workbooks, resolves their raw
dimension values against the taxonomy tables, converts monetary columns with
the configured FX rates, and writes the cleaned data plus the QA artifacts.

Workbooks are processed concurrently. An error in one workbook does not
affect the others.

On success, each workbook produces:
  - clean_<name>.xlsx  with the cleaned rows
  - qa_<name>.xlsx     with the exception report and change log
  - Exceptions_<name>.csv

The todo_<dimension>.csv worklists are merged across all workbooks in the
run and written once. The extracts are then moved to the archive directory.`,

	RunE: func(cmd *cobra.Command, args []string) error {
		return runClean(cmd.Context())
	},
}

// =============================================================================
// INITIALIZATION
// =============================================================================

func init() {
	rootCmd.AddCommand(cleanCmd)

	cleanCmd.Flags().StringVar(&inputDir, "input", "input", "Directory scanned for extract workbooks")
	cleanCmd.Flags().StringVar(&outputDir, "output", "output", "Directory for cleaned and QA output")
	cleanCmd.Flags().StringVar(&archiveDir, "archive", "archive", "Directory processed extracts are moved to")
	cleanCmd.Flags().StringVar(&singleFile, "file", "", "Clean a single workbook instead of scanning --input")
	cleanCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Run the pipeline without writing output files")
}

// =============================================================================
// MAIN PROCESSING FUNCTION
// =============================================================================

// fileResult is the outcome of cleaning one workbook. Worklists are carried
// back instead of written in place: workbooks run concurrently and the
// todo_<dimension>.csv files are shared, so they are merged and written once
// after all workbooks finish.
type fileResult struct {
	FilePath   string
	OutputFile string
	Err        error
	Stats      pipeline.RunStats
	Todos      map[ledger.Dimension][]ledger.TodoEntry
}

// runClean orchestrates a cleaning run over the discovered workbooks.
func runClean(ctx context.Context) error {
	startTime := time.Now()

	// =========================================================================
	// STEP 1: LOAD RULES AND TAXONOMIES
	// =========================================================================

	fmt.Println("=== DC Data Quality ===")
	fmt.Println("Loading rules and taxonomies...")

	rules, err := config.Load(rulesFile)
	if err != nil {
		return fmt.Errorf("failed to load rules: %w", err)
	}

	repo := csvio.NewDir(taxonomyDir, tableSpecs(rules))
	taxonomies, err := repo.Load()
	if err != nil {
		return fmt.Errorf("failed to load taxonomies: %w", err)
	}

	// =========================================================================
	// STEP 2: DISCOVER WORKBOOKS
	// =========================================================================

	fm := utils.NewFileManager(inputDir, outputDir, archiveDir)
	fm.ArchiveOnSuccess = !dryRun
	if err := fm.EnsureDirectories(); err != nil {
		return err
	}

	var files []string
	if singleFile != "" {
		files = []string{singleFile}
	} else {
		files, err = fm.DiscoverWorkbooks()
		if err != nil {
			return err
		}
	}
	if len(files) == 0 {
		fmt.Println("No workbooks found in the input directory.")
		return nil
	}
	fmt.Printf("Found %d workbook(s) to clean\n", len(files))

	// =========================================================================
	// STEP 3: CLEAN WORKBOOKS CONCURRENTLY
	// =========================================================================

	var wg sync.WaitGroup
	results := make(chan fileResult, len(files))

	for _, file := range files {
		wg.Add(1)
		go func(path string) {
			defer wg.Done()
			results <- cleanWorkbook(ctx, path, rules, taxonomies, fm)
		}(file)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	// =========================================================================
	// STEP 4: COLLECT RESULTS AND PRINT SUMMARY
	// =========================================================================

	var successCount, errorCount, totalRows, totalFindings int
	var allTodos map[ledger.Dimension][]ledger.TodoEntry
	for result := range results {
		if result.Err != nil {
			errorCount++
			fmt.Printf("  FAIL %s: %v\n", filepath.Base(result.FilePath), result.Err)
			continue
		}
		successCount++
		totalRows += result.Stats.RowsProcessed
		totalFindings += result.Stats.ExceptionsRaised
		allTodos = ledger.MergeTodos(allTodos, result.Todos)
		fmt.Printf("  OK   %s -> %s (%d rows, %d findings)\n",
			filepath.Base(result.FilePath), filepath.Base(result.OutputFile),
			result.Stats.RowsProcessed, result.Stats.ExceptionsRaised)
	}

	if !dryRun && successCount > 0 {
		if err := csvio.WriteTodos(outputDir, allTodos); err != nil {
			return fmt.Errorf("failed to write worklists: %w", err)
		}
	}

	fmt.Println("\n=== Cleaning Complete ===")
	fmt.Printf("Workbooks:    %d\n", len(files))
	fmt.Printf("Successful:   %d\n", successCount)
	fmt.Printf("Failed:       %d\n", errorCount)
	fmt.Printf("Rows cleaned: %d\n", totalRows)
	fmt.Printf("Findings:     %d\n", totalFindings)
	fmt.Printf("Time elapsed: %s\n", time.Since(startTime))

	if errorCount > 0 {
		return fmt.Errorf("%d workbook(s) failed", errorCount)
	}
	return nil
}

// cleanWorkbook runs the pipeline over one workbook and writes its outputs.
func cleanWorkbook(ctx context.Context, path string, rules *config.Rules, taxonomies *taxonomy.Set, fm *utils.FileManager) fileResult {
	result := fileResult{FilePath: path}

	records, err := xlsxio.ReadDataset(path)
	if err != nil {
		result.Err = err
		return result
	}

	p := pipeline.New(rules, taxonomies)
	p.SetLogger(newCLILogger())
	run, err := p.Run(ctx, &pipeline.Dataset{
		SourceName: filepath.Base(path),
		Records:    records,
	})
	if err != nil {
		result.Err = err
		return result
	}
	result.Stats = run.Stats
	result.Todos = run.Todos

	if dryRun {
		result.OutputFile = "(dry run)"
		return result
	}

	original := utils.BaseNameWithoutExt(path)
	cleanPath := filepath.Join(outputDir, utils.GenerateOutputFileName("clean_{original}_{date}", map[string]string{"original": original}))
	qaPath := filepath.Join(outputDir, utils.GenerateOutputFileName("qa_{original}_{date}", map[string]string{"original": original}))

	if err := xlsxio.WriteClean(cleanPath, run.Cleaned); err != nil {
		result.Err = err
		return result
	}
	if err := xlsxio.WriteQA(qaPath, run.Exceptions, run.Changes); err != nil {
		result.Err = err
		return result
	}
	if err := csvio.WriteExceptions(filepath.Join(outputDir, "Exceptions_"+original+".csv"), run.Exceptions); err != nil {
		result.Err = err
		return result
	}

	if _, err := fm.ArchiveInputFile(path); err != nil {
		result.Err = err
		return result
	}

	result.OutputFile = cleanPath
	return result
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// tableSpecs derives each taxonomy table's key columns from the rules file.
// Hierarchical tables are keyed by their most specific precedence
// combination; simple tables by their first lookup key.
func tableSpecs(rules *config.Rules) map[string]csvio.TableSpec {
	specs := map[string]csvio.TableSpec{
		"brands": {
			KeyColumns: rules.BrandMapping.Precedence[0],
			Precedence: rules.BrandMapping.Precedence,
		},
		"campaigns": {
			KeyColumns: rules.CampaignMapping.Precedence[0],
			Precedence: rules.CampaignMapping.Precedence,
		},
		"cbht": {
			KeyColumns: rules.CBHTMapping.Precedence[0],
			Precedence: rules.CBHTMapping.Precedence,
		},
		"fx_rates": {
			KeyColumns: []string{
				rules.FXRules.MarketColumn,
				rules.FXRules.CurrencyColumn,
				rules.FXRules.YearColumn,
			},
		},
	}
	specs["vendors"] = csvio.TableSpec{KeyColumns: []string{rules.VendorMapping.Keys[0].TaxonomyColumn}}
	specs["channels"] = csvio.TableSpec{KeyColumns: []string{rules.ChannelMapping.Keys[0].TaxonomyColumn}}
	return specs
}

// cliLogger adapts the --verbose flag onto the pipeline's logger.
type cliLogger struct {
	debug bool
}

func newCLILogger() *cliLogger {
	return &cliLogger{debug: verbose}
}

func (l *cliLogger) Debug(msg string, args ...interface{}) {
	if l.debug {
		fmt.Printf("[DEBUG] "+msg+"\n", args...)
	}
}

func (l *cliLogger) Info(msg string, args ...interface{}) {
	fmt.Printf("[INFO] "+msg+"\n", args...)
}

func (l *cliLogger) Warn(msg string, args ...interface{}) {
	fmt.Printf("[WARN] "+msg+"\n", args...)
}

func (l *cliLogger) Error(msg string, args ...interface{}) {
	fmt.Printf("[ERROR] "+msg+"\n", args...)
}

var _ pipeline.Logger = (*cliLogger)(nil)
