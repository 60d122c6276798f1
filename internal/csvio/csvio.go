// =============================================================================
// DC Data Quality - CSV Taxonomy Store
// =============================================================================
//
// This module is responsible for the CSV side of the pipeline: the taxonomy
// tables live as one CSV per dimension in a directory, the review loop
// exchanges todo_<dimension>.csv worklist files, and the exception report can
// be exported as CSV alongside the QA workbook.
//
// Files may start with a UTF-8 BOM; the reader strips it.
//
// =============================================================================

package csvio

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dcanalytics/dcqa/internal/ledger"
	"github.com/dcanalytics/dcqa/internal/record"
	"github.com/dcanalytics/dcqa/internal/taxonomy"
)

// TableSpec carries the per-table metadata a CSV file cannot express.
type TableSpec struct {
	KeyColumns []string
	Precedence [][]string
}

// =============================================================================
// TAXONOMY REPOSITORY
// =============================================================================

// Dir is a taxonomy.Repository over a directory holding one CSV per table.
type Dir struct {
	dir   string
	specs map[string]TableSpec
}

// NewDir builds a repository rooted at dir. Specs are keyed by table name
// and must cover every required table.
func NewDir(dir string, specs map[string]TableSpec) *Dir {
	return &Dir{dir: dir, specs: specs}
}

// Load reads every required table from its CSV file.
func (d *Dir) Load() (*taxonomy.Set, error) {
	set := taxonomy.NewSet()
	for _, name := range taxonomy.Required {
		spec, ok := d.specs[name]
		if !ok {
			return nil, fmt.Errorf("no table spec for taxonomy %q", name)
		}
		entries, err := ReadRecords(d.path(name))
		if err != nil {
			return nil, fmt.Errorf("taxonomy %q: %w", name, err)
		}
		set.Add(&taxonomy.Table{
			Name:       name,
			KeyColumns: spec.KeyColumns,
			Precedence: spec.Precedence,
			Entries:    entries,
		})
	}
	if err := set.Validate(); err != nil {
		return nil, err
	}
	return set, nil
}

// Save writes every required table back to its CSV file.
func (d *Dir) Save(set *taxonomy.Set) error {
	for _, name := range taxonomy.Required {
		table, ok := set.Table(name)
		if !ok {
			return fmt.Errorf("set is missing taxonomy table %q", name)
		}
		if err := WriteRecords(d.path(name), table.Entries); err != nil {
			return fmt.Errorf("taxonomy %q: %w", name, err)
		}
	}
	return nil
}

func (d *Dir) path(table string) string {
	return filepath.Join(d.dir, table+".csv")
}

// =============================================================================
// RECORD CSV I/O
// =============================================================================

// ReadRecords reads a CSV file into records. The first row is the header.
func ReadRecords(path string) ([]*record.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	text := strings.TrimPrefix(string(data), "\uFEFF")

	reader := csv.NewReader(strings.NewReader(text))
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse CSV: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("file is empty")
	}

	headers := rows[0]
	var records []*record.Record
	for _, row := range rows[1:] {
		rec := record.New()
		for j, header := range headers {
			cell := ""
			if j < len(row) {
				cell = strings.TrimSpace(row[j])
			}
			rec.Set(strings.TrimSpace(header), record.String(cell))
		}
		records = append(records, rec)
	}
	return records, nil
}

// WriteRecords writes records to a CSV file. Columns are the union across
// records in first-seen order.
func WriteRecords(path string, records []*record.Record) error {
	var columns []string
	seen := make(map[string]bool)
	for _, rec := range records {
		for _, col := range rec.Columns() {
			if !seen[col] {
				seen[col] = true
				columns = append(columns, col)
			}
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(columns); err != nil {
		return err
	}
	row := make([]string, len(columns))
	for _, rec := range records {
		for j, col := range columns {
			row[j] = rec.Get(col).Text()
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// =============================================================================
// WORKLIST FILES
// =============================================================================

// TodoFileName returns the worklist file name for a dimension.
func TodoFileName(dim ledger.Dimension) string {
	return "todo_" + string(dim) + ".csv"
}

// WriteTodos writes one worklist CSV per dimension with entries. Raw key
// tuples are deduplicated; a reviewer maps each distinct tuple once, however
// many rows carried it.
func WriteTodos(dir string, todos map[ledger.Dimension][]ledger.TodoEntry) error {
	for _, dim := range ledger.Dimensions {
		entries := todos[dim]
		if len(entries) == 0 {
			continue
		}

		keyCols := entries[0].KeyColumns
		seen := make(map[string]bool, len(entries))
		var rows [][]string
		for _, e := range entries {
			row := make([]string, len(keyCols))
			for j, col := range keyCols {
				row[j] = e.Keys[col]
			}
			fingerprint := strings.Join(row, "\x1f")
			if seen[fingerprint] {
				continue
			}
			seen[fingerprint] = true
			rows = append(rows, row)
		}

		if err := writeCSV(filepath.Join(dir, TodoFileName(dim)), keyCols, rows); err != nil {
			return fmt.Errorf("worklist %s: %w", dim, err)
		}
	}
	return nil
}

// ReadTodos reads back a filled worklist file for the review loop.
func ReadTodos(path string) ([]*record.Record, error) {
	return ReadRecords(path)
}

// =============================================================================
// EXCEPTION EXPORT
// =============================================================================

// WriteExceptions exports the exception report as CSV.
func WriteExceptions(path string, exceptions []ledger.ExceptionEntry) error {
	headers := []string{"row_index", "market", "field", "issue", "current_value", "suggested_value", "priority", "owner"}
	rows := make([][]string, len(exceptions))
	for i, e := range exceptions {
		rows[i] = []string{
			fmt.Sprintf("%d", e.RowIndex), e.Market, e.Field, string(e.Issue),
			e.CurrentValue, e.SuggestedValue, string(e.Priority), e.Owner,
		}
	}
	return writeCSV(path, headers, rows)
}

func writeCSV(path string, headers []string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(headers); err != nil {
		return err
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
