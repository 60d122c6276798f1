// =============================================================================
// DC Data Quality - Review Loop
// =============================================================================
//
// The review loop closes unresolved mappings: a run writes todo_<dimension>
// worklist files, reviewers fill in the canonical columns, and this module
// folds the filled rows back into the taxonomy tables. Applied fixes take
// effect on the next run; nothing is retrofitted into past output.
//
// =============================================================================

package fixpack

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dcanalytics/dcqa/internal/csvio"
	"github.com/dcanalytics/dcqa/internal/ledger"
	"github.com/dcanalytics/dcqa/internal/record"
	"github.com/dcanalytics/dcqa/internal/taxonomy"
)

// Apply folds reviewed rows into one taxonomy table. Rows are skipped when
// their key tuple is blank, already present in the table, or when the
// reviewer left every non-key column empty. Returns the number of rows
// appended.
func Apply(set *taxonomy.Set, tableName string, rows []*record.Record) (int, error) {
	table, ok := set.Table(tableName)
	if !ok {
		return 0, fmt.Errorf("unknown taxonomy table %q", tableName)
	}

	existing := make(map[string]bool, len(table.Entries))
	for _, entry := range table.Entries {
		existing[keyFingerprint(entry, table.KeyColumns)] = true
	}

	keyCols := make(map[string]bool, len(table.KeyColumns))
	for _, col := range table.KeyColumns {
		keyCols[col] = true
	}

	added := 0
	for _, row := range rows {
		fp := keyFingerprint(row, table.KeyColumns)
		if fp == "" || existing[fp] {
			continue
		}
		if !hasMappedColumns(row, keyCols) {
			continue
		}
		table.AddEntry(row)
		existing[fp] = true
		added++
	}
	return added, nil
}

// ApplyDir applies every worklist file found in dir and returns the appended
// row count per table. A missing worklist file means nothing to apply for
// that dimension, not an error.
func ApplyDir(set *taxonomy.Set, dir string) (map[string]int, error) {
	counts := make(map[string]int)
	for _, dim := range ledger.Dimensions {
		path := filepath.Join(dir, csvio.TodoFileName(dim))
		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}
		rows, err := csvio.ReadTodos(path)
		if err != nil {
			return nil, fmt.Errorf("worklist %s: %w", dim, err)
		}
		added, err := Apply(set, string(dim), rows)
		if err != nil {
			return nil, err
		}
		counts[string(dim)] = added
	}
	return counts, nil
}

// keyFingerprint builds the normalized key tuple of a row. All-blank tuples
// come back empty.
func keyFingerprint(rec *record.Record, keyColumns []string) string {
	parts := make([]string, len(keyColumns))
	blank := true
	for i, col := range keyColumns {
		parts[i] = record.NormalizeKey(rec.Get(col).Text())
		if parts[i] != "" {
			blank = false
		}
	}
	if blank {
		return ""
	}
	return strings.Join(parts, "\x1f")
}

// hasMappedColumns reports whether the reviewer filled in anything beyond
// the key columns.
func hasMappedColumns(rec *record.Record, keyCols map[string]bool) bool {
	for _, col := range rec.Columns() {
		if keyCols[col] {
			continue
		}
		if !rec.Get(col).IsEmpty() {
			return true
		}
	}
	return false
}
