// =============================================================================
// DC Data Quality - Taxonomy Index
// =============================================================================
//
// An Index is an exact-match lookup over one key combination of one table.
// Keys are normalized (trim + case fold) and joined with a control character
// that cannot survive normalization, so composite keys never collide with
// printable data.
//
// Duplicate keys are a data-quality defect in the reference file. The index
// keeps the first row in table order and reports the rest; it never hides
// the ambiguity and never fails on it.
//
// =============================================================================

package taxonomy

import (
	"strings"

	"github.com/dcanalytics/dcqa/internal/record"
)

// keySeparator joins the components of a composite key. The unit separator
// is stripped by value normalization, so it can never appear in data.
const keySeparator = "\x1f"

// Duplicate reports a reference row whose normalized key collided with an
// earlier row.
type Duplicate struct {
	Table      string
	KeyColumns []string
	Key        []string
	EntryIndex int
}

// Index is an exact-match lookup over one key combination.
type Index struct {
	table      string
	keyColumns []string
	entries    map[string]*record.Record
	duplicates []Duplicate
}

// BuildIndex indexes a table on one key combination. Rows with any blank key
// component are skipped: they can never be the target of an exact lookup.
func BuildIndex(t *Table, keyColumns []string) *Index {
	ix := &Index{
		table:      t.Name,
		keyColumns: keyColumns,
		entries:    make(map[string]*record.Record, len(t.Entries)),
	}

	for i, entry := range t.Entries {
		parts := make([]string, 0, len(keyColumns))
		usable := true
		for _, col := range keyColumns {
			k := record.NormalizeKey(entry.Get(col).Text())
			if k == "" {
				usable = false
				break
			}
			parts = append(parts, k)
		}
		if !usable {
			continue
		}

		key := strings.Join(parts, keySeparator)
		if _, exists := ix.entries[key]; exists {
			ix.duplicates = append(ix.duplicates, Duplicate{
				Table:      t.Name,
				KeyColumns: keyColumns,
				Key:        parts,
				EntryIndex: i,
			})
			continue
		}
		ix.entries[key] = entry
	}

	return ix
}

// Lookup returns the entry for a tuple of raw key values, normalizing each
// component. Exact match only.
func (ix *Index) Lookup(rawKeys []string) (*record.Record, bool) {
	if len(rawKeys) != len(ix.keyColumns) {
		return nil, false
	}
	parts := make([]string, len(rawKeys))
	for i, raw := range rawKeys {
		k := record.NormalizeKey(raw)
		if k == "" {
			return nil, false
		}
		parts[i] = k
	}
	entry, ok := ix.entries[strings.Join(parts, keySeparator)]
	return entry, ok
}

// KeyColumns returns the combination this index is built on.
func (ix *Index) KeyColumns() []string {
	return ix.keyColumns
}

// Duplicates returns the collisions found while building.
func (ix *Index) Duplicates() []Duplicate {
	return ix.duplicates
}

// Len returns the number of indexed entries.
func (ix *Index) Len() int {
	return len(ix.entries)
}
