// =============================================================================
// DC Data Quality - Taxonomy Tables
// =============================================================================
//
// A taxonomy is a versioned reference table mapping raw dimension values to
// canonical ones: brands, campaigns, vendors, channels, fx_rates and cbht.
// Tables are read-only inputs to a run. The one sanctioned mutation is
// AddEntry, used by the human-review loop to append a reviewed mapping; the
// caller serializes that against in-flight runs.
//
// =============================================================================

package taxonomy

import (
	"fmt"

	"github.com/dcanalytics/dcqa/internal/record"
)

// Required lists the tables a run cannot start without.
var Required = []string{"brands", "campaigns", "vendors", "channels", "fx_rates", "cbht"}

// Table is one reference table.
type Table struct {
	// Name identifies the table ("brands", "fx_rates", ...).
	Name string

	// KeyColumns are the columns raw values are matched on.
	KeyColumns []string

	// OutputColumns are the canonical columns a match contributes.
	OutputColumns []string

	// Precedence is the ordered list of key combinations for hierarchical
	// dimensions, most specific first. Nil for single-key dimensions.
	Precedence [][]string

	// Entries holds the reference rows in file order. File order matters:
	// on duplicate keys the first row wins.
	Entries []*record.Record
}

// AddEntry appends a reviewed mapping row. Existing entries keep precedence
// over the new one, since index builds are first-wins.
func (t *Table) AddEntry(rec *record.Record) {
	t.Entries = append(t.Entries, rec.Clone())
}

// Set is the full collection of taxonomy tables for a run.
type Set struct {
	tables map[string]*Table
}

// NewSet builds a set from tables, keyed by table name.
func NewSet(tables ...*Table) *Set {
	s := &Set{tables: make(map[string]*Table, len(tables))}
	for _, t := range tables {
		s.tables[t.Name] = t
	}
	return s
}

// Add inserts or replaces a table.
func (s *Set) Add(t *Table) {
	s.tables[t.Name] = t
}

// Table returns a table by name.
func (s *Set) Table(name string) (*Table, bool) {
	t, ok := s.tables[name]
	return t, ok
}

// Validate checks that every required table is present and keyed. This is
// the fatal precondition of a run; everything later is a business finding,
// not an error.
func (s *Set) Validate() error {
	for _, name := range Required {
		t, ok := s.tables[name]
		if !ok {
			return fmt.Errorf("missing required taxonomy table %q", name)
		}
		if len(t.KeyColumns) == 0 {
			return fmt.Errorf("taxonomy table %q has no key columns", name)
		}
	}
	return nil
}

// Repository abstracts where taxonomies live. The pipeline loads once before
// a run and saves only after the review loop appends entries, never mid-run.
type Repository interface {
	Load() (*Set, error)
	Save(*Set) error
}
