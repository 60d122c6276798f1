// =============================================================================
// DC Data Quality - Dimension Resolution
// =============================================================================
//
// Resolution turns raw dimension values into canonical ones via taxonomy
// lookups. Two shapes exist:
//
//   - Hierarchical: brand, campaign and cbht match on an ordered list of key
//     combinations, most specific first ("prefer the market-specific
//     override, fall back to the global default"). The first combination
//     that hits wins; combinations are never merged or scored.
//
//   - Simple: vendor and channel match on a single key, or a short OR-list
//     of alternative keys, with no precedence chain.
//
// A failed resolution is a business finding for the caller to ledger, never
// an error from here.
//
// =============================================================================

package resolver

import (
	"fmt"

	"github.com/dcanalytics/dcqa/internal/record"
	"github.com/dcanalytics/dcqa/internal/taxonomy"
)

// Outcome is the result of resolving one record against one dimension.
type Outcome struct {
	// Matched reports whether any key combination hit.
	Matched bool

	// Outputs maps destination record columns to the canonical values of the
	// matching entry. A blank output is still a valid canonical value.
	Outputs map[string]record.Value

	// MatchedKeys is the key combination that produced the hit, nil when
	// Matched is false.
	MatchedKeys []string
}

// =============================================================================
// HIERARCHICAL RESOLVER
// =============================================================================

// Hierarchical resolves a dimension through an ordered precedence list.
type Hierarchical struct {
	table      *taxonomy.Table
	precedence [][]string
	keyFields  map[string]string
	outputs    map[string]string
	indexes    []*taxonomy.Index
}

// NewHierarchical builds a resolver and one index per precedence
// combination.
//
//   - precedence: taxonomy key combinations, most specific first.
//   - keyFields:  taxonomy key column -> record column supplying it.
//   - outputs:    taxonomy output column -> destination record column.
func NewHierarchical(table *taxonomy.Table, precedence [][]string, keyFields map[string]string, outputs map[string]string) (*Hierarchical, error) {
	if len(precedence) == 0 {
		return nil, fmt.Errorf("taxonomy %q: empty precedence list", table.Name)
	}
	h := &Hierarchical{
		table:      table,
		precedence: precedence,
		keyFields:  keyFields,
		outputs:    outputs,
		indexes:    make([]*taxonomy.Index, len(precedence)),
	}
	for i, combo := range precedence {
		for _, key := range combo {
			if _, ok := keyFields[key]; !ok {
				return nil, fmt.Errorf("taxonomy %q: key %q has no record field mapping", table.Name, key)
			}
		}
		h.indexes[i] = taxonomy.BuildIndex(table, combo)
	}
	return h, nil
}

// Resolve tries each precedence combination in order and short-circuits on
// the first hit. A combination with any missing key on the record is
// skipped, not failed: the record simply cannot be matched at that
// specificity, so the next, less specific, combination is tried.
func (h *Hierarchical) Resolve(rec *record.Record) Outcome {
	for i, combo := range h.precedence {
		raw := make([]string, len(combo))
		complete := true
		for j, key := range combo {
			v := rec.Get(h.keyFields[key])
			if v.IsEmpty() {
				complete = false
				break
			}
			raw[j] = v.Text()
		}
		if !complete {
			continue
		}

		entry, ok := h.indexes[i].Lookup(raw)
		if !ok {
			continue
		}

		outputs := make(map[string]record.Value, len(h.outputs))
		for src, dst := range h.outputs {
			outputs[dst] = entry.Get(src)
		}
		return Outcome{Matched: true, Outputs: outputs, MatchedKeys: combo}
	}
	return Outcome{Outputs: map[string]record.Value{}}
}

// RawKeys extracts the raw values of the most specific combination from a
// record, for todo worklists. Missing keys come back blank.
func (h *Hierarchical) RawKeys(rec *record.Record) ([]string, map[string]string) {
	combo := h.precedence[0]
	keys := make(map[string]string, len(combo))
	for _, key := range combo {
		keys[key] = rec.Get(h.keyFields[key]).Text()
	}
	return combo, keys
}

// Duplicates aggregates key collisions across all precedence indexes.
func (h *Hierarchical) Duplicates() []taxonomy.Duplicate {
	var out []taxonomy.Duplicate
	for _, ix := range h.indexes {
		out = append(out, ix.Duplicates()...)
	}
	return out
}

// =============================================================================
// SIMPLE MAPPER
// =============================================================================

// KeyChoice is one alternative lookup key for a simple dimension: the
// taxonomy column matched and the record column supplying the value.
type KeyChoice struct {
	TaxonomyColumn string
	RecordColumn   string
}

// Simple resolves a dimension on a single fixed key or a short OR-list of
// keys. No fallback chain beyond the listed alternatives.
type Simple struct {
	table   *taxonomy.Table
	choices []KeyChoice
	outputs map[string]string
	indexes []*taxonomy.Index
}

// NewSimple builds a single-key mapper. Choices are tried in order; the
// first key present on the record that hits the table wins.
func NewSimple(table *taxonomy.Table, choices []KeyChoice, outputs map[string]string) (*Simple, error) {
	if len(choices) == 0 {
		return nil, fmt.Errorf("taxonomy %q: no lookup keys configured", table.Name)
	}
	s := &Simple{
		table:   table,
		choices: choices,
		outputs: outputs,
		indexes: make([]*taxonomy.Index, len(choices)),
	}
	for i, c := range choices {
		s.indexes[i] = taxonomy.BuildIndex(table, []string{c.TaxonomyColumn})
	}
	return s, nil
}

// Resolve tries each key choice in order.
func (s *Simple) Resolve(rec *record.Record) Outcome {
	for i, c := range s.choices {
		v := rec.Get(c.RecordColumn)
		if v.IsEmpty() {
			continue
		}
		entry, ok := s.indexes[i].Lookup([]string{v.Text()})
		if !ok {
			continue
		}
		outputs := make(map[string]record.Value, len(s.outputs))
		for src, dst := range s.outputs {
			outputs[dst] = entry.Get(src)
		}
		return Outcome{Matched: true, Outputs: outputs, MatchedKeys: []string{c.TaxonomyColumn}}
	}
	return Outcome{Outputs: map[string]record.Value{}}
}

// RawKeys extracts the raw lookup values from a record for todo worklists.
func (s *Simple) RawKeys(rec *record.Record) ([]string, map[string]string) {
	cols := make([]string, len(s.choices))
	keys := make(map[string]string, len(s.choices))
	for i, c := range s.choices {
		cols[i] = c.TaxonomyColumn
		keys[c.TaxonomyColumn] = rec.Get(c.RecordColumn).Text()
	}
	return cols, keys
}

// Duplicates aggregates key collisions across the key choices.
func (s *Simple) Duplicates() []taxonomy.Duplicate {
	var out []taxonomy.Duplicate
	for _, ix := range s.indexes {
		out = append(out, ix.Duplicates()...)
	}
	return out
}
