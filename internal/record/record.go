// =============================================================================
// DC Data Quality - Record Type
// =============================================================================
//
// A Record is one row of an ingested dataset: an ordered mapping of column
// name to scalar value. Column order is preserved because exports reproduce
// the input layout, and row/column identity is load-bearing for the change
// ledger and the QA report.
//
// Records are cheap to clone; every pipeline step works on a copy so the
// original dataset stays available for diffing.
//
// =============================================================================

package record

// Record is an ordered mapping of column name to Value.
type Record struct {
	columns []string
	values  map[string]Value
}

// New returns an empty record.
func New() *Record {
	return &Record{values: make(map[string]Value)}
}

// FromPairs builds a record from alternating column/value pairs, preserving
// the given order. Intended for tests and small fixtures.
func FromPairs(pairs ...any) *Record {
	r := New()
	for i := 0; i+1 < len(pairs); i += 2 {
		col := pairs[i].(string)
		switch v := pairs[i+1].(type) {
		case Value:
			r.Set(col, v)
		case string:
			r.Set(col, String(v))
		case float64:
			r.Set(col, Number(v))
		case int:
			r.Set(col, Number(float64(v)))
		case nil:
			r.Set(col, Empty)
		}
	}
	return r
}

// Set stores a value, appending the column at the end of the order if it is
// new. Setting an existing column keeps its position.
func (r *Record) Set(column string, v Value) {
	if _, exists := r.values[column]; !exists {
		r.columns = append(r.columns, column)
	}
	r.values[column] = v
}

// Get returns the value for a column, or Empty when the column is absent.
func (r *Record) Get(column string) Value {
	return r.values[column]
}

// Has reports whether the column exists on the record, even with an empty
// value.
func (r *Record) Has(column string) bool {
	_, ok := r.values[column]
	return ok
}

// Columns returns the column names in order. The slice is a copy.
func (r *Record) Columns() []string {
	out := make([]string, len(r.columns))
	copy(out, r.columns)
	return out
}

// Len returns the number of columns.
func (r *Record) Len() int {
	return len(r.columns)
}

// Clone returns an independent copy of the record.
func (r *Record) Clone() *Record {
	out := &Record{
		columns: make([]string, len(r.columns)),
		values:  make(map[string]Value, len(r.values)),
	}
	copy(out.columns, r.columns)
	for k, v := range r.values {
		out.values[k] = v
	}
	return out
}

// Rename moves a column to a new name in place, keeping its position. When
// the target name already exists the rename is skipped: the first column to
// claim a canonical name keeps it.
func (r *Record) Rename(from, to string) {
	if from == to {
		return
	}
	v, ok := r.values[from]
	if !ok {
		return
	}
	if _, taken := r.values[to]; taken {
		return
	}
	for i, c := range r.columns {
		if c == from {
			r.columns[i] = to
			break
		}
	}
	delete(r.values, from)
	r.values[to] = v
}
