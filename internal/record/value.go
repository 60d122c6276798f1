// =============================================================================
// DC Data Quality - Scalar Values
// =============================================================================
//
// A cell in an ingested spreadsheet is one of three things: absent, a string,
// or a number. Value models exactly that. Keeping the distinction explicit
// (instead of shuttling everything around as strings) lets the change ledger
// compare numbers numerically and lets the FX step consume parsed numbers
// without re-guessing formats.
//
// =============================================================================

package record

import (
	"regexp"
	"strconv"
	"strings"
)

// Kind identifies the scalar type held by a Value.
type Kind int

const (
	// KindEmpty is an absent or null cell.
	KindEmpty Kind = iota

	// KindString is a textual cell.
	KindString

	// KindNumber is a numeric cell.
	KindNumber
)

// Value is a single cell value. The zero Value is the empty cell.
type Value struct {
	Kind Kind
	Str  string
	Num  float64
}

// Empty is the absent cell.
var Empty = Value{}

// String wraps a string as a Value. An empty string is still a string value,
// distinct from an absent cell.
func String(s string) Value {
	return Value{Kind: KindString, Str: s}
}

// Number wraps a float as a Value.
func Number(f float64) Value {
	return Value{Kind: KindNumber, Num: f}
}

// IsEmpty reports whether the value is absent, or a string that is blank
// after trimming. Blank strings behave like missing cells everywhere in the
// pipeline (lookups, defaults, sentinels).
func (v Value) IsEmpty() bool {
	switch v.Kind {
	case KindEmpty:
		return true
	case KindString:
		return strings.TrimSpace(v.Str) == ""
	default:
		return false
	}
}

// Text renders the value for display, keys and export. Numbers use the
// shortest representation that round-trips.
func (v Value) Text() string {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	default:
		return ""
	}
}

// Float returns the numeric reading of the value. For strings it attempts a
// strict parse; ok is false when the value has no numeric reading.
func (v Value) Float() (float64, bool) {
	switch v.Kind {
	case KindNumber:
		return v.Num, true
	case KindString:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// Equal compares two values on a common scalar representation: if both sides
// have a numeric reading they are compared numerically, otherwise as strings.
// Empty cells and blank strings compare equal.
func (v Value) Equal(o Value) bool {
	if v.IsEmpty() && o.IsEmpty() {
		return true
	}
	if a, okA := v.Float(); okA {
		if b, okB := o.Float(); okB {
			return a == b
		}
	}
	return v.Text() == o.Text()
}

// =============================================================================
// TOLERANT NUMERIC PARSING
// =============================================================================

var (
	currencyJunkRe = regexp.MustCompile(`[,%€$£\s]`)
	nonNumericRe   = regexp.MustCompile(`[^0-9.\-]`)
)

// ParseNumber parses a free-form numeric cell the way spreadsheet exports
// write them: thousands separators, currency symbols, percent signs and
// parenthesized negatives are tolerated. A value with no digits left after
// stripping parses as (0, false) rather than failing.
//
// Examples:
//
//	"1,234.50"  -> 1234.5
//	"€ 12 000"  -> 12000
//	"(123)"     -> -123
//	"n/a"       -> 0 (ok=false)
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}

	s = currencyJunkRe.ReplaceAllString(s, "")
	s = nonNumericRe.ReplaceAllString(s, "")
	if s == "" || s == "-" || s == "." {
		return 0, false
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	if negative {
		f = -f
	}
	return f, true
}
