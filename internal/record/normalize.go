// =============================================================================
// DC Data Quality - Normalization
// =============================================================================
//
// Every lookup in the cleaner happens on normalized text. Raw extracts carry
// byte-order marks, non-breaking spaces, smart quotes and inconsistent
// casing; if those reached the taxonomy index, identical brands would fail to
// match for invisible reasons.
//
// All functions here are pure and idempotent: normalizing an already
// normalized string returns it unchanged.
//
// =============================================================================

package record

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	whitespaceRunRe  = regexp.MustCompile(`\s+`)
	headerInvalidRe  = regexp.MustCompile(`[^a-z0-9_]`)
	headerSpacingRe  = regexp.MustCompile(`[\s\-]+`)
)

// NormalizeString canonicalizes a cell value: strips the byte-order mark,
// applies Unicode NFKC composition, trims the ends and collapses internal
// whitespace runs to a single space.
func NormalizeString(s string) string {
	s = strings.ReplaceAll(s, "\uFEFF", "")
	s = norm.NFKC.String(s)
	s = whitespaceRunRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// NormalizeHeader canonicalizes a column name: NormalizeString, then
// lowercase, whitespace and hyphens to underscore, and anything outside
// [a-z0-9_] dropped. "Sub-Channel " and "sub_channel" collapse to the same
// name.
func NormalizeHeader(s string) string {
	s = NormalizeString(s)
	s = strings.ToLower(s)
	s = headerSpacingRe.ReplaceAllString(s, "_")
	s = headerInvalidRe.ReplaceAllString(s, "")
	return s
}

// NormalizeKey canonicalizes a value for taxonomy lookup: NormalizeString
// plus case folding. Lookups are exact on the folded form, never fuzzy.
func NormalizeKey(s string) string {
	return strings.ToLower(NormalizeString(s))
}

// Normalize returns a copy of the record with every string value passed
// through NormalizeString. Numbers and empty cells pass through unchanged.
func Normalize(r *Record) *Record {
	out := r.Clone()
	for _, col := range out.columns {
		v := out.values[col]
		if v.Kind == KindString {
			out.values[col] = String(NormalizeString(v.Str))
		}
	}
	return out
}
