// =============================================================================
// DC Data Quality - Brand Conflict Hints
// =============================================================================
//
// Plan names often carry the real brand even when the Brand column is wrong
// ("DK_Tuborg_Summer_2024" filed under Carlsberg). A hint is a per-brand
// regular expression run against the plan name; a hint that disagrees with
// the resolved brand raises a conflict finding for review. Hints never
// overwrite the resolved value.
//
// A malformed pattern is a rule-configuration defect: it surfaces once as a
// warning-class finding and the rule is skipped, everything else proceeds.
//
// =============================================================================

package resolver

import (
	"regexp"
	"sort"
)

// InvalidPattern reports a hint whose regular expression failed to compile.
type InvalidPattern struct {
	Brand   string
	Pattern string
	Err     error
}

type hint struct {
	brand string
	re    *regexp.Regexp
}

// HintSet is a compiled set of brand detection patterns.
type HintSet struct {
	hints   []hint
	invalid []InvalidPattern
}

// CompileHints compiles brand -> pattern rules, collecting malformed
// patterns instead of failing. Hints are applied in brand-name order so runs
// are deterministic regardless of map iteration.
func CompileHints(patterns map[string]string) *HintSet {
	brands := make([]string, 0, len(patterns))
	for b := range patterns {
		brands = append(brands, b)
	}
	sort.Strings(brands)

	hs := &HintSet{}
	for _, b := range brands {
		re, err := regexp.Compile(patterns[b])
		if err != nil {
			hs.invalid = append(hs.invalid, InvalidPattern{Brand: b, Pattern: patterns[b], Err: err})
			continue
		}
		hs.hints = append(hs.hints, hint{brand: b, re: re})
	}
	return hs
}

// Detect returns the brand of the first hint matching the text, or "" when
// no hint matches.
func (hs *HintSet) Detect(text string) string {
	if text == "" {
		return ""
	}
	for _, h := range hs.hints {
		if h.re.MatchString(text) {
			return h.brand
		}
	}
	return ""
}

// Invalid returns the patterns that failed to compile.
func (hs *HintSet) Invalid() []InvalidPattern {
	return hs.invalid
}
