// =============================================================================
// DC Data Quality - FX Conversion & Audit
// =============================================================================
//
// Monetary columns arrive in local currency and must be restated in the
// reporting currencies (EUR and DKK for this dataset, but the pairs are
// configuration). A rate is keyed by the exact triple (market, currency,
// fx year) -- no precedence fallback: a missing rate is a P1 finding because
// it blocks every downstream monetary rollup, and the source columns are
// left untouched rather than converted with a guessed rate.
//
// The audit step cross-checks independently reported "global" figures
// against the computed conversions and flags deviations beyond a configured
// tolerance ratio.
//
// =============================================================================

package fx

import (
	"fmt"
	"math"
	"sort"

	"github.com/dcanalytics/dcqa/internal/ledger"
	"github.com/dcanalytics/dcqa/internal/record"
	"github.com/dcanalytics/dcqa/internal/taxonomy"
)

// Pair is one source -> target column conversion.
type Pair struct {
	Source string
	Target string
}

// AuditCheck cross-checks a reported global column against a computed
// conversion column.
type AuditCheck struct {
	Reported string
	Computed string
}

// Issue is a business finding raised during conversion, for the caller to
// ledger against the row.
type Issue struct {
	Issue     ledger.IssueType
	Field     string
	Current   string
	Suggested string
}

// Config wires a Converter.
type Config struct {
	// MarketColumn, CurrencyColumn and YearColumn name the record columns
	// forming the rate lookup triple.
	MarketColumn   string
	CurrencyColumn string
	YearColumn     string

	// RateColumns maps a target currency to the fx_rates column carrying its
	// rate, e.g. "eur" -> "fx_to_eur".
	RateColumns map[string]string

	// Pairs maps a target currency to its source/target column conversions.
	Pairs map[string][]Pair

	// Audits are the reported-vs-computed cross-checks.
	Audits []AuditCheck

	// Tolerance is the allowed relative deviation for audits. Exactly at the
	// boundary passes.
	Tolerance float64
}

// DefaultTolerance is the audit tolerance when none is configured.
const DefaultTolerance = 0.02

// Converter converts monetary columns and audits reported globals.
type Converter struct {
	cfg   Config
	index *taxonomy.Index
}

// NewConverter indexes the fx_rates table on (market, currency, year).
func NewConverter(rates *taxonomy.Table, cfg Config) (*Converter, error) {
	if len(rates.KeyColumns) != 3 {
		return nil, fmt.Errorf("fx_rates must be keyed by (market, currency, year), got %v", rates.KeyColumns)
	}
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = DefaultTolerance
	}
	return &Converter{
		cfg:   cfg,
		index: taxonomy.BuildIndex(rates, rates.KeyColumns),
	}, nil
}

// targets returns the configured target currencies in stable order.
func (c *Converter) targets() []string {
	out := make([]string, 0, len(c.cfg.Pairs))
	for cur := range c.cfg.Pairs {
		out = append(out, cur)
	}
	sort.Strings(out)
	return out
}

// LookupRate resolves the rate row for a record's (market, currency, year)
// triple.
func (c *Converter) LookupRate(rec *record.Record) (*record.Record, bool) {
	return c.index.Lookup([]string{
		rec.Get(c.cfg.MarketColumn).Text(),
		rec.Get(c.cfg.CurrencyColumn).Text(),
		rec.Get(c.cfg.YearColumn).Text(),
	})
}

// Convert returns a converted copy of the record plus the findings raised.
// The input record is never mutated.
//
// On a rate miss every source column is left unconverted and a single
// fx_missing issue is raised carrying the failed triple. On a hit each
// configured source column is parsed tolerantly (junk parses as 0) and
// multiplied into its target column, then the audits run.
func (c *Converter) Convert(rec *record.Record) (*record.Record, []Issue) {
	out := rec.Clone()
	var issues []Issue

	rateRow, ok := c.LookupRate(rec)
	if !ok {
		triple := fmt.Sprintf("%s/%s/%s",
			rec.Get(c.cfg.MarketColumn).Text(),
			rec.Get(c.cfg.CurrencyColumn).Text(),
			rec.Get(c.cfg.YearColumn).Text(),
		)
		issues = append(issues, Issue{Issue: ledger.IssueFXMissing, Field: "FX", Current: triple})
		return out, issues
	}

	// The rate row's spellings are canonical. A record that matched on a
	// case-folded key ("dkk") gets the canonical casing ("DKK") written back.
	keyCols := c.index.KeyColumns()
	for i, col := range []string{c.cfg.MarketColumn, c.cfg.CurrencyColumn} {
		if canon := rateRow.Get(keyCols[i]); !canon.IsEmpty() {
			out.Set(col, canon)
		}
	}

	for _, currency := range c.targets() {
		rateCol := c.cfg.RateColumns[currency]
		rate, okRate := rateRow.Get(rateCol).Float()
		if !okRate {
			rate, _ = record.ParseNumber(rateRow.Get(rateCol).Text())
		}
		for _, p := range c.cfg.Pairs[currency] {
			if !out.Has(p.Source) {
				continue
			}
			src := sourceNumber(out.Get(p.Source))
			out.Set(p.Target, record.Number(src*rate))
		}
	}

	issues = append(issues, c.audit(out)...)
	return out, issues
}

// audit compares reported global columns against computed conversions.
// A check is skipped, not failed, when either side is absent or the
// reported denominator is zero.
func (c *Converter) audit(rec *record.Record) []Issue {
	var issues []Issue
	for _, check := range c.cfg.Audits {
		if !rec.Has(check.Reported) || !rec.Has(check.Computed) {
			continue
		}
		reported, okR := numeric(rec.Get(check.Reported))
		computed, okC := numeric(rec.Get(check.Computed))
		if !okR || !okC || reported == 0 {
			continue
		}
		if math.Abs(reported-computed)/math.Abs(reported) > c.cfg.Tolerance {
			issues = append(issues, Issue{
				Issue:     ledger.IssueEURMismatch,
				Field:     check.Computed,
				Current:   rec.Get(check.Reported).Text(),
				Suggested: rec.Get(check.Computed).Text(),
			})
		}
	}
	return issues
}

// sourceNumber reads a conversion source cell: malformed numeric input
// degrades to 0 rather than raising.
func sourceNumber(v record.Value) float64 {
	if f, ok := v.Float(); ok {
		return f
	}
	f, _ := record.ParseNumber(v.Text())
	return f
}

// numeric reads a cell for auditing, tolerantly; ok is false when the cell
// has no numeric reading at all.
func numeric(v record.Value) (float64, bool) {
	if f, ok := v.Float(); ok {
		return f, true
	}
	return record.ParseNumber(v.Text())
}
