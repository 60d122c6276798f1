// =============================================================================
// DC Data Quality - Record Validation
// =============================================================================
//
// Per-record checks and fills that do not need a taxonomy lookup: field
// defaults, temporary fills, the controlled objective vocabulary, the
// market/region cross-check, date placeholders and actualisation backfill.
// Every write goes through the ledger so the change log stays the single
// source of truth for what the run touched.
//
// =============================================================================

package validate

import (
	"sort"
	"strings"
	"time"

	"github.com/dcanalytics/dcqa/internal/config"
	"github.com/dcanalytics/dcqa/internal/ledger"
	"github.com/dcanalytics/dcqa/internal/record"
	"github.com/dcanalytics/dcqa/internal/taxonomy"
)

// dateFormats are tried in order. Day-first formats come before month-first
// because the extracts are European.
var dateFormats = []string{
	"2006-01-02",
	"02/01/2006",
	"2/1/2006",
	"02-01-2006",
	"02.01.2006",
	"2006/01/02",
	"2 Jan 2006",
	"2006-01-02 15:04:05",
}

// ParseDate parses a cell value using the accepted date formats.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// =============================================================================
// VALIDATOR
// =============================================================================

// Validator applies the rule-driven per-record checks.
type Validator struct {
	rules  *config.Rules
	ledger *ledger.Ledger

	objectives map[string]string // normalized -> canonical spelling
	regions    map[string]string // normalized market -> region

	now func() time.Time
}

// New builds a validator. The taxonomy set supplies the market->region map
// used by the region check; a nil set disables it.
func New(rules *config.Rules, led *ledger.Ledger, tax *taxonomy.Set) *Validator {
	v := &Validator{
		rules:      rules,
		ledger:     led,
		objectives: make(map[string]string, len(rules.AllowedObjectives)),
		regions:    make(map[string]string),
		now:        time.Now,
	}
	for _, o := range rules.AllowedObjectives {
		v.objectives[record.NormalizeKey(o)] = o
	}
	if rules.RegionCheck.Enabled && tax != nil {
		if fxTable, ok := tax.Table("fx_rates"); ok {
			for _, entry := range fxTable.Entries {
				market := record.NormalizeKey(entry.Get(rules.RegionCheck.MarketColumn).Text())
				region := record.NormalizeString(entry.Get(rules.RegionCheck.RegionColumn).Text())
				if market == "" || region == "" {
					continue
				}
				if _, seen := v.regions[market]; !seen {
					v.regions[market] = region
				}
			}
		}
	}
	return v
}

// Apply runs every check against one record, mutating it in place.
func (v *Validator) Apply(rowIndex int, rec *record.Record, fxYear string) {
	v.applyDefaults(rowIndex, rec)
	v.checkObjective(rowIndex, rec)
	v.checkRegion(rowIndex, rec)
	v.applyDatePlaceholders(rowIndex, rec, fxYear)
	v.backfillActuals(rowIndex, rec)
}

// =============================================================================
// DEFAULTS AND TEMPORARY FILLS
// =============================================================================

func (v *Validator) applyDefaults(rowIndex int, rec *record.Record) {
	v.fill(rowIndex, rec, v.rules.Defaults, "default")
	v.fill(rowIndex, rec, v.rules.TemporaryFills, "temporary_fill")
}

func (v *Validator) fill(rowIndex int, rec *record.Record, values map[string]string, rule string) {
	market := v.market(rec)
	for _, column := range sortedKeys(values) {
		if !rec.Get(column).IsEmpty() {
			continue
		}
		filled := record.String(values[column])
		if !v.ledger.RecordChange(rowIndex, column, rec.Get(column), filled, ledger.ChangeAutomated, rule) {
			continue
		}
		rec.Set(column, filled)
		issue := ledger.IssueFieldDefaulted
		if column == v.rules.StatusColumn {
			issue = ledger.IssueStatusDefaulted
		}
		v.ledger.RecordException(rowIndex, market, column, issue, "", values[column])
	}
}

// =============================================================================
// OBJECTIVE VOCABULARY
// =============================================================================

// checkObjective normalizes out-of-vocabulary objectives to the fallback. An
// in-vocabulary value with a non-canonical spelling is rewritten silently;
// only genuinely unknown values raise a finding.
func (v *Validator) checkObjective(rowIndex int, rec *record.Record) {
	if len(v.objectives) == 0 {
		return
	}
	column := v.rules.ObjectiveColumn
	current := rec.Get(column)
	if current.IsEmpty() {
		return
	}
	if canonical, ok := v.objectives[record.NormalizeKey(current.Text())]; ok {
		if v.ledger.RecordChange(rowIndex, column, current, record.String(canonical), ledger.ChangeAutomated, "objective_spelling") {
			rec.Set(column, record.String(canonical))
		}
		return
	}
	fallback := record.String(v.rules.ObjectiveFallback)
	if v.ledger.RecordChange(rowIndex, column, current, fallback, ledger.ChangeAutomated, "objective_vocabulary") {
		rec.Set(column, fallback)
	}
	v.ledger.RecordException(rowIndex, v.market(rec), column,
		ledger.IssueInvalidObjective, current.Text(), v.rules.ObjectiveFallback)
}

// =============================================================================
// REGION CHECK
// =============================================================================

// checkRegion cross-checks the record's region against the market->region
// map derived from the rate table. A blank region is filled from the map; a
// conflicting one is flagged but left alone.
func (v *Validator) checkRegion(rowIndex int, rec *record.Record) {
	if !v.rules.RegionCheck.Enabled || len(v.regions) == 0 {
		return
	}
	marketCol := v.rules.RegionCheck.MarketColumn
	regionCol := v.rules.RegionCheck.RegionColumn

	market := rec.Get(marketCol).Text()
	if strings.TrimSpace(market) == "" {
		return
	}
	expected, known := v.regions[record.NormalizeKey(market)]
	if !known {
		v.ledger.RecordException(rowIndex, market, marketCol, ledger.IssueMarketUnknown, market, "")
		return
	}
	current := rec.Get(regionCol)
	if current.IsEmpty() {
		filled := record.String(expected)
		if v.ledger.RecordChange(rowIndex, regionCol, current, filled, ledger.ChangeAutomated, "region_from_market") {
			rec.Set(regionCol, filled)
		}
		return
	}
	if record.NormalizeKey(current.Text()) != record.NormalizeKey(expected) {
		v.ledger.RecordException(rowIndex, market, regionCol, ledger.IssueRegionMismatch, current.Text(), expected)
	}
}

// =============================================================================
// DATE PLACEHOLDERS
// =============================================================================

// applyDatePlaceholders fills missing flight dates from the configured
// templates. {fx_year} in a template is replaced with the record's rate year
// so a placeholder never lands in the wrong reporting period.
func (v *Validator) applyDatePlaceholders(rowIndex int, rec *record.Record, fxYear string) {
	dp := v.rules.DatePlaceholders
	v.placeholderDate(rowIndex, rec, dp.StartColumn, dp.StartIfMissing, fxYear)
	v.placeholderDate(rowIndex, rec, dp.EndColumn, dp.EndIfMissing, fxYear)
}

func (v *Validator) placeholderDate(rowIndex int, rec *record.Record, column, template, fxYear string) {
	if template == "" || column == "" {
		return
	}
	if !rec.Get(column).IsEmpty() {
		return
	}
	value := strings.ReplaceAll(template, "{fx_year}", fxYear)
	filled := record.String(value)
	if !v.ledger.RecordChange(rowIndex, column, rec.Get(column), filled, ledger.ChangeAutomated, "date_placeholder") {
		return
	}
	rec.Set(column, filled)
	v.ledger.RecordException(rowIndex, v.market(rec), column, ledger.IssueDatePlaceholder, "", value)
}

// =============================================================================
// ACTUALISATION BACKFILL
// =============================================================================

// backfillActuals copies planned spend into blank or zero actuals for rows
// whose flight ended at least AgeDaysThreshold days ago. A flight that old
// with no actuals was never actualised, so the plan is the best estimate on
// file.
func (v *Validator) backfillActuals(rowIndex int, rec *record.Record) {
	rules := v.rules.Actualisation
	if !rules.Enabled || len(rules.Scopes) == 0 {
		return
	}
	reference, ok := v.flightEnd(rec)
	if !ok {
		return
	}
	age := v.now().Sub(reference)
	if age < time.Duration(rules.AgeDaysThreshold)*24*time.Hour {
		return
	}
	market := v.market(rec)
	for _, scope := range rules.Scopes {
		actual := rec.Get(scope.ActualColumn)
		if n, isNum := actual.Float(); !actual.IsEmpty() && (!isNum || n != 0) {
			continue
		}
		planned := rec.Get(scope.PlannedColumn)
		if planned.IsEmpty() {
			continue
		}
		if n, isNum := planned.Float(); isNum && n == 0 {
			continue
		}
		if !v.ledger.RecordChange(rowIndex, scope.ActualColumn, actual, planned, ledger.ChangeAutomated, "actualisation_backfill") {
			continue
		}
		rec.Set(scope.ActualColumn, planned)
		v.ledger.RecordException(rowIndex, market, scope.ActualColumn,
			ledger.IssueMissingActualisation, actual.Text(), planned.Text())
	}
}

// flightEnd returns the end date, falling back to the start date when the
// end is missing or unparseable.
func (v *Validator) flightEnd(rec *record.Record) (time.Time, bool) {
	dp := v.rules.DatePlaceholders
	if t, ok := ParseDate(rec.Get(dp.EndColumn).Text()); ok {
		return t, true
	}
	return ParseDate(rec.Get(dp.StartColumn).Text())
}

func (v *Validator) market(rec *record.Record) string {
	return rec.Get(v.rules.FXRules.MarketColumn).Text()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
