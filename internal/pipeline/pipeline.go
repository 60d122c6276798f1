// =============================================================================
// DC Data Quality - Cleaning Pipeline
// =============================================================================
//
// This module contains the core cleaning logic. It orchestrates the full run
// for one dataset, from raw extract rows to cleaned records plus the change
// log, exception report and review worklists.
//
// CLEANING PIPELINE:
//   1. Validate taxonomy set and build the dimension resolvers
//   2. Resolve header synonyms once for the dataset
//   3. Normalize values and coerce numeric columns
//   4. Apply defaults, vocabulary, region and date checks
//   5. Resolve brand, campaign, vendor, channel and cbht
//   6. Convert monetary columns and audit reported globals
//   7. Return cleaned records and the run ledger
//
// Output rows correspond one to one, in order, with input rows. A row that
// cannot be mapped is flagged and kept, never dropped.
//
// =============================================================================

package pipeline

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/dcanalytics/dcqa/internal/config"
	"github.com/dcanalytics/dcqa/internal/fx"
	"github.com/dcanalytics/dcqa/internal/ledger"
	"github.com/dcanalytics/dcqa/internal/record"
	"github.com/dcanalytics/dcqa/internal/resolver"
	"github.com/dcanalytics/dcqa/internal/taxonomy"
	"github.com/dcanalytics/dcqa/internal/validate"
)

// yearPattern extracts the rate year from an extract file name, e.g.
// "media_plans_2024_q3.xlsx" -> "2024".
var yearPattern = regexp.MustCompile(`(20\d{2})`)

// =============================================================================
// RESULT STRUCTURE
// =============================================================================

// Result is the outcome of cleaning one dataset.
type Result struct {
	// Cleaned holds the cleaned records, same count and order as the input.
	Cleaned []*record.Record

	// Changes is the cell-level change log in emission order.
	Changes []ledger.ChangeEntry

	// Exceptions is the classified finding report.
	Exceptions []ledger.ExceptionEntry

	// Todos holds the per-dimension worklists of unresolved raw keys.
	Todos map[ledger.Dimension][]ledger.TodoEntry

	// Stats contains run statistics.
	Stats RunStats
}

// RunStats contains statistics about a run.
type RunStats struct {
	RowsProcessed    int
	ChangesLogged    int
	ExceptionsRaised int
	ProcessingTime   time.Duration
}

// Dataset is one extract to clean.
type Dataset struct {
	// SourceName is the originating file name; the rate year is sniffed from
	// it when rows carry no year of their own.
	SourceName string

	// Records are the extract rows in file order.
	Records []*record.Record
}

// =============================================================================
// LOGGER
// =============================================================================

// Logger is an interface for logging.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
}

// defaultLogger prints to stdout.
type defaultLogger struct{}

func (l *defaultLogger) Debug(msg string, args ...interface{}) {
	fmt.Printf("[DEBUG] "+msg+"\n", args...)
}

func (l *defaultLogger) Info(msg string, args ...interface{}) {
	fmt.Printf("[INFO] "+msg+"\n", args...)
}

func (l *defaultLogger) Warn(msg string, args ...interface{}) {
	fmt.Printf("[WARN] "+msg+"\n", args...)
}

func (l *defaultLogger) Error(msg string, args ...interface{}) {
	fmt.Printf("[ERROR] "+msg+"\n", args...)
}

// ProgressFunc receives monotone progress milestones during a run.
type ProgressFunc func(processed, total int)

// =============================================================================
// PIPELINE STRUCTURE
// =============================================================================

// Pipeline cleans datasets against one rules file and one taxonomy set. Build
// it once, run it per dataset; runs do not share mutable state.
type Pipeline struct {
	rules      *config.Rules
	taxonomies *taxonomy.Set
	logger     Logger
	progress   ProgressFunc
}

// New creates a new Pipeline instance.
func New(rules *config.Rules, taxonomies *taxonomy.Set) *Pipeline {
	return &Pipeline{
		rules:      rules,
		taxonomies: taxonomies,
		logger:     &defaultLogger{},
	}
}

// SetLogger replaces the default stdout logger.
func (p *Pipeline) SetLogger(l Logger) {
	if l != nil {
		p.logger = l
	}
}

// SetProgress installs a progress callback. It is invoked at most once per
// ten-percent milestone, with processed counts that never decrease.
func (p *Pipeline) SetProgress(fn ProgressFunc) {
	p.progress = fn
}

// =============================================================================
// RUN
// =============================================================================

// Run cleans one dataset. Setup failures (missing taxonomy tables, broken
// rules, empty input) are errors; everything found on individual rows is a
// ledger entry in the result.
func (p *Pipeline) Run(ctx context.Context, dataset *Dataset) (*Result, error) {
	startTime := time.Now()

	// =========================================================================
	// STEP 1: VALIDATE PRECONDITIONS AND BUILD RESOLVERS
	// =========================================================================

	if err := p.taxonomies.Validate(); err != nil {
		return nil, err
	}
	if len(dataset.Records) == 0 {
		return nil, fmt.Errorf("dataset %q has no rows", dataset.SourceName)
	}

	numericColumns, err := regexp.Compile(p.rules.NumericColumnPattern)
	if err != nil {
		return nil, fmt.Errorf("invalid numeric_column_pattern: %w", err)
	}

	led := ledger.New()

	run, err := p.newRun(led)
	if err != nil {
		return nil, err
	}

	p.logger.Info("Cleaning %s: %d rows", dataset.SourceName, len(dataset.Records))

	// =========================================================================
	// STEP 2: LEDGER SETUP FINDINGS
	// =========================================================================
	// Duplicate taxonomy keys and broken hint patterns are reference-data
	// defects, not row defects. They are reported against row -1 so the
	// exception report carries them without inventing a row.

	run.reportSetupFindings()

	// =========================================================================
	// STEP 3: RESOLVE HEADER SYNONYMS
	// =========================================================================
	// The rename map is computed once per dataset from the rules file and
	// applied to every row.

	headerMap := p.rules.ResolveHeaders()

	sourceYear := ""
	if m := yearPattern.FindStringSubmatch(dataset.SourceName); m != nil {
		sourceYear = m[1]
	}

	// =========================================================================
	// STEP 4: CLEAN RECORDS
	// =========================================================================

	cleaned := make([]*record.Record, 0, len(dataset.Records))
	lastMilestone := 0

	for i, raw := range dataset.Records {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("run cancelled after %d rows: %w", i, err)
		}

		rec := raw.Clone()
		renameHeaders(rec, headerMap)
		rec = record.Normalize(rec)
		run.coerceNumerics(i, rec, numericColumns)
		run.seedRateYear(i, rec, sourceYear)

		run.validator.Apply(i, rec, rec.Get(p.rules.FXRules.YearColumn).Text())

		run.resolveHierarchical(i, rec, run.brand, &p.rules.BrandMapping, ledger.DimensionBrands, ledger.IssueBrandUnmapped)
		run.resolveHierarchical(i, rec, run.campaign, &p.rules.CampaignMapping, ledger.DimensionCampaigns, ledger.IssueCampaignUnmapped)
		run.resolveSimple(i, rec, run.vendor, &p.rules.VendorMapping, ledger.DimensionVendors, ledger.IssueVendorUnmapped)
		run.resolveSimple(i, rec, run.channel, &p.rules.ChannelMapping, ledger.DimensionChannels, ledger.IssueChannelUnmapped)
		run.resolveHierarchical(i, rec, run.cbht, &p.rules.CBHTMapping, ledger.DimensionCBHT, ledger.IssueCBHTMissing)

		run.checkBrandConflict(i, rec)

		rec = run.convertFX(i, rec)

		cleaned = append(cleaned, rec)

		if p.progress != nil {
			milestone := (i + 1) * 10 / len(dataset.Records)
			if milestone > lastMilestone {
				lastMilestone = milestone
				p.progress(i+1, len(dataset.Records))
			}
		}
	}

	// =========================================================================
	// STEP 5: ASSEMBLE RESULT
	// =========================================================================

	result := &Result{
		Cleaned:    cleaned,
		Changes:    led.Changes(),
		Exceptions: led.Exceptions(),
		Todos:      led.AllTodos(),
		Stats: RunStats{
			RowsProcessed:    len(cleaned),
			ChangesLogged:    len(led.Changes()),
			ExceptionsRaised: len(led.Exceptions()),
			ProcessingTime:   time.Since(startTime),
		},
	}

	p.logger.Info("Cleaned %s: %d rows, %d changes, %d findings",
		dataset.SourceName, result.Stats.RowsProcessed,
		result.Stats.ChangesLogged, result.Stats.ExceptionsRaised)

	return result, nil
}

// =============================================================================
// RUN STATE
// =============================================================================

// run holds the per-run resolvers and ledger. A fresh one is built for every
// Run call so concurrent runs never share indexes mid-build.
type run struct {
	rules     *config.Rules
	led       *ledger.Ledger
	validator *validate.Validator

	brand    *resolver.Hierarchical
	campaign *resolver.Hierarchical
	cbht     *resolver.Hierarchical
	vendor   *resolver.Simple
	channel  *resolver.Simple

	hints     *resolver.HintSet
	converter *fx.Converter
}

func (p *Pipeline) newRun(led *ledger.Ledger) (*run, error) {
	r := &run{
		rules:     p.rules,
		led:       led,
		validator: validate.New(p.rules, led, p.taxonomies),
	}

	var err error
	if r.brand, err = p.hierarchical("brands", &p.rules.BrandMapping); err != nil {
		return nil, err
	}
	if r.campaign, err = p.hierarchical("campaigns", &p.rules.CampaignMapping); err != nil {
		return nil, err
	}
	if r.cbht, err = p.hierarchical("cbht", &p.rules.CBHTMapping); err != nil {
		return nil, err
	}
	if r.vendor, err = p.simple("vendors", &p.rules.VendorMapping); err != nil {
		return nil, err
	}
	if r.channel, err = p.simple("channels", &p.rules.ChannelMapping); err != nil {
		return nil, err
	}

	r.hints = resolver.CompileHints(p.rules.BrandMapping.ConflictHints.BrandRegex)

	fxTable, _ := p.taxonomies.Table("fx_rates")
	fxCfg := fx.Config{
		MarketColumn:   p.rules.FXRules.MarketColumn,
		CurrencyColumn: p.rules.FXRules.CurrencyColumn,
		YearColumn:     p.rules.FXRules.YearColumn,
		RateColumns:    p.rules.FXRules.RateColumns,
		Pairs:          make(map[string][]fx.Pair, len(p.rules.FXRules.ComputePairs)),
		Tolerance:      p.rules.FXRules.Audit.ToleranceRatio,
	}
	for currency, pairs := range p.rules.FXRules.ComputePairs {
		for _, pair := range pairs {
			fxCfg.Pairs[currency] = append(fxCfg.Pairs[currency], fx.Pair{Source: pair[0], Target: pair[1]})
		}
	}
	if p.rules.FXRules.Audit.Enabled {
		for _, check := range p.rules.FXRules.Audit.Checks {
			fxCfg.Audits = append(fxCfg.Audits, fx.AuditCheck{Reported: check[0], Computed: check[1]})
		}
	}
	if r.converter, err = fx.NewConverter(fxTable, fxCfg); err != nil {
		return nil, err
	}

	return r, nil
}

func (p *Pipeline) hierarchical(table string, m *config.HierarchicalMapping) (*resolver.Hierarchical, error) {
	t, ok := p.taxonomies.Table(table)
	if !ok {
		return nil, fmt.Errorf("missing required taxonomy table %q", table)
	}
	return resolver.NewHierarchical(t, m.Precedence, m.KeyFields, m.Outputs)
}

func (p *Pipeline) simple(table string, m *config.SimpleMapping) (*resolver.Simple, error) {
	t, ok := p.taxonomies.Table(table)
	if !ok {
		return nil, fmt.Errorf("missing required taxonomy table %q", table)
	}
	choices := make([]resolver.KeyChoice, len(m.Keys))
	for i, k := range m.Keys {
		choices[i] = resolver.KeyChoice{TaxonomyColumn: k.TaxonomyColumn, RecordColumn: k.RecordColumn}
	}
	return resolver.NewSimple(t, choices, m.Outputs)
}

// reportSetupFindings ledgers reference-data defects against row -1.
func (r *run) reportSetupFindings() {
	type dimResolver interface {
		Duplicates() []taxonomy.Duplicate
	}
	for _, res := range []dimResolver{r.brand, r.campaign, r.cbht, r.vendor, r.channel} {
		for _, d := range res.Duplicates() {
			r.led.RecordException(-1, "", d.Table, ledger.IssueDuplicateTaxonomyKey,
				strings.Join(d.KeyColumns, "|")+"="+strings.Join(d.Key, "|"), "")
		}
	}
	for _, bad := range r.hints.Invalid() {
		r.led.RecordException(-1, "", bad.Brand, ledger.IssueInvalidRulePattern, bad.Pattern, "")
	}
}

// =============================================================================
// PER-RECORD STEPS
// =============================================================================

// renameHeaders maps raw header spellings to canonical columns, in place.
func renameHeaders(rec *record.Record, headerMap map[string]string) {
	for _, col := range rec.Columns() {
		canonical, ok := headerMap[record.NormalizeHeader(col)]
		if !ok || canonical == col {
			continue
		}
		rec.Rename(col, canonical)
	}
}

// coerceNumerics parses string values in numeric columns. Reformatting
// ("1,500" -> 1500) is ledgered; a value already reading as the same number
// is retyped silently.
func (r *run) coerceNumerics(rowIndex int, rec *record.Record, pattern *regexp.Regexp) {
	for _, col := range rec.Columns() {
		if !pattern.MatchString(col) {
			continue
		}
		v := rec.Get(col)
		if v.Kind != record.KindString || v.IsEmpty() {
			continue
		}
		n, ok := record.ParseNumber(v.Text())
		if !ok {
			continue
		}
		coerced := record.Number(n)
		r.led.RecordChange(rowIndex, col, v, coerced, ledger.ChangeAutomated, "coerce_numeric")
		rec.Set(col, coerced)
	}
}

// seedRateYear fills a blank rate year from the source file name.
func (r *run) seedRateYear(rowIndex int, rec *record.Record, sourceYear string) {
	if sourceYear == "" {
		return
	}
	col := r.rules.FXRules.YearColumn
	if !rec.Get(col).IsEmpty() {
		return
	}
	year := record.String(sourceYear)
	if r.led.RecordChange(rowIndex, col, rec.Get(col), year, ledger.ChangeAutomated, "fx_year_from_source") {
		rec.Set(col, year)
	}
}

// resolveHierarchical runs one precedence-based dimension against a record.
func (r *run) resolveHierarchical(rowIndex int, rec *record.Record, res *resolver.Hierarchical, m *config.HierarchicalMapping, dim ledger.Dimension, issue ledger.IssueType) {
	outcome := res.Resolve(rec)
	if outcome.Matched {
		r.applyOutputs(rowIndex, rec, outcome.Outputs, string(dim)+"_mapping")
		return
	}

	keyCols, rawKeys := res.RawKeys(rec)
	r.applyMissPolicy(rowIndex, rec, m.PrimaryOutput, m.OnMiss, m.Placeholder, m.RawFallbackField, string(dim))
	r.led.RecordException(rowIndex, r.market(rec), m.PrimaryOutput, issue, rawKeySummary(keyCols, rawKeys), "")
	r.led.RecordTodo(dim, rowIndex, keyCols, rawKeys)
}

// resolveSimple runs one single-key dimension against a record.
func (r *run) resolveSimple(rowIndex int, rec *record.Record, res *resolver.Simple, m *config.SimpleMapping, dim ledger.Dimension, issue ledger.IssueType) {
	outcome := res.Resolve(rec)
	if outcome.Matched {
		r.applyOutputs(rowIndex, rec, outcome.Outputs, string(dim)+"_mapping")
		return
	}

	keyCols, rawKeys := res.RawKeys(rec)
	r.applyMissPolicy(rowIndex, rec, m.PrimaryOutput, m.OnMiss, m.Placeholder, "", string(dim))
	r.led.RecordException(rowIndex, r.market(rec), m.PrimaryOutput, issue, rawKeySummary(keyCols, rawKeys), "")
	r.led.RecordTodo(dim, rowIndex, keyCols, rawKeys)
}

// applyOutputs writes a match's canonical values onto the record. Writes are
// ledgered; a destination already carrying the canonical value stays quiet.
func (r *run) applyOutputs(rowIndex int, rec *record.Record, outputs map[string]record.Value, rule string) {
	cols := make([]string, 0, len(outputs))
	for col := range outputs {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	for _, col := range cols {
		r.led.RecordChange(rowIndex, col, rec.Get(col), outputs[col], ledger.ChangeAutomated, rule)
		rec.Set(col, outputs[col])
	}
}

// applyMissPolicy fills the primary canonical column after a failed lookup.
func (r *run) applyMissPolicy(rowIndex int, rec *record.Record, primary string, policy config.MissPolicy, placeholder, rawField, dim string) {
	switch policy {
	case config.MissPlaceholder:
		v := record.String(placeholder)
		if r.led.RecordChange(rowIndex, primary, rec.Get(primary), v, ledger.ChangeAutomated, dim+"_placeholder") {
			rec.Set(primary, v)
		}
	case config.MissRaw:
		raw := rec.Get(rawField)
		if raw.IsEmpty() {
			return
		}
		if r.led.RecordChange(rowIndex, primary, rec.Get(primary), raw, ledger.ChangeAutomated, dim+"_raw_fallback") {
			rec.Set(primary, raw)
		}
	default:
		// Blank policy: make sure the column exists so every output row has
		// the same shape.
		if !rec.Has(primary) {
			rec.Set(primary, record.Empty)
		}
	}
}

// checkBrandConflict compares the resolved brand against the brand the title
// text implies. A disagreement is flagged for review, never auto-corrected.
func (r *run) checkBrandConflict(rowIndex int, rec *record.Record) {
	titleField := r.rules.BrandMapping.ConflictHints.TitleField
	if titleField == "" {
		return
	}
	detected := r.hints.Detect(rec.Get(titleField).Text())
	if detected == "" {
		return
	}
	primary := r.rules.BrandMapping.PrimaryOutput
	current := rec.Get(primary)
	if current.IsEmpty() {
		return
	}
	if record.NormalizeKey(current.Text()) == record.NormalizeKey(detected) {
		return
	}
	r.led.RecordException(rowIndex, r.market(rec), primary,
		ledger.IssueBrandConflictTitle, current.Text(), detected)
}

// convertFX converts monetary columns and ledgers the computed values and any
// findings. Returns the converted record.
func (r *run) convertFX(rowIndex int, rec *record.Record) *record.Record {
	converted, issues := r.converter.Convert(rec)

	currencies := make([]string, 0, len(r.rules.FXRules.ComputePairs))
	for currency := range r.rules.FXRules.ComputePairs {
		currencies = append(currencies, currency)
	}
	sort.Strings(currencies)
	for _, currency := range currencies {
		for _, pair := range r.rules.FXRules.ComputePairs[currency] {
			target := pair[1]
			if !converted.Has(target) {
				continue
			}
			r.led.RecordChange(rowIndex, target, rec.Get(target), converted.Get(target), ledger.ChangeAutomated, "fx_convert")
		}
	}

	for _, col := range []string{r.rules.FXRules.MarketColumn, r.rules.FXRules.CurrencyColumn} {
		if converted.Has(col) {
			r.led.RecordChange(rowIndex, col, rec.Get(col), converted.Get(col), ledger.ChangeAutomated, "fx_canonical")
		}
	}

	market := r.market(rec)
	for _, issue := range issues {
		r.led.RecordException(rowIndex, market, issue.Field, issue.Issue, issue.Current, issue.Suggested)
	}
	return converted
}

func (r *run) market(rec *record.Record) string {
	return rec.Get(r.rules.FXRules.MarketColumn).Text()
}

// rawKeySummary renders the raw key values of a failed lookup for the
// exception report.
func rawKeySummary(keyCols []string, rawKeys map[string]string) string {
	parts := make([]string, 0, len(keyCols))
	for _, col := range keyCols {
		parts = append(parts, col+"="+rawKeys[col])
	}
	return strings.Join(parts, "; ")
}
