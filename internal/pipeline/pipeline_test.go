package pipeline

import (
	"context"
	"math"
	"testing"

	"github.com/dcanalytics/dcqa/internal/config"
	"github.com/dcanalytics/dcqa/internal/ledger"
	"github.com/dcanalytics/dcqa/internal/record"
	"github.com/dcanalytics/dcqa/internal/taxonomy"
)

const testRulesYAML = `
header_synonyms:
  market: ["Plan Market"]
  raw_brand: ["Brand"]
  currency: ["Currency"]
  planned_spend_local: ["Planned Spend"]

defaults:
  status: Planned

region_check:
  enabled: true

brand_mapping:
  precedence:
    - [market, raw_brand, raw_variant]
    - [market, raw_brand]
    - [raw_brand]
  key_fields:
    market: market
    raw_brand: raw_brand
    raw_variant: raw_variant
  outputs:
    brand: brand
    brand_family: brand_family
  primary_output: brand
  on_miss: raw
  raw_fallback_field: raw_brand
  conflict_hints:
    title_field: plan_name
    brand_regex:
      Carlsberg: "(?i)carlsberg"

campaign_mapping:
  precedence:
    - [market, campaign_name]
    - [campaign_name]
  key_fields:
    market: market
    campaign_name: campaign_name
  outputs:
    campaign: campaign
  primary_output: campaign

cbht_mapping:
  precedence:
    - [market, brand]
    - [brand]
  key_fields:
    market: market
    brand: brand
  outputs:
    cbht_code: cbht_code
  primary_output: cbht_code

vendor_mapping:
  keys:
    - {taxonomy_column: vendor_name, record_column: vendor}
  outputs:
    vendor_canonical: vendor_canonical
  primary_output: vendor_canonical
  on_miss: placeholder

channel_mapping:
  keys:
    - {taxonomy_column: channel, record_column: channel}
    - {taxonomy_column: channel, record_column: sub_channel}
  outputs:
    channel_canonical: channel_canonical
  primary_output: channel_canonical
  on_miss: placeholder

fx_rules:
  rate_columns:
    eur: fx_to_eur
  compute_pairs:
    eur:
      - [planned_spend_local, planned_spend_eur]
`

func testRules(t *testing.T) *config.Rules {
	t.Helper()
	rules, err := config.Parse([]byte(testRulesYAML))
	if err != nil {
		t.Fatalf("parse rules: %v", err)
	}
	return rules
}

func testTaxonomies() *taxonomy.Set {
	brands := &taxonomy.Table{Name: "brands", KeyColumns: []string{"market", "raw_brand", "raw_variant"}}
	brands.AddEntry(record.FromPairs(
		"market", "DK", "raw_brand", "Tuborg", "raw_variant", "",
		"brand", "Tuborg", "brand_family", "Beer"))

	campaigns := &taxonomy.Table{Name: "campaigns", KeyColumns: []string{"market", "campaign_name"}}
	campaigns.AddEntry(record.FromPairs(
		"market", "DK", "campaign_name", "Summer Push",
		"campaign", "Summer Push 2024"))

	vendors := &taxonomy.Table{Name: "vendors", KeyColumns: []string{"vendor_name"}}
	vendors.AddEntry(record.FromPairs(
		"vendor_name", "AdVendor", "vendor_canonical", "AdVendor Inc"))

	channels := &taxonomy.Table{Name: "channels", KeyColumns: []string{"channel"}}
	channels.AddEntry(record.FromPairs(
		"channel", "Online Video", "channel_canonical", "Online Video"))

	cbht := &taxonomy.Table{Name: "cbht", KeyColumns: []string{"market", "brand"}}
	cbht.AddEntry(record.FromPairs(
		"market", "DK", "brand", "Tuborg", "cbht_code", "TB-01"))

	fxRates := &taxonomy.Table{Name: "fx_rates", KeyColumns: []string{"market", "currency", "fx_year"}}
	fxRates.AddEntry(record.FromPairs(
		"market", "DK", "currency", "DKK", "fx_year", "2024",
		"region", "Nordics", "fx_to_eur", 0.134))

	return taxonomy.NewSet(brands, campaigns, vendors, channels, cbht, fxRates)
}

// quietLogger keeps test output clean.
type quietLogger struct{}

func (quietLogger) Debug(string, ...interface{}) {}
func (quietLogger) Info(string, ...interface{})  {}
func (quietLogger) Warn(string, ...interface{})  {}
func (quietLogger) Error(string, ...interface{}) {}

func newPipeline(t *testing.T) *Pipeline {
	t.Helper()
	p := New(testRules(t), testTaxonomies())
	p.SetLogger(quietLogger{})
	return p
}

func hasException(result *Result, rowIndex int, issue ledger.IssueType) (ledger.ExceptionEntry, bool) {
	for _, e := range result.Exceptions {
		if e.RowIndex == rowIndex && e.Issue == issue {
			return e, true
		}
	}
	return ledger.ExceptionEntry{}, false
}

func TestRunEndToEnd(t *testing.T) {
	happy := record.FromPairs(
		"Plan Market", "DK",
		"Brand", " Tuborg ",
		"raw_variant", "",
		"Currency", "dkk",
		"Planned Spend", "1,500",
		"campaign_name", "Summer Push",
		"vendor", "AdVendor",
		"channel", "Online Video",
		"status", "",
		"plan_name", "Tuborg Summer DK",
	)
	miss := record.FromPairs(
		"Plan Market", "SE",
		"Brand", "Mystery",
		"raw_variant", "",
		"Currency", "SEK",
		"Planned Spend", 100,
		"vendor", "Nobody",
		"status", "Live",
	)

	p := newPipeline(t)
	result, err := p.Run(context.Background(), &Dataset{
		SourceName: "media_plans_2024_q3.xlsx",
		Records:    []*record.Record{happy, miss},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Cleaned) != 2 {
		t.Fatalf("cleaned rows = %d, want 2", len(result.Cleaned))
	}
	if happy.Has("brand") {
		t.Fatal("Run mutated its input records")
	}

	row := result.Cleaned[0]

	// Brand matched through the two-key fallback: the three-key combination
	// is skipped because raw_variant is blank.
	if got := row.Get("brand").Text(); got != "Tuborg" {
		t.Errorf("brand = %q, want Tuborg", got)
	}
	if got := row.Get("brand_family").Text(); got != "Beer" {
		t.Errorf("brand_family = %q, want Beer", got)
	}
	if _, found := hasException(result, 0, ledger.IssueBrandUnmapped); found {
		t.Error("matched brand must not be flagged")
	}

	// Currency comes back in the rate table's canonical casing.
	if got := row.Get("currency").Text(); got != "DKK" {
		t.Errorf("currency = %q, want DKK", got)
	}

	// "1,500" coerced to 1500 and converted at 0.134.
	if got, _ := row.Get("planned_spend_eur").Float(); math.Abs(got-201) > 1e-9 {
		t.Errorf("planned_spend_eur = %v, want 201", got)
	}

	// Rate year seeded from the source file name.
	if got := row.Get("fx_year").Text(); got != "2024" {
		t.Errorf("fx_year = %q, want 2024", got)
	}

	// Remaining dimensions and the per-record checks.
	if got := row.Get("campaign").Text(); got != "Summer Push 2024" {
		t.Errorf("campaign = %q", got)
	}
	if got := row.Get("cbht_code").Text(); got != "TB-01" {
		t.Errorf("cbht_code = %q", got)
	}
	if got := row.Get("vendor_canonical").Text(); got != "AdVendor Inc" {
		t.Errorf("vendor_canonical = %q", got)
	}
	if got := row.Get("status").Text(); got != "Planned" {
		t.Errorf("status = %q, want Planned", got)
	}
	if got := row.Get("region").Text(); got != "Nordics" {
		t.Errorf("region = %q, want Nordics", got)
	}
	if _, found := hasException(result, 0, ledger.IssueStatusDefaulted); !found {
		t.Error("expected status_defaulted on row 0")
	}

	// Row 1: unmatched brand falls back to the raw value and lands on the
	// review worklist.
	row = result.Cleaned[1]
	if got := row.Get("brand").Text(); got != "Mystery" {
		t.Errorf("unmatched brand = %q, want raw fallback Mystery", got)
	}
	exc, found := hasException(result, 1, ledger.IssueBrandUnmapped)
	if !found {
		t.Fatal("expected brand_unmapped on row 1")
	}
	if exc.Priority != ledger.PriorityMedium {
		t.Errorf("brand_unmapped priority = %q, want P2", exc.Priority)
	}

	todos := result.Todos[ledger.DimensionBrands]
	if len(todos) != 1 || todos[0].Keys["raw_brand"] != "Mystery" {
		t.Fatalf("brands worklist = %+v", todos)
	}

	// Vendor miss gets the sentinel and the partnerships owner.
	if got := row.Get("vendor_canonical").Text(); got != "_Placeholder" {
		t.Errorf("vendor_canonical = %q, want _Placeholder", got)
	}
	exc, found = hasException(result, 1, ledger.IssueVendorUnmapped)
	if !found {
		t.Fatal("expected vendor_unmapped on row 1")
	}
	if exc.Owner != "Partnerships" {
		t.Errorf("vendor_unmapped owner = %q", exc.Owner)
	}

	// No SE rate row: single fx_missing carrying the failed triple.
	exc, found = hasException(result, 1, ledger.IssueFXMissing)
	if !found {
		t.Fatal("expected fx_missing on row 1")
	}
	if exc.CurrentValue != "SE/SEK/2024" {
		t.Errorf("fx_missing triple = %q", exc.CurrentValue)
	}
	if exc.Priority != ledger.PriorityHigh {
		t.Errorf("fx_missing priority = %q, want P1", exc.Priority)
	}

	if result.Stats.RowsProcessed != 2 {
		t.Errorf("stats rows = %d", result.Stats.RowsProcessed)
	}
}

func TestRunNormalizesPassthroughCells(t *testing.T) {
	rec := record.FromPairs(
		"Plan Market", "DK",
		"Brand", "Tuborg",
		"Currency", "DKK",
		"notes", "  Q3   flight\u00a0plan  ",
		"agency", "\uFEFFOmni  Group",
	)
	p := newPipeline(t)
	result, err := p.Run(context.Background(), &Dataset{
		SourceName: "plans_2024.xlsx",
		Records:    []*record.Record{rec},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// Columns no rule touches still come back trimmed, with whitespace runs
	// and non-breaking spaces collapsed and the byte-order mark stripped.
	row := result.Cleaned[0]
	if got := row.Get("notes").Text(); got != "Q3 flight plan" {
		t.Errorf("notes = %q, want %q", got, "Q3 flight plan")
	}
	if got := row.Get("agency").Text(); got != "Omni Group" {
		t.Errorf("agency = %q, want %q", got, "Omni Group")
	}
}

func TestRunBrandConflictHint(t *testing.T) {
	rec := record.FromPairs(
		"Plan Market", "DK",
		"Brand", "Tuborg",
		"Currency", "DKK",
		"plan_name", "Carlsberg Pilsner Push",
	)
	p := newPipeline(t)
	result, err := p.Run(context.Background(), &Dataset{
		SourceName: "plans_2024.xlsx",
		Records:    []*record.Record{rec},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	exc, found := hasException(result, 0, ledger.IssueBrandConflictTitle)
	if !found {
		t.Fatal("expected a brand conflict finding")
	}
	if exc.CurrentValue != "Tuborg" || exc.SuggestedValue != "Carlsberg" {
		t.Errorf("conflict = %q vs %q", exc.CurrentValue, exc.SuggestedValue)
	}
}

func TestRunEmptyDatasetFails(t *testing.T) {
	p := newPipeline(t)
	if _, err := p.Run(context.Background(), &Dataset{SourceName: "empty.xlsx"}); err == nil {
		t.Fatal("empty dataset must fail the run")
	}
}

func TestRunMissingTaxonomyFails(t *testing.T) {
	p := New(testRules(t), taxonomy.NewSet())
	p.SetLogger(quietLogger{})
	rec := record.FromPairs("market", "DK")
	if _, err := p.Run(context.Background(), &Dataset{SourceName: "x.xlsx", Records: []*record.Record{rec}}); err == nil {
		t.Fatal("missing taxonomy tables must fail the run")
	}
}

func TestRunCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := newPipeline(t)
	rec := record.FromPairs("Plan Market", "DK", "Brand", "Tuborg")
	_, err := p.Run(ctx, &Dataset{SourceName: "x.xlsx", Records: []*record.Record{rec}})
	if err == nil {
		t.Fatal("cancelled context must abort the run")
	}
}

func TestRunProgressMonotone(t *testing.T) {
	records := make([]*record.Record, 20)
	for i := range records {
		records[i] = record.FromPairs("Plan Market", "DK", "Brand", "Tuborg", "Currency", "DKK")
	}

	p := newPipeline(t)
	var calls []int
	p.SetProgress(func(processed, total int) {
		if total != 20 {
			t.Errorf("total = %d, want 20", total)
		}
		calls = append(calls, processed)
	})

	if _, err := p.Run(context.Background(), &Dataset{SourceName: "x.xlsx", Records: records}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(calls) == 0 {
		t.Fatal("progress callback never fired")
	}
	for i := 1; i < len(calls); i++ {
		if calls[i] <= calls[i-1] {
			t.Fatalf("progress not monotone: %v", calls)
		}
	}
	if calls[len(calls)-1] != 20 {
		t.Fatalf("final milestone = %d, want 20", calls[len(calls)-1])
	}
}
