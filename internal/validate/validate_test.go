package validate

import (
	"testing"
	"time"

	"github.com/dcanalytics/dcqa/internal/config"
	"github.com/dcanalytics/dcqa/internal/ledger"
	"github.com/dcanalytics/dcqa/internal/record"
	"github.com/dcanalytics/dcqa/internal/taxonomy"
)

func testRules() *config.Rules {
	return &config.Rules{
		Defaults:          map[string]string{"status": "Planned"},
		TemporaryFills:    map[string]string{"buy_type": "Unknown"},
		AllowedObjectives: []string{"Awareness", "Conversion"},
		ObjectiveColumn:   "objective",
		StatusColumn:      "status",
		ObjectiveFallback: "Awareness",
		DatePlaceholders: config.DatePlaceholders{
			StartColumn:    "start_date",
			EndColumn:      "end_date",
			StartIfMissing: "{fx_year}-01-01",
			EndIfMissing:   "{fx_year}-12-31",
		},
		RegionCheck: config.RegionCheck{
			Enabled:      true,
			MarketColumn: "market",
			RegionColumn: "region",
		},
		Actualisation: config.Actualisation{
			Enabled:          true,
			AgeDaysThreshold: 30,
			Scopes: []config.ActualisationPair{
				{ActualColumn: "actual_spend_local", PlannedColumn: "planned_spend_local"},
			},
		},
		FXRules: config.FXRules{MarketColumn: "market"},
	}
}

func testTaxonomies() *taxonomy.Set {
	fx := &taxonomy.Table{Name: "fx_rates", KeyColumns: []string{"market", "currency", "fx_year"}}
	fx.AddEntry(record.FromPairs(
		"market", "DK", "currency", "DKK", "fx_year", "2024",
		"region", "Nordics", "fx_to_eur", 0.134,
	))
	fx.AddEntry(record.FromPairs(
		"market", "DE", "currency", "EUR", "fx_year", "2024",
		"region", "Central Europe", "fx_to_eur", 1.0,
	))
	return taxonomy.NewSet(fx)
}

func newValidator(t *testing.T) (*Validator, *ledger.Ledger) {
	t.Helper()
	led := ledger.New()
	v := New(testRules(), led, testTaxonomies())
	v.now = func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) }
	return v, led
}

func findException(led *ledger.Ledger, issue ledger.IssueType) (ledger.ExceptionEntry, bool) {
	for _, e := range led.Exceptions() {
		if e.Issue == issue {
			return e, true
		}
	}
	return ledger.ExceptionEntry{}, false
}

func TestDefaultsFillBlanksOnly(t *testing.T) {
	v, led := newValidator(t)
	rec := record.FromPairs("market", "DK", "status", "", "buy_type", "Programmatic")

	v.applyDefaults(0, rec)

	if got := rec.Get("status").Text(); got != "Planned" {
		t.Fatalf("status = %q, want Planned", got)
	}
	if got := rec.Get("buy_type").Text(); got != "Programmatic" {
		t.Fatalf("buy_type overwritten to %q", got)
	}
	if _, ok := findException(led, ledger.IssueStatusDefaulted); !ok {
		t.Fatal("expected status_defaulted finding")
	}
	if _, ok := findException(led, ledger.IssueFieldDefaulted); ok {
		t.Fatal("non-blank buy_type must not be flagged")
	}
	if len(led.Changes()) != 1 {
		t.Fatalf("changes = %d, want 1", len(led.Changes()))
	}
}

func TestStatusColumnFollowsConfig(t *testing.T) {
	rules := testRules()
	rules.StatusColumn = "plan_status"
	rules.Defaults = map[string]string{"plan_status": "Planned", "status": "Live"}
	led := ledger.New()
	v := New(rules, led, testTaxonomies())

	rec := record.FromPairs("market", "DK", "plan_status", "", "status", "")
	v.applyDefaults(0, rec)

	exc, ok := findException(led, ledger.IssueStatusDefaulted)
	if !ok {
		t.Fatal("expected status_defaulted finding")
	}
	if exc.Field != "plan_status" {
		t.Fatalf("status_defaulted on %q, want plan_status", exc.Field)
	}
	exc, ok = findException(led, ledger.IssueFieldDefaulted)
	if !ok {
		t.Fatal("expected field_defaulted finding for the ordinary column")
	}
	if exc.Field != "status" {
		t.Fatalf("field_defaulted on %q, want status", exc.Field)
	}
}

func TestObjectiveVocabulary(t *testing.T) {
	v, led := newValidator(t)

	// Non-canonical spelling of an allowed value is fixed without a finding.
	rec := record.FromPairs("market", "DK", "objective", "conversion")
	v.checkObjective(0, rec)
	if got := rec.Get("objective").Text(); got != "Conversion" {
		t.Fatalf("objective = %q, want Conversion", got)
	}
	if len(led.Exceptions()) != 0 {
		t.Fatalf("spelling fix raised %d findings", len(led.Exceptions()))
	}

	// Out-of-vocabulary value falls back and is flagged.
	rec = record.FromPairs("market", "DK", "objective", "Branding")
	v.checkObjective(1, rec)
	if got := rec.Get("objective").Text(); got != "Awareness" {
		t.Fatalf("objective = %q, want Awareness", got)
	}
	exc, ok := findException(led, ledger.IssueInvalidObjective)
	if !ok {
		t.Fatal("expected invalid_objective finding")
	}
	if exc.CurrentValue != "Branding" || exc.SuggestedValue != "Awareness" {
		t.Fatalf("finding = %q -> %q", exc.CurrentValue, exc.SuggestedValue)
	}

	// Blank objectives are the defaulting rule's business, not vocabulary.
	rec = record.FromPairs("market", "DK", "objective", "")
	v.checkObjective(2, rec)
	if !rec.Get("objective").IsEmpty() {
		t.Fatal("blank objective must stay blank here")
	}
}

func TestRegionCheck(t *testing.T) {
	v, led := newValidator(t)

	// Blank region is filled from the rate table.
	rec := record.FromPairs("market", "dk", "region", "")
	v.checkRegion(0, rec)
	if got := rec.Get("region").Text(); got != "Nordics" {
		t.Fatalf("region = %q, want Nordics", got)
	}

	// Conflicting region is flagged but kept.
	rec = record.FromPairs("market", "DK", "region", "Western Europe")
	v.checkRegion(1, rec)
	if got := rec.Get("region").Text(); got != "Western Europe" {
		t.Fatalf("region rewritten to %q", got)
	}
	exc, ok := findException(led, ledger.IssueRegionMismatch)
	if !ok {
		t.Fatal("expected region_mismatch finding")
	}
	if exc.SuggestedValue != "Nordics" {
		t.Fatalf("suggested region = %q", exc.SuggestedValue)
	}

	// Unknown market is its own finding.
	rec = record.FromPairs("market", "XX", "region", "Nowhere")
	v.checkRegion(2, rec)
	if _, ok := findException(led, ledger.IssueMarketUnknown); !ok {
		t.Fatal("expected market_unknown finding")
	}
}

func TestDatePlaceholders(t *testing.T) {
	v, led := newValidator(t)
	rec := record.FromPairs("market", "DK", "start_date", "", "end_date", "2024-06-30")

	v.applyDatePlaceholders(0, rec, "2024")

	if got := rec.Get("start_date").Text(); got != "2024-01-01" {
		t.Fatalf("start_date = %q", got)
	}
	if got := rec.Get("end_date").Text(); got != "2024-06-30" {
		t.Fatalf("end_date overwritten to %q", got)
	}
	exc, ok := findException(led, ledger.IssueDatePlaceholder)
	if !ok {
		t.Fatal("expected date_placeholder_applied finding")
	}
	if exc.Field != "start_date" {
		t.Fatalf("finding field = %q", exc.Field)
	}
}

func TestActualisationBackfill(t *testing.T) {
	v, led := newValidator(t)

	// Flight ended well over the threshold with blank actuals.
	rec := record.FromPairs("market", "DK",
		"end_date", "2024-03-31",
		"planned_spend_local", 1500.0,
		"actual_spend_local", "")
	v.backfillActuals(0, rec)
	if got, _ := rec.Get("actual_spend_local").Float(); got != 1500 {
		t.Fatalf("actual = %v, want 1500", got)
	}
	if _, ok := findException(led, ledger.IssueMissingActualisation); !ok {
		t.Fatal("expected missing_actualisation finding")
	}

	// Recent flight stays untouched.
	rec = record.FromPairs("market", "DK",
		"end_date", "2024-05-20",
		"planned_spend_local", 900.0,
		"actual_spend_local", "")
	v.backfillActuals(1, rec)
	if !rec.Get("actual_spend_local").IsEmpty() {
		t.Fatal("recent flight must not be backfilled")
	}

	// Zero actuals count as missing, real actuals do not.
	rec = record.FromPairs("market", "DK",
		"end_date", "2024-03-31",
		"planned_spend_local", 900.0,
		"actual_spend_local", 0.0)
	v.backfillActuals(2, rec)
	if got, _ := rec.Get("actual_spend_local").Float(); got != 900 {
		t.Fatalf("zero actual not backfilled, got %v", got)
	}

	rec = record.FromPairs("market", "DK",
		"end_date", "2024-03-31",
		"planned_spend_local", 900.0,
		"actual_spend_local", 850.0)
	v.backfillActuals(3, rec)
	if got, _ := rec.Get("actual_spend_local").Float(); got != 850 {
		t.Fatalf("real actual overwritten to %v", got)
	}
}

func TestParseDateDayFirst(t *testing.T) {
	got, ok := ParseDate("02/01/2024")
	if !ok {
		t.Fatal("parse failed")
	}
	if got.Month() != time.January || got.Day() != 2 {
		t.Fatalf("parsed %v, want 2 January", got)
	}
	if _, ok := ParseDate("not a date"); ok {
		t.Fatal("garbage parsed as date")
	}
}
