// =============================================================================
// DC Data Quality - Rules Configuration
// =============================================================================
//
// One YAML rules file drives the whole cleaning run: which header spellings
// map to which canonical columns, the precedence lists per hierarchical
// dimension, the output-column mappings, FX conversion pairs and audit
// tolerance, field defaults, the controlled objective vocabulary and the
// per-dimension policy for unmatched rows.
//
// Loading follows the usual shape: read file, unmarshal into typed structs,
// apply defaults, validate. A rules file that fails validation refuses the
// run up front; per-record defects are findings, not config errors.
//
// =============================================================================

package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dcanalytics/dcqa/internal/record"
)

// =============================================================================
// RULES STRUCTURE
// =============================================================================

// Rules is the full cleaning configuration.
type Rules struct {
	// HeaderSynonyms maps a canonical column name to the accepted raw
	// header spellings. Resolution happens once per dataset at load time,
	// never per record. Spellings are compared on their normalized form.
	HeaderSynonyms map[string][]string `yaml:"header_synonyms"`

	// Defaults maps a column to the value filled in when the cell is blank.
	Defaults map[string]string `yaml:"defaults"`

	// TemporaryFills are defaults that are known to be wrong but keep the
	// dataset reportable until the owner supplies real values. They behave
	// like Defaults but are ledgered under their own rule name.
	TemporaryFills map[string]string `yaml:"temporary_fills"`

	// AllowedObjectives is the controlled vocabulary for the objective
	// column. A value outside the list is normalized to ObjectiveFallback
	// and flagged.
	AllowedObjectives []string `yaml:"allowed_objectives"`

	// ObjectiveColumn is the record column the vocabulary applies to.
	ObjectiveColumn string `yaml:"objective_column"`

	// StatusColumn is the record column whose blank-cell default is ledgered
	// as a status finding rather than an ordinary field default.
	StatusColumn string `yaml:"status_column"`

	// ObjectiveFallback replaces out-of-vocabulary objectives.
	ObjectiveFallback string `yaml:"objective_fallback"`

	// NumericColumnPattern matches column names whose values are coerced to
	// numbers before resolution.
	NumericColumnPattern string `yaml:"numeric_column_pattern"`

	DatePlaceholders DatePlaceholders `yaml:"date_placeholders"`
	RegionCheck      RegionCheck      `yaml:"region_check"`
	Actualisation    Actualisation    `yaml:"actualisation_backfill"`

	BrandMapping    HierarchicalMapping `yaml:"brand_mapping"`
	CampaignMapping HierarchicalMapping `yaml:"campaign_mapping"`
	CBHTMapping     HierarchicalMapping `yaml:"cbht_mapping"`
	VendorMapping   SimpleMapping       `yaml:"vendor_mapping"`
	ChannelMapping  SimpleMapping       `yaml:"channel_mapping"`

	FXRules FXRules `yaml:"fx_rules"`
}

// MissPolicy decides what an unmatched dimension leaves behind on the
// record.
type MissPolicy string

const (
	// MissBlank leaves the canonical columns empty.
	MissBlank MissPolicy = "blank"

	// MissPlaceholder fills the primary canonical column with the sentinel,
	// so downstream consumers always see a non-null value.
	MissPlaceholder MissPolicy = "placeholder"

	// MissRaw copies the raw value into the primary canonical column.
	MissRaw MissPolicy = "raw"
)

// HierarchicalMapping configures a precedence-based dimension.
type HierarchicalMapping struct {
	// Precedence lists taxonomy key combinations, most specific first.
	Precedence [][]string `yaml:"precedence"`

	// KeyFields maps each taxonomy key column to the record column that
	// supplies its value.
	KeyFields map[string]string `yaml:"key_fields"`

	// Outputs maps taxonomy output columns to destination record columns.
	Outputs map[string]string `yaml:"outputs"`

	// PrimaryOutput is the destination column whose blankness defines
	// "unmapped", and the column the miss policy writes to.
	PrimaryOutput string `yaml:"primary_output"`

	// OnMiss is the policy for unmatched rows.
	OnMiss MissPolicy `yaml:"on_miss"`

	// Placeholder is the sentinel used by the placeholder policy.
	Placeholder string `yaml:"placeholder"`

	// RawFallbackField is the record column copied by the raw policy.
	RawFallbackField string `yaml:"raw_fallback_field"`

	// ConflictHints holds per-brand regex patterns run against the title
	// field; only meaningful on the brand mapping.
	ConflictHints ConflictHints `yaml:"conflict_hints"`
}

// ConflictHints configures title-based brand conflict detection.
type ConflictHints struct {
	// TitleField is the record column the patterns run against.
	TitleField string `yaml:"title_field"`

	// BrandRegex maps a canonical brand to its detection pattern.
	BrandRegex map[string]string `yaml:"brand_regex"`
}

// SimpleMapping configures a single-key dimension.
type SimpleMapping struct {
	// Keys are the alternative lookup keys, tried in order. Each entry maps
	// one taxonomy column to the record column supplying the value.
	Keys []KeyChoice `yaml:"keys"`

	Outputs       map[string]string `yaml:"outputs"`
	PrimaryOutput string            `yaml:"primary_output"`
	OnMiss        MissPolicy        `yaml:"on_miss"`
	Placeholder   string            `yaml:"placeholder"`
}

// KeyChoice is one alternative lookup key.
type KeyChoice struct {
	TaxonomyColumn string `yaml:"taxonomy_column"`
	RecordColumn   string `yaml:"record_column"`
}

// DatePlaceholders fills missing start/end dates. Templates may reference
// {fx_year}.
type DatePlaceholders struct {
	StartColumn    string `yaml:"start_column"`
	EndColumn      string `yaml:"end_column"`
	StartIfMissing string `yaml:"start_if_missing"`
	EndIfMissing   string `yaml:"end_if_missing"`
}

// RegionCheck cross-checks the record's region against the market->region
// map derived from fx_rates.
type RegionCheck struct {
	Enabled      bool   `yaml:"enabled"`
	MarketColumn string `yaml:"market_column"`
	RegionColumn string `yaml:"region_column"`
}

// Actualisation backfills actual spend from planned spend for rows whose
// flight ended long enough ago that blank actuals mean "nobody filled them
// in", not "not yet flown".
type Actualisation struct {
	Enabled          bool                `yaml:"enabled"`
	AgeDaysThreshold int                 `yaml:"age_days_threshold"`
	Scopes           []ActualisationPair `yaml:"scopes"`
}

// ActualisationPair is one actual/planned column pair.
type ActualisationPair struct {
	ActualColumn  string `yaml:"actual_column"`
	PlannedColumn string `yaml:"planned_column"`
}

// FXRules configures conversion and auditing.
type FXRules struct {
	MarketColumn   string `yaml:"market_column"`
	CurrencyColumn string `yaml:"currency_column"`
	YearColumn     string `yaml:"year_column"`

	// RateColumns maps target currency -> fx_rates rate column.
	RateColumns map[string]string `yaml:"rate_columns"`

	// ComputePairs maps target currency -> list of [source, target] column
	// pairs.
	ComputePairs map[string][][]string `yaml:"compute_pairs"`

	Audit FXAudit `yaml:"audit"`
}

// FXAudit configures the reported-vs-computed cross-checks.
type FXAudit struct {
	Enabled        bool       `yaml:"enabled"`
	ToleranceRatio float64    `yaml:"tolerance_ratio"`
	Checks         [][]string `yaml:"checks"`
}

// =============================================================================
// LOADING
// =============================================================================

// Load reads and validates a rules file.
func Load(path string) (*Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}
	return Parse(data)
}

// Parse unmarshals rules from YAML bytes, applies defaults and validates.
func Parse(data []byte) (*Rules, error) {
	var rules Rules
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("failed to parse rules file: %w", err)
	}
	applyDefaults(&rules)
	if err := validate(&rules); err != nil {
		return nil, fmt.Errorf("invalid rules: %w", err)
	}
	return &rules, nil
}

// applyDefaults fills the settings a minimal rules file can omit.
func applyDefaults(r *Rules) {
	if r.ObjectiveColumn == "" {
		r.ObjectiveColumn = "objective"
	}
	if r.ObjectiveFallback == "" {
		r.ObjectiveFallback = "Awareness"
	}
	if r.StatusColumn == "" {
		r.StatusColumn = "status"
	}
	if r.NumericColumnPattern == "" {
		r.NumericColumnPattern = `(?i)(cost|spend|views|impressions|fee|percent|rate|eur|dkk|usd|cpm|vcr|reach|frequency|budget)`
	}
	if r.FXRules.MarketColumn == "" {
		r.FXRules.MarketColumn = "market"
	}
	if r.FXRules.CurrencyColumn == "" {
		r.FXRules.CurrencyColumn = "currency"
	}
	if r.FXRules.YearColumn == "" {
		r.FXRules.YearColumn = "fx_year"
	}
	if r.FXRules.Audit.ToleranceRatio <= 0 {
		r.FXRules.Audit.ToleranceRatio = 0.02
	}
	if r.Actualisation.AgeDaysThreshold <= 0 {
		r.Actualisation.AgeDaysThreshold = 30
	}
	if r.RegionCheck.MarketColumn == "" {
		r.RegionCheck.MarketColumn = "market"
	}
	if r.RegionCheck.RegionColumn == "" {
		r.RegionCheck.RegionColumn = "region"
	}
	if r.DatePlaceholders.StartColumn == "" {
		r.DatePlaceholders.StartColumn = "start_date"
	}
	if r.DatePlaceholders.EndColumn == "" {
		r.DatePlaceholders.EndColumn = "end_date"
	}
	for _, m := range []*HierarchicalMapping{&r.BrandMapping, &r.CampaignMapping, &r.CBHTMapping} {
		if m.OnMiss == "" {
			m.OnMiss = MissBlank
		}
	}
	for _, m := range []*SimpleMapping{&r.VendorMapping, &r.ChannelMapping} {
		if m.OnMiss == "" {
			m.OnMiss = MissBlank
		}
		if m.OnMiss == MissPlaceholder && m.Placeholder == "" {
			m.Placeholder = "_Placeholder"
		}
	}
}

// validate rejects rules that cannot drive a run at all.
func validate(r *Rules) error {
	for name, m := range map[string]*HierarchicalMapping{
		"brand_mapping":    &r.BrandMapping,
		"campaign_mapping": &r.CampaignMapping,
		"cbht_mapping":     &r.CBHTMapping,
	} {
		if len(m.Precedence) == 0 {
			return fmt.Errorf("%s: precedence list is empty", name)
		}
		if m.PrimaryOutput == "" {
			return fmt.Errorf("%s: primary_output is required", name)
		}
		for _, combo := range m.Precedence {
			for _, key := range combo {
				if _, ok := m.KeyFields[key]; !ok {
					return fmt.Errorf("%s: precedence key %q missing from key_fields", name, key)
				}
			}
		}
		switch m.OnMiss {
		case MissBlank, MissPlaceholder, MissRaw:
		default:
			return fmt.Errorf("%s: unknown on_miss policy %q", name, m.OnMiss)
		}
	}

	for name, m := range map[string]*SimpleMapping{
		"vendor_mapping":  &r.VendorMapping,
		"channel_mapping": &r.ChannelMapping,
	} {
		if len(m.Keys) == 0 {
			return fmt.Errorf("%s: no lookup keys configured", name)
		}
		if m.PrimaryOutput == "" {
			return fmt.Errorf("%s: primary_output is required", name)
		}
		switch m.OnMiss {
		case MissBlank, MissPlaceholder:
		default:
			return fmt.Errorf("%s: unknown on_miss policy %q", name, m.OnMiss)
		}
	}

	if len(r.FXRules.RateColumns) == 0 {
		return fmt.Errorf("fx_rules: rate_columns is required")
	}
	for currency, pairs := range r.FXRules.ComputePairs {
		if _, ok := r.FXRules.RateColumns[currency]; !ok {
			return fmt.Errorf("fx_rules: compute_pairs currency %q has no rate column", currency)
		}
		for _, p := range pairs {
			if len(p) != 2 {
				return fmt.Errorf("fx_rules: compute pair %v must name a source and a target column", p)
			}
		}
	}
	for _, c := range r.FXRules.Audit.Checks {
		if len(c) != 2 {
			return fmt.Errorf("fx_rules: audit check %v must name a reported and a computed column", c)
		}
	}

	return nil
}

// ResolveHeaders builds the rename map for one dataset: normalized raw
// header -> canonical column. Canonical names map to themselves so an
// already-canonical extract passes through untouched.
func (r *Rules) ResolveHeaders() map[string]string {
	out := make(map[string]string, len(r.HeaderSynonyms)*2)
	for canonical, spellings := range r.HeaderSynonyms {
		out[record.NormalizeHeader(canonical)] = canonical
		for _, s := range spellings {
			out[record.NormalizeHeader(s)] = canonical
		}
	}
	return out
}
