package config

import (
	"strings"
	"testing"
)

const minimalRules = `
brand_mapping:
  precedence: [[market, raw_brand, raw_variant], [market, raw_brand], [raw_brand]]
  key_fields: {market: market, raw_brand: raw_brand, raw_variant: raw_variant}
  outputs: {brand_clean: brand_clean}
  primary_output: brand_clean
campaign_mapping:
  precedence: [[market, brand, raw_campaign], [raw_campaign]]
  key_fields: {market: market, brand: brand_clean, raw_campaign: campaign_name}
  outputs: {campaign_clean: campaign_clean}
  primary_output: campaign_clean
  on_miss: raw
  raw_fallback_field: campaign_name
cbht_mapping:
  precedence: [[brand, market, fx_year], [brand, market], [brand]]
  key_fields: {brand: brand_clean, market: market, fx_year: fx_year}
  outputs: {brand_league: cbht_brand_league}
  primary_output: cbht_brand_league
vendor_mapping:
  keys: [{taxonomy_column: raw_vendor, record_column: vendor}]
  outputs: {vendor_clean: vendor_clean}
  primary_output: vendor_clean
  on_miss: placeholder
channel_mapping:
  keys:
    - {taxonomy_column: sub_channel, record_column: sub_channel}
    - {taxonomy_column: channel, record_column: channel}
  outputs: {channel_finance_group: channel_finance_group_clean}
  primary_output: channel_finance_group_clean
fx_rules:
  rate_columns: {eur: fx_to_eur, dkk: fx_to_dkk}
  compute_pairs:
    eur: [[planned_spend_local, planned_spend_eur]]
    dkk: [[planned_spend_local, planned_spend_dkk]]
  audit:
    enabled: true
    checks: [[total_cost_to_client_global, planned_spend_eur]]
`

func TestParseAppliesDefaults(t *testing.T) {
	r, err := Parse([]byte(minimalRules))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if r.FXRules.Audit.ToleranceRatio != 0.02 {
		t.Errorf("tolerance default = %v, want 0.02", r.FXRules.Audit.ToleranceRatio)
	}
	if r.ObjectiveFallback != "Awareness" {
		t.Errorf("objective fallback default = %q", r.ObjectiveFallback)
	}
	if r.StatusColumn != "status" {
		t.Errorf("status column default = %q, want status", r.StatusColumn)
	}
	if r.BrandMapping.OnMiss != MissBlank {
		t.Errorf("brand on_miss default = %q, want blank", r.BrandMapping.OnMiss)
	}
	if r.VendorMapping.OnMiss != MissPlaceholder || r.VendorMapping.Placeholder != "_Placeholder" {
		t.Errorf("vendor placeholder defaults wrong: %q/%q", r.VendorMapping.OnMiss, r.VendorMapping.Placeholder)
	}
	if r.Actualisation.AgeDaysThreshold != 30 {
		t.Errorf("actualisation threshold default = %d", r.Actualisation.AgeDaysThreshold)
	}
}

func TestParseRejectsUnkeyedPrecedence(t *testing.T) {
	broken := strings.Replace(minimalRules,
		"key_fields: {market: market, raw_brand: raw_brand, raw_variant: raw_variant}",
		"key_fields: {market: market}", 1)
	if _, err := Parse([]byte(broken)); err == nil {
		t.Fatalf("precedence key without a field mapping must fail validation")
	}
}

func TestParseRejectsUnknownMissPolicy(t *testing.T) {
	broken := strings.Replace(minimalRules, "on_miss: placeholder", "on_miss: explode", 1)
	if _, err := Parse([]byte(broken)); err == nil {
		t.Fatalf("unknown on_miss policy must fail validation")
	}
}

func TestResolveHeaders(t *testing.T) {
	r, err := Parse([]byte(minimalRules + `
header_synonyms:
  raw_brand: ["Brand"]
  campaign_name: ["Campaign Name", "Campaign"]
  sub_channel: ["Sub-Channel"]
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	m := r.ResolveHeaders()
	cases := map[string]string{
		"brand":         "raw_brand",
		"campaign_name": "campaign_name",
		"campaign":      "campaign_name",
		"sub_channel":   "sub_channel",
	}
	for in, want := range cases {
		if got := m[in]; got != want {
			t.Errorf("ResolveHeaders()[%q] = %q, want %q", in, got, want)
		}
	}
}
