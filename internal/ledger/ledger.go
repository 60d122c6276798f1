// =============================================================================
// DC Data Quality - Change & Exception Ledger
// =============================================================================
//
// Every mutation the cleaner makes is written down, and every condition it
// could not resolve is classified and queued for a human. Three books are
// kept per run:
//
//   - Change log:   one entry per field mutation, no-ops suppressed.
//   - Exceptions:   structured data-quality findings with a fixed priority
//                   per issue type. An exception is a business condition,
//                   not a software error.
//   - Todo lists:   per-dimension worklists of unresolved raw values, with
//                   enough context for a reviewer to supply the missing
//                   taxonomy row later.
//
// Exceptions are never deduplicated here. Each row's issue is independently
// reportable; aggregation for human consumption happens in the fix-pack
// export, not in the ledger.
//
// =============================================================================

package ledger

import (
	"time"

	"github.com/google/uuid"

	"github.com/dcanalytics/dcqa/internal/record"
)

// =============================================================================
// ISSUE TYPES & PRIORITIES
// =============================================================================

// IssueType classifies an exception. The vocabulary is closed; downstream
// reports key off these exact strings.
type IssueType string

const (
	IssueInvalidObjective IssueType = "invalid_objective"
	IssueBrandUnmapped    IssueType = "brand_unmapped"
	IssueCampaignUnmapped IssueType = "campaign_unmapped"
	IssueVendorUnmapped   IssueType = "vendor_unmapped"
	IssueChannelUnmapped  IssueType = "channel_unmapped"
	IssueFXMissing        IssueType = "fx_missing"
	IssueCBHTMissing      IssueType = "cbht_missing"
	IssueEURMismatch      IssueType = "eur_mismatch"

	IssueBrandConflictTitle    IssueType = "brand_conflict_with_plan_name"
	IssueRegionMismatch        IssueType = "region_mismatch"
	IssueMarketUnknown         IssueType = "market_unknown"
	IssueStatusDefaulted       IssueType = "status_defaulted"
	IssueFieldDefaulted        IssueType = "field_defaulted"
	IssueDatePlaceholder       IssueType = "date_placeholder_applied"
	IssueMissingActualisation  IssueType = "missing_actualisation"
	IssueDuplicateTaxonomyKey  IssueType = "duplicate_taxonomy_key"
	IssueInvalidRulePattern    IssueType = "invalid_rule_pattern"
)

// Priority is the triage tier of an exception. P1 blocks financial rollups,
// P3 is cosmetic.
type Priority string

const (
	PriorityHigh   Priority = "P1"
	PriorityMedium Priority = "P2"
	PriorityLow    Priority = "P3"
)

// priorityByIssue is the fixed severity table. Missing FX or brand identity
// blocks monetary reporting; missing campaign or channel detail does not.
var priorityByIssue = map[IssueType]Priority{
	IssueFXMissing:        PriorityHigh,
	IssueBrandUnmapped:    PriorityMedium,
	IssueVendorUnmapped:   PriorityMedium,
	IssueCBHTMissing:      PriorityMedium,
	IssueCampaignUnmapped: PriorityLow,
	IssueChannelUnmapped:  PriorityLow,
	IssueInvalidObjective: PriorityLow,
	IssueEURMismatch:      PriorityLow,

	IssueBrandConflictTitle:   PriorityMedium,
	IssueMissingActualisation: PriorityMedium,
	IssueRegionMismatch:       PriorityLow,
	IssueMarketUnknown:        PriorityLow,
	IssueStatusDefaulted:      PriorityLow,
	IssueFieldDefaulted:       PriorityLow,
	IssueDatePlaceholder:      PriorityLow,
	IssueDuplicateTaxonomyKey: PriorityLow,
	IssueInvalidRulePattern:   PriorityLow,
}

// ownerByIssue routes each finding to the team that fixes it.
var ownerByIssue = map[IssueType]string{
	IssueVendorUnmapped:  "Partnerships",
	IssueCBHTMissing:     "Insights",
	IssueStatusDefaulted: "Offshore Ops",
	IssueFieldDefaulted:  "Offshore Ops",
}

const defaultOwner = "Analytics"

// PriorityFor returns the fixed priority of an issue type.
func PriorityFor(issue IssueType) Priority {
	if p, ok := priorityByIssue[issue]; ok {
		return p
	}
	return PriorityLow
}

// OwnerFor returns the owning team for an issue type.
func OwnerFor(issue IssueType) string {
	if o, ok := ownerByIssue[issue]; ok {
		return o
	}
	return defaultOwner
}

// =============================================================================
// ENTRY TYPES
// =============================================================================

// ChangeType distinguishes pipeline mutations from reviewer edits.
type ChangeType string

const (
	ChangeAutomated ChangeType = "automated"
	ChangeManual    ChangeType = "manual"
)

// ChangeEntry records one field mutation on one row.
type ChangeEntry struct {
	ID         string
	RowIndex   int
	Column     string
	OldValue   record.Value
	NewValue   record.Value
	ChangeType ChangeType
	Rule       string
	Timestamp  time.Time
}

// ExceptionEntry is a classified data-quality finding on one row.
type ExceptionEntry struct {
	RowIndex       int
	Market         string
	Field          string
	Issue          IssueType
	CurrentValue   string
	SuggestedValue string
	Priority       Priority
	Owner          string
}

// Dimension names a todo worklist bucket.
type Dimension string

const (
	DimensionBrands    Dimension = "brands"
	DimensionCampaigns Dimension = "campaigns"
	DimensionVendors   Dimension = "vendors"
	DimensionChannels  Dimension = "channels"
	DimensionCBHT      Dimension = "cbht"
)

// Dimensions lists the worklist buckets in report order.
var Dimensions = []Dimension{
	DimensionBrands,
	DimensionCampaigns,
	DimensionVendors,
	DimensionChannels,
	DimensionCBHT,
}

// TodoEntry captures the raw key values of one unresolved lookup. KeyColumns
// preserves the order of the keys; the canonical output columns are left for
// the reviewer to fill.
type TodoEntry struct {
	RowIndex   int
	KeyColumns []string
	Keys       map[string]string
}

// =============================================================================
// LEDGER
// =============================================================================

// Ledger accumulates changes, exceptions and todos for one pipeline run.
// Entries are kept in emission order. Not safe for concurrent use; the
// pipeline is single-threaded per run.
type Ledger struct {
	changes    []ChangeEntry
	exceptions []ExceptionEntry
	todos      map[Dimension][]TodoEntry

	now func() time.Time
}

// New returns an empty ledger.
func New() *Ledger {
	return &Ledger{
		todos: make(map[Dimension][]TodoEntry),
		now:   time.Now,
	}
}

// RecordChange appends a change entry unless the mutation is a no-op. Old
// and new values are compared on a common scalar representation: numbers
// numerically, everything else as strings. Returns true when an entry was
// written.
func (l *Ledger) RecordChange(rowIndex int, column string, oldValue, newValue record.Value, changeType ChangeType, rule string) bool {
	if oldValue.Equal(newValue) {
		return false
	}
	l.changes = append(l.changes, ChangeEntry{
		ID:         uuid.New().String(),
		RowIndex:   rowIndex,
		Column:     column,
		OldValue:   oldValue,
		NewValue:   newValue,
		ChangeType: changeType,
		Rule:       rule,
		Timestamp:  l.now(),
	})
	return true
}

// RecordException appends one exception. Priority and owner derive from the
// issue type, never from the caller.
func (l *Ledger) RecordException(rowIndex int, market, field string, issue IssueType, current, suggested string) {
	l.exceptions = append(l.exceptions, ExceptionEntry{
		RowIndex:       rowIndex,
		Market:         market,
		Field:          field,
		Issue:          issue,
		CurrentValue:   current,
		SuggestedValue: suggested,
		Priority:       PriorityFor(issue),
		Owner:          OwnerFor(issue),
	})
}

// RecordTodo appends an unresolved raw key tuple to a dimension's worklist.
func (l *Ledger) RecordTodo(dim Dimension, rowIndex int, keyColumns []string, keys map[string]string) {
	cols := make([]string, len(keyColumns))
	copy(cols, keyColumns)
	kv := make(map[string]string, len(keys))
	for k, v := range keys {
		kv[k] = v
	}
	l.todos[dim] = append(l.todos[dim], TodoEntry{
		RowIndex:   rowIndex,
		KeyColumns: cols,
		Keys:       kv,
	})
}

// Changes returns the change log in emission order.
func (l *Ledger) Changes() []ChangeEntry {
	return l.changes
}

// Exceptions returns the exception report in emission order.
func (l *Ledger) Exceptions() []ExceptionEntry {
	return l.exceptions
}

// Todos returns the worklist for one dimension.
func (l *Ledger) Todos(dim Dimension) []TodoEntry {
	return l.todos[dim]
}

// AllTodos returns a copy of every worklist keyed by dimension. Mutating the
// returned map leaves the ledger untouched.
func (l *Ledger) AllTodos() map[Dimension][]TodoEntry {
	out := make(map[Dimension][]TodoEntry, len(l.todos))
	for dim, entries := range l.todos {
		out[dim] = append([]TodoEntry(nil), entries...)
	}
	return out
}

// MergeTodos folds src worklists into dst, preserving entry order within each
// dimension. Used to combine the worklists of several runs into one set of
// review files.
func MergeTodos(dst, src map[Dimension][]TodoEntry) map[Dimension][]TodoEntry {
	if dst == nil {
		dst = make(map[Dimension][]TodoEntry, len(src))
	}
	for dim, entries := range src {
		dst[dim] = append(dst[dim], entries...)
	}
	return dst
}
