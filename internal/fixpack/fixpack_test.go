package fixpack

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dcanalytics/dcqa/internal/record"
	"github.com/dcanalytics/dcqa/internal/taxonomy"
)

func brandsTable() *taxonomy.Table {
	t := &taxonomy.Table{Name: "brands", KeyColumns: []string{"market", "raw_brand"}}
	t.AddEntry(record.FromPairs("market", "DK", "raw_brand", "Tuborg", "brand", "Tuborg"))
	return t
}

func TestApplyAppendsReviewedRows(t *testing.T) {
	set := taxonomy.NewSet(brandsTable())

	rows := []*record.Record{
		// New mapping, fully reviewed.
		record.FromPairs("market", "SE", "raw_brand", "Mystery", "brand", "Mystery Brew"),
		// Key already present, case-folded; must not duplicate.
		record.FromPairs("market", "dk", "raw_brand", "tuborg", "brand", "Tuborg"),
		// Reviewer never filled the canonical column.
		record.FromPairs("market", "NO", "raw_brand", "Frydenlund", "brand", ""),
		// Blank key tuple.
		record.FromPairs("market", "", "raw_brand", "", "brand", "Ghost"),
	}

	added, err := Apply(set, "brands", rows)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if added != 1 {
		t.Fatalf("added = %d, want 1", added)
	}

	table, _ := set.Table("brands")
	if len(table.Entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(table.Entries))
	}
	last := table.Entries[len(table.Entries)-1]
	if got := last.Get("brand").Text(); got != "Mystery Brew" {
		t.Errorf("appended brand = %q", got)
	}
}

func TestApplyUnknownTable(t *testing.T) {
	set := taxonomy.NewSet()
	if _, err := Apply(set, "nope", nil); err == nil {
		t.Fatal("unknown table must fail")
	}
}

func TestApplyDir(t *testing.T) {
	dir := t.TempDir()
	todo := "market,raw_brand,brand\nSE,Mystery,Mystery Brew\n"
	if err := os.WriteFile(filepath.Join(dir, "todo_brands.csv"), []byte(todo), 0o644); err != nil {
		t.Fatal(err)
	}

	set := taxonomy.NewSet(brandsTable())
	counts, err := ApplyDir(set, dir)
	if err != nil {
		t.Fatalf("ApplyDir: %v", err)
	}
	if counts["brands"] != 1 {
		t.Fatalf("counts = %v, want brands:1", counts)
	}

	// Worklists for the other dimensions are simply absent.
	if _, ok := counts["vendors"]; ok {
		t.Error("missing worklist must not produce a count")
	}
}
