package xlsxio

import (
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/dcanalytics/dcqa/internal/ledger"
	"github.com/dcanalytics/dcqa/internal/record"
)

func TestFindHeaderRow(t *testing.T) {
	rows := [][]string{
		{"Carlsberg Group"},
		{"Exported 2024-07-01"},
		{},
		{"Plan Market", "Brand", "Planned Spend", "Currency"},
		{"DK", "Tuborg", "1500", "DKK"},
	}
	if got := findHeaderRow(rows); got != 3 {
		t.Fatalf("header row = %d, want 3", got)
	}

	// Nothing scores: fall back to the first non-empty row.
	rows = [][]string{{}, {"a", "b"}, {"1", "2"}}
	if got := findHeaderRow(rows); got != 1 {
		t.Fatalf("fallback header row = %d, want 1", got)
	}

	if got := findHeaderRow(nil); got != -1 {
		t.Fatalf("empty sheet header row = %d, want -1", got)
	}
}

func TestDedupeHeaders(t *testing.T) {
	got := dedupeHeaders([]string{"Market", "", "Spend", "Spend", "Spend"})
	want := []string{"Market", "column_2", "Spend", "Spend__2", "Spend__3"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("headers = %v, want %v", got, want)
		}
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "clean.xlsx")

	records := []*record.Record{
		record.FromPairs("market", "DK", "brand", "Tuborg", "planned_spend_eur", 201.0),
		record.FromPairs("market", "DE", "brand", "Carlsberg", "planned_spend_eur", 95.5),
	}
	if err := WriteClean(path, records); err != nil {
		t.Fatalf("WriteClean: %v", err)
	}

	got, err := ReadDataset(path)
	if err != nil {
		t.Fatalf("ReadDataset: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("rows = %d, want 2", len(got))
	}
	if v := got[0].Get("brand").Text(); v != "Tuborg" {
		t.Errorf("brand = %q", v)
	}
	if v := got[1].Get("market").Text(); v != "DE" {
		t.Errorf("market = %q", v)
	}
	n, ok := record.ParseNumber(got[0].Get("planned_spend_eur").Text())
	if !ok || n != 201 {
		t.Errorf("planned_spend_eur read back as %q", got[0].Get("planned_spend_eur").Text())
	}
}

func TestReadSkipsBannerRows(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "extract.xlsx")

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	mustSetRow(t, f, sheet, 1, []interface{}{"Carlsberg Group Media"})
	mustSetRow(t, f, sheet, 2, []interface{}{})
	mustSetRow(t, f, sheet, 3, []interface{}{"Plan Market", "Brand", "Currency"})
	mustSetRow(t, f, sheet, 4, []interface{}{"DK", "Tuborg", "DKK"})
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("save fixture: %v", err)
	}
	f.Close()

	got, err := ReadDataset(path)
	if err != nil {
		t.Fatalf("ReadDataset: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("rows = %d, want 1", len(got))
	}
	if v := got[0].Get("Plan Market").Text(); v != "DK" {
		t.Errorf("Plan Market = %q", v)
	}
}

func TestWriteQA(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "qa.xlsx")

	led := ledger.New()
	led.RecordChange(0, "brand", record.String("tuborg"), record.String("Tuborg"), ledger.ChangeAutomated, "brands_mapping")
	led.RecordException(1, "SE", "brand", ledger.IssueBrandUnmapped, "Mystery", "")

	if err := WriteQA(path, led.Exceptions(), led.Changes()); err != nil {
		t.Fatalf("WriteQA: %v", err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("open QA workbook: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows("Exceptions")
	if err != nil {
		t.Fatalf("read Exceptions: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("exception rows = %d, want header plus one", len(rows))
	}
	if rows[1][3] != "brand_unmapped" {
		t.Errorf("issue cell = %q", rows[1][3])
	}

	rows, err = f.GetRows("MappingDiffs")
	if err != nil {
		t.Fatalf("read MappingDiffs: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("change rows = %d, want header plus one", len(rows))
	}
	if rows[1][6] != "brands_mapping" {
		t.Errorf("rule cell = %q", rows[1][6])
	}
}

func mustSetRow(t *testing.T, f *excelize.File, sheet string, row int, cells []interface{}) {
	t.Helper()
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.SetSheetRow(sheet, cell, &cells); err != nil {
		t.Fatal(err)
	}
}
