// =============================================================================
// DC Data Quality - Workbook Reader and Writer
// =============================================================================
//
// This module reads media-plan extracts from XLSX workbooks and writes the
// cleaned output and QA workbooks. Extracts arrive with decorative banner
// rows above the real header, so the reader sniffs for the header row instead
// of assuming row one.
//
// =============================================================================

package xlsxio

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/dcanalytics/dcqa/internal/ledger"
	"github.com/dcanalytics/dcqa/internal/record"
)

// headerSniffRows caps how deep the reader looks for the header row.
const headerSniffRows = 30

// headerKeywords are the words a plausible header row contains. A row
// matching at least two is taken as the header.
var headerKeywords = []string{
	"plan", "market", "brand", "campaign", "start", "end",
	"currency", "vendor", "channel", "spend", "cost",
}

// CleanSheetName is the sheet holding cleaned records in the output workbook.
const CleanSheetName = "fact_media_plan"

// maxSheetName is the XLSX limit on sheet name length.
const maxSheetName = 31

// =============================================================================
// READING
// =============================================================================

// ReadDataset reads the first sheet of a workbook into records.
func ReadDataset(path string) ([]*record.Record, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheetName := f.GetSheetName(0)
	if sheetName == "" {
		return nil, fmt.Errorf("workbook %s has no sheets", path)
	}
	return readSheet(f, sheetName)
}

// ReadSheet reads a named sheet of a workbook into records.
func ReadSheet(path, sheet string) ([]*record.Record, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	return readSheet(f, sheet)
}

func readSheet(f *excelize.File, sheet string) ([]*record.Record, error) {
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}

	headerRow := findHeaderRow(rows)
	if headerRow < 0 {
		return nil, fmt.Errorf("sheet %q has no recognizable header row", sheet)
	}
	headers := dedupeHeaders(rows[headerRow])

	var records []*record.Record
	for i := headerRow + 1; i < len(rows); i++ {
		row := rows[i]
		if isRowEmpty(row) {
			continue
		}
		rec := record.New()
		for j, header := range headers {
			cell := ""
			if j < len(row) {
				cell = strings.TrimSpace(row[j])
			}
			rec.Set(header, record.String(cell))
		}
		records = append(records, rec)
	}
	return records, nil
}

// findHeaderRow scores the leading rows against the header keywords and
// returns the first plausible header. Falls back to the first non-empty row
// when nothing scores.
func findHeaderRow(rows [][]string) int {
	limit := len(rows)
	if limit > headerSniffRows {
		limit = headerSniffRows
	}
	for i := 0; i < limit; i++ {
		score := 0
		for _, cell := range rows[i] {
			normalized := record.NormalizeHeader(cell)
			for _, kw := range headerKeywords {
				if strings.Contains(normalized, kw) {
					score++
					break
				}
			}
		}
		if score >= 2 {
			return i
		}
	}
	for i := 0; i < len(rows); i++ {
		if !isRowEmpty(rows[i]) {
			return i
		}
	}
	return -1
}

// dedupeHeaders trims header cells, names blank ones positionally and
// disambiguates repeats with a numeric suffix.
func dedupeHeaders(row []string) []string {
	seen := make(map[string]int, len(row))
	out := make([]string, len(row))
	for i, cell := range row {
		name := strings.TrimSpace(cell)
		if name == "" {
			name = fmt.Sprintf("column_%d", i+1)
		}
		seen[name]++
		if n := seen[name]; n > 1 {
			name = fmt.Sprintf("%s__%d", name, n)
		}
		out[i] = name
	}
	return out
}

func isRowEmpty(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// =============================================================================
// WRITING
// =============================================================================

// WriteClean writes cleaned records to a workbook. Columns are the union of
// all record columns in first-seen order, so every row has the same shape.
func WriteClean(path string, records []*record.Record) error {
	columns := unionColumns(records)

	f := excelize.NewFile()
	defer f.Close()

	sheet := sheetName(CleanSheetName)
	if err := renameDefaultSheet(f, sheet); err != nil {
		return err
	}

	if err := writeRow(f, sheet, 1, headerCells(columns)); err != nil {
		return err
	}
	for i, rec := range records {
		cells := make([]interface{}, len(columns))
		for j, col := range columns {
			cells[j] = cellValue(rec.Get(col))
		}
		if err := writeRow(f, sheet, i+2, cells); err != nil {
			return err
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return nil
}

// WriteQA writes the exception report and change log to a review workbook.
func WriteQA(path string, exceptions []ledger.ExceptionEntry, changes []ledger.ChangeEntry) error {
	f := excelize.NewFile()
	defer f.Close()

	excSheet := sheetName("Exceptions")
	if err := renameDefaultSheet(f, excSheet); err != nil {
		return err
	}
	excHeaders := []interface{}{"Row", "Market", "Field", "Issue", "Current Value", "Suggested Value", "Priority", "Owner"}
	if err := writeRow(f, excSheet, 1, excHeaders); err != nil {
		return err
	}
	for i, e := range exceptions {
		cells := []interface{}{
			e.RowIndex, e.Market, e.Field, string(e.Issue),
			e.CurrentValue, e.SuggestedValue, string(e.Priority), e.Owner,
		}
		if err := writeRow(f, excSheet, i+2, cells); err != nil {
			return err
		}
	}

	diffSheet := sheetName("MappingDiffs")
	if _, err := f.NewSheet(diffSheet); err != nil {
		return fmt.Errorf("failed to add sheet: %w", err)
	}
	diffHeaders := []interface{}{"Change ID", "Row", "Column", "Old Value", "New Value", "Type", "Rule", "Timestamp"}
	if err := writeRow(f, diffSheet, 1, diffHeaders); err != nil {
		return err
	}
	for i, c := range changes {
		cells := []interface{}{
			c.ID, c.RowIndex, c.Column, c.OldValue.Text(), c.NewValue.Text(),
			string(c.ChangeType), c.Rule, c.Timestamp.Format("2006-01-02 15:04:05"),
		}
		if err := writeRow(f, diffSheet, i+2, cells); err != nil {
			return err
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return nil
}

func renameDefaultSheet(f *excelize.File, name string) error {
	if err := f.SetSheetName(f.GetSheetName(0), name); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}
	return nil
}

func writeRow(f *excelize.File, sheet string, rowNum int, cells []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, rowNum)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &cells); err != nil {
		return fmt.Errorf("failed to write row %d: %w", rowNum, err)
	}
	return nil
}

func unionColumns(records []*record.Record) []string {
	var out []string
	seen := make(map[string]bool)
	for _, rec := range records {
		for _, col := range rec.Columns() {
			if !seen[col] {
				seen[col] = true
				out = append(out, col)
			}
		}
	}
	return out
}

func headerCells(columns []string) []interface{} {
	out := make([]interface{}, len(columns))
	for i, c := range columns {
		out[i] = c
	}
	return out
}

// cellValue maps a Value onto what excelize writes: numbers stay numbers,
// absent cells stay nil so the sheet shows a true blank.
func cellValue(v record.Value) interface{} {
	switch v.Kind {
	case record.KindNumber:
		return v.Num
	case record.KindString:
		return v.Str
	default:
		return nil
	}
}

func sheetName(name string) string {
	if len(name) > maxSheetName {
		return name[:maxSheetName]
	}
	return name
}
