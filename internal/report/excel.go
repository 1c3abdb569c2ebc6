package report

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/xuri/excelize/v2"

	"okucheck/internal/contract"
)

const (
	sheetNameFormat    = "Run_%s"
	sheetTimeFormat    = "2006-01-02_15-04-05"
	defaultSheet       = "Sheet1"
	defaultColumnWidth = 14
	wideColumnWidth    = 48

	fillPattern   = "pattern"
	errorBgColor  = "FF5900"
	slowBgColor   = "FFEB9C"
	headerBgColor = "D9E1F2"

	// slowCaseThreshold marks passing cases slower than this
	slowCaseThreshold = 300 * time.Millisecond
)

var excelHeaders = []string{
	"Step", "Name", "Method", "Path", "Expected", "Status",
	"Outcome", "Failure Kind", "Message", "Duration (ms)", "Fingerprint", "Curl",
}

// wideColumns hold free text.
var wideColumns = map[int]bool{2: true, 4: true, 9: true, 12: true}

// WriteExcel appends r as a new sheet to the workbook at path, creating it if needed.
func WriteExcel(path string, r *contract.RunReport) error {
	f, created, err := openWorkbook(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	sheet := fmt.Sprintf(sheetNameFormat, r.StartedAt.Format(sheetTimeFormat))
	if idx, _ := f.GetSheetIndex(sheet); idx >= 0 {
		sheet = fmt.Sprintf("%s_%d", sheet, len(f.GetSheetList()))
	}
	index, err := f.NewSheet(sheet)
	if err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if created {
		if err := f.DeleteSheet(defaultSheet); err != nil {
			return fmt.Errorf("failed to remove default sheet: %w", err)
		}
	}

	styles, err := newExcelStyles(f)
	if err != nil {
		return err
	}

	if err := writeHeader(f, sheet, styles.header); err != nil {
		return err
	}
	for i, tc := range r.Cases {
		if err := writeCase(f, sheet, i+2, tc, styles); err != nil {
			return err
		}
	}
	if err := writeExcelSummary(f, sheet, len(r.Cases)+3, r); err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create report directory: %w", err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return nil
}

func openWorkbook(path string) (*excelize.File, bool, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return excelize.NewFile(), true, nil
		}
		return nil, false, fmt.Errorf("failed to stat workbook: %w", err)
	}
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, false, fmt.Errorf("failed to open workbook: %w", err)
	}
	return f, false, nil
}

type excelStyles struct {
	header, failed, slow int
}

func newExcelStyles(f *excelize.File) (excelStyles, error) {
	var s excelStyles
	var err error
	if s.header, err = f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: fillPattern, Pattern: 1, Color: []string{headerBgColor}},
	}); err != nil {
		return s, fmt.Errorf("failed to create header style: %w", err)
	}
	if s.failed, err = f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: fillPattern, Pattern: 1, Color: []string{errorBgColor}},
	}); err != nil {
		return s, fmt.Errorf("failed to create failure style: %w", err)
	}
	if s.slow, err = f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: fillPattern, Pattern: 1, Color: []string{slowBgColor}},
	}); err != nil {
		return s, fmt.Errorf("failed to create slow style: %w", err)
	}
	return s, nil
}

func writeHeader(f *excelize.File, sheet string, style int) error {
	for i, header := range excelHeaders {
		col := i + 1
		name, err := excelize.ColumnNumberToName(col)
		if err != nil {
			return err
		}
		width := float64(defaultColumnWidth)
		if wideColumns[col] {
			width = wideColumnWidth
		}
		if err := f.SetColWidth(sheet, name, name, width); err != nil {
			return fmt.Errorf("failed to set column width: %w", err)
		}
		if err := f.SetCellValue(sheet, name+"1", header); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
	}
	last, _ := excelize.ColumnNumberToName(len(excelHeaders))
	return f.SetCellStyle(sheet, "A1", last+"1", style)
}

func writeCase(f *excelize.File, sheet string, row int, tc *contract.TestCase, styles excelStyles) error {
	cells := []any{
		tc.Step,
		tc.Name,
		tc.Method,
		tc.Path,
		joinStatus(tc.ExpectedStatus),
		tc.StatusCode,
		string(tc.Outcome),
		string(tc.FailureKind),
		tc.Message,
		tc.DurationMS,
		tc.Fingerprint,
		tc.Curl,
	}
	for i, v := range cells {
		cell, err := excelize.CoordinatesToCellName(i+1, row)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return fmt.Errorf("failed to write case %q: %w", tc.Name, err)
		}
	}

	style := -1
	switch {
	case !tc.Passed():
		style = styles.failed
	case tc.Duration > slowCaseThreshold:
		style = styles.slow
	}
	if style < 0 {
		return nil
	}
	first, _ := excelize.CoordinatesToCellName(1, row)
	last, _ := excelize.CoordinatesToCellName(len(cells), row)
	return f.SetCellStyle(sheet, first, last, style)
}

func writeExcelSummary(f *excelize.File, sheet string, row int, r *contract.RunReport) error {
	rows := [][2]any{
		{"Run ID", r.RunID},
		{"Target", r.BaseURL},
		{"Suite", r.Suite},
		{"Started", r.StartedAt.Format(time.RFC3339)},
		{"Duration (ms)", r.DurationMS},
		{"Total", r.Total},
		{"Passed", r.Passed},
		{"Failed", r.Failed},
		{"Success Rate", fmt.Sprintf("%.1f%%", r.SuccessRate)},
	}
	for i, kv := range rows {
		if err := f.SetCellValue(sheet, fmt.Sprintf("A%d", row+i), kv[0]); err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, fmt.Sprintf("B%d", row+i), kv[1]); err != nil {
			return err
		}
	}
	return nil
}

func joinStatus(codes []int) string {
	out := ""
	for i, c := range codes {
		if i > 0 {
			out += " / "
		}
		out += fmt.Sprint(c)
	}
	return out
}
