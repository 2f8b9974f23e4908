package export

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
)

const (
	sheetSummary      = "Summary"
	sheetRequirements = "Requirements"
	sheetChecks       = "Check Mappings"
	headerFill        = "4472C4"
)

type styles struct {
	header int
	cell   int
}

func newStyles(f *excelize.File) (styles, error) {
	border := []excelize.Border{
		{Type: "left", Color: "000000", Style: 1},
		{Type: "top", Color: "000000", Style: 1},
		{Type: "right", Color: "000000", Style: 1},
		{Type: "bottom", Color: "000000", Style: 1},
	}
	header, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{headerFill}, Pattern: 1},
		Border:    border,
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return styles{}, err
	}
	cell, err := f.NewStyle(&excelize.Style{
		Border:    border,
		Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"},
	})
	if err != nil {
		return styles{}, err
	}
	return styles{header: header, cell: cell}, nil
}

// sheetWriter writes styled rows to one sheet.
type sheetWriter struct {
	f     *excelize.File
	sheet string
	err   error
}

func (w *sheetWriter) set(col, row int, v any, style int) {
	if w.err != nil {
		return
	}
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		w.err = err
		return
	}
	if w.err = w.f.SetCellValue(w.sheet, cell, v); w.err != nil {
		return
	}
	w.err = w.f.SetCellStyle(w.sheet, cell, cell, style)
}

func (w *sheetWriter) widths(widths ...float64) {
	for i, width := range widths {
		if w.err != nil {
			return
		}
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			w.err = err
			return
		}
		w.err = w.f.SetColWidth(w.sheet, col, col, width)
	}
}

// ExportExcel writes the Summary, Requirements and Check Mappings sheets and returns the file path.
func (s *Service) ExportExcel(jobID uuid.UUID, result map[string]any, framework, provider string) (string, error) {
	start := time.Now()
	path := filepath.Join(s.outputDir, FileName(jobID, "xlsx", framework, provider))

	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			s.logger.Warn("xlsx close failed", "error", err)
		}
	}()

	if err := buildWorkbook(f, result); err != nil {
		s.logger.Error("export.xlsx.failed", "job_id", jobID, "error", err)
		return "", fmt.Errorf("build workbook: %w", err)
	}
	if err := f.SaveAs(path); err != nil {
		s.logger.Error("export.xlsx.failed", "job_id", jobID, "path", path, "error", err)
		return "", fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"job_id", jobID,
		"path", path,
		"requirements", len(asSlice(result["Requirements"])),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return path, nil
}

func buildWorkbook(f *excelize.File, result map[string]any) error {
	st, err := newStyles(f)
	if err != nil {
		return err
	}
	if err := f.SetSheetName("Sheet1", sheetSummary); err != nil {
		return err
	}
	for _, name := range []string{sheetRequirements, sheetChecks} {
		if _, err := f.NewSheet(name); err != nil {
			return err
		}
	}
	reqs := asSlice(result["Requirements"])

	// Summary
	sum := &sheetWriter{f: f, sheet: sheetSummary}
	rows := [][2]any{
		{"Framework", str(result["Framework"])},
		{"Name", str(result["Name"])},
		{"Version", str(result["Version"])},
		{"Provider", str(result["Provider"])},
		{"Description", str(result["Description"])},
		{"Total Requirements", fmt.Sprint(len(reqs))},
	}
	for i, r := range rows {
		sum.set(1, i+1, r[0], st.header)
		sum.set(2, i+1, r[1], st.cell)
	}
	sum.widths(20, 60)
	if sum.err != nil {
		return sum.err
	}

	// Requirements
	rw := &sheetWriter{f: f, sheet: sheetRequirements}
	for i, h := range []string{"Control ID", "Name", "Description", "Section", "SubSection", "Service", "Checks"} {
		rw.set(i+1, 1, h, st.header)
	}
	for i, r := range reqs {
		req := asMap(r)
		var attr map[string]any
		if attrs := asSlice(req["Attributes"]); len(attrs) > 0 {
			attr = asMap(attrs[0])
		}
		row := i + 2
		rw.set(1, row, str(req["Id"]), st.cell)
		rw.set(2, row, str(req["Name"]), st.cell)
		rw.set(3, row, str(req["Description"]), st.cell)
		rw.set(4, row, str(attr["Section"]), st.cell)
		rw.set(5, row, str(attr["SubSection"]), st.cell)
		rw.set(6, row, str(attr["Service"]), st.cell)
		rw.set(7, row, strings.Join(strSlice(req["Checks"]), ", "), st.cell)
	}
	rw.widths(15, 40, 50, 25, 25, 15, 50)
	if rw.err != nil {
		return rw.err
	}

	// Check Mappings
	cw := &sheetWriter{f: f, sheet: sheetChecks}
	for i, h := range []string{"Control ID", "Control Name", "Check ID"} {
		cw.set(i+1, 1, h, st.header)
	}
	row := 2
	for _, r := range reqs {
		req := asMap(r)
		for _, check := range strSlice(req["Checks"]) {
			cw.set(1, row, str(req["Id"]), st.cell)
			cw.set(2, row, str(req["Name"]), st.cell)
			cw.set(3, row, check, st.cell)
			row++
		}
	}
	cw.widths(15, 50, 40)
	if cw.err != nil {
		return cw.err
	}

	idx, err := f.GetSheetIndex(sheetSummary)
	if err != nil {
		return err
	}
	f.SetActiveSheet(idx)
	return nil
}

func str(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

func asSlice(v any) []any {
	s, _ := v.([]any)
	return s
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func strSlice(v any) []string {
	var out []string
	for _, e := range asSlice(v) {
		out = append(out, str(e))
	}
	return out
}
