package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
)

// Section names used by both export formats.
var groupSections = []struct {
	name string
	get  func(Result) map[string]int
}{
	{"status", func(r Result) map[string]int { return r.ByStatus }},
	{"priority", func(r Result) map[string]int { return r.ByPriority }},
	{"type", func(r Result) map[string]int { return r.ByType }},
	{"category", func(r Result) map[string]int { return r.ByCategory }},
	{"station", func(r Result) map[string]int { return r.ByStation }},
	{"client", func(r Result) map[string]int { return r.ByClient }},
}

// Rows flattens a Result into section,label,value rows with a header row first.
func Rows(r Result) [][]string {
	rows := [][]string{
		{"Section", "Label", "Value"},
		{"summary", "total", strconv.Itoa(r.Total)},
		{"summary", "resolved", strconv.Itoa(r.Resolved)},
		{"summary", "average_resolution_time_hours", strconv.FormatFloat(r.AverageResolutionTimeHours, 'f', 2, 64)},
		{"summary", "group_by", string(r.GroupBy)},
	}
	for _, section := range groupSections {
		counts := section.get(r)
		for _, label := range sortedKeys(counts) {
			rows = append(rows, []string{section.name, label, strconv.Itoa(counts[label])})
		}
	}
	for _, p := range r.TimeSeries {
		rows = append(rows, []string{"time_series", p.Label, strconv.Itoa(p.Count)})
	}
	return rows
}

// WriteCSV writes the flattened report to w. Cells that a spreadsheet would read as
// a formula are prefixed with a single quote.
func WriteCSV(w io.Writer, r Result) error {
	rows := Rows(r)
	for _, row := range rows {
		for i, cell := range row {
			row[i] = escapeFormula(cell)
		}
	}
	writer := csv.NewWriter(w)
	if err := writer.WriteAll(rows); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

// WritePDF renders a one-table PDF of the report to w.
func WritePDF(w io.Writer, r Result, title string, generatedAt time.Time) error {
	if err := renderPDF(r, title, generatedAt).Output(w); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

func renderPDF(r Result, title string, generatedAt time.Time) *fpdf.Fpdf {
	pdf := fpdf.New("P", "mm", "A4", "")
	// core fonts are cp1252; labels arrive as UTF-8
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle(title, true)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 10, tr(title), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	pdf.CellFormat(0, 6, "Generated "+generatedAt.UTC().Format(time.RFC3339), "", 1, "L", false, 0, "")
	pdf.Ln(4)

	rows := Rows(r)
	widths := []float64{40, 100, 40}

	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetFillColor(230, 230, 230)
	for i, header := range rows[0] {
		pdf.CellFormat(widths[i], 7, header, "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 10)
	for _, row := range rows[1:] {
		for i, cell := range row {
			align := "L"
			if i == len(row)-1 {
				align = "R"
			}
			pdf.CellFormat(widths[i], 6, tr(cell), "1", 0, align, false, 0, "")
		}
		pdf.Ln(-1)
	}
	return pdf
}

func escapeFormula(cell string) string {
	if cell != "" && strings.ContainsRune("=+-@\t\r", rune(cell[0])) {
		return "'" + cell
	}
	return cell
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
