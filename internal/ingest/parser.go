// Package ingest reads invoice spreadsheets into domain.ParsedFile values and
// writes displayed row sets back out as spreadsheets.
package ingest

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/pkordes/lesson-invoices/backend/internal/domain"
)

// DefaultTotalCell is the merged cell holding the invoice's declared total.
const DefaultTotalCell = "G2"

// Header search window, as 0-based row indexes. Row 10 (index 9) is where
// the invoice template puts its header, so it is checked first.
const (
	headerFirst     = 4
	headerLast      = 14
	headerPreferred = 9
)

var headerMarkers = []string{"lesson date", "client name"}

// Parser turns uploaded workbook bytes into a ParsedFile.
type Parser struct {
	totalCell string
}

// NewParser returns a Parser reading the declared total from totalCell
// (e.g. "G2"). An empty totalCell uses DefaultTotalCell.
func NewParser(totalCell string) *Parser {
	if totalCell == "" {
		totalCell = DefaultTotalCell
	}
	return &Parser{totalCell: totalCell}
}

// Parse reads the first worksheet of an .xlsx workbook.
// Returns an error wrapping domain.ErrParse when the bytes are not a workbook
// or no header row is found in rows 5–15.
func (p *Parser) Parse(filename string, data []byte) (domain.ParsedFile, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return domain.ParsedFile{}, fmt.Errorf("ingest.Parser.Parse: %s: %w: not an xlsx workbook", filename, domain.ErrParse)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return domain.ParsedFile{}, fmt.Errorf("ingest.Parser.Parse: %s: %w: workbook has no sheets", filename, domain.ErrParse)
	}
	sheet := sheets[0]

	grid, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return domain.ParsedFile{}, fmt.Errorf("ingest.Parser.Parse: %s: %w: %v", filename, domain.ErrParse, err)
	}

	headerIdx, ok := findHeaderRow(grid)
	if !ok {
		return domain.ParsedFile{}, fmt.Errorf("ingest.Parser.Parse: %s: %w: no header row containing \"Lesson Date\" or \"Client Name\" in rows 5-15", filename, domain.ErrParse)
	}

	cols := headerColumns(grid[headerIdx])
	dateCol, _ := domain.DateColumn(names(cols))

	var rows []domain.Row
	for _, cells := range grid[headerIdx+1:] {
		if r, ok := buildRow(cells, cols, dateCol); ok {
			rows = append(rows, r)
		}
	}

	return domain.ParsedFile{
		Filename:    filename,
		Columns:     names(cols),
		Rows:        rows,
		TotalAmount: ParseCurrency(p.totalValue(f, sheet)),
	}, nil
}

// column is a header cell and its position in the sheet row.
type column struct {
	index int
	name  string
}

func names(cols []column) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.name
	}
	return out
}

// findHeaderRow returns the index of the header row. Index 9 is tried first,
// then 4 through 14 in order.
func findHeaderRow(grid [][]string) (int, bool) {
	candidates := []int{headerPreferred}
	for i := headerFirst; i <= headerLast; i++ {
		if i != headerPreferred {
			candidates = append(candidates, i)
		}
	}
	for _, i := range candidates {
		if i < len(grid) && isHeaderRow(grid[i]) {
			return i, true
		}
	}
	return 0, false
}

func isHeaderRow(cells []string) bool {
	for _, c := range cells {
		l := strings.ToLower(c)
		for _, m := range headerMarkers {
			if strings.Contains(l, m) {
				return true
			}
		}
	}
	return false
}

// headerColumns keeps the non-empty header cells, trimmed, with their sheet
// positions so data cells can be matched by index.
func headerColumns(cells []string) []column {
	var cols []column
	for i, c := range cells {
		if name := strings.TrimSpace(c); name != "" {
			cols = append(cols, column{index: i, name: name})
		}
	}
	return cols
}

// buildRow converts one sheet row. A row is kept only when its first column
// holds a date and does not mention "total", and at least one cell has a value.
func buildRow(cells []string, cols []column, dateCol string) (domain.Row, bool) {
	if len(cols) == 0 {
		return domain.Row{}, false
	}
	first := cellAt(cells, cols[0].index)
	if strings.Contains(strings.ToLower(first), "total") {
		return domain.Row{}, false
	}
	if _, ok := parseDateCell(first); !ok {
		return domain.Row{}, false
	}

	r := domain.NewRow()
	nonEmpty := false
	for i, c := range cols {
		raw := cellAt(cells, c.index)
		var v domain.Value
		if i == 0 || c.name == dateCol {
			v, _ = parseDateCell(raw)
		} else {
			v = parseCell(raw)
		}
		if !v.IsEmpty() {
			nonEmpty = true
		}
		r.Set(c.name, v)
	}
	return r, nonEmpty
}

func cellAt(cells []string, i int) string {
	if i < len(cells) {
		return cells[i]
	}
	return ""
}

// parseCell types a non-date cell: numbers become numbers, blanks become null.
func parseCell(raw string) domain.Value {
	s := strings.TrimSpace(raw)
	if s == "" {
		return domain.Null()
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return domain.NumberValue(n)
	}
	return domain.StringValue(s)
}

// totalValue reads the declared-total cell. When the cell is part of a merged
// range the range's top-left value is used.
func (p *Parser) totalValue(f *excelize.File, sheet string) string {
	cell := p.totalCell
	if merged, err := f.GetMergeCells(sheet); err == nil {
		for _, mc := range merged {
			if inRange(cell, mc.GetStartAxis(), mc.GetEndAxis()) {
				cell = mc.GetStartAxis()
				break
			}
		}
	}
	v, err := f.GetCellValue(sheet, cell, excelize.Options{RawCellValue: true})
	if err != nil {
		return ""
	}
	return v
}

func inRange(cell, start, end string) bool {
	c, r, err := excelize.CellNameToCoordinates(cell)
	if err != nil {
		return false
	}
	c1, r1, err := excelize.CellNameToCoordinates(start)
	if err != nil {
		return false
	}
	c2, r2, err := excelize.CellNameToCoordinates(end)
	if err != nil {
		return false
	}
	return c >= c1 && c <= c2 && r >= r1 && r <= r2
}
