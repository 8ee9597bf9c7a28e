package ingest

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/pkordes/lesson-invoices/backend/internal/domain"
)

// KilometersHeader is the column appended to every export.
const KilometersHeader = "Kilometers"

const exportSheet = "Invoices"

// Export writes rows as an .xlsx workbook with one header row followed by
// one line per row. Dates are written as Excel dates; a Kilometers column is
// appended after columns.
func Export(columns []string, rows []domain.Row) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), exportSheet); err != nil {
		return nil, fmt.Errorf("ingest.Export: rename sheet: %w", err)
	}

	header := make([]any, 0, len(columns)+1)
	for _, c := range columns {
		header = append(header, c)
	}
	header = append(header, KilometersHeader)
	if err := f.SetSheetRow(exportSheet, "A1", &header); err != nil {
		return nil, fmt.Errorf("ingest.Export: header: %w", err)
	}

	dateStyle, err := f.NewStyle(&excelize.Style{NumFmt: 14})
	if err != nil {
		return nil, fmt.Errorf("ingest.Export: date style: %w", err)
	}

	for i, r := range rows {
		line := make([]any, 0, len(columns)+1)
		for _, c := range columns {
			line = append(line, cellValue(r.Get(c)))
		}
		if r.Kilometers != nil {
			line = append(line, *r.Kilometers)
		} else {
			line = append(line, nil)
		}

		axis, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, fmt.Errorf("ingest.Export: row %d: %w", i, err)
		}
		if err := f.SetSheetRow(exportSheet, axis, &line); err != nil {
			return nil, fmt.Errorf("ingest.Export: row %d: %w", i, err)
		}
		for j, c := range columns {
			if r.Get(c).Kind() != domain.KindDate {
				continue
			}
			cell, _ := excelize.CoordinatesToCellName(j+1, i+2)
			if err := f.SetCellStyle(exportSheet, cell, cell, dateStyle); err != nil {
				return nil, fmt.Errorf("ingest.Export: style %s: %w", cell, err)
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("ingest.Export: write: %w", err)
	}
	return buf.Bytes(), nil
}

func cellValue(v domain.Value) any {
	switch v.Kind() {
	case domain.KindString:
		s, _ := v.Str()
		return s
	case domain.KindNumber:
		n, _ := v.Number()
		return n
	case domain.KindDate:
		d, _ := v.Date()
		return d
	default:
		return nil
	}
}
