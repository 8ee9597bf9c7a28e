package ingest

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/pkordes/lesson-invoices/backend/internal/domain"
)

// Combine merges parsed files into one: columns are unioned in first-seen
// order, every row is projected onto the union (missing cells are null) and
// declared totals are summed. Filenames are joined with ", ".
func Combine(files ...domain.ParsedFile) domain.ParsedFile {
	lists := make([][]string, len(files))
	fnames := make([]string, 0, len(files))
	total := decimal.Zero
	for i, f := range files {
		lists[i] = f.Columns
		fnames = append(fnames, f.Filename)
		total = total.Add(f.TotalAmount)
	}
	cols := domain.UnionColumns(lists...)

	var rows []domain.Row
	for _, f := range files {
		for _, r := range f.Rows {
			rows = append(rows, r.Project(cols))
		}
	}

	return domain.ParsedFile{
		Filename:    strings.Join(fnames, ", "),
		Columns:     cols,
		Rows:        rows,
		TotalAmount: total,
	}
}
