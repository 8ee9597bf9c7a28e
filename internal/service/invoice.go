package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pkordes/lesson-invoices/backend/internal/domain"
	"github.com/pkordes/lesson-invoices/backend/internal/ingest"
	"github.com/pkordes/lesson-invoices/backend/internal/repo"
)

// Export formats.
const (
	FormatXLSX = "xlsx"
	FormatCSV  = "csv"
)

// RowPage is one page of the filtered combined table.
type RowPage struct {
	Columns []string     `json:"columns"`
	Rows    []domain.Row `json:"rows"`
	Total   int          `json:"total"`
}

// ExportFile is a rendered export ready to be sent to the client.
type ExportFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// InvoiceService serves the combined invoice table and stored files.
type InvoiceService struct {
	repo     repo.InvoiceRepo
	onChange func()
}

// NewInvoiceService constructs an InvoiceService backed by the provided InvoiceRepo.
func NewInvoiceService(r repo.InvoiceRepo) *InvoiceService {
	return &InvoiceService{repo: r}
}

// OnChange registers fn to run after a file is deleted.
func (s *InvoiceService) OnChange(fn func()) {
	s.onChange = fn
}

// Aggregate returns every stored row with unioned columns and the summed total.
func (s *InvoiceService) Aggregate(ctx context.Context) (domain.Aggregate, error) {
	agg, err := s.repo.AllRows(ctx)
	if err != nil {
		return domain.Aggregate{}, fmt.Errorf("service.InvoiceService.Aggregate: %w", err)
	}
	return agg, nil
}

// ListFiles returns every stored file in upload order.
func (s *InvoiceService) ListFiles(ctx context.Context) ([]domain.StoredFile, error) {
	files, err := s.repo.ListFiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("service.InvoiceService.ListFiles: %w", err)
	}
	return files, nil
}

// DeleteFile removes a stored file and its rows.
func (s *InvoiceService) DeleteFile(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("service.InvoiceService.DeleteFile: %w", err)
	}
	if s.onChange != nil {
		s.onChange()
	}
	return nil
}

// ListRows filters and sorts the combined table and returns one page of it.
func (s *InvoiceService) ListRows(ctx context.Context, f domain.RowFilter, p domain.PaginationParams) (RowPage, error) {
	if err := validateFilter(f); err != nil {
		return RowPage{}, fmt.Errorf("service.InvoiceService.ListRows: %w", err)
	}
	agg, err := s.repo.AllRows(ctx)
	if err != nil {
		return RowPage{}, fmt.Errorf("service.InvoiceService.ListRows: %w", err)
	}

	rows := FilterRows(agg.Rows, f)
	start, end := p.Bounds(len(rows))
	return RowPage{Columns: agg.Columns, Total: len(rows), Rows: append([]domain.Row{}, rows[start:end]...)}, nil
}

// Export renders the filtered table as xlsx or csv, with a kilometres column.
func (s *InvoiceService) Export(ctx context.Context, f domain.RowFilter, format string) (ExportFile, error) {
	if err := validateFilter(f); err != nil {
		return ExportFile{}, fmt.Errorf("service.InvoiceService.Export: %w", err)
	}
	agg, err := s.repo.AllRows(ctx)
	if err != nil {
		return ExportFile{}, fmt.Errorf("service.InvoiceService.Export: %w", err)
	}
	rows := FilterRows(agg.Rows, f)
	stamp := time.Now().UTC().Format("20060102")

	switch strings.ToLower(format) {
	case "", FormatXLSX:
		data, err := ingest.Export(agg.Columns, rows)
		if err != nil {
			return ExportFile{}, fmt.Errorf("service.InvoiceService.Export: %w", err)
		}
		return ExportFile{
			Filename:    "invoices-" + stamp + ".xlsx",
			ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
			Data:        data,
		}, nil
	case FormatCSV:
		return ExportFile{
			Filename:    "invoices-" + stamp + ".csv",
			ContentType: "text/csv",
			Data:        exportCSV(agg.Columns, rows),
		}, nil
	default:
		return ExportFile{}, fmt.Errorf("service.InvoiceService.Export: format %q: %w", format, domain.ErrValidation)
	}
}

// exportCSV writes one header line and one record per row. Dates use
// YYYY-MM-DD and the kilometres column is empty when unknown.
func exportCSV(columns []string, rows []domain.Row) []byte {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	//nolint:errcheck // bytes.Buffer.Write never returns an error.
	w.Write(append(append([]string{}, columns...), ingest.KilometersHeader))
	for _, r := range rows {
		rec := make([]string, 0, len(columns)+1)
		for _, c := range columns {
			rec = append(rec, r.Get(c).Text())
		}
		if r.Kilometers != nil {
			rec = append(rec, strconv.FormatFloat(*r.Kilometers, 'f', 1, 64))
		} else {
			rec = append(rec, "")
		}
		//nolint:errcheck
		w.Write(rec)
	}
	w.Flush()
	return buf.Bytes()
}

func validateFilter(f domain.RowFilter) error {
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return fmt.Errorf("date range ends before it starts: %w", domain.ErrValidation)
	}
	return nil
}

// FilterRows applies a RowFilter and returns a new slice. The client filter
// is a case-insensitive substring match. A date range excludes rows without
// a lesson date. Sorting is stable; nulls sort last in either direction.
func FilterRows(rows []domain.Row, f domain.RowFilter) []domain.Row {
	client := strings.ToLower(strings.TrimSpace(f.Client))
	out := make([]domain.Row, 0, len(rows))
	for _, r := range rows {
		if client != "" && !strings.Contains(strings.ToLower(r.ClientName()), client) {
			continue
		}
		if f.From != nil || f.To != nil {
			d, ok := r.LessonDate()
			if !ok {
				continue
			}
			if f.From != nil && d.Before(domain.CalendarDate(*f.From)) {
				continue
			}
			if f.To != nil && d.After(domain.CalendarDate(*f.To)) {
				continue
			}
		}
		out = append(out, r)
	}

	if f.SortBy == "" {
		return out
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := sortValue(out[i], f.SortBy), sortValue(out[j], f.SortBy)
		if a.IsNull() || b.IsNull() {
			return !a.IsNull() && b.IsNull()
		}
		c := compareValues(a, b)
		if f.Desc {
			return c > 0
		}
		return c < 0
	})
	return out
}

// sortValue treats the pseudo-column "kilometers" as the row's distance.
func sortValue(r domain.Row, column string) domain.Value {
	if strings.EqualFold(column, ingest.KilometersHeader) && !r.Has(column) {
		if r.Kilometers == nil {
			return domain.Null()
		}
		return domain.NumberValue(*r.Kilometers)
	}
	return r.Get(column)
}

// compareValues orders two non-null values. Different kinds order by kind,
// strings compare case-insensitively.
func compareValues(a, b domain.Value) int {
	if a.Kind() != b.Kind() {
		return int(a.Kind()) - int(b.Kind())
	}
	switch a.Kind() {
	case domain.KindNumber:
		x, _ := a.Number()
		y, _ := b.Number()
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	case domain.KindDate:
		x, _ := a.Date()
		y, _ := b.Date()
		return x.Compare(y)
	default:
		return strings.Compare(strings.ToLower(a.Text()), strings.ToLower(b.Text()))
	}
}
