// Package repo contains all database access logic for the invoice tracker.
// Each resource has its own file with an interface and a Postgres implementation.
// No business logic lives here: only SQL, transactions and type mapping.
package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/pkordes/lesson-invoices/backend/internal/domain"
)

// db is the minimal interface satisfied by *pgxpool.Pool, pgx.Conn, and pgx.Tx.
// Accepting this interface instead of *pgxpool.Pool directly allows integration
// tests to pass a transaction that is rolled back after each test, giving free
// per-test isolation without any manual cleanup.
//
// Begin on a pgx.Tx opens a savepoint, so repo methods that need their own
// transaction still nest correctly inside a test transaction.
type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// scanner is satisfied by both pgx.Row and pgx.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// storedCell is the JSONB encoding of one row attribute. The type tag keeps
// dates and numbers distinct from strings across a round trip.
type storedCell struct {
	Column string          `json:"c"`
	Type   string          `json:"t"`
	Value  json.RawMessage `json:"v,omitempty"`
}

// encodeRow serialises a row's attributes in column order.
func encodeRow(r domain.Row) ([]byte, error) {
	cells := make([]storedCell, 0, r.Len())
	for _, c := range r.Columns() {
		v := r.Get(c)
		cell := storedCell{Column: c, Type: v.Kind().String()}
		var raw any
		switch v.Kind() {
		case domain.KindString:
			raw, _ = v.Str()
		case domain.KindNumber:
			raw, _ = v.Number()
		case domain.KindDate:
			d, _ := v.Date()
			raw = d.Format(time.RFC3339Nano)
		}
		if raw != nil {
			b, err := json.Marshal(raw)
			if err != nil {
				return nil, err
			}
			cell.Value = b
		}
		cells = append(cells, cell)
	}
	return json.Marshal(cells)
}

// decodeRow is the inverse of encodeRow.
func decodeRow(data []byte) (domain.Row, error) {
	var cells []storedCell
	if err := json.Unmarshal(data, &cells); err != nil {
		return domain.Row{}, fmt.Errorf("decode row: %w", err)
	}
	r := domain.NewRow()
	for _, cell := range cells {
		switch domain.ParseValueKind(cell.Type) {
		case domain.KindString:
			var s string
			if err := json.Unmarshal(cell.Value, &s); err != nil {
				return domain.Row{}, fmt.Errorf("decode row: %s: %w", cell.Column, err)
			}
			r.Set(cell.Column, domain.StringValue(s))
		case domain.KindNumber:
			var n float64
			if err := json.Unmarshal(cell.Value, &n); err != nil {
				return domain.Row{}, fmt.Errorf("decode row: %s: %w", cell.Column, err)
			}
			r.Set(cell.Column, domain.NumberValue(n))
		case domain.KindDate:
			var s string
			if err := json.Unmarshal(cell.Value, &s); err != nil {
				return domain.Row{}, fmt.Errorf("decode row: %s: %w", cell.Column, err)
			}
			t, err := time.Parse(time.RFC3339Nano, s)
			if err != nil {
				return domain.Row{}, fmt.Errorf("decode row: %s: %w", cell.Column, err)
			}
			r.Set(cell.Column, domain.DateValue(t))
		default:
			r.Set(cell.Column, domain.Null())
		}
	}
	return r, nil
}
