package repo_test

import (
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/pkordes/lesson-invoices/backend/internal/domain"
	"github.com/pkordes/lesson-invoices/backend/testutil"
)

// newTestTx opens a transaction that is rolled back when the test finishes.
// Requires TEST_DATABASE_URL; TestMain applies the migrations.
func newTestTx(t *testing.T) pgx.Tx {
	t.Helper()
	return testutil.NewTx(t)
}

func lessonRow(day int, client string, amount float64) domain.Row {
	r := domain.NewRow()
	r.Set("Lesson Date", domain.DateValue(time.Date(2024, 1, day, 0, 0, 0, 0, time.UTC)))
	r.Set("Client Name", domain.StringValue(client))
	r.Set("Amount", domain.NumberValue(amount))
	return r
}

// parsedFixture returns a three-lesson January file.
func parsedFixture() domain.ParsedFile {
	return domain.ParsedFile{
		Filename: "jan.xlsx",
		Columns:  []string{"Lesson Date", "Client Name", "Amount"},
		Rows: []domain.Row{
			lessonRow(5, "Alice", 50),
			lessonRow(5, "Bob", 60),
			lessonRow(6, "Alice", 50),
		},
		TotalAmount: decimal.RequireFromString("160.00"),
	}
}
