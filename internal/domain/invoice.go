// Package domain contains the core data types for the lesson invoice tracker.
// Apart from uuid and decimal it has no external dependencies and is imported
// by every other internal package.
package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ParsedFile is the ingestor's output for one spreadsheet.
// Columns is the ordered union of every row's columns.
// TotalAmount is the declared total read from the sheet, not a sum of rows.
type ParsedFile struct {
	Filename    string          `json:"filename"`
	Columns     []string        `json:"columns"`
	Rows        []Row           `json:"rows"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

// StoredFile is an uploaded spreadsheet as persisted in the record store.
// Filename and ContentHash are both unique across stored files.
type StoredFile struct {
	ID          uuid.UUID       `json:"id"`
	Filename    string          `json:"filename"`
	ContentHash string          `json:"content_hash"`
	UploadedAt  time.Time       `json:"uploaded_at"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	RowCount    int             `json:"row_count"`
}

// Aggregate is the combined view over every stored file.
type Aggregate struct {
	Files       []StoredFile    `json:"files"`
	Columns     []string        `json:"columns"`
	Rows        []Row           `json:"rows"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

// KilometerUpdate sets the distance of one stored row.
type KilometerUpdate struct {
	RowID      uuid.UUID
	Kilometers float64
}
