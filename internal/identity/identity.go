// Package identity defines how uploads and rows are recognised across uploads:
// a content hash for exact duplicates and a row key for reconciliation.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/pkordes/lesson-invoices/backend/internal/domain"
)

// keySeparator joins the date and client parts of a row key.
const keySeparator = "|"

// Hash returns the hex-encoded SHA-256 digest of the raw uploaded bytes.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// RowKey returns the reconciliation identity of a row: its lesson date
// (YYYY-MM-DD, or the raw cell text when the cell is not a date) and its
// client name.
//
// A corrected amount or address for the same lesson keeps the same key, so
// the row shows up as modified rather than removed plus added. Two lessons
// for the same client on the same day collide; the last one wins.
func RowKey(r domain.Row) string {
	date := ""
	if col, ok := r.DateColumn(); ok {
		v := r.Get(col)
		if d, ok := v.Date(); ok {
			date = d.Format(time.DateOnly)
		} else {
			date = v.Text()
		}
	}
	return date + keySeparator + r.ClientName()
}
