// Package reconcile compares a newly parsed spreadsheet against a stored one
// with the same filename.
package reconcile

import (
	"github.com/pkordes/lesson-invoices/backend/internal/domain"
	"github.com/pkordes/lesson-invoices/backend/internal/identity"
)

// Diff classifies incoming rows against existing rows by row key.
//
//   - key only in incoming: added
//   - key only in existing: removed
//   - key in both with any attribute difference: modified
//   - otherwise: unchanged
//
// Rows sharing a key within one side collapse to the last one seen, so
// counts follow key-set arithmetic rather than raw row counts.
// Output slices keep the order of the side they come from.
func Diff(existing, incoming []domain.Row) domain.Diff {
	oldKeys, oldByKey := index(existing)
	newKeys, newByKey := index(incoming)

	d := domain.Diff{
		Added:    []domain.Row{},
		Removed:  []domain.Row{},
		Modified: []domain.ModifiedRow{},
	}
	for _, k := range newKeys {
		nr := newByKey[k]
		or, ok := oldByKey[k]
		switch {
		case !ok:
			d.Added = append(d.Added, nr)
		case !RowsEqual(or, nr):
			d.Modified = append(d.Modified, domain.ModifiedRow{Old: or, New: nr})
		default:
			d.UnchangedCount++
		}
	}
	for _, k := range oldKeys {
		if _, ok := newByKey[k]; !ok {
			d.Removed = append(d.Removed, oldByKey[k])
		}
	}
	return d
}

// index maps rows by key and returns the distinct keys in first-seen order.
func index(rows []domain.Row) ([]string, map[string]domain.Row) {
	byKey := make(map[string]domain.Row, len(rows))
	var keys []string
	for _, r := range rows {
		k := identity.RowKey(r)
		if _, seen := byKey[k]; !seen {
			keys = append(keys, k)
		}
		byKey[k] = r
	}
	return keys, byKey
}

// RowsEqual compares the non-null attributes of two rows. Rows whose sets of
// non-null columns differ are unequal; dates compare by instant.
// Kilometres and persistence ids are not attributes and are ignored.
func RowsEqual(a, b domain.Row) bool {
	an := nonNull(a)
	bn := nonNull(b)
	if len(an) != len(bn) {
		return false
	}
	for _, c := range an {
		if !b.Get(c).Equal(a.Get(c)) {
			return false
		}
	}
	return true
}

func nonNull(r domain.Row) []string {
	var out []string
	for _, c := range r.Columns() {
		if !r.Get(c).IsNull() {
			out = append(out, c)
		}
	}
	return out
}
