package domain

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Row is one invoice line: an ordered bag of column → Value.
// Column sets vary per uploaded file, so attributes are not fixed fields.
//
// ID and FileID are uuid.Nil until the row has been stored.
// Kilometers is nil until a route distance has been computed.
type Row struct {
	ID         uuid.UUID
	FileID     uuid.UUID
	Kilometers *float64

	names  []string
	values map[string]Value
}

// NewRow returns an empty row.
func NewRow() Row {
	return Row{values: map[string]Value{}}
}

// Set assigns v to column name, appending name to the column order when new.
func (r *Row) Set(name string, v Value) {
	if r.values == nil {
		r.values = map[string]Value{}
	}
	if _, ok := r.values[name]; !ok {
		r.names = append(r.names, name)
	}
	r.values[name] = v
}

// Get returns the value of column name, or null when the row lacks it.
func (r Row) Get(name string) Value {
	return r.values[name]
}

// Has reports whether the row carries column name (even as null).
func (r Row) Has(name string) bool {
	_, ok := r.values[name]
	return ok
}

// Columns returns the row's column names in insertion order.
func (r Row) Columns() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Len returns the number of columns the row carries.
func (r Row) Len() int { return len(r.names) }

// Persisted reports whether the row has been stored.
func (r Row) Persisted() bool { return r.ID != uuid.Nil }

// Project returns a copy of r carrying exactly columns, in that order.
// Columns the row lacks become null.
func (r Row) Project(columns []string) Row {
	out := Row{ID: r.ID, FileID: r.FileID, Kilometers: r.Kilometers, values: make(map[string]Value, len(columns))}
	for _, c := range columns {
		out.Set(c, r.Get(c))
	}
	return out
}

// Clone returns a deep copy of r that can be mutated independently.
func (r Row) Clone() Row {
	out := r.Project(r.names)
	if r.Kilometers != nil {
		km := *r.Kilometers
		out.Kilometers = &km
	}
	return out
}

// DateColumn returns the name of the row's lesson-date column.
func (r Row) DateColumn() (string, bool) { return DateColumn(r.names) }

// ClientColumn returns the name of the row's client-name column.
func (r Row) ClientColumn() (string, bool) { return ClientColumn(r.names) }

// LessonDate returns the calendar date of the row's date column, truncated
// to midnight UTC. ok is false when there is no date column or its value is
// not a date.
func (r Row) LessonDate() (time.Time, bool) {
	col, ok := r.DateColumn()
	if !ok {
		return time.Time{}, false
	}
	d, ok := r.Get(col).Date()
	if !ok {
		return time.Time{}, false
	}
	return CalendarDate(d), true
}

// ClientName returns the trimmed client name, or "" when absent.
func (r Row) ClientName() string {
	col, ok := r.ClientColumn()
	if !ok {
		return ""
	}
	return strings.TrimSpace(r.Get(col).Text())
}

// KilometersOrZero returns the stored distance, or 0 when none is set.
func (r Row) KilometersOrZero() float64 {
	if r.Kilometers == nil {
		return 0
	}
	return *r.Kilometers
}

// MarshalJSON writes the row as
// {"id":..., "file_id":..., "kilometers":..., "values":{...}} with values in
// column order.
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	if r.Persisted() {
		buf.WriteString(`"id":"` + r.ID.String() + `","file_id":"` + r.FileID.String() + `",`)
	}
	buf.WriteString(`"kilometers":`)
	km, err := json.Marshal(r.Kilometers)
	if err != nil {
		return nil, err
	}
	buf.Write(km)
	buf.WriteString(`,"values":{`)
	for i, name := range r.names {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(r.values[name])
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteString("}}")
	return buf.Bytes(), nil
}

// DateColumn returns the first column whose name contains "date" but not
// "time" (case-insensitive).
func DateColumn(columns []string) (string, bool) {
	for _, c := range columns {
		l := strings.ToLower(c)
		if strings.Contains(l, "date") && !strings.Contains(l, "time") {
			return c, true
		}
	}
	return "", false
}

// ClientColumn returns the first column whose name contains "client"
// (case-insensitive).
func ClientColumn(columns []string) (string, bool) {
	for _, c := range columns {
		if strings.Contains(strings.ToLower(c), "client") {
			return c, true
		}
	}
	return "", false
}

// CalendarDate drops the time of day from t, keeping its year, month and day.
func CalendarDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// UnionColumns merges column lists, keeping first-seen order.
func UnionColumns(lists ...[]string) []string {
	seen := map[string]bool{}
	var out []string
	for _, l := range lists {
		for _, c := range l {
			if !seen[c] {
				seen[c] = true
				out = append(out, c)
			}
		}
	}
	return out
}
