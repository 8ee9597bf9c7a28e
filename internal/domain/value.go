package domain

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// ValueKind identifies which variant a Value holds.
type ValueKind uint8

const (
	KindNull ValueKind = iota
	KindString
	KindNumber
	KindDate
)

// String returns the lowercase name used in the stored row encoding.
func (k ValueKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindDate:
		return "date"
	default:
		return "null"
	}
}

// ParseValueKind is the inverse of ValueKind.String. Unknown names map to KindNull.
func ParseValueKind(s string) ValueKind {
	switch s {
	case "string":
		return KindString
	case "number":
		return KindNumber
	case "date":
		return KindDate
	default:
		return KindNull
	}
}

// Value is a single spreadsheet cell: null, string, number or date.
// The zero Value is null.
type Value struct {
	kind ValueKind
	str  string
	num  float64
	date time.Time
}

// Null returns the null Value.
func Null() Value { return Value{} }

// StringValue wraps s. Callers wanting empty strings treated as null should
// check for "" first; StringValue keeps whatever it is given.
func StringValue(s string) Value { return Value{kind: KindString, str: s} }

// NumberValue wraps n.
func NumberValue(n float64) Value { return Value{kind: KindNumber, num: n} }

// DateValue wraps t, normalised to UTC.
func DateValue(t time.Time) Value { return Value{kind: KindDate, date: t.UTC()} }

// Kind reports the variant held by v.
func (v Value) Kind() ValueKind { return v.kind }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// IsEmpty reports whether v is null or a blank string.
func (v Value) IsEmpty() bool {
	switch v.kind {
	case KindNull:
		return true
	case KindString:
		return strings.TrimSpace(v.str) == ""
	default:
		return false
	}
}

// Str returns the string payload and whether v is a string.
func (v Value) Str() (string, bool) { return v.str, v.kind == KindString }

// Number returns the numeric payload and whether v is a number.
func (v Value) Number() (float64, bool) { return v.num, v.kind == KindNumber }

// Date returns the date payload and whether v is a date.
func (v Value) Date() (time.Time, bool) { return v.date, v.kind == KindDate }

// Text renders v for display and CSV export. Dates render as 2006-01-02.
func (v Value) Text() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindDate:
		return v.date.Format(time.DateOnly)
	default:
		return ""
	}
}

// Equal compares two values. Dates compare by instant, not by string form.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.str == o.str
	case KindNumber:
		return v.num == o.num
	case KindDate:
		return v.date.Equal(o.date)
	default:
		return true
	}
}

// MarshalJSON emits plain JSON: strings, numbers, null, and dates as RFC 3339.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.str)
	case KindNumber:
		return json.Marshal(v.num)
	case KindDate:
		return json.Marshal(v.date.Format(time.RFC3339))
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON accepts plain JSON. Strings that are RFC 3339 timestamps
// become dates; everything else keeps its JSON type.
func (v *Value) UnmarshalJSON(b []byte) error {
	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	switch x := raw.(type) {
	case nil:
		*v = Null()
	case float64:
		*v = NumberValue(x)
	case string:
		if t, err := time.Parse(time.RFC3339, x); err == nil {
			*v = DateValue(t)
			return nil
		}
		*v = StringValue(x)
	default:
		*v = StringValue(string(b))
	}
	return nil
}
