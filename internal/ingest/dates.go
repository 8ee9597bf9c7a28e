package ingest

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pkordes/lesson-invoices/backend/internal/domain"
)

// excelEpoch is serial day 0. Excel counts 1900 as a leap year, so the
// effective epoch for every date after February 1900 is 1899-12-30.
var excelEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

var (
	dayMonthYear = regexp.MustCompile(`^(\d{1,2})[/-](\d{1,2})[/-](\d{4})$`)
	isoDate      = regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})$`)
)

// SerialToTime converts an Excel serial date to a UTC time. The fractional
// part is the time of day.
func SerialToTime(serial float64) time.Time {
	days := math.Floor(serial)
	frac := serial - days
	t := excelEpoch.AddDate(0, 0, int(days))
	return t.Add(time.Duration(math.Round(frac*86400)) * time.Second)
}

// parseDateCell applies the date policy to one raw cell:
//   - numbers are Excel serials;
//   - D/M/YYYY and D-M-YYYY are day/month/year, never month/day/year;
//   - YYYY-M-D is ISO;
//   - anything else is kept as the raw string.
//
// ok reports whether the result is a date.
func parseDateCell(raw string) (v domain.Value, ok bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return domain.Null(), false
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		if n <= 0 {
			return domain.NumberValue(n), false
		}
		return domain.DateValue(SerialToTime(n)), true
	}
	if m := dayMonthYear.FindStringSubmatch(s); m != nil {
		if t, ok := civilDate(m[3], m[2], m[1]); ok {
			return domain.DateValue(t), true
		}
		return domain.StringValue(s), false
	}
	if m := isoDate.FindStringSubmatch(s); m != nil {
		if t, ok := civilDate(m[1], m[2], m[3]); ok {
			return domain.DateValue(t), true
		}
	}
	return domain.StringValue(s), false
}

// civilDate builds a date and rejects components time.Date would normalise,
// such as 31 April.
func civilDate(year, month, day string) (time.Time, bool) {
	y, err1 := strconv.Atoi(year)
	m, err2 := strconv.Atoi(month)
	d, err3 := strconv.Atoi(day)
	if err1 != nil || err2 != nil || err3 != nil {
		return time.Time{}, false
	}
	if m < 1 || m > 12 || d < 1 {
		return time.Time{}, false
	}
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	if t.Year() != y || int(t.Month()) != m || t.Day() != d {
		return time.Time{}, false
	}
	return t, true
}
