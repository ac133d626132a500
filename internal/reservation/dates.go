package reservation

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	numericLayout = "01/02/2006"
	shortLayout   = "Jan 2, 2006"
)

// Date returns midnight UTC of the given civil date.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// CivilDate drops the clock and zone of t, keeping its calendar day.
func CivilDate(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	y, m, d := t.Date()
	return Date(y, m, d)
}

func DaysBetween(from, to time.Time) int {
	return int(CivilDate(to).Sub(CivilDate(from)).Hours() / 24)
}

// ColumnDate maps a grid column to its calendar date relative to the anchor
// column.
func ColumnDate(anchorDate time.Time, anchorIndex, column int) time.Time {
	return CivilDate(anchorDate).AddDate(0, 0, column-anchorIndex)
}

// NumericDate renders "06/10/2025".
func NumericDate(t time.Time) string {
	return t.Format(numericLayout)
}

// ShortDate renders "Jun 10, 2025", the form used in availability labels.
func ShortDate(t time.Time) string {
	return t.Format(shortLayout)
}

// ParseShortDate accepts "Jun 10, 2025" in any letter case.
func ParseShortDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if len(s) >= 3 {
		s = strings.ToUpper(s[:1]) + strings.ToLower(s[1:3]) + s[3:]
	}
	t, err := time.Parse(shortLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse short date %q: %w", s, err)
	}
	return t, nil
}

// ParseNumericDate accepts mm/dd/yyyy or mm-dd-yyyy. Leading zeros are
// optional; impossible dates such as 02/30/2025 are rejected.
func ParseNumericDate(s string) (time.Time, error) {
	parts := strings.Split(strings.ReplaceAll(strings.TrimSpace(s), "-", "/"), "/")
	if len(parts) != 3 {
		return time.Time{}, fmt.Errorf("date %q: want mm/dd/yyyy", s)
	}
	var n [3]int
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil {
			return time.Time{}, fmt.Errorf("date %q: %w", s, err)
		}
		n[i] = v
	}
	month, day, year := n[0], n[1], n[2]
	if year < 1000 || month < 1 || month > 12 || day < 1 {
		return time.Time{}, fmt.Errorf("date %q: out of range", s)
	}
	t := Date(year, time.Month(month), day)
	if t.Day() != day || int(t.Month()) != month {
		return time.Time{}, fmt.Errorf("date %q: no such day", s)
	}
	return t, nil
}

// ParseCapacity keeps the digits of a rendered capacity. ok is false when
// the text holds no digits.
func ParseCapacity(s string) (int, bool) {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(b.String())
	if err != nil {
		return 0, false
	}
	return n, true
}
