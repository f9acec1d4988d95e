package plan

import (
	"fmt"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// Dates outside this range are treated as malformed input.
const (
	minYear = 2000
	maxYear = 2050
)

// Date is a civil calendar day stored as days since 1970-01-01 (UTC).
//
// The zero value means "no date". 1970-01-01 is outside the accepted range,
// so a real date can never collide with it.
type Date int32

const secondsPerDay = 24 * 60 * 60

// DateOf returns the calendar day of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, m, d)
}

// NewDate builds a Date from its components. Out-of-range components are
// normalized the way time.Date normalizes them.
func NewDate(year int, month time.Month, day int) Date {
	u := time.Date(year, month, day, 0, 0, 0, 0, time.UTC).Unix()
	return Date(floorDiv(u, secondsPerDay))
}

// ParseDate parses a strict YYYY-MM-DD string. Years outside 2000..2050 are
// rejected.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if len(s) != len(dateLayout) {
		return 0, fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return 0, fmt.Errorf("invalid date %q: %w", s, err)
	}
	d := DateOf(t)
	if !d.Valid() {
		return 0, fmt.Errorf("date %q out of range %d..%d", s, minYear, maxYear)
	}
	return d, nil
}

// MustParseDate is ParseDate for literals; it panics on bad input.
func MustParseDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func (d Date) IsZero() bool { return d == 0 }

// Valid reports whether d is set and inside the accepted year range.
func (d Date) Valid() bool {
	if d.IsZero() {
		return false
	}
	y := d.Time().Year()
	return y >= minYear && y <= maxYear
}

// Time returns midnight UTC of d.
func (d Date) Time() time.Time { return time.Unix(int64(d)*secondsPerDay, 0).UTC() }

func (d Date) Weekday() time.Weekday { return d.Time().Weekday() }

func (d Date) AddDays(n int) Date { return d + Date(n) }

// Sub returns the number of days from o to d (d - o).
func (d Date) Sub(o Date) int { return int(d - o) }

func (d Date) Before(o Date) bool { return d < o }
func (d Date) After(o Date) bool  { return d > o }

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Time().Format(dateLayout)
}

func (d Date) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Date) UnmarshalText(b []byte) error {
	if len(strings.TrimSpace(string(b))) == 0 {
		*d = 0
		return nil
	}
	v, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

func maxDate(a, b Date) Date {
	if a > b {
		return a
	}
	return b
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
