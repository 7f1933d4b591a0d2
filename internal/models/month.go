package models

import (
	"errors"
	"fmt"
	"strconv"
)

// ErrInvalidMonth is returned when a period string is not a valid YYYYMM month
var ErrInvalidMonth = errors.New("invalid month")

// Month is a closing period in YYYYMM form (e.g. "202403")
type Month struct {
	year  int
	month int
}

// ParseMonth parses a YYYYMM string
func ParseMonth(s string) (Month, error) {
	if len(s) != 6 {
		return Month{}, fmt.Errorf("%w: %q must be YYYYMM", ErrInvalidMonth, s)
	}
	// strconv accepts a leading sign
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return Month{}, fmt.Errorf("%w: %q must be six digits", ErrInvalidMonth, s)
		}
	}
	year, err := strconv.Atoi(s[:4])
	if err != nil {
		return Month{}, fmt.Errorf("%w: %q has a non-numeric year", ErrInvalidMonth, s)
	}
	month, err := strconv.Atoi(s[4:])
	if err != nil {
		return Month{}, fmt.Errorf("%w: %q has a non-numeric month", ErrInvalidMonth, s)
	}
	if month < 1 || month > 12 {
		return Month{}, fmt.Errorf("%w: %q month out of range", ErrInvalidMonth, s)
	}
	return Month{year: year, month: month}, nil
}

// MustParseMonth is like ParseMonth but panics on error. Intended for tests and constants.
func MustParseMonth(s string) Month {
	m, err := ParseMonth(s)
	if err != nil {
		panic(err)
	}
	return m
}

// NewMonth builds a Month from a year and a 1-based month number
func NewMonth(year, month int) Month {
	return Month{year: year, month: 1}.AddMonths(month - 1)
}

// Year returns the calendar year
func (m Month) Year() int { return m.year }

// Number returns the 1-based month number
func (m Month) Number() int { return m.month }

// IsZero reports whether the month was never set
func (m Month) IsZero() bool { return m.year == 0 && m.month == 0 }

// AddMonths shifts the month by n (negative n moves backwards)
func (m Month) AddMonths(n int) Month {
	idx := m.year*12 + (m.month - 1) + n
	year := idx / 12
	month := idx%12 + 1
	if idx%12 < 0 {
		year--
		month += 12
	}
	return Month{year: year, month: month}
}

// Prev returns the immediately preceding month; January rolls back to December
func (m Month) Prev() Month {
	return m.AddMonths(-1)
}

// Period returns the month as an integer YYYYMM. Periods order the same way months do.
func (m Month) Period() int64 {
	return int64(m.year*100 + m.month)
}

// Before reports whether m is strictly earlier than other
func (m Month) Before(other Month) bool {
	return m.Period() < other.Period()
}

// String returns the YYYYMM form
func (m Month) String() string {
	return fmt.Sprintf("%04d%02d", m.year, m.month)
}

// MarshalText encodes the month as YYYYMM
func (m Month) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText decodes a YYYYMM month
func (m *Month) UnmarshalText(text []byte) error {
	parsed, err := ParseMonth(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
