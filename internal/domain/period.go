package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Period identifies a billing cycle as a calendar (year, month) pair.
type Period struct {
	Year  int
	Month time.Month
}

// PeriodOf returns the period containing t, evaluated in t's location.
func PeriodOf(t time.Time) Period {
	return Period{Year: t.Year(), Month: t.Month()}
}

// Valid reports whether p names a real calendar month.
func (p Period) Valid() bool {
	return p.Year >= 1970 && p.Year <= 9999 && p.Month >= time.January && p.Month <= time.December
}

// Start returns the first instant of the period in UTC.
func (p Period) Start() time.Time {
	return time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC)
}

// End returns the first instant after the period in UTC.
func (p Period) End() time.Time {
	return p.Start().AddDate(0, 1, 0)
}

// Next returns the following calendar month.
func (p Period) Next() Period {
	return PeriodOf(p.End())
}

// Before reports whether p is strictly earlier than o.
func (p Period) Before(o Period) bool {
	if p.Year != o.Year {
		return p.Year < o.Year
	}
	return p.Month < o.Month
}

// String formats the period as YYYY-MM.
func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

// Label is the display form used on the student ledger, e.g. "March 2024".
func (p Period) Label() string {
	return fmt.Sprintf("%s %d", p.Month, p.Year)
}

// ParseMonth accepts a month name ("March", "mar") or number ("3", "03").
func ParseMonth(s string) (time.Month, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		if n < 1 || n > 12 {
			return 0, fmt.Errorf("month %d out of range: %w", n, ErrInvalidPeriod)
		}
		return time.Month(n), nil
	}
	lower := strings.ToLower(s)
	for m := time.January; m <= time.December; m++ {
		name := strings.ToLower(m.String())
		if lower == name || (len(lower) == 3 && strings.HasPrefix(name, lower)) {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown month %q: %w", s, ErrInvalidPeriod)
}

// ParsePeriod parses "YYYY-MM".
func ParsePeriod(s string) (Period, error) {
	t, err := time.Parse("2006-01", strings.TrimSpace(s))
	if err != nil {
		return Period{}, fmt.Errorf("period %q: %w", s, ErrInvalidPeriod)
	}
	return PeriodOf(t), nil
}

// AddMonthClamped advances t by one calendar month keeping the day of month,
// clamped to the last day of the target month (Jan 31 -> Feb 28/29).
func AddMonthClamped(t time.Time) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+1, 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	last := first.AddDate(0, 1, -1).Day()
	if d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

type periodJSON struct {
	Year      int    `json:"year"`
	Month     int    `json:"month"`
	MonthName string `json:"month_name"`
}

// MarshalJSON emits both the month number and its display name.
func (p Period) MarshalJSON() ([]byte, error) {
	return json.Marshal(periodJSON{Year: p.Year, Month: int(p.Month), MonthName: p.Month.String()})
}

// UnmarshalJSON accepts {"year": 2024, "month": 3} where month may also be
// a name or numeric string.
func (p *Period) UnmarshalJSON(data []byte) error {
	var raw struct {
		Year  int             `json:"year"`
		Month json.RawMessage `json:"month"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("period: %w", ErrInvalidPeriod)
	}
	var month time.Month
	var n int
	var s string
	switch {
	case json.Unmarshal(raw.Month, &n) == nil:
		if n < 1 || n > 12 {
			return fmt.Errorf("month %d out of range: %w", n, ErrInvalidPeriod)
		}
		month = time.Month(n)
	case json.Unmarshal(raw.Month, &s) == nil:
		m, err := ParseMonth(s)
		if err != nil {
			return err
		}
		month = m
	default:
		return fmt.Errorf("period month missing: %w", ErrInvalidPeriod)
	}
	out := Period{Year: raw.Year, Month: month}
	if !out.Valid() {
		return fmt.Errorf("period %s: %w", out, ErrInvalidPeriod)
	}
	*p = out
	return nil
}
