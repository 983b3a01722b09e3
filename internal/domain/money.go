package domain

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// minorDigits is the number of minor-unit digits (paise, cents) in an amount.
const minorDigits = 2

var maxMinor = decimal.NewFromInt(math.MaxInt64)

// Money is a non-negative amount held in minor currency units.
// It encodes to JSON as a decimal number in major units, so 149950 is 1499.50.
type Money int64

// ParseMoney reads a decimal amount in major units. Digits beyond the minor
// unit are rounded half away from zero.
func ParseMoney(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("amount %q: %w", s, ErrInvalidAmount)
	}
	return moneyFromDecimal(d)
}

func moneyFromDecimal(d decimal.Decimal) (Money, error) {
	if d.IsNegative() {
		return 0, fmt.Errorf("amount %s: %w", d, ErrInvalidAmount)
	}
	minor := d.Shift(minorDigits).Round(0)
	if minor.GreaterThan(maxMinor) {
		return 0, fmt.Errorf("amount %s out of range: %w", d, ErrInvalidAmount)
	}
	return Money(minor.IntPart()), nil
}

// Decimal returns m in major units.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(int64(m), -minorDigits)
}

func (m Money) String() string {
	return m.Decimal().StringFixed(minorDigits)
}

func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalJSON accepts a JSON number or numeric string in major units.
func (m *Money) UnmarshalJSON(b []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(b); err != nil {
		return fmt.Errorf("amount %s: %w", b, ErrInvalidAmount)
	}
	v, err := moneyFromDecimal(d)
	if err != nil {
		return err
	}
	*m = v
	return nil
}
