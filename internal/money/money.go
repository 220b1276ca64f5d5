// Package money implements the fixed-point decimal type used for every
// monetary value in the risk daemon. Binary floats never touch money (spec
// invariant) — Money wraps shopspring/decimal, quantized to cents (scale=2)
// at every boundary, with half-up rounding.
package money

import (
	"database/sql/driver"
	"fmt"

	"github.com/shopspring/decimal"
)

// Scale is the fixed number of decimal places money is quantized to.
const Scale = 2

// Money is a cents-quantized decimal amount.
type Money struct {
	d decimal.Decimal
}

// Zero is the additive identity.
var Zero = Money{d: decimal.Zero}

// FromString parses a decimal string, quantizing to cents with half-up
// rounding. This is the only place a string becomes Money: every other
// boundary (wire payloads, persisted state, broker callbacks) must go
// through here.
func FromString(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("money: invalid decimal %q: %w", s, err)
	}
	return Money{d: d.Round(Scale)}, nil
}

// FromFloat builds Money from a float64. Used only at the edge where an
// adapter hands back a float (broker SDKs commonly do); the value is
// quantized immediately and never touched as a float again.
func FromFloat(f float64) Money {
	return Money{d: decimal.NewFromFloat(f).Round(Scale)}
}

// FromCents builds Money from an integer cent count — the most precise
// possible constructor, used in tests and for exact arithmetic checks.
func FromCents(cents int64) Money {
	return Money{d: decimal.New(cents, -int32(Scale))}
}

// FromDecimal wraps an already-computed decimal.Decimal (e.g. an
// intermediate price-times-quantity product), quantizing to cents. This is
// the seam for callers doing decimal arithmetic (prices, tick values) that
// only needs to become Money at the final step.
func FromDecimal(d decimal.Decimal) Money {
	return Money{d: d.Round(Scale)}
}

// Decimal exposes the underlying decimal.Decimal for callers that need to
// compose it into a larger decimal expression before rounding back to
// Money via FromDecimal.
func (m Money) Decimal() decimal.Decimal {
	return m.d
}

// String renders the amount fixed to two decimal places.
func (m Money) String() string {
	return m.d.StringFixed(Scale)
}

// Cents returns the integer number of cents, for exact comparisons.
func (m Money) Cents() int64 {
	return m.d.Shift(Scale).Round(0).IntPart()
}

// Add returns m+other, quantized to cents.
func (m Money) Add(other Money) Money {
	return Money{d: m.d.Add(other.d).Round(Scale)}
}

// Sub returns m-other, quantized to cents.
func (m Money) Sub(other Money) Money {
	return Money{d: m.d.Sub(other.d).Round(Scale)}
}

// Neg returns -m.
func (m Money) Neg() Money {
	return Money{d: m.d.Neg()}
}

// MulInt64 multiplies by an integer quantity (e.g. contract count),
// quantized to cents.
func (m Money) MulInt64(q int64) Money {
	return Money{d: m.d.Mul(decimal.NewFromInt(q)).Round(Scale)}
}

// MulFloat multiplies by a plain scalar (e.g. a tick value), quantized to
// cents. The scalar itself is never persisted or compared as money.
func (m Money) MulFloat(f float64) Money {
	return Money{d: m.d.Mul(decimal.NewFromFloat(f)).Round(Scale)}
}

// Cmp returns -1, 0, or 1 as m is less than, equal to, or greater than
// other, by exact cent comparison (never a tolerance-based float compare).
func (m Money) Cmp(other Money) int {
	return m.d.Cmp(other.d)
}

// LessThanOrEqual reports m <= other.
func (m Money) LessThanOrEqual(other Money) bool {
	return m.Cmp(other) <= 0
}

// GreaterThanOrEqual reports m >= other.
func (m Money) GreaterThanOrEqual(other Money) bool {
	return m.Cmp(other) >= 0
}

// IsZero reports whether the amount is exactly zero.
func (m Money) IsZero() bool {
	return m.d.IsZero()
}

// IsNegative reports whether the amount is strictly less than zero.
func (m Money) IsNegative() bool {
	return m.d.IsNegative()
}

// Sum adds a slice of amounts through Add, quantizing after each term; this
// loses nothing since every term is already cent-quantized.
func Sum(amounts ...Money) Money {
	total := Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}

// MarshalJSON renders Money as a decimal string, per the persisted state
// format (spec §6.3: "decimals as strings to avoid float drift").
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.d.StringFixed(Scale) + `"`), nil
}

// UnmarshalJSON parses a decimal string into Money.
func (m *Money) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	if s == "" || s == "null" {
		*m = Zero
		return nil
	}
	parsed, err := FromString(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Value implements driver.Valuer for GORM/database storage of the audit log.
func (m Money) Value() (driver.Value, error) {
	return m.d.StringFixed(Scale), nil
}

// Scan implements sql.Scanner for GORM/database retrieval.
func (m *Money) Scan(src interface{}) error {
	switch v := src.(type) {
	case string:
		parsed, err := FromString(v)
		if err != nil {
			return err
		}
		*m = parsed
		return nil
	case []byte:
		parsed, err := FromString(string(v))
		if err != nil {
			return err
		}
		*m = parsed
		return nil
	case nil:
		*m = Zero
		return nil
	default:
		return fmt.Errorf("money: unsupported scan source %T", src)
	}
}
