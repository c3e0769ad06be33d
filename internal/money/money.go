// Package money holds the value types used for sale arithmetic: an
// arbitrary-precision currency amount with two-decimal business semantics and
// a non-negative integer quantity. Both reject construction or arithmetic
// that would produce a negative result, so a negative amount can never be
// observed anywhere in the ledger.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Money is a non-negative currency amount. The zero value is 0.00 and is
// valid. Equality and addition are exact; there is no floating-point rounding.
type Money struct {
	amount decimal.Decimal
}

func Zero() Money {
	return Money{}
}

// Parse builds a Money from its decimal string form ("12.50"). Negative
// amounts are rejected.
func Parse(raw string) (Money, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return Money{}, fmt.Errorf("invalid money amount %q: %w", raw, err)
	}
	return FromDecimal(d)
}

func FromDecimal(d decimal.Decimal) (Money, error) {
	if d.IsNegative() {
		return Money{}, fmt.Errorf("money amount must not be negative, got %s", d.String())
	}
	return Money{amount: d.Round(2)}, nil
}

// MustParse is Parse for trusted inputs (seed data, tests). It panics on
// invalid input.
func MustParse(raw string) Money {
	m, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return m
}

func (m Money) Add(other Money) Money {
	return Money{amount: m.amount.Add(other.amount)}
}

// Sub returns m - other, failing rather than going negative.
func (m Money) Sub(other Money) (Money, error) {
	result := m.amount.Sub(other.amount)
	if result.IsNegative() {
		return Money{}, fmt.Errorf("money subtraction %s - %s would be negative", m, other)
	}
	return Money{amount: result}, nil
}

func (m Money) MulQuantity(q Quantity) Money {
	return Money{amount: m.amount.Mul(decimal.NewFromInt(int64(q)))}
}

func (m Money) Equal(other Money) bool {
	return m.amount.Equal(other.amount)
}

func (m Money) LessThan(other Money) bool {
	return m.amount.LessThan(other.amount)
}

func (m Money) IsZero() bool {
	return m.amount.IsZero()
}

func (m Money) Decimal() decimal.Decimal {
	return m.amount
}

func (m Money) String() string {
	return m.amount.StringFixed(2)
}

func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.String() + `"`), nil
}

func (m *Money) UnmarshalJSON(data []byte) error {
	raw := string(data)
	if len(raw) >= 2 && raw[0] == '"' && raw[len(raw)-1] == '"' {
		raw = raw[1 : len(raw)-1]
	}
	parsed, err := Parse(raw)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
