package money

import "fmt"

// Quantity is a non-negative unit count. Arithmetic that would drive it below
// zero fails instead of clamping, so a negative stock count is unrepresentable.
type Quantity int

func NewQuantity(n int) (Quantity, error) {
	if n < 0 {
		return 0, fmt.Errorf("quantity must not be negative, got %d", n)
	}
	return Quantity(n), nil
}

func (q Quantity) Add(other Quantity) Quantity {
	return q + other
}

// Sub returns q - other, failing rather than going negative.
func (q Quantity) Sub(other Quantity) (Quantity, error) {
	if other > q {
		return 0, fmt.Errorf("quantity subtraction %d - %d would be negative", q, other)
	}
	return q - other, nil
}

func (q Quantity) Int() int {
	return int(q)
}

func (q Quantity) IsZero() bool {
	return q == 0
}
