package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// MicrosPerUnit is the number of micros in one currency unit.
const MicrosPerUnit int64 = 1_000_000

// Money represents a monetary value in a specific currency.
// Amount is stored as BIGINT micros (10^-6) to avoid floating point errors.
type Money struct {
	Amount   int64  // micros
	Currency string // ISO 4217
}

// NewMoney creates a new Money instance from micros.
func NewMoney(amount int64, currency string) Money {
	return Money{
		Amount:   amount,
		Currency: currency,
	}
}

// ToDecimal converts the int64 micros to a shopspring/decimal.Decimal.
func (m Money) ToDecimal() decimal.Decimal {
	return decimal.NewFromInt(m.Amount).Div(decimal.NewFromInt(MicrosPerUnit))
}

// FromDecimal converts a decimal.Decimal to int64 micros, truncating sub-micro digits.
func FromDecimal(d decimal.Decimal) int64 {
	return d.Mul(decimal.NewFromInt(MicrosPerUnit)).IntPart()
}

// Multiply returns a new Money instance multiplied by a factor.
// It uses shopspring/decimal for precision and rounds down.
func (m Money) Multiply(factor decimal.Decimal) Money {
	return Money{
		Amount:   FromDecimal(m.ToDecimal().Mul(factor)),
		Currency: m.Currency,
	}
}

// SplitCommission divides m into the payee's net share and the platform's cut.
// The net share is rounded down to the micro; the commission takes the
// remainder so net + commission == m exactly.
func (m Money) SplitCommission(rate decimal.Decimal) (net Money, commission Money) {
	net = m.Multiply(decimal.NewFromInt(1).Sub(rate))
	commission = Money{Amount: m.Amount - net.Amount, Currency: m.Currency}
	return net, commission
}

// ParseAmount parses a decimal string such as "20.00" into micros.
func ParseAmount(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return FromDecimal(d), nil
}

// String returns the string representation of the money.
func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.ToDecimal().StringFixed(2), m.Currency)
}
