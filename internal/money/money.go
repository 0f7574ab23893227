// Package money represents amounts as integer minor units.
package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Cents is an amount in the currency's minor unit.
type Cents int64

// FromDecimal rounds a minor-unit decimal half away from zero.
func FromDecimal(d decimal.Decimal) Cents {
	return Cents(d.Round(0).IntPart())
}

// Decimal returns c as a minor-unit decimal.
func (c Cents) Decimal() decimal.Decimal {
	return decimal.NewFromInt(int64(c))
}

// Major returns c in major units, e.g. 1999 -> 19.99.
func (c Cents) Major() decimal.Decimal {
	return decimal.New(int64(c), -2)
}

// String formats c with two decimals.
func (c Cents) String() string {
	return c.Major().StringFixed(2)
}

// Format renders c with the ISO currency code, e.g. "19.99 EUR".
func (c Cents) Format(currency string) string {
	return fmt.Sprintf("%s %s", c.String(), strings.ToUpper(currency))
}

// Min returns the smaller of a and b.
func Min(a, b Cents) Cents {
	if a < b {
		return a
	}
	return b
}
