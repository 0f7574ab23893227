package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestFromDecimal_RoundsHalfUp(t *testing.T) {
	assert.Equal(t, Cents(1250), FromDecimal(decimal.RequireFromString("1249.5")))
	assert.Equal(t, Cents(1249), FromDecimal(decimal.RequireFromString("1249.49")))
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "19.99", Cents(1999).String())
	assert.Equal(t, "-5.00 EUR", Cents(-500).Format("eur"))
	assert.Equal(t, "0.07", Cents(7).String())
}
