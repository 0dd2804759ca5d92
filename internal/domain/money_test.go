package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMoney_ToDecimal(t *testing.T) {
	m := NewMoney(10_500_000, "EUR") // 10.50 EUR
	d := m.ToDecimal()
	assert.Equal(t, "10.5", d.String())
}

func TestFromDecimal(t *testing.T) {
	d := decimal.NewFromFloat(10.50)
	micros := FromDecimal(d)
	assert.Equal(t, int64(10_500_000), micros)
}

func TestMoney_SplitCommission(t *testing.T) {
	price := NewMoney(20_000_000, "EUR")

	net, cut := price.SplitCommission(decimal.RequireFromString("0.15"))

	assert.Equal(t, int64(17_000_000), net.Amount)
	assert.Equal(t, int64(3_000_000), cut.Amount)
	assert.Equal(t, "EUR", net.Currency)
}

func TestMoney_SplitCommission_RoundsNetDown(t *testing.T) {
	// 0.000007 * (1 - 0.5) = 0.0000035 -> net 3 micros, commission keeps the remainder
	price := NewMoney(7, "EUR")

	net, cut := price.SplitCommission(decimal.RequireFromString("0.5"))

	assert.Equal(t, int64(3), net.Amount)
	assert.Equal(t, int64(4), cut.Amount)
	assert.Equal(t, price.Amount, net.Amount+cut.Amount)
}

func TestMoney_SplitCommission_ZeroRate(t *testing.T) {
	price := NewMoney(12_340_000, "EUR")
	net, cut := price.SplitCommission(decimal.Zero)
	assert.Equal(t, price.Amount, net.Amount)
	assert.Zero(t, cut.Amount)
}

func TestParseAmount(t *testing.T) {
	micros, err := ParseAmount("20.00")
	require.NoError(t, err)
	assert.Equal(t, int64(20_000_000), micros)

	_, err = ParseAmount("twenty")
	require.Error(t, err)
}

func TestMoney_String(t *testing.T) {
	assert.Equal(t, "17.00 EUR", NewMoney(17_000_000, "EUR").String())
}
