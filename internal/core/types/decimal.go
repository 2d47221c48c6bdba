// Package types provides common type aliases and utilities.
package types

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Money represents a monetary value with full precision.
// Uses decimal.Decimal to avoid floating-point errors.
type Money = decimal.Decimal

// Quantity is a stock quantity. Batch quantities are always in the item base unit.
type Quantity = decimal.Decimal

// Rounding places. They match the NUMERIC scales of the schema.
const (
	QuantityPlaces int32 = 8
	RatePlaces     int32 = 6
	MoneyPlaces    int32 = 2
)

var hundred = decimal.NewFromInt(100)

// ParseDecimal parses a decimal string. Empty input yields zero.
func ParseDecimal(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

// MustDecimal parses a decimal string and panics on error.
// Use only for constants and tests.
func MustDecimal(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// RoundQty rounds a quantity to QuantityPlaces.
func RoundQty(q Quantity) Quantity { return q.Round(QuantityPlaces) }

// RoundMoney rounds a monetary value to MoneyPlaces.
func RoundMoney(m Money) Money { return m.Round(MoneyPlaces) }

// Amounts holds the computed values of one movement line.
type Amounts struct {
	Base  Money `db:"base_amount" json:"base_amount"`
	GST   Money `db:"gst_amount" json:"gst_amount"`
	Total Money `db:"total_amount" json:"total_amount"`
}

// ComputeAmounts returns base = qty*rate, gst = base*gstPct/100, total = base+gst.
// Quantity and rate must share the same unit (the item base unit).
func ComputeAmounts(qty Quantity, rate Money, gstPct decimal.Decimal) Amounts {
	base := RoundMoney(qty.Mul(rate))
	gst := RoundMoney(base.Mul(gstPct).Div(hundred))
	return Amounts{Base: base, GST: gst, Total: base.Add(gst)}
}

// MinQty returns the smaller of two quantities.
func MinQty(a, b Quantity) Quantity {
	if a.LessThan(b) {
		return a
	}
	return b
}
