package types

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeAmounts(t *testing.T) {
	tests := []struct {
		name               string
		qty, rate, gst     string
		base, gstAmt, total string
	}{
		{"whole units", "5", "12.5", "18", "62.5", "11.25", "73.75"},
		{"zero gst", "3", "40", "0", "120", "0", "120"},
		{"fractional qty rounds money", "0.333", "10", "5", "3.33", "0.17", "3.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeAmounts(MustDecimal(tt.qty), MustDecimal(tt.rate), MustDecimal(tt.gst))
			assert.True(t, MustDecimal(tt.base).Equal(got.Base), "base %s", got.Base)
			assert.True(t, MustDecimal(tt.gstAmt).Equal(got.GST), "gst %s", got.GST)
			assert.True(t, MustDecimal(tt.total).Equal(got.Total), "total %s", got.Total)
		})
	}
}

func TestParseDecimal(t *testing.T) {
	d, err := ParseDecimal("  ")
	require.NoError(t, err)
	assert.True(t, d.IsZero())

	d, err = ParseDecimal("0.125")
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("0.125").Equal(d))

	_, err = ParseDecimal("abc")
	assert.Error(t, err)
}

func TestMinQty(t *testing.T) {
	assert.True(t, MustDecimal("2").Equal(MinQty(MustDecimal("2"), MustDecimal("3"))))
	assert.True(t, MustDecimal("1.5").Equal(MinQty(MustDecimal("4"), MustDecimal("1.5"))))
}
