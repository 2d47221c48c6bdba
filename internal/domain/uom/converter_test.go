package uom

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pestctl/internal/core/apperror"
	"pestctl/internal/core/types"
)

func dec(s string) decimal.Decimal { return types.MustDecimal(s) }

func kgConverter(conversions ...Conversion) *Converter {
	return NewConverter("item-1", "kg", conversions)
}

func TestConverter_GramRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		conv Conversion
	}{
		{"reverse record 1 KG = 1000 GRAM", Conversion{FromUnit: "KG", ToUnit: "GRAM", Factor: dec("1000")}},
		{"direct record 1 GRAM = 0.001 KG", Conversion{FromUnit: "GRAM", ToUnit: "KG", Factor: dec("0.001")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := kgConverter(tt.conv)

			base, err := c.ToBase(dec("500"), "GRAM")
			require.NoError(t, err)
			assert.True(t, base.Equal(dec("0.5")), "got %s", base)

			back, err := c.FromBase(dec("0.5"), "gram")
			require.NoError(t, err)
			assert.True(t, back.Equal(dec("500")), "got %s", back)
		})
	}
}

func TestConverter_RepeatedRoundTrip(t *testing.T) {
	c := kgConverter(Conversion{FromUnit: "KG", ToUnit: "GRAM", Factor: dec("1000")})

	q := dec("123.456")
	for i := 0; i < 10; i++ {
		base, err := c.ToBase(q, "GRAM")
		require.NoError(t, err)
		q, err = c.FromBase(base, "GRAM")
		require.NoError(t, err)
	}
	assert.True(t, q.Equal(dec("123.456")), "got %s", q)
}

func TestConverter_DirectWinsOverReverse(t *testing.T) {
	c := NewConverter("item-1", "LITRE", []Conversion{
		{FromUnit: "CAN", ToUnit: "LITRE", Factor: dec("5")},
		{FromUnit: "LITRE", ToUnit: "CAN", Factor: dec("0.25")},
	})

	base, err := c.ToBase(dec("2"), "CAN")
	require.NoError(t, err)
	assert.True(t, base.Equal(dec("10")), "got %s", base)
}

func TestConverter_BaseUnitIsIdentity(t *testing.T) {
	c := kgConverter()
	base, err := c.ToBase(dec("3.25"), " kg ")
	require.NoError(t, err)
	assert.True(t, base.Equal(dec("3.25")))
	assert.Equal(t, "KG", c.BaseUnit())
}

func TestConverter_UnsupportedUnit(t *testing.T) {
	c := kgConverter(Conversion{FromUnit: "KG", ToUnit: "GRAM", Factor: dec("1000")})

	_, err := c.ToBase(dec("1"), "LITRE")
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeUnsupportedUnit))

	_, err = c.FromBase(dec("1"), "BOX")
	assert.True(t, apperror.HasCode(err, apperror.CodeUnsupportedUnit))

	assert.False(t, c.Supports("LITRE"))
	assert.True(t, c.Supports("gram"))
}

func TestConverter_IgnoresInvalidRecords(t *testing.T) {
	c := kgConverter(
		Conversion{FromUnit: "BOX", ToUnit: "KG", Factor: dec("0")},
		Conversion{FromUnit: "BOX", ToUnit: "CAN", Factor: dec("2")},
	)
	assert.False(t, c.Supports("BOX"))
	assert.False(t, c.Supports("CAN"))
}

func TestConverter_RatePerBase(t *testing.T) {
	c := kgConverter(Conversion{FromUnit: "KG", ToUnit: "GRAM", Factor: dec("1000")})

	rate, err := c.RatePerBase(dec("0.5"), "GRAM")
	require.NoError(t, err)
	assert.True(t, rate.Equal(dec("500")), "got %s", rate)
}
