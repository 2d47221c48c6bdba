// Package uom converts quantities between an item's alternate units and its base unit.
package uom

import (
	"strings"

	"github.com/shopspring/decimal"

	"pestctl/internal/core/apperror"
	"pestctl/internal/core/types"
)

// Conversion is one conversion record of an item: 1 From = Factor To.
// One side always equals the item base unit.
type Conversion struct {
	FromUnit string          `json:"from_unit" db:"from_unit"`
	ToUnit   string          `json:"to_unit" db:"to_unit"`
	Factor   decimal.Decimal `json:"factor" db:"factor"`
}

// NormalizeUnit upper-cases and trims a unit code.
func NormalizeUnit(u string) string {
	return strings.ToUpper(strings.TrimSpace(u))
}

// Converter converts quantities for a single item.
type Converter struct {
	itemID   string
	baseUnit string
	direct   map[string]decimal.Decimal // unit -> base
	reverse  map[string]decimal.Decimal // base -> unit
}

// NewConverter builds a converter from the item's conversion records.
// Records that reference the base unit on neither side, or carry a non-positive
// factor, are ignored.
func NewConverter(itemID, baseUnit string, conversions []Conversion) *Converter {
	c := &Converter{
		itemID:   itemID,
		baseUnit: NormalizeUnit(baseUnit),
		direct:   make(map[string]decimal.Decimal, len(conversions)),
		reverse:  make(map[string]decimal.Decimal, len(conversions)),
	}
	for _, cv := range conversions {
		if !cv.Factor.IsPositive() {
			continue
		}
		from, to := NormalizeUnit(cv.FromUnit), NormalizeUnit(cv.ToUnit)
		switch {
		case to == c.baseUnit && from != c.baseUnit:
			c.direct[from] = cv.Factor
		case from == c.baseUnit && to != c.baseUnit:
			c.reverse[to] = cv.Factor
		}
	}
	return c
}

// BaseUnit returns the item's canonical unit.
func (c *Converter) BaseUnit() string { return c.baseUnit }

// Supports reports whether unit can be converted to the base unit.
func (c *Converter) Supports(unit string) bool {
	u := NormalizeUnit(unit)
	if u == c.baseUnit {
		return true
	}
	_, d := c.direct[u]
	_, r := c.reverse[u]
	return d || r
}

// ToBase converts qty expressed in unit into the base unit.
// A direct record (unit -> base) wins over a reverse one (base -> unit).
func (c *Converter) ToBase(qty types.Quantity, unit string) (types.Quantity, error) {
	u := NormalizeUnit(unit)
	if u == c.baseUnit {
		return qty, nil
	}
	if f, ok := c.direct[u]; ok {
		return types.RoundQty(qty.Mul(f)), nil
	}
	if f, ok := c.reverse[u]; ok {
		return qty.DivRound(f, types.QuantityPlaces), nil
	}
	return decimal.Zero, apperror.NewUnsupportedUnit(c.itemID, u)
}

// FromBase converts a base-unit qty into unit.
func (c *Converter) FromBase(qty types.Quantity, unit string) (types.Quantity, error) {
	u := NormalizeUnit(unit)
	if u == c.baseUnit {
		return qty, nil
	}
	if f, ok := c.direct[u]; ok {
		return qty.DivRound(f, types.QuantityPlaces), nil
	}
	if f, ok := c.reverse[u]; ok {
		return types.RoundQty(qty.Mul(f)), nil
	}
	return decimal.Zero, apperror.NewUnsupportedUnit(c.itemID, u)
}

// RatePerBase normalizes a rate quoted per unit into a rate per base unit.
func (c *Converter) RatePerBase(rate types.Money, unit string) (types.Money, error) {
	perUnitInBase, err := c.ToBase(decimal.NewFromInt(1), unit)
	if err != nil {
		return decimal.Zero, err
	}
	if perUnitInBase.IsZero() {
		return decimal.Zero, apperror.NewUnsupportedUnit(c.itemID, NormalizeUnit(unit))
	}
	return rate.DivRound(perUnitInBase, types.RatePlaces), nil
}
