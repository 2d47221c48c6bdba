// Package catalog provides stocked items and their unit conversions.
package catalog

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"pestctl/internal/core/apperror"
	"pestctl/internal/core/id"
	"pestctl/internal/domain"
	"pestctl/internal/domain/uom"
)

// Item is a stocked chemical or piece of equipment.
// All batches of an item hold quantities in its BaseUnit.
type Item struct {
	ID        id.ID           `db:"id" json:"id"`
	CompanyID id.ID           `db:"company_id" json:"company_id"`
	Name      string          `db:"name" json:"name"`
	Category  string          `db:"category" json:"category"`
	BaseUnit  string          `db:"base_unit" json:"base_unit"`
	GSTRate   decimal.Decimal `db:"gst_rate" json:"gst_rate"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`

	Conversions []uom.Conversion `db:"-" json:"conversions"`
}

var maxGST = decimal.NewFromInt(100)

// Normalize trims names and upper-cases unit codes.
func (i *Item) Normalize() {
	i.Name = strings.TrimSpace(i.Name)
	i.Category = strings.TrimSpace(i.Category)
	i.BaseUnit = uom.NormalizeUnit(i.BaseUnit)
	for k := range i.Conversions {
		i.Conversions[k].FromUnit = uom.NormalizeUnit(i.Conversions[k].FromUnit)
		i.Conversions[k].ToUnit = uom.NormalizeUnit(i.Conversions[k].ToUnit)
	}
}

// Validate checks item invariants: one base unit, and every conversion is
// positive and anchored on the base unit.
func (i *Item) Validate(_ context.Context) error {
	if i.Name == "" {
		return apperror.NewValidation("name is required").WithDetail("field", "name")
	}
	if i.BaseUnit == "" {
		return apperror.NewValidation("base unit is required").WithDetail("field", "base_unit")
	}
	if i.GSTRate.IsNegative() || i.GSTRate.GreaterThan(maxGST) {
		return apperror.NewValidation("gst rate must be between 0 and 100").WithDetail("field", "gst_rate")
	}

	seen := make(map[string]bool, len(i.Conversions))
	for k, c := range i.Conversions {
		if !c.Factor.IsPositive() {
			return apperror.NewValidation("conversion factor must be positive").WithDetail("conversion", k)
		}
		if c.FromUnit == c.ToUnit {
			return apperror.NewValidation("conversion must relate two different units").WithDetail("conversion", k)
		}
		if c.FromUnit != i.BaseUnit && c.ToUnit != i.BaseUnit {
			return apperror.NewValidation("conversion must reference the base unit").
				WithDetail("conversion", k).
				WithDetail("base_unit", i.BaseUnit)
		}
		pair := c.FromUnit + ">" + c.ToUnit
		if seen[pair] {
			return apperror.NewValidation("duplicate conversion").WithDetail("conversion", k)
		}
		seen[pair] = true
	}
	return nil
}

// Converter returns the unit converter of the item.
func (i *Item) Converter() *uom.Converter {
	return uom.NewConverter(i.ID.String(), i.BaseUnit, i.Conversions)
}

// Clone returns a deep copy.
func (i *Item) Clone() *Item {
	c := *i
	c.Conversions = append([]uom.Conversion(nil), i.Conversions...)
	return &c
}

// ListFilter filters item lists.
type ListFilter struct {
	CompanyID id.ID
	Category  string
	Search    string
	domain.Page
}
