package dto

import (
	"github.com/shopspring/decimal"

	"pestctl/internal/domain/catalog"
	"pestctl/internal/domain/uom"
)

// ItemRequest is the body of POST /items and PUT /items/:id.
type ItemRequest struct {
	Name        string              `json:"name" binding:"required,max=255"`
	Category    string              `json:"category" binding:"max=64"`
	BaseUnit    string              `json:"base_unit" binding:"required,max=32"`
	GSTRate     decimal.Decimal     `json:"gst_rate" binding:"decimal_gte0"`
	Conversions []ConversionRequest `json:"conversions" binding:"max=20,dive"`
}

// ConversionRequest reads "1 from_unit = factor to_unit".
type ConversionRequest struct {
	FromUnit string          `json:"from_unit" binding:"required,max=32"`
	ToUnit   string          `json:"to_unit" binding:"required,max=32"`
	Factor   decimal.Decimal `json:"factor" binding:"decimal_gt0"`
}

// ToEntity converts the DTO. Ids and the company are set by the handler.
func (r *ItemRequest) ToEntity() *catalog.Item {
	item := &catalog.Item{
		Name:        r.Name,
		Category:    r.Category,
		BaseUnit:    r.BaseUnit,
		GSTRate:     r.GSTRate,
		Conversions: make([]uom.Conversion, 0, len(r.Conversions)),
	}
	for _, c := range r.Conversions {
		item.Conversions = append(item.Conversions, uom.Conversion{
			FromUnit: c.FromUnit,
			ToUnit:   c.ToUnit,
			Factor:   c.Factor,
		})
	}
	return item
}

// ItemListQuery filters GET /items.
type ItemListQuery struct {
	Category string `form:"category" binding:"max=64"`
	Search   string `form:"search" binding:"max=255"`
	PageQuery
}

// ToFilter converts the query into an item filter.
func (q ItemListQuery) ToFilter() catalog.ListFilter {
	return catalog.ListFilter{Category: q.Category, Search: q.Search, Page: q.ToPage()}
}
