// Package batch provides the stock batch store: FEFO allocation, named-batch
// selection and guarded quantity changes.
package batch

import (
	"time"

	"github.com/shopspring/decimal"

	"pestctl/internal/core/entity"
	"pestctl/internal/core/id"
	"pestctl/internal/domain"
)

// Batch is a quantity of an item received together at one location.
// CurrentQty is in the item base unit and never negative.
type Batch struct {
	ID         id.ID           `db:"id" json:"id"`
	CompanyID  id.ID           `db:"company_id" json:"company_id"`
	ItemID     id.ID           `db:"item_id" json:"item_id"`
	BatchNo    string          `db:"batch_no" json:"batch_no"`
	MfgDate    *time.Time      `db:"mfg_date" json:"mfg_date,omitempty"`
	ExpiryDate *time.Time      `db:"expiry_date" json:"expiry_date,omitempty"`
	InitialQty decimal.Decimal `db:"initial_qty" json:"initial_qty"`
	CurrentQty decimal.Decimal `db:"current_qty" json:"current_qty"`
	Rate       decimal.Decimal `db:"rate" json:"rate"`
	GSTRate    decimal.Decimal `db:"gst_rate" json:"gst_rate"`
	Location   entity.Location `db:"-" json:"location"`
	Expired    bool            `db:"expired" json:"expired"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time       `db:"updated_at" json:"updated_at"`
}

// IsExpiredAt reports whether the batch may no longer be allocated on asOf.
// A batch expiring today is still usable.
func (b *Batch) IsExpiredAt(asOf time.Time) bool {
	if b.Expired {
		return true
	}
	if b.ExpiryDate == nil {
		return false
	}
	return dateOf(*b.ExpiryDate).Before(dateOf(asOf))
}

// Key returns the four-part upsert key of the batch.
func (b *Batch) Key() Key {
	return Key{ItemID: b.ItemID, BatchNo: b.BatchNo, Location: b.Location}
}

// Meta returns the metadata mirrored when stock of this batch lands elsewhere.
func (b *Batch) Meta() Meta {
	return Meta{MfgDate: b.MfgDate, ExpiryDate: b.ExpiryDate, Rate: b.Rate, GSTRate: b.GSTRate}
}

// Clone returns a copy safe to mutate.
func (b *Batch) Clone() *Batch {
	c := *b
	return &c
}

// Key identifies a batch for upserts: (item, batch_no, location kind, location id).
type Key struct {
	ItemID   id.ID
	BatchNo  string
	Location entity.Location
}

// Meta is copied onto a batch created by an upsert.
type Meta struct {
	MfgDate    *time.Time
	ExpiryDate *time.Time
	Rate       decimal.Decimal
	GSTRate    decimal.Decimal
}

// Allocation is the quantity taken from one batch.
type Allocation struct {
	Batch *Batch
	Qty   decimal.Decimal
}

// ListFilter filters batch lists (stock on hand).
type ListFilter struct {
	CompanyID    id.ID
	ItemID       *id.ID
	Location     *entity.Location
	IncludeEmpty bool
	domain.Page
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
