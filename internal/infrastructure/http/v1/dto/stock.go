package dto

import (
	"pestctl/internal/domain/batch"
	"pestctl/internal/domain/ledger"
)

// LedgerQuery filters GET /stock/ledger.
type LedgerQuery struct {
	ItemID  string `form:"item_id" binding:"omitempty,uuid"`
	BatchID string `form:"batch_id" binding:"omitempty,uuid"`
	LocationQuery
	DateRangeQuery
	PageQuery
}

// ToFilter converts the query into a ledger filter.
func (q LedgerQuery) ToFilter() (ledger.Filter, error) {
	itemID, err := ParseOptionalID("item_id", q.ItemID)
	if err != nil {
		return ledger.Filter{}, err
	}
	batchID, err := ParseOptionalID("batch_id", q.BatchID)
	if err != nil {
		return ledger.Filter{}, err
	}
	loc, err := q.LocationQuery.ToEntity()
	if err != nil {
		return ledger.Filter{}, err
	}
	return ledger.Filter{
		ItemID:   itemID,
		BatchID:  batchID,
		Location: loc,
		From:     q.From,
		To:       q.To,
		Page:     q.ToPage(),
	}, nil
}

// BatchQuery filters GET /stock/batches.
type BatchQuery struct {
	ItemID       string `form:"item_id" binding:"omitempty,uuid"`
	IncludeEmpty bool   `form:"include_empty"`
	LocationQuery
	PageQuery
}

// ToFilter converts the query into a batch filter.
func (q BatchQuery) ToFilter() (batch.ListFilter, error) {
	itemID, err := ParseOptionalID("item_id", q.ItemID)
	if err != nil {
		return batch.ListFilter{}, err
	}
	loc, err := q.LocationQuery.ToEntity()
	if err != nil {
		return batch.ListFilter{}, err
	}
	return batch.ListFilter{
		ItemID:       itemID,
		Location:     loc,
		IncludeEmpty: q.IncludeEmpty,
		Page:         q.ToPage(),
	}, nil
}
