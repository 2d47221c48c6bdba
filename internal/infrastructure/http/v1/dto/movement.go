package dto

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"pestctl/internal/core/apperror"
	"pestctl/internal/core/entity"
	"pestctl/internal/core/id"
	"pestctl/internal/core/types"
	"pestctl/internal/domain/movement"
)

// --- Request DTOs ---

// MovementRequest is the body of every POST /movements/* endpoint.
// Which sides are required depends on the movement kind and is checked by
// the processor.
type MovementRequest struct {
	Source      *Location             `json:"source"`
	Destination *Location             `json:"destination"`
	Reference   string                `json:"reference" binding:"max=255"`
	Date        *time.Time            `json:"date"`
	Lines       []MovementLineRequest `json:"lines" binding:"required,min=1,max=200,dive"`
}

// MovementLineRequest is one requested line.
type MovementLineRequest struct {
	ItemID  string          `json:"item_id" binding:"required,uuid"`
	Qty     decimal.Decimal `json:"qty" binding:"decimal_gt0"`
	Unit    string          `json:"unit" binding:"required,max=32"`
	BatchID string          `json:"batch_id" binding:"omitempty,uuid"`

	// Receipt only.
	Rate       *decimal.Decimal `json:"rate" binding:"omitempty,decimal_gte0"`
	GSTRate    *decimal.Decimal `json:"gst_rate" binding:"omitempty,decimal_gte0"`
	BatchNo    string           `json:"batch_no" binding:"max=64"`
	MfgDate    *time.Time       `json:"mfg_date"`
	ExpiryDate *time.Time       `json:"expiry_date"`
}

// ToRequest converts the DTO into a processor request.
func (r *MovementRequest) ToRequest() (movement.Request, error) {
	src, err := r.Source.ToEntity("source")
	if err != nil {
		return movement.Request{}, err
	}
	dst, err := r.Destination.ToEntity("destination")
	if err != nil {
		return movement.Request{}, err
	}

	req := movement.Request{
		Source:      src,
		Destination: dst,
		Reference:   strings.TrimSpace(r.Reference),
		Lines:       make([]movement.LineRequest, 0, len(r.Lines)),
	}
	if r.Date != nil {
		req.Date = r.Date.UTC()
	}

	for i, l := range r.Lines {
		field := fmt.Sprintf("lines[%d]", i)
		itemID, err := id.Parse(l.ItemID)
		if err != nil {
			return movement.Request{}, apperror.NewValidation("invalid item id").WithDetail("field", field+".item_id")
		}
		batchID, err := ParseOptionalID(field+".batch_id", l.BatchID)
		if err != nil {
			return movement.Request{}, err
		}
		line := movement.LineRequest{
			ItemID:     itemID,
			Qty:        l.Qty,
			Unit:       l.Unit,
			BatchID:    batchID,
			GSTRate:    l.GSTRate,
			BatchNo:    strings.TrimSpace(l.BatchNo),
			MfgDate:    l.MfgDate,
			ExpiryDate: l.ExpiryDate,
		}
		if l.Rate != nil {
			line.Rate = *l.Rate
		}
		req.Lines = append(req.Lines, line)
	}
	return req, nil
}

// MovementListQuery filters GET /movements.
type MovementListQuery struct {
	Kind   string `form:"kind" binding:"omitempty,oneof=RECEIPT ISSUE RETURN TRANSFER CONSUMPTION"`
	Status string `form:"status" binding:"omitempty,oneof=COMPLETED AWAITING_APPROVAL APPROVED REJECTED PARTIAL RECEIVED"`
	LocationQuery
	DateRangeQuery
	PageQuery
}

// ToFilter converts the query into a movement filter. The company is set by the service.
func (q MovementListQuery) ToFilter() (movement.ListFilter, error) {
	loc, err := q.LocationQuery.ToEntity()
	if err != nil {
		return movement.ListFilter{}, err
	}
	f := movement.ListFilter{Location: loc, From: q.From, To: q.To, Page: q.ToPage()}
	if q.Kind != "" {
		k := entity.MovementKind(q.Kind)
		f.Kind = &k
	}
	if q.Status != "" {
		s := movement.Status(q.Status)
		f.Status = &s
	}
	return f, nil
}

// --- Response DTOs ---

// MovementResponse is a movement with its document totals.
type MovementResponse struct {
	*movement.Movement
	Totals types.Amounts `json:"totals"`
}

// FromMovement builds the response DTO.
func FromMovement(m *movement.Movement) MovementResponse {
	return MovementResponse{Movement: m, Totals: m.Totals()}
}

// FromMovements builds response DTOs for a list.
func FromMovements(ms []*movement.Movement) []MovementResponse {
	out := make([]MovementResponse, len(ms))
	for i, m := range ms {
		out[i] = FromMovement(m)
	}
	return out
}
