// Package movement processes stock movements: receipts, issues, returns,
// transfers and field consumption.
package movement

import (
	"time"

	"github.com/shopspring/decimal"

	"pestctl/internal/core/apperror"
	"pestctl/internal/core/entity"
	"pestctl/internal/core/id"
	"pestctl/internal/core/types"
	"pestctl/internal/domain"
)

// Status is the lifecycle status of a movement.
type Status string

const (
	StatusCompleted        Status = "COMPLETED"
	StatusAwaitingApproval Status = "AWAITING_APPROVAL"
	StatusApproved         Status = "APPROVED"
	StatusRejected         Status = "REJECTED"
	StatusPartial          Status = "PARTIAL"
	StatusReceived         Status = "RECEIVED"
)

// Movement is the header of a stock movement document.
type Movement struct {
	ID          id.ID               `db:"id" json:"id"`
	CompanyID   id.ID               `db:"company_id" json:"company_id"`
	Kind        entity.MovementKind `db:"kind" json:"kind"`
	Number      string              `db:"number" json:"number"`
	Date        time.Time           `db:"movement_date" json:"date"`
	Source      entity.Location     `db:"-" json:"source"`
	Destination entity.Location     `db:"-" json:"destination"`
	Status      Status              `db:"status" json:"status"`
	// Reference is the vendor of a receipt, the purpose of an issue, the
	// service of a consumption, or a free note.
	Reference  string     `db:"reference" json:"reference,omitempty"`
	ApprovalID *id.ID     `db:"approval_id" json:"approval_id,omitempty"`
	CreatedBy  string     `db:"created_by" json:"created_by"`
	ReceivedBy string     `db:"received_by" json:"received_by,omitempty"`
	ReceivedAt *time.Time `db:"received_at" json:"received_at,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updated_at"`

	Lines []*Line `db:"-" json:"lines"`
}

// Line is one batch-level line of a movement. A request line that draws
// from several batches becomes several lines.
type Line struct {
	ID          id.ID           `db:"id" json:"id"`
	MovementID  id.ID           `db:"movement_id" json:"movement_id"`
	LineNo      int             `db:"line_no" json:"line_no"`
	ItemID      id.ID           `db:"item_id" json:"item_id"`
	BatchID     id.ID           `db:"batch_id" json:"batch_id"`
	BatchNo     string          `db:"batch_no" json:"batch_no"`
	Qty         decimal.Decimal `db:"qty" json:"qty"`
	Unit        string          `db:"unit" json:"unit"`
	BaseQty     decimal.Decimal `db:"base_qty" json:"base_qty"`
	BaseUnit    string          `db:"base_unit" json:"base_unit"`
	Rate        decimal.Decimal `db:"rate" json:"rate"`
	GSTRate     decimal.Decimal `db:"gst_rate" json:"gst_rate"`
	types.Amounts
	// DestinationBatchID is the batch credited at the destination, when any.
	DestinationBatchID *id.ID `db:"destination_batch_id" json:"destination_batch_id,omitempty"`
}

// Totals sums line amounts.
func (m *Movement) Totals() types.Amounts {
	t := types.Amounts{Base: decimal.Zero, GST: decimal.Zero, Total: decimal.Zero}
	for _, l := range m.Lines {
		t.Base = t.Base.Add(l.Base)
		t.GST = t.GST.Add(l.GST)
		t.Total = t.Total.Add(l.Total)
	}
	return t
}

// CanReceive checks that an issue may be confirmed as physically received.
func (m *Movement) CanReceive() error {
	if m.Kind != entity.MovementIssue {
		return apperror.NewValidation("only issues can be received").WithDetail("kind", string(m.Kind))
	}
	switch m.Status {
	case StatusApproved, StatusPartial:
		return nil
	case StatusReceived:
		return apperror.NewAlreadyProcessed("movement", m.ID.String(), string(m.Status))
	}
	return apperror.NewConflict("issue is not approved").WithDetail("status", string(m.Status))
}

// LineRequest is one requested line.
type LineRequest struct {
	ItemID id.ID
	Qty    decimal.Decimal
	Unit   string
	// BatchID names an exact source batch instead of FEFO allocation.
	BatchID *id.ID

	// Receipt only. Rate is per Unit; GSTRate defaults to the item rate.
	Rate       decimal.Decimal
	GSTRate    *decimal.Decimal
	BatchNo    string
	MfgDate    *time.Time
	ExpiryDate *time.Time
}

// Request is the input of every movement operation.
type Request struct {
	Source      entity.Location
	Destination entity.Location
	Reference   string
	// Date defaults to now.
	Date  time.Time
	Lines []LineRequest
}

// ListFilter filters movement lists.
type ListFilter struct {
	CompanyID id.ID
	Kind      *entity.MovementKind
	Status    *Status
	Location  *entity.Location
	From      *time.Time
	To        *time.Time
	domain.Page
}
