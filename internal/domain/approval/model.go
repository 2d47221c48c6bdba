// Package approval implements the pending/approve/reject/partial-accept
// workflow that settles stock moved by an Issue.
package approval

import (
	"time"

	"github.com/shopspring/decimal"

	"pestctl/internal/core/entity"
	"pestctl/internal/core/id"
	"pestctl/internal/core/types"
	"pestctl/internal/domain"
)

// Status is the approval header status.
type Status string

const (
	StatusPending           Status = "PENDING"
	StatusApproved          Status = "APPROVED"
	StatusRejected          Status = "REJECTED"
	StatusPartiallyApproved Status = "PARTIALLY_APPROVED"
)

// IsTerminal reports whether the approval has been resolved.
func (s Status) IsTerminal() bool { return s != StatusPending }

// LineStatus is the decision on one approval item.
type LineStatus string

const (
	LinePending  LineStatus = "PENDING"
	LineApproved LineStatus = "APPROVED"
	LineRejected LineStatus = "REJECTED"
)

// Approval is paired one-to-one with an Issue.
// ApproverScope is the resolved destination of the issue.
type Approval struct {
	ID              id.ID           `db:"id" json:"id"`
	CompanyID       id.ID           `db:"company_id" json:"company_id"`
	IssueID         id.ID           `db:"issue_id" json:"issue_id"`
	IssueNumber     string          `db:"issue_number" json:"issue_number"`
	Source          entity.Location `db:"-" json:"source"`
	ApproverScope   entity.Location `db:"-" json:"approver_scope"`
	Status          Status          `db:"status" json:"status"`
	ApproverID      string          `db:"approver_id" json:"approver_id,omitempty"`
	ResolvedAt      *time.Time      `db:"resolved_at" json:"resolved_at,omitempty"`
	RejectionReason string          `db:"rejection_reason" json:"rejection_reason,omitempty"`
	CreatedBy       string          `db:"created_by" json:"created_by"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`

	Items []*Item `db:"-" json:"items"`
}

// Item snapshots one Issue line. Original* never change; Approved* are set on resolution.
type Item struct {
	ID              id.ID           `db:"id" json:"id"`
	ApprovalID      id.ID           `db:"approval_id" json:"approval_id"`
	IssueLineID     id.ID           `db:"issue_line_id" json:"issue_line_id"`
	LineNo          int             `db:"line_no" json:"line_no"`
	ItemID          id.ID           `db:"item_id" json:"item_id"`
	SourceBatchID   id.ID           `db:"source_batch_id" json:"source_batch_id"`
	BatchNo         string          `db:"batch_no" json:"batch_no"`
	Rate            decimal.Decimal `db:"rate" json:"rate"`
	GSTRate         decimal.Decimal `db:"gst_rate" json:"gst_rate"`
	OriginalQty     decimal.Decimal `db:"original_qty" json:"original_qty"`
	OriginalUnit    string          `db:"original_unit" json:"original_unit"`
	OriginalBaseQty decimal.Decimal `db:"original_base_qty" json:"original_base_qty"`
	OriginalAmounts types.Amounts   `db:"-" json:"original_amounts"`

	ApprovedQty     decimal.Decimal `db:"approved_qty" json:"approved_qty"`
	ApprovedUnit    string          `db:"approved_unit" json:"approved_unit,omitempty"`
	ApprovedBaseQty decimal.Decimal `db:"approved_base_qty" json:"approved_base_qty"`
	ApprovedAmounts types.Amounts   `db:"-" json:"approved_amounts"`

	Status LineStatus `db:"status" json:"status"`
	// DestinationBatchID is the batch credited at the approver's location.
	DestinationBatchID *id.ID `db:"destination_batch_id" json:"destination_batch_id,omitempty"`
}

// ReversalQty is the base quantity returned to the source batch on resolution.
func (i *Item) ReversalQty() decimal.Decimal {
	return i.OriginalBaseQty.Sub(i.ApprovedBaseQty)
}

// FindItem returns the approval item with the given id.
func (a *Approval) FindItem(itemID id.ID) *Item {
	for _, it := range a.Items {
		if it.ID == itemID {
			return it
		}
	}
	return nil
}

// DeriveStatus computes the header status from the line statuses.
func DeriveStatus(items []*Item) Status {
	approved, rejected := 0, 0
	for _, it := range items {
		switch it.Status {
		case LineApproved:
			approved++
		case LineRejected:
			rejected++
		}
	}
	switch {
	case len(items) == 0 || approved+rejected < len(items):
		return StatusPending
	case approved == len(items):
		return StatusApproved
	case rejected == len(items):
		return StatusRejected
	}
	return StatusPartiallyApproved
}

// Clone returns a deep copy.
func (a *Approval) Clone() *Approval {
	c := *a
	c.Items = make([]*Item, len(a.Items))
	for i, it := range a.Items {
		cp := *it
		c.Items[i] = &cp
	}
	return &c
}

// ListFilter filters approval lists.
type ListFilter struct {
	CompanyID id.ID
	Status    *Status
	// Scope restricts results to one approver location.
	Scope *entity.Location
	domain.Page
}
