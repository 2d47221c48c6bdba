package dto

import (
	"fmt"

	"github.com/shopspring/decimal"

	"pestctl/internal/core/apperror"
	"pestctl/internal/core/entity"
	"pestctl/internal/core/id"
	"pestctl/internal/domain/approval"
)

// RejectRequest is the body of POST /approvals/:id/reject.
type RejectRequest struct {
	Reason string `json:"reason" binding:"max=1000"`
}

// PartialAcceptRequest is the body of POST /approvals/:id/partial.
type PartialAcceptRequest struct {
	Lines  []DecisionRequest `json:"lines" binding:"required,min=1,dive"`
	Reason string            `json:"reason" binding:"max=1000"`
}

// DecisionRequest decides one approval item. Qty is required for APPROVED
// lines; Unit defaults to the issued unit.
type DecisionRequest struct {
	ApprovalItemID string          `json:"approval_item_id" binding:"required,uuid"`
	Status         string          `json:"status" binding:"required,oneof=APPROVED REJECTED"`
	Qty            decimal.Decimal `json:"qty" binding:"decimal_gte0"`
	Unit           string          `json:"unit" binding:"max=32"`
}

// ToDecisions converts the request lines.
func (r *PartialAcceptRequest) ToDecisions() ([]approval.Decision, error) {
	out := make([]approval.Decision, 0, len(r.Lines))
	for i, l := range r.Lines {
		itemID, err := id.Parse(l.ApprovalItemID)
		if err != nil {
			return nil, apperror.NewValidation("invalid approval item id").
				WithDetail("field", fmt.Sprintf("lines[%d].approval_item_id", i))
		}
		out = append(out, approval.Decision{
			ApprovalItemID: itemID,
			Status:         approval.LineStatus(l.Status),
			Qty:            l.Qty,
			Unit:           l.Unit,
		})
	}
	return out, nil
}

// ApprovalListQuery filters GET /approvals.
type ApprovalListQuery struct {
	Status    string `form:"status" binding:"omitempty,oneof=PENDING APPROVED REJECTED PARTIALLY_APPROVED"`
	ScopeKind string `form:"scope_kind" binding:"omitempty,oneof=BRANCH TECHNICIAN"`
	ScopeID   string `form:"scope_id" binding:"omitempty,uuid"`
	PageQuery
}

// ToFilter converts the query into an approval filter.
func (q ApprovalListQuery) ToFilter() (approval.ListFilter, error) {
	f := approval.ListFilter{Page: q.ToPage()}
	if q.Status != "" {
		s := approval.Status(q.Status)
		f.Status = &s
	}
	if q.ScopeKind != "" || q.ScopeID != "" {
		if q.ScopeKind == "" || q.ScopeID == "" {
			return f, apperror.NewValidation("scope_kind and scope_id go together")
		}
		scope := entity.Location{Kind: entity.LocationKind(q.ScopeKind), ID: id.MustParse(q.ScopeID)}
		f.Scope = &scope
	}
	return f, nil
}
