package handlers

import (
	"github.com/gin-gonic/gin"

	"pestctl/internal/domain/approval"
	"pestctl/internal/infrastructure/http/v1/dto"
)

// ApprovalHandler serves the approval workflow.
type ApprovalHandler struct {
	*BaseHandler
	service *approval.Service
}

// NewApprovalHandler creates an approval handler.
func NewApprovalHandler(base *BaseHandler, service *approval.Service) *ApprovalHandler {
	return &ApprovalHandler{BaseHandler: base, service: service}
}

// Approve handles POST /approvals/:id/approve.
func (h *ApprovalHandler) Approve(c *gin.Context) {
	approvalID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	a, err := h.service.Approve(c.Request.Context(), approvalID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, a)
}

// Reject handles POST /approvals/:id/reject.
func (h *ApprovalHandler) Reject(c *gin.Context) {
	approvalID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	var req dto.RejectRequest
	if !h.BindJSON(c, &req) {
		return
	}
	a, err := h.service.Reject(c.Request.Context(), approvalID, req.Reason)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, a)
}

// PartialAccept handles POST /approvals/:id/partial.
func (h *ApprovalHandler) PartialAccept(c *gin.Context) {
	approvalID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	var req dto.PartialAcceptRequest
	if !h.BindJSON(c, &req) {
		return
	}
	decisions, err := req.ToDecisions()
	if err != nil {
		h.Error(c, err)
		return
	}
	a, err := h.service.PartialAccept(c.Request.Context(), approvalID, decisions, req.Reason)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, a)
}

// Get handles GET /approvals/:id.
func (h *ApprovalHandler) Get(c *gin.Context) {
	approvalID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	a, err := h.service.Get(c.Request.Context(), approvalID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, a)
}

// List handles GET /approvals.
func (h *ApprovalHandler) List(c *gin.Context) {
	var q dto.ApprovalListQuery
	if !h.BindQuery(c, &q) {
		return
	}
	filter, err := q.ToFilter()
	if err != nil {
		h.Error(c, err)
		return
	}
	res, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, res)
}
