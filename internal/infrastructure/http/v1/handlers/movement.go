package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"pestctl/internal/domain/movement"
	"pestctl/internal/infrastructure/http/v1/dto"
)

// MovementHandler serves stock movements.
type MovementHandler struct {
	*BaseHandler
	processor *movement.Processor
}

// NewMovementHandler creates a movement handler.
func NewMovementHandler(base *BaseHandler, processor *movement.Processor) *MovementHandler {
	return &MovementHandler{BaseHandler: base, processor: processor}
}

type createFunc func(ctx context.Context, req movement.Request) (*movement.Movement, error)

func (h *MovementHandler) create(c *gin.Context, fn createFunc) {
	var body dto.MovementRequest
	if !h.BindJSON(c, &body) {
		return
	}
	req, err := body.ToRequest()
	if err != nil {
		h.Error(c, err)
		return
	}
	m, err := fn(c.Request.Context(), req)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, dto.FromMovement(m))
}

// Receipt handles POST /movements/receipts.
func (h *MovementHandler) Receipt(c *gin.Context) { h.create(c, h.processor.CreateReceipt) }

// Issue handles POST /movements/issues.
func (h *MovementHandler) Issue(c *gin.Context) { h.create(c, h.processor.CreateIssue) }

// Transfer handles POST /movements/transfers.
func (h *MovementHandler) Transfer(c *gin.Context) { h.create(c, h.processor.CreateTransfer) }

// Return handles POST /movements/returns.
func (h *MovementHandler) Return(c *gin.Context) { h.create(c, h.processor.CreateReturn) }

// Consumption handles POST /movements/consumptions.
func (h *MovementHandler) Consumption(c *gin.Context) { h.create(c, h.processor.CreateConsumption) }

// ConfirmReceipt handles POST /movements/:id/receive.
func (h *MovementHandler) ConfirmReceipt(c *gin.Context) {
	movementID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	m, err := h.processor.ConfirmReceipt(c.Request.Context(), movementID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromMovement(m))
}

// Get handles GET /movements/:id.
func (h *MovementHandler) Get(c *gin.Context) {
	movementID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	m, err := h.processor.Get(c.Request.Context(), movementID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromMovement(m))
}

// List handles GET /movements.
func (h *MovementHandler) List(c *gin.Context) {
	var q dto.MovementListQuery
	if !h.BindQuery(c, &q) {
		return
	}
	filter, err := q.ToFilter()
	if err != nil {
		h.Error(c, err)
		return
	}
	res, err := h.processor.List(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, gin.H{
		"items":       dto.FromMovements(res.Items),
		"total_count": res.TotalCount,
		"limit":       res.Limit,
		"offset":      res.Offset,
	})
}
