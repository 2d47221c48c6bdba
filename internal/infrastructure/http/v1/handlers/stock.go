package handlers

import (
	"github.com/gin-gonic/gin"

	"pestctl/internal/domain/batch"
	"pestctl/internal/domain/ledger"
	"pestctl/internal/infrastructure/http/v1/dto"
)

// StockHandler serves batch balances and the stock ledger.
type StockHandler struct {
	*BaseHandler
	batches *batch.Store
	ledger  *ledger.Service
}

// NewStockHandler creates a stock handler.
func NewStockHandler(base *BaseHandler, batches *batch.Store, ledger *ledger.Service) *StockHandler {
	return &StockHandler{BaseHandler: base, batches: batches, ledger: ledger}
}

// Batches handles GET /stock/batches.
// Empty batches are hidden unless include_empty=true.
func (h *StockHandler) Batches(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	var q dto.BatchQuery
	if !h.BindQuery(c, &q) {
		return
	}
	filter, err := q.ToFilter()
	if err != nil {
		h.Error(c, err)
		return
	}
	filter.CompanyID = actor.CompanyID

	res, err := h.batches.List(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, res)
}

// Batch handles GET /stock/batches/:id.
func (h *StockHandler) Batch(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	batchID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	b, err := h.batches.Get(c.Request.Context(), actor.CompanyID, batchID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, b)
}

// Reconcile handles GET /stock/batches/:id/reconcile.
func (h *StockHandler) Reconcile(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	batchID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	rec, err := h.ledger.Reconcile(c.Request.Context(), actor.CompanyID, batchID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, rec)
}

// Ledger handles GET /stock/ledger.
func (h *StockHandler) Ledger(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	var q dto.LedgerQuery
	if !h.BindQuery(c, &q) {
		return
	}
	filter, err := q.ToFilter()
	if err != nil {
		h.Error(c, err)
		return
	}
	filter.CompanyID = actor.CompanyID

	res, err := h.ledger.List(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, res)
}
