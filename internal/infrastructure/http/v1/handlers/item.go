package handlers

import (
	"github.com/gin-gonic/gin"

	"pestctl/internal/domain/catalog"
	"pestctl/internal/infrastructure/http/v1/dto"
)

// ItemHandler serves the item catalog.
type ItemHandler struct {
	*BaseHandler
	service *catalog.Service
}

// NewItemHandler creates an item handler.
func NewItemHandler(base *BaseHandler, service *catalog.Service) *ItemHandler {
	return &ItemHandler{BaseHandler: base, service: service}
}

// Create handles POST /items.
func (h *ItemHandler) Create(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	var req dto.ItemRequest
	if !h.BindJSON(c, &req) {
		return
	}
	item := req.ToEntity()
	item.CompanyID = actor.CompanyID

	if err := h.service.Create(c.Request.Context(), item); err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, item)
}

// Update handles PUT /items/:id.
func (h *ItemHandler) Update(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	itemID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	var req dto.ItemRequest
	if !h.BindJSON(c, &req) {
		return
	}
	item := req.ToEntity()
	item.ID = itemID
	item.CompanyID = actor.CompanyID

	if err := h.service.Update(c.Request.Context(), item); err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, item)
}

// Get handles GET /items/:id.
func (h *ItemHandler) Get(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	itemID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	item, err := h.service.Get(c.Request.Context(), actor.CompanyID, itemID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, item)
}

// List handles GET /items.
func (h *ItemHandler) List(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	var q dto.ItemListQuery
	if !h.BindQuery(c, &q) {
		return
	}
	filter := q.ToFilter()
	filter.CompanyID = actor.CompanyID

	res, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, res)
}
