package v1

import (
	"github.com/gin-gonic/gin"

	"pestctl/internal/core/security"
	"pestctl/internal/infrastructure/http/v1/handlers"
	"pestctl/internal/infrastructure/http/v1/middleware"
)

// Who may create which movement is decided by the authorization table, so
// movement and approval routes carry no role guard of their own.

func registerMovementRoutes(rg *gin.RouterGroup, h *handlers.MovementHandler) {
	g := rg.Group("/movements")
	{
		g.GET("", h.List)
		g.GET("/:id", h.Get)
		g.POST("/receipts", h.Receipt)
		g.POST("/issues", h.Issue)
		g.POST("/transfers", h.Transfer)
		g.POST("/returns", h.Return)
		g.POST("/consumptions", h.Consumption)
		g.POST("/:id/receive", h.ConfirmReceipt)
	}
}

func registerApprovalRoutes(rg *gin.RouterGroup, h *handlers.ApprovalHandler) {
	g := rg.Group("/approvals")
	{
		g.GET("", h.List)
		g.GET("/:id", h.Get)
		g.POST("/:id/approve", h.Approve)
		g.POST("/:id/reject", h.Reject)
		g.POST("/:id/partial", h.PartialAccept)
	}
}

func registerStockRoutes(rg *gin.RouterGroup, h *handlers.StockHandler) {
	g := rg.Group("/stock")
	{
		g.GET("/ledger", h.Ledger)
		g.GET("/batches", h.Batches)
		g.GET("/batches/:id", h.Batch)
		g.GET("/batches/:id/reconcile", h.Reconcile)
	}
}

func registerItemRoutes(rg *gin.RouterGroup, h *handlers.ItemHandler) {
	g := rg.Group("/items")
	{
		g.GET("", h.List)
		g.GET("/:id", h.Get)

		admin := g.Group("", middleware.RequireRole(string(security.RoleAdmin)))
		admin.POST("", h.Create)
		admin.PUT("/:id", h.Update)
	}
}
