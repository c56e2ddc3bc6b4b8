package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/kivu-credit/kivu_credit/internal/lending"
	"github.com/kivu-credit/kivu_credit/internal/middleware"
)

// RegisterLendingRoutes wires ledger queries, position operations and the
// administrative surface.
func RegisterLendingRoutes(r fiber.Router, h *lending.Handler, d Deps) {
	// Read surface is open.
	r.Get("/positions/:address", h.Position)
	r.Get("/pool", h.Pool)
	r.Get("/params", h.Params)

	// Mutations require a bearer token; unsafe methods go through the
	// idempotency layer when Redis is available.
	protected := r.Group("", middleware.BearerAuth(d.Cfg))
	if d.Cache != nil {
		protected.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}

	protected.Post("/positions/deposit", h.Deposit)
	protected.Post("/positions/withdraw", h.Withdraw)
	protected.Post("/positions/borrow", middleware.BorrowRateLimit(d.Cache, 10), h.Borrow)
	protected.Post("/positions/repay", h.Repay)
	protected.Post("/positions/:address/liquidate", h.Liquidate)
	protected.Post("/positions/accrue", h.Accrue)

	admin := protected.Group("/admin", middleware.RequireOperator())
	admin.Put("/params", h.UpdateParams)
}
