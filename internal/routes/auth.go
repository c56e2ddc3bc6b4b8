package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/kivu-credit/kivu_credit/internal/auth"
)

// RegisterAuthRoutes wires token minting.
func RegisterAuthRoutes(r fiber.Router, h *auth.Handler) {
	r.Post("/auth/token", h.Mint)
}
