package auth

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes token minting.
type Handler struct {
	service *Service
}

// NewHandler constructs an auth handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type mintRequest struct {
	Address     string `json:"address"`
	OperatorKey string `json:"operator_key"`
}

// Mint issues a bearer token for the requested address.
func (h *Handler) Mint(c *fiber.Ctx) error {
	var req mintRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if req.Address == "" {
		return fiber.NewError(http.StatusBadRequest, "address is required")
	}

	token, err := h.service.Mint(req.Address, req.OperatorKey)
	if err != nil {
		if errors.Is(err, ErrBadOperatorKey) {
			return fiber.NewError(http.StatusUnauthorized, "operator key rejected")
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}

	return c.Status(http.StatusOK).JSON(token)
}
