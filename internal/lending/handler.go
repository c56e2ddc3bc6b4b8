package lending

import (
	"errors"
	"math/big"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes the ledger operations over HTTP.
type Handler struct {
	service *Service
}

// NewHandler constructs a lending handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type amountRequest struct {
	Amount string `json:"amount"`
}

type accrueRequest struct {
	Address string `json:"address"`
	AsOf    string `json:"as_of"`
}

type paramsRequest struct {
	CollateralRatio        *string `json:"collateral_ratio"`
	BaseVariableBorrowRate *string `json:"base_variable_borrow_rate"`
	OptimalUtilization     *string `json:"optimal_utilization"`
	AboveOptimalRate       *string `json:"above_optimal_rate"`
	BaseStableBorrowRate   *string `json:"base_stable_borrow_rate"`
	PoolAccount            *string `json:"pool_account"`
}

// Deposit credits collateral funded from the caller's custody balance.
func (h *Handler) Deposit(c *fiber.Ctx) error {
	caller, amount, err := callerAndAmount(c)
	if err != nil {
		return err
	}
	pos, err := h.service.Deposit(c.UserContext(), caller, amount)
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusCreated).JSON(positionResponse(pos))
}

// Withdraw pays collateral back out to the caller.
func (h *Handler) Withdraw(c *fiber.Ctx) error {
	caller, amount, err := callerAndAmount(c)
	if err != nil {
		return err
	}
	pos, err := h.service.Withdraw(c.UserContext(), caller, amount)
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusCreated).JSON(positionResponse(pos))
}

// Borrow records new debt against the caller's collateral.
func (h *Handler) Borrow(c *fiber.Ctx) error {
	caller, amount, err := callerAndAmount(c)
	if err != nil {
		return err
	}
	pos, err := h.service.Borrow(c.UserContext(), caller, amount)
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusCreated).JSON(positionResponse(pos))
}

// Repay reduces the caller's debt.
func (h *Handler) Repay(c *fiber.Ctx) error {
	caller, amount, err := callerAndAmount(c)
	if err != nil {
		return err
	}
	pos, err := h.service.Repay(c.UserContext(), caller, amount)
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusCreated).JSON(positionResponse(pos))
}

// Liquidate writes off the debt of an undercollateralized target position.
func (h *Handler) Liquidate(c *fiber.Ctx) error {
	caller, _ := c.Locals("account").(string)
	target := c.Params("address")
	if target == "" {
		return fiber.NewError(http.StatusBadRequest, "target address is required")
	}
	writtenOff, err := h.service.Liquidate(c.UserContext(), caller, target)
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"account":     target,
		"written_off": writtenOff.String(),
	})
}

// Accrue computes advisory interest for a position and advances its clock.
func (h *Handler) Accrue(c *fiber.Ctx) error {
	var req accrueRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	address := req.Address
	if address == "" {
		address, _ = c.Locals("account").(string)
	}
	if address == "" {
		return fiber.NewError(http.StatusBadRequest, "address is required")
	}

	asOf := time.Now().UTC()
	if req.AsOf != "" {
		parsed, err := time.Parse(time.RFC3339, req.AsOf)
		if err != nil {
			return fiber.NewError(http.StatusBadRequest, "as_of must be RFC3339")
		}
		asOf = parsed
	}

	interest, err := h.service.AccrueInterest(c.UserContext(), address, asOf)
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"account":  address,
		"interest": interest.String(),
		"as_of":    asOf.Format(time.RFC3339Nano),
	})
}

// Position returns the recorded state of a position.
func (h *Handler) Position(c *fiber.Ctx) error {
	address := c.Params("address")
	if address == "" {
		return fiber.NewError(http.StatusBadRequest, "address is required")
	}
	pos, err := h.service.PositionOf(c.UserContext(), address)
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusOK).JSON(positionResponse(pos))
}

// Pool reports the total custodied pool balance.
func (h *Handler) Pool(c *fiber.Ctx) error {
	balance, err := h.service.PoolBalance(c.UserContext())
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"account": h.service.PoolAccount(),
		"balance": balance.String(),
	})
}

// Params returns the rate model configuration.
func (h *Handler) Params(c *fiber.Ctx) error {
	params := h.service.Params()
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"collateral_ratio":          params.CollateralRatio.String(),
		"base_variable_borrow_rate": params.BaseVariableBorrowRate.String(),
		"optimal_utilization":       params.OptimalUtilization.String(),
		"above_optimal_rate":        params.AboveOptimalRate.String(),
		"base_stable_borrow_rate":   params.BaseStableBorrowRate.String(),
		"pool_account":              h.service.PoolAccount(),
	})
}

// UpdateParams applies an operator configuration patch.
func (h *Handler) UpdateParams(c *fiber.Ctx) error {
	caller, _ := c.Locals("account").(string)

	var req paramsRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	patch := ParamsPatch{PoolAccount: req.PoolAccount}
	var err error
	if patch.CollateralRatio, err = parseOptionalAmount(req.CollateralRatio); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid collateral_ratio")
	}
	if patch.BaseVariableBorrowRate, err = parseOptionalAmount(req.BaseVariableBorrowRate); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid base_variable_borrow_rate")
	}
	if patch.OptimalUtilization, err = parseOptionalAmount(req.OptimalUtilization); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid optimal_utilization")
	}
	if patch.AboveOptimalRate, err = parseOptionalAmount(req.AboveOptimalRate); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid above_optimal_rate")
	}
	if patch.BaseStableBorrowRate, err = parseOptionalAmount(req.BaseStableBorrowRate); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid base_stable_borrow_rate")
	}

	if err := h.service.UpdateParams(caller, patch); err != nil {
		return mapError(err)
	}
	return h.Params(c)
}

func callerAndAmount(c *fiber.Ctx) (string, *big.Int, error) {
	caller, _ := c.Locals("account").(string)
	if caller == "" {
		return "", nil, fiber.NewError(http.StatusUnauthorized, "missing account identity")
	}
	var req amountRequest
	if err := c.BodyParser(&req); err != nil {
		return "", nil, fiber.NewError(http.StatusBadRequest, err.Error())
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return "", nil, fiber.NewError(http.StatusBadRequest, "amount must be a positive integer")
	}
	return caller, amount, nil
}

func parseAmount(raw string) (*big.Int, error) {
	if raw == "" {
		return nil, errors.New("amount is required")
	}
	amount, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, errors.New("amount is not an integer")
	}
	return amount, nil
}

func parseOptionalAmount(raw *string) (*big.Int, error) {
	if raw == nil {
		return nil, nil
	}
	return parseAmount(*raw)
}

func positionResponse(pos Position) fiber.Map {
	resp := fiber.Map{
		"address":    pos.Address,
		"collateral": pos.Collateral.String(),
		"debt":       pos.Debt.String(),
	}
	if !pos.LastAccrual.IsZero() {
		resp["last_accrual"] = pos.LastAccrual.Format(time.RFC3339Nano)
	}
	return resp
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ErrZeroAmount), errors.Is(err, ErrOverRepayment), errors.Is(err, ErrNoCollateral):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrInsufficientCollateral), errors.Is(err, ErrInsufficientBalance):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrPositionHealthy):
		return fiber.NewError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrUnauthorized):
		return fiber.NewError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrTransferFailed):
		return fiber.NewError(http.StatusBadGateway, err.Error())
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}
