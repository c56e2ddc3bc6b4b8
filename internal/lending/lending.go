package lending

import (
	"errors"
	"math/big"
	"time"
)

var (
	// ErrZeroAmount occurs when a caller supplies a zero, negative or missing amount.
	ErrZeroAmount = errors.New("amount must be positive")

	// ErrTransferFailed indicates the custodian rejected a value movement.
	ErrTransferFailed = errors.New("custodian transfer failed")

	// ErrInsufficientCollateral indicates a borrow or withdrawal would breach
	// the caller's collateral bound.
	ErrInsufficientCollateral = errors.New("insufficient collateral")

	// ErrInsufficientBalance indicates the pool or the caller's custodied
	// balance cannot cover the requested amount.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrOverRepayment occurs when a repayment exceeds the outstanding debt.
	ErrOverRepayment = errors.New("repayment exceeds outstanding debt")

	// ErrPositionHealthy indicates a liquidation was attempted on a position
	// whose debt is still within its collateral bound.
	ErrPositionHealthy = errors.New("position not undercollateralized")

	// ErrUnauthorized indicates an administrative call from a non-owner principal.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNoCollateral indicates a utilization query against a position holding
	// debt but no collateral.
	ErrNoCollateral = errors.New("no collateral on position")
)

// Scale is the fixed-point denominator shared by utilization values and
// annualized rates.
var Scale = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// SecondsPerYear converts annualized rates into per-second accrual.
const SecondsPerYear = 31_536_000

// Position is the per-account ledger record. Absent accounts read as the
// zero-valued position; records are never deleted, only driven back to zero.
type Position struct {
	Address     string
	Collateral  *big.Int
	Debt        *big.Int
	LastAccrual time.Time
}

// Clone returns a deep copy so callers cannot alias stored big integers.
func (p Position) Clone() Position {
	clone := Position{Address: p.Address, LastAccrual: p.LastAccrual}
	clone.Collateral = cloneInt(p.Collateral)
	clone.Debt = cloneInt(p.Debt)
	return clone
}

func cloneInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
