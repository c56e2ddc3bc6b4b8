package custody

import (
	"context"
	"errors"
	"math/big"
)

var (
	// ErrInsufficientFunds occurs when the source account cannot cover a
	// requested movement.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInvalidAmount indicates a nil, zero or negative amount was supplied.
	ErrInvalidAmount = errors.New("invalid amount")
)

// Vault is the custody capability that moves units of the underlying asset
// between accounts. The lending core never moves value itself; every transfer
// is delegated here and a failure must surface to the caller with no ledger
// mutation left behind.
type Vault interface {
	// Transfer moves amount out of the pool to the destination account.
	Transfer(ctx context.Context, to string, amount *big.Int) error
	// TransferFrom moves amount between two arbitrary accounts.
	TransferFrom(ctx context.Context, from, to string, amount *big.Int) error
	// BalanceOf reports the balance custodied for the given account.
	BalanceOf(ctx context.Context, account string) (*big.Int, error)
}
