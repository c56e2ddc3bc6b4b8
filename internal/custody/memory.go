package custody

import (
	"context"
	"math/big"
	"sync"
)

type memoryVault struct {
	mu       sync.RWMutex
	source   string
	balances map[string]*big.Int
}

// NewMemoryVault creates a concurrency-safe in-memory vault. Outbound
// transfers draw from the named source account, which is the pooled balance
// the vault custodies on behalf of the ledger.
func NewMemoryVault(source string) Vault {
	return &memoryVault{
		source:   source,
		balances: map[string]*big.Int{source: big.NewInt(0)},
	}
}

func validAmount(amount *big.Int) bool {
	return amount != nil && amount.Sign() > 0
}

func (v *memoryVault) Transfer(_ context.Context, to string, amount *big.Int) error {
	if !validAmount(amount) {
		return ErrInvalidAmount
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	return v.move(v.source, to, amount)
}

func (v *memoryVault) TransferFrom(_ context.Context, from, to string, amount *big.Int) error {
	if !validAmount(amount) {
		return ErrInvalidAmount
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	return v.move(from, to, amount)
}

func (v *memoryVault) BalanceOf(_ context.Context, account string) (*big.Int, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	balance, ok := v.balances[account]
	if !ok {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(balance), nil
}

// move assumes the caller holds the write lock.
func (v *memoryVault) move(from, to string, amount *big.Int) error {
	fromBalance, ok := v.balances[from]
	if !ok || fromBalance.Cmp(amount) < 0 {
		return ErrInsufficientFunds
	}

	toBalance, ok := v.balances[to]
	if !ok {
		toBalance = big.NewInt(0)
	}

	v.balances[from] = new(big.Int).Sub(fromBalance, amount)
	v.balances[to] = new(big.Int).Add(toBalance, amount)
	return nil
}
