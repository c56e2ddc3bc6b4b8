package custody

import "math/big"

// Mint is a test helper that credits an account balance when using the
// in-memory vault.
func Mint(v Vault, account string, amount int64) {
	if mem, ok := v.(*memoryVault); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		balance, ok := mem.balances[account]
		if !ok {
			balance = big.NewInt(0)
		}
		mem.balances[account] = new(big.Int).Add(balance, big.NewInt(amount))
	}
}
