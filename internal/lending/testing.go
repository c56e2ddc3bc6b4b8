package lending

import "math/big"

// SeedPosition is a test helper that installs a position directly when using
// the in-memory store.
func SeedPosition(s Store, address string, collateral, debt int64) {
	if mem, ok := s.(*memoryStore); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		mem.positions[address] = Position{
			Address:    address,
			Collateral: big.NewInt(collateral),
			Debt:       big.NewInt(debt),
		}
	}
}
