package lending

import "context"

// Store persists per-account positions. Reads of absent accounts return the
// zero-valued position for that address; records are created on first write.
type Store interface {
	// Position fetches a deep copy of the stored position.
	Position(ctx context.Context, address string) (Position, error)
	// Update applies fn to the current position as one atomic check-and-mutate
	// step. If fn returns an error the position is left untouched. No other
	// mutation of the same account is observed while fn runs.
	Update(ctx context.Context, address string, fn func(*Position) error) error
}
