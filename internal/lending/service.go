package lending

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/kivu-credit/kivu_credit/internal/custody"
	"github.com/kivu-credit/kivu_credit/internal/notification"
)

// Service is the lending ledger engine. It owns every mutation of position
// state and delegates all value movement to the custody vault.
//
// Ordering discipline: outbound value movement happens only after the
// guarding ledger mutation has committed, and inbound movement commits its
// ledger credit only after the vault confirmed the transfer. A custodian that
// re-enters the service therefore observes fully-committed state, never a
// half-applied operation.
type Service struct {
	store    Store
	vault    custody.Vault
	notifier notification.Notifier
	owner    string
	now      func() time.Time

	mu     sync.RWMutex
	params RateParams
	pool   string
}

// Options configures a lending service.
type Options struct {
	// Owner is the principal allowed to mutate rate parameters.
	Owner string
	// PoolAccount is the custody account holding pooled collateral.
	PoolAccount string
	// Params seeds the rate model configuration.
	Params RateParams
	// Clock overrides the time source; defaults to time.Now.
	Clock func() time.Time
}

// NewService builds a lending service instance.
func NewService(store Store, vault custody.Vault, notifier notification.Notifier, opts Options) *Service {
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		store:    store,
		vault:    vault,
		notifier: notifier,
		owner:    opts.Owner,
		now:      clock,
		params:   opts.Params.Clone(),
		pool:     opts.PoolAccount,
	}
}

// Params returns a copy of the current rate model configuration.
func (s *Service) Params() RateParams {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.params.Clone()
}

// PoolAccount returns the custody account code holding pooled collateral.
func (s *Service) PoolAccount() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pool
}

// ParamsPatch carries the operator-settable configuration values. Nil fields
// are left unchanged.
type ParamsPatch struct {
	CollateralRatio        *big.Int
	BaseVariableBorrowRate *big.Int
	OptimalUtilization     *big.Int
	AboveOptimalRate       *big.Int
	BaseStableBorrowRate   *big.Int
	PoolAccount            *string
}

// UpdateParams applies a configuration patch. Only the owner principal may
// call it; anyone else receives ErrUnauthorized.
func (s *Service) UpdateParams(caller string, patch ParamsPatch) error {
	if caller == "" || caller != s.owner {
		return ErrUnauthorized
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if patch.CollateralRatio != nil {
		s.params.CollateralRatio = new(big.Int).Set(patch.CollateralRatio)
	}
	if patch.BaseVariableBorrowRate != nil {
		s.params.BaseVariableBorrowRate = new(big.Int).Set(patch.BaseVariableBorrowRate)
	}
	if patch.OptimalUtilization != nil {
		s.params.OptimalUtilization = new(big.Int).Set(patch.OptimalUtilization)
	}
	if patch.AboveOptimalRate != nil {
		s.params.AboveOptimalRate = new(big.Int).Set(patch.AboveOptimalRate)
	}
	if patch.BaseStableBorrowRate != nil {
		s.params.BaseStableBorrowRate = new(big.Int).Set(patch.BaseStableBorrowRate)
	}
	if patch.PoolAccount != nil && *patch.PoolAccount != "" {
		s.pool = *patch.PoolAccount
	}
	return nil
}

// PositionOf returns the caller-visible state of a position.
func (s *Service) PositionOf(ctx context.Context, address string) (Position, error) {
	return s.store.Position(ctx, address)
}

// PoolBalance reports the total asset balance the vault custodies for the pool.
func (s *Service) PoolBalance(ctx context.Context) (*big.Int, error) {
	return s.vault.BalanceOf(ctx, s.PoolAccount())
}

// Deposit moves amount from the caller into the pool and credits the caller's
// collateral. The vault transfer is confirmed before the ledger credit, so a
// rejected transfer leaves no ledger change.
func (s *Service) Deposit(ctx context.Context, caller string, amount *big.Int) (Position, error) {
	if err := checkAmount(amount); err != nil {
		return Position{}, err
	}

	if err := s.vault.TransferFrom(ctx, caller, s.PoolAccount(), amount); err != nil {
		return Position{}, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	var updated Position
	err := s.store.Update(ctx, caller, func(pos *Position) error {
		pos.Collateral = new(big.Int).Add(pos.Collateral, amount)
		if pos.LastAccrual.IsZero() {
			pos.LastAccrual = s.now().UTC()
		}
		updated = pos.Clone()
		return nil
	})
	if err != nil {
		return Position{}, err
	}

	s.notify(ctx, notification.KindCollateralDeposited, caller, amount)
	return updated, nil
}

// Withdraw pays collateral out of the pool back to the caller. It is gated by
// both the pooled balance and the caller's own recorded collateral, and the
// collateral debit commits before the vault pays out. A rejected payout is
// compensated by re-crediting the debit.
func (s *Service) Withdraw(ctx context.Context, caller string, amount *big.Int) (Position, error) {
	if err := checkAmount(amount); err != nil {
		return Position{}, err
	}

	pooled, err := s.vault.BalanceOf(ctx, s.PoolAccount())
	if err != nil {
		return Position{}, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	if pooled.Cmp(amount) < 0 {
		return Position{}, ErrInsufficientBalance
	}

	var updated Position
	err = s.store.Update(ctx, caller, func(pos *Position) error {
		if pos.Collateral.Cmp(amount) < 0 {
			return ErrInsufficientCollateral
		}
		pos.Collateral = new(big.Int).Sub(pos.Collateral, amount)
		updated = pos.Clone()
		return nil
	})
	if err != nil {
		return Position{}, err
	}

	if err := s.vault.Transfer(ctx, caller, amount); err != nil {
		restoreErr := s.store.Update(ctx, caller, func(pos *Position) error {
			pos.Collateral = new(big.Int).Add(pos.Collateral, amount)
			return nil
		})
		if restoreErr != nil {
			return Position{}, fmt.Errorf("restore collateral after failed payout: %v: %w", restoreErr, ErrTransferFailed)
		}
		return Position{}, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	s.notify(ctx, notification.KindTokensWithdrawn, caller, amount)
	return updated, nil
}

// Borrow records new debt against the caller's collateral. Admission requires
// collateral * collateralRatio >= debt + amount; the boundary case is
// admitted. No asset is disbursed by the ledger itself.
func (s *Service) Borrow(ctx context.Context, caller string, amount *big.Int) (Position, error) {
	if err := checkAmount(amount); err != nil {
		return Position{}, err
	}
	params := s.Params()

	var updated Position
	err := s.store.Update(ctx, caller, func(pos *Position) error {
		limit := params.BorrowLimit(pos.Collateral)
		wanted := new(big.Int).Add(pos.Debt, amount)
		if limit.Cmp(wanted) < 0 {
			return ErrInsufficientCollateral
		}
		pos.Debt = wanted
		if pos.LastAccrual.IsZero() {
			pos.LastAccrual = s.now().UTC()
		}
		updated = pos.Clone()
		return nil
	})
	if err != nil {
		return Position{}, err
	}

	s.notify(ctx, notification.KindFundsBorrowed, caller, amount)
	return updated, nil
}

// Repay moves amount from the caller into the pool and reduces debt by the
// same amount. Repaying more than the outstanding debt fails with
// ErrOverRepayment before any value moves.
func (s *Service) Repay(ctx context.Context, caller string, amount *big.Int) (Position, error) {
	if err := checkAmount(amount); err != nil {
		return Position{}, err
	}

	pos, err := s.store.Position(ctx, caller)
	if err != nil {
		return Position{}, err
	}
	if pos.Debt.Cmp(amount) < 0 {
		return Position{}, ErrOverRepayment
	}

	balance, err := s.vault.BalanceOf(ctx, caller)
	if err != nil {
		return Position{}, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	if balance.Cmp(amount) < 0 {
		return Position{}, ErrInsufficientBalance
	}

	if err := s.vault.TransferFrom(ctx, caller, s.PoolAccount(), amount); err != nil {
		return Position{}, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	var updated Position
	err = s.store.Update(ctx, caller, func(pos *Position) error {
		if pos.Debt.Cmp(amount) < 0 {
			return ErrOverRepayment
		}
		pos.Debt = new(big.Int).Sub(pos.Debt, amount)
		updated = pos.Clone()
		return nil
	})
	if err != nil {
		return Position{}, err
	}

	s.notify(ctx, notification.KindLoanRepaid, caller, amount)
	return updated, nil
}

// Liquidate zeroes the debt of a position whose debt strictly exceeds its
// borrow limit. Collateral is not seized and the caller earns no reward; the
// write-off amount is reported in the emitted event.
func (s *Service) Liquidate(ctx context.Context, caller, target string) (*big.Int, error) {
	params := s.Params()

	writtenOff := big.NewInt(0)
	err := s.store.Update(ctx, target, func(pos *Position) error {
		limit := params.BorrowLimit(pos.Collateral)
		if pos.Debt.Cmp(limit) <= 0 {
			return ErrPositionHealthy
		}
		writtenOff = new(big.Int).Set(pos.Debt)
		pos.Debt = big.NewInt(0)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, notification.KindLiquidation, target, writtenOff)
	return writtenOff, nil
}

// AccrueInterest computes the interest owed by a position since its last
// accrual and advances the accrual clock. The result is advisory: it is
// reported to the caller but not compounded into the stored debt.
func (s *Service) AccrueInterest(ctx context.Context, address string, asOf time.Time) (*big.Int, error) {
	params := s.Params()

	interest := big.NewInt(0)
	err := s.store.Update(ctx, address, func(pos *Position) error {
		if pos.Debt.Sign() > 0 {
			utilization, err := params.Utilization(pos.Collateral, pos.Debt)
			if err != nil {
				return err
			}
			rate := params.BorrowRate(utilization)

			elapsed := int64(0)
			if !pos.LastAccrual.IsZero() && asOf.After(pos.LastAccrual) {
				elapsed = int64(asOf.Sub(pos.LastAccrual) / time.Second)
			}

			interest = new(big.Int).Mul(pos.Debt, rate)
			interest.Mul(interest, big.NewInt(elapsed))
			interest.Quo(interest, new(big.Int).Mul(Scale, big.NewInt(SecondsPerYear)))
		}
		pos.LastAccrual = asOf.UTC()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return interest, nil
}

func (s *Service) notify(ctx context.Context, kind, account string, amount *big.Int) {
	if s.notifier == nil {
		return
	}
	_ = s.notifier.Notify(ctx, notification.Event{Kind: kind, Account: account, Amount: amount.String()})
}

func checkAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}
	return nil
}
