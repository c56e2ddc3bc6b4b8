package lending

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/kivu-credit/kivu_credit/internal/custody"
	"github.com/kivu-credit/kivu_credit/internal/notification"
)

const (
	testPool  = "pool:collateral"
	testOwner = "0xowner"
)

type recordingNotifier struct {
	events []notification.Event
}

func (n *recordingNotifier) Notify(_ context.Context, event notification.Event) error {
	n.events = append(n.events, event)
	return nil
}

func (n *recordingNotifier) last() notification.Event {
	if len(n.events) == 0 {
		return notification.Event{}
	}
	return n.events[len(n.events)-1]
}

// hookVault lets tests inject failures or reentrant calls around transfers.
type hookVault struct {
	custody.Vault
	onTransfer     func(to string, amount *big.Int) error
	onTransferFrom func(from, to string, amount *big.Int) error
}

func (v *hookVault) Transfer(ctx context.Context, to string, amount *big.Int) error {
	if v.onTransfer != nil {
		if err := v.onTransfer(to, amount); err != nil {
			return err
		}
	}
	return v.Vault.Transfer(ctx, to, amount)
}

func (v *hookVault) TransferFrom(ctx context.Context, from, to string, amount *big.Int) error {
	if v.onTransferFrom != nil {
		if err := v.onTransferFrom(from, to, amount); err != nil {
			return err
		}
	}
	return v.Vault.TransferFrom(ctx, from, to, amount)
}

// referenceParams mirrors the historical test configuration: ratio 150, base
// rate 100, optimal utilization 80, above-optimal rate 150, stable base 50.
func referenceParams() RateParams {
	return RateParams{
		CollateralRatio:        big.NewInt(150),
		BaseVariableBorrowRate: big.NewInt(100),
		OptimalUtilization:     big.NewInt(80),
		AboveOptimalRate:       big.NewInt(150),
		BaseStableBorrowRate:   big.NewInt(50),
	}
}

func newTestService(params RateParams, clock func() time.Time) (*Service, Store, custody.Vault, *recordingNotifier) {
	store := NewMemoryStore()
	vault := custody.NewMemoryVault(testPool)
	notifier := &recordingNotifier{}
	svc := NewService(store, vault, notifier, Options{
		Owner:       testOwner,
		PoolAccount: testPool,
		Params:      params,
		Clock:       clock,
	})
	return svc, store, vault, notifier
}

func TestDepositBorrowRepayScenario(t *testing.T) {
	svc, _, vault, notifier := newTestService(referenceParams(), nil)
	ctx := context.Background()

	custody.Mint(vault, "alice", 1_200)

	pos, err := svc.Deposit(ctx, "alice", big.NewInt(1_000))
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if pos.Collateral.Cmp(big.NewInt(1_000)) != 0 {
		t.Fatalf("expected collateral 1000, got %s", pos.Collateral)
	}

	pos, err = svc.Borrow(ctx, "alice", big.NewInt(500))
	if err != nil {
		t.Fatalf("borrow: %v", err)
	}
	if pos.Collateral.Cmp(big.NewInt(1_000)) != 0 || pos.Debt.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("expected (1000, 500), got (%s, %s)", pos.Collateral, pos.Debt)
	}
	if notifier.last().Kind != notification.KindFundsBorrowed {
		t.Fatalf("expected borrow event, got %q", notifier.last().Kind)
	}

	pos, err = svc.Repay(ctx, "alice", big.NewInt(200))
	if err != nil {
		t.Fatalf("repay: %v", err)
	}
	if pos.Debt.Cmp(big.NewInt(300)) != 0 {
		t.Fatalf("expected debt 300, got %s", pos.Debt)
	}

	pooled, err := svc.PoolBalance(ctx)
	if err != nil {
		t.Fatalf("pool balance: %v", err)
	}
	if pooled.Cmp(big.NewInt(1_200)) != 0 {
		t.Fatalf("expected pool 1200 after deposit and repay, got %s", pooled)
	}
}

func TestBorrowBoundaryIsAdmitted(t *testing.T) {
	svc, store, _, _ := newTestService(referenceParams(), nil)
	ctx := context.Background()

	SeedPosition(store, "bob", 10, 0)

	// 10 * 150 == 1500: the exact boundary must succeed.
	if _, err := svc.Borrow(ctx, "bob", big.NewInt(1_500)); err != nil {
		t.Fatalf("boundary borrow: %v", err)
	}
	if _, err := svc.Borrow(ctx, "bob", big.NewInt(1)); !errors.Is(err, ErrInsufficientCollateral) {
		t.Fatalf("expected ErrInsufficientCollateral past the boundary, got %v", err)
	}
}

func TestZeroAmountsRejected(t *testing.T) {
	svc, _, _, _ := newTestService(referenceParams(), nil)
	ctx := context.Background()

	ops := map[string]func() error{
		"deposit":  func() error { _, err := svc.Deposit(ctx, "alice", big.NewInt(0)); return err },
		"withdraw": func() error { _, err := svc.Withdraw(ctx, "alice", big.NewInt(0)); return err },
		"borrow":   func() error { _, err := svc.Borrow(ctx, "alice", nil); return err },
		"repay":    func() error { _, err := svc.Repay(ctx, "alice", big.NewInt(-5)); return err },
	}
	for name, op := range ops {
		if err := op(); !errors.Is(err, ErrZeroAmount) {
			t.Fatalf("%s: expected ErrZeroAmount, got %v", name, err)
		}
	}
}

func TestDepositRejectedTransferLeavesNoTrace(t *testing.T) {
	svc, _, _, notifier := newTestService(referenceParams(), nil)
	ctx := context.Background()

	// alice holds nothing, so the custodian rejects the pull.
	if _, err := svc.Deposit(ctx, "alice", big.NewInt(100)); !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("expected ErrTransferFailed, got %v", err)
	}

	pos, err := svc.PositionOf(ctx, "alice")
	if err != nil {
		t.Fatalf("position: %v", err)
	}
	if pos.Collateral.Sign() != 0 {
		t.Fatalf("collateral mutated after rejected transfer: %s", pos.Collateral)
	}
	if len(notifier.events) != 0 {
		t.Fatalf("no event expected after rejected transfer, got %v", notifier.events)
	}
}

func TestWithdrawIsReversibleAndGated(t *testing.T) {
	svc, _, vault, _ := newTestService(referenceParams(), nil)
	ctx := context.Background()

	custody.Mint(vault, "alice", 1_000)
	if _, err := svc.Deposit(ctx, "alice", big.NewInt(1_000)); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	pos, err := svc.Withdraw(ctx, "alice", big.NewInt(400))
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if pos.Collateral.Cmp(big.NewInt(600)) != 0 {
		t.Fatalf("expected collateral 600, got %s", pos.Collateral)
	}

	balance, err := vault.BalanceOf(ctx, "alice")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Cmp(big.NewInt(400)) != 0 {
		t.Fatalf("expected alice to hold 400 again, got %s", balance)
	}

	// More than the caller's own recorded collateral is refused even though
	// the pool could cover it.
	custody.Mint(vault, testPool, 10_000)
	if _, err := svc.Withdraw(ctx, "alice", big.NewInt(601)); !errors.Is(err, ErrInsufficientCollateral) {
		t.Fatalf("expected ErrInsufficientCollateral, got %v", err)
	}
}

func TestWithdrawExceedingPoolFails(t *testing.T) {
	svc, store, _, _ := newTestService(referenceParams(), nil)
	ctx := context.Background()

	// Recorded collateral without matching pooled funds.
	SeedPosition(store, "bob", 5_000, 0)

	if _, err := svc.Withdraw(ctx, "bob", big.NewInt(1)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
}

func TestWithdrawPayoutFailureRestoresCollateral(t *testing.T) {
	store := NewMemoryStore()
	inner := custody.NewMemoryVault(testPool)
	rejected := errors.New("acquirer offline")
	vault := &hookVault{
		Vault:      inner,
		onTransfer: func(string, *big.Int) error { return rejected },
	}
	svc := NewService(store, vault, nil, Options{
		Owner:       testOwner,
		PoolAccount: testPool,
		Params:      referenceParams(),
	})
	ctx := context.Background()

	custody.Mint(inner, "alice", 500)
	if _, err := svc.Deposit(ctx, "alice", big.NewInt(500)); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	if _, err := svc.Withdraw(ctx, "alice", big.NewInt(200)); !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("expected ErrTransferFailed, got %v", err)
	}

	pos, err := svc.PositionOf(ctx, "alice")
	if err != nil {
		t.Fatalf("position: %v", err)
	}
	if pos.Collateral.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("collateral not restored after failed payout: %s", pos.Collateral)
	}
}

func TestRepayPolicies(t *testing.T) {
	svc, store, vault, _ := newTestService(referenceParams(), nil)
	ctx := context.Background()

	SeedPosition(store, "carol", 10, 500)

	// Over-repayment fails before any value moves.
	custody.Mint(vault, "carol", 1_000)
	if _, err := svc.Repay(ctx, "carol", big.NewInt(501)); !errors.Is(err, ErrOverRepayment) {
		t.Fatalf("expected ErrOverRepayment, got %v", err)
	}
	balance, _ := vault.BalanceOf(ctx, "carol")
	if balance.Cmp(big.NewInt(1_000)) != 0 {
		t.Fatalf("balance moved on failed repay: %s", balance)
	}

	// Repaying the full debt drives it to zero.
	if _, err := svc.Repay(ctx, "carol", big.NewInt(500)); err != nil {
		t.Fatalf("full repay: %v", err)
	}
	pos, _ := svc.PositionOf(ctx, "carol")
	if pos.Debt.Sign() != 0 {
		t.Fatalf("expected zero debt, got %s", pos.Debt)
	}
}

func TestRepayInsufficientExternalBalance(t *testing.T) {
	svc, store, vault, _ := newTestService(referenceParams(), nil)
	ctx := context.Background()

	SeedPosition(store, "carol", 10, 500)
	custody.Mint(vault, "carol", 100)

	if _, err := svc.Repay(ctx, "carol", big.NewInt(200)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
}

func TestLiquidationStrictCondition(t *testing.T) {
	svc, store, _, notifier := newTestService(referenceParams(), nil)
	ctx := context.Background()

	// Debt exactly at the limit is still healthy.
	SeedPosition(store, "dave", 1, 150)
	if _, err := svc.Liquidate(ctx, "liquidator", "dave"); !errors.Is(err, ErrPositionHealthy) {
		t.Fatalf("expected ErrPositionHealthy at the boundary, got %v", err)
	}

	SeedPosition(store, "dave", 1, 151)
	writtenOff, err := svc.Liquidate(ctx, "liquidator", "dave")
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	if writtenOff.Cmp(big.NewInt(151)) != 0 {
		t.Fatalf("expected write-off 151, got %s", writtenOff)
	}

	pos, _ := svc.PositionOf(ctx, "dave")
	if pos.Debt.Sign() != 0 {
		t.Fatalf("expected zero debt after liquidation, got %s", pos.Debt)
	}
	if pos.Collateral.Cmp(big.NewInt(1)) != 0 {
		t.Fatalf("collateral must not be seized, got %s", pos.Collateral)
	}
	if notifier.last().Kind != notification.KindLiquidation || notifier.last().Amount != "151" {
		t.Fatalf("unexpected liquidation event: %+v", notifier.last())
	}

	// Immediately liquidating again must fail.
	if _, err := svc.Liquidate(ctx, "liquidator", "dave"); !errors.Is(err, ErrPositionHealthy) {
		t.Fatalf("expected ErrPositionHealthy on repeat, got %v", err)
	}
}

func TestLiquidationAfterParameterTightening(t *testing.T) {
	svc, _, vault, _ := newTestService(referenceParams(), nil)
	ctx := context.Background()

	custody.Mint(vault, "erin", 1_000)
	if _, err := svc.Deposit(ctx, "erin", big.NewInt(1_000)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := svc.Borrow(ctx, "erin", big.NewInt(800)); err != nil {
		t.Fatalf("borrow: %v", err)
	}

	// 800 is well within 1000 * 150, so the position is healthy.
	if _, err := svc.Liquidate(ctx, "liquidator", "erin"); !errors.Is(err, ErrPositionHealthy) {
		t.Fatalf("expected healthy position, got %v", err)
	}

	// The owner tightening the ratio pushes the position underwater.
	if err := svc.UpdateParams(testOwner, ParamsPatch{CollateralRatio: big.NewInt(0)}); err != nil {
		t.Fatalf("update params: %v", err)
	}
	writtenOff, err := svc.Liquidate(ctx, "liquidator", "erin")
	if err != nil {
		t.Fatalf("liquidate after tightening: %v", err)
	}
	if writtenOff.Cmp(big.NewInt(800)) != 0 {
		t.Fatalf("expected write-off 800, got %s", writtenOff)
	}
}

func TestUpdateParamsAuthorization(t *testing.T) {
	svc, _, _, _ := newTestService(referenceParams(), nil)

	if err := svc.UpdateParams("mallory", ParamsPatch{CollateralRatio: big.NewInt(1)}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := svc.UpdateParams("", ParamsPatch{}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for empty caller, got %v", err)
	}

	pool := "pool:v2"
	if err := svc.UpdateParams(testOwner, ParamsPatch{
		AboveOptimalRate: big.NewInt(175),
		PoolAccount:      &pool,
	}); err != nil {
		t.Fatalf("owner update: %v", err)
	}
	if got := svc.Params().AboveOptimalRate; got.Cmp(big.NewInt(175)) != 0 {
		t.Fatalf("expected above-optimal 175, got %s", got)
	}
	if svc.PoolAccount() != pool {
		t.Fatalf("expected pool account %q, got %q", pool, svc.PoolAccount())
	}
	// Untouched fields survive the patch.
	if got := svc.Params().CollateralRatio; got.Cmp(big.NewInt(150)) != 0 {
		t.Fatalf("collateral ratio changed unexpectedly: %s", got)
	}
}

func TestAccrueInterestAdvisory(t *testing.T) {
	params := RateParams{
		CollateralRatio:        big.NewInt(150),
		BaseVariableBorrowRate: percent(2),
		OptimalUtilization:     percent(80),
		AboveOptimalRate:       percent(10),
		BaseStableBorrowRate:   percent(1),
	}

	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	svc, _, vault, _ := newTestService(params, func() time.Time { return start })
	ctx := context.Background()

	custody.Mint(vault, "alice", 1_000)
	if _, err := svc.Deposit(ctx, "alice", big.NewInt(1_000)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := svc.Borrow(ctx, "alice", big.NewInt(500)); err != nil {
		t.Fatalf("borrow: %v", err)
	}

	// Utilization 0.5 -> rate 7% annualized; one year on 500 owes 35.
	oneYear := start.Add(SecondsPerYear * time.Second)
	interest, err := svc.AccrueInterest(ctx, "alice", oneYear)
	if err != nil {
		t.Fatalf("accrue: %v", err)
	}
	if interest.Cmp(big.NewInt(35)) != 0 {
		t.Fatalf("expected interest 35, got %s", interest)
	}

	// Advisory only: the stored debt does not compound.
	pos, _ := svc.PositionOf(ctx, "alice")
	if pos.Debt.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("debt compounded unexpectedly: %s", pos.Debt)
	}
	if !pos.LastAccrual.Equal(oneYear) {
		t.Fatalf("accrual clock not advanced: %s", pos.LastAccrual)
	}

	// Re-accruing at the same instant owes nothing further.
	interest, err = svc.AccrueInterest(ctx, "alice", oneYear)
	if err != nil {
		t.Fatalf("re-accrue: %v", err)
	}
	if interest.Sign() != 0 {
		t.Fatalf("expected zero interest, got %s", interest)
	}

	// A clock that moved backwards clamps to zero elapsed time.
	interest, err = svc.AccrueInterest(ctx, "alice", start)
	if err != nil {
		t.Fatalf("backwards accrue: %v", err)
	}
	if interest.Sign() != 0 {
		t.Fatalf("expected clamped interest, got %s", interest)
	}
}

func TestAccrueInterestDegenerateCases(t *testing.T) {
	svc, store, _, _ := newTestService(referenceParams(), nil)
	ctx := context.Background()

	// No debt: nothing owed, clock still advances.
	asOf := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	interest, err := svc.AccrueInterest(ctx, "empty", asOf)
	if err != nil {
		t.Fatalf("accrue empty: %v", err)
	}
	if interest.Sign() != 0 {
		t.Fatalf("expected zero interest, got %s", interest)
	}
	pos, _ := svc.PositionOf(ctx, "empty")
	if !pos.LastAccrual.Equal(asOf) {
		t.Fatalf("clock not advanced for empty position: %s", pos.LastAccrual)
	}

	// Debt without collateral has no defined utilization.
	SeedPosition(store, "broken", 0, 100)
	if _, err := svc.AccrueInterest(ctx, "broken", asOf); !errors.Is(err, ErrNoCollateral) {
		t.Fatalf("expected ErrNoCollateral, got %v", err)
	}
}

func TestReentrantCustodianObservesCommittedState(t *testing.T) {
	store := NewMemoryStore()
	inner := custody.NewMemoryVault(testPool)

	var svc *Service
	var observed *big.Int
	vault := &hookVault{
		Vault: inner,
		onTransfer: func(string, *big.Int) error {
			// Re-enter the ledger mid-payout: the collateral debit must
			// already be committed.
			pos, err := svc.PositionOf(context.Background(), "alice")
			if err != nil {
				return err
			}
			observed = pos.Collateral
			return nil
		},
	}
	svc = NewService(store, vault, nil, Options{
		Owner:       testOwner,
		PoolAccount: testPool,
		Params:      referenceParams(),
	})
	ctx := context.Background()

	custody.Mint(inner, "alice", 1_000)
	if _, err := svc.Deposit(ctx, "alice", big.NewInt(1_000)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := svc.Withdraw(ctx, "alice", big.NewInt(400)); err != nil {
		t.Fatalf("withdraw: %v", err)
	}

	if observed == nil {
		t.Fatal("reentrant callback never ran")
	}
	if observed.Cmp(big.NewInt(600)) != 0 {
		t.Fatalf("reentrant caller saw uncommitted collateral %s, want 600", observed)
	}
}
