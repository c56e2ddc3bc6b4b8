package notification

import (
	"context"
	"log/slog"
)

const (
	// KindCollateralDeposited signals collateral credited to a position.
	KindCollateralDeposited = "collateral_deposited"
	// KindFundsBorrowed signals new debt recorded against a position.
	KindFundsBorrowed = "funds_borrowed"
	// KindLoanRepaid signals debt reduced on a position.
	KindLoanRepaid = "loan_repaid"
	// KindLiquidation signals a forced debt write-off.
	KindLiquidation = "liquidation"
	// KindTokensWithdrawn signals collateral paid out of the pool.
	KindTokensWithdrawn = "tokens_withdrawn"
)

// Event describes a ledger notification payload.
type Event struct {
	Kind    string
	Account string
	Amount  string
}

// Notifier delivers ledger events to downstream observers.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// LoggerNotifier writes events to the structured logger.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Notify writes the event to the structured logger.
func (n *LoggerNotifier) Notify(_ context.Context, event Event) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("ledger event", "kind", event.Kind, "account", event.Account, "amount", event.Amount)
	return nil
}
