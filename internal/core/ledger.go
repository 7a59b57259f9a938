package core

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/tradeapp/exchange-core/internal/domain"
	"github.com/tradeapp/exchange-core/internal/port"
	"go.uber.org/zap"
)

// ledger moves cash and shares between accounts within a transaction.
// Balances never go negative: debit fails instead. Holding rows are
// deleted the moment their quantity reaches zero and recreated on the
// next acquisition.
type ledger struct {
	log *zap.Logger
}

func (l *ledger) debit(ctx context.Context, tx port.Tx, accountID string, amount decimal.Decimal) error {
	acct, err := tx.AccountForUpdate(ctx, accountID)
	if err != nil {
		return err
	}
	if amount.GreaterThan(acct.Balance) {
		l.log.Warn("debit rejected",
			zap.String("account", accountID),
			zap.String("amount", amount.String()),
			zap.String("balance", acct.Balance.String()))
		return domain.ErrInsufficientFunds
	}
	l.log.Info("debit",
		zap.String("account", accountID),
		zap.String("amount", amount.String()))
	return tx.UpdateBalance(ctx, accountID, acct.Balance.Sub(amount))
}

func (l *ledger) credit(ctx context.Context, tx port.Tx, accountID string, amount decimal.Decimal) error {
	acct, err := tx.AccountForUpdate(ctx, accountID)
	if err != nil {
		return err
	}
	l.log.Info("credit",
		zap.String("account", accountID),
		zap.String("amount", amount.String()))
	return tx.UpdateBalance(ctx, accountID, acct.Balance.Add(amount))
}

func (l *ledger) holdingQuantity(ctx context.Context, tx port.Tx, accountID, securityID string) (int64, error) {
	h, err := tx.HoldingForUpdate(ctx, accountID, securityID)
	if err != nil {
		return 0, err
	}
	if h == nil {
		return 0, nil
	}
	return h.Quantity, nil
}

func (l *ledger) removeShares(ctx context.Context, tx port.Tx, accountID string, qty int64, securityID string) error {
	h, err := tx.HoldingForUpdate(ctx, accountID, securityID)
	if err != nil {
		return err
	}
	if h == nil || h.Quantity < qty {
		l.log.Warn("remove shares rejected",
			zap.String("account", accountID),
			zap.String("security", securityID),
			zap.Int64("quantity", qty))
		return domain.ErrInsufficientHoldings
	}
	h.Quantity -= qty
	l.log.Info("remove shares",
		zap.String("account", accountID),
		zap.String("security", securityID),
		zap.Int64("quantity", qty))
	if h.Quantity == 0 {
		return tx.DeleteHolding(ctx, accountID, securityID)
	}
	return tx.UpsertHolding(ctx, h)
}

// addShares credits qty shares to the account. A new row takes
// referencePrice as its average cost; an existing row keeps its average
// cost untouched and only grows in quantity.
func (l *ledger) addShares(ctx context.Context, tx port.Tx, accountID string, qty int64, securityID string, referencePrice decimal.Decimal) error {
	h, err := tx.HoldingForUpdate(ctx, accountID, securityID)
	if err != nil {
		return fmt.Errorf("load holding: %w", err)
	}
	if h == nil {
		h = &domain.Holding{
			AccountID:   accountID,
			SecurityID:  securityID,
			Quantity:    qty,
			AverageCost: referencePrice,
		}
	} else {
		h.Quantity += qty
	}
	l.log.Info("add shares",
		zap.String("account", accountID),
		zap.String("security", securityID),
		zap.Int64("quantity", qty))
	return tx.UpsertHolding(ctx, h)
}
