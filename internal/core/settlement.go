package core

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/tradeapp/exchange-core/internal/domain"
	"github.com/tradeapp/exchange-core/internal/port"
	"go.uber.org/zap"
)

// settle transfers money and shares for one fill and folds it into the
// security's price state, all inside the enclosing transaction. The buyer's
// cash was already reserved at admission at the buy order's limit; when the
// fill prices below that limit the surplus goes back to the buyer here, so
// the buyer ends up paying exactly quantity × trade price.
func (e *Engine) settle(ctx context.Context, tx port.Tx, tr *domain.Trade, buyerLimit decimal.Decimal) error {
	if err := tx.SaveTrade(ctx, tr); err != nil {
		return fmt.Errorf("save trade: %w", err)
	}

	if err := e.ledger.credit(ctx, tx, tr.SellerID, tr.Notional()); err != nil {
		return fmt.Errorf("credit seller: %w", err)
	}
	if surplus := buyerLimit.Sub(tr.Price).Mul(decimal.NewFromInt(tr.Quantity)); surplus.IsPositive() {
		if err := e.ledger.credit(ctx, tx, tr.BuyerID, surplus); err != nil {
			return fmt.Errorf("refund buyer surplus: %w", err)
		}
	}
	tr.BalanceSettled = true

	if err := e.ledger.addShares(ctx, tx, tr.BuyerID, tr.Quantity, tr.SecurityID, tr.Price); err != nil {
		return fmt.Errorf("credit buyer holdings: %w", err)
	}
	tr.HoldingsSettled = true

	sec, err := tx.SecurityForUpdate(ctx, tr.SecurityID)
	if err != nil {
		return fmt.Errorf("load security: %w", err)
	}
	sec.ApplyTrade(tr.Price, tr.Quantity)
	if err := tx.UpdateSecurityState(ctx, sec); err != nil {
		return fmt.Errorf("update security state: %w", err)
	}

	// Persist the settlement flags.
	if err := tx.SaveTrade(ctx, tr); err != nil {
		return fmt.Errorf("save trade flags: %w", err)
	}

	e.log.Info("trade settled",
		zap.String("trade", tr.ID),
		zap.String("security", tr.SecurityID),
		zap.Int64("quantity", tr.Quantity),
		zap.String("price", tr.Price.String()))
	return nil
}
