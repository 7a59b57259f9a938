package core

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tradeapp/exchange-core/internal/domain"
	"github.com/tradeapp/exchange-core/internal/port"
	"go.uber.org/zap"
)

// Engine implements order admission, matching, settlement and cancellation.
// Each external request runs inside one repository transaction; the
// storage layer's row locks are the only thing serializing concurrent
// requests against the same book.
type Engine struct {
	repo   port.Repository
	cache  port.QuoteCache
	pub    port.TradePublisher
	ledger *ledger
	log    *zap.Logger
}

// NewEngine wires the engine. cache and pub are optional; pass nil to run
// without quote caching or trade broadcast.
func NewEngine(repo port.Repository, cache port.QuoteCache, pub port.TradePublisher, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		repo:   repo,
		cache:  cache,
		pub:    pub,
		ledger: &ledger{log: log},
		log:    log,
	}
}

// PlaceBuyOrder reserves the full cost (quantity × limit) from the
// account, admits the order and matches it against resting sells. The
// reservation happens up front so concurrently placed orders cannot
// over-commit the same balance.
func (e *Engine) PlaceBuyOrder(ctx context.Context, accountID, symbol string, quantity int64, limitPrice decimal.Decimal) (*domain.Order, []*domain.Trade, error) {
	if err := validateOrderInput(quantity, limitPrice); err != nil {
		return nil, nil, err
	}
	sec, err := e.repo.SecurityBySymbol(ctx, symbol)
	if err != nil {
		return nil, nil, err
	}

	var order *domain.Order
	var trades []*domain.Trade
	err = withTx(ctx, e.repo, func(tx port.Tx) error {
		cost := limitPrice.Mul(decimal.NewFromInt(quantity))
		if err := e.ledger.debit(ctx, tx, accountID, cost); err != nil {
			return err
		}
		order = e.newOrder(accountID, sec.ID, domain.Buy, quantity, limitPrice)
		if err := tx.SaveOrder(ctx, order); err != nil {
			return fmt.Errorf("save order: %w", err)
		}
		e.log.Info("buy order admitted",
			zap.String("order", order.ID),
			zap.String("symbol", symbol),
			zap.Int64("quantity", quantity),
			zap.String("limit", limitPrice.String()))
		trades, err = e.matchOrder(ctx, tx, order)
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	e.afterCommit(ctx, symbol, trades)
	return order, trades, nil
}

// PlaceSellOrder removes the shares from the account's holding up front,
// admits the order and matches it against resting buys.
func (e *Engine) PlaceSellOrder(ctx context.Context, accountID, symbol string, quantity int64, limitPrice decimal.Decimal) (*domain.Order, []*domain.Trade, error) {
	if err := validateOrderInput(quantity, limitPrice); err != nil {
		return nil, nil, err
	}
	sec, err := e.repo.SecurityBySymbol(ctx, symbol)
	if err != nil {
		return nil, nil, err
	}

	var order *domain.Order
	var trades []*domain.Trade
	err = withTx(ctx, e.repo, func(tx port.Tx) error {
		if _, err := tx.AccountForUpdate(ctx, accountID); err != nil {
			return err
		}
		if err := e.ledger.removeShares(ctx, tx, accountID, quantity, sec.ID); err != nil {
			return err
		}
		order = e.newOrder(accountID, sec.ID, domain.Sell, quantity, limitPrice)
		if err := tx.SaveOrder(ctx, order); err != nil {
			return fmt.Errorf("save order: %w", err)
		}
		e.log.Info("sell order admitted",
			zap.String("order", order.ID),
			zap.String("symbol", symbol),
			zap.Int64("quantity", quantity),
			zap.String("limit", limitPrice.String()))
		trades, err = e.matchOrder(ctx, tx, order)
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	e.afterCommit(ctx, symbol, trades)
	return order, trades, nil
}

// CancelOrder refunds the unfilled portion of an open order and marks it
// CANCELLED. The order row is locked first, so a cancel racing an
// in-flight match either fully precedes or fully follows the fill.
func (e *Engine) CancelOrder(ctx context.Context, orderID string) error {
	return withTx(ctx, e.repo, func(tx port.Tx) error {
		o, err := tx.OrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if o.Terminal() {
			e.log.Warn("cancel rejected, order terminal",
				zap.String("order", orderID),
				zap.String("status", string(o.Status)))
			return domain.ErrOrderTerminal
		}
		if o.Side == domain.Buy {
			refund := o.Price.Mul(decimal.NewFromInt(o.Remaining))
			if err := e.ledger.credit(ctx, tx, o.AccountID, refund); err != nil {
				return err
			}
		} else {
			sec, err := tx.SecurityForUpdate(ctx, o.SecurityID)
			if err != nil {
				return err
			}
			if err := e.ledger.addShares(ctx, tx, o.AccountID, o.Remaining, o.SecurityID, sec.CurrentPrice); err != nil {
				return err
			}
		}
		o.Status = domain.Cancelled
		e.log.Info("order cancelled", zap.String("order", orderID))
		return tx.SaveOrder(ctx, o)
	})
}

// TradeHistory returns the account's trades, most recent first.
func (e *Engine) TradeHistory(ctx context.Context, accountID string) ([]*domain.Trade, error) {
	if _, err := e.repo.AccountByID(ctx, accountID); err != nil {
		return nil, err
	}
	return e.repo.TradesForAccount(ctx, accountID)
}

// OpenOrders returns the account's open orders, most recent first.
func (e *Engine) OpenOrders(ctx context.Context, accountID string) ([]*domain.Order, error) {
	if _, err := e.repo.AccountByID(ctx, accountID); err != nil {
		return nil, err
	}
	return e.repo.OpenOrders(ctx, accountID)
}

// Quote returns the security's price state, read through the cache.
func (e *Engine) Quote(ctx context.Context, symbol string) (*domain.Security, error) {
	if e.cache != nil {
		if sec, err := e.cache.GetQuote(ctx, symbol); err == nil && sec != nil {
			return sec, nil
		}
	}
	sec, err := e.repo.SecurityBySymbol(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if e.cache != nil {
		_ = e.cache.SetQuote(ctx, symbol, sec)
	}
	return sec, nil
}

func (e *Engine) newOrder(accountID, securityID string, side domain.Side, quantity int64, limitPrice decimal.Decimal) *domain.Order {
	return &domain.Order{
		ID:         uuid.New().String(),
		AccountID:  accountID,
		SecurityID: securityID,
		Side:       side,
		Price:      limitPrice,
		Quantity:   quantity,
		Remaining:  quantity,
		Status:     domain.Pending,
		CreatedAt:  time.Now(),
	}
}

// afterCommit refreshes the quote cache and broadcasts settled trades.
// It runs only after the matching transaction committed; the trade id is
// the idempotency key for downstream consumers.
func (e *Engine) afterCommit(ctx context.Context, symbol string, trades []*domain.Trade) {
	if len(trades) == 0 {
		return
	}
	if e.pub != nil {
		for _, tr := range trades {
			if err := e.pub.PublishTrade(ctx, tr); err != nil {
				e.log.Error("trade broadcast failed",
					zap.String("trade", tr.ID), zap.Error(err))
			}
		}
	}
	if e.cache != nil {
		if sec, err := e.repo.SecurityBySymbol(ctx, symbol); err == nil {
			_ = e.cache.SetQuote(ctx, symbol, sec)
		} else {
			_ = e.cache.Invalidate(ctx, symbol)
		}
	}
}

func validateOrderInput(quantity int64, limitPrice decimal.Decimal) error {
	if quantity <= 0 {
		return &domain.ValidationError{Message: "quantity must be > 0"}
	}
	if !limitPrice.IsPositive() {
		return &domain.ValidationError{Message: "limit price must be > 0"}
	}
	return nil
}
