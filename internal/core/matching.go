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

// matchOrder runs one greedy pass of the incoming order against the locked
// resting counter-orders and settles every fill before moving to the next
// candidate. Candidates arrive from the repository already price-sorted
// (best first, then created_at, then id), so the walk itself is a single
// linear scan. Each fill executes at the resting order's price.
func (e *Engine) matchOrder(ctx context.Context, tx port.Tx, incoming *domain.Order) ([]*domain.Trade, error) {
	candidates, err := tx.LockCandidates(ctx, incoming.SecurityID, incoming.Side.Opposite(), incoming.Price)
	if err != nil {
		return nil, fmt.Errorf("lock candidates: %w", err)
	}

	target := incoming.Remaining
	var filled int64
	var trades []*domain.Trade

	for _, cand := range candidates {
		if filled == target {
			break
		}
		var qty int64
		if cand.Remaining+filled <= target {
			// Candidate fully consumed.
			qty = cand.Remaining
			cand.Remaining = 0
			cand.Status = domain.Filled
		} else {
			// Candidate partially consumed; the pass ends here.
			qty = target - filled
			cand.Remaining -= qty
			cand.Status = domain.PartiallyFilled
		}
		filled += qty
		if err := tx.SaveOrder(ctx, cand); err != nil {
			return nil, fmt.Errorf("save counter-order: %w", err)
		}

		tr := e.newTrade(incoming, cand, qty)
		if err := e.settle(ctx, tx, tr, buyLimit(incoming, cand)); err != nil {
			return nil, err
		}
		trades = append(trades, tr)
	}

	incoming.Remaining = target - filled
	switch {
	case filled == target:
		incoming.Status = domain.Filled
	case filled > 0:
		incoming.Status = domain.PartiallyFilled
	}
	if filled > 0 {
		if err := tx.SaveOrder(ctx, incoming); err != nil {
			return nil, fmt.Errorf("save order: %w", err)
		}
		e.log.Info("order matched",
			zap.String("order", incoming.ID),
			zap.Int64("filled", filled),
			zap.String("status", string(incoming.Status)))
	}
	return trades, nil
}

// newTrade builds the fill between the incoming order and one resting
// candidate, priced at the candidate's (maker) limit regardless of which
// side is aggressive.
func (e *Engine) newTrade(incoming, resting *domain.Order, qty int64) *domain.Trade {
	tr := &domain.Trade{
		ID:         uuid.New().String(),
		SecurityID: incoming.SecurityID,
		Quantity:   qty,
		Price:      resting.Price,
		Timestamp:  time.Now(),
	}
	if incoming.Side == domain.Buy {
		tr.BuyOrderID = incoming.ID
		tr.BuyerID = incoming.AccountID
		tr.SellOrderID = resting.ID
		tr.SellerID = resting.AccountID
	} else {
		tr.BuyOrderID = resting.ID
		tr.BuyerID = resting.AccountID
		tr.SellOrderID = incoming.ID
		tr.SellerID = incoming.AccountID
	}
	return tr
}

// buyLimit returns the limit price of whichever leg is the buy side. The
// buyer reserved cash at this price; settlement refunds the surplus over
// the actual fill price.
func buyLimit(incoming, resting *domain.Order) decimal.Decimal {
	if incoming.Side == domain.Buy {
		return incoming.Price
	}
	return resting.Price
}
