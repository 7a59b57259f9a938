package core

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/tradeapp/exchange-core/internal/adapter/in_memory"
	"github.com/tradeapp/exchange-core/internal/domain"
	"go.uber.org/zap"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newTestEngine() (*Engine, *in_memory.Repository) {
	repo := in_memory.NewRepository()
	return NewEngine(repo, nil, nil, zap.NewNop()), repo
}

func seedAccount(repo *in_memory.Repository, id, balance string) {
	repo.PutAccount(&domain.Account{
		ID:        id,
		Username:  id,
		Balance:   dec(balance),
		CreatedAt: time.Now(),
	})
}

func seedSecurity(repo *in_memory.Repository, id, symbol, price string, totalShares int64) {
	p := dec(price)
	repo.PutSecurity(&domain.Security{
		ID:           id,
		Symbol:       symbol,
		CompanyName:  symbol + " Corp",
		CurrentPrice: p,
		HighPrice:    p,
		LowPrice:     p,
		TotalShares:  totalShares,
		MarketCap:    p.Mul(decimal.NewFromInt(totalShares)),
		UpdatedAt:    time.Now(),
	})
}

func seedHolding(repo *in_memory.Repository, accountID, securityID string, qty int64, cost string) {
	repo.PutHolding(&domain.Holding{
		AccountID:   accountID,
		SecurityID:  securityID,
		Quantity:    qty,
		AverageCost: dec(cost),
	})
}

func balanceOf(t *testing.T, repo *in_memory.Repository, accountID string) decimal.Decimal {
	t.Helper()
	a, err := repo.AccountByID(context.Background(), accountID)
	require.NoError(t, err)
	return a.Balance
}

func orderByID(t *testing.T, repo *in_memory.Repository, id string) *domain.Order {
	t.Helper()
	o, err := repo.OrderByID(context.Background(), id)
	require.NoError(t, err)
	return o
}

// restingSell places a sell order that is expected to rest (no fills),
// seeding the seller's holding first.
func restingSell(t *testing.T, e *Engine, repo *in_memory.Repository, seller, securityID string, qty int64, price string) *domain.Order {
	t.Helper()
	h, ok := repo.Holding(seller, securityID)
	have := int64(0)
	if ok {
		have = h.Quantity
	}
	seedHolding(repo, seller, securityID, have+qty, price)
	o, trades, err := e.PlaceSellOrder(context.Background(), seller, "ACME", qty, dec(price))
	require.NoError(t, err)
	require.Empty(t, trades)
	return o
}
