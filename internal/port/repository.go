package port

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/tradeapp/exchange-core/internal/domain"
)

// Repository is the read side used outside of matching transactions.
type Repository interface {
	BeginTx(ctx context.Context) (Tx, error)

	AccountByID(ctx context.Context, id string) (*domain.Account, error)
	AccountByUsername(ctx context.Context, username string) (*domain.Account, error)
	SecurityByID(ctx context.Context, id string) (*domain.Security, error)
	SecurityBySymbol(ctx context.Context, symbol string) (*domain.Security, error)
	OrderByID(ctx context.Context, id string) (*domain.Order, error)
	OpenOrders(ctx context.Context, accountID string) ([]*domain.Order, error)
	TradesForAccount(ctx context.Context, accountID string) ([]*domain.Trade, error)
}

// Tx is one admission→matching→settlement unit. Every read below takes a
// row-level lock (SELECT ... FOR UPDATE or equivalent): two transactions
// matching against the same book must serialize on the rows they touch,
// otherwise a resting order can be double-filled. Implementations that do
// not lock are broken, not merely slower.
type Tx interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error

	AccountForUpdate(ctx context.Context, id string) (*domain.Account, error)
	UpdateBalance(ctx context.Context, accountID string, balance decimal.Decimal) error

	SecurityForUpdate(ctx context.Context, id string) (*domain.Security, error)
	UpdateSecurityState(ctx context.Context, s *domain.Security) error

	// HoldingForUpdate returns (nil, nil) when the account holds none of
	// the security.
	HoldingForUpdate(ctx context.Context, accountID, securityID string) (*domain.Holding, error)
	UpsertHolding(ctx context.Context, h *domain.Holding) error
	DeleteHolding(ctx context.Context, accountID, securityID string) error

	SaveOrder(ctx context.Context, o *domain.Order) error
	OrderForUpdate(ctx context.Context, id string) (*domain.Order, error)

	// LockCandidates locks and returns open resting orders of the given
	// side on the given security whose price is compatible with limit
	// (resting SELL price ≤ limit, resting BUY price ≥ limit). Ordering is
	// part of the contract: best price first (ascending for SELL
	// candidates, descending for BUY), then created_at ascending, then id
	// ascending as the deterministic tie-break.
	LockCandidates(ctx context.Context, securityID string, side domain.Side, limit decimal.Decimal) ([]*domain.Order, error)

	SaveTrade(ctx context.Context, t *domain.Trade) error
}
