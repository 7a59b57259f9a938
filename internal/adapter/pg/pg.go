package pg

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/tradeapp/exchange-core/internal/domain"
	"github.com/tradeapp/exchange-core/internal/port"
)

var _ port.Repository = (*Repository)(nil)
var _ port.Tx = (*pgTx)(nil)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Close() {
	if r.pool != nil {
		r.pool.Close()
	}
}

func (r *Repository) BeginTx(ctx context.Context) (port.Tx, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("pg: begin tx: %w", err)
	}
	return &pgTx{tx: tx}, nil
}

func (r *Repository) AccountByID(ctx context.Context, id string) (*domain.Account, error) {
	return scanAccount(r.pool.QueryRow(ctx, accountSelect+` WHERE id = $1`, id))
}

func (r *Repository) AccountByUsername(ctx context.Context, username string) (*domain.Account, error) {
	return scanAccount(r.pool.QueryRow(ctx, accountSelect+` WHERE username = $1`, username))
}

func (r *Repository) SecurityByID(ctx context.Context, id string) (*domain.Security, error) {
	return scanSecurity(r.pool.QueryRow(ctx, securitySelect+` WHERE id = $1`, id))
}

func (r *Repository) SecurityBySymbol(ctx context.Context, symbol string) (*domain.Security, error) {
	return scanSecurity(r.pool.QueryRow(ctx, securitySelect+` WHERE symbol = $1`, symbol))
}

func (r *Repository) OrderByID(ctx context.Context, id string) (*domain.Order, error) {
	return scanOrder(r.pool.QueryRow(ctx, orderSelect+` WHERE id = $1`, id))
}

// OpenOrders returns the account's PENDING and PARTIALLY_FILLED orders,
// most recent first.
func (r *Repository) OpenOrders(ctx context.Context, accountID string) ([]*domain.Order, error) {
	rows, err := r.pool.Query(ctx, orderSelect+`
WHERE account_id = $1 AND status IN ('PENDING','PARTIALLY_FILLED')
ORDER BY created_at DESC, id DESC`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectOrders(rows)
}

// TradesForAccount returns trades where the account is buyer or seller,
// most recent first.
func (r *Repository) TradesForAccount(ctx context.Context, accountID string) ([]*domain.Trade, error) {
	rows, err := r.pool.Query(ctx, tradeSelect+`
WHERE buyer_id = $1 OR seller_id = $1
ORDER BY ts DESC, id DESC`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []*domain.Trade
	for rows.Next() {
		t, err := scanTradeRow(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) Commit(ctx context.Context) error   { return t.tx.Commit(ctx) }
func (t *pgTx) Rollback(ctx context.Context) error { return t.tx.Rollback(ctx) }

func (t *pgTx) AccountForUpdate(ctx context.Context, id string) (*domain.Account, error) {
	return scanAccount(t.tx.QueryRow(ctx, accountSelect+` WHERE id = $1 FOR UPDATE`, id))
}

func (t *pgTx) UpdateBalance(ctx context.Context, accountID string, balance decimal.Decimal) error {
	tag, err := t.tx.Exec(ctx, `UPDATE accounts SET balance = $1 WHERE id = $2`, balance, accountID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

func (t *pgTx) SecurityForUpdate(ctx context.Context, id string) (*domain.Security, error) {
	return scanSecurity(t.tx.QueryRow(ctx, securitySelect+` WHERE id = $1 FOR UPDATE`, id))
}

func (t *pgTx) UpdateSecurityState(ctx context.Context, s *domain.Security) error {
	tag, err := t.tx.Exec(ctx, `
UPDATE securities
SET current_price = $1, high_price = $2, low_price = $3,
    traded_volume = $4, market_cap = $5, updated_at = NOW()
WHERE id = $6`,
		s.CurrentPrice, s.HighPrice, s.LowPrice, s.TradedVolume, s.MarketCap, s.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSecurityNotFound
	}
	return nil
}

func (t *pgTx) HoldingForUpdate(ctx context.Context, accountID, securityID string) (*domain.Holding, error) {
	var h domain.Holding
	err := t.tx.QueryRow(ctx, `
SELECT account_id, security_id, quantity, average_cost
FROM holdings
WHERE account_id = $1 AND security_id = $2
FOR UPDATE`, accountID, securityID).
		Scan(&h.AccountID, &h.SecurityID, &h.Quantity, &h.AverageCost)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &h, nil
}

func (t *pgTx) UpsertHolding(ctx context.Context, h *domain.Holding) error {
	_, err := t.tx.Exec(ctx, `
INSERT INTO holdings(account_id, security_id, quantity, average_cost)
VALUES($1,$2,$3,$4)
ON CONFLICT (account_id, security_id) DO UPDATE SET
  quantity = EXCLUDED.quantity,
  average_cost = holdings.average_cost`,
		h.AccountID, h.SecurityID, h.Quantity, h.AverageCost)
	return err
}

func (t *pgTx) DeleteHolding(ctx context.Context, accountID, securityID string) error {
	_, err := t.tx.Exec(ctx, `
DELETE FROM holdings WHERE account_id = $1 AND security_id = $2`, accountID, securityID)
	return err
}

func (t *pgTx) SaveOrder(ctx context.Context, o *domain.Order) error {
	if o == nil {
		return errors.New("nil order")
	}
	_, err := t.tx.Exec(ctx, `
INSERT INTO orders(id, account_id, security_id, side, price, quantity, remaining, status, created_at)
VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (id) DO UPDATE SET
  remaining = EXCLUDED.remaining,
  status = EXCLUDED.status`,
		o.ID, o.AccountID, o.SecurityID, string(o.Side),
		o.Price, o.Quantity, o.Remaining, string(o.Status), o.CreatedAt)
	return err
}

func (t *pgTx) OrderForUpdate(ctx context.Context, id string) (*domain.Order, error) {
	return scanOrder(t.tx.QueryRow(ctx, orderSelect+` WHERE id = $1 FOR UPDATE`, id))
}

// LockCandidates selects and row-locks open counter-orders in match
// priority. The lock is mandatory: without FOR UPDATE two concurrent
// matches can both see the same resting order and double-fill it. The
// ORDER BY carries the deterministic tie-break within a price level
// (created_at, then id).
func (t *pgTx) LockCandidates(ctx context.Context, securityID string, side domain.Side, limit decimal.Decimal) ([]*domain.Order, error) {
	cmp, dir := "<=", "ASC" // SELL candidates against a buy
	if side == domain.Buy {
		cmp, dir = ">=", "DESC"
	}
	rows, err := t.tx.Query(ctx, orderSelect+`
WHERE security_id = $1 AND side = $2
  AND status IN ('PENDING','PARTIALLY_FILLED')
  AND price `+cmp+` $3
ORDER BY price `+dir+`, created_at ASC, id ASC
FOR UPDATE`, securityID, string(side), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectOrders(rows)
}

func (t *pgTx) SaveTrade(ctx context.Context, tr *domain.Trade) error {
	if tr == nil {
		return errors.New("nil trade")
	}
	_, err := t.tx.Exec(ctx, `
INSERT INTO trades(id, buy_order_id, sell_order_id, buyer_id, seller_id, security_id, quantity, price, ts, balance_settled, holdings_settled)
VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
ON CONFLICT (id) DO UPDATE SET
  balance_settled = EXCLUDED.balance_settled,
  holdings_settled = EXCLUDED.holdings_settled`,
		tr.ID, tr.BuyOrderID, tr.SellOrderID, tr.BuyerID, tr.SellerID,
		tr.SecurityID, tr.Quantity, tr.Price, tr.Timestamp,
		tr.BalanceSettled, tr.HoldingsSettled)
	return err
}

const accountSelect = `
SELECT id, username, balance, created_at FROM accounts`

const securitySelect = `
SELECT id, symbol, company_name, current_price, high_price, low_price, traded_volume, total_shares, market_cap, updated_at
FROM securities`

const orderSelect = `
SELECT id, account_id, security_id, side, price, quantity, remaining, status, created_at
FROM orders`

const tradeSelect = `
SELECT id, buy_order_id, sell_order_id, buyer_id, seller_id, security_id, quantity, price, ts, balance_settled, holdings_settled
FROM trades`

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var a domain.Account
	err := row.Scan(&a.ID, &a.Username, &a.Balance, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func scanSecurity(row pgx.Row) (*domain.Security, error) {
	var s domain.Security
	err := row.Scan(&s.ID, &s.Symbol, &s.CompanyName, &s.CurrentPrice, &s.HighPrice,
		&s.LowPrice, &s.TradedVolume, &s.TotalShares, &s.MarketCap, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrSecurityNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var o domain.Order
	var side, status string
	err := row.Scan(&o.ID, &o.AccountID, &o.SecurityID, &side, &o.Price,
		&o.Quantity, &o.Remaining, &status, &o.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	o.Side = domain.Side(side)
	o.Status = domain.OrderStatus(status)
	return &o, nil
}

func collectOrders(rows pgx.Rows) ([]*domain.Order, error) {
	var res []*domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, o)
	}
	return res, rows.Err()
}

func scanTradeRow(rows pgx.Rows) (*domain.Trade, error) {
	var t domain.Trade
	if err := rows.Scan(&t.ID, &t.BuyOrderID, &t.SellOrderID, &t.BuyerID, &t.SellerID,
		&t.SecurityID, &t.Quantity, &t.Price, &t.Timestamp,
		&t.BalanceSettled, &t.HoldingsSettled); err != nil {
		return nil, err
	}
	return &t, nil
}
