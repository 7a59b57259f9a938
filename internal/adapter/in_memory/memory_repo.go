package in_memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/google/btree"
	"github.com/shopspring/decimal"
	"github.com/tradeapp/exchange-core/internal/domain"
	"github.com/tradeapp/exchange-core/internal/port"
)

var _ port.Repository = (*Repository)(nil)
var _ port.Tx = (*memTx)(nil)

type holdingKey struct {
	accountID  string
	securityID string
}

// bookEntry is one resting order in a side's price-priority index.
type bookEntry struct {
	price     decimal.Decimal
	createdAt int64 // UnixNano
	orderID   string
}

// entryLess orders a side's book best-price first, then created_at, then
// order id — the same composite ordering the Postgres candidate query
// uses. asc is true for the sell side (lowest ask first).
func entryLess(asc bool) btree.LessFunc[bookEntry] {
	return func(a, b bookEntry) bool {
		if c := a.price.Cmp(b.price); c != 0 {
			if asc {
				return c < 0
			}
			return c > 0
		}
		if a.createdAt != b.createdAt {
			return a.createdAt < b.createdAt
		}
		return a.orderID < b.orderID
	}
}

type state struct {
	accounts   map[string]*domain.Account
	securities map[string]*domain.Security
	orders     map[string]*domain.Order
	holdings   map[holdingKey]*domain.Holding
	trades     []*domain.Trade
	bids       map[string]*btree.BTreeG[bookEntry] // securityID → resting buys
	asks       map[string]*btree.BTreeG[bookEntry] // securityID → resting sells
}

func newState() *state {
	return &state{
		accounts:   make(map[string]*domain.Account),
		securities: make(map[string]*domain.Security),
		orders:     make(map[string]*domain.Order),
		holdings:   make(map[holdingKey]*domain.Holding),
		bids:       make(map[string]*btree.BTreeG[bookEntry]),
		asks:       make(map[string]*btree.BTreeG[bookEntry]),
	}
}

// clone copies the state for a transaction's working set. Entities are
// copied by value; the btree indexes use copy-on-write clones.
func (s *state) clone() *state {
	c := newState()
	for id, a := range s.accounts {
		cp := *a
		c.accounts[id] = &cp
	}
	for id, sec := range s.securities {
		cp := *sec
		c.securities[id] = &cp
	}
	for id, o := range s.orders {
		cp := *o
		c.orders[id] = &cp
	}
	for k, h := range s.holdings {
		cp := *h
		c.holdings[k] = &cp
	}
	c.trades = make([]*domain.Trade, len(s.trades))
	for i, t := range s.trades {
		cp := *t
		c.trades[i] = &cp
	}
	for sec, t := range s.bids {
		c.bids[sec] = t.Clone()
	}
	for sec, t := range s.asks {
		c.asks[sec] = t.Clone()
	}
	return c
}

// Repository is a transactional in-memory store used by tests and local
// runs. One mutex held for the whole life of a transaction stands in for
// the row locks Postgres takes: concurrent transactions serialize fully.
type Repository struct {
	mu    sync.Mutex
	state *state

	// SaveTradeErr, when set, makes the next transactional SaveTrade fail.
	// Tests use it to prove settlement failures roll back everything.
	SaveTradeErr error
}

func NewRepository() *Repository {
	return &Repository{state: newState()}
}

// PutAccount seeds an account. Not part of port.Repository.
func (r *Repository) PutAccount(a *domain.Account) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *a
	r.state.accounts[a.ID] = &cp
}

// PutSecurity seeds a security. Not part of port.Repository.
func (r *Repository) PutSecurity(s *domain.Security) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.state.securities[s.ID] = &cp
}

// PutHolding seeds a holding. Not part of port.Repository.
func (r *Repository) PutHolding(h *domain.Holding) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *h
	r.state.holdings[holdingKey{h.AccountID, h.SecurityID}] = &cp
}

// Holding reads a holding outside any transaction. Not part of
// port.Repository; tests use it to inspect positions.
func (r *Repository) Holding(accountID, securityID string) (*domain.Holding, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.state.holdings[holdingKey{accountID, securityID}]
	if !ok {
		return nil, false
	}
	cp := *h
	return &cp, true
}

func (r *Repository) BeginTx(ctx context.Context) (port.Tx, error) {
	r.mu.Lock()
	return &memTx{repo: r, work: r.state.clone()}, nil
}

func (r *Repository) AccountByID(ctx context.Context, id string) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.state.accounts[id]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *Repository) AccountByUsername(ctx context.Context, username string) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.state.accounts {
		if a.Username == username {
			cp := *a
			return &cp, nil
		}
	}
	return nil, domain.ErrAccountNotFound
}

func (r *Repository) SecurityByID(ctx context.Context, id string) (*domain.Security, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.state.securities[id]
	if !ok {
		return nil, domain.ErrSecurityNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *Repository) SecurityBySymbol(ctx context.Context, symbol string) (*domain.Security, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.state.securities {
		if s.Symbol == symbol {
			cp := *s
			return &cp, nil
		}
	}
	return nil, domain.ErrSecurityNotFound
}

func (r *Repository) OrderByID(ctx context.Context, id string) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.state.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (r *Repository) OpenOrders(ctx context.Context, accountID string) ([]*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var res []*domain.Order
	for _, o := range r.state.orders {
		if o.AccountID == accountID && !o.Terminal() {
			cp := *o
			res = append(res, &cp)
		}
	}
	sort.Slice(res, func(i, j int) bool {
		if !res[i].CreatedAt.Equal(res[j].CreatedAt) {
			return res[i].CreatedAt.After(res[j].CreatedAt)
		}
		return res[i].ID > res[j].ID
	})
	return res, nil
}

func (r *Repository) TradesForAccount(ctx context.Context, accountID string) ([]*domain.Trade, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var res []*domain.Trade
	// Trades are appended in settlement order; walk backwards for
	// most-recent-first.
	for i := len(r.state.trades) - 1; i >= 0; i-- {
		t := r.state.trades[i]
		if t.BuyerID == accountID || t.SellerID == accountID {
			cp := *t
			res = append(res, &cp)
		}
	}
	return res, nil
}

type memTx struct {
	repo *Repository
	work *state
	done bool
}

func (t *memTx) Commit(ctx context.Context) error {
	if t.done {
		return errors.New("transaction already finished")
	}
	t.done = true
	t.repo.state = t.work
	t.repo.mu.Unlock()
	return nil
}

func (t *memTx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	t.repo.mu.Unlock()
	return nil
}

func (t *memTx) AccountForUpdate(ctx context.Context, id string) (*domain.Account, error) {
	a, ok := t.work.accounts[id]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return a, nil
}

func (t *memTx) UpdateBalance(ctx context.Context, accountID string, balance decimal.Decimal) error {
	a, ok := t.work.accounts[accountID]
	if !ok {
		return domain.ErrAccountNotFound
	}
	a.Balance = balance
	return nil
}

func (t *memTx) SecurityForUpdate(ctx context.Context, id string) (*domain.Security, error) {
	s, ok := t.work.securities[id]
	if !ok {
		return nil, domain.ErrSecurityNotFound
	}
	return s, nil
}

func (t *memTx) UpdateSecurityState(ctx context.Context, s *domain.Security) error {
	if _, ok := t.work.securities[s.ID]; !ok {
		return domain.ErrSecurityNotFound
	}
	cp := *s
	t.work.securities[s.ID] = &cp
	return nil
}

func (t *memTx) HoldingForUpdate(ctx context.Context, accountID, securityID string) (*domain.Holding, error) {
	h, ok := t.work.holdings[holdingKey{accountID, securityID}]
	if !ok {
		return nil, nil
	}
	return h, nil
}

func (t *memTx) UpsertHolding(ctx context.Context, h *domain.Holding) error {
	cp := *h
	t.work.holdings[holdingKey{h.AccountID, h.SecurityID}] = &cp
	return nil
}

func (t *memTx) DeleteHolding(ctx context.Context, accountID, securityID string) error {
	delete(t.work.holdings, holdingKey{accountID, securityID})
	return nil
}

func (t *memTx) SaveOrder(ctx context.Context, o *domain.Order) error {
	cp := *o
	t.work.orders[o.ID] = &cp
	t.reindex(&cp)
	return nil
}

func (t *memTx) OrderForUpdate(ctx context.Context, id string) (*domain.Order, error) {
	o, ok := t.work.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return o, nil
}

func (t *memTx) LockCandidates(ctx context.Context, securityID string, side domain.Side, limit decimal.Decimal) ([]*domain.Order, error) {
	tree := t.book(securityID, side)
	var res []*domain.Order
	tree.Ascend(func(e bookEntry) bool {
		compatible := e.price.LessThanOrEqual(limit)
		if side == domain.Buy {
			compatible = e.price.GreaterThanOrEqual(limit)
		}
		if !compatible {
			// Entries are price-sorted best first; nothing further
			// can cross.
			return false
		}
		res = append(res, t.work.orders[e.orderID])
		return true
	})
	return res, nil
}

func (t *memTx) SaveTrade(ctx context.Context, tr *domain.Trade) error {
	if err := t.repo.SaveTradeErr; err != nil {
		return err
	}
	cp := *tr
	for i, existing := range t.work.trades {
		if existing.ID == tr.ID {
			t.work.trades[i] = &cp
			return nil
		}
	}
	t.work.trades = append(t.work.trades, &cp)
	return nil
}

// book returns the side's index for a security, creating it lazily.
func (t *memTx) book(securityID string, side domain.Side) *btree.BTreeG[bookEntry] {
	const degree = 8
	m := t.work.asks
	asc := true
	if side == domain.Buy {
		m = t.work.bids
		asc = false
	}
	tree, ok := m[securityID]
	if !ok {
		tree = btree.NewG[bookEntry](degree, entryLess(asc))
		m[securityID] = tree
	}
	return tree
}

// reindex keeps the side indexes in step with an order's lifecycle:
// open orders rest in the book, terminal or exhausted ones leave it.
func (t *memTx) reindex(o *domain.Order) {
	tree := t.book(o.SecurityID, o.Side)
	entry := bookEntry{price: o.Price, createdAt: o.CreatedAt.UnixNano(), orderID: o.ID}
	if o.Terminal() || o.Remaining == 0 {
		tree.Delete(entry)
		return
	}
	tree.ReplaceOrInsert(entry)
}
