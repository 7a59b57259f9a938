package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account holds a user's cash balance. Balance never goes negative;
// admission reserves funds before an order reaches the book.
type Account struct {
	ID        string
	Username  string
	Balance   decimal.Decimal
	CreatedAt time.Time
}

// Holding is one (account, security) share position. The row exists only
// while Quantity > 0; it is deleted the moment the position reaches zero.
type Holding struct {
	AccountID   string
	SecurityID  string
	Quantity    int64
	AverageCost decimal.Decimal
}
