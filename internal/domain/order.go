package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Side string
type OrderStatus string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"

	Pending         OrderStatus = "PENDING"
	PartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	Filled          OrderStatus = "FILLED"
	Cancelled       OrderStatus = "CANCELLED"
)

// Order is a limit order. Remaining > 0 while the order is open;
// Remaining == 0 exactly when the order is FILLED.
type Order struct {
	ID         string
	AccountID  string
	SecurityID string
	Side       Side
	Price      decimal.Decimal
	Quantity   int64
	Remaining  int64
	Status     OrderStatus
	CreatedAt  time.Time
}

// Terminal reports whether the order can no longer change.
func (o *Order) Terminal() bool {
	return o.Status == Filled || o.Status == Cancelled
}

// Crosses reports whether a resting order at restingPrice is
// price-compatible with this order's limit.
func (o *Order) Crosses(restingPrice decimal.Decimal) bool {
	if o.Side == Buy {
		return restingPrice.LessThanOrEqual(o.Price)
	}
	return restingPrice.GreaterThanOrEqual(o.Price)
}

// Opposite returns the counter side.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}
