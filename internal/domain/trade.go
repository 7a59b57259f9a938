package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade is one fill between a buy order and a sell order. Immutable once
// created except the two settlement flags, which only ever flip false→true.
type Trade struct {
	ID              string
	BuyOrderID      string
	SellOrderID     string
	BuyerID         string
	SellerID        string
	SecurityID      string
	Quantity        int64
	Price           decimal.Decimal
	Timestamp       time.Time
	BalanceSettled  bool
	HoldingsSettled bool
}

// Notional is the cash leg of the trade, quantity × price.
func (t *Trade) Notional() decimal.Decimal {
	return t.Price.Mul(decimal.NewFromInt(t.Quantity))
}
