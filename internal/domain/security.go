package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Security is one listed instrument together with its rolling price state.
type Security struct {
	ID           string
	Symbol       string
	CompanyName  string
	CurrentPrice decimal.Decimal
	HighPrice    decimal.Decimal
	LowPrice     decimal.Decimal
	TradedVolume int64
	TotalShares  int64
	MarketCap    decimal.Decimal
	UpdatedAt    time.Time
}

// ApplyTrade folds one settled fill into the price state and recomputes
// market capitalization.
func (s *Security) ApplyTrade(price decimal.Decimal, quantity int64) {
	s.CurrentPrice = price
	if price.GreaterThan(s.HighPrice) {
		s.HighPrice = price
	}
	if price.LessThan(s.LowPrice) {
		s.LowPrice = price
	}
	s.TradedVolume += quantity
	s.MarketCap = s.CurrentPrice.Mul(decimal.NewFromInt(s.TotalShares))
}
