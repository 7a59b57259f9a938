package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

type PlaceOrderRequest struct {
	AccountID string          `json:"account_id" binding:"required"`
	Symbol    string          `json:"symbol" binding:"required"`
	Quantity  int64           `json:"quantity" binding:"required"`
	Price     decimal.Decimal `json:"price" binding:"required"`
}

type PlaceOrderResponse struct {
	Order  Order   `json:"order"`
	Trades []Trade `json:"trades"`
}

type CancelOrderRequest struct {
	OrderID string `json:"order_id" binding:"required"`
}

type CancelOrderResponse struct {
	OrderID   string `json:"order_id"`
	Cancelled bool   `json:"cancelled"`
}

type TradeHistoryResponse struct {
	Trades []Trade `json:"trades"`
}

type OpenOrdersResponse struct {
	Orders []Order `json:"orders"`
}

type QuoteResponse struct {
	Symbol       string          `json:"symbol"`
	CompanyName  string          `json:"company_name"`
	CurrentPrice decimal.Decimal `json:"current_price"`
	HighPrice    decimal.Decimal `json:"high_price"`
	LowPrice     decimal.Decimal `json:"low_price"`
	TradedVolume int64           `json:"traded_volume"`
	MarketCap    decimal.Decimal `json:"market_cap"`
}

type Order struct {
	ID        string          `json:"id"`
	AccountID string          `json:"account_id"`
	Symbol    string          `json:"symbol,omitempty"`
	Side      string          `json:"side"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int64           `json:"quantity"`
	Remaining int64           `json:"remaining"`
	Status    string          `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
}

type Trade struct {
	ID        string          `json:"id"`
	BuyerID   string          `json:"buyer_id"`
	SellerID  string          `json:"seller_id"`
	Quantity  int64           `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Timestamp time.Time       `json:"timestamp"`
}
