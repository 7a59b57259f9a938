package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tradeapp/exchange-core/internal/api/dto"
	"github.com/tradeapp/exchange-core/internal/core"
	"github.com/tradeapp/exchange-core/internal/domain"
	"github.com/tradeapp/exchange-core/internal/middleware"
)

type HTTPServer struct {
	Eng *core.Engine
	rl  *middleware.RateLimiter
}

func NewHTTPServer(eng *core.Engine, rateLimit time.Duration) *HTTPServer {
	return &HTTPServer{Eng: eng, rl: middleware.NewRateLimiter(rateLimit)}
}

func (s *HTTPServer) Run(addr string) error {
	return s.Router().Run(addr)
}

func (s *HTTPServer) Router() *gin.Engine {
	r := gin.Default()

	orders := r.Group("/orders", s.rl.Middleware())
	orders.POST("/buy", s.placeBuyOrder)
	orders.POST("/sell", s.placeSellOrder)
	orders.POST("/cancel", s.cancelOrder)

	r.GET("/accounts/:id/trades", s.tradeHistory)
	r.GET("/accounts/:id/orders", s.openOrders)
	r.GET("/securities/:symbol", s.quote)

	return r
}

func (s *HTTPServer) placeBuyOrder(c *gin.Context) {
	s.placeOrder(c, domain.Buy)
}

func (s *HTTPServer) placeSellOrder(c *gin.Context) {
	s.placeOrder(c, domain.Sell)
}

func (s *HTTPServer) placeOrder(c *gin.Context, side domain.Side) {
	var req dto.PlaceOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var (
		order  *domain.Order
		trades []*domain.Trade
		err    error
	)
	if side == domain.Buy {
		order, trades, err = s.Eng.PlaceBuyOrder(c.Request.Context(), req.AccountID, req.Symbol, req.Quantity, req.Price)
	} else {
		order, trades, err = s.Eng.PlaceSellOrder(c.Request.Context(), req.AccountID, req.Symbol, req.Quantity, req.Price)
	}
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.PlaceOrderResponse{
		Order:  convertOrder(order, req.Symbol),
		Trades: convertTrades(trades),
	})
}

func (s *HTTPServer) cancelOrder(c *gin.Context) {
	var req dto.CancelOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.Eng.CancelOrder(c.Request.Context(), req.OrderID); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.CancelOrderResponse{
		OrderID:   req.OrderID,
		Cancelled: true,
	})
}

func (s *HTTPServer) tradeHistory(c *gin.Context) {
	trades, err := s.Eng.TradeHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.TradeHistoryResponse{Trades: convertTrades(trades)})
}

func (s *HTTPServer) openOrders(c *gin.Context) {
	orders, err := s.Eng.OpenOrders(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	res := make([]dto.Order, len(orders))
	for i, o := range orders {
		res[i] = convertOrder(o, "")
	}
	c.JSON(http.StatusOK, dto.OpenOrdersResponse{Orders: res})
}

func (s *HTTPServer) quote(c *gin.Context) {
	sec, err := s.Eng.Quote(c.Request.Context(), c.Param("symbol"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.QuoteResponse{
		Symbol:       sec.Symbol,
		CompanyName:  sec.CompanyName,
		CurrentPrice: sec.CurrentPrice,
		HighPrice:    sec.HighPrice,
		LowPrice:     sec.LowPrice,
		TradedVolume: sec.TradedVolume,
		MarketCap:    sec.MarketCap,
	})
}

func abortWithError(c *gin.Context, err error) {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, gin.H{"error": ve.Message})
	case errors.Is(err, domain.ErrInsufficientFunds),
		errors.Is(err, domain.ErrInsufficientHoldings):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrAccountNotFound),
		errors.Is(err, domain.ErrSecurityNotFound),
		errors.Is(err, domain.ErrOrderNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrOrderTerminal):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func convertOrder(o *domain.Order, symbol string) dto.Order {
	return dto.Order{
		ID:        o.ID,
		AccountID: o.AccountID,
		Symbol:    symbol,
		Side:      string(o.Side),
		Price:     o.Price,
		Quantity:  o.Quantity,
		Remaining: o.Remaining,
		Status:    string(o.Status),
		CreatedAt: o.CreatedAt,
	}
}

func convertTrades(trades []*domain.Trade) []dto.Trade {
	res := make([]dto.Trade, len(trades))
	for i, t := range trades {
		res[i] = dto.Trade{
			ID:        t.ID,
			BuyerID:   t.BuyerID,
			SellerID:  t.SellerID,
			Quantity:  t.Quantity,
			Price:     t.Price,
			Timestamp: t.Timestamp,
		}
	}
	return res
}
