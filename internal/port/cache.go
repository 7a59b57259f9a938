package port

import (
	"context"

	"github.com/tradeapp/exchange-core/internal/domain"
)

// QuoteCache caches per-security price state for the quote endpoint.
type QuoteCache interface {
	SetQuote(ctx context.Context, symbol string, s *domain.Security) error
	GetQuote(ctx context.Context, symbol string) (*domain.Security, error)
	Invalidate(ctx context.Context, symbol string) error
}
