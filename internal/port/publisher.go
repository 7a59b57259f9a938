package port

import (
	"context"

	"github.com/tradeapp/exchange-core/internal/domain"
)

// TradePublisher broadcasts settled trades to downstream consumers. It is
// invoked only after the settling transaction commits, at-least-once; the
// trade id is the idempotency key.
type TradePublisher interface {
	PublishTrade(ctx context.Context, t *domain.Trade) error
}
