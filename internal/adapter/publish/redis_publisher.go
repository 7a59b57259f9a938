package publish

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"github.com/tradeapp/exchange-core/internal/domain"
	"github.com/tradeapp/exchange-core/internal/port"
)

var _ port.TradePublisher = (*RedisPublisher)(nil)

// RedisPublisher broadcasts settled trades on a per-security pub/sub
// channel. Delivery is at-least-once; consumers deduplicate on the trade
// id carried in the payload.
type RedisPublisher struct {
	client *redis.Client
}

func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

func channel(securityID string) string { return "trades." + securityID }

func (p *RedisPublisher) PublishTrade(ctx context.Context, t *domain.Trade) error {
	b, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, channel(t.SecurityID), b).Err()
}
