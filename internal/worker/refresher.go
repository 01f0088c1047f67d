package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/andresty/go-market-checkout/internal/kafka"
	"github.com/andresty/go-market-checkout/internal/market"
	"github.com/andresty/go-market-checkout/internal/redisx"
)

// Refresher keeps the Redis read model in step with committed state. It is
// downstream of the checkout transaction: nothing here can fail an order,
// the worst failure mode is a stale cache entry until the TTL expires.
type Refresher struct {
	Redis       *redis.Client
	ServiceName string
}

func (s *Refresher) Handle(ctx context.Context, m kafkago.Message) error {
	var env market.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return err
	}

	// dedup by event id: consumer-group rebalances redeliver
	dkey := fmt.Sprintf(redisx.KeyDedup, s.ServiceName, env.EventID)
	exists, _ := redisx.Exists(ctx, s.Redis, dkey)
	if exists {
		return nil
	}
	_ = s.Redis.Set(ctx, dkey, "1", redisx.TTLDedup).Err()

	switch env.EventType {
	case market.EventOrderPlaced:
		return s.orderPlaced(ctx, env.Payload)
	case market.EventLineFulfilled:
		return s.lineFulfilled(ctx, env.Payload)
	default:
		return nil // ignore
	}
}

func (s *Refresher) orderPlaced(ctx context.Context, payload json.RawMessage) error {
	p, err := kafkax.UnwrapPayload[market.OrderPlacedPayload](payload)
	if err != nil {
		return err
	}
	statusKey := fmt.Sprintf(redisx.KeyOrderStatus, p.OrderID)
	if err := s.Redis.Set(ctx, statusKey, `{"status":"PENDING"}`, redisx.TTLStatusCache).Err(); err != nil {
		return err
	}
	// balances changed for the buyer and every payee; drop the cached
	// values rather than recompute here
	_ = s.Redis.Del(ctx, fmt.Sprintf(redisx.KeyBalance, p.BuyerID)).Err()
	for payeeID := range p.PayeeTotals {
		_ = s.Redis.Del(ctx, fmt.Sprintf(redisx.KeyBalance, payeeID)).Err()
	}
	return nil
}

func (s *Refresher) lineFulfilled(ctx context.Context, payload json.RawMessage) error {
	p, err := kafkax.UnwrapPayload[market.LineFulfilledPayload](payload)
	if err != nil {
		return err
	}
	statusKey := fmt.Sprintf(redisx.KeyOrderStatus, p.OrderID)
	body, _ := json.Marshal(map[string]any{"status": p.OrderStatus})
	return s.Redis.Set(ctx, statusKey, body, redisx.TTLStatusCache).Err()
}
