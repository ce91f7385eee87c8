package inventory

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ariefcatur/go-marketplace-stock/internal/apperr"
	kafkax "github.com/ariefcatur/go-marketplace-stock/internal/kafka"
	"github.com/ariefcatur/go-marketplace-stock/internal/logger"
	"github.com/ariefcatur/go-marketplace-stock/internal/orders"
	"github.com/ariefcatur/go-marketplace-stock/internal/redisx"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// AlertHandler turns order.placed events into stock.low alerts. It runs in the
// inventory worker as a consumer handler.
type AlertHandler struct {
	Reader       Reader
	Redis        *redis.Client
	Publisher    Publisher
	ThresholdPct float64
	ServiceName  string
	Logger       *zap.Logger
}

func (h *AlertHandler) HandleOrderPlaced(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return err
	}
	if env.EventType != orders.EventOrderPlaced {
		return nil
	}

	dkey := fmt.Sprintf(redisx.KeyDedup, "inventory-alerts", env.EventID)
	fresh, err := h.Redis.SetNX(ctx, dkey, "1", redisx.TTLDedup).Result()
	if err == nil && !fresh {
		return nil
	}

	if err := h.process(ctx, env); err != nil {
		// release the key so the consumer retry runs again
		_ = h.Redis.Del(ctx, dkey).Err()
		return err
	}
	return nil
}

func (h *AlertHandler) process(ctx context.Context, env orders.Envelope) error {
	p, err := kafkax.UnwrapPayload[orders.OrderPlacedPayload](env.Payload)
	if err != nil {
		return err
	}

	// re-read: the payload stock may already be outdated
	item, err := h.Reader.GetProduct(ctx, p.ItemID)
	if apperr.Is(err, apperr.CodeNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	pct := h.ThresholdPct
	if pct <= 0 {
		pct = DefaultLowStockPct
	}
	out := item.Stock == 0
	if !out && !IsLowStock(item, pct) {
		return nil
	}

	logger.OrNop(h.Logger).Warn("low stock",
		zap.String("item_id", item.ID), zap.String("owner_id", item.OwnerID),
		zap.Int("stock", item.Stock), zap.Int("initial_stock", item.InitialStock), zap.Bool("out_of_stock", out))
	publishEvent(h.Publisher, h.ServiceName, orders.TopicStockLow, orders.EventStockLow, item.ID, env.CorrelationID,
		orders.StockLowPayload{
			ItemID:       item.ID,
			OwnerID:      item.OwnerID,
			Stock:        item.Stock,
			InitialStock: item.InitialStock,
			OutOfStock:   out,
			ThresholdPct: pct,
		})
	return nil
}
