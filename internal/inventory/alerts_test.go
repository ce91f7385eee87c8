package inventory

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
	kafkax "github.com/ariefcatur/go-marketplace-stock/internal/kafka"
	"github.com/ariefcatur/go-marketplace-stock/internal/orders"
	"github.com/ariefcatur/go-marketplace-stock/internal/redisx"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func orderPlacedMessage(t *testing.T, itemID string) (kafkago.Message, orders.Envelope) {
	t.Helper()
	env := orders.NewEnvelope(orders.EventOrderPlaced, "test", "ord-1",
		kafkax.MustMarshal(orders.OrderPlacedPayload{OrderID: "ord-1", ItemID: itemID, Qty: 1}))
	raw, err := json.Marshal(env)
	require.NoError(t, err)
	return kafkago.Message{Topic: orders.TopicOrderPlaced, Value: raw}, env
}

func newAlertHandler(t *testing.T, store *memStore) (*AlertHandler, *recordingPublisher, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redisx.New(mr.Addr())
	t.Cleanup(func() { _ = rdb.Close() })
	pub := &recordingPublisher{}
	return &AlertHandler{Reader: store, Redis: rdb, Publisher: pub, ServiceName: "inventory-svc"}, pub, mr
}

func TestAlertHandler_PublishesLowStockOnce(t *testing.T) {
	store := newMemStore()
	store.items["p1"] = orders.StockItem{ID: "p1", OwnerID: "s1", Stock: 1, InitialStock: 20}
	h, pub, mr := newAlertHandler(t, store)
	msg, env := orderPlacedMessage(t, "p1")

	require.NoError(t, h.HandleOrderPlaced(context.Background(), msg))
	require.NoError(t, h.HandleOrderPlaced(context.Background(), msg))

	assert.Equal(t, []string{orders.TopicStockLow}, pub.topics())
	assert.True(t, mr.Exists("dedup:inventory-alerts:"+env.EventID))

	var out orders.Envelope
	require.NoError(t, json.Unmarshal(pub.msgs[0].value, &out))
	payload, err := kafkax.UnwrapPayload[orders.StockLowPayload](out.Payload)
	require.NoError(t, err)
	assert.Equal(t, "s1", payload.OwnerID)
	assert.False(t, payload.OutOfStock)
	assert.Equal(t, DefaultLowStockPct, payload.ThresholdPct)
}

func TestAlertHandler_OutOfStock(t *testing.T) {
	store := newMemStore()
	store.items["p1"] = orders.StockItem{ID: "p1", OwnerID: "s1", Stock: 0, InitialStock: 20}
	h, pub, _ := newAlertHandler(t, store)
	msg, _ := orderPlacedMessage(t, "p1")

	require.NoError(t, h.HandleOrderPlaced(context.Background(), msg))

	require.Len(t, pub.msgs, 1)
	assert.Equal(t, "p1", pub.msgs[0].key)
}

func TestAlertHandler_HealthyStockIsQuiet(t *testing.T) {
	store := newMemStore()
	store.items["p1"] = orders.StockItem{ID: "p1", OwnerID: "s1", Stock: 15, InitialStock: 20}
	h, pub, _ := newAlertHandler(t, store)
	msg, _ := orderPlacedMessage(t, "p1")

	require.NoError(t, h.HandleOrderPlaced(context.Background(), msg))
	assert.Empty(t, pub.topics())
}

func TestAlertHandler_DeletedItemIsIgnored(t *testing.T) {
	h, pub, _ := newAlertHandler(t, newMemStore())
	msg, _ := orderPlacedMessage(t, "gone")

	require.NoError(t, h.HandleOrderPlaced(context.Background(), msg))
	assert.Empty(t, pub.topics())
}

func TestAlertHandler_BadPayloadReleasesDedupKey(t *testing.T) {
	h, _, mr := newAlertHandler(t, newMemStore())
	env := orders.NewEnvelope(orders.EventOrderPlaced, "test", "x", json.RawMessage(`"not an object"`))
	raw, err := json.Marshal(env)
	require.NoError(t, err)

	err = h.HandleOrderPlaced(context.Background(), kafkago.Message{Value: raw})

	assert.Error(t, err)
	assert.False(t, mr.Exists("dedup:inventory-alerts:"+env.EventID))
}
