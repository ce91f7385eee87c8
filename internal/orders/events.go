package orders

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	EventOrderPlaced        = "OrderPlaced"
	EventOrderStatusChanged = "OrderStatusChanged"
	EventStockRestocked     = "StockRestocked"
	EventStockLow           = "StockLow"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// NewEnvelope wraps an already-encoded payload in a v1 envelope.
func NewEnvelope(eventType, producer, correlationID string, payload json.RawMessage) Envelope {
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		CorrelationID: correlationID,
		Payload:       payload,
	}
}

type OrderPlacedPayload struct {
	OrderID    string `json:"order_id"`
	ItemID     string `json:"item_id"`
	SellerID   string `json:"seller_id"`
	BuyerID    string `json:"buyer_id"`
	Qty        int    `json:"qty"`
	NewStock   int    `json:"new_stock"`
	TotalCents int64  `json:"total_cents"`
}

type OrderStatusChangedPayload struct {
	OrderID  string `json:"order_id"`
	SellerID string `json:"seller_id"`
	From     Status `json:"from"`
	To       Status `json:"to"`
}

type StockRestockedPayload struct {
	ItemID       string `json:"item_id"`
	OwnerID      string `json:"owner_id"`
	Added        int    `json:"added"`
	NewStock     int    `json:"new_stock"`
	InitialStock int    `json:"initial_stock"`
}

type StockLowPayload struct {
	ItemID       string  `json:"item_id"`
	OwnerID      string  `json:"owner_id"`
	Stock        int     `json:"stock"`
	InitialStock int     `json:"initial_stock"`
	OutOfStock   bool    `json:"out_of_stock"`
	ThresholdPct float64 `json:"threshold_pct"`
}
