package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ariefcatur/go-marketplace-stock/internal/apperr"
	kafkax "github.com/ariefcatur/go-marketplace-stock/internal/kafka"
	"github.com/ariefcatur/go-marketplace-stock/internal/logger"
	"github.com/ariefcatur/go-marketplace-stock/internal/metrics"
	"github.com/ariefcatur/go-marketplace-stock/internal/orders"
	"github.com/go-playground/validator/v10"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const DefaultLowStockPct = 10.0

// Store is the transactional write side. Every method is all-or-nothing.
type Store interface {
	PlaceOrder(ctx context.Context, in orders.PlaceOrderTx) (orders.Order, int, error)
	Restock(ctx context.Context, itemID, ownerID string, add int) (orders.StockItem, error)
	UpdateStatus(ctx context.Context, orderID string, to orders.Status) (orders.Order, orders.Status, error)
	ApproveBuyer(ctx context.Context, userID string) error
}

// Reader serves plain reads straight from the remote store, never from a cache.
type Reader interface {
	GetProduct(ctx context.Context, id string) (orders.StockItem, error)
	GetUser(ctx context.Context, id string) (orders.User, error)
	ListProducts(ctx context.Context, q orders.ListQuery) ([]orders.StockItem, int, error)
}

type Publisher interface {
	Publish(topic string, key, value []byte, headers ...kafkago.Header)
}

// Service is the only path through which stock changes.
type Service struct {
	Store       Store
	Reader      Reader
	Publisher   Publisher // optional; events are sent after commit
	Policy      BuyerPolicy
	LowStockPct float64
	ServiceName string
	Metrics     *metrics.Metrics
	Logger      *zap.Logger
}

var validate = validator.New()

type PlaceOrderInput struct {
	ItemID     string `json:"item_id" validate:"required"`
	Quantity   int    `json:"quantity" validate:"gt=0"`
	BuyerID    string `json:"buyer_id" validate:"required"`
	BuyerName  string `json:"buyer_name"`
	BuyerTaxID string `json:"buyer_tax_id,omitempty"`
}

type PlaceOrderResult struct {
	Order    orders.Order `json:"order"`
	NewStock int          `json:"new_stock"`
}

type RestockInput struct {
	ItemID          string `json:"item_id" validate:"required"`
	AdditionalStock int    `json:"additional_stock" validate:"gt=0"`
	OwnerID         string `json:"owner_id" validate:"required"`
}

type RestockResult struct {
	NewStock     int `json:"new_stock"`
	InitialStock int `json:"initial_stock"`
}

func (s *Service) log() *zap.Logger { return logger.OrNop(s.Logger) }

// PlaceOrder gates the buyer, then reserves stock and creates the order in one commit.
func (s *Service) PlaceOrder(ctx context.Context, in PlaceOrderInput) (PlaceOrderResult, error) {
	if err := validateInput(in); err != nil {
		s.Metrics.Reservation("rejected")
		return PlaceOrderResult{}, err
	}

	buyer, err := s.EnsureBuyerEligible(ctx, in.BuyerID)
	if err != nil {
		s.Metrics.Reservation("rejected")
		return PlaceOrderResult{}, err
	}
	name := in.BuyerName
	if name == "" {
		name = buyer.Name
	}
	taxID := in.BuyerTaxID
	if taxID == "" {
		taxID = buyer.TaxID
	}

	o, newStock, err := s.Store.PlaceOrder(ctx, orders.PlaceOrderTx{
		ItemID:     in.ItemID,
		Qty:        in.Quantity,
		BuyerID:    in.BuyerID,
		BuyerName:  name,
		BuyerTaxID: taxID,
	})
	if err != nil {
		switch {
		case apperr.Is(err, apperr.CodeInsufficientStock):
			s.Metrics.Reservation("insufficient_stock")
			s.log().Info("order rejected: insufficient stock",
				zap.String("item_id", in.ItemID), zap.Int("qty", in.Quantity), zap.String("buyer_id", in.BuyerID))
		case apperr.Is(err, apperr.CodeBackendUnavailable):
			s.Metrics.Reservation("error")
			s.log().Error("place order failed", zap.String("item_id", in.ItemID), zap.Error(err))
		default:
			s.Metrics.Reservation("rejected")
		}
		return PlaceOrderResult{}, err
	}

	s.Metrics.Reservation("placed")
	s.log().Info("order placed",
		zap.String("order_id", o.ID), zap.String("item_id", in.ItemID),
		zap.Int("qty", in.Quantity), zap.Int("new_stock", newStock), zap.Int64("total_cents", o.TotalCents))

	s.publish(orders.TopicOrderPlaced, orders.EventOrderPlaced, in.ItemID, o.ID, orders.OrderPlacedPayload{
		OrderID:    o.ID,
		ItemID:     in.ItemID,
		SellerID:   o.SellerID,
		BuyerID:    o.BuyerID,
		Qty:        in.Quantity,
		NewStock:   newStock,
		TotalCents: o.TotalCents,
	})
	return PlaceOrderResult{Order: o, NewStock: newStock}, nil
}

func (s *Service) RestockProduct(ctx context.Context, in RestockInput) (RestockResult, error) {
	if err := validateInput(in); err != nil {
		return RestockResult{}, err
	}
	item, err := s.Store.Restock(ctx, in.ItemID, in.OwnerID, in.AdditionalStock)
	if err != nil {
		return RestockResult{}, err
	}

	s.log().Info("product restocked",
		zap.String("item_id", in.ItemID), zap.Int("added", in.AdditionalStock),
		zap.Int("new_stock", item.Stock), zap.Int("initial_stock", item.InitialStock))
	s.publish(orders.TopicStockRestocked, orders.EventStockRestocked, in.ItemID, in.ItemID, orders.StockRestockedPayload{
		ItemID:       in.ItemID,
		OwnerID:      in.OwnerID,
		Added:        in.AdditionalStock,
		NewStock:     item.Stock,
		InitialStock: item.InitialStock,
	})
	return RestockResult{NewStock: item.Stock, InitialStock: item.InitialStock}, nil
}

// UpdateOrderStatus applies a status transition. Cancelling returns the stock.
func (s *Service) UpdateOrderStatus(ctx context.Context, orderID string, to orders.Status) (orders.Order, error) {
	if orderID == "" {
		return orders.Order{}, apperr.Validation("order id is required")
	}
	if !to.Valid() {
		return orders.Order{}, apperr.Validation(fmt.Sprintf("unknown order status %q", to))
	}
	o, from, err := s.Store.UpdateStatus(ctx, orderID, to)
	if err != nil {
		return orders.Order{}, err
	}

	s.log().Info("order status changed",
		zap.String("order_id", orderID), zap.String("from", string(from)), zap.String("to", string(to)))
	key := orderID
	if len(o.Items) > 0 {
		key = o.Items[0].ItemID
	}
	s.publish(orders.TopicOrderStatusChanged, orders.EventOrderStatusChanged, key, orderID, orders.OrderStatusChangedPayload{
		OrderID:  orderID,
		SellerID: o.SellerID,
		From:     from,
		To:       to,
	})
	return o, nil
}

// CheckStockAvailability is advisory only; PlaceOrder makes the binding decision.
func (s *Service) CheckStockAvailability(ctx context.Context, itemID string, qty int) (bool, error) {
	if qty <= 0 {
		return false, apperr.Validation("quantity must be greater than zero")
	}
	item, err := s.Reader.GetProduct(ctx, itemID)
	if err != nil {
		return false, err
	}
	return item.Stock >= qty, nil
}

func (s *Service) publish(topic, eventType, partitionKey, correlationID string, payload any) {
	publishEvent(s.Publisher, s.ServiceName, topic, eventType, partitionKey, correlationID, payload)
}

func publishEvent(p Publisher, producer, topic, eventType, partitionKey, correlationID string, payload any) {
	if p == nil {
		return
	}
	env := orders.NewEnvelope(eventType, producer, correlationID, kafkax.MustMarshal(payload))
	p.Publish(topic, orders.PartitionKey(partitionKey), kafkax.MustMarshal(env),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

func validateInput(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Validation(err.Error())
	}
	msgs := make([]string, 0, len(verrs))
	appErr := apperr.Validation("")
	for _, fe := range verrs {
		var m string
		switch fe.Tag() {
		case "required":
			m = fe.Field() + " is required"
		case "gt":
			m = fe.Field() + " must be greater than " + fe.Param()
		default:
			m = fe.Field() + " is invalid"
		}
		msgs = append(msgs, m)
		appErr.WithDetail(fe.Field(), fe.Tag())
	}
	appErr.Message = strings.Join(msgs, "; ")
	return appErr
}
