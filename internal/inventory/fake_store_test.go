package inventory

import (
	"context"
	"sync"
	"time"

	"github.com/ariefcatur/go-marketplace-stock/internal/apperr"
	"github.com/ariefcatur/go-marketplace-stock/internal/orders"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
)

// memStore mirrors ReservationRepo semantics: every write holds the lock for the whole
// check-and-mutate, like the row lock inside the SQL transaction.
type memStore struct {
	mu       sync.Mutex
	items    map[string]orders.StockItem
	users    map[string]orders.User
	orders   map[string]orders.Order
	approved []string
	failNext error
}

func newMemStore() *memStore {
	return &memStore{
		items:  map[string]orders.StockItem{},
		users:  map[string]orders.User{},
		orders: map[string]orders.Order{},
	}
}

func (m *memStore) PlaceOrder(_ context.Context, in orders.PlaceOrderTx) (orders.Order, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failNext != nil {
		err := m.failNext
		m.failNext = nil
		return orders.Order{}, 0, err
	}
	it, ok := m.items[in.ItemID]
	if !ok {
		return orders.Order{}, 0, apperr.NotFound("product", in.ItemID)
	}
	if it.Stock < in.Qty {
		return orders.Order{}, 0, apperr.InsufficientStock(it.Stock, in.Qty)
	}
	it.Stock -= in.Qty
	m.items[in.ItemID] = it
	o := orders.Order{
		ID:         uuid.NewString(),
		BuyerID:    in.BuyerID,
		BuyerName:  in.BuyerName,
		BuyerTaxID: in.BuyerTaxID,
		SellerID:   it.OwnerID,
		Items:      []orders.OrderItem{{ItemID: in.ItemID, Qty: in.Qty, PriceCents: it.PriceCents}},
		Status:     orders.StatusPending,
		TotalCents: it.PriceCents * int64(in.Qty),
		CreatedAt:  time.Now(),
	}
	m.orders[o.ID] = o
	return o, it.Stock, nil
}

func (m *memStore) Restock(_ context.Context, itemID, ownerID string, add int) (orders.StockItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[itemID]
	if !ok {
		return orders.StockItem{}, apperr.NotFound("product", itemID)
	}
	if it.OwnerID != ownerID {
		return orders.StockItem{}, apperr.Unauthorized("only the owner can restock this product")
	}
	it.Stock += add
	if it.Stock > it.InitialStock {
		it.InitialStock = it.Stock
	}
	m.items[itemID] = it
	return it, nil
}

func (m *memStore) UpdateStatus(_ context.Context, orderID string, to orders.Status) (orders.Order, orders.Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return orders.Order{}, "", apperr.NotFound("order", orderID)
	}
	from := o.Status
	if !orders.CanTransition(from, to) {
		return orders.Order{}, "", apperr.Conflict("illegal transition")
	}
	if to == orders.StatusCancelled {
		for _, li := range o.Items {
			if it, ok := m.items[li.ItemID]; ok {
				it.Stock += li.Qty
				if it.Stock > it.InitialStock {
					it.InitialStock = it.Stock
				}
				m.items[li.ItemID] = it
			}
		}
	}
	o.Status = to
	m.orders[orderID] = o
	return o, from, nil
}

func (m *memStore) ApproveBuyer(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok || u.Role != orders.RoleBuyer {
		return apperr.NotFound("buyer", userID)
	}
	u.Approved = true
	m.users[userID] = u
	m.approved = append(m.approved, userID)
	return nil
}

func (m *memStore) GetProduct(_ context.Context, id string) (orders.StockItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok {
		return orders.StockItem{}, apperr.NotFound("product", id)
	}
	return it, nil
}

func (m *memStore) GetUser(_ context.Context, id string) (orders.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return orders.User{}, apperr.NotFound("user", id)
	}
	return u, nil
}

func (m *memStore) ListProducts(_ context.Context, q orders.ListQuery) ([]orders.StockItem, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []orders.StockItem
	for _, it := range m.items {
		if q.OwnerID == "" || it.OwnerID == q.OwnerID {
			out = append(out, it)
		}
	}
	return out, len(out), nil
}

func (m *memStore) orderCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}

type published struct {
	topic string
	key   string
	value []byte
}

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []published
}

func (p *recordingPublisher) Publish(topic string, key, value []byte, _ ...kafkago.Header) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, published{topic: topic, key: string(key), value: value})
}

func (p *recordingPublisher) topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.msgs))
	for _, m := range p.msgs {
		out = append(out, m.topic)
	}
	return out
}
