package orders

import "time"

type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleSeller Role = "seller"
	RoleAdmin  Role = "admin"
)

type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Role      Role      `json:"role"`
	Approved  bool      `json:"approved"`
	TaxID     string    `json:"tax_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// StockItem is a product or an inventory item. Stock only changes through ReservationRepo.
type StockItem struct {
	ID            string    `json:"id"`
	OwnerID       string    `json:"owner_id"`
	SKU           string    `json:"sku"`
	Name          string    `json:"name"`
	PriceCents    int64     `json:"price_cents"`
	Stock         int       `json:"stock"`
	InitialStock  int       `json:"initial_stock"`
	MinStockLevel int       `json:"min_stock_level"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// StockRatio is stock/initialStock, or -1 when there is no baseline.
func (s StockItem) StockRatio() float64 {
	if s.InitialStock <= 0 {
		return -1
	}
	return float64(s.Stock) / float64(s.InitialStock)
}

// Order.TotalCents is frozen at placement and never recomputed.
type Order struct {
	ID         string      `json:"id"`
	BuyerID    string      `json:"buyer_id"`
	BuyerName  string      `json:"buyer_name"`
	BuyerTaxID string      `json:"buyer_tax_id,omitempty"`
	SellerID   string      `json:"seller_id"`
	Items      []OrderItem `json:"items"`
	Status     Status      `json:"status"`
	TotalCents int64       `json:"total_cents"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

type OrderItem struct {
	ItemID     string `json:"item_id"`
	Qty        int    `json:"qty"`
	PriceCents int64  `json:"price_cents"`
}
