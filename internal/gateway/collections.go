package gateway

import (
	"context"

	"github.com/ariefcatur/go-marketplace-stock/internal/offline"
	"github.com/ariefcatur/go-marketplace-stock/internal/orders"
)

const (
	collProducts  = "products"
	collInventory = "inventory"
	collUsers     = "users"
	collOrders    = "orders"
)

// FetchProducts lists products, optionally only those of one seller.
func (g *Gateway) FetchProducts(ctx context.Context, ownerID string, opts ReadOptions) (Page[orders.StockItem], error) {
	return fetch(ctx, g, stockRead(collProducts, ownerID, g.remote.ListProducts,
		func(s offline.Snapshot) []orders.StockItem { return s.Products },
		func(items []orders.StockItem) offline.Snapshot { return offline.Snapshot{Products: items} },
	), opts)
}

func (g *Gateway) FetchInventory(ctx context.Context, ownerID string, opts ReadOptions) (Page[orders.StockItem], error) {
	return fetch(ctx, g, stockRead(collInventory, ownerID, g.remote.ListInventory,
		func(s offline.Snapshot) []orders.StockItem { return s.Inventory },
		func(items []orders.StockItem) offline.Snapshot { return offline.Snapshot{Inventory: items} },
	), opts)
}

func stockRead(
	collection, ownerID string,
	list listFunc[orders.StockItem],
	slice func(offline.Snapshot) []orders.StockItem,
	save func([]orders.StockItem) offline.Snapshot,
) read[orders.StockItem] {
	r := read[orders.StockItem]{
		collection: collection,
		filters:    []string{kv("owner", ownerID)},
		query:      orders.ListQuery{OwnerID: ownerID},
		list:       list,
		fromSnap: func(s offline.Snapshot) []orders.StockItem {
			return filterSlice(slice(s), func(it orders.StockItem) bool {
				return ownerID == "" || it.OwnerID == ownerID
			})
		},
	}
	if ownerID == "" {
		r.toSnap = save
	}
	return r
}

// FetchUsers lists users, optionally of one role.
func (g *Gateway) FetchUsers(ctx context.Context, role orders.Role, opts ReadOptions) (Page[orders.User], error) {
	r := read[orders.User]{
		collection: collUsers,
		filters:    []string{kv("role", string(role))},
		query:      orders.ListQuery{Role: role},
		list:       g.remote.ListUsers,
		fromSnap: func(s offline.Snapshot) []orders.User {
			return filterSlice(s.Users, func(u orders.User) bool { return role == "" || u.Role == role })
		},
	}
	if role == "" {
		r.toSnap = func(us []orders.User) offline.Snapshot { return offline.Snapshot{Users: us} }
	}
	return fetch(ctx, g, r, opts)
}

// FetchOrders lists orders newest first, optionally of one buyer and/or seller.
func (g *Gateway) FetchOrders(ctx context.Context, f OrderFilter, opts ReadOptions) (Page[orders.Order], error) {
	r := read[orders.Order]{
		collection: collOrders,
		filters:    []string{kv("buyer", f.BuyerID), kv("seller", f.SellerID)},
		query:      orders.ListQuery{BuyerID: f.BuyerID, SellerID: f.SellerID},
		list:       g.remote.ListOrders,
		fromSnap: func(s offline.Snapshot) []orders.Order {
			return filterSlice(s.Orders, func(o orders.Order) bool {
				return (f.BuyerID == "" || o.BuyerID == f.BuyerID) &&
					(f.SellerID == "" || o.SellerID == f.SellerID)
			})
		},
	}
	if f.BuyerID == "" && f.SellerID == "" {
		r.toSnap = func(os []orders.Order) offline.Snapshot { return offline.Snapshot{Orders: os} }
	}
	return fetch(ctx, g, r, opts)
}
