package orders

import (
	"context"
	"errors"
	"time"

	"github.com/ariefcatur/go-marketplace-stock/internal/apperr"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ReservationRepo holds every write that touches stock. Each method is one transaction.
type ReservationRepo struct{ DB DB }

type PlaceOrderTx struct {
	ItemID     string
	Qty        int
	BuyerID    string
	BuyerName  string
	BuyerTaxID string
}

// PlaceOrder locks the product row, decrements stock only if enough is left and inserts the
// order in the same transaction. Any failure rolls everything back.
func (r *ReservationRepo) PlaceOrder(ctx context.Context, in PlaceOrderTx) (Order, int, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Order{}, 0, apperr.BackendUnavailable("begin", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var ownerID string
	var price int64
	var stock int
	err = tx.QueryRow(ctx, `SELECT owner_id, price_cents, stock FROM products WHERE id=$1 FOR UPDATE`, in.ItemID).
		Scan(&ownerID, &price, &stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, 0, apperr.NotFound("product", in.ItemID)
	}
	if err != nil {
		return Order{}, 0, apperr.BackendUnavailable("lock product", err)
	}
	if stock < in.Qty {
		return Order{}, 0, apperr.InsufficientStock(stock, in.Qty)
	}

	// the floor check stays in the UPDATE even under the row lock
	var newStock int
	err = tx.QueryRow(ctx, `
		UPDATE products SET stock = stock - $2, updated_at = now()
		WHERE id=$1 AND stock >= $2
		RETURNING stock`, in.ItemID, in.Qty).Scan(&newStock)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, 0, apperr.InsufficientStock(stock, in.Qty)
	}
	if err != nil {
		return Order{}, 0, apperr.BackendUnavailable("decrement stock", err)
	}

	now := time.Now().UTC()
	o := Order{
		ID:         uuid.NewString(),
		BuyerID:    in.BuyerID,
		BuyerName:  in.BuyerName,
		BuyerTaxID: in.BuyerTaxID,
		SellerID:   ownerID,
		Items:      []OrderItem{{ItemID: in.ItemID, Qty: in.Qty, PriceCents: price}},
		Status:     StatusPending,
		TotalCents: price * int64(in.Qty),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO orders(id, buyer_id, buyer_name, buyer_tax_id, seller_id, status, total_cents, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$8)`,
		o.ID, o.BuyerID, o.BuyerName, o.BuyerTaxID, o.SellerID, string(o.Status), o.TotalCents, now); err != nil {
		return Order{}, 0, apperr.BackendUnavailable("insert order", err)
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO order_items(order_id, product_id, qty, price_cents)
		VALUES ($1,$2,$3,$4)`, o.ID, in.ItemID, in.Qty, price); err != nil {
		return Order{}, 0, apperr.BackendUnavailable("insert order item", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Order{}, 0, apperr.BackendUnavailable("commit order", err)
	}
	return o, newStock, nil
}

// Restock adds units to an owned product and lifts initial_stock so utilization stays <= 100%.
func (r *ReservationRepo) Restock(ctx context.Context, itemID, ownerID string, add int) (StockItem, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return StockItem{}, apperr.BackendUnavailable("begin", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var owner string
	err = tx.QueryRow(ctx, `SELECT owner_id FROM products WHERE id=$1 FOR UPDATE`, itemID).Scan(&owner)
	if errors.Is(err, pgx.ErrNoRows) {
		return StockItem{}, apperr.NotFound("product", itemID)
	}
	if err != nil {
		return StockItem{}, apperr.BackendUnavailable("lock product", err)
	}
	if owner != ownerID {
		return StockItem{}, apperr.Unauthorized("only the owner can restock this product")
	}

	// SET expressions see the pre-update row, so GREATEST compares against the new stock.
	s := StockItem{ID: itemID, OwnerID: owner}
	err = tx.QueryRow(ctx, `
		UPDATE products
		SET stock = stock + $2, initial_stock = GREATEST(initial_stock, stock + $2), updated_at = now()
		WHERE id=$1
		RETURNING sku, name, price_cents, stock, initial_stock, min_stock_level, created_at, updated_at`,
		itemID, add).
		Scan(&s.SKU, &s.Name, &s.PriceCents, &s.Stock, &s.InitialStock, &s.MinStockLevel, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return StockItem{}, apperr.BackendUnavailable("restock", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return StockItem{}, apperr.BackendUnavailable("commit restock", err)
	}
	return s, nil
}

// UpdateStatus moves an order along the status machine. Cancelling returns the order's
// quantities to stock in the same transaction; items deleted since are skipped.
func (r *ReservationRepo) UpdateStatus(ctx context.Context, orderID string, to Status) (Order, Status, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Order{}, "", apperr.BackendUnavailable("begin", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var o Order
	var from string
	err = tx.QueryRow(ctx, `SELECT `+orderCols+` FROM orders WHERE id=$1 FOR UPDATE`, orderID).
		Scan(&o.ID, &o.BuyerID, &o.BuyerName, &o.BuyerTaxID, &o.SellerID, &from, &o.TotalCents, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, "", apperr.NotFound("order", orderID)
	}
	if err != nil {
		return Order{}, "", apperr.BackendUnavailable("lock order", err)
	}
	if !CanTransition(Status(from), to) {
		return Order{}, "", apperr.Conflict("cannot move order from " + from + " to " + string(to))
	}

	rows, err := tx.Query(ctx, `SELECT product_id, qty, price_cents FROM order_items WHERE order_id=$1 ORDER BY product_id`, orderID)
	if err != nil {
		return Order{}, "", apperr.BackendUnavailable("load order items", err)
	}
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.ItemID, &it.Qty, &it.PriceCents); err != nil {
			rows.Close()
			return Order{}, "", apperr.BackendUnavailable("scan order items", err)
		}
		o.Items = append(o.Items, it)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return Order{}, "", apperr.BackendUnavailable("load order items", err)
	}

	if to == StatusCancelled {
		for _, it := range o.Items {
			if _, err := tx.Exec(ctx, `
				UPDATE products
				SET stock = stock + $2, initial_stock = GREATEST(initial_stock, stock + $2), updated_at = now()
				WHERE id=$1`, it.ItemID, it.Qty); err != nil {
				return Order{}, "", apperr.BackendUnavailable("release stock", err)
			}
		}
	}

	o.UpdatedAt = time.Now().UTC()
	if _, err := tx.Exec(ctx, `UPDATE orders SET status=$2, updated_at=$3 WHERE id=$1`, orderID, string(to), o.UpdatedAt); err != nil {
		return Order{}, "", apperr.BackendUnavailable("update order status", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return Order{}, "", apperr.BackendUnavailable("commit status", err)
	}
	o.Status = to
	return o, Status(from), nil
}

// ApproveBuyer flips the approval flag of a buyer. It is idempotent.
func (r *ReservationRepo) ApproveBuyer(ctx context.Context, userID string) error {
	ct, err := r.DB.Exec(ctx, `UPDATE users SET approved = true WHERE id=$1 AND role='buyer'`, userID)
	if err != nil {
		return apperr.BackendUnavailable("approve buyer", err)
	}
	if ct.RowsAffected() != 1 {
		return apperr.NotFound("buyer", userID)
	}
	return nil
}
