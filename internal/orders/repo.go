package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ariefcatur/go-marketplace-stock/internal/apperr"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of *pgxpool.Pool the repositories use.
type DB interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const (
	tableProducts  = "products"
	tableInventory = "inventory_items"

	stockCols = `id, owner_id, sku, name, price_cents, stock, initial_stock, min_stock_level, created_at, updated_at`
	userCols  = `id, name, role, approved, tax_id, created_at`
	orderCols = `id, buyer_id, buyer_name, buyer_tax_id, seller_id, status, total_cents, created_at, updated_at`
)

// ListQuery selects one page of a collection. Limit <= 0 returns everything.
// Total is only computed when CountTotal is set; otherwise it is reported as -1.
type ListQuery struct {
	OwnerID    string // products, inventory
	BuyerID    string // orders
	SellerID   string // orders
	Role       Role   // users
	Limit      int
	Offset     int
	CountTotal bool
}

// Repo is the read side of the remote store: fixed, paginated access patterns.
type Repo struct{ DB DB }

type filter struct {
	where []string
	args  []any
}

func (f *filter) eq(col string, v any) {
	f.args = append(f.args, v)
	f.where = append(f.where, fmt.Sprintf("%s=$%d", col, len(f.args)))
}

func (f *filter) sql() string {
	if len(f.where) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(f.where, " AND ")
}

// page appends ORDER BY / LIMIT / OFFSET and returns the final args.
func (f *filter) page(q ListQuery, order string) (string, []any) {
	s := f.sql() + " ORDER BY " + order
	args := f.args
	if q.Limit > 0 {
		args = append(append([]any{}, args...), q.Limit, q.Offset)
		s += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}
	return s, args
}

func (r *Repo) count(ctx context.Context, table string, f *filter) (int, error) {
	var n int
	if err := r.DB.QueryRow(ctx, `SELECT COUNT(*) FROM `+table+f.sql(), f.args...).Scan(&n); err != nil {
		return 0, apperr.BackendUnavailable("count "+table, err)
	}
	return n, nil
}

func (r *Repo) ListProducts(ctx context.Context, q ListQuery) ([]StockItem, int, error) {
	return r.listStock(ctx, tableProducts, q)
}

func (r *Repo) ListInventory(ctx context.Context, q ListQuery) ([]StockItem, int, error) {
	return r.listStock(ctx, tableInventory, q)
}

func (r *Repo) listStock(ctx context.Context, table string, q ListQuery) ([]StockItem, int, error) {
	f := &filter{}
	if q.OwnerID != "" {
		f.eq("owner_id", q.OwnerID)
	}
	total := -1
	if q.CountTotal {
		n, err := r.count(ctx, table, f)
		if err != nil {
			return nil, 0, err
		}
		total = n
	}

	tail, args := f.page(q, "created_at, id")
	rows, err := r.DB.Query(ctx, `SELECT `+stockCols+` FROM `+table+tail, args...)
	if err != nil {
		return nil, 0, apperr.BackendUnavailable("list "+table, err)
	}
	defer rows.Close()

	out := []StockItem{}
	for rows.Next() {
		var s StockItem
		if err := rows.Scan(&s.ID, &s.OwnerID, &s.SKU, &s.Name, &s.PriceCents, &s.Stock,
			&s.InitialStock, &s.MinStockLevel, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, 0, apperr.BackendUnavailable("scan "+table, err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, apperr.BackendUnavailable("list "+table, err)
	}
	return out, total, nil
}

// GetProduct is a plain read; it is never used as the authority for a stock decision.
func (r *Repo) GetProduct(ctx context.Context, id string) (StockItem, error) {
	var s StockItem
	err := r.DB.QueryRow(ctx, `SELECT `+stockCols+` FROM products WHERE id=$1`, id).
		Scan(&s.ID, &s.OwnerID, &s.SKU, &s.Name, &s.PriceCents, &s.Stock,
			&s.InitialStock, &s.MinStockLevel, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return StockItem{}, apperr.NotFound("product", id)
	}
	if err != nil {
		return StockItem{}, apperr.BackendUnavailable("get product", err)
	}
	return s, nil
}

func (r *Repo) ListUsers(ctx context.Context, q ListQuery) ([]User, int, error) {
	f := &filter{}
	if q.Role != "" {
		f.eq("role", string(q.Role))
	}
	total := -1
	if q.CountTotal {
		n, err := r.count(ctx, "users", f)
		if err != nil {
			return nil, 0, err
		}
		total = n
	}

	tail, args := f.page(q, "created_at, id")
	rows, err := r.DB.Query(ctx, `SELECT `+userCols+` FROM users`+tail, args...)
	if err != nil {
		return nil, 0, apperr.BackendUnavailable("list users", err)
	}
	defer rows.Close()

	out := []User{}
	for rows.Next() {
		var u User
		var role string
		if err := rows.Scan(&u.ID, &u.Name, &role, &u.Approved, &u.TaxID, &u.CreatedAt); err != nil {
			return nil, 0, apperr.BackendUnavailable("scan users", err)
		}
		u.Role = Role(role)
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, apperr.BackendUnavailable("list users", err)
	}
	return out, total, nil
}

func (r *Repo) GetUser(ctx context.Context, id string) (User, error) {
	var u User
	var role string
	err := r.DB.QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE id=$1`, id).
		Scan(&u.ID, &u.Name, &role, &u.Approved, &u.TaxID, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, apperr.NotFound("user", id)
	}
	if err != nil {
		return User{}, apperr.BackendUnavailable("get user", err)
	}
	u.Role = Role(role)
	return u, nil
}

func (r *Repo) ListOrders(ctx context.Context, q ListQuery) ([]Order, int, error) {
	f := &filter{}
	if q.BuyerID != "" {
		f.eq("buyer_id", q.BuyerID)
	}
	if q.SellerID != "" {
		f.eq("seller_id", q.SellerID)
	}
	total := -1
	if q.CountTotal {
		n, err := r.count(ctx, "orders", f)
		if err != nil {
			return nil, 0, err
		}
		total = n
	}

	tail, args := f.page(q, "created_at DESC, id")
	rows, err := r.DB.Query(ctx, `SELECT `+orderCols+` FROM orders`+tail, args...)
	if err != nil {
		return nil, 0, apperr.BackendUnavailable("list orders", err)
	}
	out := []Order{}
	idx := map[string]int{}
	for rows.Next() {
		var o Order
		var status string
		if err := rows.Scan(&o.ID, &o.BuyerID, &o.BuyerName, &o.BuyerTaxID, &o.SellerID,
			&status, &o.TotalCents, &o.CreatedAt, &o.UpdatedAt); err != nil {
			rows.Close()
			return nil, 0, apperr.BackendUnavailable("scan orders", err)
		}
		o.Status = Status(status)
		o.Items = []OrderItem{}
		idx[o.ID] = len(out)
		out = append(out, o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, 0, apperr.BackendUnavailable("list orders", err)
	}
	if len(out) == 0 {
		return out, total, nil
	}

	ids := make([]string, 0, len(out))
	for _, o := range out {
		ids = append(ids, o.ID)
	}
	itemRows, err := r.DB.Query(ctx,
		`SELECT order_id, product_id, qty, price_cents FROM order_items WHERE order_id = ANY($1) ORDER BY order_id, product_id`, ids)
	if err != nil {
		return nil, 0, apperr.BackendUnavailable("list order items", err)
	}
	defer itemRows.Close()
	for itemRows.Next() {
		var orderID string
		var it OrderItem
		if err := itemRows.Scan(&orderID, &it.ItemID, &it.Qty, &it.PriceCents); err != nil {
			return nil, 0, apperr.BackendUnavailable("scan order items", err)
		}
		if i, ok := idx[orderID]; ok {
			out[i].Items = append(out[i].Items, it)
		}
	}
	if err := itemRows.Err(); err != nil {
		return nil, 0, apperr.BackendUnavailable("list order items", err)
	}
	return out, total, nil
}
