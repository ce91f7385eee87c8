//go:build integration

package orders

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ariefcatur/go-marketplace-stock/internal/apperr"
	"github.com/ariefcatur/go-marketplace-stock/internal/postgres"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run with: MKT_TEST_POSTGRES_DSN=postgres://... go test -tags integration ./internal/orders/
func newIntegrationPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("MKT_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("MKT_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	opts := postgres.DefaultPoolOptions()
	opts.MaxConns = 32
	db, err := postgres.Connect(ctx, dsn, opts)
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, postgres.Migrate(ctx, db))
	return db
}

func seedProduct(t *testing.T, db *pgxpool.Pool, stock int) string {
	t.Helper()
	ctx := context.Background()
	id := "it-" + uuid.NewString()
	_, err := db.Exec(ctx, `
		INSERT INTO products(id, owner_id, name, price_cents, stock, initial_stock)
		VALUES ($1, 'it-seller', 'Mug', 100, $2, $2)`, id, stock)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = db.Exec(ctx, `DELETE FROM order_items WHERE product_id=$1`, id)
		_, _ = db.Exec(ctx, `DELETE FROM orders WHERE seller_id='it-seller'`)
		_, _ = db.Exec(ctx, `DELETE FROM products WHERE id=$1`, id)
	})
	return id
}

func stockOf(t *testing.T, db *pgxpool.Pool, id string) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(context.Background(), `SELECT stock FROM products WHERE id=$1`, id).Scan(&n))
	return n
}

func TestPlaceOrder_Postgres_TwoBuyersOnlyOneWins(t *testing.T) {
	db := newIntegrationPool(t)
	repo := &ReservationRepo{DB: db}
	id := seedProduct(t, db, 10)

	var wg sync.WaitGroup
	var placed, rejected atomic.Int32
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := repo.PlaceOrder(context.Background(), PlaceOrderTx{ItemID: id, Qty: 6, BuyerID: "it-buyer"})
			switch {
			case err == nil:
				placed.Add(1)
			case apperr.Is(err, apperr.CodeInsufficientStock):
				rejected.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), placed.Load())
	assert.Equal(t, int32(1), rejected.Load())
	assert.Equal(t, 4, stockOf(t, db, id))
}

func TestPlaceOrder_Postgres_NeverOversells(t *testing.T) {
	db := newIntegrationPool(t)
	repo := &ReservationRepo{DB: db}
	id := seedProduct(t, db, 25)

	var wg sync.WaitGroup
	var placed atomic.Int32
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := repo.PlaceOrder(context.Background(), PlaceOrderTx{ItemID: id, Qty: 1, BuyerID: "it-buyer"}); err == nil {
				placed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(25), placed.Load())
	assert.Equal(t, 0, stockOf(t, db, id))
}
