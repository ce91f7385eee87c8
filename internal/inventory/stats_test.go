package inventory

import (
	"context"
	"testing"

	"github.com/ariefcatur/go-marketplace-stock/internal/orders"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeStats(t *testing.T) {
	items := []orders.StockItem{
		{ID: "a", Stock: 0, InitialStock: 10},  // out of stock
		{ID: "b", Stock: 1, InitialStock: 10},  // low (10%)
		{ID: "c", Stock: 5, InitialStock: 10},  // fine
		{ID: "d", Stock: 3, InitialStock: 0},   // no baseline, never low
		{ID: "e", Stock: 1, InitialStock: 300}, // low
	}

	st := ComputeStats(items, DefaultLowStockPct)

	assert.Equal(t, 5, st.TotalProducts)
	assert.Equal(t, 10, st.TotalStock)
	assert.Equal(t, 330, st.TotalInitialStock)
	assert.Equal(t, 1, st.OutOfStockCount)
	assert.Equal(t, 2, st.LowStockCount)
	// (330-10)/330*100 = 96.9696...
	assert.Equal(t, 96.97, st.StockUtilizationPct)
}

func TestComputeStats_EmptyBaseline(t *testing.T) {
	st := ComputeStats(nil, DefaultLowStockPct)
	assert.Equal(t, 0.0, st.StockUtilizationPct)
}

func TestUtilizationStaysInBoundsAcrossRestocks(t *testing.T) {
	store := seedStore()
	svc, _ := newTestService(store)
	ctx := context.Background()

	_, err := svc.PlaceOrder(ctx, PlaceOrderInput{ItemID: "p1", Quantity: 8, BuyerID: "b1"})
	require.NoError(t, err)
	_, err = svc.RestockProduct(ctx, RestockInput{ItemID: "p1", AdditionalStock: 20, OwnerID: "seller-1"})
	require.NoError(t, err)
	_, err = svc.PlaceOrder(ctx, PlaceOrderInput{ItemID: "p1", Quantity: 22, BuyerID: "b1"})
	require.NoError(t, err)

	st, err := svc.GetInventoryStats(ctx, "seller-1")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, st.StockUtilizationPct, 0.0)
	assert.LessOrEqual(t, st.StockUtilizationPct, 100.0)
	assert.Equal(t, 1, st.OutOfStockCount)
}

func TestGetLowStockProducts_OrderedByRatio(t *testing.T) {
	store := newMemStore()
	store.items["x"] = orders.StockItem{ID: "x", OwnerID: "o", Stock: 2, InitialStock: 20}   // 10%
	store.items["y"] = orders.StockItem{ID: "y", OwnerID: "o", Stock: 1, InitialStock: 100}  // 1%
	store.items["z"] = orders.StockItem{ID: "z", OwnerID: "o", Stock: 0, InitialStock: 100}  // out, excluded
	store.items["w"] = orders.StockItem{ID: "w", OwnerID: "o", Stock: 50, InitialStock: 100} // 50%
	store.items["v"] = orders.StockItem{ID: "v", OwnerID: "other", Stock: 1, InitialStock: 100}
	svc, _ := newTestService(store)

	low, err := svc.GetLowStockProducts(context.Background(), "o", 0)
	require.NoError(t, err)
	ids := []string{}
	for _, it := range low {
		ids = append(ids, it.ID)
	}
	assert.Equal(t, []string{"y", "x"}, ids)

	low, err = svc.GetLowStockProducts(context.Background(), "o", 60)
	require.NoError(t, err)
	assert.Len(t, low, 3)
}
