package inventory

import (
	"context"
	"sort"

	"github.com/ariefcatur/go-marketplace-stock/internal/orders"
	"github.com/shopspring/decimal"
)

type Stats struct {
	TotalProducts       int     `json:"total_products"`
	TotalStock          int     `json:"total_stock"`
	TotalInitialStock   int     `json:"total_initial_stock"`
	LowStockCount       int     `json:"low_stock_count"`
	OutOfStockCount     int     `json:"out_of_stock_count"`
	StockUtilizationPct float64 `json:"stock_utilization_pct"`
}

func (s *Service) lowPct() float64 {
	if s.LowStockPct > 0 {
		return s.LowStockPct
	}
	return DefaultLowStockPct
}

// GetInventoryStats reads the owner's products in one snapshot and aggregates them.
func (s *Service) GetInventoryStats(ctx context.Context, ownerID string) (Stats, error) {
	items, _, err := s.Reader.ListProducts(ctx, orders.ListQuery{OwnerID: ownerID})
	if err != nil {
		return Stats{}, err
	}
	return ComputeStats(items, s.lowPct()), nil
}

// GetLowStockProducts returns the owner's items with 0 < stock/initialStock <= thresholdPct,
// lowest ratio first. thresholdPct <= 0 uses the configured default.
func (s *Service) GetLowStockProducts(ctx context.Context, ownerID string, thresholdPct float64) ([]orders.StockItem, error) {
	if thresholdPct <= 0 {
		thresholdPct = s.lowPct()
	}
	items, _, err := s.Reader.ListProducts(ctx, orders.ListQuery{OwnerID: ownerID})
	if err != nil {
		return nil, err
	}
	out := []orders.StockItem{}
	for _, it := range items {
		if IsLowStock(it, thresholdPct) {
			out = append(out, it)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := out[i].StockRatio(), out[j].StockRatio()
		if ri != rj {
			return ri < rj
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// IsLowStock: stock is positive and at most thresholdPct of the baseline.
// Items without a baseline are never low.
func IsLowStock(it orders.StockItem, thresholdPct float64) bool {
	if it.Stock <= 0 || it.InitialStock <= 0 {
		return false
	}
	return it.StockRatio() <= thresholdPct/100
}

func ComputeStats(items []orders.StockItem, lowPct float64) Stats {
	st := Stats{TotalProducts: len(items)}
	for _, it := range items {
		st.TotalStock += it.Stock
		st.TotalInitialStock += it.InitialStock
		switch {
		case it.Stock == 0:
			st.OutOfStockCount++
		case IsLowStock(it, lowPct):
			st.LowStockCount++
		}
	}
	if st.TotalInitialStock > 0 {
		used := decimal.NewFromInt(int64(st.TotalInitialStock - st.TotalStock))
		pct := used.Mul(decimal.NewFromInt(100)).
			Div(decimal.NewFromInt(int64(st.TotalInitialStock))).
			Round(2)
		st.StockUtilizationPct = pct.InexactFloat64()
	}
	return st
}
