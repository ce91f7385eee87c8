package httpx

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/ariefcatur/go-marketplace-stock/internal/apperr"
	"github.com/ariefcatur/go-marketplace-stock/internal/inventory"
	"github.com/ariefcatur/go-marketplace-stock/internal/orders"
	"github.com/go-chi/chi/v5"
)

// Inventory is the stock-affecting surface, served by *inventory.Service.
type Inventory interface {
	PlaceOrder(ctx context.Context, in inventory.PlaceOrderInput) (inventory.PlaceOrderResult, error)
	RestockProduct(ctx context.Context, in inventory.RestockInput) (inventory.RestockResult, error)
	UpdateOrderStatus(ctx context.Context, orderID string, to orders.Status) (orders.Order, error)
	CheckStockAvailability(ctx context.Context, itemID string, qty int) (bool, error)
	GetInventoryStats(ctx context.Context, ownerID string) (inventory.Stats, error)
	GetLowStockProducts(ctx context.Context, ownerID string, thresholdPct float64) ([]orders.StockItem, error)
}

type OrdersHandler struct {
	Inventory Inventory
}

type updateStatusReq struct {
	Status orders.Status `json:"status"`
}

type restockReq struct {
	AdditionalStock int    `json:"additional_stock"`
	OwnerID         string `json:"owner_id"`
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Post("/orders", h.placeOrder)
	r.Patch("/orders/{id}/status", h.updateStatus)
	r.Post("/products/{id}/restock", h.restock)
	r.Get("/products/{id}/availability", h.availability)
	r.Get("/inventory/stats", h.stats)
	r.Get("/inventory/low-stock", h.lowStock)
}

func (h *OrdersHandler) placeOrder(w http.ResponseWriter, r *http.Request) {
	var in inventory.PlaceOrderInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	res, err := h.Inventory.PlaceOrder(ctx, in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *OrdersHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Inventory.UpdateOrderStatus(ctx, chi.URLParam(r, "id"), req.Status)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) restock(w http.ResponseWriter, r *http.Request) {
	var req restockReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	res, err := h.Inventory.RestockProduct(ctx, inventory.RestockInput{
		ItemID:          chi.URLParam(r, "id"),
		AdditionalStock: req.AdditionalStock,
		OwnerID:         req.OwnerID,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *OrdersHandler) availability(w http.ResponseWriter, r *http.Request) {
	qty, err := strconv.Atoi(r.URL.Query().Get("qty"))
	if err != nil {
		writeError(w, apperr.Validation("qty must be an integer"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ok, err := h.Inventory.CheckStockAvailability(ctx, chi.URLParam(r, "id"), qty)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"available": ok})
}

func (h *OrdersHandler) stats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	st, err := h.Inventory.GetInventoryStats(ctx, r.URL.Query().Get("owner"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *OrdersHandler) lowStock(w http.ResponseWriter, r *http.Request) {
	var threshold float64
	if s := r.URL.Query().Get("threshold"); s != "" {
		v, err := strconv.ParseFloat(s, 64)
		// omit threshold for the configured default; 0 is not a usable percentage
		if err != nil || v <= 0 || v > 100 {
			writeError(w, apperr.Validation("threshold must be a percentage above 0 and at most 100"))
			return
		}
		threshold = v
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	items, err := h.Inventory.GetLowStockProducts(ctx, r.URL.Query().Get("owner"), threshold)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}
