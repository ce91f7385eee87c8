package httpx

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/ariefcatur/go-marketplace-stock/internal/apperr"
	"github.com/ariefcatur/go-marketplace-stock/internal/gateway"
	"github.com/ariefcatur/go-marketplace-stock/internal/orders"
	"github.com/go-chi/chi/v5"
)

// Reads is the collection read path, served by *gateway.Gateway.
type Reads interface {
	FetchProducts(ctx context.Context, ownerID string, opts gateway.ReadOptions) (gateway.Page[orders.StockItem], error)
	FetchInventory(ctx context.Context, ownerID string, opts gateway.ReadOptions) (gateway.Page[orders.StockItem], error)
	FetchUsers(ctx context.Context, role orders.Role, opts gateway.ReadOptions) (gateway.Page[orders.User], error)
	FetchOrders(ctx context.Context, f gateway.OrderFilter, opts gateway.ReadOptions) (gateway.Page[orders.Order], error)
	PrefetchData(ctx context.Context, ownerID, buyerID string) error
	ClearAllCaches(ctx context.Context) error
}

type ReadsHandler struct {
	Reads Reads
}

type prefetchReq struct {
	OwnerID string `json:"owner_id"`
	BuyerID string `json:"buyer_id"`
}

func (h *ReadsHandler) Register(r chi.Router) {
	r.Get("/products", h.listProducts)
	r.Get("/inventory", h.listInventory)
	r.Get("/users", h.listUsers)
	r.Get("/orders", h.listOrders)
	r.Post("/prefetch", h.prefetch)
	r.Delete("/cache", h.clearCache)
}

// readOptions parses page, pageSize, cache (default true) and count.
func readOptions(r *http.Request) (gateway.ReadOptions, error) {
	q := r.URL.Query()
	opts := gateway.ReadOptions{UseCache: true}
	var err error
	if s := q.Get("page"); s != "" {
		if opts.Page, err = strconv.Atoi(s); err != nil {
			return opts, apperr.Validation("page must be an integer")
		}
	}
	if s := q.Get("pageSize"); s != "" {
		if opts.PageSize, err = strconv.Atoi(s); err != nil {
			return opts, apperr.Validation("pageSize must be an integer")
		}
	}
	if s := q.Get("cache"); s != "" {
		if opts.UseCache, err = strconv.ParseBool(s); err != nil {
			return opts, apperr.Validation("cache must be a boolean")
		}
	}
	if s := q.Get("count"); s != "" {
		if opts.CountTotal, err = strconv.ParseBool(s); err != nil {
			return opts, apperr.Validation("count must be a boolean")
		}
	}
	return opts, nil
}

func serveRead[T any](w http.ResponseWriter, r *http.Request, fn func(context.Context, gateway.ReadOptions) (gateway.Page[T], error)) {
	opts, err := readOptions(r)
	if err != nil {
		writeError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	page, err := fn(ctx, opts)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *ReadsHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	serveRead(w, r, func(ctx context.Context, o gateway.ReadOptions) (gateway.Page[orders.StockItem], error) {
		return h.Reads.FetchProducts(ctx, owner, o)
	})
}

func (h *ReadsHandler) listInventory(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	serveRead(w, r, func(ctx context.Context, o gateway.ReadOptions) (gateway.Page[orders.StockItem], error) {
		return h.Reads.FetchInventory(ctx, owner, o)
	})
}

func (h *ReadsHandler) listUsers(w http.ResponseWriter, r *http.Request) {
	role := orders.Role(r.URL.Query().Get("role"))
	serveRead(w, r, func(ctx context.Context, o gateway.ReadOptions) (gateway.Page[orders.User], error) {
		return h.Reads.FetchUsers(ctx, role, o)
	})
}

func (h *ReadsHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	f := gateway.OrderFilter{BuyerID: r.URL.Query().Get("buyer"), SellerID: r.URL.Query().Get("seller")}
	serveRead(w, r, func(ctx context.Context, o gateway.ReadOptions) (gateway.Page[orders.Order], error) {
		return h.Reads.FetchOrders(ctx, f, o)
	})
}

func (h *ReadsHandler) prefetch(w http.ResponseWriter, r *http.Request) {
	var req prefetchReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	if err := h.Reads.PrefetchData(ctx, req.OwnerID, req.BuyerID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ReadsHandler) clearCache(w http.ResponseWriter, r *http.Request) {
	if err := h.Reads.ClearAllCaches(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
