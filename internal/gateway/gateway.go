package gateway

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ariefcatur/go-marketplace-stock/internal/apperr"
	"github.com/ariefcatur/go-marketplace-stock/internal/cache"
	"github.com/ariefcatur/go-marketplace-stock/internal/logger"
	"github.com/ariefcatur/go-marketplace-stock/internal/metrics"
	"github.com/ariefcatur/go-marketplace-stock/internal/offline"
	"github.com/ariefcatur/go-marketplace-stock/internal/orders"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100

	sourceCache   = "cache"
	sourceRemote  = "remote"
	sourceOffline = "offline"
)

// Remote is the paginated read side of the backing store.
type Remote interface {
	ListProducts(ctx context.Context, q orders.ListQuery) ([]orders.StockItem, int, error)
	ListInventory(ctx context.Context, q orders.ListQuery) ([]orders.StockItem, int, error)
	ListUsers(ctx context.Context, q orders.ListQuery) ([]orders.User, int, error)
	ListOrders(ctx context.Context, q orders.ListQuery) ([]orders.Order, int, error)
}

// Connectivity is the synchronous online check.
type Connectivity interface {
	IsOnline() bool
}

// Page is one page of a collection. Total is -1 unless CountTotal was requested.
type Page[T any] struct {
	Data     []T  `json:"data"`
	Total    int  `json:"total"`
	HasMore  bool `json:"hasMore"`
	Page     int  `json:"page"`
	PageSize int  `json:"pageSize"`
}

type ReadOptions struct {
	Page       int // 1-based
	PageSize   int
	UseCache   bool
	CountTotal bool
}

type OrderFilter struct {
	BuyerID  string
	SellerID string
}

type Config struct {
	CacheTTL        time.Duration
	DefaultPageSize int
	MaxPageSize     int
}

// Gateway is the single read path for collections:
// cache, then offline snapshot when offline, then the remote store.
type Gateway struct {
	remote   Remote
	cache    cache.ExpiringKeyValueCache
	snapshot offline.DurableSnapshotStore
	conn     Connectivity
	breaker  *gobreaker.CircuitBreaker
	cfg      Config
	metrics  *metrics.Metrics
	log      *zap.Logger
}

type Deps struct {
	Remote   Remote
	Cache    cache.ExpiringKeyValueCache
	Snapshot offline.DurableSnapshotStore
	Conn     Connectivity              // nil means always online
	Breaker  *gobreaker.CircuitBreaker // optional
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
}

func New(d Deps, cfg Config) *Gateway {
	if cfg.MaxPageSize <= 0 {
		cfg.MaxPageSize = MaxPageSize
	}
	if cfg.DefaultPageSize <= 0 {
		cfg.DefaultPageSize = DefaultPageSize
	}
	if cfg.DefaultPageSize > cfg.MaxPageSize {
		cfg.DefaultPageSize = cfg.MaxPageSize
	}
	return &Gateway{
		remote:   d.Remote,
		cache:    d.Cache,
		snapshot: d.Snapshot,
		conn:     d.Conn,
		breaker:  d.Breaker,
		cfg:      cfg,
		metrics:  d.Metrics,
		log:      logger.OrNop(d.Logger),
	}
}

func (g *Gateway) online() bool {
	return g.conn == nil || g.conn.IsOnline()
}

// normalize clamps page to >= 1 and pageSize to [1, MaxPageSize].
func (g *Gateway) normalize(o ReadOptions) ReadOptions {
	if o.Page < 1 {
		o.Page = 1
	}
	if o.PageSize <= 0 {
		o.PageSize = g.cfg.DefaultPageSize
	}
	if o.PageSize > g.cfg.MaxPageSize {
		o.PageSize = g.cfg.MaxPageSize
	}
	return o
}

// cacheKey is built from the operation and every parameter so filters never collide.
func cacheKey(collection string, filters []string, o ReadOptions) string {
	var b strings.Builder
	b.WriteString(collection)
	for _, f := range filters {
		b.WriteByte(':')
		b.WriteString(f)
	}
	b.WriteString(":page=")
	b.WriteString(strconv.Itoa(o.Page))
	b.WriteString(":size=")
	b.WriteString(strconv.Itoa(o.PageSize))
	b.WriteString(":total=")
	b.WriteString(strconv.FormatBool(o.CountTotal))
	return b.String()
}

type listFunc[T any] func(ctx context.Context, q orders.ListQuery) ([]T, int, error)

// read describes one collection fetch.
type read[T any] struct {
	collection string
	filters    []string // k=v, already in a fixed order
	query      orders.ListQuery
	list       listFunc[T]
	fromSnap   func(offline.Snapshot) []T // filtered, in remote order
	toSnap     func([]T) offline.Snapshot // nil when the read is filtered
}

func fetch[T any](ctx context.Context, g *Gateway, r read[T], opts ReadOptions) (Page[T], error) {
	opts = g.normalize(opts)
	key := cacheKey(r.collection, r.filters, opts)

	if !g.online() {
		if p, ok := fromOffline(g, r, opts); ok {
			return p, nil
		}
		return Page[T]{}, apperr.NoData(r.collection).WithDetail("reason", "offline")
	}

	if opts.UseCache && g.cache != nil {
		if p, ok := cache.Get[Page[T]](g.cache, key); ok {
			g.metrics.GatewayRead(r.collection, sourceCache)
			return p, nil
		}
	}

	p, err := fromRemote(ctx, g, r, opts)
	if err != nil {
		if fp, ok := fromOffline(g, r, opts); ok {
			g.log.Warn("remote read failed, serving offline snapshot",
				zap.String("collection", r.collection), zap.Error(err))
			return fp, nil
		}
		if appErr, ok := apperr.As(err); ok && appErr.Code != apperr.CodeBackendUnavailable {
			return Page[T]{}, err
		}
		return Page[T]{}, apperr.NoData(r.collection).Wrap(err)
	}

	g.metrics.GatewayRead(r.collection, sourceRemote)
	if g.cache != nil {
		if err := g.cache.Set(ctx, key, p, g.cfg.CacheTTL); err != nil {
			g.log.Warn("cache set failed", zap.String("key", key), zap.Error(err))
		}
	}
	// a complete, unfiltered read refreshes the snapshot for that collection
	if r.toSnap != nil && opts.Page == 1 && !p.HasMore && g.snapshot != nil {
		if err := g.snapshot.Save(ctx, r.toSnap(p.Data)); err != nil {
			g.log.Warn("offline snapshot save failed", zap.String("collection", r.collection), zap.Error(err))
		}
	}
	return p, nil
}

type remoteResult[T any] struct {
	items []T
	total int
}

// fromRemote runs one page query through the breaker. Without CountTotal it asks
// for one extra row to learn whether another page exists.
func fromRemote[T any](ctx context.Context, g *Gateway, r read[T], opts ReadOptions) (Page[T], error) {
	q := r.query
	q.Offset = (opts.Page - 1) * opts.PageSize
	q.Limit = opts.PageSize
	q.CountTotal = opts.CountTotal
	if !opts.CountTotal {
		q.Limit++
	}

	call := func() (interface{}, error) {
		items, total, err := r.list(ctx, q)
		if err != nil {
			// a caller that hung up is not a link failure
			if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
				return nil, fmt.Errorf("%w: %w", ctxErr, err)
			}
			return nil, err
		}
		return remoteResult[T]{items: items, total: total}, nil
	}
	var (
		out any
		err error
	)
	if g.breaker != nil {
		out, err = g.breaker.Execute(call)
	} else {
		out, err = call()
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return Page[T]{}, apperr.BackendUnavailable("read "+r.collection, err)
	}
	if err != nil {
		return Page[T]{}, err
	}

	res := out.(remoteResult[T])
	p := Page[T]{Data: res.items, Total: res.total, Page: opts.Page, PageSize: opts.PageSize}
	if opts.CountTotal {
		p.HasMore = q.Offset+len(p.Data) < res.total
	} else {
		p.Total = -1
		if len(p.Data) > opts.PageSize {
			p.Data = p.Data[:opts.PageSize]
			p.HasMore = true
		}
	}
	if p.Data == nil {
		p.Data = []T{}
	}
	return p, nil
}

// fromOffline applies the same filter and pagination in memory over the snapshot.
func fromOffline[T any](g *Gateway, r read[T], opts ReadOptions) (Page[T], bool) {
	if g.snapshot == nil {
		return Page[T]{}, false
	}
	snap, ok := g.snapshot.Load()
	if !ok {
		return Page[T]{}, false
	}
	g.metrics.GatewayRead(r.collection, sourceOffline)
	return paginate(r.fromSnap(snap), opts), true
}

func paginate[T any](all []T, opts ReadOptions) Page[T] {
	p := Page[T]{Total: -1, Page: opts.Page, PageSize: opts.PageSize}
	if opts.CountTotal {
		p.Total = len(all)
	}
	start := (opts.Page - 1) * opts.PageSize
	if start > len(all) {
		start = len(all)
	}
	end := start + opts.PageSize
	if end > len(all) {
		end = len(all)
	}
	p.Data = append([]T{}, all[start:end]...)
	p.HasMore = end < len(all)
	return p
}

func filterSlice[T any](in []T, keep func(T) bool) []T {
	out := []T{}
	for _, v := range in {
		if keep(v) {
			out = append(out, v)
		}
	}
	return out
}

func kv(k, v string) string { return fmt.Sprintf("%s=%s", k, v) }
