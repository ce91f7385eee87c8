package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ariefcatur/go-marketplace-stock/internal/offline"
	"github.com/ariefcatur/go-marketplace-stock/internal/orders"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// PrefetchData warms the cache with the first page of each collection. Results
// are dropped; only the caching side effect matters.
func (g *Gateway) PrefetchData(ctx context.Context, ownerID, buyerID string) error {
	opts := ReadOptions{Page: 1, UseCache: true}
	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		_, err := g.FetchProducts(ctx, ownerID, opts)
		return err
	})
	eg.Go(func() error {
		_, err := g.FetchInventory(ctx, ownerID, opts)
		return err
	})
	eg.Go(func() error {
		_, err := g.FetchOrders(ctx, OrderFilter{BuyerID: buyerID}, opts)
		return err
	})
	eg.Go(func() error {
		_, err := g.FetchUsers(ctx, "", opts)
		return err
	})
	return eg.Wait()
}

// ClearAllCaches drops every cached page. The offline snapshot is left alone.
func (g *Gateway) ClearAllCaches(ctx context.Context) error {
	if g.cache == nil {
		return nil
	}
	return g.cache.ClearAll(ctx)
}

// Resync reads the four full collections straight from the remote store, saves
// them as the offline snapshot and drops the cache. It is the reconnect hook.
// It does not go through the breaker so a just-recovered link is used at once.
func (g *Gateway) Resync(ctx context.Context) error {
	start := time.Now()
	var snap offline.Snapshot
	all := orders.ListQuery{}

	eg, ectx := errgroup.WithContext(ctx)
	eg.Go(func() (err error) {
		snap.Users, _, err = g.remote.ListUsers(ectx, all)
		return err
	})
	eg.Go(func() (err error) {
		snap.Products, _, err = g.remote.ListProducts(ectx, all)
		return err
	})
	eg.Go(func() (err error) {
		snap.Orders, _, err = g.remote.ListOrders(ectx, all)
		return err
	})
	eg.Go(func() (err error) {
		snap.Inventory, _, err = g.remote.ListInventory(ectx, all)
		return err
	})
	if err := eg.Wait(); err != nil {
		return fmt.Errorf("resync: %w", err)
	}

	if g.snapshot != nil {
		if err := g.snapshot.Save(ctx, snap); err != nil {
			g.log.Warn("offline snapshot save failed", zap.Error(err))
		}
	}
	if err := g.ClearAllCaches(ctx); err != nil {
		g.log.Warn("cache clear failed", zap.Error(err))
	}
	g.log.Info("resync done",
		zap.Int("users", len(snap.Users)), zap.Int("products", len(snap.Products)),
		zap.Int("orders", len(snap.Orders)), zap.Int("inventory", len(snap.Inventory)),
		zap.Duration("took", time.Since(start)))
	return nil
}

// ResyncHook adapts Resync to the connectivity monitor's reconnect hook.
func (g *Gateway) ResyncHook(ctx context.Context) {
	if err := g.Resync(ctx); err != nil {
		g.log.Error("resync after reconnect failed", zap.Error(err))
	}
}

// HandleStockEvent drops cached pages that may show stale stock or order state.
func (g *Gateway) HandleStockEvent(ctx context.Context, m kafkago.Message) error {
	if g.cache == nil {
		return nil
	}
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		// malformed events are skipped; a retry would not help
		g.log.Warn("skipping malformed event", zap.String("topic", m.Topic), zap.Error(err))
		return nil
	}

	var prefixes []string
	switch env.EventType {
	case orders.EventOrderPlaced:
		prefixes = []string{collProducts + ":", collInventory + ":", collOrders + ":"}
	case orders.EventStockRestocked:
		prefixes = []string{collProducts + ":", collInventory + ":"}
	case orders.EventOrderStatusChanged:
		// cancellation returns stock too
		prefixes = []string{collProducts + ":", collInventory + ":", collOrders + ":"}
	default:
		return nil
	}
	for _, p := range prefixes {
		if err := g.cache.ClearPrefix(ctx, p); err != nil {
			return err
		}
	}
	g.log.Debug("cache invalidated", zap.String("event_type", env.EventType), zap.String("event_id", env.EventID))
	return nil
}
