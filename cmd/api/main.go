package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-marketplace-stock/internal/cache"
	"github.com/ariefcatur/go-marketplace-stock/internal/config"
	"github.com/ariefcatur/go-marketplace-stock/internal/connectivity"
	"github.com/ariefcatur/go-marketplace-stock/internal/gateway"
	"github.com/ariefcatur/go-marketplace-stock/internal/httpx"
	"github.com/ariefcatur/go-marketplace-stock/internal/inventory"
	kafkax "github.com/ariefcatur/go-marketplace-stock/internal/kafka"
	"github.com/ariefcatur/go-marketplace-stock/internal/logger"
	"github.com/ariefcatur/go-marketplace-stock/internal/metrics"
	"github.com/ariefcatur/go-marketplace-stock/internal/offline"
	"github.com/ariefcatur/go-marketplace-stock/internal/orders"
	"github.com/ariefcatur/go-marketplace-stock/internal/postgres"
	"github.com/ariefcatur/go-marketplace-stock/internal/redisx"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	log := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	defer func() { _ = log.Sync() }()
	log = log.With(zap.String("service", cfg.ServiceName))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN, postgres.DefaultPoolOptions())
	if err != nil {
		log.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()
	if err := postgres.Migrate(ctx, db); err != nil {
		log.Fatal("db migrate", zap.Error(err))
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Kafka producer; the topic is chosen per event
	prod := kafkax.NewProducer(cfg.KafkaBrokers, 1024, log.Named("producer"))
	// the producer outlives ctx so requests finishing during shutdown still publish
	prodCtx, stopProd := context.WithCancel(context.Background())
	defer stopProd()
	prod.Start(prodCtx)

	// Reservation service
	policy, err := inventory.ParseBuyerPolicy(cfg.BuyerPolicy)
	if err != nil {
		log.Fatal("config", zap.Error(err))
	}
	repo := &orders.Repo{DB: db}
	svc := &inventory.Service{
		Store:       &orders.ReservationRepo{DB: db},
		Reader:      repo,
		Publisher:   prod,
		Policy:      policy,
		LowStockPct: cfg.LowStockPct,
		ServiceName: cfg.ServiceName,
		Metrics:     m,
		Logger:      log.Named("inventory"),
	}

	// Read path: cache -> offline snapshot -> remote
	cacheStore := cache.New(cache.Options{
		Redis:      rdb,
		Prefix:     cfg.CachePrefix,
		DefaultTTL: cfg.CacheTTL,
		Metrics:    m,
		Logger:     log.Named("cache"),
	})
	if n, err := cacheStore.Load(ctx); err != nil {
		log.Warn("cache hydrate failed", zap.Error(err))
	} else {
		log.Info("cache hydrated", zap.Int("entries", n))
	}
	snap := offline.New(offline.Options{
		Redis:  rdb,
		Key:    cfg.OfflineKey,
		TTL:    cfg.OfflineTTL,
		Logger: log.Named("offline"),
	})
	if err := snap.Hydrate(ctx); err != nil {
		log.Warn("offline snapshot hydrate failed", zap.Error(err))
	}

	mon := connectivity.NewMonitor(connectivity.Options{
		Probe:         db,
		ProbeInterval: cfg.ProbeInterval,
		Metrics:       m,
		Logger:        log.Named("connectivity"),
	})
	gw := gateway.New(gateway.Deps{
		Remote:   repo,
		Cache:    cacheStore,
		Snapshot: snap,
		Conn:     mon,
		Breaker:  connectivity.NewBreaker(connectivity.DefaultBreakerConfig("postgres-reads"), mon),
		Metrics:  m,
		Logger:   log.Named("gateway"),
	}, gateway.Config{
		CacheTTL:        cfg.CacheTTL,
		DefaultPageSize: cfg.DefaultPageSize,
		MaxPageSize:     cfg.MaxPageSize,
	})
	mon.OnReconnect(gw.ResyncHook)
	go mon.Run(ctx)
	go gw.ResyncHook(ctx)

	// Stock events from any instance invalidate this instance's cache, so every
	// instance reads all partitions under its own group.
	host, _ := os.Hostname()
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.ServiceName+"-cache-"+host, orders.StockTopics, 2, log.Named("consumer"))
	go func() {
		if err := cons.Start(ctx, gw.HandleStockEvent); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("cache invalidation consumer stopped", zap.Error(err))
		}
	}()

	// HTTP
	router := httpx.NewRouter(httpx.RouterOptions{
		Logger:   log.Named("http"),
		Gatherer: reg,
		Health:   db.Ping,
	})
	(&httpx.OrdersHandler{Inventory: svc}).Register(router)
	(&httpx.ReadsHandler{Reads: gw}).Register(router)
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		log.Info("http listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("listen", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	prod.Close()
	prod.WaitClosed()
	mon.Wait()
}
