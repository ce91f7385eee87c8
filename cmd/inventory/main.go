package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-marketplace-stock/internal/config"
	"github.com/ariefcatur/go-marketplace-stock/internal/inventory"
	kafkax "github.com/ariefcatur/go-marketplace-stock/internal/kafka"
	"github.com/ariefcatur/go-marketplace-stock/internal/logger"
	"github.com/ariefcatur/go-marketplace-stock/internal/orders"
	"github.com/ariefcatur/go-marketplace-stock/internal/postgres"
	"github.com/ariefcatur/go-marketplace-stock/internal/redisx"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// The inventory worker watches placed orders and raises stock.low alerts.
func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	name := cfg.ServiceName + "-inventory"

	log := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	defer func() { _ = log.Sync() }()
	log = log.With(zap.String("service", name))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN, postgres.DefaultPoolOptions())
	if err != nil {
		log.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	prod := kafkax.NewProducer(cfg.KafkaBrokers, 1024, log.Named("producer"))
	// the producer outlives ctx so in-flight handlers can still publish
	prodCtx, stopProd := context.WithCancel(context.Background())
	defer stopProd()
	prod.Start(prodCtx)

	alerts := &inventory.AlertHandler{
		Reader:       &orders.Repo{DB: db},
		Redis:        rdb,
		Publisher:    prod,
		ThresholdPct: cfg.LowStockPct,
		ServiceName:  name,
		Logger:       log.Named("alerts"),
	}

	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.InventoryGroup, []string{orders.TopicOrderPlaced},
		cfg.InventoryWorkers, log.Named("consumer"))
	log.Info("inventory consumer started",
		zap.String("group", cfg.InventoryGroup), zap.String("topic", orders.TopicOrderPlaced),
		zap.Int("workers", cfg.InventoryWorkers))
	if err := cons.Start(ctx, alerts.HandleOrderPlaced); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("consumer exit", zap.Error(err))
	}

	log.Info("shutting down consumer")
	stop()
	// let in-flight handlers publish before the producer goes away
	time.Sleep(500 * time.Millisecond)
	prod.Close()
	prod.WaitClosed()
}
