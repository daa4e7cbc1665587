package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/littlelatte/go-restaurant-orders/internal/config"
	kafkax "github.com/littlelatte/go-restaurant-orders/internal/kafka"
	"github.com/littlelatte/go-restaurant-orders/internal/notify"
	"github.com/littlelatte/go-restaurant-orders/internal/orders"
	"github.com/littlelatte/go-restaurant-orders/internal/postgres"
	"github.com/littlelatte/go-restaurant-orders/internal/redisx"
	"github.com/littlelatte/go-restaurant-orders/internal/sweep"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	repo := &orders.Repo{DB: db}
	svc := &notify.Service{
		Redis:       rdb,
		Sender:      notify.LogSender{},
		ServiceName: cfg.ServiceName + "-notify",
	}

	pCancelled := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderCancelled, 256)
	pCancelled.Start(ctx)
	sweeper := &sweep.Sweeper{
		Store:       repo,
		Redis:       rdb,
		Producer:    pCancelled,
		ServiceName: cfg.ServiceName + "-sweep",
		MaxAge:      cfg.SweepMaxAge,
		Interval:    cfg.SweepInterval,
	}

	group := getenv("NOTIFY_GROUP", "notify-svc")
	workers := mustAtoi(os.Getenv("NOTIFY_WORKERS"), "4")
	cConfirmed := kafkax.NewConsumer(cfg.KafkaBrokers, group, orders.TopicOrderConfirmed, workers)
	cFailed := kafkax.NewConsumer(cfg.KafkaBrokers, group, orders.TopicPaymentFailed, workers)
	cCancelled := kafkax.NewConsumer(cfg.KafkaBrokers, group, orders.TopicOrderCancelled, workers)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("notify consumer started: group=%s topic=%s workers=%d", group, orders.TopicOrderConfirmed, workers)
		return cConfirmed.Start(gctx, svc.HandleOrderEvent)
	})
	g.Go(func() error {
		log.Printf("notify consumer started: group=%s topic=%s workers=%d", group, orders.TopicPaymentFailed, workers)
		return cFailed.Start(gctx, svc.HandleOrderEvent)
	})
	g.Go(func() error {
		log.Printf("notify consumer started: group=%s topic=%s workers=%d", group, orders.TopicOrderCancelled, workers)
		return cCancelled.Start(gctx, svc.HandleOrderEvent)
	})
	g.Go(func() error {
		log.Printf("sweeper started: interval=%s max_age=%s", cfg.SweepInterval, cfg.SweepMaxAge)
		return sweeper.Run(gctx)
	})

	// wait signal or a hard consumer failure
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
		log.Println("shutting down worker...")
	case <-gctx.Done():
	}
	pCancelled.Close()
	cancel()
	if err := g.Wait(); err != nil {
		log.Printf("worker exit: %v", err)
	}
	pCancelled.WaitClosed()
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func mustAtoi(s, def string) int {
	if s == "" {
		s = def
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return 1
	}
	return i
}
