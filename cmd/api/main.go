package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/littlelatte/go-restaurant-orders/internal/checkout"
	"github.com/littlelatte/go-restaurant-orders/internal/config"
	"github.com/littlelatte/go-restaurant-orders/internal/httpx"
	kafkax "github.com/littlelatte/go-restaurant-orders/internal/kafka"
	"github.com/littlelatte/go-restaurant-orders/internal/orders"
	"github.com/littlelatte/go-restaurant-orders/internal/postgres"
	"github.com/littlelatte/go-restaurant-orders/internal/projector"
	"github.com/littlelatte/go-restaurant-orders/internal/redisx"
	"github.com/littlelatte/go-restaurant-orders/internal/webhook"
	"github.com/littlelatte/go-restaurant-orders/internal/yoco"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producers, one per lifecycle topic
	pCreated := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderCreated, 1024)
	pCreated.Start(ctx)
	pConfirmed := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderConfirmed, 1024)
	pConfirmed.Start(ctx)
	pFailed := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicPaymentFailed, 1024)
	pFailed.Start(ctx)
	pCancelled := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderCancelled, 1024)
	pCancelled.Start(ctx)

	repo := &orders.Repo{DB: db}
	gateway := yoco.NewClient(cfg.YocoBaseURL, cfg.YocoSecretKey)

	svc := &checkout.Service{
		Store:       repo,
		Gateway:     gateway,
		Redis:       rdb,
		Cancelled:   pCancelled,
		ServiceName: cfg.ServiceName,
		BaseURL:     cfg.PublicBaseURL,
		Currency:    cfg.Currency,
	}
	rec := &webhook.Reconciler{
		Store:             repo,
		Redis:             rdb,
		Secret:            cfg.YocoWebhookSecret,
		Currency:          cfg.Currency,
		ProducerConfirmed: pConfirmed,
		ProducerFailed:    pFailed,
		ServiceName:       cfg.ServiceName,
	}
	proj := &projector.Projector{Store: repo, Redis: rdb}

	router := httpx.NewRouter()
	oh := &httpx.OrdersHandler{
		Checkout:  svc,
		Projector: proj,
		Repo:      repo,
		Redis:     rdb,
		Producer:  pCreated,
		Service:   cfg.ServiceName,
	}
	oh.Register(router)
	wh := &httpx.WebhookHandler{Reconciler: rec}
	wh.Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		log.Printf("HTTP listening at %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	// wait signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)

	// close inboxes so producers flush, then stop their loops
	pCreated.Close()
	pConfirmed.Close()
	pFailed.Close()
	pCancelled.Close()
	cancel()
	pCreated.WaitClosed()
	pConfirmed.WaitClosed()
	pFailed.WaitClosed()
	pCancelled.WaitClosed()
}
