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

	"github.com/andresty/go-market-checkout/internal/config"
	"github.com/andresty/go-market-checkout/internal/httpx"
	kafkax "github.com/andresty/go-market-checkout/internal/kafka"
	"github.com/andresty/go-market-checkout/internal/market"
	"github.com/andresty/go-market-checkout/internal/metrics"
	"github.com/andresty/go-market-checkout/internal/postgres"
	"github.com/andresty/go-market-checkout/internal/redisx"
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

	// Kafka producers: order.placed & order.line.fulfilled
	pPlaced := kafkax.NewProducer(cfg.KafkaBrokers, market.TopicOrderPlaced, 1024)
	pPlaced.Start(ctx)
	pFulfilled := kafkax.NewProducer(cfg.KafkaBrokers, market.TopicLineFulfilled, 1024)
	pFulfilled.Start(ctx)

	// metrics + router
	srvMetrics := metrics.NewServerMetrics("api")
	router := httpx.NewRouter(srvMetrics)

	checkout := &market.Checkout{DB: db, LockWait: cfg.CheckoutLockWait}
	coupons := &market.CouponRepo{DB: db}

	(&httpx.CheckoutHandler{
		Service:  checkout,
		Redis:    rdb,
		Producer: pPlaced,
		Metrics:  metrics.NewCheckoutMetrics("api"),
		Name:     cfg.ServiceName,
	}).Register(router)
	(&httpx.CartHandler{
		Cart:    &market.CartRepo{DB: db},
		Coupons: coupons,
		Redis:   rdb,
	}).Register(router)
	(&httpx.OrdersHandler{
		Store: &market.Store{DB: db},
		Redis: rdb,
	}).Register(router)
	(&httpx.InventoryHandler{
		Inventory:   &market.InventoryRepo{DB: db},
		Fulfillment: &market.FulfillmentRepo{DB: db},
		Producer:    pFulfilled,
		Name:        cfg.ServiceName,
	}).Register(router)
	(&httpx.PartiesHandler{
		Parties: &market.PartyRepo{DB: db},
		Store:   &market.Store{DB: db},
		Redis:   rdb,
	}).Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	// graceful shutdown
	go func() {
		log.Printf("HTTP listening at %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	pPlaced.Close() // stop intake -> flush & close writer
	pFulfilled.Close()
	pPlaced.WaitClosed() // drain
	pFulfilled.WaitClosed()
	cancel()
}
