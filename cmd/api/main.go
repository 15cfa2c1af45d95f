package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/pluteo/webshop/internal/catalog"
	"github.com/pluteo/webshop/internal/config"
	"github.com/pluteo/webshop/internal/fulfillment"
	"github.com/pluteo/webshop/internal/httpx"
	kafkax "github.com/pluteo/webshop/internal/kafka"
	"github.com/pluteo/webshop/internal/logx"
	"github.com/pluteo/webshop/internal/mailer"
	"github.com/pluteo/webshop/internal/orders"
	"github.com/pluteo/webshop/internal/postgres"
	"github.com/pluteo/webshop/internal/redisx"
	"github.com/pluteo/webshop/internal/stripex"
	"github.com/pluteo/webshop/internal/supplier"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logx.Init(cfg.ServiceName)
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producer for order lifecycle events
	prod := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderLifecycle, 1024, log)
	prod.Start(ctx)

	// Adapters
	gateway := stripex.New(cfg.StripeSecretKey, cfg.StripeWebhookSecret, log)
	mail := mailer.New(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.EmailFrom, log)
	repo := &orders.Repo{DB: db}
	store := &catalog.Store{DB: db}

	var supp fulfillment.SupplierGateway
	if cfg.SupplierMode == "simulated" {
		log.Warn("running with simulated fulfillment supplier")
		supp = &supplier.Simulated{Log: log}
	} else {
		supp = supplier.NewClient(cfg.SupplierBaseURL, cfg.SupplierAPIKey, cfg.SupplierTimeout,
			cfg.CarrierPriority, cfg.DefaultCarrier, log)
	}

	orch := &fulfillment.Orchestrator{
		Payments:    gateway,
		Supplier:    supp,
		Orders:      repo,
		Catalog:     store,
		Notifier:    mail,
		Events:      prod,
		Redis:       rdb,
		Service:     cfg.ServiceName,
		CallTimeout: cfg.SupplierTimeout,
		Log:         log,
	}

	router := httpx.NewRouter()
	wh := &httpx.WebhookHandler{Orchestrator: orch, Log: log}
	wh.Register(router)
	oh := &httpx.OrdersHandler{
		Repo:        repo,
		Catalog:     store,
		Gateway:     gateway,
		Redis:       rdb,
		FrontendURL: cfg.FrontendURL,
		Log:         log,
	}
	oh.Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		log.Info("HTTP listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("listen", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	prod.Close() // stop intake -> flush & close writer
	prod.WaitClosed()
}
